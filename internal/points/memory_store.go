package points

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory points store for development and testing.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*CustomerPoints
}

// NewMemoryStore creates an empty in-memory points store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*CustomerPoints)}
}

func (s *MemoryStore) getOrCreate(customerID string) *CustomerPoints {
	p, ok := s.accounts[customerID]
	if !ok {
		p = &CustomerPoints{CustomerID: customerID, UpdatedAt: time.Now()}
		s.accounts[customerID] = p
	}
	return p
}

func (s *MemoryStore) Get(ctx context.Context, customerID string) (*CustomerPoints, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.accounts[customerID]
	if !ok {
		return &CustomerPoints{CustomerID: customerID, UpdatedAt: time.Now()}, nil
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) Earn(ctx context.Context, customerID string, amount int64, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.getOrCreate(customerID)
	p.TotalEarned += amount
	p.Available += amount
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Spend(ctx context.Context, customerID string, amount int64, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.getOrCreate(customerID)
	if p.Available < amount {
		return ErrInsufficientPoints
	}
	p.TotalSpent += amount
	p.Available -= amount
	p.UpdatedAt = time.Now()
	return nil
}
