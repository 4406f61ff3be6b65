package balance

import (
	"context"
	"sync"
	"time"

	"github.com/tdhoang/trunggian/internal/idgen"
)

// MemoryStore is an in-memory balance store for development and testing.
type MemoryStore struct {
	mu       sync.RWMutex
	balances map[string]*Balance
	entries  []*Entry
}

// NewMemoryStore creates an empty in-memory balance store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]*Balance),
	}
}

// getOrCreate returns the balance for a customer, creating a zero balance
// on first touch. Caller must hold mu.
func (s *MemoryStore) getOrCreate(customerID string) *Balance {
	b, ok := s.balances[customerID]
	if !ok {
		b = &Balance{CustomerID: customerID, UpdatedAt: time.Now()}
		s.balances[customerID] = b
	}
	return b
}

// append records a journal entry. Caller must hold mu.
func (s *MemoryStore) append(customerID, entryType string, amount int64, reference, description string) {
	s.entries = append(s.entries, &Entry{
		ID:          idgen.WithPrefix("ent_"),
		CustomerID:  customerID,
		Type:        entryType,
		Amount:      amount,
		Reference:   reference,
		Description: description,
		CreatedAt:   time.Now(),
	})
}

func (s *MemoryStore) Get(ctx context.Context, customerID string) (*Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.balances[customerID]
	if !ok {
		return &Balance{CustomerID: customerID, UpdatedAt: time.Now()}, nil
	}
	copy := *b
	return &copy, nil
}

func (s *MemoryStore) Credit(ctx context.Context, customerID string, amount int64, reference, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.getOrCreate(customerID)
	b.Available += amount
	b.UpdatedAt = time.Now()
	s.append(customerID, "topup", amount, reference, description)
	return nil
}

func (s *MemoryStore) Debit(ctx context.Context, customerID string, amount int64, reference, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.getOrCreate(customerID)
	if b.Available < amount {
		return ErrInsufficientBalance
	}
	b.Available -= amount
	b.UpdatedAt = time.Now()
	s.append(customerID, "withdraw", amount, reference, description)
	return nil
}

func (s *MemoryStore) Lock(ctx context.Context, customerID string, amount int64, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.getOrCreate(customerID)
	if b.Available < amount {
		return ErrInsufficientBalance
	}
	b.Available -= amount
	b.Locked += amount
	b.UpdatedAt = time.Now()
	s.append(customerID, "lock", amount, reference, "")
	return nil
}

func (s *MemoryStore) Unlock(ctx context.Context, customerID string, amount int64, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.getOrCreate(customerID)
	if b.Locked < amount {
		return ErrInsufficientLocked
	}
	b.Locked -= amount
	b.Available += amount
	b.UpdatedAt = time.Now()
	s.append(customerID, "unlock", amount, reference, "")
	return nil
}

func (s *MemoryStore) Settle(ctx context.Context, buyerID, sellerID string, lockedTotal, sellerAmount int64, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buyer := s.getOrCreate(buyerID)
	if buyer.Locked < lockedTotal {
		return ErrInsufficientLocked
	}
	now := time.Now()

	buyer.Locked -= lockedTotal
	buyer.UpdatedAt = now
	s.append(buyerID, "settle_out", lockedTotal, reference, "")

	seller := s.getOrCreate(sellerID)
	seller.Available += sellerAmount
	seller.UpdatedAt = now
	s.append(sellerID, "settle_in", sellerAmount, reference, "")

	if fee := lockedTotal - sellerAmount; fee > 0 {
		platform := s.getOrCreate(PlatformAccountID)
		platform.Available += fee
		platform.UpdatedAt = now
		s.append(PlatformAccountID, "fee", fee, reference, "")
	}
	return nil
}

func (s *MemoryStore) Transfer(ctx context.Context, fromID, toID string, amount int64, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.getOrCreate(fromID)
	if from.Available < amount {
		return ErrInsufficientBalance
	}
	now := time.Now()

	from.Available -= amount
	from.UpdatedAt = now
	s.append(fromID, "transfer_out", amount, reference, "")

	to := s.getOrCreate(toID)
	to.Available += amount
	to.UpdatedAt = now
	s.append(toID, "transfer_in", amount, reference, "")
	return nil
}

func (s *MemoryStore) History(ctx context.Context, customerID string, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Entry
	for i := len(s.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if s.entries[i].CustomerID == customerID {
			copy := *s.entries[i]
			result = append(result, &copy)
		}
	}
	return result, nil
}
