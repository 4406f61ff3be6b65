package customer

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory customer store for demo/development.
type MemoryStore struct {
	mu        sync.RWMutex
	customers map[string]*Customer // by ID
	usernames map[string]string    // username → ID
}

// NewMemoryStore creates a new in-memory customer store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers: make(map[string]*Customer),
		usernames: make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, c *Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.usernames[c.Username]; exists {
		return ErrUsernameTaken
	}

	cp := *c
	m.customers[c.ID] = &cp
	m.usernames[c.Username] = c.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.customers[id]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) GetByUsername(_ context.Context, username string) (*Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usernames[username]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	c := m.customers[id]
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) Update(_ context.Context, c *Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.customers[c.ID]; !ok {
		return ErrCustomerNotFound
	}
	cp := *c
	m.customers[c.ID] = &cp
	return nil
}

var _ Store = (*MemoryStore)(nil)
