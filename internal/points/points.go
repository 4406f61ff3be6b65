// Package points tracks loyalty points earned from completed escrow
// transactions. Points are append-only counters: available = earned - spent.
package points

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrInvalidPoints      = errors.New("invalid point amount")
)

// CustomerPoints is a customer's loyalty point account.
type CustomerPoints struct {
	CustomerID  string    `json:"customerId"`
	Available   int64     `json:"available"`
	TotalEarned int64     `json:"totalEarned"`
	TotalSpent  int64     `json:"totalSpent"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Store persists point accounts.
type Store interface {
	Get(ctx context.Context, customerID string) (*CustomerPoints, error)
	Earn(ctx context.Context, customerID string, amount int64, reference string) error
	Spend(ctx context.Context, customerID string, amount int64, reference string) error
}

// Service is the points service.
type Service struct {
	store Store
}

// New creates a points service backed by the given store.
func New(store Store) *Service {
	return &Service{store: store}
}

// Get returns a customer's point account (zero account for new customers).
func (s *Service) Get(ctx context.Context, customerID string) (*CustomerPoints, error) {
	return s.store.Get(ctx, customerID)
}

// Earn awards points for a completed transaction.
func (s *Service) Earn(ctx context.Context, customerID string, amount int64, reference string) error {
	if amount <= 0 {
		return ErrInvalidPoints
	}
	return s.store.Earn(ctx, customerID, amount, reference)
}

// Spend redeems points.
func (s *Service) Spend(ctx context.Context, customerID string, amount int64, reference string) error {
	if amount <= 0 {
		return ErrInvalidPoints
	}
	return s.store.Spend(ctx, customerID, amount, reference)
}
