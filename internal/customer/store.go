package customer

import "context"

// Store persists customer accounts.
type Store interface {
	Create(ctx context.Context, c *Customer) error
	Get(ctx context.Context, id string) (*Customer, error)
	GetByUsername(ctx context.Context, username string) (*Customer, error)
	Update(ctx context.Context, c *Customer) error
}
