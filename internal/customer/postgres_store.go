package customer

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore persists customers in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed customer store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, c *Customer) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO customers (id, username, display_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Username, c.DisplayName, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrUsernameTaken
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Customer, error) {
	return p.scanCustomer(p.db.QueryRowContext(ctx, `
		SELECT id, username, display_name, created_at, updated_at
		FROM customers WHERE id = $1`, id))
}

func (p *PostgresStore) GetByUsername(ctx context.Context, username string) (*Customer, error) {
	return p.scanCustomer(p.db.QueryRowContext(ctx, `
		SELECT id, username, display_name, created_at, updated_at
		FROM customers WHERE username = $1`, username))
}

func (p *PostgresStore) Update(ctx context.Context, c *Customer) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE customers SET display_name = $1, updated_at = $2
		WHERE id = $3`,
		c.DisplayName, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

func (p *PostgresStore) scanCustomer(row *sql.Row) (*Customer, error) {
	c := &Customer{}
	err := row.Scan(&c.ID, &c.Username, &c.DisplayName, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

var _ Store = (*PostgresStore)(nil)
