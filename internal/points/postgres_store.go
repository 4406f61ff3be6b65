package points

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore is a PostgreSQL-backed points store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed points store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, customerID string) (*CustomerPoints, error) {
	p := &CustomerPoints{CustomerID: customerID}
	err := s.db.QueryRowContext(ctx, `
		SELECT total_earned, total_spent, updated_at
		FROM customer_points WHERE customer_id = $1`, customerID).
		Scan(&p.TotalEarned, &p.TotalSpent, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		p.UpdatedAt = time.Now()
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get points: %w", err)
	}
	p.Available = p.TotalEarned - p.TotalSpent
	return p, nil
}

func (s *PostgresStore) Earn(ctx context.Context, customerID string, amount int64, reference string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customer_points (customer_id, total_earned, total_spent, updated_at)
		VALUES ($1, $2, 0, NOW())
		ON CONFLICT (customer_id)
		DO UPDATE SET total_earned = customer_points.total_earned + $2, updated_at = NOW()`,
		customerID, amount)
	if err != nil {
		return fmt.Errorf("failed to earn points: %w", err)
	}
	return nil
}

func (s *PostgresStore) Spend(ctx context.Context, customerID string, amount int64, reference string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customer_points
		SET total_spent = total_spent + $1, updated_at = NOW()
		WHERE customer_id = $2 AND total_earned - total_spent >= $1`,
		amount, customerID)
	if err != nil {
		return fmt.Errorf("failed to spend points: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInsufficientPoints
	}
	return nil
}
