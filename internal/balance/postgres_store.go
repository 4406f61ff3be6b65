package balance

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tdhoang/trunggian/internal/idgen"
)

// PostgresStore is a PostgreSQL-backed balance store.
//
// Balance rows carry CHECK constraints (available >= 0, locked >= 0) as a
// second line of defense; the store still checks balances inside the
// transaction so callers get the sentinel errors instead of a raw
// constraint violation.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed balance store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, customerID string) (*Balance, error) {
	b := &Balance{CustomerID: customerID}
	err := s.db.QueryRowContext(ctx, `
		SELECT available, locked, updated_at
		FROM customer_balances WHERE customer_id = $1`, customerID).
		Scan(&b.Available, &b.Locked, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		b.UpdatedAt = time.Now()
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return b, nil
}

// ensureRow creates a zero balance row if the customer has none yet.
func ensureRow(ctx context.Context, tx *sql.Tx, customerID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO customer_balances (customer_id, available, locked, updated_at)
		VALUES ($1, 0, 0, NOW())
		ON CONFLICT (customer_id) DO NOTHING`, customerID)
	return err
}

func appendEntry(ctx context.Context, tx *sql.Tx, customerID, entryType string, amount int64, reference, description string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO balance_entries (id, customer_id, entry_type, amount, reference, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		idgen.WithPrefix("ent_"), customerID, entryType, amount, reference, description)
	return err
}

// addFunds moves funds on a customer row. Negative deltas that would push
// a column below zero leave the row untouched and report insufficient
// funds via the returned bool.
func addFunds(ctx context.Context, tx *sql.Tx, customerID string, availableDelta, lockedDelta int64) (bool, error) {
	if err := ensureRow(ctx, tx, customerID); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE customer_balances
		SET available = available + $1, locked = locked + $2, updated_at = NOW()
		WHERE customer_id = $3 AND available + $1 >= 0 AND locked + $2 >= 0`,
		availableDelta, lockedDelta, customerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// withTx runs fn inside a serializable transaction.
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Credit(ctx context.Context, customerID string, amount int64, reference, description string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := addFunds(ctx, tx, customerID, amount, 0)
		if err != nil {
			return fmt.Errorf("failed to credit balance: %w", err)
		}
		if !ok {
			return ErrInvalidAmount
		}
		return appendEntry(ctx, tx, customerID, "topup", amount, reference, description)
	})
}

func (s *PostgresStore) Debit(ctx context.Context, customerID string, amount int64, reference, description string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := addFunds(ctx, tx, customerID, -amount, 0)
		if err != nil {
			return fmt.Errorf("failed to debit balance: %w", err)
		}
		if !ok {
			return ErrInsufficientBalance
		}
		return appendEntry(ctx, tx, customerID, "withdraw", amount, reference, description)
	})
}

func (s *PostgresStore) Lock(ctx context.Context, customerID string, amount int64, reference string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := addFunds(ctx, tx, customerID, -amount, amount)
		if err != nil {
			return fmt.Errorf("failed to lock balance: %w", err)
		}
		if !ok {
			return ErrInsufficientBalance
		}
		return appendEntry(ctx, tx, customerID, "lock", amount, reference, "")
	})
}

func (s *PostgresStore) Unlock(ctx context.Context, customerID string, amount int64, reference string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := addFunds(ctx, tx, customerID, amount, -amount)
		if err != nil {
			return fmt.Errorf("failed to unlock balance: %w", err)
		}
		if !ok {
			return ErrInsufficientLocked
		}
		return appendEntry(ctx, tx, customerID, "unlock", amount, reference, "")
	})
}

func (s *PostgresStore) Settle(ctx context.Context, buyerID, sellerID string, lockedTotal, sellerAmount int64, reference string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := addFunds(ctx, tx, buyerID, 0, -lockedTotal)
		if err != nil {
			return fmt.Errorf("failed to settle buyer: %w", err)
		}
		if !ok {
			return ErrInsufficientLocked
		}
		if err := appendEntry(ctx, tx, buyerID, "settle_out", lockedTotal, reference, ""); err != nil {
			return err
		}

		if _, err := addFunds(ctx, tx, sellerID, sellerAmount, 0); err != nil {
			return fmt.Errorf("failed to settle seller: %w", err)
		}
		if err := appendEntry(ctx, tx, sellerID, "settle_in", sellerAmount, reference, ""); err != nil {
			return err
		}

		if fee := lockedTotal - sellerAmount; fee > 0 {
			if _, err := addFunds(ctx, tx, PlatformAccountID, fee, 0); err != nil {
				return fmt.Errorf("failed to book platform fee: %w", err)
			}
			if err := appendEntry(ctx, tx, PlatformAccountID, "fee", fee, reference, ""); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) Transfer(ctx context.Context, fromID, toID string, amount int64, reference string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := addFunds(ctx, tx, fromID, -amount, 0)
		if err != nil {
			return fmt.Errorf("failed to debit sender: %w", err)
		}
		if !ok {
			return ErrInsufficientBalance
		}
		if err := appendEntry(ctx, tx, fromID, "transfer_out", amount, reference, ""); err != nil {
			return err
		}

		if _, err := addFunds(ctx, tx, toID, amount, 0); err != nil {
			return fmt.Errorf("failed to credit recipient: %w", err)
		}
		return appendEntry(ctx, tx, toID, "transfer_in", amount, reference, "")
	})
}

func (s *PostgresStore) History(ctx context.Context, customerID string, limit int) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, entry_type, amount, reference, description, created_at
		FROM balance_entries
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query balance entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.Type, &e.Amount, &e.Reference, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan balance entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
