package escrow

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists transactions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed transaction store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, t *Transaction) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, code, creator_id, partner_id, buyer_id, seller_id, creator_role,
			amount, fee, fee_payer, reward_points, description,
			status, funds_locked, duration_hours, expires_at,
			confirmed_at, shipped_at, resolved_at, cancel_reason,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, $20,
			$21, $22
		)`,
		t.ID, t.Code, t.CreatorID, t.PartnerID, t.BuyerID, t.SellerID, string(t.Role),
		t.Amount, t.Fee, string(t.FeePayer), t.Points, nullString(t.Description),
		string(t.Status), t.FundsLocked, t.DurationHours, t.ExpiresAt,
		nullTime(t.ConfirmedAt), nullTime(t.ShippedAt), nullTime(t.ResolvedAt), nullString(t.CancelReason),
		t.CreatedAt, t.UpdatedAt,
	)
	return err
}

const transactionColumns = `id, code, creator_id, partner_id, buyer_id, seller_id, creator_role,
		       amount, fee, fee_payer, reward_points, description,
		       status, funds_locked, duration_hours, expires_at,
		       confirmed_at, shipped_at, resolved_at, cancel_reason,
		       created_at, updated_at`

func (p *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)

	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	return t, err
}

func (p *PostgresStore) GetByCode(ctx context.Context, code string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE code = $1`, code)

	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	return t, err
}

func (p *PostgresStore) Update(ctx context.Context, t *Transaction) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE transactions SET
			status = $1, funds_locked = $2,
			confirmed_at = $3, shipped_at = $4, resolved_at = $5,
			cancel_reason = $6, updated_at = $7
		WHERE id = $8`,
		string(t.Status), t.FundsLocked,
		nullTime(t.ConfirmedAt), nullTime(t.ShippedAt), nullTime(t.ResolvedAt),
		nullString(t.CancelReason), t.UpdatedAt,
		t.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (p *PostgresStore) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanTransactions(rows)
}

func (p *PostgresStore) ListExpired(ctx context.Context, before time.Time, limit int) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status = 'pending'
		  AND expires_at < $1
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanTransactions(rows)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(s scanner) (*Transaction, error) {
	t := &Transaction{}
	var (
		role         string
		feePayer     string
		status       string
		description  sql.NullString
		cancelReason sql.NullString
		confirmedAt  sql.NullTime
		shippedAt    sql.NullTime
		resolvedAt   sql.NullTime
	)

	err := s.Scan(
		&t.ID, &t.Code, &t.CreatorID, &t.PartnerID, &t.BuyerID, &t.SellerID, &role,
		&t.Amount, &t.Fee, &feePayer, &t.Points, &description,
		&status, &t.FundsLocked, &t.DurationHours, &t.ExpiresAt,
		&confirmedAt, &shippedAt, &resolvedAt, &cancelReason,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Role = Role(role)
	t.FeePayer = FeePayer(feePayer)
	t.Status = Status(status)
	t.Description = description.String
	t.CancelReason = cancelReason.String
	if confirmedAt.Valid {
		t.ConfirmedAt = &confirmedAt.Time
	}
	if shippedAt.Valid {
		t.ShippedAt = &shippedAt.Time
	}
	if resolvedAt.Valid {
		t.ResolvedAt = &resolvedAt.Time
	}

	return t, nil
}

func scanTransactions(rows *sql.Rows) ([]*Transaction, error) {
	var result []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// nullString converts an empty Go string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
