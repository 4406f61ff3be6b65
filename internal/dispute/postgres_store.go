package dispute

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/tdhoang/trunggian/internal/escrow"
)

// PostgresStore persists disputes in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed dispute store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, d *Dispute) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO disputes (
			id, transaction_id, transaction_kind, complainant_id, respondent_id,
			reason, description, evidence,
			response, respondent_evidence,
			status, result, resolution, prior_status,
			responded_at, escalated_at, resolved_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10,
			$11, $12, $13, $14,
			$15, $16, $17,
			$18, $19
		)`,
		d.ID, d.TransactionID, string(d.TransactionKind), d.ComplainantID, d.RespondentID,
		string(d.Reason), nullString(d.Description), pq.Array(d.Evidence),
		nullString(d.Response), pq.Array(d.RespondentEvidence),
		string(d.Status), nullString(string(d.Result)), nullString(d.Resolution), string(d.PriorStatus),
		nullTime(d.RespondedAt), nullTime(d.EscalatedAt), nullTime(d.ResolvedAt),
		d.CreatedAt, d.UpdatedAt,
	)
	return err
}

const disputeColumns = `id, transaction_id, transaction_kind, complainant_id, respondent_id,
		       reason, description, evidence,
		       response, respondent_evidence,
		       status, result, resolution, prior_status,
		       responded_at, escalated_at, resolved_at,
		       created_at, updated_at`

func (p *PostgresStore) Get(ctx context.Context, id string) (*Dispute, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id)

	d, err := scanDispute(row)
	if err == sql.ErrNoRows {
		return nil, ErrDisputeNotFound
	}
	return d, err
}

func (p *PostgresStore) Update(ctx context.Context, d *Dispute) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE disputes SET
			status = $1, result = $2, resolution = $3,
			response = $4, respondent_evidence = $5,
			responded_at = $6, escalated_at = $7, resolved_at = $8,
			updated_at = $9
		WHERE id = $10`,
		string(d.Status), nullString(string(d.Result)), nullString(d.Resolution),
		nullString(d.Response), pq.Array(d.RespondentEvidence),
		nullTime(d.RespondedAt), nullTime(d.EscalatedAt), nullTime(d.ResolvedAt),
		d.UpdatedAt,
		d.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrDisputeNotFound
	}
	return nil
}

func (p *PostgresStore) GetActiveByTransaction(ctx context.Context, transactionID string) (*Dispute, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+disputeColumns+`
		FROM disputes
		WHERE transaction_id = $1
		  AND status NOT IN ('resolved', 'cancelled')
		LIMIT 1`, transactionID)

	d, err := scanDispute(row)
	if err == sql.ErrNoRows {
		return nil, ErrDisputeNotFound
	}
	return d, err
}

func (p *PostgresStore) ListByTransaction(ctx context.Context, transactionID string) ([]*Dispute, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+disputeColumns+`
		FROM disputes
		WHERE transaction_id = $1
		ORDER BY created_at ASC`, transactionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanDisputes(rows)
}

func (p *PostgresStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Dispute, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+disputeColumns+`
		FROM disputes
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanDisputes(rows)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDispute(s scanner) (*Dispute, error) {
	d := &Dispute{}
	var (
		kind        string
		reason      string
		description sql.NullString
		response    sql.NullString
		status      string
		result      sql.NullString
		resolution  sql.NullString
		priorStatus string
		respondedAt sql.NullTime
		escalatedAt sql.NullTime
		resolvedAt  sql.NullTime
	)

	err := s.Scan(
		&d.ID, &d.TransactionID, &kind, &d.ComplainantID, &d.RespondentID,
		&reason, &description, pq.Array(&d.Evidence),
		&response, pq.Array(&d.RespondentEvidence),
		&status, &result, &resolution, &priorStatus,
		&respondedAt, &escalatedAt, &resolvedAt,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.TransactionKind = TransactionKind(kind)
	d.Reason = Reason(reason)
	d.Description = description.String
	d.Response = response.String
	d.Status = Status(status)
	d.Result = Result(result.String)
	d.Resolution = resolution.String
	d.PriorStatus = escrow.Status(priorStatus)
	if respondedAt.Valid {
		d.RespondedAt = &respondedAt.Time
	}
	if escalatedAt.Valid {
		d.EscalatedAt = &escalatedAt.Time
	}
	if resolvedAt.Valid {
		d.ResolvedAt = &resolvedAt.Time
	}

	return d, nil
}

func scanDisputes(rows *sql.Rows) ([]*Dispute, error) {
	var result []*Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ Store = (*PostgresStore)(nil)
