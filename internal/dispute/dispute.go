// Package dispute implements formal complaints against escrow transactions.
//
// A dispute is a sub-lifecycle linked to a transaction: opening one forces
// the transaction into its disputed state, which blocks completion and
// cancellation until the dispute ends. The complainant may withdraw, the
// respondent may answer, either side may escalate a stalled dispute to an
// admin, and the admin resolution settles or refunds the transaction.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tdhoang/trunggian/internal/escrow"
	"github.com/tdhoang/trunggian/internal/idgen"
	"github.com/tdhoang/trunggian/internal/logging"
	"github.com/tdhoang/trunggian/internal/metrics"
	"github.com/tdhoang/trunggian/internal/syncutil"
	"github.com/tdhoang/trunggian/internal/traces"
)

var (
	ErrDisputeNotFound    = errors.New("dispute not found")
	ErrDuplicateDispute   = errors.New("transaction already has an active dispute")
	ErrPermissionDenied   = errors.New("not authorized for this dispute")
	ErrInvalidState       = errors.New("invalid dispute status for this operation")
	ErrInvalidReason      = errors.New("invalid dispute reason")
	ErrTooEarlyToEscalate = errors.New("dispute cannot be escalated yet")
)

// EscalationDelay is how long a dispute must sit without movement before
// either party may escalate it to an admin.
const EscalationDelay = 48 * time.Hour

// Status represents the state of a dispute.
type Status string

const (
	StatusOpen        Status = "open"         // waiting for the respondent
	StatusUnderReview Status = "under_review" // respondent answered, parties negotiating
	StatusEscalated   Status = "escalated"    // handed to an admin after stalling
	StatusResolved    Status = "resolved"     // admin decided the outcome
	StatusCancelled   Status = "cancelled"    // complainant withdrew
)

// IsTerminal returns true for final dispute states.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

// Reason categorizes why the dispute was opened.
type Reason string

const (
	ReasonNotReceived    Reason = "not_received"
	ReasonNotAsDescribed Reason = "not_as_described"
	ReasonFraud          Reason = "fraud"
	ReasonOther          Reason = "other"
)

func validReason(r Reason) bool {
	switch r {
	case ReasonNotReceived, ReasonNotAsDescribed, ReasonFraud, ReasonOther:
		return true
	}
	return false
}

// Result records how a terminal dispute ended.
type Result string

const (
	ResultWithdrawn      Result = "withdrawn_by_complainant"
	ResultSellerFavoured Result = "seller_favoured" // transaction completed
	ResultBuyerFavoured  Result = "buyer_favoured"  // transaction cancelled, buyer refunded
)

// TransactionKind tags what kind of transaction a dispute was filed
// against. The platform currently only runs escrowed trades, so every
// dispute carries KindIntermediate; the tag exists so records stay
// unambiguous if other transaction kinds are added.
type TransactionKind string

const KindIntermediate TransactionKind = "intermediate"

// Dispute is a complaint against a transaction.
type Dispute struct {
	ID              string          `json:"id"`
	TransactionID   string          `json:"transactionId"`
	TransactionKind TransactionKind `json:"transactionKind"`
	ComplainantID   string          `json:"complainantId"`
	RespondentID    string          `json:"respondentId"`

	Reason      Reason   `json:"reason"`
	Description string   `json:"description,omitempty"`
	Evidence    []string `json:"evidence,omitempty"` // stored file references

	Response           string   `json:"response,omitempty"`
	RespondentEvidence []string `json:"respondentEvidence,omitempty"`

	Status     Status `json:"status"`
	Result     Result `json:"result,omitempty"`
	Resolution string `json:"resolution,omitempty"` // admin's note

	// PriorStatus is the transaction status the dispute interrupted, used
	// to put the transaction back when the complainant withdraws.
	PriorStatus escrow.Status `json:"-"`

	RespondedAt *time.Time `json:"respondedAt,omitempty"`
	EscalatedAt *time.Time `json:"escalatedAt,omitempty"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Store persists disputes.
type Store interface {
	Create(ctx context.Context, d *Dispute) error
	Get(ctx context.Context, id string) (*Dispute, error)
	Update(ctx context.Context, d *Dispute) error
	// GetActiveByTransaction returns the one non-terminal dispute for a
	// transaction, or ErrDisputeNotFound if there is none.
	GetActiveByTransaction(ctx context.Context, transactionID string) (*Dispute, error)
	ListByTransaction(ctx context.Context, transactionID string) ([]*Dispute, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Dispute, error)
}

// TransactionService is the slice of the escrow service disputes need.
type TransactionService interface {
	Get(ctx context.Context, id string) (*escrow.Transaction, error)
	MarkDisputed(ctx context.Context, id, actorID string) (*escrow.Transaction, error)
	Reinstate(ctx context.Context, id string, action escrow.Action) (*escrow.Transaction, error)
	Resolve(ctx context.Context, id string, action escrow.Action, resolution string) (*escrow.Transaction, error)
}

// OpenRequest contains the parameters for opening a dispute.
type OpenRequest struct {
	TransactionID string   `json:"transactionId" binding:"required"`
	ComplainantID string   `json:"-"`
	Reason        Reason   `json:"reason" binding:"required"`
	Description   string   `json:"description"`
	Evidence      []string `json:"evidence"`
}

// Service implements dispute business logic.
type Service struct {
	store Store
	txns  TransactionService
	locks syncutil.ShardedMutex // keyed by transaction ID for Open, dispute ID otherwise
}

// NewService creates a new dispute service.
func NewService(store Store, txns TransactionService) *Service {
	return &Service{store: store, txns: txns}
}

// Open files a dispute against a transaction. The transaction moves to
// its disputed state; at most one active dispute may exist per transaction.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*Dispute, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.Open",
		traces.TransactionID(req.TransactionID), traces.CustomerID(req.ComplainantID))
	defer span.End()

	if !validReason(req.Reason) {
		return nil, ErrInvalidReason
	}

	// Serialize on the transaction so two racing opens can't both pass
	// the duplicate check.
	unlock := s.locks.Lock(req.TransactionID)
	defer unlock()

	if _, err := s.store.GetActiveByTransaction(ctx, req.TransactionID); err == nil {
		return nil, ErrDuplicateDispute
	} else if !errors.Is(err, ErrDisputeNotFound) {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to check for active dispute: %w", err)
	}

	prior, err := s.txns.Get(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	priorStatus := prior.Status

	// MarkDisputed validates that the caller is a participant and that
	// the lifecycle allows disputing from the current state.
	txn, err := s.txns.MarkDisputed(ctx, req.TransactionID, req.ComplainantID)
	if err != nil {
		return nil, err
	}

	respondent := txn.BuyerID
	if req.ComplainantID == txn.BuyerID {
		respondent = txn.SellerID
	}

	now := time.Now()
	d := &Dispute{
		ID:              idgen.WithPrefix("dsp_"),
		TransactionID:   txn.ID,
		TransactionKind: KindIntermediate,
		ComplainantID:   req.ComplainantID,
		RespondentID:    respondent,
		Reason:        req.Reason,
		Description:   req.Description,
		Evidence:      req.Evidence,
		Status:        StatusOpen,
		PriorStatus:   priorStatus,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.Create(ctx, d); err != nil {
		// Best-effort: put the transaction back so it isn't stuck in
		// disputed with no dispute record attached.
		if _, rerr := s.txns.Reinstate(ctx, txn.ID, reinstateAction(priorStatus)); rerr != nil {
			logging.L(ctx).Error("CRITICAL: dispute record creation failed and transaction could not be reinstated",
				"transaction_id", txn.ID, "error", rerr)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create dispute: %w", err)
	}

	metrics.DisputesTotal.WithLabelValues("opened").Inc()
	return d, nil
}

// Respond records the respondent's answer and moves the dispute under
// review. Only the respondent may answer, and only while the dispute is
// still open.
func (s *Service) Respond(ctx context.Context, id, callerID, response string, evidence []string) (*Dispute, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerID != d.RespondentID {
		return nil, ErrPermissionDenied
	}
	if d.Status != StatusOpen {
		return nil, ErrInvalidState
	}

	now := time.Now()
	d.Status = StatusUnderReview
	d.Response = response
	d.RespondentEvidence = evidence
	d.RespondedAt = &now
	d.UpdatedAt = now

	if err := s.store.Update(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to update dispute: %w", err)
	}
	return d, nil
}

// Cancel is the complainant withdrawing their dispute. The transaction
// returns to the state the dispute interrupted.
func (s *Service) Cancel(ctx context.Context, id, callerID string) (*Dispute, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerID != d.ComplainantID {
		return nil, ErrPermissionDenied
	}
	if d.Status != StatusOpen && d.Status != StatusUnderReview {
		return nil, ErrInvalidState
	}

	if _, err := s.txns.Reinstate(ctx, d.TransactionID, reinstateAction(d.PriorStatus)); err != nil {
		return nil, fmt.Errorf("failed to reinstate transaction: %w", err)
	}

	now := time.Now()
	d.Status = StatusCancelled
	d.Result = ResultWithdrawn
	d.ResolvedAt = &now
	d.UpdatedAt = now

	if err := s.store.Update(ctx, d); err != nil {
		// The transaction already left its disputed state; losing the
		// dispute update here leaves a stale open record, so log loudly.
		logging.L(ctx).Error("CRITICAL: transaction reinstated but dispute cancellation not persisted",
			"dispute_id", d.ID, "transaction_id", d.TransactionID, "error", err)
		return nil, fmt.Errorf("failed to update dispute: %w", err)
	}

	metrics.DisputesTotal.WithLabelValues("withdrawn").Inc()
	return d, nil
}

// Escalate hands a stalled dispute to an admin. Either party may escalate,
// but only once the respondent has answered and the dispute has then sat
// unchanged for EscalationDelay.
func (s *Service) Escalate(ctx context.Context, id, callerID string) (*Dispute, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerID != d.ComplainantID && callerID != d.RespondentID {
		return nil, ErrPermissionDenied
	}
	if d.Status != StatusUnderReview {
		return nil, ErrInvalidState
	}
	if time.Since(d.UpdatedAt) < EscalationDelay {
		return nil, ErrTooEarlyToEscalate
	}

	now := time.Now()
	d.Status = StatusEscalated
	d.EscalatedAt = &now
	d.UpdatedAt = now

	if err := s.store.Update(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to update dispute: %w", err)
	}

	metrics.DisputesTotal.WithLabelValues("escalated").Inc()
	return d, nil
}

// Resolve is the admin decision on a dispute: complete settles the
// transaction toward the seller, cancel refunds the buyer. The handler
// layer enforces admin access.
func (s *Service) Resolve(ctx context.Context, id string, inFavourOfSeller bool, resolution string) (*Dispute, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.Resolve", traces.DisputeID(id))
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status.IsTerminal() {
		return nil, ErrInvalidState
	}

	action := escrow.ActionResolveCancel
	result := ResultBuyerFavoured
	outcome := "resolved_cancel"
	if inFavourOfSeller {
		action = escrow.ActionResolveComplete
		result = ResultSellerFavoured
		outcome = "resolved_complete"
	}

	if _, err := s.txns.Resolve(ctx, d.TransactionID, action, resolution); err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := time.Now()
	d.Status = StatusResolved
	d.Result = result
	d.Resolution = resolution
	d.ResolvedAt = &now
	d.UpdatedAt = now

	if err := s.store.Update(ctx, d); err != nil {
		// Funds already moved with the transaction resolution; persist
		// failure here needs manual cleanup, not compensation.
		logging.L(ctx).Error("CRITICAL: transaction resolved but dispute record not persisted",
			"dispute_id", d.ID, "transaction_id", d.TransactionID, "error", err)
		return nil, fmt.Errorf("failed to update dispute: %w", err)
	}

	metrics.DisputesTotal.WithLabelValues(outcome).Inc()
	return d, nil
}

// Get returns a dispute by ID.
func (s *Service) Get(ctx context.Context, id string) (*Dispute, error) {
	return s.store.Get(ctx, id)
}

// ListByTransaction returns all disputes ever filed against a transaction.
func (s *Service) ListByTransaction(ctx context.Context, transactionID string) ([]*Dispute, error) {
	return s.store.ListByTransaction(ctx, transactionID)
}

// ListByStatus returns disputes in a given state, oldest first, for the
// admin review queue.
func (s *Service) ListByStatus(ctx context.Context, status Status, limit int) ([]*Dispute, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByStatus(ctx, status, limit)
}

func reinstateAction(prior escrow.Status) escrow.Action {
	if prior == escrow.StatusConfirmed {
		return escrow.ActionReinstateConfirmed
	}
	return escrow.ActionReinstatePending
}
