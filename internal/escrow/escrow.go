// Package escrow implements intermediary transactions between marketplace
// customers.
//
// Flow:
//  1. A customer (buyer or seller) opens a transaction naming a partner
//  2. When the buyer side is committed, amount + fee move available → locked
//  3. Seller ships, buyer confirms receipt → locked funds settle to the
//     seller and the platform keeps the fee
//  4. Either side may dispute before completion; an admin resolves the
//     dispute toward completion or cancellation
//  5. Unconfirmed transactions past their deadline are cancelled by the
//     expiry sweep and locked funds returned
package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/tdhoang/trunggian/internal/fee"
	"github.com/tdhoang/trunggian/internal/idgen"
	"github.com/tdhoang/trunggian/internal/logging"
	"github.com/tdhoang/trunggian/internal/metrics"
	"github.com/tdhoang/trunggian/internal/syncutil"
	"github.com/tdhoang/trunggian/internal/traces"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidTransition   = errors.New("invalid status for this operation")
	ErrPermissionDenied    = errors.New("not authorized for this transaction")
	ErrSelfTransaction     = errors.New("cannot open a transaction with yourself")
	ErrPartnerNotFound     = errors.New("partner not found")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidDuration     = errors.New("invalid duration")
	ErrFundsNotLocked      = errors.New("transaction funds were never locked")
)

// Status represents the state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"   // created, waiting for the partner to confirm
	StatusConfirmed Status = "confirmed" // both sides committed, buyer funds locked
	StatusCompleted Status = "completed" // buyer confirmed receipt, funds settled
	StatusCancelled Status = "cancelled" // cancelled, declined or expired
	StatusDisputed  Status = "disputed"  // under dispute, awaiting resolution
)

// Role identifies which side of the trade the creator takes.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// FeePayer identifies who carries the platform fee.
type FeePayer string

const (
	FeePayerBuyer  FeePayer = "buyer"
	FeePayerSeller FeePayer = "seller"
)

// Transaction is an intermediary transaction between two customers.
type Transaction struct {
	ID          string   `json:"id"`
	Code        string   `json:"code"` // human-facing code, e.g. GD-20260831-A1B2C3
	CreatorID   string   `json:"creatorId"`
	PartnerID   string   `json:"partnerId"`
	BuyerID     string   `json:"buyerId"`
	SellerID    string   `json:"sellerId"`
	Role        Role     `json:"creatorRole"`
	Amount      int64    `json:"amount"` // VND
	Fee         int64    `json:"fee"`    // VND, computed at creation
	FeePayer    FeePayer `json:"feePayer"`
	Points      int64    `json:"rewardPoints"`
	Description string   `json:"description,omitempty"`

	Status      Status `json:"status"`
	FundsLocked bool   `json:"fundsLocked"`

	DurationHours int        `json:"durationHours"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	ConfirmedAt   *time.Time `json:"confirmedAt,omitempty"`
	ShippedAt     *time.Time `json:"shippedAt,omitempty"`
	ResolvedAt    *time.Time `json:"resolvedAt,omitempty"`
	CancelReason  string     `json:"cancelReason,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusCancelled
}

// LockedTotal is the amount held from the buyer while the transaction is
// open: the trade amount plus the fee when the buyer carries it.
func (t *Transaction) LockedTotal() int64 {
	if t.FeePayer == FeePayerBuyer {
		return t.Amount + t.Fee
	}
	return t.Amount
}

// SellerAmount is what the seller receives at settlement: the trade
// amount minus the fee when the seller carries it.
func (t *Transaction) SellerAmount() int64 {
	if t.FeePayer == FeePayerSeller {
		return t.Amount - t.Fee
	}
	return t.Amount
}

// Store persists transactions.
type Store interface {
	Create(ctx context.Context, t *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	GetByCode(ctx context.Context, code string) (*Transaction, error)
	Update(ctx context.Context, t *Transaction) error
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]*Transaction, error)
	ListExpired(ctx context.Context, before time.Time, limit int) ([]*Transaction, error)
}

// BalanceService abstracts fund movements so escrow doesn't import the
// balance package. This is the only surface through which escrow touches
// customer money.
type BalanceService interface {
	Lock(ctx context.Context, customerID string, amount int64, reference string) error
	Unlock(ctx context.Context, customerID string, amount int64, reference string) error
	Settle(ctx context.Context, buyerID, sellerID string, lockedTotal, sellerAmount int64, reference string) error
}

// PointsService awards loyalty points on completed transactions.
type PointsService interface {
	Earn(ctx context.Context, customerID string, amount int64, reference string) error
}

// CustomerDirectory checks that a trading partner exists.
type CustomerDirectory interface {
	Exists(ctx context.Context, customerID string) (bool, error)
}

// EventEmitter pushes transaction lifecycle events to connected clients.
type EventEmitter interface {
	TransactionEvent(event string, t *Transaction)
}

// Limits bounds transaction parameters.
type Limits struct {
	MinAmount        int64
	MaxAmount        int64
	MaxDurationHours int
}

// DefaultLimits are used when no limits are configured.
var DefaultLimits = Limits{
	MinAmount:        10_000,
	MaxAmount:        500_000_000,
	MaxDurationHours: 168,
}

// CreateRequest contains the parameters for opening a transaction.
type CreateRequest struct {
	CreatorID     string   `json:"-"`
	PartnerID     string   `json:"partnerId" binding:"required"`
	Role          Role     `json:"role" binding:"required"`
	Amount        int64    `json:"amount" binding:"required"`
	DurationHours int      `json:"durationHours"`
	FeePayer      FeePayer `json:"feePayer"`
	Description   string   `json:"description"`
}

// Service implements transaction business logic.
type Service struct {
	store     Store
	balances  BalanceService
	points    PointsService
	customers CustomerDirectory
	emitter   EventEmitter
	limits    Limits
	locks     syncutil.ShardedMutex // per-transaction, serializes state transitions
}

// NewService creates a new transaction service.
func NewService(store Store, balances BalanceService) *Service {
	return &Service{
		store:    store,
		balances: balances,
		limits:   DefaultLimits,
	}
}

// WithCustomers adds partner-existence validation.
func (s *Service) WithCustomers(d CustomerDirectory) *Service {
	s.customers = d
	return s
}

// WithPoints adds loyalty point awards on completion.
func (s *Service) WithPoints(p PointsService) *Service {
	s.points = p
	return s
}

// WithEmitter adds realtime event notifications.
func (s *Service) WithEmitter(e EventEmitter) *Service {
	s.emitter = e
	return s
}

// WithLimits overrides the default amount and duration bounds.
func (s *Service) WithLimits(l Limits) *Service {
	s.limits = l
	return s
}

// Limits returns the configured transaction bounds.
func (s *Service) Limits() Limits {
	return s.limits
}

// Create opens a transaction. If the creator is the buyer, amount + fee
// are locked immediately; a seller-created transaction locks the buyer's
// funds when the buyer confirms.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Create",
		traces.CustomerID(req.CreatorID), traces.Amount(req.Amount))
	defer span.End()

	if req.CreatorID == req.PartnerID {
		return nil, ErrSelfTransaction
	}
	if req.Role != RoleBuyer && req.Role != RoleSeller {
		return nil, fmt.Errorf("%w: role must be buyer or seller", ErrPermissionDenied)
	}
	if req.Amount < s.limits.MinAmount || req.Amount > s.limits.MaxAmount {
		return nil, ErrInvalidAmount
	}
	if req.DurationHours == 0 {
		req.DurationHours = 24 // omitted, use the default deadline
	}
	if req.DurationHours < 1 || req.DurationHours > s.limits.MaxDurationHours {
		return nil, ErrInvalidDuration
	}
	if req.FeePayer == "" {
		req.FeePayer = FeePayerBuyer
	}
	if req.FeePayer != FeePayerBuyer && req.FeePayer != FeePayerSeller {
		return nil, fmt.Errorf("%w: fee payer must be buyer or seller", ErrInvalidAmount)
	}

	if s.customers != nil {
		ok, err := s.customers.Exists(ctx, req.PartnerID)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to look up partner: %w", err)
		}
		if !ok {
			return nil, ErrPartnerNotFound
		}
	}

	now := time.Now()
	t := &Transaction{
		ID:            idgen.WithPrefix("txn_"),
		Code:          idgen.TransactionCode(now),
		CreatorID:     req.CreatorID,
		PartnerID:     req.PartnerID,
		Role:          req.Role,
		Amount:        req.Amount,
		Fee:           fee.Fee(req.Amount, req.DurationHours),
		FeePayer:      req.FeePayer,
		Points:        int64(fee.RewardPoints(req.Amount)),
		Description:   req.Description,
		Status:        StatusPending,
		DurationHours: req.DurationHours,
		ExpiresAt:     now.Add(time.Duration(req.DurationHours) * time.Hour),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.Role == RoleBuyer {
		t.BuyerID = req.CreatorID
		t.SellerID = req.PartnerID
	} else {
		t.BuyerID = req.PartnerID
		t.SellerID = req.CreatorID
	}

	// Seller-side fee cannot exceed the trade amount.
	if t.SellerAmount() <= 0 {
		return nil, ErrInvalidAmount
	}

	// Buyer-created transactions lock funds up front.
	if t.BuyerID == t.CreatorID {
		if err := s.balances.Lock(ctx, t.BuyerID, t.LockedTotal(), t.ID); err != nil {
			span.RecordError(err)
			return nil, err
		}
		t.FundsLocked = true
	}

	if err := s.store.Create(ctx, t); err != nil {
		// Best-effort refund if the record could not be written
		if t.FundsLocked {
			_ = s.balances.Unlock(ctx, t.BuyerID, t.LockedTotal(), t.ID)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create transaction record")
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	s.emit("transaction.created", t)
	return t, nil
}

// Confirm is the partner's acceptance of a pending transaction. When the
// buyer is the confirming side, their funds are locked here.
func (s *Service) Confirm(ctx context.Context, id, callerID string) (*Transaction, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerID != t.PartnerID {
		return nil, ErrPermissionDenied
	}

	next, err := NextStatus(t.Status, ActionConfirm)
	if err != nil {
		return nil, err
	}

	if !t.FundsLocked {
		if err := s.balances.Lock(ctx, t.BuyerID, t.LockedTotal(), t.ID); err != nil {
			return nil, err
		}
		t.FundsLocked = true
	}

	now := time.Now()
	t.Status = next
	t.ConfirmedAt = &now
	t.UpdatedAt = now

	if err := s.store.Update(ctx, t); err != nil {
		// Compensate: return the funds we just locked
		_ = s.balances.Unlock(ctx, t.BuyerID, t.LockedTotal(), t.ID)
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	s.emit("transaction.confirmed", t)
	return t, nil
}

// MarkShipped records that the seller handed the goods over. It does not
// change the transaction status; it is evidence for dispute handling.
func (s *Service) MarkShipped(ctx context.Context, id, callerID string) (*Transaction, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerID != t.SellerID {
		return nil, ErrPermissionDenied
	}
	if t.Status != StatusPending && t.Status != StatusConfirmed {
		return nil, ErrInvalidTransition
	}
	if t.ShippedAt != nil {
		return t, nil // already shipped, idempotent
	}

	now := time.Now()
	t.ShippedAt = &now
	t.UpdatedAt = now
	if err := s.store.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	s.emit("transaction.shipped", t)
	return t, nil
}

// Complete is the buyer confirming receipt: locked funds settle to the
// seller, the platform keeps the fee, both sides earn points.
func (s *Service) Complete(ctx context.Context, id, callerID string) (*Transaction, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerID != t.BuyerID {
		return nil, ErrPermissionDenied
	}

	next, err := NextStatus(t.Status, ActionComplete)
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, t, next, "")
}

// Cancel aborts a pending transaction. Either participant may cancel
// before the partner confirms; locked funds return to the buyer.
func (s *Service) Cancel(ctx context.Context, id, callerID, reason string) (*Transaction, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerID != t.CreatorID && callerID != t.PartnerID {
		return nil, ErrPermissionDenied
	}

	next, err := NextStatus(t.Status, ActionCancel)
	if err != nil {
		return nil, err
	}
	return s.refund(ctx, t, next, ActionCancel, reason)
}

// MarkDisputed moves a transaction into the disputed state. Called by the
// dispute service once a dispute is opened; funds stay locked until an
// admin resolves it.
func (s *Service) MarkDisputed(ctx context.Context, id, actorID string) (*Transaction, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID != t.CreatorID && actorID != t.PartnerID {
		return nil, ErrPermissionDenied
	}

	next, err := NextStatus(t.Status, ActionDispute)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	t.Status = next
	t.UpdatedAt = now
	if err := s.store.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	metrics.TransactionsTotal.WithLabelValues(string(StatusDisputed)).Inc()
	s.emit("transaction.disputed", t)
	return t, nil
}

// Resolve settles a disputed transaction one way or the other. Admin only;
// the handler layer enforces that.
func (s *Service) Resolve(ctx context.Context, id string, action Action, resolution string) (*Transaction, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := NextStatus(t.Status, action)
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionResolveComplete:
		if !t.FundsLocked {
			// Disputed before the buyer ever committed funds; there is
			// nothing to settle toward the seller.
			return nil, ErrFundsNotLocked
		}
		return s.settle(ctx, t, next, resolution)
	case ActionResolveCancel:
		return s.refund(ctx, t, next, action, resolution)
	default:
		return nil, ErrInvalidTransition
	}
}

// Reinstate returns a disputed transaction to the state it was disputed
// from, after the complainant withdraws the dispute. Funds stay exactly
// where they were; only the status moves.
func (s *Service) Reinstate(ctx context.Context, id string, action Action) (*Transaction, error) {
	if action != ActionReinstatePending && action != ActionReinstateConfirmed {
		return nil, ErrInvalidTransition
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := NextStatus(t.Status, action)
	if err != nil {
		return nil, err
	}

	t.Status = next
	t.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	s.emit("transaction.reinstated", t)
	return t, nil
}

// Expire cancels a transaction that passed its deadline without being
// confirmed. Idempotent: the sweep may hand us a transaction that another
// actor already moved on, in which case nothing happens.
func (s *Service) Expire(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	// Re-read under lock to prevent stale-state races with user actions.
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !CanApply(t.Status, ActionExpire) {
		return nil
	}
	if time.Now().Before(t.ExpiresAt) {
		return nil
	}

	next, _ := NextStatus(t.Status, ActionExpire)
	if _, err := s.refund(ctx, t, next, ActionExpire, "expired"); err != nil {
		return err
	}
	metrics.ExpiredSweepTotal.Inc()
	return nil
}

// settle moves t to a completed state: locked funds go to the seller, the
// platform keeps the fee, points are awarded.
func (s *Service) settle(ctx context.Context, t *Transaction, next Status, resolution string) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.settle",
		traces.TransactionID(t.ID), traces.Amount(t.Amount))
	defer span.End()

	if err := s.balances.Settle(ctx, t.BuyerID, t.SellerID, t.LockedTotal(), t.SellerAmount(), t.ID); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to settle transaction funds: %w", err)
	}

	now := time.Now()
	t.Status = next
	t.FundsLocked = false
	t.ResolvedAt = &now
	t.CancelReason = resolution
	t.UpdatedAt = now

	if err := s.store.Update(ctx, t); err != nil {
		// Retry once — funds already moved, we must persist the state change
		if retryErr := s.store.Update(ctx, t); retryErr != nil {
			// CRITICAL: funds settled to the seller but the record is stale.
			// Settlement has no inverse operation, so log for manual
			// resolution rather than applying wrong compensation.
			logging.L(ctx).Error("CRITICAL: transaction settled but status update failed",
				"transaction_id", t.ID, "seller_id", t.SellerID, "error", retryErr)
			return nil, fmt.Errorf("failed to update transaction after settlement (requires manual resolution): %w", err)
		}
	}

	// The reward is a buyer credit; points are a courtesy, not money, so a
	// failure here is logged rather than failing the settled transaction.
	if s.points != nil {
		if err := s.points.Earn(ctx, t.BuyerID, t.Points, t.ID); err != nil {
			logging.L(ctx).Error("failed to award reward points",
				"transaction_id", t.ID, "buyer_id", t.BuyerID, "points", t.Points, "error", err)
		}
	}

	metrics.TransactionsTotal.WithLabelValues(string(next)).Inc()
	metrics.TransactionVolume.WithLabelValues(string(next)).Add(float64(t.Amount))
	metrics.FeeRevenue.Add(float64(t.Fee))
	metrics.TransactionDuration.Observe(now.Sub(t.CreatedAt).Seconds())

	s.emit("transaction.completed", t)
	return t, nil
}

// refund moves t to a cancelled state, returning any locked funds.
func (s *Service) refund(ctx context.Context, t *Transaction, next Status, action Action, reason string) (*Transaction, error) {
	if t.FundsLocked {
		if err := s.balances.Unlock(ctx, t.BuyerID, t.LockedTotal(), t.ID); err != nil {
			return nil, fmt.Errorf("failed to unlock transaction funds: %w", err)
		}
	}

	wasLocked := t.FundsLocked
	now := time.Now()
	t.Status = next
	t.FundsLocked = false
	t.ResolvedAt = &now
	t.CancelReason = reason
	t.UpdatedAt = now

	if err := s.store.Update(ctx, t); err != nil {
		// Compensate: re-lock the refunded funds
		if wasLocked {
			_ = s.balances.Lock(ctx, t.BuyerID, t.LockedTotal(), t.ID)
			t.FundsLocked = true
		}
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	metrics.TransactionsTotal.WithLabelValues(string(next)).Inc()
	metrics.TransactionVolume.WithLabelValues(string(next)).Add(float64(t.Amount))
	metrics.TransactionDuration.Observe(now.Sub(t.CreatedAt).Seconds())

	event := "transaction.cancelled"
	if action == ActionExpire {
		event = "transaction.expired"
	}
	s.emit(event, t)
	return t, nil
}

// Get returns a transaction by ID.
func (s *Service) Get(ctx context.Context, id string) (*Transaction, error) {
	return s.store.Get(ctx, id)
}

// GetByCode returns a transaction by its human-facing code.
func (s *Service) GetByCode(ctx context.Context, code string) (*Transaction, error) {
	return s.store.GetByCode(ctx, code)
}

// ListByCustomer returns transactions involving a customer (either side).
func (s *Service) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByCustomer(ctx, customerID, limit)
}

func (s *Service) emit(event string, t *Transaction) {
	if s.emitter != nil {
		cp := *t
		s.emitter.TransactionEvent(event, &cp)
	}
}
