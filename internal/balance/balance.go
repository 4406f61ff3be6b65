// Package balance tracks per-customer funds on the platform.
//
// Each customer has an available balance and a locked balance. Escrow
// transactions move funds available → locked at creation and consume the
// locked portion at completion; wallet operations (top-up, withdraw,
// transfer) only touch the available balance. Every mutation appends a
// journal entry so the books stay auditable.
//
// The mutation surface is deliberately narrow: callers cannot adjust
// balance fields directly, and every operation enforces non-negativity
// internally.
package balance

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrInsufficientLocked  = errors.New("insufficient locked balance")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// PlatformAccountID is the reserved account that retained escrow fees are
// credited to. Keeping the fee as an explicit entry (instead of letting it
// vanish at settlement) keeps available+locked conservation auditable
// across the whole book.
const PlatformAccountID = "platform"

// Balance is a customer's current funds.
type Balance struct {
	CustomerID string    `json:"customerId"`
	Available  int64     `json:"available"`
	Locked     int64     `json:"locked"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Entry is one journal line. Amounts are always positive; Type encodes
// the direction.
type Entry struct {
	ID          string    `json:"id"`
	CustomerID  string    `json:"customerId"`
	Type        string    `json:"type"` // topup, withdraw, transfer_in, transfer_out, lock, unlock, settle_out, settle_in, fee
	Amount      int64     `json:"amount"`
	Reference   string    `json:"reference,omitempty"` // transaction ID, transfer ID, etc.
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store persists balances and journal entries. Implementations must make
// each method atomic: either all balance changes and entries of a call
// persist, or none do.
type Store interface {
	Get(ctx context.Context, customerID string) (*Balance, error)
	Credit(ctx context.Context, customerID string, amount int64, reference, description string) error
	Debit(ctx context.Context, customerID string, amount int64, reference, description string) error
	Lock(ctx context.Context, customerID string, amount int64, reference string) error
	Unlock(ctx context.Context, customerID string, amount int64, reference string) error
	Settle(ctx context.Context, buyerID, sellerID string, lockedTotal, sellerAmount int64, reference string) error
	Transfer(ctx context.Context, fromID, toID string, amount int64, reference string) error
	History(ctx context.Context, customerID string, limit int) ([]*Entry, error)
}

// Book is the balance service. It validates amounts and delegates to the
// store, which owns atomicity.
type Book struct {
	store Store
}

// New creates a balance book backed by the given store.
func New(store Store) *Book {
	return &Book{store: store}
}

// Get returns a customer's balance. Customers that have never held funds
// get a zero balance (accounts are created lazily on first operation).
func (b *Book) Get(ctx context.Context, customerID string) (*Balance, error) {
	return b.store.Get(ctx, customerID)
}

// Credit adds funds to the available balance (top-up, admin adjustment).
func (b *Book) Credit(ctx context.Context, customerID string, amount int64, reference, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	defer observeOp("credit")()
	return b.store.Credit(ctx, customerID, amount, reference, description)
}

// Debit removes funds from the available balance (withdrawal).
func (b *Book) Debit(ctx context.Context, customerID string, amount int64, reference, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	defer observeOp("debit")()
	return b.store.Debit(ctx, customerID, amount, reference, description)
}

// Lock moves funds available → locked for an open escrow transaction.
func (b *Book) Lock(ctx context.Context, customerID string, amount int64, reference string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	defer observeOp("lock")()
	return b.store.Lock(ctx, customerID, amount, reference)
}

// Unlock returns locked funds to available (escrow cancelled or refunded).
func (b *Book) Unlock(ctx context.Context, customerID string, amount int64, reference string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	defer observeOp("unlock")()
	return b.store.Unlock(ctx, customerID, amount, reference)
}

// Settle consumes lockedTotal from the buyer's locked balance, credits
// sellerAmount to the seller's available balance and books the remainder
// (the platform fee) to the platform revenue account.
func (b *Book) Settle(ctx context.Context, buyerID, sellerID string, lockedTotal, sellerAmount int64, reference string) error {
	if lockedTotal <= 0 || sellerAmount <= 0 || sellerAmount > lockedTotal {
		return ErrInvalidAmount
	}
	defer observeOp("settle")()
	return b.store.Settle(ctx, buyerID, sellerID, lockedTotal, sellerAmount, reference)
}

// Transfer moves available funds between two customers.
func (b *Book) Transfer(ctx context.Context, fromID, toID string, amount int64, reference string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	defer observeOp("transfer")()
	return b.store.Transfer(ctx, fromID, toID, amount, reference)
}

// History returns journal entries for a customer, newest first.
func (b *Book) History(ctx context.Context, customerID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return b.store.History(ctx, customerID, limit)
}
