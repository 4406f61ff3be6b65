package balance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBook() *Book {
	return New(NewMemoryStore())
}

func TestGet_UnknownCustomerIsZero(t *testing.T) {
	book := newTestBook()
	ctx := context.Background()

	b, err := book.Get(ctx, "cus_nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.Available)
	assert.Equal(t, int64(0), b.Locked)
}

func TestCreditDebit(t *testing.T) {
	book := newTestBook()
	ctx := context.Background()

	require.NoError(t, book.Credit(ctx, "cus_a", 100_000, "topup_1", "nạp tiền"))
	require.NoError(t, book.Debit(ctx, "cus_a", 30_000, "wd_1", "rút tiền"))

	b, err := book.Get(ctx, "cus_a")
	require.NoError(t, err)
	assert.Equal(t, int64(70_000), b.Available)
}

func TestDebit_Insufficient(t *testing.T) {
	book := newTestBook()
	ctx := context.Background()

	require.NoError(t, book.Credit(ctx, "cus_a", 10_000, "topup_1", ""))
	err := book.Debit(ctx, "cus_a", 20_000, "wd_1", "")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// Failed debit must not touch the balance.
	b, _ := book.Get(ctx, "cus_a")
	assert.Equal(t, int64(10_000), b.Available)
}

func TestLockUnlock(t *testing.T) {
	book := newTestBook()
	ctx := context.Background()

	require.NoError(t, book.Credit(ctx, "cus_a", 100_000, "topup_1", ""))
	require.NoError(t, book.Lock(ctx, "cus_a", 60_000, "txn_1"))

	b, _ := book.Get(ctx, "cus_a")
	assert.Equal(t, int64(40_000), b.Available)
	assert.Equal(t, int64(60_000), b.Locked)

	// Locked funds cannot be withdrawn.
	assert.ErrorIs(t, book.Debit(ctx, "cus_a", 50_000, "wd_1", ""), ErrInsufficientBalance)

	require.NoError(t, book.Unlock(ctx, "cus_a", 60_000, "txn_1"))
	b, _ = book.Get(ctx, "cus_a")
	assert.Equal(t, int64(100_000), b.Available)
	assert.Equal(t, int64(0), b.Locked)
}

func TestLock_Insufficient(t *testing.T) {
	book := newTestBook()
	ctx := context.Background()

	require.NoError(t, book.Credit(ctx, "cus_a", 5_000, "topup_1", ""))
	assert.ErrorIs(t, book.Lock(ctx, "cus_a", 6_000, "txn_1"), ErrInsufficientBalance)
}

func TestUnlock_MoreThanLocked(t *testing.T) {
	book := newTestBook()
	ctx := context.Background()

	require.NoError(t, book.Credit(ctx, "cus_a", 100_000, "topup_1", ""))
	require.NoError(t, book.Lock(ctx, "cus_a", 10_000, "txn_1"))
	assert.ErrorIs(t, book.Unlock(ctx, "cus_a", 20_000, "txn_1"), ErrInsufficientLocked)
}

func TestSettle(t *testing.T) {
	book := newTestBook()
	ctx := context.Background()

	// Buyer locks amount + fee, seller receives amount, platform keeps fee.
	require.NoError(t, book.Credit(ctx, "cus_buyer", 1_010_000, "topup_1", ""))
	require.NoError(t, book.Lock(ctx, "cus_buyer", 1_010_000, "txn_1"))
	require.NoError(t, book.Settle(ctx, "cus_buyer", "cus_seller", 1_010_000, 1_000_000, "txn_1"))

	buyer, _ := book.Get(ctx, "cus_buyer")
	assert.Equal(t, int64(0), buyer.Available)
	assert.Equal(t, int64(0), buyer.Locked)

	seller, _ := book.Get(ctx, "cus_seller")
	assert.Equal(t, int64(1_000_000), seller.Available)

	platform, _ := book.Get(ctx, PlatformAccountID)
	assert.Equal(t, int64(10_000), platform.Available)
}

func TestSettle_Conservation(t *testing.T) {
	book := newTestBook()
	ctx := context.Background()

	const funded = 2_000_000
	require.NoError(t, book.Credit(ctx, "cus_buyer", funded, "topup_1", ""))
	require.NoError(t, book.Lock(ctx, "cus_buyer", 516_000, "txn_1"))
	require.NoError(t, book.Settle(ctx, "cus_buyer", "cus_seller", 516_000, 500_000, "txn_1"))

	var total int64
	for _, id := range []string{"cus_buyer", "cus_seller", PlatformAccountID} {
		b, err := book.Get(ctx, id)
		require.NoError(t, err)
		total += b.Available + b.Locked
	}
	assert.Equal(t, int64(funded), total, "settlement must conserve total funds")
}

func TestTransfer(t *testing.T) {
	book := newTestBook()
	ctx := context.Background()

	require.NoError(t, book.Credit(ctx, "cus_a", 50_000, "topup_1", ""))
	require.NoError(t, book.Transfer(ctx, "cus_a", "cus_b", 20_000, "tr_1"))

	a, _ := book.Get(ctx, "cus_a")
	b, _ := book.Get(ctx, "cus_b")
	assert.Equal(t, int64(30_000), a.Available)
	assert.Equal(t, int64(20_000), b.Available)

	assert.ErrorIs(t, book.Transfer(ctx, "cus_a", "cus_b", 40_000, "tr_2"), ErrInsufficientBalance)
}

func TestInvalidAmounts(t *testing.T) {
	book := newTestBook()
	ctx := context.Background()

	assert.ErrorIs(t, book.Credit(ctx, "cus_a", 0, "r", ""), ErrInvalidAmount)
	assert.ErrorIs(t, book.Debit(ctx, "cus_a", -1, "r", ""), ErrInvalidAmount)
	assert.ErrorIs(t, book.Lock(ctx, "cus_a", 0, "r"), ErrInvalidAmount)
	assert.ErrorIs(t, book.Transfer(ctx, "cus_a", "cus_b", -5, "r"), ErrInvalidAmount)
	// Seller cannot receive more than was locked.
	assert.ErrorIs(t, book.Settle(ctx, "cus_a", "cus_b", 100, 200, "r"), ErrInvalidAmount)
}

func TestHistory(t *testing.T) {
	book := newTestBook()
	ctx := context.Background()

	require.NoError(t, book.Credit(ctx, "cus_a", 100_000, "topup_1", ""))
	require.NoError(t, book.Lock(ctx, "cus_a", 40_000, "txn_1"))
	require.NoError(t, book.Unlock(ctx, "cus_a", 40_000, "txn_1"))

	entries, err := book.History(ctx, "cus_a", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// Newest first.
	assert.Equal(t, "unlock", entries[0].Type)
	assert.Equal(t, "lock", entries[1].Type)
	assert.Equal(t, "topup", entries[2].Type)
	assert.Equal(t, "txn_1", entries[0].Reference)
}
