//go:build integration

package escrow

import (
	"context"
	"testing"
	"time"

	"github.com/tdhoang/trunggian/internal/testutil"
)

func setupTestStore(t *testing.T) (*PostgresStore, func()) {
	t.Helper()
	db, cleanup := testutil.PGTest(t)
	return NewPostgresStore(db), cleanup
}

func testTransaction(id, code string) *Transaction {
	now := time.Now().Truncate(time.Microsecond)
	return &Transaction{
		ID:            id,
		Code:          code,
		CreatorID:     "cus_pg_buyer",
		PartnerID:     "cus_pg_seller",
		BuyerID:       "cus_pg_buyer",
		SellerID:      "cus_pg_seller",
		Role:          RoleBuyer,
		Amount:        1_000_000,
		Fee:           12_000,
		FeePayer:      FeePayerBuyer,
		Points:        5,
		Description:   "iPhone cũ",
		Status:        StatusPending,
		FundsLocked:   true,
		DurationHours: 24,
		ExpiresAt:     now.Add(24 * time.Hour),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestPostgres_CreateAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	txn := testTransaction("txn_pg_1", "GD-TEST-000001")

	if err := store.Create(ctx, txn); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "txn_pg_1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Amount != 1_000_000 || got.Fee != 12_000 {
		t.Errorf("Amount/fee mismatch: %d/%d", got.Amount, got.Fee)
	}
	if got.Status != StatusPending || !got.FundsLocked {
		t.Errorf("Status/lock mismatch: %s/%v", got.Status, got.FundsLocked)
	}
	if got.ConfirmedAt != nil {
		t.Error("ConfirmedAt should be nil on a fresh transaction")
	}

	byCode, err := store.GetByCode(ctx, "GD-TEST-000001")
	if err != nil {
		t.Fatalf("GetByCode failed: %v", err)
	}
	if byCode.ID != "txn_pg_1" {
		t.Errorf("GetByCode returned %s", byCode.ID)
	}
}

func TestPostgres_GetMissing(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if _, err := store.Get(context.Background(), "txn_nope"); err != ErrTransactionNotFound {
		t.Errorf("Expected ErrTransactionNotFound, got %v", err)
	}
}

func TestPostgres_UpdateStatus(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	txn := testTransaction("txn_pg_2", "GD-TEST-000002")
	if err := store.Create(ctx, txn); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	now := time.Now().Truncate(time.Microsecond)
	txn.Status = StatusConfirmed
	txn.ConfirmedAt = &now
	txn.UpdatedAt = now
	if err := store.Update(ctx, txn); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := store.Get(ctx, "txn_pg_2")
	if got.Status != StatusConfirmed {
		t.Errorf("Expected confirmed, got %s", got.Status)
	}
	if got.ConfirmedAt == nil {
		t.Error("ConfirmedAt not persisted")
	}
}

func TestPostgres_ListByCustomer(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	store.Create(ctx, testTransaction("txn_pg_3", "GD-TEST-000003"))
	store.Create(ctx, testTransaction("txn_pg_4", "GD-TEST-000004"))

	txns, err := store.ListByCustomer(ctx, "cus_pg_seller", 10)
	if err != nil {
		t.Fatalf("ListByCustomer failed: %v", err)
	}
	if len(txns) != 2 {
		t.Errorf("Expected 2 transactions, got %d", len(txns))
	}
}

func TestPostgres_ListExpired(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	expired := testTransaction("txn_pg_5", "GD-TEST-000005")
	expired.ExpiresAt = time.Now().Add(-time.Hour)
	store.Create(ctx, expired)

	fresh := testTransaction("txn_pg_6", "GD-TEST-000006")
	store.Create(ctx, fresh)

	confirmed := testTransaction("txn_pg_7", "GD-TEST-000007")
	confirmed.Status = StatusConfirmed
	confirmed.ExpiresAt = time.Now().Add(-time.Hour)
	store.Create(ctx, confirmed)

	txns, err := store.ListExpired(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("ListExpired failed: %v", err)
	}
	if len(txns) != 1 || txns[0].ID != "txn_pg_5" {
		t.Errorf("Expected only txn_pg_5 expired, got %v", txns)
	}
}
