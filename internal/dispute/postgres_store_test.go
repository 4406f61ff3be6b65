//go:build integration

package dispute

import (
	"context"
	"testing"
	"time"

	"github.com/tdhoang/trunggian/internal/escrow"
	"github.com/tdhoang/trunggian/internal/testutil"
)

func setupTestStore(t *testing.T) (*PostgresStore, func()) {
	t.Helper()
	db, cleanup := testutil.PGTest(t)
	return NewPostgresStore(db), cleanup
}

func testDispute(id, txnID string) *Dispute {
	now := time.Now().Truncate(time.Microsecond)
	return &Dispute{
		ID:              id,
		TransactionID:   txnID,
		TransactionKind: KindIntermediate,
		ComplainantID:   "cus_pg_buyer",
		RespondentID:    "cus_pg_seller",
		Reason:          ReasonNotReceived,
		Description:     "chưa nhận được hàng",
		Evidence:        []string{"img_1.jpg", "img_2.jpg"},
		Status:          StatusOpen,
		PriorStatus:     escrow.StatusConfirmed,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestPostgres_CreateAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	if err := store.Create(ctx, testDispute("dsp_pg_1", "txn_pg_1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "dsp_pg_1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Reason != ReasonNotReceived || got.Status != StatusOpen {
		t.Errorf("Reason/status mismatch: %s/%s", got.Reason, got.Status)
	}
	if len(got.Evidence) != 2 {
		t.Errorf("Expected 2 evidence files, got %d", len(got.Evidence))
	}
	if got.PriorStatus != escrow.StatusConfirmed {
		t.Errorf("PriorStatus not persisted: %s", got.PriorStatus)
	}
	if got.TransactionKind != KindIntermediate {
		t.Errorf("TransactionKind not persisted: %s", got.TransactionKind)
	}
}

func TestPostgres_GetMissing(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if _, err := store.Get(context.Background(), "dsp_nope"); err != ErrDisputeNotFound {
		t.Errorf("Expected ErrDisputeNotFound, got %v", err)
	}
}

func TestPostgres_ActiveByTransaction(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	store.Create(ctx, testDispute("dsp_pg_2", "txn_pg_2"))

	active, err := store.GetActiveByTransaction(ctx, "txn_pg_2")
	if err != nil {
		t.Fatalf("GetActiveByTransaction failed: %v", err)
	}
	if active == nil || active.ID != "dsp_pg_2" {
		t.Fatalf("Expected dsp_pg_2 active, got %v", active)
	}

	// Terminalize it, then no active dispute remains.
	now := time.Now().Truncate(time.Microsecond)
	active.Status = StatusCancelled
	active.Result = ResultWithdrawn
	active.ResolvedAt = &now
	active.UpdatedAt = now
	if err := store.Update(ctx, active); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	active, err = store.GetActiveByTransaction(ctx, "txn_pg_2")
	if err != nil {
		t.Fatalf("GetActiveByTransaction failed: %v", err)
	}
	if active != nil {
		t.Errorf("Expected no active dispute, got %s", active.ID)
	}
}

func TestPostgres_UniqueActivePerTransaction(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	store.Create(ctx, testDispute("dsp_pg_3", "txn_pg_3"))

	// Partial unique index rejects a second active dispute on the same
	// transaction even if the service-level check is bypassed.
	if err := store.Create(ctx, testDispute("dsp_pg_4", "txn_pg_3")); err == nil {
		t.Error("Expected second active dispute to be rejected")
	}
}

func TestPostgres_ListByStatus(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	d1 := testDispute("dsp_pg_5", "txn_pg_5")
	now := time.Now().Truncate(time.Microsecond)
	d1.Status = StatusEscalated
	d1.EscalatedAt = &now
	store.Create(ctx, d1)

	store.Create(ctx, testDispute("dsp_pg_6", "txn_pg_6"))

	escalated, err := store.ListByStatus(ctx, StatusEscalated, 10)
	if err != nil {
		t.Fatalf("ListByStatus failed: %v", err)
	}
	if len(escalated) != 1 || escalated[0].ID != "dsp_pg_5" {
		t.Errorf("Expected only dsp_pg_5 escalated, got %v", escalated)
	}
}
