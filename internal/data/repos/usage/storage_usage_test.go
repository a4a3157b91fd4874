package usage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/OperativeX/processmind-sub001/internal/data/repos/testutil"
	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
)

func TestStorageUsageRepoApplyEventIsExactlyOnce(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewStorageUsageRepo(db, testutil.Logger(t))

	tenantID := uuid.New()
	ownerUserID := uuid.New()
	recordID := uuid.New()

	ev := func() *domain.StorageUsageEvent {
		return &domain.StorageUsageEvent{
			ID:          uuid.New(),
			TenantID:    tenantID,
			OwnerUserID: ownerUserID,
			RecordID:    recordID,
			Stage:       "video",
			Direction:   domain.UsageDirectionAdd,
			Bytes:       1000,
		}
	}

	applied, err := repo.ApplyEvent(dbc, ev())
	if err != nil {
		t.Fatalf("ApplyEvent #1: %v", err)
	}
	if !applied {
		t.Fatalf("first delivery should apply")
	}

	// Redelivered job records the same {record,stage,direction}: no-op.
	applied, err = repo.ApplyEvent(dbc, ev())
	if err != nil {
		t.Fatalf("ApplyEvent #2: %v", err)
	}
	if applied {
		t.Fatalf("redelivery must not double count")
	}

	totals, err := repo.Totals(dbc, tenantID, ownerUserID)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if totals.TotalBytes != 1000 || totals.FileCount != 1 {
		t.Fatalf("totals: want 1000/1 got %d/%d", totals.TotalBytes, totals.FileCount)
	}
}

func TestStorageUsageRepoRemovalClampsAtZero(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewStorageUsageRepo(db, testutil.Logger(t))

	tenantID := uuid.New()
	ownerUserID := uuid.New()

	if _, err := repo.ApplyEvent(dbc, &domain.StorageUsageEvent{
		ID: uuid.New(), TenantID: tenantID, OwnerUserID: ownerUserID,
		RecordID: uuid.New(), Stage: "video", Direction: domain.UsageDirectionAdd, Bytes: 500,
	}); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Remove more than was ever added (for example after a manual bucket wipe).
	if _, err := repo.ApplyEvent(dbc, &domain.StorageUsageEvent{
		ID: uuid.New(), TenantID: tenantID, OwnerUserID: ownerUserID,
		RecordID: uuid.New(), Stage: "video", Direction: domain.UsageDirectionRemove, Bytes: 2000,
	}); err != nil {
		t.Fatalf("remove: %v", err)
	}

	totals, err := repo.Totals(dbc, tenantID, ownerUserID)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if totals.TotalBytes != 0 || totals.FileCount != 0 {
		t.Fatalf("totals must clamp at zero, got %d/%d", totals.TotalBytes, totals.FileCount)
	}
}

func TestStorageUsageRepoMonthlyAggregate(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewStorageUsageRepo(db, testutil.Logger(t))

	tenantID := uuid.New()
	ownerUserID := uuid.New()
	month := time.Now().UTC().Format("2006-01")

	for i := 0; i < 2; i++ {
		if _, err := repo.ApplyEvent(dbc, &domain.StorageUsageEvent{
			ID: uuid.New(), TenantID: tenantID, OwnerUserID: ownerUserID,
			RecordID: uuid.New(), Stage: "video", Direction: domain.UsageDirectionAdd, Bytes: 100,
		}); err != nil {
			t.Fatalf("add #%d: %v", i, err)
		}
	}
	if _, err := repo.ApplyEvent(dbc, &domain.StorageUsageEvent{
		ID: uuid.New(), TenantID: tenantID, OwnerUserID: ownerUserID,
		RecordID: uuid.New(), Stage: "video", Direction: domain.UsageDirectionRemove, Bytes: 100,
	}); err != nil {
		t.Fatalf("remove: %v", err)
	}

	m, err := repo.Month(dbc, tenantID, ownerUserID, month)
	if err != nil {
		t.Fatalf("Month: %v", err)
	}
	if m.BytesAdded != 200 || m.FilesAdded != 2 || m.BytesRemoved != 100 || m.FilesRemoved != 1 {
		t.Fatalf("monthly aggregate wrong: %+v", m)
	}
}

func TestStorageUsageRepoOverwriteTotalsIsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewStorageUsageRepo(db, testutil.Logger(t))

	tenantID := uuid.New()
	ownerUserID := uuid.New()

	if _, err := repo.ApplyEvent(dbc, &domain.StorageUsageEvent{
		ID: uuid.New(), TenantID: tenantID, OwnerUserID: ownerUserID,
		RecordID: uuid.New(), Stage: "video", Direction: domain.UsageDirectionAdd, Bytes: 12345,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := repo.OverwriteTotals(dbc, tenantID, ownerUserID, 999, 3); err != nil {
			t.Fatalf("OverwriteTotals #%d: %v", i, err)
		}
	}

	totals, err := repo.Totals(dbc, tenantID, ownerUserID)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if totals.TotalBytes != 999 || totals.FileCount != 3 {
		t.Fatalf("overwrite should replace counters, got %d/%d", totals.TotalBytes, totals.FileCount)
	}

	// Overwrite also creates the row for a scope with no prior events.
	freshOwner := uuid.New()
	if err := repo.OverwriteTotals(dbc, tenantID, freshOwner, 10, 1); err != nil {
		t.Fatalf("OverwriteTotals (fresh): %v", err)
	}
	fresh, err := repo.Totals(dbc, tenantID, freshOwner)
	if err != nil {
		t.Fatalf("Totals (fresh): %v", err)
	}
	if fresh.TotalBytes != 10 || fresh.FileCount != 1 {
		t.Fatalf("fresh overwrite wrong: %d/%d", fresh.TotalBytes, fresh.FileCount)
	}
}
