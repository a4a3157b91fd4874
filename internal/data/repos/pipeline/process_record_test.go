package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/OperativeX/processmind-sub001/internal/data/repos/testutil"
	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
	"github.com/OperativeX/processmind-sub001/internal/platform/perr"
)

func TestProcessRecordRepoProgressIsMonotonic(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewProcessRecordRepo(db, testutil.Logger(t))

	rec := testutil.SeedProcessRecord(t, ctx, tx, uuid.New(), uuid.New())

	if err := repo.SetProgress(dbc, rec.ID, 80, "video_compress", "compressed"); err != nil {
		t.Fatalf("SetProgress(80): %v", err)
	}
	// Stale worker reporting an earlier checkpoint must not move the bar back.
	if err := repo.SetProgress(dbc, rec.ID, 5, "pipeline_start", "starting"); err != nil {
		t.Fatalf("SetProgress(5): %v", err)
	}

	got, err := repo.GetByID(dbc, rec.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ProgressPercent != 80 {
		t.Fatalf("progress must be monotonic: want 80 got %d", got.ProgressPercent)
	}
	if got.ProgressStage != "pipeline_start" {
		t.Fatalf("stage label should still update, got %q", got.ProgressStage)
	}
}

func TestProcessRecordRepoFailedIsTerminal(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewProcessRecordRepo(db, testutil.Logger(t))

	rec := testutil.SeedProcessRecord(t, ctx, tx, uuid.New(), uuid.New())

	if err := repo.UpdateFields(dbc, rec.ID, map[string]interface{}{"status": domain.StatusFailed}); err != nil {
		t.Fatalf("fail record: %v", err)
	}

	// A late branch completion guards on failed and must miss.
	ok, err := repo.UpdateFieldsUnlessStatus(dbc, rec.ID,
		[]domain.ProcessStatus{domain.StatusFailed},
		map[string]interface{}{"status": domain.StatusCompleted, "progress_percent": 100})
	if err != nil {
		t.Fatalf("UpdateFieldsUnlessStatus: %v", err)
	}
	if ok {
		t.Fatalf("guarded update against failed record should not apply")
	}

	// Progress writes also skip terminal records.
	if err := repo.SetProgress(dbc, rec.ID, 95, "storage_upload", "uploaded"); err != nil {
		t.Fatalf("SetProgress: %v", err)
	}

	got, err := repo.GetByID(dbc, rec.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Fatalf("record resurrected: %s", got.Status)
	}
	if got.ProgressPercent != 0 {
		t.Fatalf("terminal record progress should stay put, got %d", got.ProgressPercent)
	}
}

func TestProcessRecordRepoAppendErrorAndMergeJobs(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewProcessRecordRepo(db, testutil.Logger(t))

	rec := testutil.SeedProcessRecord(t, ctx, tx, uuid.New(), uuid.New())

	if err := repo.AppendError(dbc, rec.ID, domain.ProcessError{Stage: "transcribe", Message: "speech api unavailable"}); err != nil {
		t.Fatalf("AppendError #1: %v", err)
	}
	if err := repo.AppendError(dbc, rec.ID, domain.ProcessError{Stage: "transcribe", Message: "speech api unavailable"}); err != nil {
		t.Fatalf("AppendError #2: %v", err)
	}

	audioJob := uuid.New()
	videoJob := uuid.New()
	if err := repo.MergeJobs(dbc, rec.ID, map[string]uuid.UUID{"audio_extract": audioJob}); err != nil {
		t.Fatalf("MergeJobs #1: %v", err)
	}
	if err := repo.MergeJobs(dbc, rec.ID, map[string]uuid.UUID{"video_compress": videoJob}); err != nil {
		t.Fatalf("MergeJobs #2: %v", err)
	}

	got, err := repo.GetByID(dbc, rec.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	var errs []domain.ProcessError
	if err := json.Unmarshal(got.Errors, &errs); err != nil {
		t.Fatalf("unmarshal errors: %v", err)
	}
	if len(errs) != 2 {
		t.Fatalf("every failure appends, want 2 errors got %d", len(errs))
	}

	var jobs map[string]uuid.UUID
	if err := json.Unmarshal(got.Jobs, &jobs); err != nil {
		t.Fatalf("unmarshal jobs: %v", err)
	}
	if jobs["audio_extract"] != audioJob || jobs["video_compress"] != videoJob {
		t.Fatalf("jobs map should merge, got %v", jobs)
	}
}

func TestProcessRecordRepoTenantScopingAndDelete(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewProcessRecordRepo(db, testutil.Logger(t))

	rec := testutil.SeedProcessRecord(t, ctx, tx, uuid.New(), uuid.New())

	if _, err := repo.GetForTenant(dbc, rec.TenantID, rec.ID); err != nil {
		t.Fatalf("GetForTenant: %v", err)
	}
	if _, err := repo.GetForTenant(dbc, uuid.New(), rec.ID); !errors.Is(err, perr.ErrNotFound) {
		t.Fatalf("cross-tenant read should be not found, got %v", err)
	}

	if err := repo.Delete(dbc, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(dbc, rec.ID); !errors.Is(err, perr.ErrNotFound) {
		t.Fatalf("soft-deleted record should be not found, got %v", err)
	}
}
