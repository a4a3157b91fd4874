package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/OperativeX/processmind-sub001/internal/data/repos/testutil"
	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
)

func TestJobRunRepoClaimOrdering(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	tenantID := uuid.New()
	ownerUserID := uuid.New()

	mk := func(status string, priority int, age time.Duration) *domain.JobRun {
		return &domain.JobRun{
			ID:          uuid.New(),
			TenantID:    tenantID,
			OwnerUserID: ownerUserID,
			Queue:       domain.QueueVideo,
			JobType:     "video_compress",
			RecordID:    testutil.PtrUUID(uuid.New()),
			Status:      status,
			Stage:       "queued",
			Priority:    priority,
			Payload:     datatypes.JSON([]byte("{}")),
			Result:      datatypes.JSON([]byte("{}")),
			CreatedAt:   now.Add(-age),
			UpdatedAt:   now.Add(-age),
		}
	}

	oldLow := mk(domain.JobStatusQueued, 0, 3*time.Hour)
	newHigh := mk(domain.JobStatusQueued, 10, 1*time.Hour)
	staleRunning := mk(domain.JobStatusRunning, 0, 2*time.Hour)
	staleRunning.HeartbeatAt = testutil.PtrTime(now.Add(-10 * time.Hour))
	deferred := mk(domain.JobStatusQueued, 20, 4*time.Hour)
	deferred.RunAt = testutil.PtrTime(now.Add(1 * time.Hour))

	if _, err := repo.Create(dbc, []*domain.JobRun{oldLow, newHigh, staleRunning, deferred}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Highest priority first even though it is younger; the deferred job has
	// the highest priority of all but its run_at is in the future.
	claim1, err := repo.ClaimNextRunnable(dbc, domain.QueueVideo, 3, time.Hour)
	if err != nil {
		t.Fatalf("ClaimNextRunnable #1: %v", err)
	}
	if claim1 == nil || claim1.ID != newHigh.ID {
		t.Fatalf("ClaimNextRunnable #1: expected %v got %+v", newHigh.ID, claim1)
	}
	if claim1.Status != domain.JobStatusRunning || claim1.Attempts != 1 {
		t.Fatalf("claimed job should be running with attempts=1, got %+v", claim1)
	}

	claim2, err := repo.ClaimNextRunnable(dbc, domain.QueueVideo, 3, time.Hour)
	if err != nil {
		t.Fatalf("ClaimNextRunnable #2: %v", err)
	}
	if claim2 == nil || claim2.ID != oldLow.ID {
		t.Fatalf("ClaimNextRunnable #2: expected %v got %+v", oldLow.ID, claim2)
	}

	// Stale running job is reclaimed after everything queued is drained.
	claim3, err := repo.ClaimNextRunnable(dbc, domain.QueueVideo, 3, time.Hour)
	if err != nil {
		t.Fatalf("ClaimNextRunnable #3: %v", err)
	}
	if claim3 == nil || claim3.ID != staleRunning.ID {
		t.Fatalf("ClaimNextRunnable #3: expected %v got %+v", staleRunning.ID, claim3)
	}

	claim4, err := repo.ClaimNextRunnable(dbc, domain.QueueVideo, 3, time.Hour)
	if err != nil {
		t.Fatalf("ClaimNextRunnable #4: %v", err)
	}
	if claim4 != nil {
		t.Fatalf("ClaimNextRunnable #4: expected nil, got %+v", claim4)
	}

	// Other queues never see these jobs.
	other, err := repo.ClaimNextRunnable(dbc, domain.QueueAudio, 3, time.Hour)
	if err != nil {
		t.Fatalf("ClaimNextRunnable (audio): %v", err)
	}
	if other != nil {
		t.Fatalf("audio queue should be empty, got %+v", other)
	}
}

func TestJobRunRepoScheduleRetryDefersClaim(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	tenantID := uuid.New()
	ownerUserID := uuid.New()
	job := &domain.JobRun{
		ID:          uuid.New(),
		TenantID:    tenantID,
		OwnerUserID: ownerUserID,
		Queue:       domain.QueueStorage,
		JobType:     "storage_upload",
		RecordID:    testutil.PtrUUID(uuid.New()),
		Status:      domain.JobStatusQueued,
		Stage:       "queued",
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
	}
	if _, err := repo.Create(dbc, []*domain.JobRun{job}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	claimed, err := repo.ClaimNextRunnable(dbc, domain.QueueStorage, 3, time.Hour)
	if err != nil || claimed == nil {
		t.Fatalf("claim: err=%v claimed=%+v", err, claimed)
	}

	if err := repo.ScheduleRetry(dbc, job.ID, time.Now().Add(10*time.Minute), "gcs unavailable"); err != nil {
		t.Fatalf("ScheduleRetry: %v", err)
	}

	// run_at in the future: not claimable yet.
	again, err := repo.ClaimNextRunnable(dbc, domain.QueueStorage, 3, time.Hour)
	if err != nil {
		t.Fatalf("claim after retry: %v", err)
	}
	if again != nil {
		t.Fatalf("job with future run_at should not be claimable, got %+v", again)
	}

	if err := repo.ScheduleRetry(dbc, job.ID, time.Now().Add(-time.Second), "gcs unavailable"); err != nil {
		t.Fatalf("ScheduleRetry (due): %v", err)
	}
	due, err := repo.ClaimNextRunnable(dbc, domain.QueueStorage, 3, time.Hour)
	if err != nil || due == nil || due.ID != job.ID {
		t.Fatalf("due retry should be claimable: err=%v got=%+v", err, due)
	}
	if due.Attempts != 2 {
		t.Fatalf("attempts should count every claim, got %d", due.Attempts)
	}
}

func TestJobRunRepoAttemptsBoundAndCancel(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	recordID := uuid.New()
	exhausted := &domain.JobRun{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		OwnerUserID: uuid.New(),
		Queue:       domain.QueueCleanup,
		JobType:     "local_cleanup",
		RecordID:    &recordID,
		Status:      domain.JobStatusQueued,
		Stage:       "queued",
		Attempts:    3,
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
	}
	if _, err := repo.Create(dbc, []*domain.JobRun{exhausted}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.ClaimNextRunnable(dbc, domain.QueueCleanup, 3, time.Hour)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if got != nil {
		t.Fatalf("job at the attempts bound must not be claimed, got %+v", got)
	}

	has, err := repo.HasRunnableForRecord(dbc, recordID, "local_cleanup")
	if err != nil {
		t.Fatalf("HasRunnableForRecord: %v", err)
	}
	if !has {
		t.Fatalf("queued job should count as runnable")
	}

	n, err := repo.CancelPendingForRecord(dbc, recordID)
	if err != nil {
		t.Fatalf("CancelPendingForRecord: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 canceled job, got %d", n)
	}

	has, err = repo.HasRunnableForRecord(dbc, recordID, "")
	if err != nil {
		t.Fatalf("HasRunnableForRecord after cancel: %v", err)
	}
	if has {
		t.Fatalf("canceled job should not be runnable")
	}
}
