package local_cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/OperativeX/processmind-sub001/internal/data/repos/testutil"
	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/jobs"
	"github.com/OperativeX/processmind-sub001/internal/jobs/pipeline/pipelinetest"
)

func newFixture(t *testing.T, rec *domain.ProcessRecord) (*Pipeline, *pipelinetest.RecordRepo, *pipelinetest.RunRepo, *pipelinetest.Media) {
	t.Helper()
	records := pipelinetest.NewRecordRepo(rec)
	runs := &pipelinetest.RunRepo{}
	media := &pipelinetest.Media{Root: t.TempDir()}
	return New(nil, testutil.Logger(t), records, runs, media), records, runs, media
}

func seedScratch(t *testing.T, media *pipelinetest.Media, rec *domain.ProcessRecord) string {
	t.Helper()
	dir := media.ScratchDir(rec.TenantID, rec.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir scratch: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "chunk_000.flac"), []byte("audio"), 0o644); err != nil {
		t.Fatalf("write scratch file: %v", err)
	}
	return dir
}

func TestCleanupRemovesScratchAndLabelsOriginalDeleted(t *testing.T) {
	rec := &domain.ProcessRecord{
		ID:                  uuid.New(),
		TenantID:            uuid.New(),
		OwnerUserID:         uuid.New(),
		Status:              domain.StatusCompleted,
		OriginalStorageType: domain.StorageTypeLocal,
	}
	p, records, _, media := newFixture(t, rec)
	dir := seedScratch(t, media, rec)

	job := pipelinetest.Job(rec, jobs.TypeLocalCleanup, domain.QueueCleanup, nil)
	if err := p.Run(pipelinetest.Ctx(job, records)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("scratch dir should be gone, stat err=%v", err)
	}
	// Only the re-encode was uploaded, so the original has no remote copy
	// left after cleanup.
	if got := records.Get(rec.ID); got.OriginalStorageType != domain.StorageTypeDeleted {
		t.Fatalf("original storage type should be %q, got %q", domain.StorageTypeDeleted, got.OriginalStorageType)
	}
	if job.Status != domain.JobStatusSucceeded {
		t.Fatalf("job should succeed, got %s", job.Status)
	}
}

func TestCleanupLabelsOriginalRemoteWhenCompressionSkipped(t *testing.T) {
	rec := &domain.ProcessRecord{
		ID:                  uuid.New(),
		TenantID:            uuid.New(),
		OwnerUserID:         uuid.New(),
		Status:              domain.StatusCompleted,
		OriginalStorageType: domain.StorageTypeLocal,
		SkippedCompression:  true,
	}
	p, records, _, media := newFixture(t, rec)
	seedScratch(t, media, rec)

	job := pipelinetest.Job(rec, jobs.TypeLocalCleanup, domain.QueueCleanup, nil)
	if err := p.Run(pipelinetest.Ctx(job, records)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// With compression skipped the original itself went to the bucket, so
	// it lives on remotely.
	if got := records.Get(rec.ID); got.OriginalStorageType != domain.StorageTypeRemote {
		t.Fatalf("original storage type should be %q, got %q", domain.StorageTypeRemote, got.OriginalStorageType)
	}
}

func TestCleanupDefersWhileAudioBranchRuns(t *testing.T) {
	rec := &domain.ProcessRecord{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		OwnerUserID: uuid.New(),
		Status:      domain.StatusCompleted,
	}
	p, records, runs, media := newFixture(t, rec)
	dir := seedScratch(t, media, rec)
	runs.Runnable = map[string]bool{jobs.TypeTranscribe: true}

	job := pipelinetest.Job(rec, jobs.TypeLocalCleanup, domain.QueueCleanup, nil)
	before := time.Now()
	if err := p.Run(pipelinetest.Ctx(job, records)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("scratch must survive while a sibling still needs it: %v", err)
	}
	if media.Cleanups != 0 {
		t.Fatalf("cleanup must not run while deferred, got %d", media.Cleanups)
	}
	if len(runs.Updated) != 1 {
		t.Fatalf("deferral should requeue via one update, got %d", len(runs.Updated))
	}
	upd := runs.Updated[0]
	if upd["status"] != domain.JobStatusQueued {
		t.Fatalf("deferred job should be queued again, got %v", upd["status"])
	}
	runAt, ok := upd["run_at"].(time.Time)
	if !ok || !runAt.After(before) {
		t.Fatalf("deferred job needs a future run_at, got %v", upd["run_at"])
	}
	if _, ok := upd["attempts"]; !ok {
		t.Fatal("deferral must refund the claimed attempt")
	}
}

func TestCleanupFailureIsBestEffort(t *testing.T) {
	rec := &domain.ProcessRecord{
		ID:                  uuid.New(),
		TenantID:            uuid.New(),
		OwnerUserID:         uuid.New(),
		Status:              domain.StatusCompleted,
		OriginalStorageType: domain.StorageTypeLocal,
	}
	p, records, _, media := newFixture(t, rec)
	seedScratch(t, media, rec)
	media.CleanupErr = os.ErrPermission

	job := pipelinetest.Job(rec, jobs.TypeLocalCleanup, domain.QueueCleanup, nil)
	if err := p.Run(pipelinetest.Ctx(job, records)); err != nil {
		t.Fatalf("a failed cleanup must not fail the job: %v", err)
	}
	if job.Status != domain.JobStatusSucceeded {
		t.Fatalf("job should succeed despite the cleanup error, got %s", job.Status)
	}
	// The files are still on disk, so the label must not claim otherwise.
	if got := records.Get(rec.ID); got.OriginalStorageType != domain.StorageTypeLocal {
		t.Fatalf("original storage type should stay %q, got %q", domain.StorageTypeLocal, got.OriginalStorageType)
	}
}
