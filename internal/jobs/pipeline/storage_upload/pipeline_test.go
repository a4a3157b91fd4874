package storage_upload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/OperativeX/processmind-sub001/internal/data/repos/testutil"
	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/jobs"
	"github.com/OperativeX/processmind-sub001/internal/jobs/pipeline/pipelinetest"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
)

func newFixture(t *testing.T, rec *domain.ProcessRecord) (*Pipeline, *pipelinetest.RecordRepo, *pipelinetest.Queue, *pipelinetest.Bucket, *pipelinetest.Usage) {
	t.Helper()
	records := pipelinetest.NewRecordRepo(rec)
	queue := &pipelinetest.Queue{}
	bucket := pipelinetest.NewBucket()
	usage := &pipelinetest.Usage{}
	return New(nil, testutil.Logger(t), records, queue, bucket, usage, nil), records, queue, bucket, usage
}

func seedProcessedFile(t *testing.T, size int) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "processed.mp4")
	if err := os.WriteFile(p, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write processed file: %v", err)
	}
	return p
}

func TestStorageUploadCompletesRecord(t *testing.T) {
	rec := &domain.ProcessRecord{
		ID:            uuid.New(),
		TenantID:      uuid.New(),
		OwnerUserID:   uuid.New(),
		Status:        domain.StatusCompressing,
		ProcessedPath: seedProcessedFile(t, 128),
	}
	p, records, queue, bucket, usage := newFixture(t, rec)

	job := pipelinetest.Job(rec, jobs.TypeStorageUpload, domain.QueueStorage, nil)
	if err := p.Run(pipelinetest.Ctx(job, records)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := records.Get(rec.ID)
	if got.Status != domain.StatusCompleted {
		t.Fatalf("record should complete, got %s", got.Status)
	}
	if got.ProgressPercent != domain.ProgressCompleted {
		t.Fatalf("progress should hit %d, got %d", domain.ProgressCompleted, got.ProgressPercent)
	}
	if got.ProcessedStorageType != domain.StorageTypeRemote || got.ProcessedRemoteKey == "" {
		t.Fatalf("remote placement missing: type=%q key=%q", got.ProcessedStorageType, got.ProcessedRemoteKey)
	}
	if got.ProcessedUploadedAt == nil {
		t.Fatal("upload timestamp missing")
	}
	if bucket.ObjectCount() != 1 {
		t.Fatalf("want 1 object in the bucket, got %d", bucket.ObjectCount())
	}
	if usage.Bytes != 128 {
		t.Fatalf("want 128 booked bytes, got %d", usage.Bytes)
	}
	if n := queue.DependentCount(jobs.TypeStorageUpload); n != 1 {
		t.Fatalf("cleanup should be queued once, got %d fan-outs", n)
	}
}

// A job reclaimed after a crash between the upload-complete write and the
// final completion runs the whole stage again. The ledger and the guarded
// completed transition keep the side effects single-shot: bytes are booked
// once and exactly one cleanup job is queued.
func TestStorageUploadRedeliveryKeepsSideEffectsSingleShot(t *testing.T) {
	rec := &domain.ProcessRecord{
		ID:            uuid.New(),
		TenantID:      uuid.New(),
		OwnerUserID:   uuid.New(),
		Status:        domain.StatusUploadComplete,
		ProcessedPath: seedProcessedFile(t, 256),
	}
	p, records, queue, bucket, usage := newFixture(t, rec)

	// The crashed first attempt got as far as booking the bytes. It never
	// reached the completion flip, so nothing was queued downstream.
	if applied, err := usage.RecordUpload(dbctx.Context{Ctx: context.Background()}, rec, jobs.TypeStorageUpload, 256); err != nil || !applied {
		t.Fatalf("seed usage event: applied=%v err=%v", applied, err)
	}

	redelivered := pipelinetest.Job(rec, jobs.TypeStorageUpload, domain.QueueStorage, nil)
	if err := p.Run(pipelinetest.Ctx(redelivered, records)); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	if got := records.Get(rec.ID); got.Status != domain.StatusCompleted {
		t.Fatalf("redelivery should complete the record, got %s", got.Status)
	}
	if usage.EventCount() != 1 {
		t.Fatalf("bytes must be booked exactly once, got %d ledger events", usage.EventCount())
	}
	if usage.Bytes != 256 {
		t.Fatalf("want 256 booked bytes, got %d", usage.Bytes)
	}
	if n := queue.DependentCount(jobs.TypeStorageUpload); n != 1 {
		t.Fatalf("exactly one cleanup fan-out expected, got %d", n)
	}
	if bucket.ObjectCount() != 1 {
		t.Fatalf("the deterministic key must overwrite, got %d objects", bucket.ObjectCount())
	}
	if redelivered.Status != domain.JobStatusSucceeded {
		t.Fatalf("redelivered job should succeed, got %s", redelivered.Status)
	}
}

func TestStorageUploadSkipsTerminalRecord(t *testing.T) {
	rec := &domain.ProcessRecord{
		ID:            uuid.New(),
		TenantID:      uuid.New(),
		OwnerUserID:   uuid.New(),
		Status:        domain.StatusFailed,
		ProcessedPath: seedProcessedFile(t, 64),
	}
	p, records, queue, bucket, usage := newFixture(t, rec)

	job := pipelinetest.Job(rec, jobs.TypeStorageUpload, domain.QueueStorage, nil)
	if err := p.Run(pipelinetest.Ctx(job, records)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if bucket.Uploads != 0 {
		t.Fatalf("failed record must not upload, got %d attempts", bucket.Uploads)
	}
	if usage.EventCount() != 0 {
		t.Fatalf("failed record must not book bytes, got %d events", usage.EventCount())
	}
	if n := queue.DependentCount(jobs.TypeStorageUpload); n != 0 {
		t.Fatalf("skip must not queue cleanup, got %d", n)
	}
	if job.Status != domain.JobStatusSucceeded {
		t.Fatalf("skip should still finish the job, got %s", job.Status)
	}
}

func TestStorageUploadMissingProcessedFileFails(t *testing.T) {
	rec := &domain.ProcessRecord{
		ID:            uuid.New(),
		TenantID:      uuid.New(),
		OwnerUserID:   uuid.New(),
		Status:        domain.StatusCompressing,
		ProcessedPath: filepath.Join(t.TempDir(), "missing.mp4"),
	}
	p, records, _, _, usage := newFixture(t, rec)

	job := pipelinetest.Job(rec, jobs.TypeStorageUpload, domain.QueueStorage, nil)
	err := p.Run(pipelinetest.Ctx(job, records))
	if err == nil {
		t.Fatal("missing processed file must fail the stage")
	}
	if usage.EventCount() != 0 {
		t.Fatalf("nothing should be booked on failure, got %d events", usage.EventCount())
	}
}
