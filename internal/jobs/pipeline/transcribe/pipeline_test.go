package transcribe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/OperativeX/processmind-sub001/internal/data/repos/testutil"
	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/jobs"
	"github.com/OperativeX/processmind-sub001/internal/jobs/pipeline/pipelinetest"
	"github.com/OperativeX/processmind-sub001/internal/services"
)

func writeChunks(t *testing.T, dir string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		name := filepath.Join(dir, "chunk_00"+string(rune('0'+i))+".flac")
		if err := os.WriteFile(name, []byte("audio"), 0o644); err != nil {
			t.Fatalf("write chunk: %v", err)
		}
	}
}

func newFixture(t *testing.T, rec *domain.ProcessRecord) (*Pipeline, *pipelinetest.RecordRepo, *pipelinetest.Queue, *pipelinetest.Speech) {
	t.Helper()
	records := pipelinetest.NewRecordRepo(rec)
	queue := &pipelinetest.Queue{}
	speech := &pipelinetest.Speech{
		Result: services.TranscriptionResult{
			Text: "hello world",
			Segments: []domain.Segment{
				{Text: "hello world"},
			},
			Provider: "test",
		},
	}
	return New(nil, testutil.Logger(t), records, queue, speech), records, queue, speech
}

// The video branch can complete the record while the audio branch is still
// transcribing. A completed record must not stop the transcript from
// landing; only a failed record does.
func TestTranscribeWritesTranscriptOnCompletedRecord(t *testing.T) {
	rec := &domain.ProcessRecord{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		OwnerUserID: uuid.New(),
		Status:      domain.StatusCompleted,
	}
	p, records, queue, speech := newFixture(t, rec)

	chunkDir := t.TempDir()
	writeChunks(t, chunkDir, 2)

	job := pipelinetest.Job(rec, jobs.TypeTranscribe, domain.QueueAudio, map[string]any{
		"chunk_dir": chunkDir,
		"language":  "en-US",
	})
	jc := pipelinetest.Ctx(job, records)

	if err := p.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if speech.Calls != 1 {
		t.Fatalf("speech provider should be invoked once, got %d", speech.Calls)
	}
	got := records.Get(rec.ID)
	if got.TranscriptText != "hello world" {
		t.Fatalf("transcript should land on the completed record, got %q", got.TranscriptText)
	}
	if len(got.Transcript) == 0 {
		t.Fatal("segments should be stored alongside the text")
	}
	if got.Status != domain.StatusCompleted {
		t.Fatalf("a field-scoped write must not move the status, got %s", got.Status)
	}
	if n := queue.DependentCount(jobs.TypeTranscribe); n != 1 {
		t.Fatalf("dependents should fan out once, got %d", n)
	}
	if job.Status != domain.JobStatusSucceeded {
		t.Fatalf("job should succeed, got %s", job.Status)
	}
}

func TestTranscribeSkipsFailedRecord(t *testing.T) {
	rec := &domain.ProcessRecord{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		OwnerUserID: uuid.New(),
		Status:      domain.StatusFailed,
	}
	p, records, queue, speech := newFixture(t, rec)

	chunkDir := t.TempDir()
	writeChunks(t, chunkDir, 1)

	job := pipelinetest.Job(rec, jobs.TypeTranscribe, domain.QueueAudio, map[string]any{
		"chunk_dir": chunkDir,
	})
	jc := pipelinetest.Ctx(job, records)

	if err := p.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if speech.Calls != 0 {
		t.Fatalf("failed record must not reach the speech provider, got %d calls", speech.Calls)
	}
	if got := records.Get(rec.ID); got.TranscriptText != "" {
		t.Fatalf("no transcript expected on a failed record, got %q", got.TranscriptText)
	}
	if n := queue.DependentCount(jobs.TypeTranscribe); n != 0 {
		t.Fatalf("skip must not fan out, got %d", n)
	}
	if job.Status != domain.JobStatusSucceeded {
		t.Fatalf("skip should still finish the job, got %s", job.Status)
	}
}
