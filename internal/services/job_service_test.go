package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/OperativeX/processmind-sub001/internal/data/repos"
	"github.com/OperativeX/processmind-sub001/internal/data/repos/testutil"
	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/jobs"
	"github.com/OperativeX/processmind-sub001/internal/platform/ctxutil"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
)

type captureDispatcher struct {
	queued []*domain.JobRun
}

func (d *captureDispatcher) JobQueued(_ dbctx.Context, job *domain.JobRun) {
	d.queued = append(d.queued, job)
}

func TestEnqueueStagesCreatesRowsAndMergesJobs(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)

	ctx := ctxutil.WithTraceData(context.Background(), &ctxutil.TraceData{TraceID: "trace-1", RequestID: "req-1"})
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	jobRepo := repos.NewJobRunRepo(db, log)
	recRepo := repos.NewProcessRecordRepo(db, log)
	dispatch := &captureDispatcher{}
	svc := NewJobService(db, log, jobRepo, recRepo, nil, dispatch)

	rec := testutil.SeedProcessRecord(t, ctx, tx, uuid.New(), uuid.New())

	created, err := svc.EnqueueStages(dbc, rec, jobs.EntryStages(), map[string]any{"original_path": rec.OriginalPath})
	if err != nil {
		t.Fatalf("EnqueueStages: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("want 2 jobs, got %d", len(created))
	}

	byType := map[string]*domain.JobRun{}
	for _, j := range created {
		byType[j.JobType] = j
	}
	audio, ok := byType[jobs.TypeAudioExtract]
	if !ok || audio.Queue != domain.QueueAudio {
		t.Fatalf("audio_extract missing or on wrong queue: %+v", audio)
	}
	if audio.Status != domain.JobStatusQueued || audio.RunAt != nil {
		t.Fatalf("entry stage should be queued and immediately runnable: %+v", audio)
	}
	if audio.RecordID == nil || *audio.RecordID != rec.ID {
		t.Fatalf("job not linked to record: %+v", audio.RecordID)
	}

	var payload map[string]any
	if err := json.Unmarshal(audio.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["record_id"] != rec.ID.String() {
		t.Fatalf("payload record_id = %v", payload["record_id"])
	}
	if payload["trace_id"] != "trace-1" || payload["request_id"] != "req-1" {
		t.Fatalf("trace ids not propagated into payload: %v", payload)
	}
	if payload["original_path"] != rec.OriginalPath {
		t.Fatalf("caller payload dropped: %v", payload)
	}

	reloaded, err := recRepo.GetByID(dbc, rec.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	var jobMap map[string]string
	if err := json.Unmarshal(reloaded.Jobs, &jobMap); err != nil {
		t.Fatalf("jobs map: %v", err)
	}
	if jobMap[jobs.TypeAudioExtract] != audio.ID.String() {
		t.Fatalf("record jobs map missing audio_extract: %v", jobMap)
	}
	if jobMap[jobs.TypeVideoCompress] == "" {
		t.Fatalf("record jobs map missing video_compress: %v", jobMap)
	}

	if len(dispatch.queued) != 2 {
		t.Fatalf("dispatcher should see every enqueued job, got %d", len(dispatch.queued))
	}
}

func TestEnqueueStagesHonorsDelay(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	svc := NewJobService(db, log, repos.NewJobRunRepo(db, log), repos.NewProcessRecordRepo(db, log), nil, nil)
	rec := testutil.SeedProcessRecord(t, ctx, tx, uuid.New(), uuid.New())

	spec := jobs.StageSpec{JobType: jobs.TypeLocalCleanup, Queue: domain.QueueCleanup, Delay: 10 * time.Minute}
	before := time.Now()
	created, err := svc.EnqueueStages(dbc, rec, []jobs.StageSpec{spec}, nil)
	if err != nil {
		t.Fatalf("EnqueueStages: %v", err)
	}
	if len(created) != 1 || created[0].RunAt == nil {
		t.Fatalf("delayed stage must carry run_at: %+v", created)
	}
	if got := created[0].RunAt.Sub(before); got < 9*time.Minute {
		t.Fatalf("run_at too soon: %v", got)
	}
}

func TestEnqueueDependentsStopsAtGraphTail(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	svc := NewJobService(db, log, repos.NewJobRunRepo(db, log), repos.NewProcessRecordRepo(db, log), nil, nil)
	rec := testutil.SeedProcessRecord(t, ctx, tx, uuid.New(), uuid.New())

	created, err := svc.EnqueueDependents(dbc, rec, jobs.TypeAIInsights, nil)
	if err != nil {
		t.Fatalf("EnqueueDependents: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("graph tail should enqueue nothing, got %d", len(created))
	}
}
