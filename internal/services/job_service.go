package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/OperativeX/processmind-sub001/internal/data/repos"
	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/jobs"
	"github.com/OperativeX/processmind-sub001/internal/platform/ctxutil"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
)

// JobService turns pipeline stages into queued job_run rows. It is the only
// enqueue path; the worker pools pick the rows up from there. An optional
// Dispatcher is poked after every enqueue so push-style drivers (Temporal)
// can react without the 1s poll latency.
type JobService interface {
	EnqueueStage(dbc dbctx.Context, rec *domain.ProcessRecord, spec jobs.StageSpec, payload map[string]any) (*domain.JobRun, error)
	EnqueueStages(dbc dbctx.Context, rec *domain.ProcessRecord, specs []jobs.StageSpec, payload map[string]any) ([]*domain.JobRun, error)
	EnqueueDependents(dbc dbctx.Context, rec *domain.ProcessRecord, finishedJobType string, payload map[string]any) ([]*domain.JobRun, error)
	CancelPendingForRecord(dbc dbctx.Context, recordID uuid.UUID) (int64, error)
}

// Dispatcher is notified after a job row is committed to the queue. Nil is
// fine; the polling worker pools need no dispatcher.
type Dispatcher interface {
	JobQueued(dbc dbctx.Context, job *domain.JobRun)
}

type jobService struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	records  repos.ProcessRecordRepo
	notify   JobNotifier
	dispatch Dispatcher
}

func NewJobService(
	db *gorm.DB,
	baseLog *logger.Logger,
	repo repos.JobRunRepo,
	records repos.ProcessRecordRepo,
	notify JobNotifier,
	dispatch Dispatcher,
) JobService {
	return &jobService{
		db:       db,
		log:      baseLog.With("service", "JobService"),
		repo:     repo,
		records:  records,
		notify:   notify,
		dispatch: dispatch,
	}
}

func (s *jobService) EnqueueStage(dbc dbctx.Context, rec *domain.ProcessRecord, spec jobs.StageSpec, payload map[string]any) (*domain.JobRun, error) {
	created, err := s.EnqueueStages(dbc, rec, []jobs.StageSpec{spec}, payload)
	if err != nil {
		return nil, err
	}
	if len(created) == 0 {
		return nil, nil
	}
	return created[0], nil
}

// EnqueueStages creates one job_run per spec in a single batch and records
// the stage->job mapping on the process record, so log lines and SSE events
// can be correlated back to the row that drove them.
func (s *jobService) EnqueueStages(dbc dbctx.Context, rec *domain.ProcessRecord, specs []jobs.StageSpec, payload map[string]any) ([]*domain.JobRun, error) {
	if rec == nil || rec.ID == uuid.Nil {
		return nil, fmt.Errorf("missing record")
	}
	if rec.TenantID == uuid.Nil || rec.OwnerUserID == uuid.Nil {
		return nil, fmt.Errorf("missing tenant/owner on record %s", rec.ID)
	}
	if len(specs) == 0 {
		return []*domain.JobRun{}, nil
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	repoCtx := dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}

	payloadJSON := s.marshalPayload(dbc, rec, payload)

	now := time.Now()
	rows := make([]*domain.JobRun, 0, len(specs))
	for _, spec := range specs {
		if spec.JobType == "" || spec.Queue == "" {
			return nil, fmt.Errorf("stage spec missing job_type or queue")
		}
		recordID := rec.ID
		job := &domain.JobRun{
			ID:          uuid.New(),
			TenantID:    rec.TenantID,
			OwnerUserID: rec.OwnerUserID,
			Queue:       spec.Queue,
			JobType:     spec.JobType,
			RecordID:    &recordID,
			Status:      domain.JobStatusQueued,
			Stage:       "queued",
			Progress:    0,
			Priority:    spec.Priority,
			Message:     "Queued",
			Payload:     payloadJSON,
			Result:      datatypes.JSON([]byte(`{}`)),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if spec.Delay > 0 {
			runAt := now.Add(spec.Delay)
			job.RunAt = &runAt
		}
		rows = append(rows, job)
	}

	if _, err := s.repo.Create(repoCtx, rows); err != nil {
		return nil, fmt.Errorf("create jobs: %w", err)
	}

	jobMap := make(map[string]uuid.UUID, len(rows))
	for _, j := range rows {
		jobMap[j.JobType] = j.ID
	}
	if err := s.records.MergeJobs(repoCtx, rec.ID, jobMap); err != nil {
		s.log.Warn("MergeJobs failed", "record_id", rec.ID, "error", err)
	}

	for _, j := range rows {
		if s.notify != nil {
			s.notify.JobCreated(j.OwnerUserID, j)
		}
		if s.dispatch != nil {
			s.dispatch.JobQueued(dbc, j)
		}
		s.log.Info("Enqueued stage",
			"record_id", rec.ID,
			"job_id", j.ID,
			"job_type", j.JobType,
			"queue", j.Queue,
			"run_at", j.RunAt,
		)
	}
	return rows, nil
}

// EnqueueDependents fans out the successors of a finished stage per the
// stage graph. A stage with no successors enqueues nothing.
func (s *jobService) EnqueueDependents(dbc dbctx.Context, rec *domain.ProcessRecord, finishedJobType string, payload map[string]any) ([]*domain.JobRun, error) {
	specs := jobs.Dependents(finishedJobType)
	if len(specs) == 0 {
		return []*domain.JobRun{}, nil
	}
	return s.EnqueueStages(dbc, rec, specs, payload)
}

func (s *jobService) CancelPendingForRecord(dbc dbctx.Context, recordID uuid.UUID) (int64, error) {
	return s.repo.CancelPendingForRecord(dbc, recordID)
}

func (s *jobService) marshalPayload(dbc dbctx.Context, rec *domain.ProcessRecord, payload map[string]any) datatypes.JSON {
	merged := make(map[string]any, len(payload)+3)
	for k, v := range payload {
		merged[k] = v
	}
	merged["record_id"] = rec.ID.String()
	if td := ctxutil.GetTraceData(dbc.Ctx); td != nil {
		if td.TraceID != "" {
			if _, ok := merged["trace_id"]; !ok {
				merged["trace_id"] = td.TraceID
			}
		}
		if td.RequestID != "" {
			if _, ok := merged["request_id"]; !ok {
				merged["request_id"] = td.RequestID
			}
		}
	}
	b, err := json.Marshal(merged)
	if err != nil {
		return datatypes.JSON([]byte(`{}`))
	}
	return datatypes.JSON(b)
}
