package worker

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/OperativeX/processmind-sub001/internal/data/repos"
	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/jobs/runtime"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
	"github.com/OperativeX/processmind-sub001/internal/platform/envutil"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
	"github.com/OperativeX/processmind-sub001/internal/platform/perr"
	"github.com/OperativeX/processmind-sub001/internal/services"
)

// Worker drains the job queues. Each queue gets its own goroutine pool so
// a burst on one queue cannot starve the others; upload concurrency is
// deliberately higher than transcode concurrency.
type Worker struct {
	db           *gorm.DB
	log          *logger.Logger
	repo         repos.JobRunRepo
	records      repos.ProcessRecordRepo
	registry     *runtime.Registry
	notify       services.JobNotifier
	notifyRecord services.RecordNotifier

	maxAttempts  int
	retryBase    time.Duration
	staleRunning time.Duration
}

func NewWorker(
	db *gorm.DB,
	baseLog *logger.Logger,
	repo repos.JobRunRepo,
	records repos.ProcessRecordRepo,
	registry *runtime.Registry,
	notify services.JobNotifier,
	notifyRecord services.RecordNotifier,
) *Worker {
	return &Worker{
		db:           db,
		log:          baseLog.With("component", "JobWorker"),
		repo:         repo,
		records:      records,
		registry:     registry,
		notify:       notify,
		notifyRecord: notifyRecord,
		maxAttempts:  envutil.Int("MAX_JOB_ATTEMPTS", 3),
		retryBase:    envutil.Duration("JOB_RETRY_BASE", 30*time.Second),
		staleRunning: envutil.Duration("JOB_STALE_RUNNING", 10*time.Minute),
	}
}

func queueConcurrency(queue string) int {
	def := map[string]int{
		domain.QueueAudio:   2,
		domain.QueueVideo:   2,
		domain.QueueStorage: 5,
		domain.QueueCleanup: 1,
	}
	key := "WORKER_" + strings.ToUpper(queue) + "_CONCURRENCY"
	n := envutil.Int(key, def[queue])
	if n < 1 {
		n = 1
	}
	return n
}

// Start launches the pools for the given queues and returns immediately.
func (w *Worker) Start(ctx context.Context, queues []string) {
	for _, q := range queues {
		concurrency := queueConcurrency(q)
		w.log.Info("Starting worker pool", "queue", q, "concurrency", concurrency)
		for i := 0; i < concurrency; i++ {
			go w.runLoop(ctx, q, i+1)
		}
	}
}

func (w *Worker) runLoop(ctx context.Context, queue string, workerID int) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "queue", queue, "worker_id", workerID)
			return
		case <-ticker.C:
			job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, queue, w.maxAttempts, w.staleRunning)
			if err != nil {
				w.log.Warn("ClaimNextRunnable failed", "queue", queue, "worker_id", workerID, "error", err)
				continue
			}
			if job == nil {
				continue
			}
			w.execute(ctx, queue, workerID, job)
		}
	}
}

// Tick claims and runs at most one job from the queue. Used by the
// Temporal dispatch mode, which drives the same DB queue from workflow
// activities instead of the polling pools.
func (w *Worker) Tick(ctx context.Context, queue string) (bool, error) {
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, queue, w.maxAttempts, w.staleRunning)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.execute(ctx, queue, 0, job)
	return true, nil
}

func (w *Worker) execute(ctx context.Context, queue string, workerID int, job *domain.JobRun) {
	h, ok := w.registry.Get(job.JobType)
	jc := runtime.NewContext(ctx, w.db, job, w.repo, w.records, w.notify)

	if !ok {
		w.log.Warn("No handler registered for job_type",
			"queue", queue,
			"worker_id", workerID,
			"job_type", job.JobType,
			"job_id", job.ID,
		)
		jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
		return
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	go w.heartbeatLoop(hbCtx, job)

	var runErr error
	func() {
		defer stopHeartbeat()
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Job handler panic",
					"queue", queue,
					"worker_id", workerID,
					"job_id", job.ID,
					"job_type", job.JobType,
					"panic", r,
				)
				runErr = errFromRecover(r)
			}
		}()
		runErr = h.Run(jc)
	}()

	if runErr == nil {
		return
	}
	w.settleFailure(ctx, jc, job, runErr)
}

// settleFailure decides between retry and terminal failure. Every failed
// attempt is appended to the record's error log; only the terminal one
// fails the record itself.
func (w *Worker) settleFailure(ctx context.Context, jc *runtime.Context, job *domain.JobRun, runErr error) {
	dbc := dbctx.Context{Ctx: ctx}

	if recID, ok := jc.RecordID(); ok {
		_ = w.records.AppendError(dbc, recID, domain.ProcessError{
			Stage:   job.JobType,
			Message: runErr.Error(),
			Context: map[string]any{"job_id": job.ID, "attempt": job.Attempts},
		})
	}

	if perr.Retryable(runErr) && job.Attempts < w.maxAttempts {
		delay := retryBackoff(w.retryBase, job.Attempts)
		w.log.Warn("Job attempt failed; scheduling retry",
			"job_id", job.ID,
			"job_type", job.JobType,
			"attempt", job.Attempts,
			"delay", delay,
			"error", runErr,
		)
		if err := w.repo.ScheduleRetry(dbc, job.ID, time.Now().Add(delay), runErr.Error()); err != nil {
			w.log.Error("ScheduleRetry failed", "job_id", job.ID, "error", err)
			jc.Fail(job.JobType, runErr)
		}
		return
	}

	w.log.Error("Job terminally failed",
		"job_id", job.ID,
		"job_type", job.JobType,
		"attempts", job.Attempts,
		"fatal", perr.IsFatal(runErr),
		"error", runErr,
	)
	jc.Fail(job.JobType, runErr)
	w.failRecord(ctx, jc, job, runErr)
}

// failRecord flips the process record to failed unless a terminal status
// already won, then cancels the record's queued siblings.
func (w *Worker) failRecord(ctx context.Context, jc *runtime.Context, job *domain.JobRun, runErr error) {
	recID, ok := jc.RecordID()
	if !ok {
		return
	}
	dbc := dbctx.Context{Ctx: ctx}
	flipped, err := w.records.UpdateFieldsUnlessStatus(dbc, recID,
		domain.BlockedSources(domain.StatusFailed),
		map[string]interface{}{
			"status":           domain.StatusFailed,
			"progress_stage":   job.JobType,
			"progress_message": runErr.Error(),
		})
	if err != nil {
		w.log.Error("Failed to mark record failed", "record_id", recID, "error", err)
		return
	}
	if !flipped {
		return
	}
	if n, err := w.repo.CancelPendingForRecord(dbc, recID); err != nil {
		w.log.Warn("CancelPendingForRecord failed", "record_id", recID, "error", err)
	} else if n > 0 {
		w.log.Info("Canceled pending sibling jobs", "record_id", recID, "count", n)
	}
	if w.notifyRecord != nil {
		w.notifyRecord.RecordFailed(job.OwnerUserID, recID, job.JobType, runErr.Error())
	}
}

func (w *Worker) heartbeatLoop(ctx context.Context, job *domain.JobRun) {
	interval := envutil.Duration("JOB_HEARTBEAT_INTERVAL", 30*time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.repo.Heartbeat(dbctx.Context{Ctx: ctx}, job.ID); err != nil {
				w.log.Warn("Heartbeat failed", "job_id", job.ID, "error", err)
			}
		}
	}
}

// retryBackoff is exponential in the attempt count with up to 20% jitter,
// capped at 10 minutes.
func retryBackoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	max := 10 * time.Minute
	if base <= 0 {
		base = time.Second
	}
	// Doubling instead of shifting: a shift by a large attempt count
	// overflows time.Duration and skips the cap.
	d := base
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d)/5 + 1))
	return d + jitter
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
