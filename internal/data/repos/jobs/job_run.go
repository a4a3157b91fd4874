package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
)

type JobRunRepo interface {
	Create(dbc dbctx.Context, jobs []*domain.JobRun) ([]*domain.JobRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.JobRun, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.JobRun, error)
	ClaimNextRunnable(dbc dbctx.Context, queue string, maxAttempts int, staleRunning time.Duration) (*domain.JobRun, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
	ScheduleRetry(dbc dbctx.Context, id uuid.UUID, runAt time.Time, lastError string) error
	HasRunnableForRecord(dbc dbctx.Context, recordID uuid.UUID, jobType string) (bool, error)
	CancelPendingForRecord(dbc dbctx.Context, recordID uuid.UUID) (int64, error)
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{
		db:  db,
		log: baseLog.With("repo", "JobRunRepo"),
	}
}

func (r *jobRunRepo) Create(dbc dbctx.Context, jobs []*domain.JobRun) ([]*domain.JobRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(jobs) == 0 {
		return []*domain.JobRun{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *jobRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.JobRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job domain.JobRun
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *jobRunRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.JobRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.JobRun
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimNextRunnable picks one job from the queue and flips it to running
// inside a single transaction. SKIP LOCKED lets concurrent workers claim
// without serializing on each other. Runnable means:
//   - queued and due (run_at unset or in the past), or
//   - running with a stale heartbeat (the previous worker died)
//
// both bounded by maxAttempts. Higher priority wins, then age.
func (r *jobRunRepo) ClaimNextRunnable(dbc dbctx.Context, queue string, maxAttempts int, staleRunning time.Duration) (*domain.JobRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	staleCutoff := now.Add(-staleRunning)
	var claimed *domain.JobRun
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var job domain.JobRun
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
        queue = ?
        AND attempts < ?
        AND (
          (status = ? AND (run_at IS NULL OR run_at <= ?))
          OR (
            status = ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
          )
        )
      `, queue, maxAttempts, domain.JobStatusQueued, now, domain.JobStatusRunning, staleCutoff).
			Order("priority DESC, created_at ASC")
		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&domain.JobRun{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       domain.JobStatusRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		job.Status = domain.JobStatusRunning
		job.Attempts++
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&domain.JobRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *jobRunRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}

	q := transaction.WithContext(dbc.Ctx).
		Model(&domain.JobRun{}).
		Where("id = ?", id)
	if len(disallowedStatuses) == 1 {
		q = q.Where("status <> ?", disallowedStatuses[0])
	} else if len(disallowedStatuses) > 1 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRunRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(dbc.Ctx).
		Model(&domain.JobRun{}).
		Where("id = ? AND status = ?", id, domain.JobStatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

// ScheduleRetry re-queues a failed attempt with a future run_at. Claiming
// ignores queued jobs until run_at passes, which is the backoff.
func (r *jobRunRepo) ScheduleRetry(dbc dbctx.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(dbc.Ctx).
		Model(&domain.JobRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        domain.JobStatusQueued,
			"run_at":        runAt,
			"error":         lastError,
			"last_error_at": now,
			"locked_at":     nil,
			"heartbeat_at":  nil,
			"updated_at":    now,
		}).Error
}

func (r *jobRunRepo) HasRunnableForRecord(dbc dbctx.Context, recordID uuid.UUID, jobType string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if recordID == uuid.Nil {
		return false, nil
	}
	q := transaction.WithContext(dbc.Ctx).
		Model(&domain.JobRun{}).
		Where("record_id = ? AND status IN ?", recordID, []string{domain.JobStatusQueued, domain.JobStatusRunning})
	if jobType != "" {
		q = q.Where("job_type = ?", jobType)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CancelPendingForRecord cancels every queued job for a record. Running
// jobs are left alone; they notice the record's terminal status on their
// next guarded write.
func (r *jobRunRepo) CancelPendingForRecord(dbc dbctx.Context, recordID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if recordID == uuid.Nil {
		return 0, nil
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&domain.JobRun{}).
		Where("record_id = ? AND status = ?", recordID, domain.JobStatusQueued).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusCanceled,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
