package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
	"github.com/OperativeX/processmind-sub001/internal/platform/perr"
)

// ProcessRecordRepo is the single write surface for process_record rows.
// Every mutation is field-scoped so the audio branch, the video branch and
// the coordinator can write concurrently without clobbering each other.
type ProcessRecordRepo interface {
	Create(dbc dbctx.Context, rec *domain.ProcessRecord) (*domain.ProcessRecord, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.ProcessRecord, error)
	GetForTenant(dbc dbctx.Context, tenantID, id uuid.UUID) (*domain.ProcessRecord, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowed []domain.ProcessStatus, updates map[string]interface{}) (bool, error)
	SetProgress(dbc dbctx.Context, id uuid.UUID, percent int, stage, message string) error
	AppendError(dbc dbctx.Context, id uuid.UUID, procErr domain.ProcessError) error
	MergeJobs(dbc dbctx.Context, id uuid.UUID, jobs map[string]uuid.UUID) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type processRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProcessRecordRepo(db *gorm.DB, baseLog *logger.Logger) ProcessRecordRepo {
	return &processRecordRepo{
		db:  db,
		log: baseLog.With("repo", "ProcessRecordRepo"),
	}
}

func (r *processRecordRepo) Create(dbc dbctx.Context, rec *domain.ProcessRecord) (*domain.ProcessRecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if rec == nil {
		return nil, fmt.Errorf("record required: %w", perr.ErrInvalidArgument)
	}
	if rec.TenantID == uuid.Nil || rec.OwnerUserID == uuid.Nil {
		return nil, fmt.Errorf("tenant and owner required: %w", perr.ErrInvalidArgument)
	}
	if rec.Status == "" {
		rec.Status = domain.StatusUploaded
	}
	if err := transaction.WithContext(dbc.Ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *processRecordRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.ProcessRecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, perr.ErrNotFound
	}
	var rec domain.ProcessRecord
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, perr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *processRecordRepo) GetForTenant(dbc dbctx.Context, tenantID, id uuid.UUID) (*domain.ProcessRecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if tenantID == uuid.Nil || id == uuid.Nil {
		return nil, perr.ErrNotFound
	}
	var rec domain.ProcessRecord
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, perr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *processRecordRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&domain.ProcessRecord{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateFieldsUnlessStatus applies updates only while the record is not in
// one of the disallowed statuses. This is how "failed is terminal" holds
// under racing branches: late writers guard with [failed] and their update
// silently misses.
func (r *processRecordRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowed []domain.ProcessStatus, updates map[string]interface{}) (bool, error) {
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
		Model(&domain.ProcessRecord{}).
		Where("id = ?", id)
	if len(disallowed) == 1 {
		q = q.Where("status <> ?", disallowed[0])
	} else if len(disallowed) > 1 {
		q = q.Where("status NOT IN ?", disallowed)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetProgress advances progress monotonically. GREATEST keeps a stale
// worker's checkpoint from moving the bar backwards; terminal records are
// never touched.
func (r *processRecordRepo) SetProgress(dbc dbctx.Context, id uuid.UUID, percent int, stage, message string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&domain.ProcessRecord{}).
		Where("id = ? AND status NOT IN ?", id, []domain.ProcessStatus{domain.StatusCompleted, domain.StatusFailed}).
		Updates(map[string]interface{}{
			"progress_percent": gorm.Expr("GREATEST(progress_percent, ?)", percent),
			"progress_stage":   stage,
			"progress_message": message,
			"updated_at":       time.Now(),
		}).Error
}

func (r *processRecordRepo) AppendError(dbc dbctx.Context, id uuid.UUID, procErr domain.ProcessError) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if procErr.Timestamp.IsZero() {
		procErr.Timestamp = time.Now().UTC()
	}
	raw, err := json.Marshal(procErr)
	if err != nil {
		return fmt.Errorf("marshal process error: %w", err)
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&domain.ProcessRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"errors":     gorm.Expr(`COALESCE(errors, '[]'::jsonb) || ?::jsonb`, string(raw)),
			"updated_at": time.Now(),
		}).Error
}

func (r *processRecordRepo) MergeJobs(dbc dbctx.Context, id uuid.UUID, jobs map[string]uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(jobs) == 0 {
		return nil
	}
	raw, err := json.Marshal(jobs)
	if err != nil {
		return fmt.Errorf("marshal jobs map: %w", err)
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&domain.ProcessRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"jobs":       gorm.Expr(`COALESCE(jobs, '{}'::jsonb) || ?::jsonb`, string(raw)),
			"updated_at": time.Now(),
		}).Error
}

func (r *processRecordRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&domain.ProcessRecord{}).Error
}
