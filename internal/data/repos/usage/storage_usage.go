package usage

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
	"github.com/OperativeX/processmind-sub001/internal/platform/perr"
)

// StorageUsageRepo maintains the usage counters and their idempotency
// ledger. ApplyEvent is the only increment path; reconciliation goes
// through OverwriteTotals.
type StorageUsageRepo interface {
	ApplyEvent(dbc dbctx.Context, ev *domain.StorageUsageEvent) (bool, error)
	Totals(dbc dbctx.Context, tenantID, ownerUserID uuid.UUID) (*domain.StorageUsage, error)
	Month(dbc dbctx.Context, tenantID, ownerUserID uuid.UUID, month string) (*domain.StorageUsageMonth, error)
	OverwriteTotals(dbc dbctx.Context, tenantID, ownerUserID uuid.UUID, totalBytes, fileCount int64) error
}

type storageUsageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStorageUsageRepo(db *gorm.DB, baseLog *logger.Logger) StorageUsageRepo {
	return &storageUsageRepo{
		db:  db,
		log: baseLog.With("repo", "StorageUsageRepo"),
	}
}

// ApplyEvent inserts the ledger row and, when it is new, applies the
// increment to the totals and the monthly aggregate in the same
// transaction. A conflicting ledger row means this {record,stage,direction}
// was already counted; the whole call becomes a no-op and returns false.
// Removals clamp at zero instead of going negative.
func (r *storageUsageRepo) ApplyEvent(dbc dbctx.Context, ev *domain.StorageUsageEvent) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if ev == nil {
		return false, fmt.Errorf("event required: %w", perr.ErrInvalidArgument)
	}
	if ev.TenantID == uuid.Nil || ev.OwnerUserID == uuid.Nil || ev.RecordID == uuid.Nil {
		return false, fmt.Errorf("tenant, owner and record required: %w", perr.ErrInvalidArgument)
	}
	if ev.Direction != domain.UsageDirectionAdd && ev.Direction != domain.UsageDirectionRemove {
		return false, fmt.Errorf("direction must be add or remove: %w", perr.ErrInvalidArgument)
	}
	if ev.Bytes < 0 {
		return false, fmt.Errorf("bytes must be >= 0: %w", perr.ErrInvalidArgument)
	}

	applied := false
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		res := txx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "record_id"}, {Name: "stage"}, {Name: "direction"}},
			DoNothing: true,
		}).Create(ev)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Already counted on a previous delivery.
			return nil
		}
		applied = true

		if err := r.bumpTotals(txx, ev); err != nil {
			return err
		}
		return r.bumpMonth(txx, ev)
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (r *storageUsageRepo) bumpTotals(txx *gorm.DB, ev *domain.StorageUsageEvent) error {
	row := &domain.StorageUsage{
		ID:          uuid.New(),
		TenantID:    ev.TenantID,
		OwnerUserID: ev.OwnerUserID,
	}
	if ev.Direction == domain.UsageDirectionAdd {
		row.TotalBytes = ev.Bytes
		row.FileCount = 1
		return txx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "owner_user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total_bytes": gorm.Expr("storage_usage.total_bytes + EXCLUDED.total_bytes"),
				"file_count":  gorm.Expr("storage_usage.file_count + EXCLUDED.file_count"),
				"updated_at":  time.Now(),
			}),
		}).Create(row).Error
	}
	return txx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "owner_user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_bytes": gorm.Expr("GREATEST(storage_usage.total_bytes - ?, 0)", ev.Bytes),
			"file_count":  gorm.Expr("GREATEST(storage_usage.file_count - 1, 0)"),
			"updated_at":  time.Now(),
		}),
	}).Create(row).Error
}

func (r *storageUsageRepo) bumpMonth(txx *gorm.DB, ev *domain.StorageUsageEvent) error {
	month := ev.CreatedAt
	if month.IsZero() {
		month = time.Now().UTC()
	}
	row := &domain.StorageUsageMonth{
		ID:          uuid.New(),
		TenantID:    ev.TenantID,
		OwnerUserID: ev.OwnerUserID,
		Month:       month.UTC().Format("2006-01"),
	}
	if ev.Direction == domain.UsageDirectionAdd {
		row.BytesAdded = ev.Bytes
		row.FilesAdded = 1
	} else {
		row.BytesRemoved = ev.Bytes
		row.FilesRemoved = 1
	}
	return txx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "owner_user_id"}, {Name: "month"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"bytes_added":   gorm.Expr("storage_usage_month.bytes_added + EXCLUDED.bytes_added"),
			"bytes_removed": gorm.Expr("storage_usage_month.bytes_removed + EXCLUDED.bytes_removed"),
			"files_added":   gorm.Expr("storage_usage_month.files_added + EXCLUDED.files_added"),
			"files_removed": gorm.Expr("storage_usage_month.files_removed + EXCLUDED.files_removed"),
			"updated_at":    time.Now(),
		}),
	}).Create(row).Error
}

func (r *storageUsageRepo) Totals(dbc dbctx.Context, tenantID, ownerUserID uuid.UUID) (*domain.StorageUsage, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if tenantID == uuid.Nil || ownerUserID == uuid.Nil {
		return nil, perr.ErrNotFound
	}
	var row domain.StorageUsage
	err := transaction.WithContext(dbc.Ctx).
		Where("tenant_id = ? AND owner_user_id = ?", tenantID, ownerUserID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Zero usage is a valid answer, not an error.
		return &domain.StorageUsage{TenantID: tenantID, OwnerUserID: ownerUserID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *storageUsageRepo) Month(dbc dbctx.Context, tenantID, ownerUserID uuid.UUID, month string) (*domain.StorageUsageMonth, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if tenantID == uuid.Nil || ownerUserID == uuid.Nil || month == "" {
		return nil, perr.ErrNotFound
	}
	var row domain.StorageUsageMonth
	err := transaction.WithContext(dbc.Ctx).
		Where("tenant_id = ? AND owner_user_id = ? AND month = ?", tenantID, ownerUserID, month).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.StorageUsageMonth{TenantID: tenantID, OwnerUserID: ownerUserID, Month: month}, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// OverwriteTotals replaces the counters with values computed from a bucket
// listing. Running it twice with the same listing is a no-op, which is what
// makes reconciliation safe to re-run.
func (r *storageUsageRepo) OverwriteTotals(dbc dbctx.Context, tenantID, ownerUserID uuid.UUID, totalBytes, fileCount int64) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if tenantID == uuid.Nil || ownerUserID == uuid.Nil {
		return fmt.Errorf("tenant and owner required: %w", perr.ErrInvalidArgument)
	}
	if totalBytes < 0 {
		totalBytes = 0
	}
	if fileCount < 0 {
		fileCount = 0
	}
	row := &domain.StorageUsage{
		ID:          uuid.New(),
		TenantID:    tenantID,
		OwnerUserID: ownerUserID,
		TotalBytes:  totalBytes,
		FileCount:   fileCount,
	}
	return transaction.WithContext(dbc.Ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "owner_user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_bytes": totalBytes,
			"file_count":  fileCount,
			"updated_at":  time.Now(),
		}),
	}).Create(row).Error
}
