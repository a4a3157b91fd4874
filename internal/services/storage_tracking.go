package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/OperativeX/processmind-sub001/internal/data/repos"
	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
	"github.com/OperativeX/processmind-sub001/internal/platform/gcp"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
)

// StorageTrackingService is the accounting facade over the usage counters.
// All increments funnel through the event ledger, so calling RecordUpload
// twice for the same record+stage counts once; Reconcile re-derives the
// totals from the bucket listing when the counters are in doubt.
type StorageTrackingService interface {
	RecordUpload(dbc dbctx.Context, rec *domain.ProcessRecord, stage string, bytes int64) (bool, error)
	RecordRemoval(dbc dbctx.Context, rec *domain.ProcessRecord, stage string, bytes int64) (bool, error)
	Totals(dbc dbctx.Context, tenantID, ownerUserID uuid.UUID) (*domain.StorageUsage, error)
	Month(dbc dbctx.Context, tenantID, ownerUserID uuid.UUID, month time.Month, year int) (*domain.StorageUsageMonth, error)
	Reconcile(dbc dbctx.Context, tenantID, ownerUserID uuid.UUID) (*ReconcileResult, error)
}

type ReconcileResult struct {
	TenantID    uuid.UUID `json:"tenant_id"`
	OwnerUserID uuid.UUID `json:"owner_user_id"`
	TotalBytes  int64     `json:"total_bytes"`
	FileCount   int64     `json:"file_count"`
	DriftBytes  int64     `json:"drift_bytes"`
	DriftFiles  int64     `json:"drift_files"`
}

type storageTrackingService struct {
	db     *gorm.DB
	log    *logger.Logger
	usage  repos.StorageUsageRepo
	bucket gcp.BucketService
}

func NewStorageTrackingService(
	db *gorm.DB,
	baseLog *logger.Logger,
	usage repos.StorageUsageRepo,
	bucket gcp.BucketService,
) StorageTrackingService {
	return &storageTrackingService{
		db:     db,
		log:    baseLog.With("service", "StorageTrackingService"),
		usage:  usage,
		bucket: bucket,
	}
}

func (s *storageTrackingService) RecordUpload(dbc dbctx.Context, rec *domain.ProcessRecord, stage string, bytes int64) (bool, error) {
	return s.apply(dbc, rec, stage, domain.UsageDirectionAdd, bytes)
}

func (s *storageTrackingService) RecordRemoval(dbc dbctx.Context, rec *domain.ProcessRecord, stage string, bytes int64) (bool, error) {
	return s.apply(dbc, rec, stage, domain.UsageDirectionRemove, bytes)
}

func (s *storageTrackingService) apply(dbc dbctx.Context, rec *domain.ProcessRecord, stage, direction string, bytes int64) (bool, error) {
	if rec == nil || rec.ID == uuid.Nil {
		return false, fmt.Errorf("missing record")
	}
	applied, err := s.usage.ApplyEvent(dbc, &domain.StorageUsageEvent{
		TenantID:    rec.TenantID,
		OwnerUserID: rec.OwnerUserID,
		RecordID:    rec.ID,
		Stage:       stage,
		Direction:   direction,
		Bytes:       bytes,
	})
	if err != nil {
		return false, err
	}
	if !applied {
		s.log.Info("Usage event already counted",
			"record_id", rec.ID,
			"stage", stage,
			"direction", direction,
		)
		return false, nil
	}
	s.log.Info("Usage event applied",
		"record_id", rec.ID,
		"stage", stage,
		"direction", direction,
		"bytes", bytes,
	)
	return true, nil
}

func (s *storageTrackingService) Totals(dbc dbctx.Context, tenantID, ownerUserID uuid.UUID) (*domain.StorageUsage, error) {
	return s.usage.Totals(dbc, tenantID, ownerUserID)
}

func (s *storageTrackingService) Month(dbc dbctx.Context, tenantID, ownerUserID uuid.UUID, month time.Month, year int) (*domain.StorageUsageMonth, error) {
	key := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
	return s.usage.Month(dbc, tenantID, ownerUserID, key)
}

// Reconcile lists the tenant's objects in the bucket and overwrites the
// counters with what is actually stored. The ledger is left alone: counted
// events stay counted, which keeps Reconcile idempotent and safe to run
// while uploads are in flight (the next reconcile converges).
//
// The per-owner attribution assumes a single-owner tenant; a multi-owner
// split would need owner ids encoded in object keys.
func (s *storageTrackingService) Reconcile(dbc dbctx.Context, tenantID, ownerUserID uuid.UUID) (*ReconcileResult, error) {
	if tenantID == uuid.Nil || ownerUserID == uuid.Nil {
		return nil, fmt.Errorf("missing tenant/owner")
	}
	before, err := s.usage.Totals(dbc, tenantID, ownerUserID)
	if err != nil {
		return nil, err
	}

	objects, err := s.bucket.ListObjects(dbc.Ctx, gcp.TenantPrefix(tenantID))
	if err != nil {
		return nil, fmt.Errorf("list bucket objects: %w", err)
	}
	var totalBytes int64
	for _, obj := range objects {
		totalBytes += obj.Size
	}
	fileCount := int64(len(objects))

	if err := s.usage.OverwriteTotals(dbc, tenantID, ownerUserID, totalBytes, fileCount); err != nil {
		return nil, fmt.Errorf("overwrite totals: %w", err)
	}

	res := &ReconcileResult{
		TenantID:    tenantID,
		OwnerUserID: ownerUserID,
		TotalBytes:  totalBytes,
		FileCount:   fileCount,
		DriftBytes:  totalBytes - before.TotalBytes,
		DriftFiles:  fileCount - before.FileCount,
	}
	if res.DriftBytes != 0 || res.DriftFiles != 0 {
		s.log.Warn("Usage counters drifted from bucket contents",
			"tenant_id", tenantID,
			"drift_bytes", res.DriftBytes,
			"drift_files", res.DriftFiles,
		)
	} else {
		s.log.Info("Usage counters reconciled, no drift", "tenant_id", tenantID)
	}
	return res, nil
}
