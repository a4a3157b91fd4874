package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/OperativeX/processmind-sub001/internal/domain"
)

func SeedProcessRecord(tb testing.TB, ctx context.Context, tx *gorm.DB, tenantID, ownerUserID uuid.UUID) *domain.ProcessRecord {
	tb.Helper()
	rec := &domain.ProcessRecord{
		ID:                  uuid.New(),
		TenantID:            tenantID,
		OwnerUserID:         ownerUserID,
		Status:              domain.StatusUploaded,
		OriginalPath:        "/tmp/in/video.mov",
		OriginalSize:        1 << 20,
		OriginalStorageType: domain.StorageTypeLocal,
		Jobs:                datatypes.JSON([]byte("{}")),
		Errors:              datatypes.JSON([]byte("[]")),
	}
	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		tb.Fatalf("seed process record: %v", err)
	}
	return rec
}

func SeedJobRun(tb testing.TB, ctx context.Context, tx *gorm.DB, rec *domain.ProcessRecord, queue, jobType string) *domain.JobRun {
	tb.Helper()
	j := &domain.JobRun{
		ID:          uuid.New(),
		TenantID:    rec.TenantID,
		OwnerUserID: rec.OwnerUserID,
		Queue:       queue,
		JobType:     jobType,
		RecordID:    PtrUUID(rec.ID),
		Status:      domain.JobStatusQueued,
		Stage:       jobType,
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed job run: %v", err)
	}
	return j
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
