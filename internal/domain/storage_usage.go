package domain

import (
	"time"

	"github.com/google/uuid"
)

// StorageUsage holds the additive byte/file counters for one tenant+owner
// pair. Totals are clamped at zero on the write path and can be overwritten
// wholesale by reconciliation against the bucket listing.
type StorageUsage struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_storage_usage_scope" json:"tenant_id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_storage_usage_scope" json:"owner_user_id"`

	TotalBytes int64 `gorm:"column:total_bytes;not null;default:0" json:"total_bytes"`
	FileCount  int64 `gorm:"column:file_count;not null;default:0" json:"file_count"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (StorageUsage) TableName() string { return "storage_usage" }

// StorageUsageMonth aggregates add/remove volume per calendar month
// (format "2006-01") for billing reports.
type StorageUsageMonth struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_storage_usage_month" json:"tenant_id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_storage_usage_month" json:"owner_user_id"`
	Month       string    `gorm:"column:month;not null;uniqueIndex:uq_storage_usage_month" json:"month"`

	BytesAdded   int64 `gorm:"column:bytes_added;not null;default:0" json:"bytes_added"`
	BytesRemoved int64 `gorm:"column:bytes_removed;not null;default:0" json:"bytes_removed"`
	FilesAdded   int64 `gorm:"column:files_added;not null;default:0" json:"files_added"`
	FilesRemoved int64 `gorm:"column:files_removed;not null;default:0" json:"files_removed"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (StorageUsageMonth) TableName() string { return "storage_usage_month" }

const (
	UsageDirectionAdd    = "add"
	UsageDirectionRemove = "remove"
)

// StorageUsageEvent is the idempotency ledger behind the counters. The
// unique index on {record, stage, direction} makes accounting exactly-once:
// a redelivered upload job inserts a conflicting row and the increment is
// skipped.
type StorageUsageEvent struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	RecordID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_storage_usage_event" json:"record_id"`
	Stage       string    `gorm:"column:stage;not null;uniqueIndex:uq_storage_usage_event" json:"stage"`
	Direction   string    `gorm:"column:direction;not null;uniqueIndex:uq_storage_usage_event" json:"direction"`

	Bytes int64 `gorm:"column:bytes;not null" json:"bytes"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (StorageUsageEvent) TableName() string { return "storage_usage_event" }
