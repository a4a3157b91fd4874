package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Job statuses used by the queue engine. Jobs are ephemeral bookkeeping:
// the pipeline's durable truth lives on the ProcessRecord.
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
	JobStatusCanceled  = "canceled"
)

// Queue names. Each queue gets its own worker pool with its own bounded
// concurrency, so a burst of uploads cannot starve transcoding and
// vice versa.
const (
	QueueAudio   = "audio"
	QueueVideo   = "video"
	QueueStorage = "storage"
	QueueCleanup = "cleanup"
)

// JobRun is one unit of queued work. Claiming is done with SELECT ... FOR
// UPDATE SKIP LOCKED ordered by priority then age; run_at defers delayed
// jobs (retry backoff, cleanup grace period). A running job whose heartbeat
// goes stale is reclaimed, bounded by attempts, which gives at-least-once
// delivery across worker crashes.
type JobRun struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"tenant_id"`
	OwnerUserID uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Queue       string     `gorm:"column:queue;not null;index" json:"queue"`
	JobType     string     `gorm:"column:job_type;not null;index" json:"job_type"`
	RecordID    *uuid.UUID `gorm:"type:uuid;column:record_id;index" json:"record_id,omitempty"`

	Status   string `gorm:"column:status;not null;index" json:"status"`
	Stage    string `gorm:"column:stage;not null" json:"stage"`
	Progress int    `gorm:"column:progress;not null;default:0" json:"progress"`
	Message  string `gorm:"column:message" json:"message,omitempty"`

	Priority int        `gorm:"column:priority;not null;default:0;index" json:"priority"`
	RunAt    *time.Time `gorm:"column:run_at;index" json:"run_at,omitempty"`
	Attempts int        `gorm:"column:attempts;not null;default:0" json:"attempts"`

	Error       string     `gorm:"column:error" json:"error,omitempty"`
	LockedAt    *time.Time `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	LastErrorAt *time.Time `gorm:"column:last_error_at;index" json:"last_error_at,omitempty"`

	Payload datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	Result  datatypes.JSON `gorm:"column:result;type:jsonb" json:"result"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (JobRun) TableName() string { return "job_run" }
