package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProcessRecord is the durable entity tracking one upload from acceptance
// through transcoding, remote upload, transcription and AI analysis.
//
// The columns form three disjoint write domains:
//   - coordinator-owned: status, progress_*, jobs
//   - video branch: processed_*, compression_ratio, skipped_compression
//   - audio branch: audio_path, transcript*, ai_*
//
// Workers mutate only their own domain through field-scoped updates, so the
// two branches can finish in any order without clobbering each other.
type ProcessRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`

	Status          ProcessStatus `gorm:"column:status;not null;index" json:"status"`
	ProgressPercent int           `gorm:"column:progress_percent;not null;default:0" json:"progress_percent"`
	ProgressStage   string        `gorm:"column:progress_stage" json:"progress_stage,omitempty"`
	ProgressMessage string        `gorm:"column:progress_message" json:"progress_message,omitempty"`

	// files.original
	OriginalPath        string  `gorm:"column:original_path;not null" json:"original_path"`
	OriginalSize        int64   `gorm:"column:original_size;not null;default:0" json:"original_size"`
	OriginalDurationSec float64 `gorm:"column:original_duration_sec;not null;default:0" json:"original_duration_sec"`
	OriginalFormat      string  `gorm:"column:original_format" json:"original_format,omitempty"`
	OriginalWidth       int     `gorm:"column:original_width;not null;default:0" json:"original_width"`
	OriginalHeight      int     `gorm:"column:original_height;not null;default:0" json:"original_height"`
	OriginalStorageType string  `gorm:"column:original_storage_type;not null;default:local" json:"original_storage_type"`

	// files.processed, video branch only.
	ProcessedPath        string     `gorm:"column:processed_path" json:"processed_path,omitempty"`
	ProcessedRemoteKey   string     `gorm:"column:processed_remote_key" json:"processed_remote_key,omitempty"`
	ProcessedRemoteURL   string     `gorm:"column:processed_remote_url" json:"processed_remote_url,omitempty"`
	ProcessedSize        int64      `gorm:"column:processed_size;not null;default:0" json:"processed_size"`
	ProcessedStorageType string     `gorm:"column:processed_storage_type" json:"processed_storage_type,omitempty"`
	ProcessedUploadedAt  *time.Time `gorm:"column:processed_uploaded_at" json:"processed_uploaded_at,omitempty"`
	CompressionRatio     float64    `gorm:"column:compression_ratio;not null;default:0" json:"compression_ratio"`
	SkippedCompression   bool       `gorm:"column:skipped_compression;not null;default:false" json:"skipped_compression"`

	// audio branch only.
	AudioPath      string         `gorm:"column:audio_path" json:"audio_path,omitempty"`
	TranscriptText string         `gorm:"column:transcript_text;type:text" json:"transcript_text,omitempty"`
	Transcript     datatypes.JSON `gorm:"column:transcript;type:jsonb" json:"transcript,omitempty"`
	AISummary      string         `gorm:"column:ai_summary;type:text" json:"ai_summary,omitempty"`
	AITags         datatypes.JSON `gorm:"column:ai_tags;type:jsonb" json:"ai_tags,omitempty"`

	// jobs maps stage names to the JobRun ids driving them (log correlation).
	Jobs   datatypes.JSON `gorm:"column:jobs;type:jsonb" json:"jobs,omitempty"`
	Errors datatypes.JSON `gorm:"column:errors;type:jsonb" json:"errors,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ProcessRecord) TableName() string { return "process_record" }

const (
	StorageTypeLocal  = "local"
	StorageTypeRemote = "remote"
	// StorageTypeDeleted marks a local file that cleanup removed without a
	// remote copy existing (the original on the re-encode path).
	StorageTypeDeleted = "deleted"
)

// ProcessError is one entry of the record's errors array. Every stage
// failure appends one regardless of whether the job is retried.
type ProcessError struct {
	Stage     string         `json:"stage"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
