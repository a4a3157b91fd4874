package services

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/OperativeX/processmind-sub001/internal/data/repos"
	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
	"github.com/OperativeX/processmind-sub001/internal/platform/gcp"
	"github.com/OperativeX/processmind-sub001/internal/platform/localmedia"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
)

// RecordService is the read/delete surface for process records exposed to
// the API. Reads are tenant-scoped; deletion tears down everything the
// record owns: queued jobs, remote objects, usage bytes, scratch files and
// finally the row itself.
type RecordService interface {
	GetStatus(dbc dbctx.Context, tenantID, recordID uuid.UUID) (*RecordStatus, error)
	Delete(dbc dbctx.Context, tenantID, recordID uuid.UUID) (*DeleteResult, error)
}

type RecordStatus struct {
	ID              uuid.UUID             `json:"id"`
	Status          domain.ProcessStatus  `json:"status"`
	ProgressPercent int                   `json:"progress_percent"`
	ProgressStage   string                `json:"progress_stage,omitempty"`
	ProgressMessage string                `json:"progress_message,omitempty"`
	Jobs            map[string]uuid.UUID  `json:"jobs,omitempty"`
	Errors          []domain.ProcessError `json:"errors,omitempty"`

	ProcessedRemoteURL string `json:"processed_remote_url,omitempty"`
	TranscriptText     string `json:"transcript_text,omitempty"`
	AISummary          string `json:"ai_summary,omitempty"`
}

type DeleteResult struct {
	RecordID       uuid.UUID `json:"record_id"`
	JobsCanceled   int64     `json:"jobs_canceled"`
	RemoteDeleted  bool      `json:"remote_deleted"`
	BytesUncounted int64     `json:"bytes_uncounted"`
}

type recordService struct {
	db      *gorm.DB
	log     *logger.Logger
	records repos.ProcessRecordRepo
	jobsSvc JobService
	bucket  gcp.BucketService
	usage   StorageTrackingService
	media   localmedia.Tools
}

func NewRecordService(
	db *gorm.DB,
	baseLog *logger.Logger,
	records repos.ProcessRecordRepo,
	jobsSvc JobService,
	bucket gcp.BucketService,
	usage StorageTrackingService,
	media localmedia.Tools,
) RecordService {
	return &recordService{
		db:      db,
		log:     baseLog.With("service", "RecordService"),
		records: records,
		jobsSvc: jobsSvc,
		bucket:  bucket,
		usage:   usage,
		media:   media,
	}
}

func (s *recordService) GetStatus(dbc dbctx.Context, tenantID, recordID uuid.UUID) (*RecordStatus, error) {
	rec, err := s.records.GetForTenant(dbc, tenantID, recordID)
	if err != nil {
		return nil, err
	}
	st := &RecordStatus{
		ID:                 rec.ID,
		Status:             rec.Status,
		ProgressPercent:    rec.ProgressPercent,
		ProgressStage:      rec.ProgressStage,
		ProgressMessage:    rec.ProgressMessage,
		ProcessedRemoteURL: rec.ProcessedRemoteURL,
		TranscriptText:     rec.TranscriptText,
		AISummary:          rec.AISummary,
	}
	if len(rec.Jobs) > 0 {
		_ = json.Unmarshal(rec.Jobs, &st.Jobs)
	}
	if len(rec.Errors) > 0 {
		_ = json.Unmarshal(rec.Errors, &st.Errors)
	}
	return st, nil
}

// Delete cancels outstanding work first, so no in-flight stage re-uploads
// an object after the prefix sweep. Usage removal goes through the ledger
// and therefore survives redelivered delete requests without double
// decrementing.
func (s *recordService) Delete(dbc dbctx.Context, tenantID, recordID uuid.UUID) (*DeleteResult, error) {
	rec, err := s.records.GetForTenant(dbc, tenantID, recordID)
	if err != nil {
		return nil, err
	}

	res := &DeleteResult{RecordID: rec.ID}

	if n, err := s.jobsSvc.CancelPendingForRecord(dbc, rec.ID); err != nil {
		s.log.Warn("CancelPendingForRecord failed", "record_id", rec.ID, "error", err)
	} else {
		res.JobsCanceled = n
	}

	if rec.ProcessedRemoteKey != "" || rec.ProcessedStorageType == domain.StorageTypeRemote {
		prefix := gcp.RecordPrefix(rec.TenantID, rec.ID)
		if err := s.bucket.DeletePrefix(dbc.Ctx, prefix); err != nil {
			return nil, fmt.Errorf("delete remote objects: %w", err)
		}
		res.RemoteDeleted = true

		if rec.ProcessedSize > 0 {
			applied, err := s.usage.RecordRemoval(dbc, rec, "record_delete", rec.ProcessedSize)
			if err != nil {
				s.log.Warn("Usage removal failed", "record_id", rec.ID, "error", err)
			} else if applied {
				res.BytesUncounted = rec.ProcessedSize
			}
		}
	}

	if err := s.media.CleanupScratch(dbc.Ctx, rec.TenantID, rec.ID); err != nil {
		s.log.Warn("Scratch cleanup failed", "record_id", rec.ID, "error", err)
	}

	if err := s.records.Delete(dbc, rec.ID); err != nil {
		return nil, fmt.Errorf("delete record: %w", err)
	}
	s.log.Info("Record deleted",
		"record_id", rec.ID,
		"jobs_canceled", res.JobsCanceled,
		"remote_deleted", res.RemoteDeleted,
	)
	return res, nil
}
