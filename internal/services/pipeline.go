package services

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/OperativeX/processmind-sub001/internal/data/repos"
	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/jobs"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
	"github.com/OperativeX/processmind-sub001/internal/platform/localmedia"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
)

// PipelineService owns the head of the pipeline: accepting an upload into a
// process record, and the one-shot transition that fans the record out into
// the audio and video branches. Everything downstream of StartPipeline runs
// on the job queues.
type PipelineService interface {
	AcceptUpload(dbc dbctx.Context, in AcceptUploadInput) (*domain.ProcessRecord, error)
	StartPipeline(dbc dbctx.Context, recordID uuid.UUID) (*domain.ProcessRecord, bool, error)
}

type AcceptUploadInput struct {
	TenantID    uuid.UUID
	OwnerUserID uuid.UUID
	Filename    string
	Content     io.Reader
	// DeferStart leaves the record in uploaded without enqueuing anything;
	// callers then trigger StartPipeline explicitly.
	DeferStart bool
}

type pipelineService struct {
	db      *gorm.DB
	log     *logger.Logger
	records repos.ProcessRecordRepo
	jobsSvc JobService
	media   localmedia.Tools
	notify  RecordNotifier
}

func NewPipelineService(
	db *gorm.DB,
	baseLog *logger.Logger,
	records repos.ProcessRecordRepo,
	jobsSvc JobService,
	media localmedia.Tools,
	notify RecordNotifier,
) PipelineService {
	return &pipelineService{
		db:      db,
		log:     baseLog.With("service", "PipelineService"),
		records: records,
		jobsSvc: jobsSvc,
		media:   media,
		notify:  notify,
	}
}

// AcceptUpload streams the uploaded file into the record's scratch
// directory, creates the record in uploaded, and (unless deferred) starts
// the pipeline.
func (s *pipelineService) AcceptUpload(dbc dbctx.Context, in AcceptUploadInput) (*domain.ProcessRecord, error) {
	if in.TenantID == uuid.Nil || in.OwnerUserID == uuid.Nil {
		return nil, fmt.Errorf("missing tenant/owner")
	}
	if in.Content == nil {
		return nil, fmt.Errorf("missing upload content")
	}
	filename := filepath.Base(strings.TrimSpace(in.Filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return nil, fmt.Errorf("missing filename")
	}

	recordID := uuid.New()
	scratch := s.media.ScratchDir(in.TenantID, recordID)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	localPath := filepath.Join(scratch, filename)

	size, err := writeUpload(localPath, in.Content)
	if err != nil {
		_ = os.RemoveAll(scratch)
		return nil, fmt.Errorf("store upload: %w", err)
	}

	rec := &domain.ProcessRecord{
		ID:                  recordID,
		TenantID:            in.TenantID,
		OwnerUserID:         in.OwnerUserID,
		Status:              domain.StatusUploaded,
		OriginalPath:        localPath,
		OriginalSize:        size,
		OriginalFormat:      strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."),
		OriginalStorageType: domain.StorageTypeLocal,
		Jobs:                datatypes.JSON([]byte(`{}`)),
		Errors:              datatypes.JSON([]byte(`[]`)),
	}
	if _, err := s.records.Create(dbc, rec); err != nil {
		_ = os.RemoveAll(scratch)
		return nil, fmt.Errorf("create record: %w", err)
	}
	s.log.Info("Upload accepted", "record_id", rec.ID, "filename", filename, "size", size)

	if in.DeferStart {
		return rec, nil
	}
	started, _, err := s.StartPipeline(dbc, rec.ID)
	if err != nil {
		return rec, err
	}
	return started, nil
}

// StartPipeline moves the record from uploaded to processing_media and fans
// out the entry stages. The status guard makes the transition at-most-once:
// a concurrent or repeated call loses the guarded update, observes
// started=false, and enqueues nothing. A failure in here is fatal for the
// record because nothing downstream exists yet to retry it.
func (s *pipelineService) StartPipeline(dbc dbctx.Context, recordID uuid.UUID) (*domain.ProcessRecord, bool, error) {
	rec, err := s.records.GetByID(dbc, recordID)
	if err != nil {
		return nil, false, err
	}

	won, err := s.records.UpdateFieldsUnlessStatus(dbc, rec.ID, domain.BlockedSources(domain.StatusProcessingMedia), map[string]interface{}{
		"status":           domain.StatusProcessingMedia,
		"progress_percent": domain.ProgressPipelineStart,
		"progress_stage":   "pipeline_start",
		"progress_message": "Processing started",
	})
	if err != nil {
		return nil, false, err
	}
	if !won {
		s.log.Info("Pipeline already started", "record_id", rec.ID, "status", rec.Status)
		return rec, false, nil
	}
	rec.Status = domain.StatusProcessingMedia
	rec.ProgressPercent = domain.ProgressPipelineStart

	probe, err := s.probeOriginal(dbc, rec)
	if err != nil {
		return rec, true, s.failStart(dbc, rec, "pipeline_start", err)
	}
	if _, err := s.jobsSvc.EnqueueStages(dbc, rec, jobs.EntryStages(), map[string]any{
		"original_path": rec.OriginalPath,
		"has_audio":     probe.HasAudio,
		"has_video":     probe.HasVideo,
	}); err != nil {
		return rec, true, s.failStart(dbc, rec, "pipeline_start", err)
	}

	if s.notify != nil {
		s.notify.RecordProgress(rec.OwnerUserID, rec.ID, rec.Status, rec.ProgressPercent, "pipeline_start", "Processing started")
	}
	return rec, true, nil
}

func (s *pipelineService) probeOriginal(dbc dbctx.Context, rec *domain.ProcessRecord) (*localmedia.ProbeResult, error) {
	ctx := dbc.Ctx
	probe, err := s.media.Probe(ctx, rec.OriginalPath)
	if err != nil {
		return nil, fmt.Errorf("probe original: %w", err)
	}
	updates := map[string]interface{}{
		"original_duration_sec": probe.DurationSec,
		"original_width":        probe.Width,
		"original_height":       probe.Height,
	}
	if probe.Container != "" {
		updates["original_format"] = probe.Container
	}
	if probe.SizeBytes > 0 {
		updates["original_size"] = probe.SizeBytes
	}
	if err := s.records.UpdateFields(dbc, rec.ID, updates); err != nil {
		return nil, fmt.Errorf("record probe results: %w", err)
	}
	rec.OriginalDurationSec = probe.DurationSec
	rec.OriginalWidth = probe.Width
	rec.OriginalHeight = probe.Height
	return probe, nil
}

func (s *pipelineService) failStart(dbc dbctx.Context, rec *domain.ProcessRecord, stage string, cause error) error {
	s.log.Error("Pipeline start failed", "record_id", rec.ID, "stage", stage, "error", cause)
	_ = s.records.AppendError(dbc, rec.ID, domain.ProcessError{
		Stage:   stage,
		Message: cause.Error(),
	})
	_, err := s.records.UpdateFieldsUnlessStatus(dbc, rec.ID,
		domain.BlockedSources(domain.StatusFailed),
		map[string]interface{}{
			"status":           domain.StatusFailed,
			"progress_stage":   stage,
			"progress_message": cause.Error(),
		})
	if err != nil {
		s.log.Error("Failed to mark record failed", "record_id", rec.ID, "error", err)
	}
	if s.notify != nil {
		s.notify.RecordFailed(rec.OwnerUserID, rec.ID, stage, cause.Error())
	}
	return cause
}

func writeUpload(dst string, src io.Reader) (int64, error) {
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if copyErr != nil {
		return n, copyErr
	}
	if closeErr != nil {
		return n, closeErr
	}
	if fi, err := os.Stat(dst); err == nil && fi.Size() != n {
		return n, fmt.Errorf("short write: wrote %d, stat %d", n, fi.Size())
	}
	return n, nil
}
