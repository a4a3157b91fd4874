// Package pipelinetest provides in-memory fakes for exercising pipeline
// stages without Postgres, a bucket, or ffmpeg. The fakes keep the same
// guarded-write semantics as the real repos so redelivery and branch-race
// behavior can be asserted directly.
package pipelinetest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/jobs"
	jobrt "github.com/OperativeX/processmind-sub001/internal/jobs/runtime"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
	"github.com/OperativeX/processmind-sub001/internal/platform/gcp"
	"github.com/OperativeX/processmind-sub001/internal/platform/localmedia"
	"github.com/OperativeX/processmind-sub001/internal/platform/perr"
	"github.com/OperativeX/processmind-sub001/internal/services"
)

// RecordRepo is an in-memory repos.ProcessRecordRepo. Field-scoped updates
// are applied to the stored struct; the status guard mirrors the SQL
// "status NOT IN" clause.
type RecordRepo struct {
	mu   sync.Mutex
	recs map[uuid.UUID]*domain.ProcessRecord

	// Errs collects what AppendError received, newest last.
	Errs []domain.ProcessError
}

func NewRecordRepo(recs ...*domain.ProcessRecord) *RecordRepo {
	r := &RecordRepo{recs: map[uuid.UUID]*domain.ProcessRecord{}}
	for _, rec := range recs {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		r.recs[rec.ID] = rec
	}
	return r
}

func (r *RecordRepo) Create(dbc dbctx.Context, rec *domain.ProcessRecord) (*domain.ProcessRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = domain.StatusUploaded
	}
	r.recs[rec.ID] = rec
	return rec, nil
}

func (r *RecordRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.ProcessRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[id]
	if !ok {
		return nil, perr.ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (r *RecordRepo) GetForTenant(dbc dbctx.Context, tenantID, id uuid.UUID) (*domain.ProcessRecord, error) {
	rec, err := r.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if rec.TenantID != tenantID {
		return nil, perr.ErrNotFound
	}
	return rec, nil
}

func (r *RecordRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.recs[id]; ok {
		applyRecordUpdates(rec, updates)
	}
	return nil
}

func (r *RecordRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowed []domain.ProcessStatus, updates map[string]interface{}) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[id]
	if !ok {
		return false, nil
	}
	for _, s := range disallowed {
		if rec.Status == s {
			return false, nil
		}
	}
	applyRecordUpdates(rec, updates)
	return true, nil
}

func (r *RecordRepo) SetProgress(dbc dbctx.Context, id uuid.UUID, percent int, stage, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[id]
	if !ok || rec.Status.IsTerminal() {
		return nil
	}
	if percent > rec.ProgressPercent {
		rec.ProgressPercent = percent
	}
	rec.ProgressStage = stage
	rec.ProgressMessage = message
	return nil
}

func (r *RecordRepo) AppendError(dbc dbctx.Context, id uuid.UUID, procErr domain.ProcessError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errs = append(r.Errs, procErr)
	return nil
}

func (r *RecordRepo) MergeJobs(dbc dbctx.Context, id uuid.UUID, jobMap map[string]uuid.UUID) error {
	return nil
}

func (r *RecordRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.recs, id)
	return nil
}

// Get returns the live stored record for assertions.
func (r *RecordRepo) Get(id uuid.UUID) *domain.ProcessRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recs[id]
}

func applyRecordUpdates(rec *domain.ProcessRecord, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "status":
			rec.Status = v.(domain.ProcessStatus)
		case "progress_percent":
			rec.ProgressPercent = asInt(v)
		case "progress_stage":
			rec.ProgressStage = fmt.Sprint(v)
		case "progress_message":
			rec.ProgressMessage = fmt.Sprint(v)
		case "audio_path":
			rec.AudioPath = fmt.Sprint(v)
		case "transcript_text":
			rec.TranscriptText = fmt.Sprint(v)
		case "transcript":
			rec.Transcript = v.(datatypes.JSON)
		case "ai_summary":
			rec.AISummary = fmt.Sprint(v)
		case "ai_tags":
			rec.AITags = v.(datatypes.JSON)
		case "processed_path":
			rec.ProcessedPath = fmt.Sprint(v)
		case "processed_size":
			rec.ProcessedSize = asInt64(v)
		case "processed_storage_type":
			rec.ProcessedStorageType = fmt.Sprint(v)
		case "processed_remote_key":
			rec.ProcessedRemoteKey = fmt.Sprint(v)
		case "processed_remote_url":
			rec.ProcessedRemoteURL = fmt.Sprint(v)
		case "processed_uploaded_at":
			t := v.(time.Time)
			rec.ProcessedUploadedAt = &t
		case "compression_ratio":
			rec.CompressionRatio = v.(float64)
		case "skipped_compression":
			rec.SkippedCompression = v.(bool)
		case "original_storage_type":
			rec.OriginalStorageType = fmt.Sprint(v)
		case "updated_at":
			if t, ok := v.(time.Time); ok {
				rec.UpdatedAt = t
			}
		}
	}
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	default:
		return 0
	}
}

// RunRepo is an in-memory repos.JobRunRepo covering what the stages touch:
// the runnable-sibling check and the field updates of the deferral path.
type RunRepo struct {
	mu sync.Mutex

	// Runnable marks job types that still count as runnable for any record.
	Runnable map[string]bool
	// Updated collects every UpdateFields map, newest last.
	Updated []map[string]interface{}
}

func (r *RunRepo) Create(dbc dbctx.Context, runs []*domain.JobRun) ([]*domain.JobRun, error) {
	return runs, nil
}

func (r *RunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.JobRun, error) {
	return nil, perr.ErrNotFound
}

func (r *RunRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.JobRun, error) {
	return nil, nil
}

func (r *RunRepo) ClaimNextRunnable(dbc dbctx.Context, queue string, maxAttempts int, staleRunning time.Duration) (*domain.JobRun, error) {
	return nil, nil
}

func (r *RunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Updated = append(r.Updated, updates)
	return nil
}

func (r *RunRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Updated = append(r.Updated, updates)
	return true, nil
}

func (r *RunRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error { return nil }

func (r *RunRepo) ScheduleRetry(dbc dbctx.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	return nil
}

func (r *RunRepo) HasRunnableForRecord(dbc dbctx.Context, recordID uuid.UUID, jobType string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Runnable[jobType], nil
}

func (r *RunRepo) CancelPendingForRecord(dbc dbctx.Context, recordID uuid.UUID) (int64, error) {
	return 0, nil
}

// Queue is a services.JobService that only records what was enqueued.
type Queue struct {
	mu sync.Mutex

	// Dependents lists the finished job types that fanned out, in order.
	Dependents []string
	// Stages lists every directly enqueued stage job type.
	Stages []string
}

func (q *Queue) EnqueueStage(dbc dbctx.Context, rec *domain.ProcessRecord, spec jobs.StageSpec, payload map[string]any) (*domain.JobRun, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Stages = append(q.Stages, spec.JobType)
	return &domain.JobRun{ID: uuid.New(), JobType: spec.JobType, Queue: spec.Queue}, nil
}

func (q *Queue) EnqueueStages(dbc dbctx.Context, rec *domain.ProcessRecord, specs []jobs.StageSpec, payload map[string]any) ([]*domain.JobRun, error) {
	out := make([]*domain.JobRun, 0, len(specs))
	for _, spec := range specs {
		j, _ := q.EnqueueStage(dbc, rec, spec, payload)
		out = append(out, j)
	}
	return out, nil
}

func (q *Queue) EnqueueDependents(dbc dbctx.Context, rec *domain.ProcessRecord, finishedJobType string, payload map[string]any) ([]*domain.JobRun, error) {
	q.mu.Lock()
	q.Dependents = append(q.Dependents, finishedJobType)
	q.mu.Unlock()
	specs := jobs.Dependents(finishedJobType)
	out := make([]*domain.JobRun, 0, len(specs))
	for _, spec := range specs {
		out = append(out, &domain.JobRun{ID: uuid.New(), JobType: spec.JobType, Queue: spec.Queue})
	}
	return out, nil
}

func (q *Queue) CancelPendingForRecord(dbc dbctx.Context, recordID uuid.UUID) (int64, error) {
	return 0, nil
}

// DependentCount returns how often finishedJobType fanned out.
func (q *Queue) DependentCount(finishedJobType string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, t := range q.Dependents {
		if t == finishedJobType {
			n++
		}
	}
	return n
}

// Speech is a canned services.TranscriptionProvider.
type Speech struct {
	Result services.TranscriptionResult
	Err    error
	Calls  int
}

func (s *Speech) TranscribeChunks(ctx context.Context, chunkPaths []string, langCode string) (*services.TranscriptionResult, error) {
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	out := s.Result
	return &out, nil
}

// Bucket is an in-memory gcp.BucketService.
type Bucket struct {
	mu        sync.Mutex
	objects   map[string][]byte
	UploadErr error
	Uploads   int
}

func NewBucket() *Bucket {
	return &Bucket{objects: map[string][]byte{}}
}

func (b *Bucket) UploadFile(ctx context.Context, key string, file io.Reader) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Uploads++
	if b.UploadErr != nil {
		return b.UploadErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		return err
	}
	b.objects[key] = buf.Bytes()
	return nil
}

func (b *Bucket) DeleteFile(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *Bucket) GetObjectAttrs(ctx context.Context, key string) (*gcp.ObjectAttrs, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, perr.ErrNotFound
	}
	return &gcp.ObjectAttrs{Size: int64(len(data)), Updated: time.Now()}, nil
}

func (b *Bucket) ListObjects(ctx context.Context, prefix string) ([]gcp.ObjectInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []gcp.ObjectInfo
	for k, data := range b.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, gcp.ObjectInfo{Key: k, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (b *Bucket) DeletePrefix(ctx context.Context, prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			delete(b.objects, k)
		}
	}
	return nil
}

func (b *Bucket) GetPublicURL(key string) string {
	return "https://storage.example.com/" + key
}

// ObjectCount returns how many objects the bucket holds.
func (b *Bucket) ObjectCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

// Usage is a services.StorageTrackingService with the same per-stage
// dedupe the event ledger gives the real one.
type Usage struct {
	mu    sync.Mutex
	seen  map[string]bool
	Bytes int64
}

func (u *Usage) key(rec *domain.ProcessRecord, stage, direction string) string {
	return rec.ID.String() + "|" + stage + "|" + direction
}

func (u *Usage) RecordUpload(dbc dbctx.Context, rec *domain.ProcessRecord, stage string, bytes int64) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.seen == nil {
		u.seen = map[string]bool{}
	}
	k := u.key(rec, stage, "upload")
	if u.seen[k] {
		return false, nil
	}
	u.seen[k] = true
	u.Bytes += bytes
	return true, nil
}

func (u *Usage) RecordRemoval(dbc dbctx.Context, rec *domain.ProcessRecord, stage string, bytes int64) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.seen == nil {
		u.seen = map[string]bool{}
	}
	k := u.key(rec, stage, "removal")
	if u.seen[k] {
		return false, nil
	}
	u.seen[k] = true
	u.Bytes -= bytes
	if u.Bytes < 0 {
		u.Bytes = 0
	}
	return true, nil
}

func (u *Usage) Totals(dbc dbctx.Context, tenantID, ownerUserID uuid.UUID) (*domain.StorageUsage, error) {
	return &domain.StorageUsage{TenantID: tenantID, OwnerUserID: ownerUserID, TotalBytes: u.Bytes}, nil
}

func (u *Usage) Month(dbc dbctx.Context, tenantID, ownerUserID uuid.UUID, month time.Month, year int) (*domain.StorageUsageMonth, error) {
	return &domain.StorageUsageMonth{}, nil
}

func (u *Usage) Reconcile(dbc dbctx.Context, tenantID, ownerUserID uuid.UUID) (*services.ReconcileResult, error) {
	return &services.ReconcileResult{TenantID: tenantID, OwnerUserID: ownerUserID}, nil
}

// EventCount returns how many ledger entries were applied.
func (u *Usage) EventCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.seen)
}

// Media is a localmedia.Tools rooted in a temp dir; the transform methods
// are unused by the stages tested with it.
type Media struct {
	Root       string
	CleanupErr error
	Cleanups   int
}

func (m *Media) AssertReady(ctx context.Context) error { return nil }

func (m *Media) Probe(ctx context.Context, mediaPath string) (*localmedia.ProbeResult, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *Media) ExtractAudio(ctx context.Context, videoPath, outPath string, opts localmedia.AudioExtractOptions) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (m *Media) CompressVideo(ctx context.Context, videoPath, outPath string, opts localmedia.CompressOptions) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (m *Media) RemuxToMP4(ctx context.Context, videoPath, outPath string) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (m *Media) SegmentAudio(ctx context.Context, audioPath, outDir string, opts localmedia.SegmentOptions) ([]string, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *Media) ScratchDir(tenantID, recordID uuid.UUID) string {
	return filepath.Join(m.Root, tenantID.String(), recordID.String())
}

func (m *Media) CleanupScratch(ctx context.Context, tenantID, recordID uuid.UUID) error {
	m.Cleanups++
	if m.CleanupErr != nil {
		return m.CleanupErr
	}
	return os.RemoveAll(m.ScratchDir(tenantID, recordID))
}

// Job builds a claimed job_run for rec with the given payload.
func Job(rec *domain.ProcessRecord, jobType, queue string, payload map[string]any) *domain.JobRun {
	recID := rec.ID
	now := time.Now()
	job := &domain.JobRun{
		ID:          uuid.New(),
		TenantID:    rec.TenantID,
		OwnerUserID: rec.OwnerUserID,
		Queue:       queue,
		JobType:     jobType,
		RecordID:    &recID,
		Status:      domain.JobStatusRunning,
		Attempts:    1,
		LockedAt:    &now,
		HeartbeatAt: &now,
	}
	if payload != nil {
		job.Payload = datatypes.JSON(mustJSON(payload))
	}
	return job
}

// Ctx wraps a job in a runtime context backed by the fake record repo. The
// job repo is left nil, so terminal markers land on the struct itself.
func Ctx(job *domain.JobRun, records *RecordRepo) *jobrt.Context {
	return jobrt.NewContext(context.Background(), nil, job, nil, records, nil)
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
