package storage_upload

import (
	"gorm.io/gorm"

	"github.com/OperativeX/processmind-sub001/internal/data/repos"
	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/jobs"
	"github.com/OperativeX/processmind-sub001/internal/platform/gcp"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
	"github.com/OperativeX/processmind-sub001/internal/services"
)

// Moves the processed artifact into the bucket, verifies it landed, books
// the bytes, and drives the record through uploading -> upload_complete ->
// completed. The deterministic object key plus the usage ledger make the
// whole stage safe to redeliver.
type Pipeline struct {
	db      *gorm.DB
	log     *logger.Logger
	records repos.ProcessRecordRepo
	jobsSvc services.JobService
	bucket  gcp.BucketService
	usage   services.StorageTrackingService
	notify  services.RecordNotifier
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	records repos.ProcessRecordRepo,
	jobsSvc services.JobService,
	bucket gcp.BucketService,
	usage services.StorageTrackingService,
	notify services.RecordNotifier,
) *Pipeline {
	return &Pipeline{
		db:      db,
		log:     baseLog.With("job", jobs.TypeStorageUpload),
		records: records,
		jobsSvc: jobsSvc,
		bucket:  bucket,
		usage:   usage,
		notify:  notify,
	}
}

func (p *Pipeline) Type() string  { return jobs.TypeStorageUpload }
func (p *Pipeline) Queue() string { return domain.QueueStorage }
