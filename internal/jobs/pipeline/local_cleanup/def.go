package local_cleanup

import (
	"gorm.io/gorm"

	"github.com/OperativeX/processmind-sub001/internal/data/repos"
	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/jobs"
	"github.com/OperativeX/processmind-sub001/internal/platform/localmedia"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
)

// Removes the record's scratch directory once the grace period elapsed and
// no sibling stage still needs the local files. Best-effort: a failed
// cleanup never fails the record.
type Pipeline struct {
	db      *gorm.DB
	log     *logger.Logger
	records repos.ProcessRecordRepo
	runs    repos.JobRunRepo
	media   localmedia.Tools
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	records repos.ProcessRecordRepo,
	runs repos.JobRunRepo,
	media localmedia.Tools,
) *Pipeline {
	return &Pipeline{
		db:      db,
		log:     baseLog.With("job", jobs.TypeLocalCleanup),
		records: records,
		runs:    runs,
		media:   media,
	}
}

func (p *Pipeline) Type() string  { return jobs.TypeLocalCleanup }
func (p *Pipeline) Queue() string { return domain.QueueCleanup }
