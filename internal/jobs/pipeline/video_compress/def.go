package video_compress

import (
	"gorm.io/gorm"

	"github.com/OperativeX/processmind-sub001/internal/data/repos"
	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/jobs"
	"github.com/OperativeX/processmind-sub001/internal/platform/localmedia"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
	"github.com/OperativeX/processmind-sub001/internal/services"
)

// Head of the video branch. Produces the processed artifact that gets
// uploaded: a transcode for heavy inputs, a cheap remux for inputs that are
// already streaming-friendly.
type Pipeline struct {
	db      *gorm.DB
	log     *logger.Logger
	records repos.ProcessRecordRepo
	jobsSvc services.JobService
	media   localmedia.Tools
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	records repos.ProcessRecordRepo,
	jobsSvc services.JobService,
	media localmedia.Tools,
) *Pipeline {
	return &Pipeline{
		db:      db,
		log:     baseLog.With("job", jobs.TypeVideoCompress),
		records: records,
		jobsSvc: jobsSvc,
		media:   media,
	}
}

func (p *Pipeline) Type() string  { return jobs.TypeVideoCompress }
func (p *Pipeline) Queue() string { return domain.QueueVideo }
