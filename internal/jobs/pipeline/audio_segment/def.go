package audio_segment

import (
	"gorm.io/gorm"

	"github.com/OperativeX/processmind-sub001/internal/data/repos"
	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/jobs"
	"github.com/OperativeX/processmind-sub001/internal/platform/localmedia"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
	"github.com/OperativeX/processmind-sub001/internal/services"
)

// Splits the extracted audio into fixed-length chunks so transcription can
// fan out over them and stay under the recognizer's synchronous limits.
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
		log:     baseLog.With("job", jobs.TypeAudioSegment),
		records: records,
		jobsSvc: jobsSvc,
		media:   media,
	}
}

func (p *Pipeline) Type() string  { return jobs.TypeAudioSegment }
func (p *Pipeline) Queue() string { return domain.QueueAudio }
