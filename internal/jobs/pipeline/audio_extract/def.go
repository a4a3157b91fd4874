package audio_extract

import (
	"gorm.io/gorm"

	"github.com/OperativeX/processmind-sub001/internal/data/repos"
	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/jobs"
	"github.com/OperativeX/processmind-sub001/internal/platform/localmedia"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
	"github.com/OperativeX/processmind-sub001/internal/services"
)

// Head of the audio branch: pulls a mono low-bitrate audio track out of the
// original media so the downstream segmentation and transcription stages
// never touch the (much larger) video file.
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
		log:     baseLog.With("job", jobs.TypeAudioExtract),
		records: records,
		jobsSvc: jobsSvc,
		media:   media,
	}
}

func (p *Pipeline) Type() string  { return jobs.TypeAudioExtract }
func (p *Pipeline) Queue() string { return domain.QueueAudio }
