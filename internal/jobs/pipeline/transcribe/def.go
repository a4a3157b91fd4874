package transcribe

import (
	"gorm.io/gorm"

	"github.com/OperativeX/processmind-sub001/internal/data/repos"
	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/jobs"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
	"github.com/OperativeX/processmind-sub001/internal/services"
)

// Runs speech recognition over the audio chunks and assembles the full
// transcript onto the record.
type Pipeline struct {
	db      *gorm.DB
	log     *logger.Logger
	records repos.ProcessRecordRepo
	jobsSvc services.JobService
	speech  services.TranscriptionProvider
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	records repos.ProcessRecordRepo,
	jobsSvc services.JobService,
	speech services.TranscriptionProvider,
) *Pipeline {
	return &Pipeline{
		db:      db,
		log:     baseLog.With("job", jobs.TypeTranscribe),
		records: records,
		jobsSvc: jobsSvc,
		speech:  speech,
	}
}

func (p *Pipeline) Type() string  { return jobs.TypeTranscribe }
func (p *Pipeline) Queue() string { return domain.QueueAudio }
