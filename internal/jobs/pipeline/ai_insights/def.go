package ai_insights

import (
	"gorm.io/gorm"

	"github.com/OperativeX/processmind-sub001/internal/data/repos"
	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/jobs"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
	"github.com/OperativeX/processmind-sub001/internal/services"
)

// Tail of the audio branch: derives summary and tags from the transcript.
type Pipeline struct {
	db       *gorm.DB
	log      *logger.Logger
	records  repos.ProcessRecordRepo
	insights services.InsightsProvider
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	records repos.ProcessRecordRepo,
	insights services.InsightsProvider,
) *Pipeline {
	return &Pipeline{
		db:       db,
		log:      baseLog.With("job", jobs.TypeAIInsights),
		records:  records,
		insights: insights,
	}
}

func (p *Pipeline) Type() string  { return jobs.TypeAIInsights }
func (p *Pipeline) Queue() string { return domain.QueueAudio }
