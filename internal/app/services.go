package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/OperativeX/processmind-sub001/internal/jobs/pipeline/ai_insights"
	"github.com/OperativeX/processmind-sub001/internal/jobs/pipeline/audio_extract"
	"github.com/OperativeX/processmind-sub001/internal/jobs/pipeline/audio_segment"
	"github.com/OperativeX/processmind-sub001/internal/jobs/pipeline/local_cleanup"
	"github.com/OperativeX/processmind-sub001/internal/jobs/pipeline/storage_upload"
	"github.com/OperativeX/processmind-sub001/internal/jobs/pipeline/transcribe"
	"github.com/OperativeX/processmind-sub001/internal/jobs/pipeline/video_compress"
	"github.com/OperativeX/processmind-sub001/internal/jobs/runtime"
	"github.com/OperativeX/processmind-sub001/internal/jobs/worker"
	"github.com/OperativeX/processmind-sub001/internal/platform/gcp"
	"github.com/OperativeX/processmind-sub001/internal/platform/localmedia"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
	"github.com/OperativeX/processmind-sub001/internal/services"
)

type Services struct {
	Job             services.JobService
	Pipeline        services.PipelineService
	Record          services.RecordService
	StorageTracking services.StorageTrackingService
	Transcription   services.TranscriptionProvider
	Insights        services.InsightsProvider

	JobNotifier    services.JobNotifier
	RecordNotifier services.RecordNotifier

	Media  localmedia.Tools
	Bucket gcp.BucketService
	Speech gcp.Speech

	Registry  *runtime.Registry
	JobWorker *worker.Worker
}

func wireServices(
	db *gorm.DB,
	log *logger.Logger,
	reposet Repos,
	emitter services.SSEEmitter,
	dispatch services.Dispatcher,
) (Services, error) {
	log.Info("Wiring services...")

	bucket, err := gcp.NewBucketService(log)
	if err != nil {
		return Services{}, fmt.Errorf("init bucket service: %w", err)
	}
	speech, err := gcp.NewSpeech(log)
	if err != nil {
		return Services{}, fmt.Errorf("init speech client: %w", err)
	}
	media := localmedia.New(log)

	jobNotifier := services.NewJobNotifier(emitter)
	recordNotifier := services.NewRecordNotifier(emitter)

	jobSvc := services.NewJobService(db, log, reposet.JobRun, reposet.ProcessRecord, jobNotifier, dispatch)
	usageSvc := services.NewStorageTrackingService(db, log, reposet.StorageUsage, bucket)
	pipelineSvc := services.NewPipelineService(db, log, reposet.ProcessRecord, jobSvc, media, recordNotifier)
	recordSvc := services.NewRecordService(db, log, reposet.ProcessRecord, jobSvc, bucket, usageSvc, media)
	transcription := services.NewTranscriptionProvider(log, speech)
	insights := services.NewInsightsProvider(log)

	registry := runtime.NewRegistry()
	handlers := []runtime.Handler{
		audio_extract.New(db, log, reposet.ProcessRecord, jobSvc, media),
		audio_segment.New(db, log, reposet.ProcessRecord, jobSvc, media),
		transcribe.New(db, log, reposet.ProcessRecord, jobSvc, transcription),
		ai_insights.New(db, log, reposet.ProcessRecord, insights),
		video_compress.New(db, log, reposet.ProcessRecord, jobSvc, media),
		storage_upload.New(db, log, reposet.ProcessRecord, jobSvc, bucket, usageSvc, recordNotifier),
		local_cleanup.New(db, log, reposet.ProcessRecord, reposet.JobRun, media),
	}
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			return Services{}, fmt.Errorf("register job handler: %w", err)
		}
	}

	jobWorker := worker.NewWorker(db, log, reposet.JobRun, reposet.ProcessRecord, registry, jobNotifier, recordNotifier)

	return Services{
		Job:             jobSvc,
		Pipeline:        pipelineSvc,
		Record:          recordSvc,
		StorageTracking: usageSvc,
		Transcription:   transcription,
		Insights:        insights,
		JobNotifier:     jobNotifier,
		RecordNotifier:  recordNotifier,
		Media:           media,
		Bucket:          bucket,
		Speech:          speech,
		Registry:        registry,
		JobWorker:       jobWorker,
	}, nil
}
