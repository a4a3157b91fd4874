package jobs

import (
	"time"

	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/platform/envutil"
)

// Job types, one per pipeline stage.
const (
	TypeAudioExtract  = "audio_extract"
	TypeVideoCompress = "video_compress"
	TypeAudioSegment  = "audio_segment"
	TypeTranscribe    = "transcribe"
	TypeAIInsights    = "ai_insights"
	TypeStorageUpload = "storage_upload"
	TypeLocalCleanup  = "local_cleanup"
)

// StageSpec describes how one stage is enqueued.
type StageSpec struct {
	JobType  string
	Queue    string
	Priority int
	Delay    time.Duration
}

// The stage graph. Two branches fan out from acceptance and run
// independently:
//
//	audio_extract -> audio_segment -> transcribe -> ai_insights
//	video_compress -> storage_upload -> local_cleanup (delayed)
//
// A stage enqueues its dependents only after it succeeded, so dependents
// never observe a half-written parent stage.
var stageGraph = map[string][]StageSpec{
	TypeAudioExtract:  {{JobType: TypeAudioSegment, Queue: domain.QueueAudio}},
	TypeAudioSegment:  {{JobType: TypeTranscribe, Queue: domain.QueueAudio}},
	TypeTranscribe:    {{JobType: TypeAIInsights, Queue: domain.QueueAudio}},
	TypeAIInsights:    {},
	TypeVideoCompress: {{JobType: TypeStorageUpload, Queue: domain.QueueStorage}},
	TypeStorageUpload: {{JobType: TypeLocalCleanup, Queue: domain.QueueCleanup, Delay: -1}},
	TypeLocalCleanup:  {},
}

var entryStages = []StageSpec{
	{JobType: TypeAudioExtract, Queue: domain.QueueAudio},
	{JobType: TypeVideoCompress, Queue: domain.QueueVideo},
}

// Dependents returns the stages to enqueue after jobType succeeds. A Delay
// of -1 is replaced by the configured cleanup grace period.
func Dependents(jobType string) []StageSpec {
	specs := stageGraph[jobType]
	out := make([]StageSpec, len(specs))
	copy(out, specs)
	for i := range out {
		if out[i].Delay < 0 {
			out[i].Delay = CleanupGracePeriod()
		}
	}
	return out
}

// EntryStages is the fan-out at pipeline start.
func EntryStages() []StageSpec {
	out := make([]StageSpec, len(entryStages))
	copy(out, entryStages)
	return out
}

// CleanupGracePeriod is how long local files outlive a successful remote
// upload before the cleanup stage removes them.
func CleanupGracePeriod() time.Duration {
	return envutil.Duration("CLEANUP_GRACE_PERIOD", 10*time.Minute)
}

// QueueNames lists every queue the worker pools must drain.
func QueueNames() []string {
	return []string{domain.QueueAudio, domain.QueueVideo, domain.QueueStorage, domain.QueueCleanup}
}
