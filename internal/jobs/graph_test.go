package jobs

import (
	"testing"

	"github.com/OperativeX/processmind-sub001/internal/domain"
)

func TestEntryStagesFanOutBothBranches(t *testing.T) {
	entries := EntryStages()
	if len(entries) != 2 {
		t.Fatalf("want 2 entry stages, got %d", len(entries))
	}
	types := map[string]string{}
	for _, s := range entries {
		types[s.JobType] = s.Queue
	}
	if types[TypeAudioExtract] != domain.QueueAudio {
		t.Fatalf("audio_extract should enter on the audio queue, got %q", types[TypeAudioExtract])
	}
	if types[TypeVideoCompress] != domain.QueueVideo {
		t.Fatalf("video_compress should enter on the video queue, got %q", types[TypeVideoCompress])
	}
}

func TestDependentsChains(t *testing.T) {
	cases := map[string][]string{
		TypeAudioExtract:  {TypeAudioSegment},
		TypeAudioSegment:  {TypeTranscribe},
		TypeTranscribe:    {TypeAIInsights},
		TypeAIInsights:    {},
		TypeVideoCompress: {TypeStorageUpload},
		TypeStorageUpload: {TypeLocalCleanup},
		TypeLocalCleanup:  {},
	}
	for jobType, want := range cases {
		deps := Dependents(jobType)
		if len(deps) != len(want) {
			t.Fatalf("Dependents(%s): want %v got %+v", jobType, want, deps)
		}
		for i, d := range deps {
			if d.JobType != want[i] {
				t.Errorf("Dependents(%s)[%d] = %s, want %s", jobType, i, d.JobType, want[i])
			}
		}
	}
}

func TestCleanupIsDelayed(t *testing.T) {
	deps := Dependents(TypeStorageUpload)
	if len(deps) != 1 {
		t.Fatalf("want 1 dependent, got %d", len(deps))
	}
	if deps[0].Delay <= 0 {
		t.Fatalf("local_cleanup must be enqueued with a grace delay, got %v", deps[0].Delay)
	}
	if deps[0].Queue != domain.QueueCleanup {
		t.Fatalf("local_cleanup queue: got %q", deps[0].Queue)
	}
}

func TestDependentsReturnsCopies(t *testing.T) {
	a := Dependents(TypeStorageUpload)
	a[0].Queue = "mutated"
	b := Dependents(TypeStorageUpload)
	if b[0].Queue == "mutated" {
		t.Fatalf("Dependents must not expose shared state")
	}
}
