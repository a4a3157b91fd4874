package domain

import "testing"

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to ProcessStatus
		ok       bool
	}{
		{StatusUploaded, StatusProcessingMedia, true},
		{StatusUploaded, StatusCompleted, false},
		{StatusProcessingMedia, StatusCompressing, true},
		{StatusProcessingMedia, StatusUploading, true},
		{StatusCompressing, StatusUploading, true},
		{StatusUploading, StatusUploadComplete, true},
		{StatusUploadComplete, StatusCompleted, true},
		{StatusUploadComplete, StatusUploading, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusCompleted, false},
		{StatusFailed, StatusProcessingMedia, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.ok {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestEveryNonTerminalStateCanFail(t *testing.T) {
	for _, s := range []ProcessStatus{
		StatusUploaded, StatusProcessingMedia, StatusCompressing,
		StatusUploading, StatusUploadComplete,
	} {
		if !s.CanTransition(StatusFailed) {
			t.Errorf("%s should be able to transition to failed", s)
		}
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestTerminalStatesAreDeadEnds(t *testing.T) {
	for _, s := range []ProcessStatus{StatusCompleted, StatusFailed} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
		for to := range statusTransitions {
			if s.CanTransition(to) {
				t.Errorf("terminal %s should not transition to %s", s, to)
			}
		}
	}
}

func TestBlockedSourcesComplementTransitionTable(t *testing.T) {
	for target := range statusTransitions {
		blocked := map[ProcessStatus]bool{}
		for _, s := range BlockedSources(target) {
			blocked[s] = true
		}
		for from := range statusTransitions {
			if from.CanTransition(target) == blocked[from] {
				t.Errorf("BlockedSources(%s) disagrees with the table for source %s", target, from)
			}
		}
	}

	// The entry transition is the strictest: only a fresh upload may start
	// the pipeline. Everything else has to be in the disallowed set.
	if got := BlockedSources(StatusProcessingMedia); len(got) != len(statusOrder)-1 {
		t.Fatalf("BlockedSources(processing_media) = %v, want all but uploaded", got)
	}
}

func TestProgressCheckpointsAreOrdered(t *testing.T) {
	pts := []int{ProgressPipelineStart, ProgressPreUpload, ProgressUploading, ProgressUploaded, ProgressCompleted}
	for i := 1; i < len(pts); i++ {
		if pts[i] <= pts[i-1] {
			t.Fatalf("checkpoints must be strictly increasing, got %v", pts)
		}
	}
	if ProgressCompleted != 100 {
		t.Fatalf("completed checkpoint must be 100")
	}
}
