package queuedrain

const (
	WorkflowName = "queue_drain"
	ActivityTick = "queue_tick"
	SignalWake   = "queue_wake"
)

// TickResult is the per-activity outcome: whether a job was claimed and
// run, so the workflow knows to keep draining or go idle.
type TickResult struct {
	Queue   string `json:"queue"`
	Claimed bool   `json:"claimed"`
}
