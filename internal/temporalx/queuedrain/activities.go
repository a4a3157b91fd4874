package queuedrain

import (
	"context"
	"fmt"
	"strings"

	"go.temporal.io/sdk/activity"

	"github.com/OperativeX/processmind-sub001/internal/jobs/worker"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
)

type Activities struct {
	Log    *logger.Logger
	Worker *worker.Worker
}

// Tick claims and executes at most one runnable job from the queue. All
// retry and failure semantics live in the worker; the activity only
// reports whether there was anything to do.
func (a *Activities) Tick(ctx context.Context, queue string) (TickResult, error) {
	res := TickResult{Queue: strings.TrimSpace(queue)}
	if a == nil || a.Worker == nil {
		return res, fmt.Errorf("queuedrain: activity not configured")
	}
	if res.Queue == "" {
		return res, fmt.Errorf("queuedrain: missing queue name")
	}

	activity.RecordHeartbeat(ctx, res.Queue)

	claimed, err := a.Worker.Tick(ctx, res.Queue)
	if err != nil {
		if a.Log != nil {
			a.Log.Warn("Queue tick failed", "queue", res.Queue, "error", err)
		}
		return res, err
	}
	res.Claimed = claimed
	return res, nil
}
