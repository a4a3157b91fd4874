package queuedrain

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/workflow"
)

// Workflow drains one DB queue. One workflow runs per queue (the workflow
// ID encodes the queue name), ticking the claim activity until the queue is
// empty, then sleeping until either the idle poll interval elapses or a
// wake signal arrives from the enqueue path. History growth is bounded with
// continue-as-new.
func Workflow(ctx workflow.Context, queue string) error {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return fmt.Errorf("queuedrain: missing queue name")
	}

	const (
		idlePollInterval  = 15 * time.Second
		continueTickLimit = 2000
	)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 24 * time.Hour,
		HeartbeatTimeout:    2 * time.Minute,
		RetryPolicy:         nil,
	})

	wakeCh := workflow.GetSignalChannel(ctx, SignalWake)
	ticks := 0

	for {
		ticks++
		var out TickResult
		if err := workflow.ExecuteActivity(ctx, ActivityTick, queue).Get(ctx, &out); err != nil {
			return err
		}

		if ticks >= continueTickLimit {
			return workflow.NewContinueAsNewError(ctx, Workflow, queue)
		}
		if out.Claimed {
			continue
		}
		drainSignals(ctx, wakeCh)
		waitForWakeOrPoll(ctx, wakeCh, idlePollInterval)
	}
}

func waitForWakeOrPoll(ctx workflow.Context, ch workflow.ReceiveChannel, maxWait time.Duration) {
	timer := workflow.NewTimer(ctx, maxWait)
	sel := workflow.NewSelector(ctx)
	sel.AddReceive(ch, func(c workflow.ReceiveChannel, more bool) {
		var v any
		c.Receive(ctx, &v)
	})
	sel.AddFuture(timer, func(f workflow.Future) {})
	sel.Select(ctx)
}

// drainSignals empties buffered wake signals so a burst of enqueues does
// not translate into that many redundant wake/sleep cycles.
func drainSignals(ctx workflow.Context, ch workflow.ReceiveChannel) {
	for {
		var v any
		if !ch.ReceiveAsync(&v) {
			return
		}
	}
}
