package temporalx

import (
	"context"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/OperativeX/processmind-sub001/internal/domain"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
	"github.com/OperativeX/processmind-sub001/internal/temporalx/queuedrain"
)

// QueueDispatcher wakes the queue's drain workflow as soon as a job row is
// committed, cutting the idle-poll latency out of the enqueue path. Best
// effort: if the signal fails the workflow still finds the job on its next
// poll.
type QueueDispatcher struct {
	log *logger.Logger
	tc  temporalsdkclient.Client
	cfg Config
}

func NewQueueDispatcher(log *logger.Logger, tc temporalsdkclient.Client) *QueueDispatcher {
	return &QueueDispatcher{
		log: log.With("component", "QueueDispatcher"),
		tc:  tc,
		cfg: LoadConfig(),
	}
}

func (d *QueueDispatcher) JobQueued(dbc dbctx.Context, job *domain.JobRun) {
	if d == nil || d.tc == nil || job == nil || job.Queue == "" {
		return
	}
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:        queuedrain.WorkflowName + "-" + job.Queue,
		TaskQueue: d.cfg.TaskQueue,
	}
	_, err := d.tc.SignalWithStartWorkflow(ctx,
		opts.ID, queuedrain.SignalWake, nil,
		opts, queuedrain.WorkflowName, job.Queue,
	)
	if err != nil {
		d.log.Warn("Failed to wake drain workflow", "queue", job.Queue, "job_id", job.ID, "error", err)
	}
}
