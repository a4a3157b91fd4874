package temporalworker

import (
	"context"
	"fmt"
	"time"

	temporalsdkclient "go.temporal.io/sdk/client"
	sdkworker "go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	jobsgraph "github.com/OperativeX/processmind-sub001/internal/jobs"
	"github.com/OperativeX/processmind-sub001/internal/jobs/worker"
	"github.com/OperativeX/processmind-sub001/internal/platform/envutil"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
	"github.com/OperativeX/processmind-sub001/internal/temporalx"
	"github.com/OperativeX/processmind-sub001/internal/temporalx/queuedrain"
)

// Runner hosts the Temporal worker that serves the queue_drain workflows
// and their tick activity, and makes sure one drain workflow exists per
// queue.
type Runner struct {
	log    *logger.Logger
	tc     temporalsdkclient.Client
	jobs   *worker.Worker
	cfg    temporalx.Config
	worker sdkworker.Worker
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, jobs *worker.Worker) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if jobs == nil {
		return nil, fmt.Errorf("temporal runner missing job worker")
	}
	return &Runner{
		log:  log.With("component", "TemporalRunner"),
		tc:   tc,
		jobs: jobs,
		cfg:  temporalx.LoadConfig(),
	}, nil
}

func (r *Runner) Start(ctx context.Context) error {
	w := sdkworker.New(r.tc, r.cfg.TaskQueue, sdkworker.Options{
		MaxConcurrentActivityExecutionSize: envutil.Int("TEMPORAL_MAX_CONCURRENT_ACTIVITIES", 10),
	})

	w.RegisterWorkflowWithOptions(queuedrain.Workflow, workflow.RegisterOptions{Name: queuedrain.WorkflowName})
	acts := &queuedrain.Activities{Log: r.log, Worker: r.jobs}
	w.RegisterActivityWithOptions(acts.Tick, activityRegisterOptions(queuedrain.ActivityTick))

	if err := w.Start(); err != nil {
		return fmt.Errorf("start temporal worker: %w", err)
	}
	r.worker = w
	r.log.Info("Temporal worker started", "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)

	if err := r.ensureDrainWorkflows(ctx); err != nil {
		r.log.Warn("Failed to ensure drain workflows", "error", err)
	}

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

func (r *Runner) Stop() {
	if r != nil && r.worker != nil {
		r.worker.Stop()
	}
}

// ensureDrainWorkflows starts one queue_drain workflow per queue. A reuse
// policy of reject-duplicate makes the call idempotent across process
// restarts.
func (r *Runner) ensureDrainWorkflows(ctx context.Context) error {
	for _, queue := range jobsgraph.QueueNames() {
		opts := temporalsdkclient.StartWorkflowOptions{
			ID:                       queuedrain.WorkflowName + "-" + queue,
			TaskQueue:                r.cfg.TaskQueue,
			WorkflowExecutionTimeout: 0,
			WorkflowTaskTimeout:      10 * time.Second,
		}
		_, err := r.tc.ExecuteWorkflow(ctx, opts, queuedrain.WorkflowName, queue)
		if err != nil && !isAlreadyStarted(err) {
			return fmt.Errorf("start drain workflow for %s: %w", queue, err)
		}
	}
	return nil
}
