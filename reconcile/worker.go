package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
	glog "github.com/goliatone/go-logger/glog"
)

const workerRetryDelay = time.Minute

// Worker drains reconciliation jobs from a queue and executes them. A failed
// run is nacked with a delay so the queue's retry policy decides its fate;
// every other terminal state acknowledges the delivery.
type Worker struct {
	runner   *Runner
	dequeuer core.JobDequeuer
	logger   core.Logger
}

func NewWorker(runner *Runner, dequeuer core.JobDequeuer, logger core.Logger) (*Worker, error) {
	if runner == nil {
		return nil, fmt.Errorf("reconcile: runner is required")
	}
	if dequeuer == nil {
		return nil, fmt.Errorf("reconcile: dequeuer is required")
	}
	return &Worker{
		runner:   runner,
		dequeuer: dequeuer,
		logger:   glog.Ensure(logger),
	}, nil
}

// Run blocks, processing deliveries until ctx is done or the queue fails.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return fmt.Errorf("reconcile: worker is nil")
	}
	for {
		delivery, err := w.dequeuer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reconcile: dequeue: %w", err)
		}
		w.Handle(ctx, delivery)
	}
}

// Handle settles one delivery: execute, then ack or nack.
func (w *Worker) Handle(ctx context.Context, delivery core.JobDelivery) {
	if w == nil || delivery == nil {
		return
	}
	msg := delivery.Message()
	if err := w.runner.Execute(ctx, msg); err != nil {
		fields := map[string]any{}
		if msg != nil {
			fields["job_id"] = msg.JobID
			fields["tenant_key"] = msg.Parameters["tenant_key"]
		}
		core.LogError(ctx, w.logger, "reconciliation job failed", fields)
		if nackErr := delivery.Nack(ctx, core.JobNackOptions{
			Requeue: true,
			Delay:   workerRetryDelay,
			Reason:  err.Error(),
		}); nackErr != nil {
			core.LogError(ctx, w.logger, "nack failed", fields)
		}
		return
	}
	if err := delivery.Ack(ctx); err != nil {
		core.LogError(ctx, w.logger, "ack failed", nil)
	}
}
