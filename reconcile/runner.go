package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
	glog "github.com/goliatone/go-logger/glog"
)

// ReconcileJobID names the queued job that triggers one reconciliation pass.
const ReconcileJobID = "payments.reconcile"

// Runner schedules reconciliation: on each tick it enqueues one job per
// tenant. The idempotency key is aligned to the tick slot, so a restarted
// scheduler inside the same slot does not double-run a tenant.
type Runner struct {
	engine   *Engine
	enqueuer core.JobEnqueuer
	tenants  func(ctx context.Context) ([]string, error)
	logger   core.Logger
	interval time.Duration
}

type RunnerConfig struct {
	Engine   *Engine
	Enqueuer core.JobEnqueuer
	Tenants  func(ctx context.Context) ([]string, error)
	Logger   core.Logger
	Interval time.Duration
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("reconcile: engine is required")
	}
	if cfg.Enqueuer == nil {
		return nil, fmt.Errorf("reconcile: enqueuer is required")
	}
	if cfg.Tenants == nil {
		return nil, fmt.Errorf("reconcile: tenant lister is required")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Runner{
		engine:   cfg.Engine,
		enqueuer: cfg.Enqueuer,
		tenants:  cfg.Tenants,
		logger:   glog.Ensure(cfg.Logger),
		interval: interval,
	}, nil
}

// EnqueueAll queues one reconciliation job per known tenant.
func (r *Runner) EnqueueAll(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("reconcile: runner is nil")
	}
	tenants, err := r.tenants(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: list tenants: %w", err)
	}

	slot := time.Now().UTC().Truncate(r.interval).Format("20060102T150405")
	var firstErr error
	for _, tenantKey := range tenants {
		tenantKey = strings.TrimSpace(tenantKey)
		if tenantKey == "" {
			continue
		}
		msg := &core.JobExecutionMessage{
			JobID:          ReconcileJobID,
			Parameters:     map[string]any{"tenant_key": tenantKey},
			IdempotencyKey: fmt.Sprintf("%s:%s:%s", ReconcileJobID, tenantKey, slot),
			DedupPolicy:    "ignore",
		}
		if err := r.enqueuer.Enqueue(ctx, msg); err != nil {
			core.LogError(ctx, r.logger, "enqueue reconciliation failed", map[string]any{
				"tenant_key": tenantKey,
			})
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Execute runs one queued reconciliation job.
func (r *Runner) Execute(ctx context.Context, msg *core.JobExecutionMessage) error {
	if r == nil {
		return fmt.Errorf("reconcile: runner is nil")
	}
	if msg == nil || msg.JobID != ReconcileJobID {
		return fmt.Errorf("reconcile: unexpected job message")
	}
	tenantKey, _ := msg.Parameters["tenant_key"].(string)
	if strings.TrimSpace(tenantKey) == "" {
		return fmt.Errorf("reconcile: job carries no tenant key")
	}
	_, err := r.engine.Reconcile(ctx, tenantKey)
	return err
}

// Run blocks, enqueueing a pass per interval until ctx is done. The first
// pass is enqueued immediately.
func (r *Runner) Run(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("reconcile: runner is nil")
	}
	if err := r.EnqueueAll(ctx); err != nil {
		core.LogError(ctx, r.logger, "initial reconciliation enqueue failed", nil)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.EnqueueAll(ctx); err != nil {
				core.LogError(ctx, r.logger, "reconciliation enqueue failed", nil)
			}
		}
	}
}
