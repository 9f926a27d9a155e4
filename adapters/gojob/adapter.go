package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

// RetryPolicy bounds how often and how late a nacked delivery may return to
// the queue. Zero values leave the queue's own defaults in charge.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// bound normalizes settlement options for the given nack attempt.
func (p RetryPolicy) bound(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	opts.Reason = strings.TrimSpace(opts.Reason)
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if p.MaxDelay > 0 && opts.Delay > p.MaxDelay {
		opts.Delay = p.MaxDelay
	}
	if opts.DeadLetter {
		opts.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		opts.Requeue = false
		if p.DeadLetterOnMax {
			opts.DeadLetter = true
		}
	}
	if !opts.Requeue && !opts.DeadLetter {
		opts.Requeue = true
	}
	return opts
}

// Enqueuer adapts a go-job queue producer to the core contract so domain
// packages never import the queue library directly.
type Enqueuer struct {
	queue queue.Enqueuer
}

func NewEnqueuer(q queue.Enqueuer) *Enqueuer {
	return &Enqueuer{queue: q}
}

func (e *Enqueuer) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if e == nil || e.queue == nil {
		return fmt.Errorf("gojob: queue enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	// The dispatch receipt only matters to queue-status readers.
	_, err := e.queue.Enqueue(ctx, toQueueMessage(msg))
	return err
}

// Dequeuer adapts the consumer side. Each delivery it hands out enforces the
// retry policy, counting nack attempts on the delivery itself.
type Dequeuer struct {
	queue  queue.Dequeuer
	policy RetryPolicy
}

func NewDequeuer(q queue.Dequeuer, policy RetryPolicy) *Dequeuer {
	return &Dequeuer{queue: q, policy: policy}
}

func (d *Dequeuer) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if d == nil || d.queue == nil {
		return nil, fmt.Errorf("gojob: queue dequeuer is not configured")
	}
	raw, err := d.queue.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	return &delivery{raw: raw, policy: d.policy}, nil
}

type delivery struct {
	raw      queue.Delivery
	policy   RetryPolicy
	attempts int
}

func (d *delivery) Message() *core.JobExecutionMessage {
	if d.raw == nil {
		return nil
	}
	return fromQueueMessage(d.raw.Message())
}

func (d *delivery) Ack(ctx context.Context) error {
	if d.raw == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.raw.Ack(ctx)
}

func (d *delivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	if d.raw == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	d.attempts++
	bounded := d.policy.bound(opts, d.attempts)
	disposition := queue.NackDispositionRetry
	if bounded.DeadLetter {
		disposition = queue.NackDispositionDeadLetter
	} else if !bounded.Requeue {
		disposition = queue.NackDispositionFailed
	}
	return d.raw.Nack(ctx, queue.NackOptions{
		Disposition: disposition,
		Delay:       bounded.Delay,
		Reason:      bounded.Reason,
	})
}

func toQueueMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	params := make(map[string]any, len(msg.Parameters))
	for key, value := range msg.Parameters {
		params[key] = value
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		Parameters:     params,
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func fromQueueMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	params := make(map[string]any, len(msg.Parameters))
	for key, value := range msg.Parameters {
		params[key] = value
	}
	return &core.JobExecutionMessage{
		JobID:          msg.JobID,
		Parameters:     params,
		IdempotencyKey: msg.IdempotencyKey,
		DedupPolicy:    string(msg.DedupPolicy),
	}
}

var (
	_ core.JobEnqueuer = (*Enqueuer)(nil)
	_ core.JobDequeuer = (*Dequeuer)(nil)
	_ core.JobDelivery = (*delivery)(nil)
)
