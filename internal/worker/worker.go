// Package worker consumes execution tasks from the queue and drives the
// guarded placement for each delivery.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/signalgate/signalgate/internal/config"
	"github.com/signalgate/signalgate/internal/pkg/logger"
	"github.com/signalgate/signalgate/internal/pkg/metrics"
	"github.com/signalgate/signalgate/internal/queue"
	"github.com/signalgate/signalgate/internal/service"
)

// Executor runs one delivery; the concrete implementation is
// service.ExecutorService.
type Executor interface {
	HandleDelivery(ctx context.Context, task service.ExecutionTask, finalAttempt bool) error
}

type Consumer struct {
	exec        Executor
	maxAttempts int
	timeout     time.Duration
}

func New(exec Executor, cfg *config.Config) *Consumer {
	maxAttempts := cfg.Queue.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	timeout := cfg.Exchanges.Timeout()
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Consumer{
		exec:        exec,
		maxAttempts: maxAttempts,
		timeout:     timeout,
	}
}

// Attach registers the consumer on the queue; Start on the queue then
// drives Handle per job.
func (c *Consumer) Attach(q queue.Queue) {
	q.RegisterConsumer(c.Handle)
}

// Handle processes one queued delivery under a per-job deadline. An
// undecodable payload is dropped rather than retried; it can never become
// valid.
func (c *Consumer) Handle(ctx context.Context, job queue.Job) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var task service.ExecutionTask
	if err := json.Unmarshal(job.Payload, &task); err != nil {
		logger.Error("dropping undecodable job", "job", job.ID, "error", err.Error())
		metrics.QueueJobs.WithLabelValues(job.Name, "poison").Inc()
		return nil
	}

	// The queue bumps Attempt before dispatch, so it already names the
	// attempt in flight; the last one the queue will run is maxAttempts.
	finalAttempt := job.Attempt >= c.maxAttempts
	return c.exec.HandleDelivery(ctx, task, finalAttempt)
}
