// Package queue provides the async job pipe between ingress and the order
// workers. Two implementations share one interface: a durable Redis-backed
// queue with bounded retries, and an in-process fallback used when no
// broker is configured. The implementation is chosen once at startup and
// passed by reference; nothing is looked up through global state.
package queue

import (
	"context"
	"time"
)

// Job is one unit of deliverable work. ID should be stable per logical
// correlation (e.g. "instanceID:correlationID") so a deduplicating store
// naturally collapses repeat enqueues.
type Job struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Payload []byte `json:"payload"`
	Attempt int    `json:"attempt"`
}

// Handler processes one job. A returned error marks the job failed; the
// durable queue then retries with exponential backoff up to its attempt
// bound before parking the job for manual replay.
type Handler func(ctx context.Context, job Job) error

// Queue is the injectable interface shared by both modes.
type Queue interface {
	// Enqueue accepts a job and returns before it is processed.
	Enqueue(ctx context.Context, job Job) error
	// RegisterConsumer sets the handler; must be called before Start.
	RegisterConsumer(h Handler)
	// Start launches the consumer loops and blocks until ctx is done.
	Start(ctx context.Context) error
}

// Options bound retry behaviour and consumer parallelism.
type Options struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	Concurrency int
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = time.Minute
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 3
	}
	return o
}

// Backoff returns the delay before retry number attempt (1-based), doubling
// from base and capped.
func Backoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		return base
	}
	if attempt > 30 {
		return cap
	}
	d := base * time.Duration(1<<(attempt-1))
	if d > cap {
		return cap
	}
	return d
}
