package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/signalgate/signalgate/internal/pkg/logger"
	"github.com/signalgate/signalgate/internal/pkg/metrics"
)

// MemoryQueue is the in-process fallback. Jobs are dispatched to the
// registered handler asynchronously, never inline on the caller's stack,
// so ingress keeps its fire-and-forget semantics.
type MemoryQueue struct {
	name string
	opts Options
	ch   chan Job

	mu      sync.RWMutex
	handler Handler
	seen    map[string]struct{}
}

func NewMemoryQueue(name string, opts Options) *MemoryQueue {
	return &MemoryQueue{
		name: name,
		opts: opts.withDefaults(),
		ch:   make(chan Job, 1024),
		seen: make(map[string]struct{}),
	}
}

func (q *MemoryQueue) RegisterConsumer(h Handler) {
	q.mu.Lock()
	q.handler = h
	q.mu.Unlock()
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	if job.ID != "" {
		q.mu.Lock()
		if _, dup := q.seen[job.ID]; dup {
			q.mu.Unlock()
			metrics.QueueJobs.WithLabelValues(q.name, "deduped").Inc()
			return nil
		}
		if len(q.seen) > 65536 {
			q.seen = make(map[string]struct{})
		}
		q.seen[job.ID] = struct{}{}
		q.mu.Unlock()
	}

	select {
	case q.ch <- job:
		metrics.QueueJobs.WithLabelValues(q.name, "enqueued").Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("queue %s full", q.name)
	}
}

// Start runs bounded-concurrency consumers until ctx is cancelled.
func (q *MemoryQueue) Start(ctx context.Context) error {
	q.mu.RLock()
	h := q.handler
	q.mu.RUnlock()
	if h == nil {
		return fmt.Errorf("queue %s: no consumer registered", q.name)
	}

	var wg sync.WaitGroup
	for i := 0; i < q.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-q.ch:
					q.process(ctx, h, job)
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (q *MemoryQueue) process(ctx context.Context, h Handler, job Job) {
	job.Attempt++
	err := h(ctx, job)
	if err == nil {
		metrics.QueueJobs.WithLabelValues(q.name, "succeeded").Inc()
		return
	}

	if job.Attempt >= q.opts.MaxAttempts {
		metrics.QueueJobs.WithLabelValues(q.name, "dead").Inc()
		logger.Error("job failed permanently", "queue", q.name, "job", job.ID, "attempts", job.Attempt, "error", err)
		return
	}

	metrics.QueueJobs.WithLabelValues(q.name, "retried").Inc()
	delay := Backoff(job.Attempt, q.opts.BackoffBase, q.opts.BackoffCap)
	logger.Warn("job failed, retrying", "queue", q.name, "job", job.ID, "attempt", job.Attempt, "delay", delay.String(), "error", err)

	retry := job
	time.AfterFunc(delay, func() {
		select {
		case q.ch <- retry:
		default:
			metrics.QueueJobs.WithLabelValues(q.name, "dead").Inc()
			logger.Error("retry dropped, queue full", "queue", q.name, "job", retry.ID)
		}
	})
}
