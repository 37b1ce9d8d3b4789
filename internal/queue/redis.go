package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/signalgate/signalgate/internal/pkg/logger"
	"github.com/signalgate/signalgate/internal/pkg/metrics"
)

// RedisQueue is the durable mode: a Redis list for ready jobs, a sorted set
// for backoff-delayed retries and a list of permanently failed jobs kept for
// manual replay by the admin surface. Job IDs deduplicate via SETNX so a
// repeat enqueue of the same correlation is a no-op.
type RedisQueue struct {
	client *redis.Client
	name   string
	opts   Options

	mu      sync.RWMutex
	handler Handler
}

func NewRedisQueue(client *redis.Client, name string, opts Options) *RedisQueue {
	return &RedisQueue{client: client, name: name, opts: opts.withDefaults()}
}

func (q *RedisQueue) readyKey() string   { return "queue:" + q.name + ":ready" }
func (q *RedisQueue) delayedKey() string { return "queue:" + q.name + ":delayed" }
func (q *RedisQueue) failedKey() string  { return "queue:" + q.name + ":failed" }
func (q *RedisQueue) dedupKey(id string) string {
	return "queue:" + q.name + ":job:" + id
}

func (q *RedisQueue) RegisterConsumer(h Handler) {
	q.mu.Lock()
	q.handler = h
	q.mu.Unlock()
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if job.ID != "" {
		ok, err := q.client.SetNX(ctx, q.dedupKey(job.ID), "1", 24*time.Hour).Result()
		if err != nil {
			return fmt.Errorf("queue dedup: %w", err)
		}
		if !ok {
			metrics.QueueJobs.WithLabelValues(q.name, "deduped").Inc()
			return nil
		}
	}

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.readyKey(), data).Err(); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	metrics.QueueJobs.WithLabelValues(q.name, "enqueued").Inc()
	return nil
}

// Start runs the bounded-concurrency consumers plus the mover that shifts
// due retries from the delayed set back onto the ready list. It blocks
// until ctx is cancelled.
func (q *RedisQueue) Start(ctx context.Context) error {
	q.mu.RLock()
	h := q.handler
	q.mu.RUnlock()
	if h == nil {
		return fmt.Errorf("queue %s: no consumer registered", q.name)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.moveDueRetries(ctx)
	}()

	for i := 0; i < q.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.consume(ctx, h)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (q *RedisQueue) consume(ctx context.Context, h Handler) {
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := q.client.BRPop(ctx, 2*time.Second, q.readyKey()).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			logger.Error("queue pop failed", "queue", q.name, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			logger.Error("queue payload corrupt, dropping", "queue", q.name, "error", err)
			continue
		}
		q.process(ctx, h, job)
	}
}

func (q *RedisQueue) process(ctx context.Context, h Handler, job Job) {
	job.Attempt++
	err := h(ctx, job)
	if err == nil {
		metrics.QueueJobs.WithLabelValues(q.name, "succeeded").Inc()
		return
	}

	data, _ := json.Marshal(job)
	if job.Attempt >= q.opts.MaxAttempts {
		metrics.QueueJobs.WithLabelValues(q.name, "dead").Inc()
		logger.Error("job failed permanently, parked for replay",
			"queue", q.name, "job", job.ID, "attempts", job.Attempt, "error", err)
		if pushErr := q.client.LPush(ctx, q.failedKey(), data).Err(); pushErr != nil {
			logger.Error("failed to park job", "queue", q.name, "job", job.ID, "error", pushErr)
		}
		return
	}

	delay := Backoff(job.Attempt, q.opts.BackoffBase, q.opts.BackoffCap)
	metrics.QueueJobs.WithLabelValues(q.name, "retried").Inc()
	logger.Warn("job failed, scheduling retry",
		"queue", q.name, "job", job.ID, "attempt", job.Attempt, "delay", delay.String(), "error", err)

	due := float64(time.Now().Add(delay).UnixMilli())
	if zErr := q.client.ZAdd(ctx, q.delayedKey(), redis.Z{Score: due, Member: data}).Err(); zErr != nil {
		logger.Error("failed to schedule retry", "queue", q.name, "job", job.ID, "error", zErr)
	}
}

func (q *RedisQueue) moveDueRetries(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := strconv.FormatInt(time.Now().UnixMilli(), 10)
		due, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
			Min: "-inf", Max: now, Count: 100,
		}).Result()
		if err != nil || len(due) == 0 {
			continue
		}
		for _, member := range due {
			removed, err := q.client.ZRem(ctx, q.delayedKey(), member).Result()
			if err != nil || removed == 0 {
				// Another mover claimed it.
				continue
			}
			if err := q.client.LPush(ctx, q.readyKey(), member).Err(); err != nil {
				logger.Error("failed to requeue retry", "queue", q.name, "error", err)
			}
		}
	}
}
