// Package ratelimit implements a per-key sliding-window throttle over a
// pluggable backing store, so the same limiter runs against Redis in
// production and an in-process counter in tests.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Store is the counter backend. IncrWindow increments the current bucket
// for key and returns its new value along with the previous bucket's count.
// Implementations must expire buckets after roughly two windows.
type Store interface {
	IncrWindow(ctx context.Context, key string, curr, prev int64, ttl time.Duration) (currCount, prevCount int64, err error)
}

// Limiter approximates a sliding window by weighting the previous fixed
// window by its remaining overlap with the sliding one.
type Limiter struct {
	store  Store
	limit  int64
	window time.Duration

	now func() time.Time
}

func New(store Store, limit int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{store: store, limit: int64(limit), window: window, now: time.Now}
}

// Allow reports whether one more request under key fits the window. Store
// errors fail open with the error returned, so a counter outage cannot turn
// into a full outage; callers decide whether to log or reject.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	now := l.now()
	bucket := now.UnixNano() / int64(l.window)

	curr, prev, err := l.store.IncrWindow(ctx, key, bucket, bucket-1, 2*l.window)
	if err != nil {
		return true, fmt.Errorf("ratelimit store: %w", err)
	}

	elapsed := time.Duration(now.UnixNano() % int64(l.window))
	weight := 1 - float64(elapsed)/float64(l.window)
	estimated := float64(curr) + float64(prev)*weight
	return estimated <= float64(l.limit), nil
}
