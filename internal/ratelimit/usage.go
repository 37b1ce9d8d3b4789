package ratelimit

import (
	"context"
	"time"
)

// Usage keeps best-effort per-key daily counters on the same Store the
// limiter uses. Counts reset at the UTC day boundary; a lost increment is
// acceptable, these feed dashboards and soft checks, never hard guardrails.
type Usage struct {
	store Store
}

func NewUsage(store Store) *Usage {
	return &Usage{store: store}
}

// IncrDay bumps and returns today's count for key.
func (u *Usage) IncrDay(ctx context.Context, key string, now time.Time) (int64, error) {
	day := now.UTC().Unix() / 86400
	curr, _, err := u.store.IncrWindow(ctx, "usage:"+key, day, day-1, 48*time.Hour)
	return curr, err
}
