package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type bucketEntry struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is the in-process counter backend used when no Redis is
// configured and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucketEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*bucketEntry)}
}

func (s *MemoryStore) IncrWindow(_ context.Context, key string, curr, prev int64, ttl time.Duration) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	currKey := bucketKey(key, curr)
	entry, ok := s.buckets[currKey]
	if !ok || now.After(entry.expiresAt) {
		entry = &bucketEntry{expiresAt: now.Add(ttl)}
		s.buckets[currKey] = entry
	}
	entry.count++

	var prevCount int64
	if prevEntry, ok := s.buckets[bucketKey(key, prev)]; ok && now.Before(prevEntry.expiresAt) {
		prevCount = prevEntry.count
	}

	// Opportunistic sweep keeps the map from growing unbounded.
	if len(s.buckets) > 4096 {
		for k, e := range s.buckets {
			if now.After(e.expiresAt) {
				delete(s.buckets, k)
			}
		}
	}
	return entry.count, prevCount, nil
}

func bucketKey(key string, bucket int64) string {
	return key + ":" + strconv.FormatInt(bucket, 10)
}
