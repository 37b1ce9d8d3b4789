package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the limiter with shared counters so multiple gateway
// processes enforce one combined window.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) IncrWindow(ctx context.Context, key string, curr, prev int64, ttl time.Duration) (int64, int64, error) {
	currKey := s.prefix + ":" + bucketKey(key, curr)
	prevKey := s.prefix + ":" + bucketKey(key, prev)

	pipe := s.client.Pipeline()
	incrCmd := pipe.Incr(ctx, currKey)
	pipe.Expire(ctx, currKey, ttl)
	prevCmd := pipe.Get(ctx, prevKey)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, 0, err
	}

	prevCount, _ := prevCmd.Int64()
	return incrCmd.Val(), prevCount, nil
}
