package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter enforces the refresh budget with Redis counters, shared
// across gateway instances behind a load balancer. Fixed-window semantics:
// the key's TTL is set on the first hit in the window.
type RedisLimiter struct {
	redis  redis.UniversalClient
	config Config
}

// NewRedisLimiter creates a [Limiter] backed by the given Redis client.
func NewRedisLimiter(redisClient redis.UniversalClient, cfg Config) *RedisLimiter {
	return &RedisLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

var _ Limiter = (*RedisLimiter)(nil)

func (l *RedisLimiter) Allow(ctx context.Context, key string) error {
	count, err := l.incrementWithTTL(ctx, refreshKey(key))
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRequests) {
		return ErrRateLimited
	}
	return nil
}

func (l *RedisLimiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit incr: %w", err)
	}

	// Set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("ratelimit expire: %w", err)
		}
	}

	return count, nil
}

func refreshKey(client string) string {
	return "ratelimit:refresh:" + client
}
