package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "devsoc:ratelimit:"

// RedisLimiter shares a fixed window across server instances. The first
// hit in a window creates the counter and sets its expiry.
type RedisLimiter struct {
	client redis.Cmdable
	max    int64
	period time.Duration
}

func NewRedisLimiter(client redis.Cmdable, max int, period time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, max: int64(max), period: period}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := keyPrefix + key

	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("redis incr: %w", err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, k, l.period).Err(); err != nil {
			return false, fmt.Errorf("redis expire: %w", err)
		}
	}
	return n <= l.max, nil
}
