package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sodav-monitor/sodav/pkg/observability"
)

// DistributedRateLimiter is a fixed-window counter in Redis, shared by all
// API replicas.
type DistributedRateLimiter struct {
	redis  redis.UniversalClient
	config *RateLimitConfig
	prefix string
	now    func() time.Time
}

// NewDistributedRateLimiter creates a new Redis-backed rate limiter
func NewDistributedRateLimiter(client redis.UniversalClient, config *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "sodav:ratelimit"
	}
	return &DistributedRateLimiter{
		redis:  client,
		config: config,
		prefix: prefix,
		now:    time.Now,
	}
}

func (rl *DistributedRateLimiter) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}

// Allow increments key's counter. The window starts with the first request
// and the expiry is set only then, so later requests do not extend it.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := rl.redisKey(key)

	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Allowed: true}, fmt.Errorf("redis error: %w", err)
	}

	ttl := pttl.Val()
	if ttl < 0 {
		if err := rl.redis.PExpire(ctx, redisKey, rl.config.WindowDuration).Err(); err != nil {
			return Decision{Allowed: true}, fmt.Errorf("redis error: %w", err)
		}
		ttl = rl.config.WindowDuration
	}

	count := int(incr.Val())
	return Decision{
		Allowed:   count <= rl.config.RequestsPerWindow,
		Limit:     rl.config.RequestsPerWindow,
		Remaining: rl.config.RequestsPerWindow - count,
		Reset:     rl.now().Add(ttl),
	}, nil
}

// Reset clears the counter for a key.
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.redisKey(key)).Err()
}

// NewDistributedRateLimitMiddleware builds Redis limiters with the default
// quotas, one key prefix per class.
func NewDistributedRateLimitMiddleware(client redis.UniversalClient, metrics *observability.Metrics) *RateLimitMiddleware {
	return NewRateLimitMiddleware(
		NewDistributedRateLimiter(client, DefaultRateLimitConfig(), "sodav:ratelimit:anon"),
		NewDistributedRateLimiter(client, PerUserRateLimitConfig(), "sodav:ratelimit:user"),
		NewDistributedRateLimiter(client, PerKeyRateLimitConfig(), "sodav:ratelimit:key"),
		metrics,
	)
}
