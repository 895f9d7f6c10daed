package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisAPI defines the Redis operations RedisLimiter needs, a narrow
// per-dependency client interface in the same shape as DynamoDBAPI.
type redisAPI interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	PExpire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	PTTL(ctx context.Context, key string) *redis.DurationCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisLimiter implements Limiter with a fixed-window counter in Redis:
// INCR the window's key, and on first increment set its expiry to the
// window length. Adapted from DynamoDBRateLimiter's atomic-increment-
// with-conditional-window-reset shape and its fail-open-on-backend-error
// policy, generalized from DynamoDB's conditional UpdateItem to Redis's
// INCR+PEXPIRE, which is naturally atomic per key without needing a
// condition expression.
type RedisLimiter struct {
	client redisAPI
	prefix string
	cfg    Config
	ctxTO  time.Duration
}

// NewRedisLimiter builds a RedisLimiter over client, namespacing keys
// under prefix (e.g. "ratelimit:conn:").
func NewRedisLimiter(client *redis.Client, prefix string, cfg Config) (*RedisLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RedisLimiter{client: client, prefix: prefix, cfg: cfg, ctxTO: 2 * time.Second}, nil
}

func (r *RedisLimiter) windowKey(key string) string {
	window := time.Now().UnixNano() / r.cfg.Window.Nanoseconds()
	return fmt.Sprintf("%s%s:%d", r.prefix, key, window)
}

// Check increments the current window's counter for key. A Redis error
// fails open (Allow): rate limiting is a non-critical infrastructure
// dependency and should not itself become an outage.
func (r *RedisLimiter) Check(ctx context.Context, key string) (Decision, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, r.ctxTO)
	defer cancel()

	wk := r.windowKey(key)
	count, err := r.client.Incr(ctx, wk).Result()
	if err != nil {
		return Allow, 0, err
	}
	if count == 1 {
		// First increment in this window: set the expiry so the key is
		// reclaimed once the window passes.
		r.client.PExpire(ctx, wk, r.cfg.Window)
	}

	limit := int64(r.cfg.EffectiveBurst())
	if count > limit {
		ttl, err := r.client.PTTL(ctx, wk).Result()
		if err != nil || ttl < 0 {
			ttl = r.cfg.Window
		}
		return RateLimited, ttl, nil
	}
	return Allow, 0, nil
}

// Remove deletes the current window's counter for key. Best-effort: a
// fixed-window counter naturally expires on its own, so a failed delete
// here is not propagated as an error.
func (r *RedisLimiter) Remove(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.ctxTO)
	defer cancel()
	r.client.Del(ctx, r.windowKey(key))
}

var _ Limiter = (*RedisLimiter)(nil)
