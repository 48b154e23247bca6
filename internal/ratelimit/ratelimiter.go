package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"doc_gateway/internal/config"
	"doc_gateway/internal/utils"
)

// Decision is the outcome of a rate-limit check. RetryAfter is how long the
// caller should wait before the window resets; it is zero when Allowed.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter enforces a per-key fixed request window. A rejected request must
// not produce a debit or a usage record.
type Limiter interface {
	Allow(ctx context.Context, keyID string) Decision
}

// clock is overridable in tests.
type clock func() time.Time

// RedisLimiter counts requests in Redis per wall-clock aligned window, so
// every gateway instance shares the same counters. Window state is volatile:
// a Redis restart forgets at most one window.
type RedisLimiter struct {
	client     *redis.Client
	limit      int
	window     time.Duration
	failPolicy string
	logger     *utils.Logger
	now        clock
}

func NewRedisLimiter(client *redis.Client, cfg config.RateLimitConfig, logger *utils.Logger) *RedisLimiter {
	if logger == nil {
		logger = utils.NewLogger("ratelimit", utils.Info)
	}
	logger.Info("rate limiter configured",
		"limit", cfg.RequestsPerWindow,
		"window", cfg.Window.String(),
		"fail_policy", cfg.FailPolicy)
	return &RedisLimiter{
		client:     client,
		limit:      cfg.RequestsPerWindow,
		window:     cfg.Window,
		failPolicy: cfg.FailPolicy,
		logger:     logger,
		now:        time.Now,
	}
}

// Allow counts the request against the current window. A request landing
// exactly on a window boundary belongs to the new window.
func (l *RedisLimiter) Allow(ctx context.Context, keyID string) Decision {
	if l.limit <= 0 {
		return Decision{Allowed: true}
	}

	now := l.now()
	windowStart := now.Truncate(l.window)
	windowEnd := windowStart.Add(l.window)
	redisKey := fmt.Sprintf("ratelimit:%s:%d", keyID, windowStart.Unix())

	pipe := l.client.Pipeline()
	countCmd := pipe.Incr(ctx, redisKey)
	// expiry outlives the window slightly so slow readers still see it
	pipe.Expire(ctx, redisKey, l.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return l.onStoreError(err, windowEnd.Sub(now))
	}

	if countCmd.Val() > int64(l.limit) {
		return Decision{Allowed: false, RetryAfter: windowEnd.Sub(now)}
	}
	return Decision{Allowed: true}
}

func (l *RedisLimiter) onStoreError(err error, retryAfter time.Duration) Decision {
	if l.failPolicy == config.FailClosed {
		l.logger.Error("rate limit store unavailable, failing closed", "error", err)
		return Decision{Allowed: false, RetryAfter: retryAfter}
	}
	l.logger.Error("rate limit store unavailable, failing open", "error", err)
	return Decision{Allowed: true}
}

// Usage returns the request count in the current window, for admin views.
func (l *RedisLimiter) Usage(ctx context.Context, keyID string) (int64, error) {
	windowStart := l.now().Truncate(l.window)
	redisKey := fmt.Sprintf("ratelimit:%s:%d", keyID, windowStart.Unix())
	count, err := l.client.Get(ctx, redisKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read rate window: %w", err)
	}
	return count, nil
}

// Reset clears the current window for a key.
func (l *RedisLimiter) Reset(ctx context.Context, keyID string) error {
	windowStart := l.now().Truncate(l.window)
	redisKey := fmt.Sprintf("ratelimit:%s:%d", keyID, windowStart.Unix())
	return l.client.Del(ctx, redisKey).Err()
}
