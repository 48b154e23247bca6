package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc_gateway/internal/config"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func testRateConfig(limit int, window time.Duration) config.RateLimitConfig {
	return config.RateLimitConfig{
		RequestsPerWindow: limit,
		Window:            window,
		FailPolicy:        config.FailOpen,
	}
}

func TestRedisLimiter_AllowsWithinLimit(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	limiter := NewRedisLimiter(client, testRateConfig(5, time.Minute), nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d := limiter.Allow(ctx, "key-1")
		assert.True(t, d.Allowed, "request %d should be allowed", i+1)
		assert.Zero(t, d.RetryAfter)
	}
}

func TestRedisLimiter_RejectsOverLimit(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	limiter := NewRedisLimiter(client, testRateConfig(60, time.Minute), nil)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		require.True(t, limiter.Allow(ctx, "key-61").Allowed)
	}

	d := limiter.Allow(ctx, "key-61")
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)
}

func TestRedisLimiter_PerKeyIsolation(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	limiter := NewRedisLimiter(client, testRateConfig(2, time.Minute), nil)
	ctx := context.Background()

	require.True(t, limiter.Allow(ctx, "key-a").Allowed)
	require.True(t, limiter.Allow(ctx, "key-a").Allowed)
	assert.False(t, limiter.Allow(ctx, "key-a").Allowed)

	// another key is unaffected
	assert.True(t, limiter.Allow(ctx, "key-b").Allowed)
}

func TestRedisLimiter_WindowRollover(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	limiter := NewRedisLimiter(client, testRateConfig(1, time.Minute), nil)
	base := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)
	limiter.now = func() time.Time { return base }
	ctx := context.Background()

	require.True(t, limiter.Allow(ctx, "key-r").Allowed)
	require.False(t, limiter.Allow(ctx, "key-r").Allowed)

	// boundary request counts against the fresh window
	limiter.now = func() time.Time { return base.Add(30 * time.Second) }
	assert.True(t, limiter.Allow(ctx, "key-r").Allowed)
}

func TestRedisLimiter_FailOpen(t *testing.T) {
	client, mr := setupTestRedis(t)
	limiter := NewRedisLimiter(client, testRateConfig(5, time.Minute), nil)
	mr.Close()

	d := limiter.Allow(context.Background(), "key-open")
	assert.True(t, d.Allowed)
}

func TestRedisLimiter_FailClosed(t *testing.T) {
	client, mr := setupTestRedis(t)
	cfg := testRateConfig(5, time.Minute)
	cfg.FailPolicy = config.FailClosed
	limiter := NewRedisLimiter(client, cfg, nil)
	mr.Close()

	d := limiter.Allow(context.Background(), "key-closed")
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestRedisLimiter_ZeroLimitDisables(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	limiter := NewRedisLimiter(client, testRateConfig(0, time.Minute), nil)
	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Allow(context.Background(), "key-z").Allowed)
	}
}

func TestRedisLimiter_Usage(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	limiter := NewRedisLimiter(client, testRateConfig(10, time.Minute), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, limiter.Allow(ctx, "key-u").Allowed)
	}

	count, err := limiter.Usage(ctx, "key-u")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	count, err = limiter.Usage(ctx, "key-untouched")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestMemoryLimiter(t *testing.T) {
	limiter := NewMemoryLimiter(testRateConfig(2, time.Minute))
	base := time.Date(2026, 1, 1, 12, 0, 59, 0, time.UTC)
	limiter.now = func() time.Time { return base }
	ctx := context.Background()

	require.True(t, limiter.Allow(ctx, "key-m").Allowed)
	require.True(t, limiter.Allow(ctx, "key-m").Allowed)

	d := limiter.Allow(ctx, "key-m")
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Second, d.RetryAfter)

	// next window
	limiter.now = func() time.Time { return base.Add(time.Second) }
	assert.True(t, limiter.Allow(ctx, "key-m").Allowed)
}

func TestMemoryLimiter_DropsIdleKeysOnRollover(t *testing.T) {
	limiter := NewMemoryLimiter(testRateConfig(10, time.Minute))
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return base }
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		limiter.Allow(ctx, fmt.Sprintf("key-%d", i))
	}

	limiter.mu.Lock()
	tracked := len(limiter.counts)
	limiter.mu.Unlock()
	require.Equal(t, 100, tracked)

	// only one key keeps sending after the window turns over
	limiter.now = func() time.Time { return base.Add(time.Minute) }
	require.True(t, limiter.Allow(ctx, "key-0").Allowed)

	limiter.mu.Lock()
	tracked = len(limiter.counts)
	limiter.mu.Unlock()
	assert.Equal(t, 1, tracked)
}
