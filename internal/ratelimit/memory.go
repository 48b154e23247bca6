package ratelimit

import (
	"context"
	"sync"
	"time"

	"doc_gateway/internal/config"
)

// MemoryLimiter is a single-process fixed-window limiter for standalone
// deployments without Redis. Same window semantics as RedisLimiter.
type MemoryLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	counts    map[string]*memoryWindow
	lastSweep time.Time
	now       clock
}

type memoryWindow struct {
	start time.Time
	count int
}

func NewMemoryLimiter(cfg config.RateLimitConfig) *MemoryLimiter {
	return &MemoryLimiter{
		limit:  cfg.RequestsPerWindow,
		window: cfg.Window,
		counts: make(map[string]*memoryWindow),
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, keyID string) Decision {
	if l.limit <= 0 {
		return Decision{Allowed: true}
	}

	now := l.now()
	windowStart := now.Truncate(l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	// on rollover, drop every key that stopped sending; without this the
	// map grows for the lifetime of the process
	if l.lastSweep.Before(windowStart) {
		for k, w := range l.counts {
			if !w.start.Equal(windowStart) {
				delete(l.counts, k)
			}
		}
		l.lastSweep = windowStart
	}

	w, ok := l.counts[keyID]
	if !ok || !w.start.Equal(windowStart) {
		w = &memoryWindow{start: windowStart}
		l.counts[keyID] = w
	}
	w.count++

	if w.count > l.limit {
		return Decision{Allowed: false, RetryAfter: windowStart.Add(l.window).Sub(now)}
	}
	return Decision{Allowed: true}
}
