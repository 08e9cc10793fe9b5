package rate

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter: mismo fixed window que RedisLimiter pero por proceso.
// Sirve cuando el cache configurado es memory (dev, single node).
type MemoryLimiter struct {
	mu     sync.Mutex
	hits   map[string]int64
	win    time.Time
	max    int64
	window time.Duration
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		hits:   make(map[string]int64),
		max:    int64(max),
		window: window,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	winStart := now.Truncate(l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	if !winStart.Equal(l.win) {
		l.hits = make(map[string]int64)
		l.win = winStart
	}
	l.hits[key]++
	hits := l.hits[key]

	remaining := l.max - hits
	if remaining < 0 {
		remaining = 0
	}
	res := Result{Allowed: hits <= l.max, Remaining: remaining, CurrentHits: hits}
	if !res.Allowed {
		res.RetryAfter = winStart.Add(l.window).Sub(now)
	}
	return res, nil
}
