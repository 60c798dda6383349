// Package ratelimit caps registration attempts per client within a fixed
// window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type Limiter interface {
	// Allow records one attempt for key and reports whether it is within
	// the limit.
	Allow(ctx context.Context, key string) (bool, error)
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps counters in process memory. Counters are not shared
// between instances and are lost on restart.
type MemoryLimiter struct {
	mu     sync.Mutex
	max    int
	period time.Duration
	now    func() time.Time
	seen   map[string]*window
}

func NewMemoryLimiter(max int, period time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		max:    max,
		period: period,
		now:    time.Now,
		seen:   make(map[string]*window),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.seen[key]
	if !ok || !now.Before(w.resetAt) {
		l.seen[key] = &window{count: 1, resetAt: now.Add(l.period)}
		l.sweep(now)
		return true, nil
	}
	if w.count >= l.max {
		return false, nil
	}
	w.count++
	return true, nil
}

// sweep drops expired windows so the map does not grow without bound.
func (l *MemoryLimiter) sweep(now time.Time) {
	for k, w := range l.seen {
		if !now.Before(w.resetAt) {
			delete(l.seen, k)
		}
	}
}
