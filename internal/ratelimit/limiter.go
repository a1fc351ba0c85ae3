package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/voiverse/interview-server/internal/config"
)

const (
	maxEntries = 10000
	entryTTL   = 5 * time.Minute
)

type entry struct {
	timestamps []time.Time
	lastAccess time.Time
}

// Limiter is an in-memory sliding-window counter: one timestamp list per
// key, pruned on every touch. Counters are per process; deployments running
// multiple replicas should use the redis-backed variant instead.
type Limiter struct {
	limit  int
	window time.Duration

	mu        sync.Mutex
	store     map[string]*entry
	lastSweep time.Time
}

func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:     limit,
		window:    window,
		store:     make(map[string]*entry),
		lastSweep: time.Now(),
	}
}

// sweep drops idle keys so the map stays bounded. Called under the mutex.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < config.LimiterSweepEvery {
		return
	}
	l.lastSweep = now

	for key, e := range l.store {
		if now.Sub(e.lastAccess) > entryTTL {
			delete(l.store, key)
		}
	}

	if len(l.store) > maxEntries {
		drop := len(l.store) / 5
		for key := range l.store {
			delete(l.store, key)
			drop--
			if drop <= 0 {
				break
			}
		}
	}
}

// prune discards timestamps outside the window. Called under the mutex.
func (l *Limiter) prune(e *entry, now time.Time) {
	windowStart := now.Add(-l.window)
	kept := e.timestamps[:0]
	for _, ts := range e.timestamps {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	e.timestamps = kept
}

func (l *Limiter) touch(key string, now time.Time) *entry {
	e, ok := l.store[key]
	if !ok {
		e = &entry{}
		l.store[key] = e
	}
	e.lastAccess = now
	l.prune(e, now)
	return e
}

// check records the request if allowed and reports when the window frees up
// otherwise.
func (l *Limiter) check(key string) (allowed bool, resetAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.sweep(now)
	e := l.touch(key, now)

	if len(e.timestamps) >= l.limit {
		resetAfter = e.timestamps[0].Add(l.window).Sub(now)
		if resetAfter < 0 {
			resetAfter = 0
		}
		return false, resetAfter
	}

	e.timestamps = append(e.timestamps, now)
	return true, 0
}

// Allow records the request when under the limit.
func (l *Limiter) Allow(key string) bool {
	allowed, _ := l.check(key)
	return allowed
}

// Remaining reports how many requests the key has left in the window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.touch(key, time.Now())
	remaining := l.limit - len(e.timestamps)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// ResetAfter reports how long until the oldest recorded request leaves the
// window; zero when the key is idle.
func (l *Limiter) ResetAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	e := l.touch(key, now)
	if len(e.timestamps) == 0 {
		return 0
	}
	d := e.timestamps[0].Add(l.window).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Reset forgets the key entirely.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.store, key)
}

// Check implements ScopeLimiter.
func (l *Limiter) Check(_ context.Context, key string) (bool, time.Duration) {
	return l.check(key)
}
