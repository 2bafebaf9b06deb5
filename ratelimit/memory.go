package ratelimit

import (
	"context"
	"sync"
	"time"
)

type windowEntry struct {
	count       int
	windowStart time.Time
}

// MemoryLimiter is a process-local sliding-window counter keyed by client
// identifier. Best-effort only: counters are not shared across instances,
// so a multi-instance deployment needs the Redis limiter instead.
type MemoryLimiter struct {
	config  Config
	nowFunc func() time.Time

	lock    sync.Mutex
	entries map[string]*windowEntry
}

type MemoryOption func(*MemoryLimiter)

func WithNowFunc(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) {
		l.nowFunc = now
	}
}

// NewMemoryLimiter creates an in-memory [Limiter] with the given config.
func NewMemoryLimiter(cfg Config, options ...MemoryOption) *MemoryLimiter {
	l := &MemoryLimiter{
		config:  cfg,
		nowFunc: time.Now,
		entries: make(map[string]*windowEntry),
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

var _ Limiter = (*MemoryLimiter)(nil)

// Allow records a request for key. The counter resets when the window has
// elapsed; within a window the count never exceeds MaxRequests before
// ErrRateLimited is returned.
func (l *MemoryLimiter) Allow(_ context.Context, key string) error {
	now := l.nowFunc()

	l.lock.Lock()
	defer l.lock.Unlock()

	entry, ok := l.entries[key]
	if !ok || now.Sub(entry.windowStart) > l.config.Window {
		entry = &windowEntry{windowStart: now}
		l.entries[key] = entry
	}

	entry.count++
	if entry.count > l.config.MaxRequests {
		return ErrRateLimited
	}
	return nil
}

// Prune drops entries whose window has elapsed. Called periodically so the
// map does not grow with one entry per client forever.
func (l *MemoryLimiter) Prune() {
	now := l.nowFunc()

	l.lock.Lock()
	defer l.lock.Unlock()

	for key, entry := range l.entries {
		if now.Sub(entry.windowStart) > l.config.Window {
			delete(l.entries, key)
		}
	}
}
