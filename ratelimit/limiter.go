package ratelimit

import (
	"context"
	"time"
)

// Limiter guards the refresh endpoint against abuse. Allow records one
// request for the given client key and returns ErrRateLimited once the
// key exceeds its budget for the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

// Config holds rate limiter tuning parameters.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultConfig mirrors the production defaults: 30 refresh calls per
// client per minute.
func DefaultConfig() Config {
	return Config{
		MaxRequests: 30,
		Window:      60 * time.Second,
	}
}
