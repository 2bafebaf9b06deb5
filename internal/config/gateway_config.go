package config

import "time"

// GatewayConfig covers the upstream identity backend connection and the
// refresh-endpoint rate limit.
type GatewayConfig interface {
	GetBackendURL() string
	GetUpstreamTimeout() time.Duration
	GetRedisAddr() string
	GetRefreshRateLimit() int
	GetRefreshRateWindow() time.Duration
}

type Gateway struct{}

var _ GatewayConfig = Gateway{}

// GetBackendURL returns the base URL of the upstream identity backend.
func (Gateway) GetBackendURL() string {
	return GetEnv("BACKEND_URL", "http://localhost:5000")
}

// GetUpstreamTimeout bounds every call to the upstream identity backend.
func (Gateway) GetUpstreamTimeout() time.Duration {
	return time.Duration(GetEnvAsInt("UPSTREAM_TIMEOUT_SECONDS", 10)) * time.Second
}

// GetRedisAddr returns the Redis address for the shared rate limiter.
// Empty means the in-memory limiter is used (single-instance deployments).
func (Gateway) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "")
}

func (Gateway) GetRefreshRateLimit() int {
	return GetEnvAsInt("REFRESH_RATE_LIMIT", 30)
}

func (Gateway) GetRefreshRateWindow() time.Duration {
	return time.Duration(GetEnvAsInt("REFRESH_RATE_WINDOW_SECONDS", 60)) * time.Second
}
