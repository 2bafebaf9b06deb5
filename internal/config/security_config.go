package config

import "time"

type SecurityConfig interface {
	GetJWTSecret() string
	GetSecureCookies() bool
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetJWTSecret() string {
	return GetEnv("JWT_SECRET", "dev-secret-change-me")
}

// GetSecureCookies reports whether session cookies must carry the Secure
// attribute. Defaults to true in production; COOKIE_SECURE overrides for
// TLS-terminating setups that differ from the environment default.
func (s Security) GetSecureCookies() bool {
	switch GetEnv("COOKIE_SECURE", "") {
	case "true", "1":
		return true
	case "false", "0":
		return false
	}
	return EnvVars{}.GetEnv() == "PROD"
}

func (Security) GetAccessTokenTTL() time.Duration {
	return 30 * time.Minute
}

func (Security) GetRefreshTokenTTL() time.Duration {
	return 7 * 24 * time.Hour // 7 days
}
