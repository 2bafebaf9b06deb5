package ratelimit

import "github.com/rentfolio/auth-gateway/internal/apperrors"

// ErrRateLimited is returned when a client key exceeds its request
// budget within the window.
var ErrRateLimited = apperrors.ErrRateLimited
