package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to clients in the response envelope.
// These are stable identifiers; client UIs map them to messages.
const (
	CodeNoToken         = "NO_TOKEN"
	CodeNoRefreshToken  = "NO_REFRESH_TOKEN"
	CodeInvalidRefresh  = "INVALID_REFRESH_TOKEN"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeRateLimited     = "RATE_LIMIT_EXCEEDED"
	CodeTimeout         = "TIMEOUT"
	CodeNetworkError    = "NETWORK_ERROR"
	CodeInvalidResponse = "INVALID_RESPONSE"
	CodeValidationError = "VALIDATION_ERROR"
	CodeServerError     = "SERVER_ERROR"
	CodeUnknown         = "UNKNOWN_ERROR"
)

// Common error types for the auth gateway
var (
	// Token errors
	ErrNoToken             = errors.New("no access token")
	ErrNoRefreshToken      = errors.New("no refresh token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")

	// Upstream errors
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrTimeout         = errors.New("upstream timeout")
	ErrNetwork         = errors.New("upstream unreachable")
	ErrInvalidResponse = errors.New("invalid upstream response")
	ErrUpstream        = errors.New("upstream error")

	// Gateway errors
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrValidation  = errors.New("validation failed")
)

// CodeFor maps an error chain to its taxonomy code.
// Unrecognised errors collapse to UNKNOWN_ERROR.
func CodeFor(err error) string {
	switch {
	case errors.Is(err, ErrNoToken):
		return CodeNoToken
	case errors.Is(err, ErrNoRefreshToken):
		return CodeNoRefreshToken
	case errors.Is(err, ErrInvalidRefreshToken):
		return CodeInvalidRefresh
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
		return CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrNetwork):
		return CodeNetworkError
	case errors.Is(err, ErrInvalidResponse):
		return CodeInvalidResponse
	case errors.Is(err, ErrValidation):
		return CodeValidationError
	case errors.Is(err, ErrUpstream):
		return CodeServerError
	default:
		return CodeUnknown
	}
}

// StatusFor maps an error chain to the HTTP status the gateway responds with.
// Upstream statuses pass through for 401/403; everything else collapses
// to 429/500/503/504.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNoToken),
		errors.Is(err, ErrNoRefreshToken),
		errors.Is(err, ErrInvalidRefreshToken),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrNetwork):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
