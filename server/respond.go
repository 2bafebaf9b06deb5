package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/rentfolio/auth-gateway/internal/apperrors"
)

// Envelope is the uniform gateway response shape. HTTP status mirrors the
// semantic outcome; Error carries a taxonomy code the frontend maps to a
// localized message.
type Envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

const codeServerErrorMessage = "Something went wrong. Please try again."

// clientMessages are the fixed user-facing strings per taxonomy code.
// Raw upstream error messages are never forwarded.
var clientMessages = map[string]string{
	apperrors.CodeNoToken:         "Not authenticated.",
	apperrors.CodeNoRefreshToken:  "Session expired. Please log in again.",
	apperrors.CodeInvalidRefresh:  "Session expired. Please log in again.",
	apperrors.CodeUnauthorized:    "Invalid credentials or expired session.",
	apperrors.CodeForbidden:       "You do not have access to this resource.",
	apperrors.CodeRateLimited:     "Too many requests. Please wait a moment.",
	apperrors.CodeTimeout:         "The server took too long to respond.",
	apperrors.CodeNetworkError:    "The authentication service is unreachable.",
	apperrors.CodeInvalidResponse: codeServerErrorMessage,
	apperrors.CodeValidationError: "The request was invalid.",
	apperrors.CodeServerError:     codeServerErrorMessage,
	apperrors.CodeUnknown:         codeServerErrorMessage,
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		Success: false,
		Error:   &APIError{Message: message, Code: code},
	})
}

// writeFailure maps an error chain through the taxonomy and writes the
// failure envelope.
func writeFailure(w http.ResponseWriter, err error) {
	code := apperrors.CodeFor(err)
	message, ok := clientMessages[code]
	if !ok {
		message = codeServerErrorMessage
	}
	writeError(w, apperrors.StatusFor(err), message, code)
}

// clientIP identifies the caller for rate limiting. The first entry of
// X-Forwarded-For wins when a proxy sits in front of the gateway.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
