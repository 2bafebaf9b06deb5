package upstream

import "github.com/rentfolio/auth-gateway/users"

// AuthResponse is the success payload of the upstream login, register and
// refresh endpoints.
type AuthResponse struct {
	// AccessToken is the JWT used to access protected resources.
	// Usage: forwarded in the Authorization header: "Bearer <access_token>"
	// Lifespan: short-lived (30 minutes)
	AccessToken *string `json:"access_token,omitempty"`

	// RefreshToken is the longer-lived credential exchanged for new access
	// tokens. The upstream may reissue it on refresh; when omitted, the
	// previous refresh token remains valid (rotation is best-effort).
	RefreshToken *string `json:"refresh_token,omitempty"`

	// User is the account the tokens were issued for.
	User *users.User `json:"user,omitempty"`
}

// LoginRequest is the upstream login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the upstream registration payload.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest carries the refresh token to the upstream.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UpdateProfileRequest is the upstream profile-update payload. Empty
// fields are left unchanged.
type UpdateProfileRequest struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// errorBody is the loose shape of upstream error responses. Only used for
// diagnostics; raw upstream messages are never surfaced to clients.
type errorBody struct {
	Message    any    `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
}
