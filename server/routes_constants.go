package server

// Route path constants
// All gateway routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes
	RouteAuthLogin    = "/api/auth/login"
	RouteAuthRegister = "/api/auth/register"
	RouteAuthRefresh  = "/api/auth/refresh"
	RouteAuthLogout   = "/api/auth/logout"
	RouteAuthMe       = "/api/auth/me"

	// Operational Routes
	RouteHealth = "/healthz"
)

// HeaderSilentAuthCheck marks a background session probe. It suppresses
// diagnostic logging on the gateway without altering response semantics.
const HeaderSilentAuthCheck = "X-Silent-Auth-Check"
