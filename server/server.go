package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rentfolio/auth-gateway/internal/config"
	"github.com/rentfolio/auth-gateway/ratelimit"
	"github.com/rentfolio/auth-gateway/session"
	"github.com/rentfolio/auth-gateway/upstream"
)

// Server is the auth gateway: it terminates the browser's session cookies
// and proxies credential operations to the upstream identity backend.
// Apart from the injected rate limiter it holds no cross-request state.
type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	log      zerolog.Logger
	cookies  *session.CookieStore
	identity *upstream.Client
	limiter  ratelimit.Limiter
}

func New(cfg config.Config, log zerolog.Logger, identity *upstream.Client, limiter ratelimit.Limiter) *Server {
	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		log:      log.With().Str("component", "gateway").Logger(),
		identity: identity,
		limiter:  limiter,
		cookies: session.NewCookieStore(
			cfg.GetSecureCookies(),
			cfg.GetAccessTokenTTL(),
			cfg.GetRefreshTokenTTL(),
		),
	}

	s.initRoutes()
	s.logRoutes()

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	fmt.Printf("[%-19s] %s\n", displayMethod, path)
}
