// Package upstreamtest provides an in-memory identity backend implementing
// the wire contract the gateway expects upstream. It backs the gateway's
// integration tests and the identity-stub binary used for local development.
package upstreamtest

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/rentfolio/auth-gateway/internal/utils"
	"github.com/rentfolio/auth-gateway/token"
	"github.com/rentfolio/auth-gateway/upstream"
	"github.com/rentfolio/auth-gateway/users"
)

// Account is a stored credential set. Passwords are bcrypt-hashed like the
// real backend's.
type Account struct {
	User         users.User
	PasswordHash string
}

// Server is an http.Handler implementing the upstream auth endpoints
// against in-memory state. It counts calls per path so tests can assert
// that rate-limited or short-circuited requests never reached it.
type Server struct {
	tokens        *token.Service
	rotateRefresh bool

	lock     sync.Mutex
	accounts map[string]*Account // keyed by email
	revoked  map[string]struct{} // revoked refresh-token jtis
	calls    map[string]int
}

type ServerOption func(*Server)

// WithoutRefreshRotation makes refresh responses omit a new refresh token,
// exercising the reuse path the real backend sometimes takes.
func WithoutRefreshRotation() ServerOption {
	return func(s *Server) {
		s.rotateRefresh = false
	}
}

func New(tokens *token.Service, options ...ServerOption) *Server {
	s := &Server{
		tokens:        tokens,
		rotateRefresh: true,
		accounts:      make(map[string]*Account),
		revoked:       make(map[string]struct{}),
		calls:         make(map[string]int),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// AddAccount stores an account with a bcrypt-hashed password and returns it.
func (s *Server) AddAccount(name, email, password string, role users.RoleType) (*Account, error) {
	hash, err := users.HashPassword(password)
	if err != nil {
		return nil, err
	}

	account := &Account{
		User: users.User{
			ID:    uuid.New().String(),
			Name:  name,
			Email: email,
			Role:  role,
		},
		PasswordHash: hash,
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.accounts[email] = account
	return account, nil
}

// Calls returns how many requests the given path has received.
func (s *Server) Calls(path string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.calls[path]
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	s.calls[r.URL.Path]++
	s.lock.Unlock()

	switch r.Method + " " + r.URL.Path {
	case "POST " + upstream.PathLogin:
		s.handleLogin(w, r)
	case "POST " + upstream.PathRegister:
		s.handleRegister(w, r)
	case "POST " + upstream.PathRefresh:
		s.handleRefresh(w, r)
	case "POST " + upstream.PathLogout:
		s.handleLogout(w, r)
	case "GET " + upstream.PathMe:
		s.handleMe(w, r)
	case "PUT " + upstream.PathProfile:
		s.handleProfile(w, r)
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "not found"})
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req upstream.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "invalid body"})
		return
	}

	s.lock.Lock()
	account, ok := s.accounts[req.Email]
	s.lock.Unlock()

	if !ok || !users.CheckPasswordHash(req.Password, account.PasswordHash) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid credentials"})
		return
	}

	s.issueSession(w, http.StatusOK, &account.User)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req upstream.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "invalid body"})
		return
	}
	if err := users.ValidatePasswordStrength(req.Password); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}

	s.lock.Lock()
	_, exists := s.accounts[req.Email]
	s.lock.Unlock()
	if exists {
		writeJSON(w, http.StatusConflict, map[string]any{"message": "email already registered"})
		return
	}

	account, err := s.AddAccount(req.Name, req.Email, req.Password, users.RoleOwner)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "hashing failed"})
		return
	}

	s.issueSession(w, http.StatusCreated, &account.User)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req upstream.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "invalid body"})
		return
	}

	claims, err := s.tokens.Verify(req.RefreshToken, token.KindRefresh)
	if err != nil || s.isRevoked(claims.JTI) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid refresh token"})
		return
	}

	user := claims.User()
	access, err := s.tokens.Issue(user, token.KindAccess)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "token issue failed"})
		return
	}

	resp := upstream.AuthResponse{AccessToken: &access, User: user}
	if s.rotateRefresh {
		refresh, err := s.tokens.Issue(user, token.KindRefresh)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "token issue failed"})
			return
		}
		s.revoke(claims.JTI)
		resp.RefreshToken = &refresh
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req upstream.RefreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	// Invalidate the refresh token if it is still valid; logout never fails.
	if claims, err := s.tokens.Verify(req.RefreshToken, token.KindRefresh); err == nil {
		s.revoke(claims.JTI)
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.bearerClaims(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid access token"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": claims.User()})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.bearerClaims(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid access token"})
		return
	}

	var req upstream.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "invalid body"})
		return
	}

	s.lock.Lock()
	account, ok := s.accounts[claims.Email]
	if ok {
		if req.Name != "" {
			account.User.Name = req.Name
		}
		if req.Email != "" && req.Email != claims.Email {
			delete(s.accounts, claims.Email)
			account.User.Email = req.Email
			s.accounts[req.Email] = account
		}
	}
	s.lock.Unlock()

	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "unknown account"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": account.User})
}

func (s *Server) issueSession(w http.ResponseWriter, status int, user *users.User) {
	access, err := s.tokens.Issue(user, token.KindAccess)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "token issue failed"})
		return
	}
	refresh, err := s.tokens.Issue(user, token.KindRefresh)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "token issue failed"})
		return
	}

	writeJSON(w, status, upstream.AuthResponse{
		AccessToken:  utils.Ptr(access),
		RefreshToken: utils.Ptr(refresh),
		User:         user,
	})
}

func (s *Server) bearerClaims(r *http.Request) (*token.Claims, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, false
	}
	claims, err := s.tokens.Verify(strings.TrimPrefix(header, "Bearer "), token.KindAccess)
	if err != nil {
		return nil, false
	}
	return claims, true
}

func (s *Server) isRevoked(jti string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, ok := s.revoked[jti]
	return ok
}

func (s *Server) revoke(jti string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.revoked[jti] = struct{}{}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
