// Package client is the Go SDK for the auth gateway. A Session plays the
// role the browser auth context plays in the web frontend: it holds the
// current user, drives login/logout/refresh against the gateway routes and
// carries the httpOnly session cookies in its jar.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rentfolio/auth-gateway/server"
	"github.com/rentfolio/auth-gateway/users"
)

// State is the session lifecycle position.
type State string

const (
	StateAnonymous      State = "anonymous"
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
	StateRefreshing     State = "refreshing"
)

// APIError is a gateway failure surfaced to the caller. Code is the
// taxonomy identifier the UI maps to a localized message.
type APIError struct {
	Code    string
	Message string
	Status  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Session holds the authenticated user and the session cookies.
// Safe for concurrent use; concurrent Refresh calls are coalesced into a
// single in-flight request.
type Session struct {
	baseURL    string
	httpClient *http.Client
	status     *Status
	log        zerolog.Logger

	lock        sync.Mutex
	state       State
	user        *users.User
	lastErr     error
	refreshWait chan struct{}
	refreshErr  error
}

type SessionOption func(*Session)

// WithHTTPClient replaces the default HTTP client. The client's jar is
// replaced with a fresh cookie jar.
func WithHTTPClient(httpClient *http.Client) SessionOption {
	return func(s *Session) {
		s.httpClient = httpClient
	}
}

// NewSession creates a session against the gateway at baseURL. The
// returned session is anonymous; call Hydrate to pick up an existing
// cookie-backed session without surfacing errors.
func NewSession(baseURL string, status *Status, log zerolog.Logger, options ...SessionOption) (*Session, error) {
	if status == nil {
		status = NewStatus()
	}

	s := &Session{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		status:     status,
		log:        log.With().Str("component", "auth-client").Logger(),
		state:      StateAnonymous,
	}
	for _, opt := range options {
		opt(s)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("client.NewSession cookie jar: %w", err)
	}
	s.httpClient.Jar = jar

	return s, nil
}

// CurrentUser returns the authenticated user, or nil when anonymous.
func (s *Session) CurrentUser() *users.User {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.user
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

// Err returns the last operation error, if any.
func (s *Session) Err() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.lastErr
}

// ClearError discards the stored error.
func (s *Session) ClearError() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.lastErr = nil
}

// Status exposes the logout coordinator shared with other modules.
func (s *Session) Status() *Status {
	return s.status
}

// Hydrate performs the silent session check: a me call with the silent
// header that populates the user when cookies still carry a live session.
// Failures never surface; an anonymous result is a normal outcome.
func (s *Session) Hydrate(ctx context.Context) {
	if s.status.IsLoggingOut() {
		return
	}

	user, err := s.fetchUser(ctx, true)
	if err != nil {
		s.log.Debug().Msg("silent session check: no live session")
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.status.IsLoggingOut() {
		return // logout raced the probe; stay anonymous
	}
	s.user = user
	s.state = StateAuthenticated
}

// Login authenticates and stores the user. Navigation after login is the
// caller's concern.
func (s *Session) Login(ctx context.Context, email, password string) (*users.User, error) {
	s.setState(StateAuthenticating)

	user, err := s.postForUser(ctx, server.RouteAuthLogin,
		map[string]string{"email": email, "password": password})
	return s.applyAuthResult(user, err)
}

// Register creates an account and opens its first session.
func (s *Session) Register(ctx context.Context, name, email, password string) (*users.User, error) {
	s.setState(StateAuthenticating)

	user, err := s.postForUser(ctx, server.RouteAuthRegister,
		map[string]string{"name": name, "email": email, "password": password})
	return s.applyAuthResult(user, err)
}

// Logout ends the session. From the caller's perspective it always
// succeeds: the local user is cleared even when the gateway is down.
func (s *Session) Logout(ctx context.Context) {
	s.status.SetLoggingOut(true)
	defer s.status.SetLoggingOut(false)

	if _, err := s.do(ctx, http.MethodPost, server.RouteAuthLogout, nil, false); err != nil {
		s.log.Warn().Err(err).Msg("logout call failed, clearing local session anyway")
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.user = nil
	s.state = StateAnonymous
	s.lastErr = nil
}

// Refresh obtains a fresh access token. Concurrent callers coalesce into
// one in-flight request and share its outcome; a terminal failure clears
// the user. Suppressed while a logout is in progress.
func (s *Session) Refresh(ctx context.Context) error {
	if s.status.IsLoggingOut() {
		return nil
	}

	s.lock.Lock()
	if wait := s.refreshWait; wait != nil {
		s.lock.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.lock.Lock()
		defer s.lock.Unlock()
		return s.refreshErr
	}

	wait := make(chan struct{})
	s.refreshWait = wait
	s.state = StateRefreshing
	s.lock.Unlock()

	user, err := s.postForUser(ctx, server.RouteAuthRefresh, nil)

	s.lock.Lock()
	if err != nil {
		s.user = nil
		s.state = StateAnonymous
		s.lastErr = err
	} else if s.status.IsLoggingOut() {
		// A logout won the race; do not repopulate the user.
		s.state = StateAnonymous
	} else {
		s.user = user
		s.state = StateAuthenticated
	}
	s.refreshErr = err
	s.refreshWait = nil
	s.lock.Unlock()
	close(wait)

	return err
}

// UpdateUser changes the profile of the authenticated user. Empty fields
// are left unchanged.
func (s *Session) UpdateUser(ctx context.Context, name, email string) (*users.User, error) {
	body := map[string]string{}
	if name != "" {
		body["name"] = name
	}
	if email != "" {
		body["email"] = email
	}

	payload, err := s.do(ctx, http.MethodPut, server.RouteAuthMe, body, false)
	if err != nil {
		s.recordError(err)
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.user = payload.User
	return payload.User, nil
}

func (s *Session) applyAuthResult(user *users.User, err error) (*users.User, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err != nil {
		s.user = nil
		s.state = StateAnonymous
		s.lastErr = err
		return nil, err
	}
	s.user = user
	s.state = StateAuthenticated
	s.lastErr = nil
	return user, nil
}

func (s *Session) setState(state State) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.state = state
}

func (s *Session) recordError(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.lastErr = err
}

func (s *Session) fetchUser(ctx context.Context, silent bool) (*users.User, error) {
	payload, err := s.do(ctx, http.MethodGet, server.RouteAuthMe, nil, silent)
	if err != nil {
		return nil, err
	}
	return payload.User, nil
}

func (s *Session) postForUser(ctx context.Context, path string, body any) (*users.User, error) {
	payload, err := s.do(ctx, http.MethodPost, path, body, false)
	if err != nil {
		return nil, err
	}
	return payload.User, nil
}

type dataPayload struct {
	User *users.User `json:"user,omitempty"`
}

type envelope struct {
	Success bool             `json:"success"`
	Data    *dataPayload     `json:"data,omitempty"`
	Error   *server.APIError `json:"error,omitempty"`
}

func (s *Session) do(ctx context.Context, method, path string, body any, silent bool) (*dataPayload, error) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("client request encode: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("client request build: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if silent {
		req.Header.Set(server.HeaderSilentAuthCheck, "1")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client request: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("client response decode: %w", err)
	}

	if !env.Success || resp.StatusCode > 299 {
		apiErr := &APIError{Code: "UNKNOWN_ERROR", Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return nil, apiErr
	}
	if env.Data == nil {
		return &dataPayload{}, nil
	}
	return env.Data, nil
}
