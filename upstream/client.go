package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rentfolio/auth-gateway/internal/apperrors"
	"github.com/rentfolio/auth-gateway/users"
)

// Upstream identity backend paths.
const (
	PathLogin   = "/auth/login"
	PathRefresh = "/auth/refresh-token"
	PathLogout  = "/auth/logout"
	PathMe      = "/auth/me"

	PathRegister = "/auth/register"
	PathProfile  = "/auth/profile"
)

// Client talks to the upstream identity backend over HTTP. Every call is
// bounded by the configured timeout and never retried; the caller decides
// whether to retry. Transport failures are mapped onto the gateway error
// taxonomy, never propagated raw.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	log        zerolog.Logger
}

// New creates an upstream client for the given base URL.
func New(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		log:        log.With().Str("component", "upstream").Logger(),
	}
}

// Login exchanges credentials for a token pair and the user record.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, PathLogin, LoginRequest{Email: email, Password: password}, "", &out); err != nil {
		return nil, err
	}
	return validateAuthResponse(&out)
}

// Register creates an account upstream and returns the initial session.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, PathRegister, req, "", &out); err != nil {
		return nil, err
	}
	return validateAuthResponse(&out)
}

// Refresh exchanges a refresh token for a new access token. The upstream
// may or may not rotate the refresh token; RefreshToken is nil when it
// does not. A 401 here means the refresh token is invalid or expired.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, http.MethodPost, PathRefresh, RefreshRequest{RefreshToken: refreshToken}, "", &out)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnauthorized) {
			return nil, apperrors.ErrInvalidRefreshToken
		}
		return nil, err
	}
	if out.AccessToken == nil || out.User == nil {
		return nil, apperrors.ErrInvalidResponse
	}
	return &out, nil
}

// Logout asks the upstream to invalidate the refresh token. Best-effort:
// callers treat failures as non-fatal.
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	return c.do(ctx, http.MethodPost, PathLogout, RefreshRequest{RefreshToken: refreshToken}, accessToken, nil)
}

// Me validates the access token upstream and returns the current user.
func (c *Client) Me(ctx context.Context, accessToken string) (*users.User, error) {
	var out struct {
		User *users.User `json:"user,omitempty"`
	}
	if err := c.do(ctx, http.MethodGet, PathMe, nil, accessToken, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, apperrors.ErrInvalidResponse
	}
	return out.User, nil
}

// UpdateProfile updates the user's name/email upstream.
func (c *Client) UpdateProfile(ctx context.Context, accessToken string, req UpdateProfileRequest) (*users.User, error) {
	var out struct {
		User *users.User `json:"user,omitempty"`
	}
	if err := c.do(ctx, http.MethodPut, PathProfile, req, accessToken, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, apperrors.ErrInvalidResponse
	}
	return out.User, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, bearer string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("upstream request encode: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("upstream request build: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError(path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(path, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.log.Error().Err(err).Str("path", path).Msg("upstream response did not parse")
		return apperrors.Wrapf(apperrors.ErrInvalidResponse, "decode %s", path)
	}
	return nil
}

func validateAuthResponse(resp *AuthResponse) (*AuthResponse, error) {
	if resp.AccessToken == nil || resp.RefreshToken == nil || resp.User == nil {
		return nil, apperrors.ErrInvalidResponse
	}
	return resp, nil
}

// transportError distinguishes timeouts from connection failures. DNS
// errors, refused connections and aborts all land on ErrNetwork.
func (c *Client) transportError(path string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		c.log.Warn().Str("path", path).Msg("upstream call timed out")
		return apperrors.Wrapf(apperrors.ErrTimeout, "%s", path)
	}
	c.log.Warn().Err(err).Str("path", path).Msg("upstream unreachable")
	return apperrors.Wrapf(apperrors.ErrNetwork, "%s", path)
}

func (c *Client) statusError(path string, resp *http.Response) error {
	var body errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	c.log.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Interface("upstream_error", body.Message).
		Msg("upstream returned an error status")

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return apperrors.ErrUnauthorized
	case http.StatusForbidden:
		return apperrors.ErrForbidden
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return apperrors.Wrapf(apperrors.ErrValidation, "upstream status %d", resp.StatusCode)
	default:
		return apperrors.Wrapf(apperrors.ErrUpstream, "upstream status %d", resp.StatusCode)
	}
}
