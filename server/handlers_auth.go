package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/rentfolio/auth-gateway/internal/apperrors"
	"github.com/rentfolio/auth-gateway/internal/utils"
	"github.com/rentfolio/auth-gateway/upstream"
	"github.com/rentfolio/auth-gateway/users"
)

// requestLogger returns the logger scoped to this request. Silent checks
// get a disabled logger so background probes produce no diagnostics.
func (s *Server) requestLogger(r *http.Request) zerolog.Logger {
	if r.Header.Get(HeaderSilentAuthCheck) == "1" {
		return s.log.Level(zerolog.Disabled)
	}
	return s.log
}

// PreflightHandler terminates OPTIONS requests that carried no Origin
// header; CORS preflights never reach it.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// HealthHandler reports gateway liveness. It does not probe the upstream.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// LoginHandler exchanges credentials for a session. On upstream success
// both token cookies are set together; on any failure no cookie is touched.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req upstream.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
			writeFailure(w, apperrors.Wrapf(apperrors.ErrValidation, "login body"))
			return
		}

		resp, err := s.identity.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			s.log.Debug().Str("email", req.Email).Str("code", apperrors.CodeFor(err)).Msg("login rejected")
			writeFailure(w, err)
			return
		}

		s.cookies.SetSession(w, utils.Value(resp.AccessToken), utils.Value(resp.RefreshToken))
		s.log.Info().Str("user_id", resp.User.ID).Msg("login")
		writeSuccess(w, http.StatusOK, map[string]*users.User{"user": resp.User})
	}
}

// RegisterHandler creates an account upstream and opens a session for it.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req upstream.RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Name == "" {
			writeFailure(w, apperrors.Wrapf(apperrors.ErrValidation, "register body"))
			return
		}
		if err := users.ValidatePasswordStrength(req.Password); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), apperrors.CodeValidationError)
			return
		}

		resp, err := s.identity.Register(r.Context(), req)
		if err != nil {
			writeFailure(w, err)
			return
		}

		s.cookies.SetSession(w, utils.Value(resp.AccessToken), utils.Value(resp.RefreshToken))
		s.log.Info().Str("user_id", resp.User.ID).Msg("account registered")
		writeSuccess(w, http.StatusCreated, map[string]*users.User{"user": resp.User})
	}
}

// RefreshHandler exchanges the refresh-token cookie for a fresh access
// token. Rate limited per client IP before the upstream is contacted; an
// upstream rejection clears both cookies so clients cannot loop forever.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := s.requestLogger(r)

		refreshToken, ok := s.cookies.RefreshToken(r)
		if !ok {
			writeFailure(w, apperrors.ErrNoRefreshToken)
			return
		}

		ip := clientIP(r)
		if err := s.limiter.Allow(r.Context(), ip); err != nil {
			if apperrors.Is(err, apperrors.ErrRateLimited) {
				logger.Warn().Str("client_ip", ip).Msg("refresh rate limit exceeded")
				writeFailure(w, err)
				return
			}
			// Limiter backend trouble is not the client's fault; let the
			// refresh through and leave a trace.
			logger.Error().Err(err).Msg("rate limiter unavailable, allowing request")
		}

		resp, err := s.identity.Refresh(r.Context(), refreshToken)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrInvalidRefreshToken) {
				s.cookies.ClearSession(w)
			}
			logger.Debug().Str("code", apperrors.CodeFor(err)).Msg("refresh failed")
			writeFailure(w, err)
			return
		}

		if resp.RefreshToken != nil {
			// Upstream rotated the refresh token; replace both cookies.
			s.cookies.SetSession(w, utils.Value(resp.AccessToken), utils.Value(resp.RefreshToken))
		} else {
			s.cookies.SetAccessToken(w, utils.Value(resp.AccessToken))
		}
		writeSuccess(w, http.StatusOK, map[string]*users.User{"user": resp.User})
	}
}

// LogoutHandler ends the session. The upstream invalidation is best
// effort; the cookies are always cleared and the response is always a
// success, even when no session existed.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accessToken, _ := s.cookies.AccessToken(r)
		refreshToken, hasRefresh := s.cookies.RefreshToken(r)

		if hasRefresh {
			if err := s.identity.Logout(r.Context(), accessToken, refreshToken); err != nil {
				s.log.Warn().Str("code", apperrors.CodeFor(err)).Msg("upstream logout failed, clearing session anyway")
			}
		}

		s.cookies.ClearSession(w)
		writeSuccess(w, http.StatusOK, map[string]string{"message": "logged out"})
	}
}

// MeHandler validates the session by forwarding the access token upstream.
// A 401 from the upstream deletes the access-token cookie so the client
// falls back to refresh instead of retrying a dead token.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := s.requestLogger(r)

		accessToken, ok := s.cookies.AccessToken(r)
		if !ok {
			writeFailure(w, apperrors.ErrNoToken)
			return
		}

		user, err := s.identity.Me(r.Context(), accessToken)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrUnauthorized) {
				s.cookies.ClearAccessToken(w)
			}
			logger.Debug().Str("code", apperrors.CodeFor(err)).Msg("session check failed")
			writeFailure(w, err)
			return
		}

		writeSuccess(w, http.StatusOK, map[string]*users.User{"user": user})
	}
}

// UpdateMeHandler proxies profile updates for the authenticated user.
func (s *Server) UpdateMeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accessToken, ok := s.cookies.AccessToken(r)
		if !ok {
			writeFailure(w, apperrors.ErrNoToken)
			return
		}

		var req upstream.UpdateProfileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeFailure(w, apperrors.Wrapf(apperrors.ErrValidation, "profile body"))
			return
		}

		user, err := s.identity.UpdateProfile(r.Context(), accessToken, req)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrUnauthorized) {
				s.cookies.ClearAccessToken(w)
			}
			writeFailure(w, err)
			return
		}

		s.log.Info().Str("user_id", user.ID).Msg("profile updated")
		writeSuccess(w, http.StatusOK, map[string]*users.User{"user": user})
	}
}
