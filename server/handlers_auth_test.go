package server_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rentfolio/auth-gateway/internal/apperrors"
	"github.com/rentfolio/auth-gateway/internal/config"
	"github.com/rentfolio/auth-gateway/ratelimit"
	"github.com/rentfolio/auth-gateway/server"
	"github.com/rentfolio/auth-gateway/session"
	"github.com/rentfolio/auth-gateway/token"
	"github.com/rentfolio/auth-gateway/upstream"
	"github.com/rentfolio/auth-gateway/upstream/upstreamtest"
)

const authJSON = `{"access_token":"T1","refresh_token":"R1","user":{"id":"u1","name":"A","email":"a@b.com","role":"OWNER"}}`

// countingHandler wraps an upstream stand-in and counts requests so tests
// can assert which calls never reached it.
type countingHandler struct {
	calls   atomic.Int64
	handler http.HandlerFunc
}

func (c *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.calls.Add(1)
	c.handler(w, r)
}

func newGateway(t *testing.T, upstreamHandler http.Handler, limiter ratelimit.Limiter) *server.Server {
	t.Helper()

	up := httptest.NewServer(upstreamHandler)
	t.Cleanup(up.Close)

	identity := upstream.New(up.URL, 2*time.Second, zerolog.Nop())
	if limiter == nil {
		limiter = ratelimit.NewMemoryLimiter(ratelimit.DefaultConfig())
	}
	return server.New(config.New(), zerolog.Nop(), identity, limiter)
}

func doRequest(gw *server.Server, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, reader)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, r)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) server.Envelope {
	t.Helper()
	var env server.Envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func setCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLoginSetsBothCookiesAndReturnsUser(t *testing.T) {
	// Scenario: upstream accepts the credentials and returns T1/R1.
	counting := &countingHandler{handler: func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, upstream.PathLogin, r.URL.Path)
		_, _ = w.Write([]byte(authJSON))
	}}
	gw := newGateway(t, counting, nil)

	rec := doRequest(gw, http.MethodPost, server.RouteAuthLogin, `{"email":"a@b.com","password":"secret"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	access := setCookie(rec, session.AccessCookieName)
	require.NotNil(t, access)
	require.Equal(t, "T1", access.Value)
	require.True(t, access.HttpOnly)

	refresh := setCookie(rec, session.RefreshCookieName)
	require.NotNil(t, refresh)
	require.Equal(t, "R1", refresh.Value)

	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)
	user := env.Data.(map[string]any)["user"].(map[string]any)
	require.Equal(t, "u1", user["id"])
	require.Equal(t, "OWNER", user["role"])
}

func TestLoginFailureSetsNoCookies(t *testing.T) {
	gw := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"nope"}`, http.StatusUnauthorized)
	}), nil)

	rec := doRequest(gw, http.MethodPost, server.RouteAuthLogin, `{"email":"a@b.com","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, rec.Result().Cookies())

	env := decodeEnvelope(t, rec)
	require.False(t, env.Success)
	require.Equal(t, apperrors.CodeUnauthorized, env.Error.Code)
	// Raw upstream messages must never leak through.
	require.NotContains(t, env.Error.Message, "nope")
}

func TestLoginRejectsMalformedBodyWithoutUpstreamCall(t *testing.T) {
	counting := &countingHandler{handler: func(w http.ResponseWriter, r *http.Request) {}}
	gw := newGateway(t, counting, nil)

	for _, body := range []string{"", "{}", `{"email":"a@b.com"}`, "not json"} {
		rec := doRequest(gw, http.MethodPost, server.RouteAuthLogin, body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, apperrors.CodeValidationError, decodeEnvelope(t, rec).Error.Code)
	}
	require.EqualValues(t, 0, counting.calls.Load())
}

func TestRefreshWithoutCookieIs401AndNoUpstreamCall(t *testing.T) {
	counting := &countingHandler{handler: func(w http.ResponseWriter, r *http.Request) {}}
	gw := newGateway(t, counting, nil)

	rec := doRequest(gw, http.MethodPost, server.RouteAuthRefresh, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, apperrors.CodeNoRefreshToken, decodeEnvelope(t, rec).Error.Code)
	require.EqualValues(t, 0, counting.calls.Load())
}

func TestRefreshRotatesBothCookies(t *testing.T) {
	gw := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, upstream.PathRefresh, r.URL.Path)
		_, _ = w.Write([]byte(`{"access_token":"T2","refresh_token":"R2","user":{"id":"u1","role":"OWNER"}}`))
	}), nil)

	rec := doRequest(gw, http.MethodPost, server.RouteAuthRefresh, "",
		&http.Cookie{Name: session.RefreshCookieName, Value: "R1"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "T2", setCookie(rec, session.AccessCookieName).Value)
	require.Equal(t, "R2", setCookie(rec, session.RefreshCookieName).Value)
}

func TestRefreshWithoutRotationKeepsRefreshCookie(t *testing.T) {
	gw := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"T2","user":{"id":"u1","role":"OWNER"}}`))
	}), nil)

	rec := doRequest(gw, http.MethodPost, server.RouteAuthRefresh, "",
		&http.Cookie{Name: session.RefreshCookieName, Value: "R1"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "T2", setCookie(rec, session.AccessCookieName).Value)
	// The still-valid refresh token stays untouched in the browser.
	require.Nil(t, setCookie(rec, session.RefreshCookieName))
}

func TestRefreshRejectionClearsBothCookies(t *testing.T) {
	gw := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"expired"}`, http.StatusUnauthorized)
	}), nil)

	rec := doRequest(gw, http.MethodPost, server.RouteAuthRefresh, "",
		&http.Cookie{Name: session.RefreshCookieName, Value: "stale"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, apperrors.CodeInvalidRefresh, decodeEnvelope(t, rec).Error.Code)

	access := setCookie(rec, session.AccessCookieName)
	refresh := setCookie(rec, session.RefreshCookieName)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	require.Less(t, access.MaxAge, 0)
	require.Less(t, refresh.MaxAge, 0)
}

func TestRefreshRateLimit(t *testing.T) {
	counting := &countingHandler{handler: func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"T2","refresh_token":"R2","user":{"id":"u1","role":"OWNER"}}`))
	}}
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{MaxRequests: 30, Window: time.Minute})
	gw := newGateway(t, counting, limiter)

	cookie := &http.Cookie{Name: session.RefreshCookieName, Value: "R1"}
	for i := 0; i < 30; i++ {
		rec := doRequest(gw, http.MethodPost, server.RouteAuthRefresh, "", cookie)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	// The 31st request from the same IP within the window is terminal and
	// never reaches the upstream, token validity notwithstanding.
	rec := doRequest(gw, http.MethodPost, server.RouteAuthRefresh, "", cookie)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, apperrors.CodeRateLimited, decodeEnvelope(t, rec).Error.Code)
	require.EqualValues(t, 30, counting.calls.Load())
}

func TestMeUpstream401DeletesAccessCookieOnly(t *testing.T) {
	gw := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"expired"}`, http.StatusUnauthorized)
	}), nil)

	rec := doRequest(gw, http.MethodGet, server.RouteAuthMe, "",
		&http.Cookie{Name: session.AccessCookieName, Value: "stale"},
		&http.Cookie{Name: session.RefreshCookieName, Value: "R1"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, apperrors.CodeUnauthorized, decodeEnvelope(t, rec).Error.Code)

	access := setCookie(rec, session.AccessCookieName)
	require.NotNil(t, access)
	require.Less(t, access.MaxAge, 0)
	// The refresh cookie survives so the client can attempt a refresh.
	require.Nil(t, setCookie(rec, session.RefreshCookieName))
}

func TestMeWithoutCookieIsNoToken(t *testing.T) {
	counting := &countingHandler{handler: func(w http.ResponseWriter, r *http.Request) {}}
	gw := newGateway(t, counting, nil)

	rec := doRequest(gw, http.MethodGet, server.RouteAuthMe, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, apperrors.CodeNoToken, decodeEnvelope(t, rec).Error.Code)
	require.EqualValues(t, 0, counting.calls.Load())
}

func TestMeSilentHeaderDoesNotChangeResponse(t *testing.T) {
	gw := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"expired"}`, http.StatusUnauthorized)
	}), nil)

	plain := doRequest(gw, http.MethodGet, server.RouteAuthMe, "",
		&http.Cookie{Name: session.AccessCookieName, Value: "stale"})

	r := httptest.NewRequest(http.MethodGet, server.RouteAuthMe, nil)
	r.AddCookie(&http.Cookie{Name: session.AccessCookieName, Value: "stale"})
	r.Header.Set(server.HeaderSilentAuthCheck, "1")
	silent := httptest.NewRecorder()
	gw.ServeHTTP(silent, r)

	require.Equal(t, plain.Code, silent.Code)
	require.JSONEq(t, plain.Body.String(), silent.Body.String())
}

func TestLogoutIsIdempotentAndAlwaysSucceeds(t *testing.T) {
	counting := &countingHandler{handler: func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"down"}`, http.StatusServiceUnavailable)
	}}
	gw := newGateway(t, counting, nil)

	// Logged out already: no cookies, no upstream call, still success.
	rec := doRequest(gw, http.MethodPost, server.RouteAuthLogout, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decodeEnvelope(t, rec).Success)
	require.EqualValues(t, 0, counting.calls.Load())
	for _, c := range rec.Result().Cookies() {
		require.Less(t, c.MaxAge, 0)
	}

	// With a session and a broken upstream the client still sees success
	// and the cookies are still cleared.
	rec = doRequest(gw, http.MethodPost, server.RouteAuthLogout, "",
		&http.Cookie{Name: session.AccessCookieName, Value: "T1"},
		&http.Cookie{Name: session.RefreshCookieName, Value: "R1"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decodeEnvelope(t, rec).Success)
	require.EqualValues(t, 1, counting.calls.Load())
	for _, c := range rec.Result().Cookies() {
		require.Less(t, c.MaxAge, 0)
	}
}

func TestUpstreamTimeoutIs504(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	t.Cleanup(up.Close)

	identity := upstream.New(up.URL, 50*time.Millisecond, zerolog.Nop())
	gw := server.New(config.New(), zerolog.Nop(), identity, ratelimit.NewMemoryLimiter(ratelimit.DefaultConfig()))

	rec := doRequest(gw, http.MethodPost, server.RouteAuthLogin, `{"email":"a@b.com","password":"secret"}`)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	require.Equal(t, apperrors.CodeTimeout, decodeEnvelope(t, rec).Error.Code)
}

func TestLoginThenMeReturnsSameUser(t *testing.T) {
	// Full round trip against the in-memory identity backend, with the
	// browser's cookie behaviour simulated by carrying cookies forward.
	tokens := token.New(token.NewHMACSigner("round-trip-secret"))
	idp := upstreamtest.New(tokens)
	_, err := idp.AddAccount("Alice Archer", "alice@example.com", "Str0ngPass", "OWNER")
	require.NoError(t, err)

	gw := newGateway(t, idp, nil)

	login := doRequest(gw, http.MethodPost, server.RouteAuthLogin,
		`{"email":"alice@example.com","password":"Str0ngPass"}`)
	require.Equal(t, http.StatusOK, login.Code)

	loginUser := decodeEnvelope(t, login).Data.(map[string]any)["user"].(map[string]any)

	me := doRequest(gw, http.MethodGet, server.RouteAuthMe, "", login.Result().Cookies()...)
	require.Equal(t, http.StatusOK, me.Code)
	meUser := decodeEnvelope(t, me).Data.(map[string]any)["user"].(map[string]any)

	require.Equal(t, loginUser["id"], meUser["id"])
	require.Equal(t, "alice@example.com", meUser["email"])
}

func TestRegisterThenUpdateProfile(t *testing.T) {
	tokens := token.New(token.NewHMACSigner("register-secret"))
	idp := upstreamtest.New(tokens)
	gw := newGateway(t, idp, nil)

	register := doRequest(gw, http.MethodPost, server.RouteAuthRegister,
		`{"name":"Bob Builder","email":"bob@example.com","password":"Str0ngPass"}`)
	require.Equal(t, http.StatusCreated, register.Code)
	require.NotNil(t, setCookie(register, session.AccessCookieName))
	require.NotNil(t, setCookie(register, session.RefreshCookieName))

	update := doRequest(gw, http.MethodPut, server.RouteAuthMe,
		`{"name":"Robert Builder"}`, register.Result().Cookies()...)
	require.Equal(t, http.StatusOK, update.Code)
	user := decodeEnvelope(t, update).Data.(map[string]any)["user"].(map[string]any)
	require.Equal(t, "Robert Builder", user["name"])
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	counting := &countingHandler{handler: func(w http.ResponseWriter, r *http.Request) {}}
	gw := newGateway(t, counting, nil)

	rec := doRequest(gw, http.MethodPost, server.RouteAuthRegister,
		`{"name":"Bob","email":"bob@example.com","password":"weak"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, apperrors.CodeValidationError, decodeEnvelope(t, rec).Error.Code)
	require.EqualValues(t, 0, counting.calls.Load())
}

func TestHealthz(t *testing.T) {
	gw := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), nil)

	rec := doRequest(gw, http.MethodGet, server.RouteHealth, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decodeEnvelope(t, rec).Success)
}

func TestCorsPreflightForAllowedOrigin(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://app.rentfolio.io")
	gw := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), nil)

	r := httptest.NewRequest(http.MethodOptions, server.RouteAuthLogin, nil)
	r.Header.Set("Origin", "https://app.rentfolio.io")
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, r)

	require.Equal(t, "https://app.rentfolio.io", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func ExampleEnvelope() {
	payload, _ := json.Marshal(server.Envelope{
		Success: false,
		Error:   &server.APIError{Message: "Session expired. Please log in again.", Code: "NO_REFRESH_TOKEN"},
	})
	fmt.Println(string(payload))
	// Output: {"success":false,"error":{"message":"Session expired. Please log in again.","code":"NO_REFRESH_TOKEN"}}
}
