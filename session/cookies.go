package session

import (
	"net/http"
	"time"
)

// Cookie names shared with the frontend proxy routes.
const (
	AccessCookieName  = "auth_token"
	RefreshCookieName = "refresh_token"
)

// CookieStore reads and writes the httpOnly session cookies that carry the
// access and refresh tokens. The two cookies are always set together or
// not at all; their max-ages match the respective token lifetimes.
type CookieStore struct {
	secure     bool
	sameSite   http.SameSite
	accessTTL  time.Duration
	refreshTTL time.Duration
}

type CookieStoreOption func(*CookieStore)

// WithSameSite overrides the default SameSite=Lax attribute. Anything
// laxer than Lax is ignored.
func WithSameSite(mode http.SameSite) CookieStoreOption {
	return func(c *CookieStore) {
		if mode == http.SameSiteStrictMode {
			c.sameSite = mode
		}
	}
}

// NewCookieStore creates a cookie store. secure controls the Secure
// attribute and should only be false when running without TLS.
func NewCookieStore(secure bool, accessTTL, refreshTTL time.Duration, options ...CookieStoreOption) *CookieStore {
	c := &CookieStore{
		secure:     secure,
		sameSite:   http.SameSiteLaxMode,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// SetSession writes both token cookies on the response.
func (c *CookieStore) SetSession(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, c.cookie(AccessCookieName, accessToken, int(c.accessTTL.Seconds())))
	http.SetCookie(w, c.cookie(RefreshCookieName, refreshToken, int(c.refreshTTL.Seconds())))
}

// SetAccessToken rewrites only the access-token cookie. Used when a
// refresh response does not rotate the refresh token.
func (c *CookieStore) SetAccessToken(w http.ResponseWriter, accessToken string) {
	http.SetCookie(w, c.cookie(AccessCookieName, accessToken, int(c.accessTTL.Seconds())))
}

// AccessToken extracts the access token from the request cookies.
func (c *CookieStore) AccessToken(r *http.Request) (string, bool) {
	return readCookie(r, AccessCookieName)
}

// RefreshToken extracts the refresh token from the request cookies.
func (c *CookieStore) RefreshToken(r *http.Request) (string, bool) {
	return readCookie(r, RefreshCookieName)
}

// ClearSession expires both token cookies. Idempotent; safe to call when
// no cookies exist.
func (c *CookieStore) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(AccessCookieName, "", -1))
	http.SetCookie(w, c.cookie(RefreshCookieName, "", -1))
}

// ClearAccessToken expires only the access-token cookie, leaving the
// refresh token intact so the client can still attempt a refresh.
func (c *CookieStore) ClearAccessToken(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(AccessCookieName, "", -1))
}

func (c *CookieStore) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: c.sameSite,
	}
}

func readCookie(r *http.Request, name string) (string, bool) {
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
