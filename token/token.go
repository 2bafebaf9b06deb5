package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rentfolio/auth-gateway/internal/apperrors"
	"github.com/rentfolio/auth-gateway/users"
)

// Kind distinguishes the two token classes. They carry different lifetimes
// and are never interchangeable: a refresh token presented where an access
// token is expected fails verification.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the verified content of a gateway-issued token.
type Claims struct {
	UserID string
	Email  string
	Name   string
	Role   users.RoleType
	Kind   Kind
	JTI    string
	Iat    time.Time
	Exp    time.Time
}

// Service issues and verifies the gateway's signed tokens. Pure
// cryptographic computation; no storage and no side effects.
type Service struct {
	signer     Signer
	accessTTL  time.Duration
	refreshTTL time.Duration
	nowFunc    func() time.Time
}

type ServiceOption func(*Service)

// WithTokenExpiry overrides the default access/refresh lifetimes.
func WithTokenExpiry(accessTTL, refreshTTL time.Duration) ServiceOption {
	return func(s *Service) {
		s.accessTTL = accessTTL
		s.refreshTTL = refreshTTL
	}
}

func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = now
	}
}

func New(signer Signer, options ...ServiceOption) *Service {
	s := &Service{
		signer:     signer,
		accessTTL:  30 * time.Minute,
		refreshTTL: 7 * 24 * time.Hour,
	}

	for _, opt := range options {
		opt(s)
	}

	if s.nowFunc == nil {
		s.nowFunc = time.Now
	}
	return s
}

// AccessTTL returns the configured access-token lifetime.
func (s *Service) AccessTTL() time.Duration {
	return s.accessTTL
}

// RefreshTTL returns the configured refresh-token lifetime.
func (s *Service) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// Issue creates a signed token of the given kind for the user.
func (s *Service) Issue(user *users.User, kind Kind) (string, error) {
	ttl := s.accessTTL
	if kind == KindRefresh {
		ttl = s.refreshTTL
	}

	now := s.nowFunc()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"name":  user.Name,
		"role":  string(user.Role),
		"kind":  string(kind),        // Token class, checked on verification
		"iat":   now.Unix(),          // Issued At: the time at which the token was issued
		"exp":   now.Add(ttl).Unix(), // Expiry: when the token will expire
		"jti":   uuid.New().String(), // Unique token ID
	}

	signed, err := s.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "Service.Issue")
	}
	return signed, nil
}

// Verify parses and validates a signed token, checking signature, expiry
// and token class. A token whose exp equals the current instant is already
// expired. Returns apperrors.ErrTokenExpired or apperrors.ErrInvalidToken.
func (s *Service) Verify(raw string, kind Kind) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, jwt.MapClaims{}, s.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{s.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(s.nowFunc),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "%v", err)
	}
	if !parsed.Valid {
		return nil, apperrors.ErrInvalidToken
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperrors.ErrInvalidToken
	}

	claims := claimsFromMap(mapClaims)
	if claims.Kind != kind {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "token kind %q", claims.Kind)
	}

	// The jwt library accepts exp == now; the session design treats that
	// instant as already expired.
	if !s.nowFunc().Before(claims.Exp) {
		return nil, apperrors.ErrTokenExpired
	}

	return claims, nil
}

func claimsFromMap(m jwt.MapClaims) *Claims {
	sub, _ := m["sub"].(string)
	email, _ := m["email"].(string)
	name, _ := m["name"].(string)
	role, _ := m["role"].(string)
	kind, _ := m["kind"].(string)
	jti, _ := m["jti"].(string)
	iat, _ := m["iat"].(float64)
	exp, _ := m["exp"].(float64)

	return &Claims{
		UserID: sub,
		Email:  email,
		Name:   name,
		Role:   users.RoleType(role),
		Kind:   Kind(kind),
		JTI:    jti,
		Iat:    time.Unix(int64(iat), 0),
		Exp:    time.Unix(int64(exp), 0),
	}
}

// User rebuilds the client-visible user projection from verified claims.
func (c *Claims) User() *users.User {
	return &users.User{
		ID:    c.UserID,
		Name:  c.Name,
		Email: c.Email,
		Role:  c.Role,
	}
}
