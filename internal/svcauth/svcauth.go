// Package svcauth issues and verifies the service-to-service credentials that
// guard the internal HTTP surfaces. These tokens are distinct from end-user
// session credentials and are only ever exchanged between trusted services.
package svcauth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken indicates the token failed verification.
var ErrInvalidToken = errors.New("svcauth: invalid token")

// Claims are the verified claims of a service token.
type Claims struct {
	Service string `json:"svc"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HS256 service tokens. The signing secret is
// injected at construction time; nothing in this package reads the process
// environment.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// Option configures Manager behavior.
type Option func(*Manager)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// New constructs a Manager for the given shared secret.
func New(secret, issuer string, ttl time.Duration, opts ...Option) (*Manager, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("svcauth: secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("svcauth: ttl must be greater than zero")
	}
	m := &Manager{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue signs a token identifying the calling service.
func (m *Manager) Issue(service string) (string, time.Time, error) {
	service = strings.TrimSpace(service)
	if service == "" {
		return "", time.Time{}, errors.New("svcauth: service name is required")
	}
	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := Claims{
		Service: service,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   service,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and required claims of a service token.
func (m *Manager) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if m.issuer != "" && claims.Issuer != m.issuer {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Service) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
