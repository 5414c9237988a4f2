// Package session implements the session lifecycle: issuance, validation,
// credential rotation and revocation. The relational store is the single
// source of truth; the in-process cache only accelerates validation.
package session

import (
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("session: not found")
	ErrExpired            = errors.New("session: expired")
	ErrRevoked            = errors.New("session: revoked")
	ErrCredentialMismatch = errors.New("session: credential mismatch")
	ErrInvalidInput       = errors.New("session: invalid input")
)

// Session binds a user identity to a rotating opaque credential. Only the
// credential's hash is ever persisted.
type Session struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	UserRole        string     `json:"user_role"`
	UserAgent       string     `json:"user_agent"`
	ClientIP        string     `json:"client_ip"`
	RotationCounter int        `json:"rotation_counter"`
	CredentialHash  string     `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
}

// Revoked reports whether the session is permanently terminal.
func (s Session) Revoked() bool {
	return s.RevokedAt != nil
}

// ExpiredAt reports whether the session lifetime has elapsed at the given
// instant.
func (s Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Remaining returns the time left until expiry, or zero if none.
func (s Session) Remaining(now time.Time) time.Duration {
	if s.ExpiredAt(now) {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}
