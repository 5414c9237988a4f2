package session

import (
	"context"
	"time"
)

// Store describes the durable persistence required by the session service.
// Implementations must make Rotate a conditional update keyed on the previous
// credential hash so that concurrent rotations cannot both succeed.
type Store interface {
	// Create persists a new session row.
	Create(ctx context.Context, s *Session) error

	// Get loads one session by id, revoked and expired rows included.
	// Returns ErrNotFound when no row exists.
	Get(ctx context.Context, id string) (Session, error)

	// Rotate atomically replaces the credential hash, increments the
	// rotation counter and extends expiry, but only when the stored hash
	// still equals prevHash and the row is not revoked. Returns the updated
	// row, or ErrNotFound / ErrRevoked / ErrCredentialMismatch.
	Rotate(ctx context.Context, id, prevHash, newHash string, expiresAt time.Time) (Session, error)

	// Revoke marks the session terminal. Revoking an already-revoked session
	// is a no-op success; a missing row returns ErrNotFound.
	Revoke(ctx context.Context, id string, at time.Time) error

	// RevokeAllForUser marks every active session of the user revoked in one
	// statement and returns the affected session ids.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) ([]string, error)
}
