package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"gradia.org/internal/audit"
	"gradia.org/internal/cache"
	"gradia.org/internal/obs"
	"gradia.org/internal/svcauth"
	"gradia.org/internal/token"
)

const defaultTTL = 24 * time.Hour

// Service implements the session manager contract. All mutations are written
// to the store first; the cache is invalidated afterwards and optionally
// repopulated, so a crash mid-operation can never leave a revoked session
// usable.
type Service struct {
	store    Store
	cache    *sessionCache
	recorder *audit.Recorder
	ttl      time.Duration
	now      func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithTTL overrides the fixed session lifetime policy.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
			s.cache = newSessionCache(cache.WithClock[Session](fn))
		}
	}
}

// WithRecorder attaches an audit recorder for revocation events.
func WithRecorder(r *audit.Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// NewService constructs a Service backed by the given store.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	s := &Service{
		store: store,
		cache: newSessionCache(),
		ttl:   defaultTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// StartCacheJanitor periodically evicts expired cache entries and prunes the
// per-user index. Call the returned stop function on shutdown.
func (s *Service) StartCacheJanitor(interval time.Duration) (stop func()) {
	return s.cache.startJanitor(interval)
}

// CreateSession issues a new session for the user and returns it together
// with the raw credential. The raw credential is returned exactly once.
func (s *Service) CreateSession(ctx context.Context, userID, userRole, clientIP, userAgent string) (Session, string, error) {
	userID = strings.TrimSpace(userID)
	userRole = strings.TrimSpace(userRole)
	if userID == "" {
		return Session{}, "", fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if userRole == "" {
		return Session{}, "", fmt.Errorf("%w: user_role is required", ErrInvalidInput)
	}

	raw, hash, err := token.Generate()
	if err != nil {
		return Session{}, "", err
	}
	now := s.now().UTC()
	sess := Session{
		ID:              uuid.NewString(),
		UserID:          userID,
		UserRole:        userRole,
		UserAgent:       userAgent,
		ClientIP:        clientIP,
		RotationCounter: 0,
		CredentialHash:  hash,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.ttl),
	}
	if err := s.store.Create(ctx, &sess); err != nil {
		return Session{}, "", err
	}
	s.cache.put(sess, now)
	return sess, raw, nil
}

// ValidateSession resolves a session id to its active session. The cache is
// consulted first; on miss the store is read and the cache repopulated with
// the row's remaining lifetime.
func (s *Service) ValidateSession(ctx context.Context, id string) (Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Session{}, fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}
	now := s.now().UTC()

	if sess, ok := s.cache.get(id); ok {
		obs.ObserveSessionCache(true)
		if err := liveness(sess, now); err != nil {
			return Session{}, err
		}
		return sess, nil
	}
	obs.ObserveSessionCache(false)

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if err := liveness(sess, now); err != nil {
		return Session{}, err
	}
	s.cache.put(sess, now)
	return sess, nil
}

// RefreshSession rotates the session credential. Exactly one of two
// concurrent refreshes presenting the same credential can succeed: the store
// update is conditional on the previous hash.
func (s *Service) RefreshSession(ctx context.Context, id, credential string) (Session, string, error) {
	id = strings.TrimSpace(id)
	if id == "" || credential == "" {
		return Session{}, "", fmt.Errorf("%w: session_id and credential are required", ErrInvalidInput)
	}
	now := s.now().UTC()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return Session{}, "", err
	}
	if err := liveness(sess, now); err != nil {
		return Session{}, "", err
	}
	if !token.Compare(sess.CredentialHash, credential) {
		return Session{}, "", ErrCredentialMismatch
	}

	raw, hash, err := token.Generate()
	if err != nil {
		return Session{}, "", err
	}
	rotated, err := s.store.Rotate(ctx, id, token.Hash(credential), hash, now.Add(s.ttl))
	if err != nil {
		return Session{}, "", err
	}

	// Store committed; drop the stale entry, then repopulate.
	s.cache.remove(rotated.UserID, id)
	s.cache.put(rotated, now)
	return rotated, raw, nil
}

// RevokeSession marks the session terminal. Revoking an already-revoked
// session is a no-op success.
func (s *Service) RevokeSession(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}
	now := s.now().UTC()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Revoke(ctx, id, now); err != nil {
		return err
	}
	// Revocation is durable; only now is the cache entry purged.
	s.cache.remove(sess.UserID, id)

	// An idempotent retry changed nothing, so it produces no audit event.
	if s.recorder != nil && !sess.Revoked() {
		s.recorder.Record(audit.Record{
			Subject:  sess.UserID,
			Resource: "session",
			Action:   "revoke",
			Result:   audit.ResultRevoked,
			Metadata: revokeMetadata(ctx, "session_id", id),
		})
	}
	return nil
}

// RevokeAllUserSessions atomically revokes every active session of the user
// and purges all corresponding cache entries. Returns the number of sessions
// newly revoked.
func (s *Service) RevokeAllUserSessions(ctx context.Context, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	now := s.now().UTC()

	ids, err := s.store.RevokeAllForUser(ctx, userID, now)
	if err != nil {
		return 0, err
	}
	// Purge the indexed entries as well as the freshly revoked ids; the
	// union covers entries cached before this instance saw the session.
	s.cache.removeUser(userID)
	s.cache.entries.DeleteMany(ids)

	if s.recorder != nil {
		s.recorder.Record(audit.Record{
			Subject:  userID,
			Resource: "session",
			Action:   "revoke_all",
			Result:   audit.ResultRevoked,
			Metadata: revokeMetadata(ctx, "count", fmt.Sprintf("%d", len(ids))),
		})
	}
	return len(ids), nil
}

// revokeMetadata builds audit metadata, stamping the calling service when the
// request came through the authenticated HTTP surface.
func revokeMetadata(ctx context.Context, key, value string) map[string]string {
	md := map[string]string{key: value}
	if caller := svcauth.ServiceFromContext(ctx); caller != "" {
		md["caller"] = caller
	}
	return md
}

// liveness orders terminal checks: revocation dominates expiry.
func liveness(s Session, now time.Time) error {
	if s.Revoked() {
		return ErrRevoked
	}
	if s.ExpiredAt(now) {
		return ErrExpired
	}
	return nil
}
