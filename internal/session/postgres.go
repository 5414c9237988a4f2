package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const sessionColumns = `id, user_id, user_role, user_agent, client_ip, credential_hash, rotation_counter, created_at, expires_at, revoked_at`

// PGStore implements Store on PostgreSQL. Rotation is a single conditional
// UPDATE keyed on the previous credential hash, so the database serializes
// concurrent refreshes of one session.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx, `
		insert into sessions (id, user_id, user_role, user_agent, client_ip, credential_hash, rotation_counter, created_at, expires_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, sess.ID, sess.UserID, sess.UserRole, sess.UserAgent, sess.ClientIP,
		sess.CredentialHash, sess.RotationCounter, sess.CreatedAt, sess.ExpiresAt)
	return err
}

func (s *PGStore) Get(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+sessionColumns+`
		from sessions
		where id = $1
	`, id)
	return scanSession(row)
}

func (s *PGStore) Rotate(ctx context.Context, id, prevHash, newHash string, expiresAt time.Time) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		update sessions
		set credential_hash = $2, rotation_counter = rotation_counter + 1, expires_at = $3
		where id = $1 and credential_hash = $4 and revoked_at is null
		returning `+sessionColumns+`
	`, id, newHash, expiresAt, prevHash)

	sess, err := scanSession(row)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Session{}, err
	}

	// The conditional update matched nothing; read the row to report why.
	current, getErr := s.Get(ctx, id)
	switch {
	case errors.Is(getErr, ErrNotFound):
		return Session{}, ErrNotFound
	case getErr != nil:
		return Session{}, getErr
	case current.Revoked():
		return Session{}, ErrRevoked
	default:
		return Session{}, ErrCredentialMismatch
	}
}

func (s *PGStore) Revoke(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update sessions
		set revoked_at = $2
		where id = $1 and revoked_at is null
	`, id, at)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff > 0 {
		return nil
	}
	// Nothing updated: either already revoked (no-op success) or missing.
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return nil
}

func (s *PGStore) RevokeAllForUser(ctx context.Context, userID string, at time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		update sessions
		set revoked_at = $2
		where user_id = $1 and revoked_at is null
		returning id
	`, userID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		sess      Session
		revokedAt sql.NullTime
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.UserRole, &sess.UserAgent, &sess.ClientIP,
		&sess.CredentialHash, &sess.RotationCounter, &sess.CreatedAt, &sess.ExpiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		sess.RevokedAt = &t
	}
	return sess, nil
}
