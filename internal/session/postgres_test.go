package session

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newSessionMock(t *testing.T) (*PGStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return NewPGStore(db), mock, func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	}
}

func sessionRow(sess Session) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "user_role", "user_agent", "client_ip",
		"credential_hash", "rotation_counter", "created_at", "expires_at", "revoked_at",
	})
	var revoked any
	if sess.RevokedAt != nil {
		revoked = *sess.RevokedAt
	}
	rows.AddRow(sess.ID, sess.UserID, sess.UserRole, sess.UserAgent, sess.ClientIP,
		sess.CredentialHash, sess.RotationCounter, sess.CreatedAt, sess.ExpiresAt, revoked)
	return rows
}

func TestPGRotateUsesConditionalUpdate(t *testing.T) {
	store, mock, done := newSessionMock(t)
	defer done()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	expires := now.Add(time.Hour)
	rotated := Session{
		ID: "s1", UserID: "u1", UserRole: "student",
		CredentialHash: "newhash", RotationCounter: 3,
		CreatedAt: now.Add(-time.Hour), ExpiresAt: expires,
	}

	// The update must key on the previous hash and exclude revoked rows.
	mock.ExpectQuery(regexp.QuoteMeta(`credential_hash = $4 and revoked_at is null`)).
		WithArgs("s1", "newhash", expires, "prevhash").
		WillReturnRows(sessionRow(rotated))

	got, err := store.Rotate(context.Background(), "s1", "prevhash", "newhash", expires)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if got.RotationCounter != 3 || got.CredentialHash != "newhash" {
		t.Fatalf("unexpected rotated session: %+v", got)
	}
}

func TestPGRotateReportsWhyNothingMatched(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	expires := now.Add(time.Hour)

	t.Run("missing row", func(t *testing.T) {
		store, mock, done := newSessionMock(t)
		defer done()

		mock.ExpectQuery("update sessions").
			WithArgs("s1", "newhash", expires, "prevhash").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("select").WithArgs("s1").WillReturnError(sql.ErrNoRows)

		if _, err := store.Rotate(context.Background(), "s1", "prevhash", "newhash", expires); !errors.Is(err, ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("revoked row", func(t *testing.T) {
		store, mock, done := newSessionMock(t)
		defer done()

		revokedAt := now.Add(-time.Minute)
		mock.ExpectQuery("update sessions").
			WithArgs("s1", "newhash", expires, "prevhash").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("select").WithArgs("s1").WillReturnRows(sessionRow(Session{
			ID: "s1", UserID: "u1", UserRole: "student",
			CredentialHash: "prevhash", CreatedAt: now.Add(-time.Hour),
			ExpiresAt: expires, RevokedAt: &revokedAt,
		}))

		if _, err := store.Rotate(context.Background(), "s1", "prevhash", "newhash", expires); !errors.Is(err, ErrRevoked) {
			t.Fatalf("got %v, want ErrRevoked", err)
		}
	})

	t.Run("stale credential", func(t *testing.T) {
		store, mock, done := newSessionMock(t)
		defer done()

		mock.ExpectQuery("update sessions").
			WithArgs("s1", "newhash", expires, "prevhash").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("select").WithArgs("s1").WillReturnRows(sessionRow(Session{
			ID: "s1", UserID: "u1", UserRole: "student",
			CredentialHash: "otherhash", CreatedAt: now.Add(-time.Hour),
			ExpiresAt: expires,
		}))

		if _, err := store.Rotate(context.Background(), "s1", "prevhash", "newhash", expires); !errors.Is(err, ErrCredentialMismatch) {
			t.Fatalf("got %v, want ErrCredentialMismatch", err)
		}
	})
}

func TestPGRevokeIsIdempotent(t *testing.T) {
	store, mock, done := newSessionMock(t)
	defer done()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`where id = $1 and revoked_at is null`)).
		WithArgs("s1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Revoke(context.Background(), "s1", now); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	// Second revoke matches nothing but the row exists: no-op success.
	revokedAt := now
	mock.ExpectExec("update sessions").
		WithArgs("s1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select").WithArgs("s1").WillReturnRows(sessionRow(Session{
		ID: "s1", UserID: "u1", UserRole: "student",
		CredentialHash: "h", CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedAt,
	}))
	if err := store.Revoke(context.Background(), "s1", now); err != nil {
		t.Fatalf("repeat Revoke: %v", err)
	}

	// Missing row surfaces ErrNotFound.
	mock.ExpectExec("update sessions").
		WithArgs("nope", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select").WithArgs("nope").WillReturnError(sql.ErrNoRows)
	if err := store.Revoke(context.Background(), "nope", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestPGRevokeAllForUserReturnsIDs(t *testing.T) {
	store, mock, done := newSessionMock(t)
	defer done()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`where user_id = $1 and revoked_at is null`)).
		WithArgs("u1", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s1").AddRow("s2"))

	ids, err := store.RevokeAllForUser(context.Background(), "u1", now)
	if err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}
	if len(ids) != 2 || ids[0] != "s1" || ids[1] != "s2" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestPGGetMapsMissingRow(t *testing.T) {
	store, mock, done := newSessionMock(t)
	defer done()

	mock.ExpectQuery("select").WithArgs("nope").WillReturnError(sql.ErrNoRows)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
