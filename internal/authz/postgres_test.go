package authz

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newAuthzMock(t *testing.T) (*PGStore, sqlmock.Sqlmock, func()) {
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

func TestPGPoliciesForSubjectKeepsInsertionOrder(t *testing.T) {
	store, mock, done := newAuthzMock(t)
	defer done()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "subject_id", "resource", "action", "effect", "conditions", "created_at"}).
		AddRow("p1", "u1", "*", "delete", "allow", []byte(`{}`), now).
		AddRow("p2", "u1", "assignment", "delete", "deny", []byte(`{"course":"cs101"}`), now.Add(time.Second))

	mock.ExpectQuery(regexp.QuoteMeta(`order by created_at asc, id asc`)).
		WithArgs("u1").
		WillReturnRows(rows)

	policies, err := store.PoliciesForSubject(context.Background(), "u1")
	if err != nil {
		t.Fatalf("PoliciesForSubject: %v", err)
	}
	if len(policies) != 2 || policies[0].ID != "p1" || policies[1].ID != "p2" {
		t.Fatalf("unexpected order: %+v", policies)
	}
	if policies[1].Conditions["course"] != "cs101" {
		t.Fatalf("conditions not decoded: %+v", policies[1])
	}
	if len(policies[0].Conditions) != 0 {
		t.Fatalf("empty conditions decoded as %+v", policies[0].Conditions)
	}
}

func TestPGCreateRoleMapsUniqueViolation(t *testing.T) {
	store, mock, done := newAuthzMock(t)
	defer done()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("insert into roles").
		WithArgs("r1", "t1", "instructor", "", now).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

	err := store.CreateRole(context.Background(), &Role{
		ID: "r1", TenantID: "t1", Name: "instructor", CreatedAt: now,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
}

func TestPGGetRoleByNameMapsMissingRow(t *testing.T) {
	store, mock, done := newAuthzMock(t)
	defer done()

	mock.ExpectQuery("select").WithArgs("t1", "ghost").WillReturnError(sql.ErrNoRows)
	if _, err := store.GetRoleByName(context.Background(), "t1", "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestPGDeleteRoleRemovesGrantsInOneTx(t *testing.T) {
	store, mock, done := newAuthzMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("delete from roles").
		WithArgs("t1", "instructor").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("r1"))
	mock.ExpectExec("delete from role_permissions").
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	if err := store.DeleteRole(context.Background(), "t1", "instructor"); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
}

func TestPGDeleteRoleMissingRollsBack(t *testing.T) {
	store, mock, done := newAuthzMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("delete from roles").
		WithArgs("t1", "ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	if err := store.DeleteRole(context.Background(), "t1", "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestPGPermissionsForRoleJoins(t *testing.T) {
	store, mock, done := newAuthzMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"id", "name", "resource", "action", "description"}).
		AddRow("pm1", "grade.submit", "submission", "grade", "").
		AddRow("pm2", "course.read", "course", "read", "read-only course view")

	mock.ExpectQuery("join permissions").
		WithArgs("r1").
		WillReturnRows(rows)

	perms, err := store.PermissionsForRole(context.Background(), "r1")
	if err != nil {
		t.Fatalf("PermissionsForRole: %v", err)
	}
	if len(perms) != 2 || perms[0].Name != "grade.submit" || perms[1].Resource != "course" {
		t.Fatalf("unexpected permissions: %+v", perms)
	}
}

func TestPGDeletePolicyMissing(t *testing.T) {
	store, mock, done := newAuthzMock(t)
	defer done()

	mock.ExpectExec("delete from policies").
		WithArgs("nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.DeletePolicy(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
