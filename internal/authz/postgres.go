package authz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const pgUniqueViolation = "23505"

// PGStore implements Store on PostgreSQL. Policy order is insertion order,
// realized as (created_at, id) ascending; ids are ULIDs so ties sort by
// generation order.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) CreateRole(ctx context.Context, role *Role) error {
	_, err := s.db.ExecContext(ctx, `
		insert into roles (id, tenant_id, name, description, created_at)
		values ($1, $2, $3, $4, $5)
	`, role.ID, role.TenantID, role.Name, role.Description, role.CreatedAt)
	return mapConflict(err)
}

func (s *PGStore) GetRoleByName(ctx context.Context, tenantID, name string) (Role, error) {
	var role Role
	err := s.db.QueryRowContext(ctx, `
		select id, tenant_id, name, description, created_at
		from roles
		where tenant_id = $1 and name = $2
	`, tenantID, name).Scan(&role.ID, &role.TenantID, &role.Name, &role.Description, &role.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Role{}, ErrNotFound
	}
	return role, err
}

func (s *PGStore) ListRoles(ctx context.Context, tenantID string) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, tenant_id, name, description, created_at
		from roles
		where tenant_id = $1
		order by created_at asc, id asc
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.TenantID, &role.Name, &role.Description, &role.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

func (s *PGStore) DeleteRole(ctx context.Context, tenantID, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var roleID string
	err = tx.QueryRowContext(ctx, `
		delete from roles
		where tenant_id = $1 and name = $2
		returning id
	`, tenantID, name).Scan(&roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) CreatePermission(ctx context.Context, perm *Permission) error {
	_, err := s.db.ExecContext(ctx, `
		insert into permissions (id, name, resource, action, description)
		values ($1, $2, $3, $4, $5)
	`, perm.ID, perm.Name, perm.Resource, perm.Action, perm.Description)
	return mapConflict(err)
}

func (s *PGStore) GetPermissionByName(ctx context.Context, name string) (Permission, error) {
	var perm Permission
	err := s.db.QueryRowContext(ctx, `
		select id, name, resource, action, description
		from permissions
		where name = $1
	`, name).Scan(&perm.ID, &perm.Name, &perm.Resource, &perm.Action, &perm.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return Permission{}, ErrNotFound
	}
	return perm, err
}

func (s *PGStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, resource, action, description
		from permissions
		order by name asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func (s *PGStore) DeletePermission(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var permID string
	err = tx.QueryRowContext(ctx, `
		delete from permissions
		where name = $1
		returning id
	`, name).Scan(&permID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from role_permissions where permission_id = $1`, permID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) AssignPermission(ctx context.Context, roleID, permissionID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into role_permissions (role_id, permission_id, granted_at)
		values ($1, $2, $3)
		on conflict (role_id, permission_id) do nothing
	`, roleID, permissionID, time.Now().UTC())
	return err
}

func (s *PGStore) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from role_permissions
		where role_id = $1 and permission_id = $2
	`, roleID, permissionID)
	return err
}

func (s *PGStore) PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.resource, p.action, p.description
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by rp.granted_at asc, p.id asc
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func (s *PGStore) CreatePolicy(ctx context.Context, policy *Policy) error {
	conditions, err := json.Marshal(policy.Conditions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into policies (id, subject_id, resource, action, effect, conditions, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, policy.ID, policy.SubjectID, policy.Resource, policy.Action, policy.Effect, conditions, policy.CreatedAt)
	return mapConflict(err)
}

func (s *PGStore) GetPolicy(ctx context.Context, id string) (Policy, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, subject_id, resource, action, effect, conditions, created_at
		from policies
		where id = $1
	`, id)
	policy, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Policy{}, ErrNotFound
	}
	return policy, err
}

func (s *PGStore) DeletePolicy(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from policies where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListPolicies(ctx context.Context) ([]Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, subject_id, resource, action, effect, conditions, created_at
		from policies
		order by created_at asc, id asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPolicies(rows)
}

func (s *PGStore) PoliciesForSubject(ctx context.Context, subjectID string) ([]Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, subject_id, resource, action, effect, conditions, created_at
		from policies
		where subject_id = $1
		order by created_at asc, id asc
	`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPolicies(rows)
}

type policyScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row policyScanner) (Policy, error) {
	var (
		policy     Policy
		conditions []byte
	)
	err := row.Scan(&policy.ID, &policy.SubjectID, &policy.Resource, &policy.Action,
		&policy.Effect, &conditions, &policy.CreatedAt)
	if err != nil {
		return Policy{}, err
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &policy.Conditions); err != nil {
			return Policy{}, err
		}
	}
	return policy, nil
}

func scanPolicies(rows *sql.Rows) ([]Policy, error) {
	var out []Policy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, policy)
	}
	return out, rows.Err()
}

func scanPermissions(rows *sql.Rows) ([]Permission, error) {
	var out []Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Name, &perm.Resource, &perm.Action, &perm.Description); err != nil {
			return nil, err
		}
		out = append(out, perm)
	}
	return out, rows.Err()
}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrConflict
	}
	return err
}
