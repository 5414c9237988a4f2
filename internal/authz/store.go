package authz

import "context"

// Store is the persistence contract for roles, permissions and policies.
// PoliciesForSubject must return policies in insertion order; the engine's
// first-match-wins evaluation depends on it.
type Store interface {
	CreateRole(ctx context.Context, role *Role) error
	GetRoleByName(ctx context.Context, tenantID, name string) (Role, error)
	ListRoles(ctx context.Context, tenantID string) ([]Role, error)
	DeleteRole(ctx context.Context, tenantID, name string) error

	CreatePermission(ctx context.Context, perm *Permission) error
	GetPermissionByName(ctx context.Context, name string) (Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	DeletePermission(ctx context.Context, name string) error

	AssignPermission(ctx context.Context, roleID, permissionID string) error
	RevokePermission(ctx context.Context, roleID, permissionID string) error
	PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error)

	CreatePolicy(ctx context.Context, policy *Policy) error
	GetPolicy(ctx context.Context, id string) (Policy, error)
	DeletePolicy(ctx context.Context, id string) error
	ListPolicies(ctx context.Context) ([]Policy, error)
	PoliciesForSubject(ctx context.Context, subjectID string) ([]Policy, error)
}
