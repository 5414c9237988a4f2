package authz

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local development. Policies
// and permission grants keep insertion order.
type MemoryStore struct {
	mu          sync.Mutex
	roles       []Role
	permissions []Permission
	grants      map[string][]string // role id -> permission ids, in grant order
	policies    []Policy
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{grants: make(map[string][]string)}
}

func (s *MemoryStore) CreateRole(_ context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.TenantID == role.TenantID && r.Name == role.Name {
			return ErrConflict
		}
	}
	s.roles = append(s.roles, *role)
	return nil
}

func (s *MemoryStore) GetRoleByName(_ context.Context, tenantID, name string) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.TenantID == tenantID && r.Name == name {
			return r, nil
		}
	}
	return Role{}, ErrNotFound
}

func (s *MemoryStore) ListRoles(_ context.Context, tenantID string) ([]Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Role, 0)
	for _, r := range s.roles {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteRole(_ context.Context, tenantID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.roles {
		if r.TenantID == tenantID && r.Name == name {
			s.roles = append(s.roles[:i], s.roles[i+1:]...)
			delete(s.grants, r.ID)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) CreatePermission(_ context.Context, perm *Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.permissions {
		if p.Name == perm.Name {
			return ErrConflict
		}
	}
	s.permissions = append(s.permissions, *perm)
	return nil
}

func (s *MemoryStore) GetPermissionByName(_ context.Context, name string) (Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.permissions {
		if p.Name == name {
			return p, nil
		}
	}
	return Permission{}, ErrNotFound
}

func (s *MemoryStore) ListPermissions(_ context.Context) ([]Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Permission, len(s.permissions))
	copy(out, s.permissions)
	return out, nil
}

func (s *MemoryStore) DeletePermission(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.permissions {
		if p.Name != name {
			continue
		}
		s.permissions = append(s.permissions[:i], s.permissions[i+1:]...)
		for roleID, permIDs := range s.grants {
			s.grants[roleID] = removeID(permIDs, p.ID)
		}
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) AssignPermission(_ context.Context, roleID, permissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.grants[roleID] {
		if id == permissionID {
			return nil
		}
	}
	s.grants[roleID] = append(s.grants[roleID], permissionID)
	return nil
}

func (s *MemoryStore) RevokePermission(_ context.Context, roleID, permissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[roleID] = removeID(s.grants[roleID], permissionID)
	return nil
}

func (s *MemoryStore) PermissionsForRole(_ context.Context, roleID string) ([]Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := make(map[string]Permission, len(s.permissions))
	for _, p := range s.permissions {
		byID[p.ID] = p
	}
	out := make([]Permission, 0, len(s.grants[roleID]))
	for _, id := range s.grants[roleID] {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreatePolicy(_ context.Context, policy *Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies = append(s.policies, *policy)
	return nil
}

func (s *MemoryStore) GetPolicy(_ context.Context, id string) (Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.policies {
		if p.ID == id {
			return p, nil
		}
	}
	return Policy{}, ErrNotFound
}

func (s *MemoryStore) DeletePolicy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.policies {
		if p.ID == id {
			s.policies = append(s.policies[:i], s.policies[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) ListPolicies(_ context.Context) ([]Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Policy, len(s.policies))
	copy(out, s.policies)
	return out, nil
}

func (s *MemoryStore) PoliciesForSubject(_ context.Context, subjectID string) ([]Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Policy, 0)
	for _, p := range s.policies {
		if p.SubjectID == subjectID {
			out = append(out, p)
		}
	}
	return out, nil
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
