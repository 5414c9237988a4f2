package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gradia.org/internal/audit"
	"gradia.org/internal/cache"
	"gradia.org/internal/ids"
	"gradia.org/internal/obs"
	"gradia.org/internal/svcauth"
)

const defaultPolicyCacheTTL = 30 * time.Second

// Decision sources, exported as the "source" metric label.
const (
	sourceSubjectPolicy  = "subject_policy"
	sourceRolePermission = "role_permission"
	sourceRolePolicy     = "role_policy"
	sourceDefault        = "default"
)

// Engine evaluates authorization requests against the policy store. Per-subject
// policy lists are cached with a bounded TTL; every policy write invalidates
// the touched subject's key after the store write commits.
type Engine struct {
	store    Store
	policies *cache.Cache[[]Policy]
	recorder *audit.Recorder
	cacheTTL time.Duration
	now      func() time.Time
}

// EngineOption configures Engine behavior.
type EngineOption func(*Engine)

// WithPolicyCacheTTL bounds how long a subject's policy list may be served
// from cache.
func WithPolicyCacheTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) {
		if ttl > 0 {
			e.cacheTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
			e.policies = cache.New[[]Policy](cache.WithClock[[]Policy](fn))
		}
	}
}

// WithRecorder attaches the audit recorder. Every CheckPermission call then
// produces exactly one audit record, written off the decision path.
func WithRecorder(r *audit.Recorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// NewEngine constructs an Engine backed by the given store.
func NewEngine(store Store, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("authz store is required")
	}
	e := &Engine{
		store:    store,
		policies: cache.New[[]Policy](),
		cacheTTL: defaultPolicyCacheTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// StartCacheJanitor periodically evicts expired per-subject policy lists.
// Call the returned stop function on shutdown.
func (e *Engine) StartCacheJanitor(interval time.Duration) (stop func()) {
	return e.policies.StartJanitor(interval)
}

// CheckPermission answers one authorization question. Precedence is fixed and
// first match wins: policies scoped to the subject id, then per role (in the
// order supplied) the role's exact permission grants followed by the role's
// policies, then default deny. An error means the question could not be
// evaluated; callers must treat that as a denial.
func (e *Engine) CheckPermission(ctx context.Context, req CheckRequest) (Decision, error) {
	if strings.TrimSpace(req.SubjectID) == "" || strings.TrimSpace(req.Resource) == "" || strings.TrimSpace(req.Action) == "" {
		return Decision{}, fmt.Errorf("%w: subject_id, resource and action are required", ErrInvalidInput)
	}

	dec, source, err := e.evaluate(ctx, req)
	if err != nil {
		return Decision{}, err
	}

	effect := EffectDeny
	result := audit.ResultDeny
	if dec.Allowed {
		effect = EffectAllow
		result = audit.ResultAllow
	}
	obs.ObserveDecision(effect, source)

	if e.recorder != nil {
		md := map[string]string{
			"reason": dec.Reason,
			"tenant": req.TenantID,
		}
		if caller := svcauth.ServiceFromContext(ctx); caller != "" {
			md["caller"] = caller
		}
		e.recorder.Record(audit.Record{
			Subject:  req.SubjectID,
			Resource: req.Resource,
			Action:   req.Action,
			Result:   result,
			Metadata: md,
		})
	}
	return dec, nil
}

func (e *Engine) evaluate(ctx context.Context, req CheckRequest) (Decision, string, error) {
	subjectPolicies, err := e.policiesFor(ctx, req.SubjectID)
	if err != nil {
		return Decision{}, "", err
	}
	if p, ok := firstMatch(subjectPolicies, req.Resource, req.Action, req.Attributes); ok {
		return decisionFor(p), sourceSubjectPolicy, nil
	}

	for _, roleName := range req.Roles {
		role, err := e.store.GetRoleByName(ctx, req.TenantID, roleName)
		if errors.Is(err, ErrNotFound) {
			// Dangling role reference: treated as non-matching.
			continue
		}
		if err != nil {
			return Decision{}, "", err
		}

		perms, err := e.store.PermissionsForRole(ctx, role.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Decision{}, "", err
		}
		for _, perm := range perms {
			// Exact match only; wildcards live in policies, not grants.
			if perm.Resource == req.Resource && perm.Action == req.Action {
				return Decision{
					Allowed: true,
					Reason:  fmt.Sprintf("role %s permission %s", role.Name, perm.Name),
				}, sourceRolePermission, nil
			}
		}

		rolePolicies, err := e.policiesFor(ctx, role.Name)
		if err != nil {
			return Decision{}, "", err
		}
		if p, ok := firstMatch(rolePolicies, req.Resource, req.Action, req.Attributes); ok {
			return decisionFor(p), sourceRolePolicy, nil
		}
	}

	return Decision{Allowed: false, Reason: "default deny"}, sourceDefault, nil
}

func decisionFor(p Policy) Decision {
	return Decision{
		Allowed: p.Effect == EffectAllow,
		Reason:  fmt.Sprintf("policy %s", p.ID),
	}
}

func (e *Engine) policiesFor(ctx context.Context, subjectID string) ([]Policy, error) {
	if ps, ok := e.policies.Get(subjectID); ok {
		return ps, nil
	}
	ps, err := e.store.PoliciesForSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	e.policies.Set(subjectID, ps, e.cacheTTL)
	return ps, nil
}

// ResolvePermissions flattens a role's permission bundle to names. A role with
// no grants resolves to an empty list; a missing role is ErrNotFound.
func (e *Engine) ResolvePermissions(ctx context.Context, tenantID, roleName string) ([]string, error) {
	if strings.TrimSpace(roleName) == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role, err := e.store.GetRoleByName(ctx, tenantID, roleName)
	if err != nil {
		return nil, err
	}
	perms, err := e.store.PermissionsForRole(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.Name)
	}
	return names, nil
}

// CreateRole registers a role in the tenant. Duplicate names within one
// tenant are a conflict.
func (e *Engine) CreateRole(ctx context.Context, tenantID, name, description string) (Role, error) {
	tenantID = strings.TrimSpace(tenantID)
	name = strings.TrimSpace(name)
	if tenantID == "" || name == "" {
		return Role{}, fmt.Errorf("%w: tenant_id and name are required", ErrInvalidInput)
	}
	role := Role{
		ID:          ids.New(),
		TenantID:    tenantID,
		Name:        name,
		Description: description,
		CreatedAt:   e.now().UTC(),
	}
	if err := e.store.CreateRole(ctx, &role); err != nil {
		return Role{}, err
	}
	return role, nil
}

// ListRoles lists the tenant's roles.
func (e *Engine) ListRoles(ctx context.Context, tenantID string) ([]Role, error) {
	return e.store.ListRoles(ctx, tenantID)
}

// DeleteRole removes the role and its permission grants. Policies naming the
// role remain; checks treat the dangling reference as non-matching.
func (e *Engine) DeleteRole(ctx context.Context, tenantID, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if err := e.store.DeleteRole(ctx, tenantID, name); err != nil {
		return err
	}
	e.policies.Delete(name)
	return nil
}

// CreatePermission registers a named resource/action pair.
func (e *Engine) CreatePermission(ctx context.Context, name, resource, action, description string) (Permission, error) {
	name = strings.TrimSpace(name)
	resource = strings.TrimSpace(resource)
	action = strings.TrimSpace(action)
	if name == "" || resource == "" || action == "" {
		return Permission{}, fmt.Errorf("%w: name, resource and action are required", ErrInvalidInput)
	}
	perm := Permission{
		ID:          ids.New(),
		Name:        name,
		Resource:    resource,
		Action:      action,
		Description: description,
	}
	if err := e.store.CreatePermission(ctx, &perm); err != nil {
		return Permission{}, err
	}
	return perm, nil
}

// ListPermissions lists the permission catalog.
func (e *Engine) ListPermissions(ctx context.Context) ([]Permission, error) {
	return e.store.ListPermissions(ctx)
}

// DeletePermission removes a permission from the catalog and from every role
// holding it.
func (e *Engine) DeletePermission(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: permission name is required", ErrInvalidInput)
	}
	return e.store.DeletePermission(ctx, name)
}

// AssignPermission grants the named permission to the named role.
func (e *Engine) AssignPermission(ctx context.Context, tenantID, roleName, permissionName string) error {
	role, perm, err := e.resolvePair(ctx, tenantID, roleName, permissionName)
	if err != nil {
		return err
	}
	return e.store.AssignPermission(ctx, role.ID, perm.ID)
}

// RevokePermission removes the grant. Revoking a grant that does not exist is
// a no-op success.
func (e *Engine) RevokePermission(ctx context.Context, tenantID, roleName, permissionName string) error {
	role, perm, err := e.resolvePair(ctx, tenantID, roleName, permissionName)
	if err != nil {
		return err
	}
	return e.store.RevokePermission(ctx, role.ID, perm.ID)
}

func (e *Engine) resolvePair(ctx context.Context, tenantID, roleName, permissionName string) (Role, Permission, error) {
	if strings.TrimSpace(roleName) == "" || strings.TrimSpace(permissionName) == "" {
		return Role{}, Permission{}, fmt.Errorf("%w: role and permission names are required", ErrInvalidInput)
	}
	role, err := e.store.GetRoleByName(ctx, tenantID, roleName)
	if err != nil {
		return Role{}, Permission{}, err
	}
	perm, err := e.store.GetPermissionByName(ctx, permissionName)
	if err != nil {
		return Role{}, Permission{}, err
	}
	return role, perm, nil
}

// CreatePolicy stores an attribute-based rule for a subject id or role name.
// The subject's cached policy list is invalidated once the write commits, so
// a freshly added deny takes effect on the next check.
func (e *Engine) CreatePolicy(ctx context.Context, subjectID, resource, action, effect string, conditions map[string]string) (Policy, error) {
	subjectID = strings.TrimSpace(subjectID)
	resource = strings.TrimSpace(resource)
	action = strings.TrimSpace(action)
	if subjectID == "" || resource == "" || action == "" {
		return Policy{}, fmt.Errorf("%w: subject_id, resource and action are required", ErrInvalidInput)
	}
	if effect != EffectAllow && effect != EffectDeny {
		return Policy{}, fmt.Errorf("%w: effect must be %q or %q", ErrInvalidInput, EffectAllow, EffectDeny)
	}
	policy := Policy{
		ID:         ids.New(),
		SubjectID:  subjectID,
		Resource:   resource,
		Action:     action,
		Effect:     effect,
		Conditions: conditions,
		CreatedAt:  e.now().UTC(),
	}
	if err := e.store.CreatePolicy(ctx, &policy); err != nil {
		return Policy{}, err
	}
	e.policies.Delete(subjectID)
	return policy, nil
}

// DeletePolicy removes the policy and invalidates its subject's cache key.
func (e *Engine) DeletePolicy(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: policy id is required", ErrInvalidInput)
	}
	policy, err := e.store.GetPolicy(ctx, id)
	if err != nil {
		return err
	}
	if err := e.store.DeletePolicy(ctx, id); err != nil {
		return err
	}
	e.policies.Delete(policy.SubjectID)
	return nil
}

// ListPolicies lists every stored policy.
func (e *Engine) ListPolicies(ctx context.Context) ([]Policy, error) {
	return e.store.ListPolicies(ctx)
}
