package authz

import (
	"errors"
	"time"
)

// Sentinel errors returned by the engine and its stores.
var (
	ErrNotFound     = errors.New("authz: not found")
	ErrConflict     = errors.New("authz: already exists")
	ErrInvalidInput = errors.New("authz: invalid input")
)

// Policy effects.
const (
	EffectAllow = "allow"
	EffectDeny  = "deny"
)

// Wildcard matches any resource or action in a policy pattern.
const Wildcard = "*"

// Role is a named bundle of permissions scoped to one tenant.
type Role struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Permission names one action on one resource type, e.g. grade on submission.
type Permission struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description,omitempty"`
}

// Policy is an attribute-based rule. SubjectID is either a user id or a role
// name; both go through the same lookup path. Resource and Action may be the
// wildcard. Conditions must all hold against the request attributes for the
// policy to match.
type Policy struct {
	ID         string            `json:"id"`
	SubjectID  string            `json:"subject_id"`
	Resource   string            `json:"resource"`
	Action     string            `json:"action"`
	Effect     string            `json:"effect"`
	Conditions map[string]string `json:"conditions,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// CheckRequest carries one authorization question.
type CheckRequest struct {
	SubjectID  string            `json:"subject_id"`
	Roles      []string          `json:"roles"`
	TenantID   string            `json:"tenant_id"`
	Resource   string            `json:"resource"`
	Action     string            `json:"action"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Decision is the engine's answer. Reason names the first matched artifact,
// or "default deny" when nothing matched.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}
