package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"gradia.org/internal/audit"
	"gradia.org/internal/authz"
	"gradia.org/internal/obs"
)

// AuthzAPI is the authorization engine's HTTP surface.
type AuthzAPI struct {
	mux      *http.ServeMux
	engine   *authz.Engine
	auditLog audit.Store
	ready    ReadyProbe
	version  string
}

// NewAuthzAPI wires the authorization routes.
func NewAuthzAPI(engine *authz.Engine, auditLog audit.Store, rp ReadyProbe, version string) *AuthzAPI {
	a := &AuthzAPI{
		mux:      http.NewServeMux(),
		engine:   engine,
		auditLog: auditLog,
		ready:    rp,
		version:  version,
	}

	a.mux.HandleFunc("/internal/authz/check", a.handleCheck)
	a.mux.HandleFunc("/internal/authz/resolve", a.handleResolve)
	a.mux.HandleFunc("/internal/authz/roles", a.handleRoles)
	a.mux.HandleFunc("/internal/authz/roles/", a.handleRoleByName)
	a.mux.HandleFunc("/internal/authz/permissions", a.handlePermissions)
	a.mux.HandleFunc("/internal/authz/permissions/", a.handlePermissionSubpath)
	a.mux.HandleFunc("/internal/authz/policies", a.handlePolicies)
	a.mux.HandleFunc("/internal/authz/policies/", a.handlePolicyByID)
	a.mux.HandleFunc("/internal/authz/audit", a.handleAudit)

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReady)
	a.mux.Handle("/metrics", obs.Handler())
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Mux exposes the raw routes; wrap with Wrap before serving.
func (a *AuthzAPI) Mux() http.Handler { return a.mux }

func (a *AuthzAPI) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req authz.CheckRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	dec, err := a.engine.CheckPermission(r.Context(), req)
	if err != nil {
		a.writeAuthzError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dec)
}

func (a *AuthzAPI) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req struct {
		TenantID string `json:"tenant_id"`
		Role     string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	names, err := a.engine.ResolvePermissions(r.Context(), req.TenantID, req.Role)
	if err != nil {
		a.writeAuthzError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": names})
}

func (a *AuthzAPI) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		roles, err := a.engine.ListRoles(r.Context(), r.URL.Query().Get("tenant_id"))
		if err != nil {
			a.writeAuthzError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		var req struct {
			TenantID    string `json:"tenant_id"`
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.engine.CreateRole(r.Context(), req.TenantID, req.Name, req.Description)
		if err != nil {
			a.writeAuthzError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"role": role})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// DELETE /internal/authz/roles/{name}?tenant_id=...
func (a *AuthzAPI) handleRoleByName(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/internal/authz/roles/")
	if name == "" || strings.Contains(name, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}
	if err := a.engine.DeleteRole(r.Context(), r.URL.Query().Get("tenant_id"), name); err != nil {
		a.writeAuthzError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func (a *AuthzAPI) handlePermissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		perms, err := a.engine.ListPermissions(r.Context())
		if err != nil {
			a.writeAuthzError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
	case http.MethodPost:
		var req struct {
			Name        string `json:"name"`
			Resource    string `json:"resource"`
			Action      string `json:"action"`
			Description string `json:"description"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		perm, err := a.engine.CreatePermission(r.Context(), req.Name, req.Resource, req.Action, req.Description)
		if err != nil {
			a.writeAuthzError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"permission": perm})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

type grantRequest struct {
	TenantID   string `json:"tenant_id"`
	Role       string `json:"role"`
	Permission string `json:"permission"`
}

// POST /internal/authz/permissions/assign | /revoke, DELETE /internal/authz/permissions/{name}
func (a *AuthzAPI) handlePermissionSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/internal/authz/permissions/")
	switch rest {
	case "assign", "revoke":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		var req grantRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var err error
		if rest == "assign" {
			err = a.engine.AssignPermission(r.Context(), req.TenantID, req.Role, req.Permission)
		} else {
			err = a.engine.RevokePermission(r.Context(), req.TenantID, req.Role, req.Permission)
		}
		if err != nil {
			a.writeAuthzError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": rest + "ed"})
	default:
		if rest == "" || strings.Contains(rest, "/") {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, http.MethodDelete)
			return
		}
		if err := a.engine.DeletePermission(r.Context(), rest); err != nil {
			a.writeAuthzError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
	}
}

func (a *AuthzAPI) handlePolicies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		policies, err := a.engine.ListPolicies(r.Context())
		if err != nil {
			a.writeAuthzError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"policies": policies})
	case http.MethodPost:
		var req struct {
			SubjectID  string            `json:"subject_id"`
			Resource   string            `json:"resource"`
			Action     string            `json:"action"`
			Effect     string            `json:"effect"`
			Conditions map[string]string `json:"conditions"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		policy, err := a.engine.CreatePolicy(r.Context(), req.SubjectID, req.Resource, req.Action, req.Effect, req.Conditions)
		if err != nil {
			a.writeAuthzError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"policy": policy})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// DELETE /internal/authz/policies/{id}
func (a *AuthzAPI) handlePolicyByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/internal/authz/policies/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}
	if err := a.engine.DeletePolicy(r.Context(), id); err != nil {
		a.writeAuthzError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// GET /internal/authz/audit?subject=...&limit=...
func (a *AuthzAPI) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	var (
		records []audit.Record
		err     error
	)
	if subject := r.URL.Query().Get("subject"); subject != "" {
		records, err = a.auditLog.ListBySubject(r.Context(), subject, limit)
	} else {
		records, err = a.auditLog.ListRecent(r.Context(), limit)
	}
	if err != nil {
		obs.LogError("audit query failed", err, nil)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (a *AuthzAPI) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "authzd",
		"version": a.version,
	})
}

func (a *AuthzAPI) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *AuthzAPI) writeAuthzError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authz.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, authz.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, authz.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		obs.LogError("authorization request failed", err, nil)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
