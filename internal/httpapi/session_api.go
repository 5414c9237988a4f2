package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"gradia.org/internal/obs"
	"gradia.org/internal/session"
)

// SessionAPI is the session manager's HTTP surface.
type SessionAPI struct {
	mux      *http.ServeMux
	sessions *session.Service
	ready    ReadyProbe
	version  string
}

// NewSessionAPI wires the session routes.
func NewSessionAPI(sessions *session.Service, rp ReadyProbe, version string) *SessionAPI {
	a := &SessionAPI{
		mux:      http.NewServeMux(),
		sessions: sessions,
		ready:    rp,
		version:  version,
	}

	a.mux.HandleFunc("/internal/sessions", a.handleCreate)
	a.mux.HandleFunc("/internal/sessions/validate", a.handleValidate)
	a.mux.HandleFunc("/internal/sessions/refresh", a.handleRefresh)
	a.mux.HandleFunc("/internal/sessions/", a.handleSessionSubpath)
	a.mux.HandleFunc("/internal/users/", a.handleUserSubpath)

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReady)
	a.mux.Handle("/metrics", obs.Handler())
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Mux exposes the raw routes; wrap with Wrap before serving.
func (a *SessionAPI) Mux() http.Handler { return a.mux }

type createSessionRequest struct {
	UserID    string `json:"user_id"`
	UserRole  string `json:"user_role"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent"`
}

func (a *SessionAPI) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ClientIP == "" {
		req.ClientIP = clientIP(r)
	}
	if req.UserAgent == "" {
		req.UserAgent = r.UserAgent()
	}

	sess, credential, err := a.sessions.CreateSession(r.Context(), req.UserID, req.UserRole, req.ClientIP, req.UserAgent)
	if err != nil {
		a.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session":    sess,
		"credential": credential,
	})
}

func (a *SessionAPI) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := a.sessions.ValidateSession(r.Context(), req.SessionID)
	if err != nil {
		a.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess})
}

func (a *SessionAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req struct {
		SessionID  string `json:"session_id"`
		Credential string `json:"credential"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, credential, err := a.sessions.RefreshSession(r.Context(), req.SessionID, req.Credential)
	if err != nil {
		a.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":    sess,
		"credential": credential,
	})
}

// POST /internal/sessions/{id}/revoke
func (a *SessionAPI) handleSessionSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/internal/sessions/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "revoke" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	if err := a.sessions.RevokeSession(r.Context(), parts[0]); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		a.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "revoked"})
}

// POST /internal/users/{userId}/sessions/revoke
func (a *SessionAPI) handleUserSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/internal/users/")
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "sessions" || parts[2] != "revoke" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	n, err := a.sessions.RevokeAllUserSessions(r.Context(), parts[0])
	if err != nil {
		a.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked": n})
}

func (a *SessionAPI) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "sessiond",
		"version": a.version,
	})
}

func (a *SessionAPI) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// writeSessionError maps domain errors to statuses: bad input is 400, any
// definitive authentication outcome is 401, the rest is infrastructure.
func (a *SessionAPI) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrExpired),
		errors.Is(err, session.ErrRevoked),
		errors.Is(err, session.ErrCredentialMismatch):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		obs.LogError("session request failed", err, nil)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
