package httpapi

import (
	"net/http"
	"testing"

	"gradia.org/internal/session"
)

func newSessionClient(t *testing.T) *apiClient {
	t.Helper()
	svc, err := session.NewService(session.NewMemoryStore())
	if err != nil {
		t.Fatalf("session.NewService: %v", err)
	}
	mgr := newVerifier(t)
	srv := newTestServer(t, NewSessionAPI(svc, ReadyProbe{}, "test").Mux(), mgr)
	return &apiClient{t: t, base: srv.URL, token: serviceToken(t, mgr)}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	client := newSessionClient(t)

	status, body := client.do(http.MethodPost, "/internal/sessions", map[string]any{
		"user_id":   "u1",
		"user_role": "student",
	})
	if status != http.StatusCreated {
		t.Fatalf("create: status %d body %v", status, body)
	}
	sess := body["session"].(map[string]any)
	sessionID := sess["id"].(string)
	credential := body["credential"].(string)
	if sessionID == "" || credential == "" {
		t.Fatalf("incomplete create response: %v", body)
	}
	if _, leaked := sess["credential_hash"]; leaked {
		t.Fatal("credential hash must never appear in a response")
	}

	status, body = client.do(http.MethodPost, "/internal/sessions/validate", map[string]any{
		"session_id": sessionID,
	})
	if status != http.StatusOK {
		t.Fatalf("validate: status %d body %v", status, body)
	}

	status, body = client.do(http.MethodPost, "/internal/sessions/refresh", map[string]any{
		"session_id": sessionID,
		"credential": credential,
	})
	if status != http.StatusOK {
		t.Fatalf("refresh: status %d body %v", status, body)
	}
	refreshed := body["session"].(map[string]any)
	if refreshed["rotation_counter"].(float64) != 1 {
		t.Fatalf("rotation counter = %v, want 1", refreshed["rotation_counter"])
	}
	newCredential := body["credential"].(string)

	// The superseded credential is rejected with 401.
	status, _ = client.do(http.MethodPost, "/internal/sessions/refresh", map[string]any{
		"session_id": sessionID,
		"credential": credential,
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("stale refresh: status %d, want 401", status)
	}

	status, _ = client.do(http.MethodPost, "/internal/sessions/"+sessionID+"/revoke", nil)
	if status != http.StatusOK {
		t.Fatalf("revoke: status %d", status)
	}

	status, _ = client.do(http.MethodPost, "/internal/sessions/validate", map[string]any{
		"session_id": sessionID,
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("validate after revoke: status %d, want 401", status)
	}
	status, _ = client.do(http.MethodPost, "/internal/sessions/refresh", map[string]any{
		"session_id": sessionID,
		"credential": newCredential,
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("refresh after revoke: status %d, want 401", status)
	}
}

func TestBulkRevokeOverHTTP(t *testing.T) {
	client := newSessionClient(t)

	for i := 0; i < 3; i++ {
		status, _ := client.do(http.MethodPost, "/internal/sessions", map[string]any{
			"user_id":   "u1",
			"user_role": "student",
		})
		if status != http.StatusCreated {
			t.Fatalf("create %d: status %d", i, status)
		}
	}

	status, body := client.do(http.MethodPost, "/internal/users/u1/sessions/revoke", nil)
	if status != http.StatusOK {
		t.Fatalf("bulk revoke: status %d", status)
	}
	if body["revoked"].(float64) != 3 {
		t.Fatalf("revoked = %v, want 3", body["revoked"])
	}
}

func TestSessionEndpointValidation(t *testing.T) {
	client := newSessionClient(t)

	status, _ := client.do(http.MethodPost, "/internal/sessions", map[string]any{
		"user_role": "student",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("missing user_id: status %d, want 400", status)
	}

	status, _ = client.do(http.MethodPost, "/internal/sessions/validate", map[string]any{
		"session_id": "ffffffff-0000-0000-0000-000000000000",
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("unknown session: status %d, want 401", status)
	}

	status, _ = client.do(http.MethodPost, "/internal/sessions/nope/revoke", nil)
	if status != http.StatusNotFound {
		t.Fatalf("revoke of unknown session: status %d, want 404", status)
	}

	status, _ = client.do(http.MethodGet, "/internal/sessions/validate", nil)
	if status != http.StatusMethodNotAllowed {
		t.Fatalf("GET validate: status %d, want 405", status)
	}
}

func TestServiceAuthGuardsSessionRoutes(t *testing.T) {
	client := newSessionClient(t)

	// Health endpoints stay public.
	anon := &apiClient{t: t, base: client.base}
	if status, _ := anon.do(http.MethodGet, "/healthz", nil); status != http.StatusOK {
		t.Fatalf("healthz: status %d, want 200", status)
	}
	if status, _ := anon.do(http.MethodGet, "/readyz", nil); status != http.StatusOK {
		t.Fatalf("readyz: status %d, want 200", status)
	}

	// Missing and malformed tokens never reach the handlers.
	if status, _ := anon.do(http.MethodPost, "/internal/sessions", map[string]any{
		"user_id": "u1", "user_role": "student",
	}); status != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d, want 401", status)
	}

	forged := &apiClient{t: t, base: client.base, token: "not-a-jwt"}
	if status, _ := forged.do(http.MethodPost, "/internal/sessions", map[string]any{
		"user_id": "u1", "user_role": "student",
	}); status != http.StatusUnauthorized {
		t.Fatalf("forged token: status %d, want 401", status)
	}
}
