package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gradia.org/internal/svcauth"
)

const testSecret = "test-secret-test-secret-test-secret!"

func newVerifier(t *testing.T) *svcauth.Manager {
	t.Helper()
	mgr, err := svcauth.New(testSecret, "gradia-trust-core", 15*time.Minute)
	if err != nil {
		t.Fatalf("svcauth.New: %v", err)
	}
	return mgr
}

func serviceToken(t *testing.T, mgr *svcauth.Manager) string {
	t.Helper()
	token, _, err := mgr.Issue("grading-service")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

type apiClient struct {
	t     *testing.T
	base  string
	token string
}

func (c *apiClient) do(method, path string, body any) (int, map[string]any) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("read body: %v", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			c.t.Fatalf("decode %s %s response %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, decoded
}

func newTestServer(t *testing.T, mux http.Handler, mgr *svcauth.Manager) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(Wrap(mux, mgr, 100, 100, 1<<20))
	t.Cleanup(srv.Close)
	return srv
}
