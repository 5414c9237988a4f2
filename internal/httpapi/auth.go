package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gradia.org/internal/svcauth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
}

// ServiceAuth rejects every non-public request that does not carry a valid
// service-to-service token. Handlers behind it can rely on the caller
// identity being present in the request context; the engine and the session
// service stamp it into their audit metadata.
func ServiceAuth(verifier *svcauth.Manager, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		claims, err := verifier.Verify(token)
		if err != nil {
			if errors.Is(err, svcauth.ErrInvalidToken) {
				writeError(w, http.StatusUnauthorized, "invalid service token")
				return
			}
			writeError(w, http.StatusInternalServerError, "authentication error")
			return
		}

		ctx := svcauth.ContextWithService(r.Context(), claims.Service)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("missing authorization header")
	}
	if !strings.HasPrefix(header, bearer) {
		return "", fmt.Errorf("authorization header must use bearer scheme")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearer))
	if token == "" {
		return "", fmt.Errorf("empty bearer token")
	}
	return token, nil
}
