package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"gradia.org/internal/obs"
)

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Logging: method, path, status, duration
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		obs.LogEvent("info", "request", map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      sw.code,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote":      clientIP(r),
		})
	})
}

// SecurityHeaders: hardening for an internal JSON API
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// MaxBodyBytes: limit request body size
func MaxBodyBytes(next http.Handler, maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		next.ServeHTTP(w, r)
	})
}

// RateLimit: token-bucket per client IP
func RateLimit(next http.Handler, burst int, perSecond int) http.Handler {
	type bucket struct {
		lim *rate.Limiter
		ts  time.Time
	}
	var (
		mu      sync.Mutex
		buckets = make(map[string]*bucket)
		ttl     = 5 * time.Minute
	)
	ticker := time.NewTicker(1 * time.Minute)
	go func() {
		for range ticker.C {
			now := time.Now()
			mu.Lock()
			for k, b := range buckets {
				if now.Sub(b.ts) > ttl {
					delete(buckets, k)
				}
			}
			mu.Unlock()
		}
	}()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if ip == "" {
			ip = "unknown"
		}
		mu.Lock()
		b, ok := buckets[ip]
		if !ok {
			b = &bucket{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
			buckets[ip] = b
		}
		b.ts = time.Now()
		mu.Unlock()

		if !b.lim.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// routePattern collapses id-bearing paths to their route template so metric
// labels stay bounded: one series per route, not one per session or policy.
func routePattern(path string) string {
	switch {
	case strings.HasPrefix(path, "/internal/sessions/"):
		rest := strings.TrimPrefix(path, "/internal/sessions/")
		if parts := strings.Split(rest, "/"); len(parts) == 2 && parts[1] == "revoke" {
			return "/internal/sessions/:id/revoke"
		}
	case strings.HasPrefix(path, "/internal/users/"):
		rest := strings.TrimPrefix(path, "/internal/users/")
		if parts := strings.Split(rest, "/"); len(parts) == 3 && parts[1] == "sessions" && parts[2] == "revoke" {
			return "/internal/users/:id/sessions/revoke"
		}
	case strings.HasPrefix(path, "/internal/authz/roles/"):
		if rest := strings.TrimPrefix(path, "/internal/authz/roles/"); rest != "" && !strings.Contains(rest, "/") {
			return "/internal/authz/roles/:name"
		}
	case strings.HasPrefix(path, "/internal/authz/permissions/"):
		rest := strings.TrimPrefix(path, "/internal/authz/permissions/")
		if rest == "assign" || rest == "revoke" {
			return path
		}
		if rest != "" && !strings.Contains(rest, "/") {
			return "/internal/authz/permissions/:name"
		}
	case strings.HasPrefix(path, "/internal/authz/policies/"):
		if rest := strings.TrimPrefix(path, "/internal/authz/policies/"); rest != "" && !strings.Contains(rest, "/") {
			return "/internal/authz/policies/:id"
		}
	}
	return path
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
