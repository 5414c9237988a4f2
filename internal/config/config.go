// Package config centralizes environment-backed configuration for the
// trust-core services. Secrets and tunables are read once at startup and
// injected into constructors; no other package consults the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every runtime setting shared by sessiond and authzd.
type Config struct {
	HTTP        HTTPConfig
	Database    DatabaseConfig
	ServiceAuth ServiceAuthConfig
	Session     SessionConfig
	Authz       AuthzConfig
}

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Addr       string
	RateBurst  int
	RatePerSec int
	MaxBody    int64
}

// DatabaseConfig holds the Postgres DSN. An empty DSN selects the in-memory
// stores, which is only appropriate for local development.
type DatabaseConfig struct {
	DSN string
}

// ServiceAuthConfig configures verification of service-to-service tokens.
type ServiceAuthConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// SessionConfig holds session lifecycle tunables.
type SessionConfig struct {
	TTL time.Duration
}

// AuthzConfig holds authorization engine tunables.
type AuthzConfig struct {
	PolicyCacheTTL time.Duration
	AuditQueueSize int
}

// Load builds a Config from the environment, reading a .env file first when
// one is present. defaultAddr is the listener used when GRADIA_HTTP_ADDR is
// not set, so each binary keeps its own port.
func Load(defaultAddr string) (*Config, error) {
	_ = godotenv.Load()

	secret := strings.TrimSpace(os.Getenv("GRADIA_SVC_SECRET"))
	if secret == "" {
		return nil, errors.New("GRADIA_SVC_SECRET is required")
	}

	burst, err := getInt("GRADIA_RATE_BURST", 50)
	if err != nil {
		return nil, err
	}
	perSec, err := getInt("GRADIA_RATE_PER_SEC", 25)
	if err != nil {
		return nil, err
	}
	maxBody, err := getInt("GRADIA_MAX_BODY_BYTES", 1<<20)
	if err != nil {
		return nil, err
	}
	queueSize, err := getInt("GRADIA_AUDIT_QUEUE_SIZE", 1024)
	if err != nil {
		return nil, err
	}
	sessionTTL, err := getDuration("GRADIA_SESSION_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	svcTTL, err := getDuration("GRADIA_SVC_TOKEN_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := getDuration("GRADIA_POLICY_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		HTTP: HTTPConfig{
			Addr:       getEnv("GRADIA_HTTP_ADDR", defaultAddr),
			RateBurst:  burst,
			RatePerSec: perSec,
			MaxBody:    int64(maxBody),
		},
		Database: DatabaseConfig{
			DSN: strings.TrimSpace(os.Getenv("GRADIA_PG_DSN")),
		},
		ServiceAuth: ServiceAuthConfig{
			Secret: secret,
			Issuer: getEnv("GRADIA_SVC_ISSUER", "gradia-trust-core"),
			TTL:    svcTTL,
		},
		Session: SessionConfig{
			TTL: sessionTTL,
		},
		Authz: AuthzConfig{
			PolicyCacheTTL: cacheTTL,
			AuditQueueSize: queueSize,
		},
	}, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
