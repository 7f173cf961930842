package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Config holds bridge server configuration, loaded from the environment.
type Config struct {
	Port     string
	LogLevel string

	DatabaseURL string // empty => lite mode (embedded SQLite)

	RedisURL string // empty => in-process Locker fallback

	OperatorJWTSecret     string // fatal if empty
	CredentialEncryptionKey string // HKDF input; fatal if empty

	ArchiveBackend string // "none" | "gcs" | "s3"
	ArchiveBucket  string

	GraphAPIVersion string

	OTLPEndpoint string

	PlatformProfilesPath string

	StaleClaimTimeout time.Duration
	SessionTTLDays    int

	AIRuntimeBaseURL string
	AIRuntimeTimeout time.Duration
}

// minSupportedGraphAPIVersion is the floor below which the configured
// provider API version is rejected at startup.
var minSupportedGraphAPIVersion = semver.MustParse("17.0.0")

// Load reads configuration from the environment. It returns an error for any
// fatal misconfiguration (missing operator signing key, missing encryption
// key, or an unsupported GRAPH_API_VERSION) rather than starting in a silently
// insecure or broken state.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                    getenv("PORT", "8080"),
		LogLevel:                getenv("LOG_LEVEL", "INFO"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisURL:                os.Getenv("REDIS_URL"),
		OperatorJWTSecret:       os.Getenv("OPERATOR_JWT_SECRET"),
		CredentialEncryptionKey: os.Getenv("CREDENTIAL_ENCRYPTION_KEY"),
		ArchiveBackend:          getenv("ARCHIVE_BACKEND", "none"),
		ArchiveBucket:           os.Getenv("ARCHIVE_BUCKET"),
		GraphAPIVersion:         getenv("GRAPH_API_VERSION", "v18.0"),
		OTLPEndpoint:            os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		PlatformProfilesPath:    getenv("PLATFORM_PROFILES_PATH", "config/profiles"),
		AIRuntimeBaseURL:        os.Getenv("AI_RUNTIME_BASE_URL"),
	}

	if cfg.OperatorJWTSecret == "" {
		return nil, fmt.Errorf("OPERATOR_JWT_SECRET is required: refusing to start with operator endpoints unguarded")
	}
	if cfg.CredentialEncryptionKey == "" {
		return nil, fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY is required: refusing to start without at-rest credential encryption")
	}

	if err := validateGraphAPIVersion(cfg.GraphAPIVersion); err != nil {
		return nil, err
	}

	staleSecs, err := strconv.Atoi(getenv("STALE_CLAIM_TIMEOUT_SECONDS", "60"))
	if err != nil {
		return nil, fmt.Errorf("STALE_CLAIM_TIMEOUT_SECONDS: %w", err)
	}
	cfg.StaleClaimTimeout = time.Duration(staleSecs) * time.Second

	ttlDays, err := strconv.Atoi(getenv("SESSION_TTL_DAYS", "365"))
	if err != nil {
		return nil, fmt.Errorf("SESSION_TTL_DAYS: %w", err)
	}
	cfg.SessionTTLDays = ttlDays

	timeoutSecs, err := strconv.Atoi(getenv("AI_RUNTIME_TIMEOUT_SECONDS", "15"))
	if err != nil {
		return nil, fmt.Errorf("AI_RUNTIME_TIMEOUT_SECONDS: %w", err)
	}
	cfg.AIRuntimeTimeout = time.Duration(timeoutSecs) * time.Second

	switch cfg.ArchiveBackend {
	case "none", "gcs", "s3":
	default:
		return nil, fmt.Errorf("ARCHIVE_BACKEND must be one of none|gcs|s3, got %q", cfg.ArchiveBackend)
	}

	return cfg, nil
}

// IsLiteMode reports whether the server should fall back to the embedded
// SQLite store because no external database was configured.
func (c *Config) IsLiteMode() bool {
	return c.DatabaseURL == ""
}

func validateGraphAPIVersion(v string) error {
	normalized := v
	if len(normalized) > 0 && normalized[0] == 'v' {
		normalized = normalized[1:]
	}
	// semver requires a patch component; a bare "18.0" is extended to "18.0.0".
	ver, err := semver.NewVersion(normalized)
	if err != nil {
		ver, err = semver.NewVersion(normalized + ".0")
		if err != nil {
			return fmt.Errorf("GRAPH_API_VERSION %q is not a valid version string: %w", v, err)
		}
	}
	if ver.LessThan(minSupportedGraphAPIVersion) {
		return fmt.Errorf("GRAPH_API_VERSION %q is below the minimum supported version %s", v, minSupportedGraphAPIVersion)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
