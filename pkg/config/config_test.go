package config_test

import (
	"testing"

	"github.com/CRT-AUTO/bridge-core/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearBridgeEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "LOG_LEVEL", "DATABASE_URL", "REDIS_URL", "OPERATOR_JWT_SECRET",
		"CREDENTIAL_ENCRYPTION_KEY", "ARCHIVE_BACKEND", "ARCHIVE_BUCKET",
		"GRAPH_API_VERSION", "OTEL_EXPORTER_OTLP_ENDPOINT", "PLATFORM_PROFILES_PATH",
		"STALE_CLAIM_TIMEOUT_SECONDS", "SESSION_TTL_DAYS", "AI_RUNTIME_BASE_URL",
		"AI_RUNTIME_TIMEOUT_SECONDS",
	} {
		t.Setenv(k, "")
	}
}

// TestLoad_RequiresOperatorSecret verifies the server refuses to start
// without an operator JWT signing key configured (§6 fatal startup error).
func TestLoad_RequiresOperatorSecret(t *testing.T) {
	clearBridgeEnv(t)
	t.Setenv("CREDENTIAL_ENCRYPTION_KEY", "some-app-secret")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPERATOR_JWT_SECRET")
}

// TestLoad_RequiresEncryptionKey verifies the server refuses to start
// without credential-at-rest encryption configured.
func TestLoad_RequiresEncryptionKey(t *testing.T) {
	clearBridgeEnv(t)
	t.Setenv("OPERATOR_JWT_SECRET", "test-operator-secret")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CREDENTIAL_ENCRYPTION_KEY")
}

// TestLoad_Defaults verifies sensible defaults once the two required
// secrets are present, including the lite-mode switch.
func TestLoad_Defaults(t *testing.T) {
	clearBridgeEnv(t)
	t.Setenv("OPERATOR_JWT_SECRET", "test-operator-secret")
	t.Setenv("CREDENTIAL_ENCRYPTION_KEY", "test-app-secret")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "v18.0", cfg.GraphAPIVersion)
	assert.Equal(t, "none", cfg.ArchiveBackend)
	assert.Equal(t, 365, cfg.SessionTTLDays)
	assert.True(t, cfg.IsLiteMode())
}

// TestLoad_Overrides verifies env vars override defaults end to end.
func TestLoad_Overrides(t *testing.T) {
	clearBridgeEnv(t)
	t.Setenv("OPERATOR_JWT_SECRET", "test-operator-secret")
	t.Setenv("CREDENTIAL_ENCRYPTION_KEY", "test-app-secret")
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://bridge:5432/bridge")
	t.Setenv("ARCHIVE_BACKEND", "s3")
	t.Setenv("GRAPH_API_VERSION", "v19.0")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.False(t, cfg.IsLiteMode())
	assert.Equal(t, "s3", cfg.ArchiveBackend)
	assert.Equal(t, "v19.0", cfg.GraphAPIVersion)
}

// TestLoad_RejectsLowGraphAPIVersion verifies a below-minimum configured
// version fails startup instead of silently using an unsupported API.
func TestLoad_RejectsLowGraphAPIVersion(t *testing.T) {
	clearBridgeEnv(t)
	t.Setenv("OPERATOR_JWT_SECRET", "test-operator-secret")
	t.Setenv("CREDENTIAL_ENCRYPTION_KEY", "test-app-secret")
	t.Setenv("GRAPH_API_VERSION", "v9.0")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minimum supported version")
}

// TestLoad_RejectsInvalidArchiveBackend verifies an unrecognized
// ARCHIVE_BACKEND value fails fast rather than silently degrading.
func TestLoad_RejectsInvalidArchiveBackend(t *testing.T) {
	clearBridgeEnv(t)
	t.Setenv("OPERATOR_JWT_SECRET", "test-operator-secret")
	t.Setenv("CREDENTIAL_ENCRYPTION_KEY", "test-app-secret")
	t.Setenv("ARCHIVE_BACKEND", "dropbox")

	_, err := config.Load()
	require.Error(t, err)
}
