package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complia/complia/pkg/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"COMPLIA_CONFIG", "PORT", "LOG_LEVEL", "LOG_JSON", "DATABASE_PATH",
		"JWT_SECRET", "TOKEN_ISSUER", "ALLOWED_ORIGINS", "OPENAI_API_KEY",
		"OPENAI_MODEL", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"AUDIT_ARCHIVE_DSN", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "data/complia.db", cfg.DatabasePath)
	assert.Equal(t, "complia", cfg.TokenIssuer)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadRequiresSecret(t *testing.T) {
	clearEnv(t)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "complia.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"port: \"9000\"\njwt_secret: from-file\nallowed_origins:\n  - https://app.example.com\n",
	), 0o600))

	t.Setenv("COMPLIA_CONFIG", path)
	t.Setenv("PORT", "9999")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.AllowedOrigins)
}

func TestAllowedOriginsFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
}
