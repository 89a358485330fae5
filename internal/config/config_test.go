package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvPrefix+"CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvPrefix+"PORT", "9090")
	t.Setenv(EnvPrefix+"ACCESS_TTL", "5m")
	t.Setenv(EnvPrefix+"REDIS_DB", "3")
	t.Setenv(EnvPrefix+"ALLOWED_ORIGINS", "app.example.com, , *.example.org")
	t.Setenv(EnvPrefix+"INVITE_RATE_LIMIT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.AppPort)
	assert.Equal(t, 5*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, []string{"app.example.com", "*.example.org"}, cfg.AllowedOrigins)
	assert.Equal(t, Defaults().InviteRateLimit, cfg.InviteRateLimit, "unparsable values keep the default")
}

func TestLoadLayersFileUnderEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "couplemovie.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 7000
logLevel: debug
jwtSecret: from-file-secret-from-file-secret
catalogCacheTtl: 90m
allowedOrigins:
  - localhost:5173
`), 0o600))

	t.Setenv(EnvPrefix+"CONFIG_FILE", path)
	t.Setenv(EnvPrefix+"LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.AppPort)
	assert.Equal(t, "warn", cfg.LogLevel, "environment wins over the file")
	assert.Equal(t, "from-file-secret-from-file-secret", cfg.JWTSecret)
	assert.Equal(t, 90*time.Minute, cfg.CatalogCacheTTL)
	assert.Equal(t, []string{"localhost:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, Defaults().RefreshTTL, cfg.RefreshTTL)
}

func TestLoadRejectsUnknownFileKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "couplemovie.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prot: 7000\n"), 0o600))
	t.Setenv(EnvPrefix+"CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prot")
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv(EnvPrefix+"CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	assert.NoError(t, cfg.Validate())

	cfg.RefreshTTL = cfg.AccessTTL
	assert.Error(t, cfg.Validate())
}
