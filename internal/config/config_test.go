package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const digest = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FOLIO_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, 1000, cfg.History.Retention)
	require.Equal(t, "sqlite", cfg.Storage.Driver)
}

func TestLoad_FileThenEnvFileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "folio.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
server:
  port: 9000
storage:
  driver: file
  dir: /var/folio
history:
  retention: 50
sandbox:
  ttl: 10m
auth:
  api_keys:
    - user: ana
      key_sha256: `+digest+`
`), 0o644))
	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("FOLIO_REDIS_ADDR=localhost:6379\nFOLIO_SERVER_PORT=9100\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("FOLIO_REDIS_ADDR")
		os.Unsetenv("FOLIO_SERVER_PORT")
	})

	t.Setenv("FOLIO_CONFIG_PATH", yamlPath)
	t.Setenv("FOLIO_ENV_FILE", envPath)
	t.Setenv("FOLIO_HISTORY_RETENTION", "25")
	t.Setenv("FOLIO_SANDBOX_MAX_SESSIONS", "8")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, "file", cfg.Storage.Driver)
	require.Equal(t, "/var/folio", cfg.Storage.Dir)
	require.Equal(t, 25, cfg.History.Retention)
	require.Equal(t, 10*time.Minute, cfg.Sandbox.TTL)
	require.Equal(t, 8, cfg.Sandbox.MaxSessions)
	require.Equal(t, "localhost:6379", cfg.Invalidation.RedisAddr)
	require.Equal(t, []APIKey{{User: "ana", KeySHA256: digest}}, cfg.Auth.APIKeys)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("FOLIO_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	t.Setenv("FOLIO_SERVER_PORT", "eighty")
	_, err := Load()
	require.ErrorContains(t, err, "FOLIO_SERVER_PORT")

	t.Setenv("FOLIO_SERVER_PORT", "")
	t.Setenv("FOLIO_STORAGE_DRIVER", "postgres")
	_, err = Load()
	require.ErrorContains(t, err, "storage driver")

	t.Setenv("FOLIO_STORAGE_DRIVER", "")
	t.Setenv("FOLIO_SANDBOX_MAX_SESSIONS", "0")
	_, err = Load()
	require.ErrorContains(t, err, "sandbox max sessions")
}

func TestParseAPIKeys(t *testing.T) {
	keys, err := parseAPIKeys("ana:" + digest + ", bo:" + digest)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.Equal(t, "bo", keys[1].User)

	_, err = parseAPIKeys("nocolon")
	require.Error(t, err)
}
