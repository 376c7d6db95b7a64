package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(viper.New(), t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, "postgres", cfg.Database.Type)
	require.Equal(t, "database", cfg.Approval.Provider)
	require.Equal(t, "database", cfg.Audit.Sink)
	require.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	require.Equal(t, int64(1), cfg.Snowflake.Node)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	body := `
APP_ENV: production
APP_NAME: rewardtask-api
DATABASE:
  TYPE: sqlite
  DBNAME: rewardtask.db
APPROVAL:
  PROVIDER: flagsmith
AUDIT:
  SINK: queue
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))

	cfg, err := Load(viper.New(), dir)
	require.NoError(t, err)
	require.Equal(t, "production", cfg.AppEnv)
	require.Equal(t, "rewardtask-api", cfg.AppName)
	require.Equal(t, "sqlite", cfg.Database.Type)
	require.Equal(t, "flagsmith", cfg.Approval.Provider)
	require.Equal(t, "queue", cfg.Audit.Sink)
}

func TestLoadRejectsTLSWithoutCert(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("TLS:\n  ENABLE: true\n"), 0o600))

	_, err := Load(viper.New(), dir)
	require.Error(t, err)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("DATABASE_HOST", "db.internal")
	t.Setenv("AUDIT_SINK", "kafka")

	cfg, err := Load(viper.New(), t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "db.internal", cfg.Database.Host)
	require.Equal(t, "kafka", cfg.Audit.Sink)
}

func TestLoadConfigVaultWithoutClient(t *testing.T) {
	t.Setenv("VAULT_ENABLE", "true")

	_, err := LoadConfig(Params{})
	require.Error(t, err)
}

func TestApplySecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Database.User = "local"
	cfg.Redis.Password = "keep"

	ApplySecrets(cfg, map[string]any{
		"database_user":     "svc",
		"database_password": "s3cret",
		"redis_password":    "",
		"flagsmith_api_key": 42,
	})

	require.Equal(t, "svc", cfg.Database.User)
	require.Equal(t, "s3cret", cfg.Database.Password)
	require.Equal(t, "keep", cfg.Redis.Password)
	require.Empty(t, cfg.Flagsmith.ApiKey)
}
