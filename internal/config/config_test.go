package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaultsFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "sqlite")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 14*24*time.Hour, cfg.Qualification.EvaluationWindow)
	assert.Equal(t, time.Hour, cfg.Qualification.Overdue.Interval)
	assert.Equal(t, "qualify:events", cfg.Redis.Channel)
	assert.False(t, cfg.Feishu.Enabled())
}

func TestLoadFromFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0o755))
	yaml := `
jwt:
  secret: from-file
qualification:
  catalog_path: configs/catalogs.yaml
  default_catalog: pharma-gmp
  evaluation_window: 72h
  overdue:
    interval: 15m
feishu:
  app_id: cli_x
  app_secret: y
  chat_id: oc_123
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "configs", "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWT.Secret)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 72*time.Hour, cfg.Qualification.EvaluationWindow)
	assert.Equal(t, 15*time.Minute, cfg.Qualification.Overdue.Interval)
	assert.Equal(t, 5*time.Minute, cfg.Qualification.Overdue.LockTTL)
	assert.True(t, cfg.Feishu.Enabled())
}

func TestLoadRequiresSecret(t *testing.T) {
	chdirTemp(t)
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)
}
