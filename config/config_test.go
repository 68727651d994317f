package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.General.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.General.StepTimeout)
	assert.Equal(t, 2*time.Minute, cfg.General.RunTimeout)
	assert.Equal(t, ":8000", cfg.Server.Address)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, "embedding:", cfg.Embedding.KeyPrefix)
	assert.Equal(t, 1, cfg.Retrieval.FallbackLimit)
	assert.Equal(t, "query.submitted", cfg.Queue.Stream)
	assert.Equal(t, int64(16), cfg.Queue.Batch)
	assert.Equal(t, 720*time.Hour, cfg.Retention.MaxAge)
	assert.True(t, cfg.Telemetry.MetricsEnabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "general": {"log_level": "debug", "step_timeout": "5s"},
  "storage": {"backend": "postgres", "postgres": {"host": "db", "dbname": "wsorch", "user": "app", "password": "pw"}}
}`), 0o600))
	t.Setenv("WSORCH_SERVER_ADDRESS", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.General.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.General.StepTimeout)
	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, "postgres://app:pw@db:5432/wsorch?sslmode=disable", cfg.Storage.Postgres.DSN())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Storage:   StorageConfig{Backend: BackendMemory},
			Embedding: EmbeddingConfig{Dimensions: 8},
			Queue:     QueueConfig{Stream: "s", Group: "g"},
		}
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Storage.Backend = "sqlite"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Storage.Backend = BackendPostgres
	assert.EqualError(t, cfg.Validate(), "storage.postgres.host required when url is not provided")
	cfg.Storage.Postgres.URL = "postgres://x"
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Queue.Enabled = true
	assert.EqualError(t, cfg.Validate(), "storage.redis.host required")
	cfg.Storage.Redis = RedisConfig{Host: "redis", Port: "6379"}
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Retention = RetentionConfig{Enabled: true, Schedule: "@daily", MaxAge: time.Hour}
	assert.Error(t, cfg.Validate())
}
