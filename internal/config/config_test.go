package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 5, cfg.Outbox.MaxRetryAttempts)
	assert.Equal(t, 10*time.Second, cfg.Outbox.StartupDelay)
	assert.Equal(t, 5*time.Second, cfg.Outbox.Interval)
	assert.Equal(t, 30*time.Second, cfg.Outbox.ErrorRetryDelay)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, ":8080", cfg.HTTPAddr())
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "disable", cfg.GetDatabaseConfig().SSLMode)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("OUTBOX_BATCH_SIZE", "25")
	t.Setenv("OUTBOX_MAX_RETRY_ATTEMPTS", "3")
	t.Setenv("OUTBOX_INTERVAL", "250ms")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("EVENTHUB_DB_HOST", "db")
	t.Setenv("EVENTHUB_DB_SSLMODE", "require")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Outbox.BatchSize)
	assert.Equal(t, 3, cfg.Outbox.MaxRetryAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Outbox.Interval)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t,
		"host=db port=5432 user=user password=password dbname=eventhub_db sslmode=require",
		cfg.GetDatabaseConfig().DSN())
	assert.Equal(t,
		"postgres://user:password@db:5432/eventhub_db?sslmode=require",
		cfg.GetDBMigrationConnectionString())
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
outbox:
  batch_size: 10
  max_retry_attempts: 7
redis:
  enabled: true
  addr: cache:6379
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("OUTBOX_BATCH_SIZE", "20")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Outbox.BatchSize, "environment overrides file")
	assert.Equal(t, 7, cfg.Outbox.MaxRetryAttempts)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("OUTBOX_MAX_RETRY_ATTEMPTS", "0")

	_, err := LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retry attempts")
}
