package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"eventhub/internal/infrastructure/database"
)

// PathEnv names the environment variable holding an optional YAML config file.
const PathEnv = "EVENTHUB_CONFIG"

type Config struct {
	App      App      `yaml:"app"`
	HTTP     HTTP     `yaml:"http"`
	Log      Log      `yaml:"log"`
	DBConfig DBConfig `yaml:"postgres"`
	Kafka    Kafka    `yaml:"kafka"`
	Redis    Redis    `yaml:"redis"`
	Outbox   Outbox   `yaml:"outbox"`

	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"eventhub"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type HTTP struct {
	Port            string        `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type DBConfig struct {
	Host           string `yaml:"host" env:"EVENTHUB_DB_HOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"EVENTHUB_DB_PORT" env-default:"5432"`
	User           string `yaml:"user" env:"EVENTHUB_DB_USER" env-default:"user"`
	Password       string `yaml:"password" env:"EVENTHUB_DB_PASSWORD" env-default:"password"`
	Name           string `yaml:"dbname" env:"EVENTHUB_DB_NAME" env-default:"eventhub_db"`
	SSLMode        string `yaml:"sslmode" env:"EVENTHUB_DB_SSLMODE" env-default:"disable"`
	ConnectRetries int    `yaml:"connect_retries" env:"EVENTHUB_DB_CONNECT_RETRIES" env-default:"10"`
}

type Kafka struct {
	Brokers           []string      `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	ConsumerGroup     string        `yaml:"consumer_group" env:"KAFKA_CONSUMER_GROUP" env-default:"eventhub-consumer-group"`
	TopicPartitions   int           `yaml:"topic_partitions" env:"KAFKA_TOPIC_PARTITIONS" env-default:"3"`
	ReplicationFactor int           `yaml:"replication_factor" env:"KAFKA_REPLICATION_FACTOR" env-default:"1"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"KAFKA_WRITE_TIMEOUT" env-default:"10s"`
}

type Redis struct {
	Enabled   bool          `yaml:"enabled" env:"REDIS_DEDUPE_ENABLED" env-default:"false"`
	Addr      string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	DedupeTTL time.Duration `yaml:"dedupe_ttl" env:"REDIS_DEDUPE_TTL" env-default:"24h"`
}

type Outbox struct {
	BatchSize        int           `yaml:"batch_size" env:"OUTBOX_BATCH_SIZE" env-default:"100"`
	MaxRetryAttempts int           `yaml:"max_retry_attempts" env:"OUTBOX_MAX_RETRY_ATTEMPTS" env-default:"5"`
	StartupDelay     time.Duration `yaml:"startup_delay" env:"OUTBOX_STARTUP_DELAY" env-default:"10s"`
	Interval         time.Duration `yaml:"interval" env:"OUTBOX_INTERVAL" env-default:"5s"`
	ErrorRetryDelay  time.Duration `yaml:"error_retry_delay" env:"OUTBOX_ERROR_RETRY_DELAY" env-default:"30s"`
}

// LoadConfig reads the YAML file at path when one is given, then applies
// environment overrides. An empty path reads the environment only.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Outbox.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("outbox batch size must be positive, got %d", c.Outbox.BatchSize))
	}
	if c.Outbox.MaxRetryAttempts <= 0 {
		errs = append(errs, fmt.Errorf("outbox max retry attempts must be positive, got %d", c.Outbox.MaxRetryAttempts))
	}
	if c.Outbox.Interval <= 0 {
		errs = append(errs, fmt.Errorf("outbox interval must be positive, got %s", c.Outbox.Interval))
	}
	if c.Outbox.ErrorRetryDelay <= 0 {
		errs = append(errs, fmt.Errorf("outbox error retry delay must be positive, got %s", c.Outbox.ErrorRetryDelay))
	}
	if c.Outbox.StartupDelay < 0 {
		errs = append(errs, fmt.Errorf("outbox startup delay must not be negative, got %s", c.Outbox.StartupDelay))
	}
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("at least one kafka broker is required"))
	}
	if c.Redis.Enabled && c.Redis.DedupeTTL <= 0 {
		errs = append(errs, fmt.Errorf("redis dedupe ttl must be positive, got %s", c.Redis.DedupeTTL))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// GetDatabaseConfig returns the connection settings for database.NewPostgresDB.
func (c *Config) GetDatabaseConfig() database.DBConfig {
	return database.DBConfig{
		Host:     c.DBConfig.Host,
		Port:     c.DBConfig.Port,
		User:     c.DBConfig.User,
		Password: c.DBConfig.Password,
		DBName:   c.DBConfig.Name,
		SSLMode:  c.DBConfig.SSLMode,
	}
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) HTTPAddr() string {
	return ":" + c.HTTP.Port
}
