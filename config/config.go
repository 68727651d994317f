package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service, worker and CLI.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Retention RetentionConfig `mapstructure:"retention"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	LogLevel      string        `mapstructure:"log_level"`
	DefaultUserID string        `mapstructure:"default_user_id"`
	StepTimeout   time.Duration `mapstructure:"step_timeout"`
	RunTimeout    time.Duration `mapstructure:"run_timeout"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type StorageConfig struct {
	Backend  string         `mapstructure:"backend"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// Addr returns host:port.
func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a connection string, preferring URL when set.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// EmbeddingConfig controls the embedder and its cache tiers.
type EmbeddingConfig struct {
	Dimensions int           `mapstructure:"dimensions"`
	CacheSize  int           `mapstructure:"cache_size"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	RedisCache bool          `mapstructure:"redis_cache"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
}

func (e EmbeddingConfig) Validate() error {
	if e.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be > 0")
	}
	return nil
}

type RetrievalConfig struct {
	FallbackLimit int `mapstructure:"fallback_limit"`
}

// QueueConfig controls background execution over Redis Streams.
type QueueConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Stream    string        `mapstructure:"stream"`
	Group     string        `mapstructure:"group"`
	ResultTTL time.Duration `mapstructure:"result_ttl"`
	Block     time.Duration `mapstructure:"block"`
	Batch     int64         `mapstructure:"batch"`
}

func (q QueueConfig) Validate() error {
	if !q.Enabled {
		return nil
	}
	if strings.TrimSpace(q.Stream) == "" || strings.TrimSpace(q.Group) == "" {
		return fmt.Errorf("queue.stream and queue.group required when the queue is enabled")
	}
	return nil
}

// RetentionConfig schedules pruning of conversations and step checkpoints.
type RetentionConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"`
	MaxAge   time.Duration `mapstructure:"max_age"`
}

func (r RetentionConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if strings.TrimSpace(r.Schedule) == "" {
		return fmt.Errorf("retention.schedule required when retention is enabled")
	}
	if r.MaxAge <= 0 {
		return fmt.Errorf("retention.max_age must be > 0")
	}
	return nil
}

type TelemetryConfig struct {
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

// Validate checks every section that the enabled features depend on.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if err := c.Storage.Postgres.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", BackendMemory, BackendPostgres, c.Storage.Backend)
	}
	if c.Queue.Enabled || c.Embedding.RedisCache {
		if err := c.Storage.Redis.Validate(); err != nil {
			return err
		}
	}
	if c.Retention.Enabled && c.Storage.Backend != BackendPostgres {
		return fmt.Errorf("retention requires storage.backend %q", BackendPostgres)
	}
	for _, v := range []interface{ Validate() error }{c.Embedding, c.Queue, c.Retention} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.default_user_id", "550e8400-e29b-41d4-a716-446655440000")
	v.SetDefault("general.step_timeout", 30*time.Second)
	v.SetDefault("general.run_timeout", 2*time.Minute)
	v.SetDefault("server.address", ":8000")
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.postgres.url", "")
	v.SetDefault("storage.postgres.host", "")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.user", "")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.dbname", "")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.postgres.timeout", 5*time.Second)
	v.SetDefault("storage.redis.host", "")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.cache_size", 1024)
	v.SetDefault("embedding.cache_ttl", time.Hour)
	v.SetDefault("embedding.redis_cache", false)
	v.SetDefault("embedding.key_prefix", "embedding:")
	v.SetDefault("retrieval.fallback_limit", 1)
	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.stream", "query.submitted")
	v.SetDefault("queue.group", "wsorch-workers")
	v.SetDefault("queue.result_ttl", 24*time.Hour)
	v.SetDefault("queue.block", 5*time.Second)
	v.SetDefault("queue.batch", 16)
	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.schedule", "0 3 * * *")
	v.SetDefault("retention.max_age", 720*time.Hour)
	v.SetDefault("telemetry.metrics_enabled", true)
}

// Load reads configuration from path, or from the default search paths when
// path is empty. A missing config file is not an error: defaults and
// WSORCH_* environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("WSORCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Retrieval.FallbackLimit < 1 {
		cfg.Retrieval.FallbackLimit = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig is Load for command entry points: it panics on error.
func LoadConfig(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	return cfg
}
