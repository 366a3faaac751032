// Package config handles application configuration loading and validation using Viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Events    EventsConfig    `mapstructure:"events"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Report    ReportConfig    `mapstructure:"report"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Badges    []BadgeConfig   `mapstructure:"badges"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig contains database connection settings for PostgreSQL and Redis.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

// DSN builds the libpq connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig contains Redis cache connection and pool settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr returns host:port.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CacheConfig controls the fast tier in front of the durable store.
type CacheConfig struct {
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	LedgerTTL        time.Duration `mapstructure:"ledger_ttl"`
	MetricsTTL       time.Duration `mapstructure:"metrics_ttl"`
	ReportTTL        time.Duration `mapstructure:"report_ttl"`
	EvictionAge      time.Duration `mapstructure:"eviction_age"`
}

// IngestConfig controls the ingest worker pool.
type IngestConfig struct {
	QueueSize int    `mapstructure:"queue_size"`
	Workers   int    `mapstructure:"workers"`
	Timezone  string `mapstructure:"timezone"` // Timezone used to decide what "today" is
}

// GetLocation returns the ingest timezone location.
func (c *IngestConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// EventsConfig contains the Redis Streams transport settings.
type EventsConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Stream    string        `mapstructure:"stream"`
	Group     string        `mapstructure:"group"`
	Consumer  string        `mapstructure:"consumer"`
	BatchSize int64         `mapstructure:"batch_size"`
	Block     time.Duration `mapstructure:"block"`
}

// LLMConfig contains text generation provider settings.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai, qwen or anthropic
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// ReportConfig contains report generation settings.
type ReportConfig struct {
	GenerationTimeout time.Duration `mapstructure:"generation_timeout"`
	DefaultStyle      string        `mapstructure:"default_style"`
}

// SchedulerConfig contains the nightly batch settings.
type SchedulerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Time            string        `mapstructure:"time"` // HH:MM, runs for the previous day
	Timezone        string        `mapstructure:"timezone"`
	Workers         int           `mapstructure:"workers"`
	MaxRetryElapsed time.Duration `mapstructure:"max_retry_elapsed"`
}

// GetLocation returns the timezone location.
func (c *SchedulerConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// MetricsConfig contains Prometheus exporter settings.
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig contains Prometheus metrics exporter settings.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// BadgeConfig is one entry of the badge catalog seed.
type BadgeConfig struct {
	Code            string  `mapstructure:"code" yaml:"code"`
	Name            string  `mapstructure:"name" yaml:"name"`
	Description     string  `mapstructure:"description" yaml:"description"`
	Icon            string  `mapstructure:"icon" yaml:"icon"`
	ConditionType   string  `mapstructure:"condition_type" yaml:"condition_type"`
	ConditionMetric string  `mapstructure:"condition_metric" yaml:"condition_metric"`
	ConditionValue  float64 `mapstructure:"condition_value" yaml:"condition_value"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")

	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)
	v.SetDefault("database.postgres.auto_migrate", true)
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)

	v.SetDefault("cache.operation_timeout", 200*time.Millisecond)
	v.SetDefault("cache.ledger_ttl", 25*time.Hour)
	v.SetDefault("cache.metrics_ttl", 7*24*time.Hour)
	v.SetDefault("cache.report_ttl", 7*24*time.Hour)
	v.SetDefault("cache.eviction_age", 7*24*time.Hour)

	v.SetDefault("ingest.queue_size", 256)
	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.timezone", "UTC")

	v.SetDefault("events.stream", "lifescope.raw.data")
	v.SetDefault("events.group", "lifescope-insights")
	v.SetDefault("events.consumer", "insights-1")
	v.SetDefault("events.batch_size", 32)
	v.SetDefault("events.block", 5*time.Second)

	v.SetDefault("llm.provider", "qwen")
	v.SetDefault("llm.model", "qwen-plus")
	v.SetDefault("llm.temperature", 0.8)
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.max_retries", 0)

	v.SetDefault("report.generation_timeout", 30*time.Second)
	v.SetDefault("report.default_style", "funny")

	v.SetDefault("scheduler.time", "01:00")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.max_retry_elapsed", 2*time.Minute)

	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/lifescope-insights/")
	}

	// Server configuration
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")

	// PostgreSQL configuration
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.auto_migrate", "POSTGRES_AUTO_MIGRATE")

	// Redis configuration
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")

	// Event transport
	_ = v.BindEnv("events.enabled", "EVENTS_ENABLED")
	_ = v.BindEnv("events.stream", "EVENTS_STREAM")
	_ = v.BindEnv("events.consumer", "EVENTS_CONSUMER")

	// Text generation
	_ = v.BindEnv("llm.provider", "LLM_PROVIDER")
	_ = v.BindEnv("llm.api_key", "LLM_API_KEY", "QWEN_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("llm.base_url", "LLM_BASE_URL")
	_ = v.BindEnv("llm.model", "LLM_MODEL")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	// Scheduler configuration
	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.time", "SCHEDULER_TIME")
	_ = v.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if c.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if c.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if c.Database.Redis.Host == "" {
		return fmt.Errorf("database.redis.host is required")
	}
	if c.Ingest.QueueSize <= 0 {
		return fmt.Errorf("ingest.queue_size must be positive")
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be positive")
	}
	if _, err := c.Ingest.GetLocation(); err != nil {
		return fmt.Errorf("ingest.timezone: %w", err)
	}
	if c.Cache.OperationTimeout <= 0 {
		return fmt.Errorf("cache.operation_timeout must be positive")
	}
	switch c.LLM.Provider {
	case "openai", "qwen", "anthropic":
	default:
		return fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive")
	}
	if c.Events.Enabled && c.Events.Stream == "" {
		return fmt.Errorf("events.stream is required when events are enabled")
	}
	seen := make(map[string]bool, len(c.Badges))
	for _, b := range c.Badges {
		if b.Code == "" || b.ConditionType == "" {
			return fmt.Errorf("badge entries need code and condition_type")
		}
		if seen[b.Code] {
			return fmt.Errorf("duplicate badge code %q", b.Code)
		}
		seen[b.Code] = true
	}

	return nil
}
