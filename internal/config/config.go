// Package config provides configuration management for the paper pipeline service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Config holds all configuration for the paper pipeline service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Redis contains the fast-cache settings for claim/idempotency checks.
	Redis RedisConfig `mapstructure:"redis"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Kafka contains lifecycle event publisher settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// LLM contains LLM provider settings for scoring, summarization and analysis.
	LLM LLMConfig `mapstructure:"llm"`
	// Search contains paper search collaborator settings.
	Search SearchConfig `mapstructure:"search"`
	// Publish contains knowledge-base publish collaborator settings.
	Publish PublishConfig `mapstructure:"publish"`
	// Engine contains run executor settings.
	Engine EngineConfig `mapstructure:"engine"`
	// Scheduler contains recurring task scheduling settings.
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	// Pipeline contains pipeline execution defaults.
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool (default: 25).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 5).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}

// RedisConfig holds the fast-cache connection settings.
type RedisConfig struct {
	// Enabled toggles the Redis cache. When disabled an in-memory cache is used.
	Enabled bool `mapstructure:"enabled"`
	// Address is the Redis server address (host:port).
	Address string `mapstructure:"address"`
	// Password is the Redis password (empty for no auth).
	Password string `mapstructure:"password"`
	// DB is the Redis database index.
	DB int `mapstructure:"db"`
	// ClaimTTL is the lifetime of per-item claim marks.
	ClaimTTL time.Duration `mapstructure:"claim_ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
}

// KafkaConfig holds lifecycle event publisher configuration.
type KafkaConfig struct {
	// Enabled toggles event publishing. When disabled events are dropped.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the topic lifecycle events are written to.
	Topic string `mapstructure:"topic"`
	// BatchSize is the producer batch size.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the producer batch flush interval.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	// Provider is the default LLM provider (openai, anthropic).
	Provider string `mapstructure:"provider"`
	// Timeout is the per-call timeout for LLM API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// Temperature is the LLM temperature setting.
	Temperature float64 `mapstructure:"temperature"`
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig `mapstructure:"openai"`
	// Anthropic contains Anthropic-specific settings.
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
}

// OpenAIConfig holds OpenAI-specific settings.
type OpenAIConfig struct {
	// APIKey is loaded exclusively from the environment (see loadSecrets).
	APIKey string `mapstructure:"-"`
	// Model is the model identifier (e.g., "gpt-4o-mini").
	Model string `mapstructure:"model"`
	// BaseURL is the API base URL (empty means default).
	BaseURL string `mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic-specific settings.
type AnthropicConfig struct {
	// APIKey is loaded exclusively from the environment (see loadSecrets).
	APIKey string `mapstructure:"-"`
	// Model is the model identifier.
	Model string `mapstructure:"model"`
	// BaseURL is the API base URL (empty means default).
	BaseURL string `mapstructure:"base_url"`
}

// SearchConfig holds paper search collaborator settings.
type SearchConfig struct {
	// ArXiv contains arXiv API settings.
	ArXiv ArXivConfig `mapstructure:"arxiv"`
}

// ArXivConfig holds arXiv client settings.
type ArXivConfig struct {
	// Enabled indicates whether this source is available to tasks.
	Enabled bool `mapstructure:"enabled"`
	// BaseURL is the arXiv API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxResults caps results per search request.
	MaxResults int `mapstructure:"max_results"`
}

// PublishConfig holds knowledge-base publish collaborator settings.
type PublishConfig struct {
	// BaseURL is the knowledge-base API base URL.
	BaseURL string `mapstructure:"base_url"`
	// APIKey is loaded exclusively from the environment (see loadSecrets).
	APIKey string `mapstructure:"-"`
	// Timeout is the per-upload timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// EngineConfig holds run executor settings.
type EngineConfig struct {
	// Workers is the number of concurrent run workers.
	Workers int `mapstructure:"workers"`
	// QueueDepth is the fixed depth of the pending-run queue.
	QueueDepth int `mapstructure:"queue_depth"`
	// ShutdownTimeout bounds the drain wait during graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SchedulerConfig holds recurring task scheduling settings.
type SchedulerConfig struct {
	// TickInterval is how often the due-time table is evaluated.
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// PipelineConfig holds pipeline execution defaults applied to tasks that do
// not override them.
type PipelineConfig struct {
	// RelevanceThreshold is the default gating threshold.
	RelevanceThreshold float64 `mapstructure:"relevance_threshold"`
	// ItemParallelism is the default per-run item fan-out.
	ItemParallelism int `mapstructure:"item_parallelism"`
	// RetryAttempts is the default per-stage attempt bound.
	RetryAttempts int `mapstructure:"retry_attempts"`
	// RetryBaseDelay is the default backoff base delay.
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
}

// Load reads configuration from file and environment variables.
// Environment variables use the PAPERPIPE_ prefix with underscores,
// e.g. PAPERPIPE_DATABASE_HOST overrides database.host.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PAPERPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paper-pipeline-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.LLM.OpenAI.APIKey = os.Getenv("PAPERPIPE_LLM_OPENAI_API_KEY")
	cfg.LLM.Anthropic.APIKey = os.Getenv("PAPERPIPE_LLM_ANTHROPIC_API_KEY")
	cfg.Publish.APIKey = os.Getenv("PAPERPIPE_PUBLISH_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "paperpipe")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "paper_pipeline_service")
	// Default to "require" for production security. Use PAPERPIPE_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.claim_ttl", "1h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.paper_pipeline_service")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")

	// LLM defaults
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.temperature", 0.2)
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.anthropic.model", "claude-3-5-haiku-20241022")
	v.SetDefault("llm.anthropic.base_url", "https://api.anthropic.com")

	// Search defaults - arXiv
	v.SetDefault("search.arxiv.enabled", true)
	v.SetDefault("search.arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("search.arxiv.timeout", "30s")
	v.SetDefault("search.arxiv.rate_limit", 3.0) // arXiv recommends max 3 req/sec
	v.SetDefault("search.arxiv.max_results", 100)

	// Publish defaults
	v.SetDefault("publish.base_url", "")
	v.SetDefault("publish.timeout", "30s")

	// Engine defaults
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.queue_depth", 16)
	v.SetDefault("engine.shutdown_timeout", "60s")

	// Scheduler defaults
	v.SetDefault("scheduler.tick_interval", "1s")

	// Pipeline defaults
	v.SetDefault("pipeline.relevance_threshold", 0.7)
	v.SetDefault("pipeline.item_parallelism", 3)
	v.SetDefault("pipeline.retry_attempts", 3)
	v.SetDefault("pipeline.retry_base_delay", "1s")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}

	// Validate database config
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate engine config
	if c.Engine.Workers <= 0 {
		return fmt.Errorf("engine workers must be positive, got %d", c.Engine.Workers)
	}
	if c.Engine.QueueDepth <= 0 {
		return fmt.Errorf("engine queue_depth must be positive, got %d", c.Engine.QueueDepth)
	}

	// Validate scheduler config
	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("scheduler tick_interval must be positive")
	}

	// Validate pipeline defaults
	if c.Pipeline.RelevanceThreshold < 0 || c.Pipeline.RelevanceThreshold > 1 {
		return fmt.Errorf("pipeline relevance_threshold must be in [0, 1], got %v", c.Pipeline.RelevanceThreshold)
	}
	if c.Pipeline.RetryAttempts <= 0 {
		return fmt.Errorf("pipeline retry_attempts must be positive")
	}

	// Validate that the configured LLM provider has its required API key set.
	switch strings.ToLower(c.LLM.Provider) {
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires PAPERPIPE_LLM_OPENAI_API_KEY to be set", c.LLM.Provider)
		}
	case "anthropic":
		if c.LLM.Anthropic.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires PAPERPIPE_LLM_ANTHROPIC_API_KEY to be set", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %q", c.LLM.Provider)
	}

	// Validate kafka config
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}

	return nil
}
