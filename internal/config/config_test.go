package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PAPERPIPE_LLM_OPENAI_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, SSLModeRequire, cfg.Database.SSLMode)

	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, 16, cfg.Engine.QueueDepth)
	assert.Equal(t, time.Second, cfg.Scheduler.TickInterval)

	assert.InDelta(t, 0.7, cfg.Pipeline.RelevanceThreshold, 1e-9)
	assert.Equal(t, 3, cfg.Pipeline.RetryAttempts)
	assert.Equal(t, time.Second, cfg.Pipeline.RetryBaseDelay)

	assert.True(t, cfg.Search.ArXiv.Enabled)
	assert.InDelta(t, 3.0, cfg.Search.ArXiv.RateLimit, 1e-9)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "test-key", cfg.LLM.OpenAI.APIKey)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PAPERPIPE_LLM_OPENAI_API_KEY", "test-key")
	t.Setenv("PAPERPIPE_DATABASE_HOST", "db.internal")
	t.Setenv("PAPERPIPE_ENGINE_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 8, cfg.Engine.Workers)
}

func TestLoad_MissingProviderKey(t *testing.T) {
	t.Setenv("PAPERPIPE_LLM_OPENAI_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAPERPIPE_LLM_OPENAI_API_KEY")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "paperpipe",
		Password: "p@ss word",
		Name:     "paper_pipeline_service",
		SSLMode:  SSLModeDisable,
	}

	dsn := cfg.DSN()
	assert.Contains(t, dsn, "postgres://paperpipe:")
	assert.Contains(t, dsn, "@localhost:5432/paper_pipeline_service")
	assert.Contains(t, dsn, "sslmode=disable")
	assert.NotContains(t, dsn, "p@ss word")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{HTTPPort: 8080},
			Database: DatabaseConfig{Host: "localhost", Port: 5432, Name: "db", MaxConns: 10, MinConns: 2},
			Logging:  LoggingConfig{Level: "info"},
			Engine:   EngineConfig{Workers: 2, QueueDepth: 4},
			Scheduler: SchedulerConfig{
				TickInterval: time.Second,
			},
			Pipeline: PipelineConfig{RelevanceThreshold: 0.7, RetryAttempts: 3},
			LLM:      LLMConfig{Provider: "openai", OpenAI: OpenAIConfig{APIKey: "k"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad http port", func(c *Config) { c.Server.HTTPPort = 0 }, "HTTP port"},
		{"missing db host", func(c *Config) { c.Database.Host = "" }, "database host"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "log level"},
		{"zero workers", func(c *Config) { c.Engine.Workers = 0 }, "workers"},
		{"zero queue depth", func(c *Config) { c.Engine.QueueDepth = 0 }, "queue_depth"},
		{"bad threshold", func(c *Config) { c.Pipeline.RelevanceThreshold = 2 }, "relevance_threshold"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "dolphin" }, "unsupported LLM provider"},
		{"kafka without brokers", func(c *Config) { c.Kafka = KafkaConfig{Enabled: true} }, "brokers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
