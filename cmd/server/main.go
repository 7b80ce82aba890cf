// Package main provides the entry point for the paper pipeline service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scholarwatch/paper-pipeline-service/internal/cache"
	"github.com/scholarwatch/paper-pipeline-service/internal/config"
	"github.com/scholarwatch/paper-pipeline-service/internal/database"
	"github.com/scholarwatch/paper-pipeline-service/internal/engine"
	"github.com/scholarwatch/paper-pipeline-service/internal/events"
	"github.com/scholarwatch/paper-pipeline-service/internal/llm"
	"github.com/scholarwatch/paper-pipeline-service/internal/observability"
	"github.com/scholarwatch/paper-pipeline-service/internal/pipeline"
	"github.com/scholarwatch/paper-pipeline-service/internal/publish"
	"github.com/scholarwatch/paper-pipeline-service/internal/repository"
	"github.com/scholarwatch/paper-pipeline-service/internal/scheduler"
	"github.com/scholarwatch/paper-pipeline-service/internal/search"
	"github.com/scholarwatch/paper-pipeline-service/internal/search/arxiv"
	"github.com/scholarwatch/paper-pipeline-service/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger.Info().Msg("paper-pipeline-service starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		mg, err := db.Migrator(cfg.Database.MigrationPath)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		if err := mg.Up(); err != nil {
			mg.Close()
			return fmt.Errorf("run migrations: %w", err)
		}
		if err := mg.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close migrator")
		}
	}

	// Set up Prometheus metrics.
	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("paperpipe")
	}

	// Create repositories.
	itemRepo := repository.NewPgItemRepository(db.Pool())
	taskRepo := repository.NewPgTaskRepository(db.Pool())
	runLedger := repository.NewPgRunLedger(db.Pool())

	// Create the claim cache. Redis shares claim marks across instances;
	// the in-memory fallback covers single-instance deployments.
	var claims cache.ClaimCache
	if cfg.Redis.Enabled {
		claims, err = cache.NewRedisCache(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Str("address", cfg.Redis.Address).Msg("redis claim cache connected")
	} else {
		claims = cache.NewMemoryCache()
	}
	defer func() {
		if closeErr := claims.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close claim cache")
		}
	}()

	// Register search sources.
	sources := search.NewRegistry()
	if cfg.Search.ArXiv.Enabled {
		sources.Register(arxiv.New(arxiv.Config{
			BaseURL:    cfg.Search.ArXiv.BaseURL,
			Timeout:    cfg.Search.ArXiv.Timeout,
			RateLimit:  cfg.Search.ArXiv.RateLimit,
			MaxResults: cfg.Search.ArXiv.MaxResults,
			Enabled:    true,
		}))
	}

	// Create the LLM assistant.
	llmClient, err := llm.NewClient(llm.FactoryConfig{
		Provider:    cfg.LLM.Provider,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		OpenAI: llm.OpenAIConfig{
			APIKey:  cfg.LLM.OpenAI.APIKey,
			Model:   cfg.LLM.OpenAI.Model,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
		},
		Anthropic: llm.AnthropicConfig{
			APIKey:  cfg.LLM.Anthropic.APIKey,
			Model:   cfg.LLM.Anthropic.Model,
			BaseURL: cfg.LLM.Anthropic.BaseURL,
		},
	})
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	assistant := llm.NewAssistant(llmClient)

	// Create the knowledge-base publisher.
	publisher := publish.New(publish.Config{
		BaseURL: cfg.Publish.BaseURL,
		APIKey:  cfg.Publish.APIKey,
		Timeout: cfg.Publish.Timeout,
	})

	// Create the lifecycle event publisher.
	var eventPublisher events.Publisher
	if cfg.Kafka.Enabled {
		eventPublisher = events.NewKafkaPublisher(events.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, logger)
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).
			Msg("kafka event publisher connected")
	} else {
		eventPublisher = events.NewNopPublisher()
	}
	defer func() {
		if closeErr := eventPublisher.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close event publisher")
		}
	}()

	// Assemble the pipeline executor.
	executor := pipeline.NewExecutor(pipeline.Deps{
		Sources:   sources,
		Assistant: assistant,
		Publisher: publisher,
		Items:     itemRepo,
		Claims:    claims,
		ClaimTTL:  cfg.Redis.ClaimTTL,
		Events:    eventPublisher,
		Metrics:   metrics,
		Logger:    logger,
	})

	// Start the run engine.
	eng := engine.New(engine.Config{
		Workers:         cfg.Engine.Workers,
		QueueDepth:      cfg.Engine.QueueDepth,
		ShutdownTimeout: cfg.Engine.ShutdownTimeout,
	}, executor, runLedger, eventPublisher, metrics, logger)
	eng.Start()

	// Start the scheduler and register the recurring tasks already on record.
	sched := scheduler.New(eng, metrics, logger)
	tasks, err := taskRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	now := time.Now().UTC()
	for _, task := range tasks {
		if !task.Recurring() {
			continue
		}
		if err := sched.Register(task, now); err != nil {
			logger.Error().Err(err).Str("task", task.Name).Msg("failed to register task")
		}
	}
	logger.Info().Int("tasks", len(tasks)).Msg("scheduler initialized")

	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()
	go sched.Run(schedCtx, cfg.Scheduler.TickInterval)

	// Create the HTTP REST API server.
	httpCfg := server.Config{
		Address:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	if cfg.Metrics.Enabled {
		httpCfg.MetricsPath = cfg.Metrics.Path
	}

	srv := server.New(httpCfg, eng, sched, taskRepo, itemRepo, runLedger, claims, db, logger)

	// Channel to collect server errors.
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().Str("http_address", httpCfg.Address).Msg("paper-pipeline-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown. Stop accepting HTTP traffic first, then stop the
	// scheduler from submitting new runs, then drain the engine.
	logger.Info().Msg("shutting down paper-pipeline-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	schedCancel()
	eng.Shutdown()

	logger.Info().Msg("paper-pipeline-service shutdown complete")
	return nil
}
