// Command migrate manages the PostgreSQL schema for the paper pipeline
// service. It reads the same configuration as the server binary.
//
// Usage:
//
//	migrate [-dir path] up
//	migrate [-dir path] down
//	migrate [-dir path] version
//	migrate [-dir path] force <version>
//
// down rolls back a single migration per invocation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholarwatch/paper-pipeline-service/internal/config"
	"github.com/scholarwatch/paper-pipeline-service/internal/database"
	"github.com/scholarwatch/paper-pipeline-service/internal/observability"
)

func main() {
	dir := flag.String("dir", "", "migration directory (defaults to the configured path)")
	flag.Usage = usage
	flag.Parse()

	if err := run(*dir, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: migrate [-dir path] up|down|version|force <version>")
	flag.PrintDefaults()
}

func run(dir string, args []string) error {
	if len(args) == 0 {
		usage()
		return fmt.Errorf("missing command")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dir == "" {
		dir = cfg.Database.MigrationPath
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	mg, err := db.Migrator(dir)
	if err != nil {
		return err
	}
	defer func() {
		if err := mg.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close migrator")
		}
	}()

	switch cmd := args[0]; cmd {
	case "up":
		if err := mg.Up(); err != nil {
			return err
		}
	case "down":
		if err := mg.Down(); err != nil {
			return err
		}
	case "version":
	case "force":
		if len(args) != 2 {
			return fmt.Errorf("force requires a version argument")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 {
			return fmt.Errorf("force version must be a non-negative integer, got %q", args[1])
		}
		if err := mg.Force(v); err != nil {
			return err
		}
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}

	reportVersion(mg, logger)
	return nil
}

// reportVersion logs the schema version after every command. A schema
// with no applied migrations has no version; that is reported, not fatal.
func reportVersion(mg *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := mg.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("schema version unknown")
		return
	}
	logger.Info().Uint("version", v).Bool("dirty", dirty).Msg("schema version")
}
