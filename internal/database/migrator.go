package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

// Migrator applies the schema migrations shipped with the service. It
// borrows connections from the pool through a database/sql shim, so the
// pool stays the single owner of connection limits.
type Migrator struct {
	m      *migrate.Migrate
	shim   *sql.DB
	logger zerolog.Logger
}

// Migrator builds a migrator over the pool, reading migration files from dir.
// Close it when done; the shim holds a pool connection.
func (db *DB) Migrator(dir string) (*Migrator, error) {
	if dir == "" {
		return nil, fmt.Errorf("migration directory is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migration directory: %w", err)
	}

	shim := stdlib.OpenDBFromPool(db.pool)
	driver, err := postgres.WithInstance(shim, &postgres.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		shim.Close()
		return nil, fmt.Errorf("postgres migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		shim.Close()
		return nil, fmt.Errorf("open migration source: %w", err)
	}

	return &Migrator{
		m:      m,
		shim:   shim,
		logger: db.logger.With().Str("component", "migrator").Logger(),
	}, nil
}

// Up applies every pending migration. A schema already at the latest
// version is not an error.
func (mg *Migrator) Up() error {
	err := mg.m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		mg.logger.Info().Msg("schema already up to date")
		return nil
	case err != nil:
		return fmt.Errorf("apply migrations: %w", err)
	}
	mg.logger.Info().Msg("schema migrations applied")
	return nil
}

// Down rolls the schema back by one migration. Rollbacks are taken one
// step at a time; there is no way to drop the whole schema in one call.
func (mg *Migrator) Down() error {
	err := mg.m.Steps(-1)
	switch {
	case errors.Is(err, migrate.ErrNoChange), errors.Is(err, os.ErrNotExist):
		mg.logger.Info().Msg("nothing to roll back")
		return nil
	case err != nil:
		return fmt.Errorf("roll back migration: %w", err)
	}
	mg.logger.Info().Msg("rolled back one migration")
	return nil
}

// Version reports the current schema version and whether the last
// migration left it dirty.
func (mg *Migrator) Version() (uint, bool, error) {
	return mg.m.Version()
}

// Force overwrites the recorded version without running any migration,
// clearing the dirty flag after a half-applied migration.
func (mg *Migrator) Force(version int) error {
	mg.logger.Warn().Int("version", version).Msg("forcing schema version")
	return mg.m.Force(version)
}

// Close releases the migration source and the pool connection shim.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	if err := mg.shim.Close(); err != nil && dbErr == nil {
		dbErr = err
	}
	return errors.Join(srcErr, dbErr)
}
