package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"ms-clinic-queue/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Runner applies the SQL files under MigrationsDir to a postgres database.
type Runner struct {
	sqlDB         *sql.DB
	migrationsDir string
	log           *logger.Logger
	migrator      *migrate.Migrate
}

func NewRunner(sqlDB *sql.DB, migrationsDir string, log *logger.Logger) *Runner {
	return &Runner{
		sqlDB:         sqlDB,
		migrationsDir: migrationsDir,
		log:           log,
	}
}

func (r *Runner) Initialize() error {
	driver, err := postgres.WithInstance(r.sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}

	if _, err := os.Stat(r.migrationsDir); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory does not exist: %s", r.migrationsDir)
	}

	migrator, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", r.migrationsDir),
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	r.migrator = migrator
	return nil
}

// Up applies every pending migration. A dirty schema is forced back to its
// recorded version first so a crashed deploy can be re-run.
func (r *Runner) Up() error {
	if r.migrator == nil {
		if err := r.Initialize(); err != nil {
			return err
		}
	}

	version, dirty, err := r.migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		r.log.Warn("DATABASE", fmt.Sprintf("Detected dirty migration at version %d, forcing", version))
		if err := r.migrator.Force(int(version)); err != nil {
			return fmt.Errorf("failed to fix dirty migration: %w", err)
		}
	}

	if err := r.migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	if version, _, err := r.migrator.Version(); err == nil {
		r.log.Info("DATABASE", fmt.Sprintf("Current schema version: %d", version))
	}
	return nil
}

func (r *Runner) Down() error {
	if r.migrator == nil {
		if err := r.Initialize(); err != nil {
			return err
		}
	}

	if err := r.migrator.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// Close frees the source; the database handle belongs to the caller.
func (r *Runner) Close() error {
	if r.migrator != nil {
		sourceErr, _ := r.migrator.Close()
		if sourceErr != nil {
			return fmt.Errorf("error closing migrator source: %w", sourceErr)
		}
	}
	return nil
}
