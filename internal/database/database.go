package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ms-clinic-queue/internal/config"
	"ms-clinic-queue/internal/database/migrations"
	"ms-clinic-queue/internal/logger"
	"ms-clinic-queue/internal/models"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Open connects to the configured store, retrying the initial ping the
// way the services do on container start-up.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	switch cfg.Driver {
	case "sqlite":
		return OpenSQLite(ctx, cfg.DSN)
	case "postgres", "":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}

	tries := cfg.ConnectTries
	if tries < 1 {
		tries = 1
	}

	var sqldb *sql.DB
	var err error
	for i := 0; i < tries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, tries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
		} else if err = sqldb.PingContext(ctx); err == nil {
			break
		} else {
			log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
			sqldb.Close()
		}
		if i < tries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to postgres after %d attempts: %w", tries, err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// OpenSQLite opens an embedded store. Transactions begin IMMEDIATE so a
// writer takes the database lock before its first read, and busy_timeout
// makes other writers (in this or another process) wait for it instead of
// failing. In-memory databases are pinned to one connection, which keeps
// them alive for the lifetime of the handle.
func OpenSQLite(ctx context.Context, dsn string) (*bun.DB, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	inMemory := strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")

	sqldb, err := sql.Open(sqliteshim.ShimName, sqliteDSN(dsn, inMemory))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if inMemory {
		sqldb.SetMaxOpenConns(1)
	} else {
		sqldb.SetMaxOpenConns(sqliteMaxConns)
	}
	if err := sqldb.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

const (
	sqliteBusyTimeoutMS = 5000
	sqliteMaxConns      = 4
)

// sqliteDSN appends the locking options in both the modernc (_pragma) and
// mattn (_busy_timeout, _journal_mode) spellings; each driver ignores the
// other's keys.
func sqliteDSN(dsn string, inMemory bool) string {
	params := url.Values{}
	if !strings.Contains(dsn, "busy_timeout") {
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", sqliteBusyTimeoutMS))
		params.Set("_busy_timeout", strconv.Itoa(sqliteBusyTimeoutMS))
	}
	if !strings.Contains(dsn, "_txlock") {
		params.Set("_txlock", "immediate")
	}
	if !inMemory && !strings.Contains(dsn, "journal_mode") {
		params.Add("_pragma", "journal_mode(WAL)")
		params.Set("_journal_mode", "WAL")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + params.Encode()
}

// CreateSchema creates the queue tables and indexes through bun. Postgres
// deployments normally use the SQL migrations instead.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{
		(*models.Ticket)(nil),
		(*models.DayMeta)(nil),
		(*models.RolloverMarker)(nil),
		(*models.Profile)(nil),
	}
	for _, m := range tables {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}

	indexes := []struct {
		name    string
		columns []string
	}{
		{"tickets_day_number_uidx", []string{"business_day", "ticket_number"}},
		{"tickets_holder_day_uidx", []string{"holder_id", "business_day"}},
	}
	for _, idx := range indexes {
		_, err := db.NewCreateIndex().
			Model((*models.Ticket)(nil)).
			Index(idx.name).
			Unique().
			IfNotExists().
			Column(idx.columns...).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// Prepare brings the schema up to date: SQL migrations on postgres, bun
// table creation on sqlite. It is a no-op when AutoMigrate is off.
func Prepare(ctx context.Context, db *bun.DB, cfg config.DatabaseConfig, log *logger.Logger) error {
	if !cfg.AutoMigrate {
		log.Info("DATABASE", "Automatic migrations disabled")
		return nil
	}
	if cfg.Driver == "sqlite" {
		log.Info("DATABASE", "Creating sqlite schema")
		return CreateSchema(ctx, db)
	}

	runner := migrations.NewRunner(db.DB, cfg.MigrationsDir, log)
	defer runner.Close()
	if err := runner.Up(); err != nil {
		return err
	}
	log.Info("DATABASE", "✅ Migrations applied")
	return nil
}
