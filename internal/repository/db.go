package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/gallerysync/api/internal/config"
)

// Dialect selects the SQL flavour of the relational store
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DB is the relational store shared by the repositories
type DB struct {
	*sql.DB
	dialect Dialect
	pool    *pgxpool.Pool
	logger  zerolog.Logger
}

// Open connects to the database named by cfg. Postgres goes through a pgx
// pool exposed as database/sql; sqlite uses the pure Go driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	logger = logger.With().Str("component", "sql").Logger()

	switch Dialect(cfg.Driver) {
	case DialectPostgres:
		pool, err := newPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &DB{DB: stdlib.OpenDBFromPool(pool), dialect: DialectPostgres, pool: pool, logger: logger}, nil
	case DialectSQLite:
		return OpenSQLite(ctx, cfg.URL, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolCfg.MaxConns = 10
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	return pool, nil
}

// OpenSQLite opens a sqlite database file. A single connection serializes
// writers the way sqlite expects.
func OpenSQLite(ctx context.Context, path string, logger zerolog.Logger) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}

	return &DB{DB: db, dialect: DialectSQLite, logger: logger}, nil
}

// Dialect returns the SQL flavour in use
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Close releases the database handle and, for postgres, the pgx pool
func (d *DB) Close() error {
	err := d.DB.Close()
	if d.pool != nil {
		d.pool.Close()
	}
	return err
}

func (d *DB) runner(exec execer) *SQLRunner {
	return NewSQLRunner(exec, d.dialect, d.logger)
}

// withinTx runs fn in a transaction, rolling back when fn fails
func (d *DB) withinTx(ctx context.Context, fn func(*SQLRunner) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(d.runner(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			d.logger.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
