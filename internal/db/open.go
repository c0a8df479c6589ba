package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"   // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

// Open opens a database described by cfg. SQLite is the default.
func Open(ctx context.Context, cfg Config) (DB, error) {
	var (
		d   *sqlDB
		err error
	)
	switch cfg.Type {
	case DatabaseSQLite, "":
		d, err = openSQLite(cfg)
	case DatabasePostgres:
		d, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := d.PingContext(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("connecting to %s: %w", d.dialect.Name(), err)
	}
	return d, nil
}

func openSQLite(cfg Config) (*sqlDB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite requires a database path")
	}
	memory := cfg.Path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", sqliteDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if memory {
		// every connection to :memory: is a separate database
		conn.SetMaxOpenConns(1)
	}
	return &sqlDB{db: conn, dialect: SQLite}, nil
}

// sqliteDSN appends modernc _pragma parameters so they apply to every
// pooled connection.
func sqliteDSN(cfg Config) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	if cfg.BusyTimeout > 0 {
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	}
	if cfg.EnableWAL && cfg.Path != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	return cfg.Path + "?" + q.Encode()
}

func openPostgres(cfg Config) (*sqlDB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres requires DSN in config")
	}
	conn, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return &sqlDB{db: conn, dialect: Postgres}, nil
}
