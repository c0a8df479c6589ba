// Package db is a thin adapter over database/sql that lets the mapping store
// run on SQLite (modernc.org/sqlite, pure Go) or PostgreSQL (lib/pq) with
// dialect-specific SQL generated by a Dialect.
package db

import (
	"context"
	"database/sql"
	"time"
)

// DB is the subset of *sql.DB used by stores.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) Row
	ExecContext(ctx context.Context, query string, args ...any) (Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
	PingContext(ctx context.Context) error
	Close() error

	// Dialect returns the SQL dialect of the underlying engine.
	Dialect() Dialect
}

// Tx is an open transaction.
type Tx interface {
	QueryRowContext(ctx context.Context, query string, args ...any) Row
	ExecContext(ctx context.Context, query string, args ...any) (Result, error)
	PrepareContext(ctx context.Context, query string) (Stmt, error)
	Commit() error
	Rollback() error
}

// Stmt is a prepared statement bound to a transaction.
type Stmt interface {
	ExecContext(ctx context.Context, args ...any) (Result, error)
	Close() error
}

// Rows is a result set.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Row is a single-row result.
type Row interface {
	Scan(dest ...any) error
}

// Result is the outcome of an Exec.
type Result = sql.Result

// Config describes how to open a database.
type Config struct {
	Type DatabaseType

	// Path is the SQLite file path, or ":memory:".
	Path string

	// DSN is the PostgreSQL connection string.
	DSN string

	// EnableWAL switches SQLite to write-ahead logging so readers do not
	// block the loader.
	EnableWAL bool

	// BusyTimeout is how long SQLite waits on a locked database.
	BusyTimeout time.Duration

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns a SQLite configuration for path.
func DefaultConfig(path string) Config {
	return Config{
		Type:        DatabaseSQLite,
		Path:        path,
		EnableWAL:   true,
		BusyTimeout: 5 * time.Second,
	}
}

// PostgresConfig returns a PostgreSQL configuration for dsn.
func PostgresConfig(dsn string) Config {
	return Config{
		Type:            DatabasePostgres,
		DSN:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}
