package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "maps.db")

	d, err := Open(ctx, DefaultConfig(path))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	if d.Dialect().Name() != "sqlite" {
		t.Errorf("Dialect() = %s", d.Dialect().Name())
	}

	if _, err := d.ExecContext(ctx, "CREATE TABLE kv (k TEXT PRIMARY KEY, v INTEGER)"); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	stmt, err := tx.PrepareContext(ctx, d.Dialect().InsertSQL("kv", []string{"k", "v"}))
	if err != nil {
		t.Fatalf("PrepareContext() error = %v", err)
	}
	for i, k := range []string{"a", "b", "c"} {
		if _, err := stmt.ExecContext(ctx, k, i); err != nil {
			t.Fatalf("Exec() error = %v", err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	rows, err := d.QueryContext(ctx, "SELECT k FROM kv ORDER BY v")
	if err != nil {
		t.Fatalf("QueryContext() error = %v", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			t.Fatal(err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}
	if strings.Join(keys, ",") != "a,b,c" {
		t.Errorf("keys = %v", keys)
	}

	var mode string
	if err := d.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestOpenSQLiteRollback(t *testing.T) {
	ctx := context.Background()
	d, err := Open(ctx, DefaultConfig(":memory:"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	if _, err := d.ExecContext(ctx, "CREATE TABLE t (n INTEGER)"); err != nil {
		t.Fatal(err)
	}
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO t (n) VALUES (1)"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := d.QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("count after rollback = %d, want 0", n)
	}
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"unknown type", Config{Type: "oracle"}, "unknown database type"},
		{"sqlite without path", Config{Type: DatabaseSQLite}, "requires a database path"},
		{"postgres without dsn", Config{Type: DatabasePostgres}, "requires DSN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(ctx, tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Open() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	cfg := DefaultConfig("/tmp/x.db")
	dsn := sqliteDSN(cfg)
	for _, want := range []string{"/tmp/x.db?", "foreign_keys%281%29", "busy_timeout%285000%29", "journal_mode%28WAL%29"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("sqliteDSN() = %q, missing %q", dsn, want)
		}
	}

	mem := sqliteDSN(Config{Path: ":memory:", EnableWAL: true})
	if strings.Contains(mem, "journal_mode") {
		t.Errorf("in-memory DSN enables WAL: %q", mem)
	}
}

func TestPostgresConfig(t *testing.T) {
	cfg := PostgresConfig("postgres://u:p@localhost/db")
	if cfg.Type != DatabasePostgres {
		t.Errorf("Type = %v", cfg.Type)
	}
	if cfg.MaxOpenConns <= 0 || cfg.MaxIdleConns <= 0 {
		t.Errorf("pool settings not defaulted: %+v", cfg)
	}
	if cfg.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("ConnMaxLifetime = %v", cfg.ConnMaxLifetime)
	}
}
