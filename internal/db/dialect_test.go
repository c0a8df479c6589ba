package db

import (
	"strings"
	"testing"
)

func TestDialectFor(t *testing.T) {
	tests := []struct {
		dbType DatabaseType
		name   string
	}{
		{DatabaseSQLite, "sqlite"},
		{DatabasePostgres, "postgres"},
		{"", "sqlite"},
	}

	for _, tt := range tests {
		t.Run(string(tt.dbType), func(t *testing.T) {
			if got := DialectFor(tt.dbType).Name(); got != tt.name {
				t.Errorf("DialectFor(%q).Name() = %q, want %q", tt.dbType, got, tt.name)
			}
		})
	}
}

func TestInsertSQL(t *testing.T) {
	cols := []string{"version", "obfuscated", "unobfuscated"}
	tests := []struct {
		dialect Dialect
		want    string
	}{
		{SQLite, "INSERT INTO mappings (version, obfuscated, unobfuscated) VALUES (?, ?, ?)"},
		{Postgres, "INSERT INTO mappings (version, obfuscated, unobfuscated) VALUES ($1, $2, $3)"},
	}
	for _, tt := range tests {
		if got := tt.dialect.InsertSQL("mappings", cols); got != tt.want {
			t.Errorf("%s InsertSQL() = %q, want %q", tt.dialect.Name(), got, tt.want)
		}
	}
}

func TestCreateTableSQL(t *testing.T) {
	columns := []ColumnDef{
		{Name: "id", Type: ColTypeAutoIncrement},
		{Name: "version", Type: ColTypeText, Nullable: true},
		{Name: "obfuscated", Type: ColTypeText},
		{Name: "loaded_at", Type: ColTypeInteger, Default: "0"},
	}

	tests := []struct {
		dialect Dialect
		want    []string
	}{
		{SQLite, []string{
			"CREATE TABLE IF NOT EXISTS mappings",
			"id INTEGER PRIMARY KEY AUTOINCREMENT",
			"version TEXT,",
			"obfuscated TEXT NOT NULL",
			"loaded_at INTEGER NOT NULL DEFAULT 0",
		}},
		{Postgres, []string{
			"CREATE TABLE IF NOT EXISTS mappings",
			"id BIGSERIAL PRIMARY KEY",
			"version TEXT,",
			"obfuscated TEXT NOT NULL",
			"loaded_at BIGINT NOT NULL DEFAULT 0",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.Name(), func(t *testing.T) {
			sql := tt.dialect.CreateTableSQL("mappings", columns)
			for _, want := range tt.want {
				if !strings.Contains(sql, want) {
					t.Errorf("CreateTableSQL() missing %q:\n%s", want, sql)
				}
			}
		})
	}
}

func TestCreateTableSQLPrimaryKey(t *testing.T) {
	sql := SQLite.CreateTableSQL("maps", []ColumnDef{
		{Name: "id", Type: ColTypeText, PrimaryKey: true},
	})
	if !strings.Contains(sql, "id TEXT PRIMARY KEY") || strings.Contains(sql, "NOT NULL") {
		t.Errorf("CreateTableSQL() = %s", sql)
	}
}

func TestCreateIndexSQL(t *testing.T) {
	for _, d := range []Dialect{SQLite, Postgres} {
		got := d.CreateIndexSQL("mappings", "idx_mappings_obfuscated", []string{"obfuscated"}, false)
		want := "CREATE INDEX IF NOT EXISTS idx_mappings_obfuscated ON mappings (obfuscated)"
		if got != want {
			t.Errorf("%s CreateIndexSQL() = %q, want %q", d.Name(), got, want)
		}
		got = d.CreateIndexSQL("maps", "idx_maps_source", []string{"source", "loaded_at"}, true)
		want = "CREATE UNIQUE INDEX IF NOT EXISTS idx_maps_source ON maps (source, loaded_at)"
		if got != want {
			t.Errorf("%s unique CreateIndexSQL() = %q, want %q", d.Name(), got, want)
		}
	}
}
