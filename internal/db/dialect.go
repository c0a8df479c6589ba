package db

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect generates the SQL that differs between SQLite and PostgreSQL.
type Dialect interface {
	// Name returns "sqlite" or "postgres".
	Name() string

	// Placeholder returns the bind parameter for the 1-based index:
	// "?" for SQLite, "$1" for PostgreSQL.
	Placeholder(index int) string

	// InsertSQL generates a plain INSERT of columns into table.
	InsertSQL(table string, columns []string) string

	// CreateTableSQL generates a CREATE TABLE IF NOT EXISTS statement.
	CreateTableSQL(table string, columns []ColumnDef) string

	// CreateIndexSQL generates a CREATE INDEX IF NOT EXISTS statement.
	CreateIndexSQL(table, indexName string, columns []string, unique bool) string
}

// ColumnDef defines a column for table creation. Columns are NOT NULL
// unless Nullable is set.
type ColumnDef struct {
	Name       string
	Type       ColumnType
	Nullable   bool
	PrimaryKey bool
	Default    string // SQL expression
}

// ColumnType is an engine-neutral column type.
type ColumnType int

const (
	ColTypeInteger ColumnType = iota
	ColTypeText
	ColTypeAutoIncrement // 64-bit surrogate primary key
)

// DatabaseType identifies the database engine.
type DatabaseType string

const (
	DatabaseSQLite   DatabaseType = "sqlite"
	DatabasePostgres DatabaseType = "postgres"
)

var (
	// SQLite is the dialect of modernc.org/sqlite.
	SQLite Dialect = dialect{name: "sqlite", integer: "INTEGER", serial: "INTEGER PRIMARY KEY AUTOINCREMENT"}
	// Postgres is the dialect of lib/pq.
	Postgres Dialect = dialect{name: "postgres", numbered: true, integer: "BIGINT", serial: "BIGSERIAL PRIMARY KEY"}
)

// DialectFor returns the dialect of dbType, defaulting to SQLite.
func DialectFor(dbType DatabaseType) Dialect {
	if dbType == DatabasePostgres {
		return Postgres
	}
	return SQLite
}

type dialect struct {
	name     string
	numbered bool // $n placeholders
	integer  string
	serial   string
}

func (d dialect) Name() string { return d.name }

func (d dialect) Placeholder(index int) string {
	if d.numbered {
		return "$" + strconv.Itoa(index)
	}
	return "?"
}

func (d dialect) placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = d.Placeholder(i + 1)
	}
	return strings.Join(ps, ", ")
}

func (d dialect) InsertSQL(table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), d.placeholders(len(columns)))
}

func (d dialect) CreateTableSQL(table string, columns []ColumnDef) string {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = d.column(col)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)", table, strings.Join(defs, ",\n    "))
}

func (d dialect) column(col ColumnDef) string {
	var b strings.Builder
	b.WriteString(col.Name)
	b.WriteByte(' ')
	switch col.Type {
	case ColTypeAutoIncrement:
		b.WriteString(d.serial)
		return b.String()
	case ColTypeInteger:
		b.WriteString(d.integer)
	default:
		b.WriteString("TEXT")
	}
	switch {
	case col.PrimaryKey:
		b.WriteString(" PRIMARY KEY")
	case !col.Nullable:
		b.WriteString(" NOT NULL")
	}
	if col.Default != "" {
		b.WriteString(" DEFAULT " + col.Default)
	}
	return b.String()
}

func (d dialect) CreateIndexSQL(table, indexName string, columns []string, unique bool) string {
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)", kind, indexName, table, strings.Join(columns, ", "))
}
