package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"unfuscator/internal/db"
	"unfuscator/internal/mapping"
	"unfuscator/internal/mapping/badgerstore"
	"unfuscator/internal/mapping/sqlstore"
)

// StoreType selects the mapping store backend.
type StoreType string

const (
	StoreMemory   StoreType = "memory"
	StoreSQLite   StoreType = "sqlite"
	StorePostgres StoreType = "postgres"
	StoreBadger   StoreType = "badger"
)

// StoreTypes lists the accepted store types.
var StoreTypes = []StoreType{StoreSQLite, StorePostgres, StoreBadger, StoreMemory}

// ParseStoreType accepts a store type name or a common alias.
func ParseStoreType(s string) (StoreType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sqlite", "sqlite3", "":
		return StoreSQLite, nil
	case "postgres", "postgresql", "pg":
		return StorePostgres, nil
	case "badger", "badgerdb":
		return StoreBadger, nil
	case "memory", "mem":
		return StoreMemory, nil
	}
	return "", fmt.Errorf("unknown store type %q (want sqlite, postgres, badger or memory)", s)
}

// StoreConfig describes where mappings are kept.
type StoreConfig struct {
	Type StoreType

	// Path is the SQLite database file or the Badger directory.
	Path string

	// DSN is the PostgreSQL connection string.
	DSN string

	// CacheSize is the number of lookup results cached in memory; 0 turns
	// the cache off.
	CacheSize int
}

// DefaultPath returns Path, or the default location for the store type.
func (c StoreConfig) DefaultPath() string {
	if c.Path != "" {
		return c.Path
	}
	switch c.Type {
	case StoreBadger:
		return filepath.Join(DefaultConfigDir(), "mappings.badger")
	case StoreSQLite:
		return filepath.Join(DefaultConfigDir(), "mappings.db")
	}
	return ""
}

// ToDBConfig converts a SQL store configuration to db.Config.
func (c StoreConfig) ToDBConfig() (db.Config, error) {
	switch c.Type {
	case StorePostgres:
		if c.DSN == "" {
			return db.Config{}, fmt.Errorf("postgres store needs a DSN (%s_STORE_DSN)", EnvPrefix)
		}
		return db.PostgresConfig(c.DSN), nil
	case StoreSQLite:
		return db.DefaultConfig(c.DefaultPath()), nil
	}
	return db.Config{}, fmt.Errorf("%s store is not a SQL database", c.Type)
}

// String returns a human-readable description with any password masked.
func (c StoreConfig) String() string {
	switch c.Type {
	case StorePostgres:
		return fmt.Sprintf("PostgreSQL (%s)", maskDSN(c.DSN))
	case StoreBadger:
		return fmt.Sprintf("Badger (%s)", c.DefaultPath())
	case StoreMemory:
		return "memory"
	default:
		return fmt.Sprintf("SQLite (%s)", c.DefaultPath())
	}
}

// maskDSN hides the password in user:password@host style DSNs.
func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	userInfo := dsn[:at]
	scheme := ""
	if i := strings.Index(userInfo, "://"); i >= 0 {
		scheme, userInfo = userInfo[:i+3], userInfo[i+3:]
	}
	user, _, hasPassword := strings.Cut(userInfo, ":")
	if !hasPassword {
		return dsn
	}
	return scheme + user + ":***" + dsn[at:]
}

// OpenStore opens the configured store, wrapped in a lookup cache when
// CacheSize is positive.
func OpenStore(ctx context.Context, c StoreConfig, logger *slog.Logger) (mapping.Store, error) {
	var (
		store mapping.Store
		err   error
	)
	switch c.Type {
	case StoreMemory:
		store = mapping.NewMemoryStore()
	case StoreBadger:
		store, err = badgerstore.Open(c.DefaultPath(), logger)
	case StoreSQLite, StorePostgres:
		var dbCfg db.Config
		if dbCfg, err = c.ToDBConfig(); err == nil {
			store, err = sqlstore.Open(ctx, dbCfg)
		}
	default:
		err = fmt.Errorf("unknown store type %q", c.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", c, err)
	}

	if c.CacheSize > 0 {
		cached, err := mapping.NewCachedStore(store, c.CacheSize)
		if err != nil {
			store.Close()
			return nil, err
		}
		store = cached
	}
	return store, nil
}
