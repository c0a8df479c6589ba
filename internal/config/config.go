// Package config loads unfuscator configuration from flags, the environment
// and an optional YAML file.
//
// Every key can be set in the config file (default
// ~/.config/unfuscator/config.yaml) or through an UNFUSCATOR_ environment
// variable, with dots and dashes turned into underscores:
//   - UNFUSCATOR_STORE_TYPE: memory, sqlite, postgres, badger (default: sqlite)
//   - UNFUSCATOR_STORE_PATH: SQLite file or Badger directory
//   - UNFUSCATOR_STORE_DSN: PostgreSQL connection string
//   - UNFUSCATOR_STORE_CACHE_SIZE: lookup cache entries, 0 disables (default: 4096)
//   - UNFUSCATOR_SERVER_ADDR: HTTP listen address (default: 127.0.0.1:8080)
//   - UNFUSCATOR_WATCH_DEBOUNCE_MS: watcher quiet period (default: 500)
//   - UNFUSCATOR_TRACE_CONCURRENCY: parallel lookups per trace (default: 8)
//   - UNFUSCATOR_LOG_LEVEL, UNFUSCATOR_LOG_FORMAT: see internal/logging
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"unfuscator/internal/logging"
	"unfuscator/internal/mapping"
	"unfuscator/internal/unfuscate"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "UNFUSCATOR"

// Config keys.
const (
	KeyStoreType         = "store.type"
	KeyStorePath         = "store.path"
	KeyStoreDSN          = "store.dsn"
	KeyStoreCacheSize    = "store.cache-size"
	KeyServerAddr        = "server.addr"
	KeyWatchDebounceMs   = "watch.debounce-ms"
	KeyTraceConcurrency  = "trace.concurrency"
	KeyLogLevel          = "log.level"
	KeyLogFormat         = "log.format"
	DefaultServerAddr    = "127.0.0.1:8080"
	DefaultWatchDebounce = 500
)

// Config is the full configuration.
type Config struct {
	Store  StoreConfig
	Server ServerConfig
	Watch  WatchConfig
	Trace  TraceConfig
	Log    logging.Config
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string
}

// WatchConfig configures the map directory watcher.
type WatchConfig struct {
	DebounceMs int
}

// Debounce returns the quiet period as a duration.
func (c WatchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// TraceConfig configures trace resolution.
type TraceConfig struct {
	Concurrency int
}

// DefaultConfigDir returns ~/.config/unfuscator, falling back to
// .unfuscator when the home directory is unknown.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".unfuscator"
	}
	return filepath.Join(home, ".config", "unfuscator")
}

// SetDefaults registers the default value of every key on v. store.type has
// none: an empty type means sqlite, or postgres when store.dsn is a postgres URL.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyStoreCacheSize, mapping.DefaultCacheSize)
	v.SetDefault(KeyServerAddr, DefaultServerAddr)
	v.SetDefault(KeyWatchDebounceMs, DefaultWatchDebounce)
	v.SetDefault(KeyTraceConcurrency, unfuscate.DefaultConcurrency)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
}

// Init prepares v: defaults, environment binding and the config file.
// cfgFile overrides the default location; a missing default file is not an
// error, a missing explicit one is. It returns the file used, if any.
func Init(v *viper.Viper, cfgFile string) (string, error) {
	SetDefaults(v)
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(DefaultConfigDir())
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("reading config: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// Load builds a Config from v.
func Load(v *viper.Viper) (Config, error) {
	typeName := v.GetString(KeyStoreType)
	storeType, err := ParseStoreType(typeName)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Store: StoreConfig{
			Type:      storeType,
			Path:      v.GetString(KeyStorePath),
			DSN:       v.GetString(KeyStoreDSN),
			CacheSize: v.GetInt(KeyStoreCacheSize),
		},
		Server: ServerConfig{Addr: v.GetString(KeyServerAddr)},
		Watch:  WatchConfig{DebounceMs: v.GetInt(KeyWatchDebounceMs)},
		Trace:  TraceConfig{Concurrency: v.GetInt(KeyTraceConcurrency)},
		Log:    logging.DefaultConfig(""),
	}

	// a postgres DSN implies the postgres store unless another type was chosen
	if strings.TrimSpace(typeName) == "" && isPostgresDSN(cfg.Store.DSN) {
		cfg.Store.Type = StorePostgres
	}

	level := v.GetString(KeyLogLevel)
	if l, ok := logging.ParseLevel(level); ok {
		cfg.Log.Level = l
	} else {
		return Config{}, fmt.Errorf("unknown log level %q", level)
	}
	switch format := strings.ToLower(v.GetString(KeyLogFormat)); format {
	case "text", "json":
		cfg.Log.Format = format
	default:
		return Config{}, fmt.Errorf("unknown log format %q", format)
	}

	if cfg.Store.CacheSize < 0 {
		return Config{}, fmt.Errorf("%s must not be negative", KeyStoreCacheSize)
	}
	if cfg.Watch.DebounceMs <= 0 {
		cfg.Watch.DebounceMs = DefaultWatchDebounce
	}
	return cfg, nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
