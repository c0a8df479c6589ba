// Package logging builds the slog loggers used across unfuscator.
//
// Configuration comes from the environment, and may be overridden by the
// config file or the --verbose flag:
//   - UNFUSCATOR_LOG_LEVEL: debug, info, warn, error (default: info)
//   - UNFUSCATOR_LOG_FORMAT: text, json (default: text)
//
// Logs go to stderr so stdout carries only rendered results.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

const (
	EnvLevel  = "UNFUSCATOR_LOG_LEVEL"
	EnvFormat = "UNFUSCATOR_LOG_FORMAT"
)

// Config holds logging configuration.
type Config struct {
	Level     slog.Level
	Format    string    // "text" or "json"
	Output    io.Writer // defaults to os.Stderr
	Component string    // attached to every record
}

// DefaultConfig returns info-level text logging to stderr for component.
func DefaultConfig(component string) Config {
	return Config{
		Level:     LevelInfo,
		Format:    "text",
		Output:    os.Stderr,
		Component: component,
	}
}

// ParseLevel parses a level name. ok is false for unknown names.
func ParseLevel(s string) (level slog.Level, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return LevelInfo, false
}

// LoadConfigFromEnv returns DefaultConfig with UNFUSCATOR_LOG_* overrides.
// Unknown levels are ignored.
func LoadConfigFromEnv(component string) Config {
	cfg := DefaultConfig(component)
	if level, ok := ParseLevel(os.Getenv(EnvLevel)); ok {
		cfg.Level = level
	}
	if format := os.Getenv(EnvFormat); format != "" {
		cfg.Format = strings.ToLower(format)
	}
	return cfg
}

// New creates a logger from cfg.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	if cfg.Component != "" {
		logger = logger.With(slog.String("component", cfg.Component))
	}
	return logger
}

// Default returns a logger configured from the environment.
func Default(component string) *slog.Logger {
	return New(LoadConfigFromEnv(component))
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
