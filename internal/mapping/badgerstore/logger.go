package badgerstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// badgerLogger routes Badger's printf-style logging into slog. Info and
// debug chatter is demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger(logger *slog.Logger) *badgerLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &badgerLogger{logger: logger.With(slog.String("component", "badger"))}
}

func (l *badgerLogger) log(level slog.Level, format string, args ...any) {
	if !l.logger.Enabled(context.Background(), level) {
		return
	}
	l.logger.Log(context.Background(), level, strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Errorf(format string, args ...any) { l.log(slog.LevelError, format, args...) }

func (l *badgerLogger) Warningf(format string, args ...any) { l.log(slog.LevelWarn, format, args...) }

func (l *badgerLogger) Infof(format string, args ...any) { l.log(slog.LevelDebug, format, args...) }

func (l *badgerLogger) Debugf(format string, args ...any) { l.log(slog.LevelDebug, format, args...) }
