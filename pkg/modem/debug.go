package modem

import (
	"context"
	"log/slog"
)

var logger *slog.Logger

// SetLogger replaces the package logger. It must be called before the
// modem is used concurrently.
func SetLogger(l *slog.Logger) {
	logger = l
}

func debugLog(msg string, args ...any) {
	l := logger
	if l == nil {
		l = slog.Default()
	}
	if l.Enabled(context.Background(), slog.LevelDebug) {
		l.Debug(msg, append([]any{"component", "modem"}, args...)...)
	}
}
