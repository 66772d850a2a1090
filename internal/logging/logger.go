package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger provides structured logging for the scan pipeline
type Logger struct {
	prefix string
	logger *slog.Logger
}

// NewLogger creates a new logger with a component prefix writing to stdout
func NewLogger(prefix string) *Logger {
	return NewLoggerWithWriter(prefix, os.Stdout, levelFromEnv())
}

// NewLoggerWithWriter creates a logger writing key/value lines to w
func NewLoggerWithWriter(prefix string, w io.Writer, level slog.Level) *Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{
		prefix: prefix,
		logger: slog.New(handler).With("component", prefix),
	}
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return NewLoggerWithWriter("discard", io.Discard, slog.LevelError+1)
}

// With returns a child logger that always carries the given key-value pairs
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{prefix: l.prefix, logger: l.logger.With(keysAndValues...)}
}

// Named returns a logger for a sub-component sharing the same handler
func (l *Logger) Named(prefix string) *Logger {
	return &Logger{prefix: prefix, logger: l.logger.With("component", prefix)}
}

// Info logs an informational message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, keysAndValues...)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, keysAndValues...)
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

// Slog exposes the underlying slog logger for libraries that accept one
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// ParseLevel maps LOG_LEVEL values onto slog levels. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func levelFromEnv() slog.Level {
	return ParseLevel(os.Getenv("LOG_LEVEL"))
}
