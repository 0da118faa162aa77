package treewalk

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with treewalk-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithPath adds a path field to the logger.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path),
	}
}

// LogExpand logs an expand operation.
func (l *Logger) LogExpand(ctx context.Context, path string, depth, children int, hit bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "expand failed",
			"path", path,
			"depth", depth,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "expand completed",
		"path", path,
		"depth", depth,
		"children", children,
		"cache_hit", hit,
	)
}

// LogInvalidate logs an invalidation operation.
func (l *Logger) LogInvalidate(ctx context.Context, pattern string, deep bool, count int) {
	l.DebugContext(ctx, "cache invalidated",
		"pattern", pattern,
		"deep", deep,
		"count", count,
	)
}

// LogEviction logs a tracked eviction.
func (l *Logger) LogEviction(ctx context.Context, path string) {
	l.DebugContext(ctx, "entry evicted",
		"path", path,
	)
}
