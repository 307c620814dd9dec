package orby

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with engine-specific context.
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithName adds the engine name to the logger.
func (l *Logger) WithName(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("name", name),
	}
}

// LogBatchInsert logs a batch insert operation.
func (l *Logger) LogBatchInsert(ctx context.Context, total, inserted int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "batch insert failed",
			"total", total,
			"inserted", inserted,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "batch insert completed",
			"count", inserted,
		)
	}
}

// LogQuery logs a query operation.
func (l *Logger) LogQuery(ctx context.Context, lane, limit, results int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"lane", lane,
			"limit", limit,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "query completed",
			"lane", lane,
			"limit", limit,
			"results", results,
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, index int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"index", index,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"index", index,
		)
	}
}

// LogPurge logs a purge-by-key operation.
func (l *Logger) LogPurge(ctx context.Context, lane, removed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "purge failed",
			"lane", lane,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "purge completed",
			"lane", lane,
			"removed", removed,
		)
	}
}

// LogSleep logs a vault sync operation.
func (l *Logger) LogSleep(ctx context.Context, dir string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "vault sync failed",
			"dir", dir,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "vault sync completed",
			"dir", dir,
		)
	}
}

// LogLoad logs a vault load operation.
func (l *Logger) LogLoad(ctx context.Context, dir string, loaded bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "vault load failed",
			"dir", dir,
			"error", err,
		)
	} else if loaded {
		l.InfoContext(ctx, "vault loaded",
			"dir", dir,
		)
	} else {
		l.InfoContext(ctx, "no vault found, starting empty",
			"dir", dir,
		)
	}
}

// LogReplay logs an operation log replay.
func (l *Logger) LogReplay(ctx context.Context, entriesReplayed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "log replay failed",
			"entries_replayed", entriesReplayed,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "log replay completed",
			"entries_replayed", entriesReplayed,
		)
	}
}

// LogSnapshot logs a snapshot operation.
func (l *Logger) LogSnapshot(ctx context.Context, filename string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"filename", filename,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot saved",
			"filename", filename,
		)
	}
}
