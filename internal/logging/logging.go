package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New builds the process-wide structured logger. Output is JSON so log
// pipelines can index the sync_id and op fields emitted by operations.
func New(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ctxKey is an unexported type for context keys defined in this package.
type ctxKey string

const (
	loggerKey ctxKey = "logger"
	syncIDKey ctxKey = "syncID"
)

// WithLogger stores the provided logger on the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the scoped logger or falls back to slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// SyncIDFromContext retrieves the identifier of the current sync cycle.
func SyncIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if syncID, ok := ctx.Value(syncIDKey).(string); ok {
		return syncID
	}
	return ""
}

// Op represents one named synchronization step tied to a sync cycle.
type Op struct {
	name   string
	logger *slog.Logger
	start  time.Time
}

// StartOp derives an operation from the provided context, enriching the
// logger with the cycle identifier. All store and gateway calls made under
// the returned context log with the same sync_id.
func StartOp(ctx context.Context, name string) (context.Context, *Op) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := FromContext(ctx)

	syncID := SyncIDFromContext(ctx)
	if syncID == "" {
		syncID = uuid.NewString()
		ctx = context.WithValue(ctx, syncIDKey, syncID)
		logger = logger.With(slog.String("sync_id", syncID))
	}

	logger = logger.With(slog.String("op", name))
	ctx = WithLogger(ctx, logger)

	return ctx, &Op{
		name:   name,
		logger: logger,
		start:  time.Now(),
	}
}

// End finalizes the operation, logging its duration and outcome.
func (o *Op) End(err error) {
	if o == nil {
		return
	}
	if err != nil {
		o.logger.Error("op failed", slog.Duration("duration", time.Since(o.start)), slog.Any("error", err))
		return
	}
	o.logger.Info("op completed", slog.Duration("duration", time.Since(o.start)))
}
