package observability

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyOwner     ctxKey = "owner"
)

// basic global logger, JSON to stdout. Replaced once by Init at startup.
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// Init configures the process logger. Call it before serving requests.
func Init(level, service, version string) *slog.Logger {
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(level)})).
		With("service", service, "version", version)
	slog.SetDefault(logger)
	return logger
}

func Logger() *slog.Logger {
	return logger
}

// WithRequestID stores a request_id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// RequestID returns the request id stored in ctx.
func RequestID(ctx context.Context) string {
	rid, _ := ctx.Value(ctxKeyRequestID).(string)
	return rid
}

// WithOwner stores the authenticated owner in the context for logging.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ctxKeyOwner, owner)
}

// LoggerFromContext adds request_id and owner if present.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return logger
	}
	l := logger
	if reqID, _ := ctx.Value(ctxKeyRequestID).(string); reqID != "" {
		l = l.With("request_id", reqID)
	}
	if owner, _ := ctx.Value(ctxKeyOwner).(string); owner != "" {
		l = l.With("owner", owner)
	}
	return l
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
