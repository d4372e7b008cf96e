package log

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type contextKey struct{}

// NewContext returns a copy of ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored by NewContext, or one wrapping the
// slog default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger writes the recurring events of the dashboard with a
// fixed set of fields, so they can be queried across components.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// LogRequestCompleted logs a served request. Client errors log at warn and
// server errors at error.
func (sl *StructuredLogger) LogRequestCompleted(ctx context.Context, r *http.Request, route string, statusCode int, duration time.Duration, clientIP string) {
	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path).
		WithHTTPResponse(statusCode, duration.Milliseconds(), statusCode < 400).
		WithClientIP(clientIP).
		WithComponent(sl.logger.component).
		ToSlice()
	fields = append(fields, "route", route, FieldDurationHuman, duration.String())

	sl.logger.Log(ctx, level, "HTTP request completed", fields...)
}

// LogFetchCompleted logs a registry fetch answered from the cache or the
// source.
func (sl *StructuredLogger) LogFetchCompleted(ctx context.Context, url string, seq uint64, cacheHit bool, records, malformed int, durationMs int64) {
	fields := NewFields().
		WithFetch(url, seq, cacheHit, records, malformed).
		WithOperation(OpFetch).
		ToSlice()
	fields = append(fields, FieldDuration, durationMs)

	sl.logger.InfoContext(ctx, "Registry fetch completed", fields...)
}
