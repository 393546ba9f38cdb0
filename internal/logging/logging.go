// Package logging wraps zerolog with context-carried correlation IDs, the
// way tomtom215-cartographus's internal/logging wraps zerolog for HTTP
// request IDs — here the correlated unit is a plan, batch, or zoom
// transition rather than an HTTP request.
package logging

import (
	"context"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// New creates a zerolog.Logger writing JSON log lines to w.
// Pass os.Stderr for interactive use; a bytes.Buffer in tests.
func New(w io.Writer, verbose bool) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(level)
}

// NewCorrelationID mints an identifier for one plan, batch, tile build, or
// zoom transition, so overlapping async operations can be told apart in
// logs. Returns the first 8 characters of a UUID for readability.
func NewCorrelationID() string {
	return uuid.New().String()[:8]
}

// WithCorrelationID attaches id to ctx and to a derived logger, returning
// both so callers can propagate them together.
func WithCorrelationID(ctx context.Context, log zerolog.Logger, id string) (context.Context, zerolog.Logger) {
	ctx = context.WithValue(ctx, correlationIDKey, id)
	log = log.With().Str("correlation_id", id).Logger()
	return ctx, log
}

// CorrelationIDFromContext retrieves the correlation ID from ctx, or "" if
// none was attached.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}
