package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToLogger returns logger with the non-empty correlation IDs of ctx
// attached as fields.
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := current(ctx)
	if tc == (TraceContext{}) {
		return logger
	}

	lc := logger.With()
	for _, f := range [...]struct{ key, val string }{
		{"trace_id", tc.TraceID},
		{"run_id", tc.RunID},
		{"request_id", tc.RequestID},
		{"trigger", tc.Trigger},
	} {
		if f.val != "" {
			lc = lc.Str(f.key, f.val)
		}
	}
	return lc.Logger()
}

// LoggerFromContext returns base tagged with the correlation IDs of ctx.
func LoggerFromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, base)
}

// CloneContext keeps the correlation IDs of ctx but drops its deadline and
// cancellation, for work that outlives the caller.
func CloneContext(ctx context.Context) context.Context {
	return context.WithValue(context.Background(), traceContextKey{}, current(ctx))
}
