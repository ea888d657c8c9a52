package tracing

import (
	"context"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Trigger values naming what started a run.
const (
	TriggerCLI     = "cli"
	TriggerStartup = "startup"
	TriggerWatcher = "watcher"
	TriggerSweep   = "sweep"
	TriggerHTTP    = "http"
)

const (
	runIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	runIDLength   = 10
)

// TraceContext is the correlation data carried through a run or request.
// Values in a context are never mutated; each With* call stores a copy.
type TraceContext struct {
	TraceID   string
	RunID     string
	RequestID string
	Trigger   string
}

type traceContextKey struct{}

// NewTraceID returns a random trace ID for requests that arrive without a span.
func NewTraceID() string {
	return uuid.NewString()
}

// NewRunID returns a short ID that tags every log line of one indexer run.
func NewRunID() string {
	id, err := gonanoid.Generate(runIDAlphabet, runIDLength)
	if err != nil {
		return uuid.NewString()[:runIDLength]
	}
	return id
}

func current(ctx context.Context) TraceContext {
	if tc, ok := ctx.Value(traceContextKey{}).(TraceContext); ok {
		return tc
	}
	return TraceContext{}
}

func with(ctx context.Context, update func(*TraceContext)) context.Context {
	tc := current(ctx)
	update(&tc)
	return context.WithValue(ctx, traceContextKey{}, tc)
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return with(ctx, func(tc *TraceContext) { tc.TraceID = traceID })
}

func WithRunID(ctx context.Context, runID string) context.Context {
	return with(ctx, func(tc *TraceContext) { tc.RunID = runID })
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return with(ctx, func(tc *TraceContext) { tc.RequestID = requestID })
}

// WithTrigger records what started the current operation.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return with(ctx, func(tc *TraceContext) { tc.Trigger = trigger })
}

func GetTraceID(ctx context.Context) string   { return current(ctx).TraceID }
func GetRunID(ctx context.Context) string     { return current(ctx).RunID }
func GetRequestID(ctx context.Context) string { return current(ctx).RequestID }
func GetTrigger(ctx context.Context) string   { return current(ctx).Trigger }

// FromContext returns a copy of the correlation data in ctx.
func FromContext(ctx context.Context) *TraceContext {
	tc := current(ctx)
	return &tc
}

// NewContext stores the non-empty fields of tc on ctx, keeping any values
// ctx already has for the empty ones.
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc == nil {
		return ctx
	}
	return with(ctx, func(cur *TraceContext) {
		if tc.TraceID != "" {
			cur.TraceID = tc.TraceID
		}
		if tc.RunID != "" {
			cur.RunID = tc.RunID
		}
		if tc.RequestID != "" {
			cur.RequestID = tc.RequestID
		}
		if tc.Trigger != "" {
			cur.Trigger = tc.Trigger
		}
	})
}

// NewRequestContext starts a request with a fresh trace ID.
func NewRequestContext(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewTraceID())
}

// NewRunContext starts a run: a fresh run ID tagged with its trigger.
func NewRunContext(ctx context.Context, trigger string) context.Context {
	return with(ctx, func(tc *TraceContext) {
		tc.RunID = NewRunID()
		tc.Trigger = trigger
	})
}
