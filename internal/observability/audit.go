package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/harun/memdex/internal/tracing"
)

// Audit event types.
const (
	AuditIndex  = "index"
	AuditConfig = "config"
)

// AuditEvent is one line of the audit log. Destructive index operations
// (forced re-index, clear, a repairing reconcile) and config writes are
// recorded.
type AuditEvent struct {
	Type      string
	Action    string
	Actor     string
	Status    string
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// AuditLogger writes JSON lines. The zero value discards everything.
type AuditLogger struct {
	mu     sync.Mutex
	logger zerolog.Logger
	closer io.Closer
	active bool
}

var (
	auditMu   sync.Mutex
	auditInst = &AuditLogger{}
)

// GetAuditLogger returns the process audit logger. It discards events until
// InitAuditLogger points it at a file.
func GetAuditLogger() *AuditLogger {
	auditMu.Lock()
	defer auditMu.Unlock()
	return auditInst
}

// NewAuditLogger writes audit lines to w.
func NewAuditLogger(w io.Writer) *AuditLogger {
	return &AuditLogger{
		logger: zerolog.New(w).With().Timestamp().Logger(),
		active: true,
	}
}

// InitAuditLogger replaces the process audit logger with one appending to
// path. An empty path installs a discarding logger.
func InitAuditLogger(path string) error {
	next := &AuditLogger{}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create audit directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		next = NewAuditLogger(file)
		next.closer = file
	}

	auditMu.Lock()
	prev := auditInst
	auditInst = next
	auditMu.Unlock()

	return prev.Close()
}

// Enabled reports whether events are written anywhere.
func (a *AuditLogger) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Record writes event with the run, trigger, request and span identifiers
// found in ctx, and mirrors it onto the current span.
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Actor == "" {
		event.Actor = tracing.GetTrigger(ctx)
	}

	span := trace.SpanFromContext(ctx)
	sc := span.SpanContext()
	if sc.IsValid() {
		span.AddEvent("audit."+event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.status", event.Status),
			attribute.String("audit.actor", event.Actor),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return
	}

	entry := a.logger.Log().
		Time("event_time", event.Timestamp).
		Str("type", event.Type).
		Str("action", event.Action).
		Str("status", event.Status)

	if event.Actor != "" {
		entry = entry.Str("actor", event.Actor)
	}
	if id := tracing.GetRunID(ctx); id != "" {
		entry = entry.Str("run_id", id)
	}
	if id := tracing.GetRequestID(ctx); id != "" {
		entry = entry.Str("request_id", id)
	}
	if sc.IsValid() {
		entry = entry.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	} else if id := tracing.GetTraceID(ctx); id != "" {
		entry = entry.Str("trace_id", id)
	}
	if len(event.Metadata) > 0 {
		entry = entry.Interface("metadata", event.Metadata)
	}

	entry.Send()
}

// Close closes the underlying file, if any, and stops recording.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = false
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

// RecordIndexAudit records an index mutation such as "clear" or
// "index_all:force". The actor is the run's trigger.
func RecordIndexAudit(ctx context.Context, action, status string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     AuditIndex,
		Action:   action,
		Status:   status,
		Metadata: metadata,
	})
}

// RecordConfigAudit records a configuration write.
func RecordConfigAudit(ctx context.Context, action, actor string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     AuditConfig,
		Action:   action,
		Actor:    actor,
		Status:   "success",
		Metadata: metadata,
	})
}
