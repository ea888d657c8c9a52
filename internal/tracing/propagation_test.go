package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestPropagateToLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-123")
	ctx = WithRunID(ctx, "run-456")
	ctx = WithTrigger(ctx, "watcher")

	tagged := LoggerFromContext(ctx, logger)
	tagged.Info().Msg("test message")

	output := buf.String()
	for _, want := range []string{`"trace_id":"trace-123"`, `"run_id":"run-456"`, `"trigger":"watcher"`} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %s in log output: %s", want, output)
		}
	}
	if strings.Contains(output, "request_id") {
		t.Errorf("Unexpected request_id in log output: %s", output)
	}
}

func TestPropagateToLoggerEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	plain := PropagateToLogger(context.Background(), logger)
	plain.Info().Msg("plain")

	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("Unexpected trace_id in log output: %s", buf.String())
	}
}

func TestCloneContext(t *testing.T) {
	parent, cancel := context.WithCancel(WithRunID(context.Background(), "run-1"))
	clone := CloneContext(parent)
	cancel()

	if clone.Err() != nil {
		t.Error("Cloned context should not be canceled with its parent")
	}
	if GetRunID(clone) != "run-1" {
		t.Error("Cloned context lost the run ID")
	}
}
