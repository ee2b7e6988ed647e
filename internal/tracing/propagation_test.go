package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestPropagateToLogger(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-123")
	ctx = WithTurnID(ctx, "turn-456")
	ctx = WithSessionKey(ctx, "session-789")

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	logger = PropagateToLogger(ctx, logger)
	logger.Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, "trace-123") {
		t.Error("Expected trace ID in log output")
	}
	if !strings.Contains(output, "turn-456") {
		t.Error("Expected turn ID in log output")
	}
	if !strings.Contains(output, "session-789") {
		t.Error("Expected session key in log output")
	}
}

func TestPropagateToLoggerEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	logger = PropagateToLogger(context.Background(), logger)
	logger.Info().Msg("test message")

	output := buf.String()
	if strings.Contains(output, "trace_id") {
		t.Error("Did not expect trace_id field on empty context")
	}
	if strings.Contains(output, "session_key") {
		t.Error("Did not expect session_key field on empty context")
	}
}

func TestLoggerFromContext(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-abc")

	var buf bytes.Buffer
	logger := LoggerFromContext(ctx, zerolog.New(&buf))
	logger.Info().Msg("hello")

	if !strings.Contains(buf.String(), "trace-abc") {
		t.Error("Expected trace ID in log output")
	}
}

func TestMergeContext(t *testing.T) {
	source := context.Background()
	source = WithTraceID(source, "source-trace")
	source = WithSessionKey(source, "source-session")

	target := WithTraceID(context.Background(), "target-trace")

	merged := MergeContext(target, source)

	// Existing values win; missing values come from the source.
	if GetTraceID(merged) != "target-trace" {
		t.Errorf("Expected trace ID target-trace, got %s", GetTraceID(merged))
	}
	if GetSessionKey(merged) != "source-session" {
		t.Errorf("Expected session key source-session, got %s", GetSessionKey(merged))
	}
}

func TestCloneContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = WithTraceID(ctx, "trace-clone")
	ctx = WithSessionKey(ctx, "session-clone")
	cancel()

	cloned := CloneContext(ctx)

	if GetTraceID(cloned) != "trace-clone" {
		t.Errorf("Expected trace ID trace-clone, got %s", GetTraceID(cloned))
	}
	if GetSessionKey(cloned) != "session-clone" {
		t.Errorf("Expected session key session-clone, got %s", GetSessionKey(cloned))
	}
	if cloned.Err() != nil {
		t.Error("Cloned context should not inherit cancellation")
	}
}
