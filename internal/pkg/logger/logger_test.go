package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func newBufferLogger(level, format string) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(&Config{Level: level, Format: format, Output: &buf}), &buf
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.NotNil(t, cfg.Output)
	assert.False(t, cfg.AddSource)
}

func TestNew_JSONFormat(t *testing.T) {
	logger, buf := newBufferLogger("info", "json")

	logger.Info("test message", "key", "value")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "test message", logEntry["msg"])
	assert.Equal(t, "value", logEntry["key"])
}

func TestNew_TextFormat(t *testing.T) {
	logger, buf := newBufferLogger("debug", "TEXT")

	logger.Debug("debug message")

	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "debug message")
}

func TestNew_NilConfig(t *testing.T) {
	assert.NotNil(t, New(nil))
}

func TestContextHandler_WithCorrelationData(t *testing.T) {
	logger, buf := newBufferLogger("info", "json")

	ctx := context.Background()
	ctx = WithCorrelationID(ctx, "corr-123")
	ctx = WithRequestID(ctx, "req-456")
	ctx = WithMessageID(ctx, "msg-789")
	ctx = WithJobID(ctx, 7)

	logger.InfoContext(ctx, "test with context")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "corr-123", logEntry["correlation_id"])
	assert.Equal(t, "req-456", logEntry["request_id"])
	assert.Equal(t, "msg-789", logEntry["message_id"])
	assert.EqualValues(t, 7, logEntry["job_id"])
}

func TestContextHandler_WithExplicitTraceIDs(t *testing.T) {
	logger, buf := newBufferLogger("info", "json")

	ctx := WithSpanID(WithTraceID(context.Background(), "trace-abc"), "span-def")
	logger.InfoContext(ctx, "test with trace")

	assert.Contains(t, buf.String(), "trace-abc")
	assert.Contains(t, buf.String(), "span-def")
}

func TestContextHandler_WithSpanContext(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", GetTraceID(ctx))
	assert.Equal(t, "00f067aa0ba902b7", GetSpanID(ctx))
}

func TestContextGetters_Empty(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, GetCorrelationID(ctx))
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetMessageID(ctx))
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetSpanID(ctx))

	_, ok := GetJobID(ctx)
	assert.False(t, ok)
}

func TestWithFields_DoesNotMutateParent(t *testing.T) {
	parent := WithCorrelationID(context.Background(), "corr-1")
	child := WithMessageID(WithRequestID(parent, "req-2"), "msg-3")

	assert.Equal(t, "corr-1", GetCorrelationID(child))
	assert.Equal(t, "req-2", GetRequestID(child))
	assert.Equal(t, "msg-3", GetMessageID(child))
	assert.Empty(t, GetRequestID(parent))
	assert.Empty(t, GetMessageID(parent))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNew_ServiceAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := New(&Config{Output: &buf, Service: "jobboard-consumer", Version: "1.4.0", Environment: "staging"})

	log.Info("started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "jobboard-consumer", entry["service"])
	assert.Equal(t, "1.4.0", entry["version"])
	assert.Equal(t, "staging", entry["env"])
}

func TestNew_TimeFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(&Config{Output: &buf, TimeFormat: time.DateOnly})

	log.Info("dated")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, err := time.Parse(time.DateOnly, entry["time"].(string))
	assert.NoError(t, err)
}

func TestSince(t *testing.T) {
	attr := Since(time.Now().Add(-1500 * time.Millisecond))

	assert.Equal(t, "duration_ms", attr.Key)
	assert.InDelta(t, 1500, attr.Value.Float64(), 100)
}

func TestNewContextHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	log.InfoContext(WithJobID(context.Background(), 12), "wrapped")

	assert.Contains(t, buf.String(), `"job_id":12`)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"short", "abc", 5, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"cut", "abcdef", 5, "abcde..."},
		{"no limit", "abcdef", 0, "abcdef"},
		{"long body", strings.Repeat("x", 600), 500, strings.Repeat("x", 500) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.in, tt.limit))
		})
	}
}

func TestOutputFromString(t *testing.T) {
	assert.Equal(t, os.Stderr, OutputFromString("stderr"))
	assert.Equal(t, os.Stdout, OutputFromString("stdout"))
	assert.Equal(t, os.Stdout, OutputFromString(""))
}

func TestSetup(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	Setup(&Config{Level: "info", Format: "json", Output: &buf})

	slog.Info("test after setup")
	assert.Contains(t, buf.String(), "test after setup")
}

func TestContextHandler_WithAttrsAndGroup(t *testing.T) {
	logger, buf := newBufferLogger("info", "json")

	logger.With("service", "jobboard").WithGroup("delivery").Info("grouped", "tag", 1)

	output := buf.String()
	assert.Contains(t, output, "jobboard")
	assert.Contains(t, output, `"delivery":{"tag":1}`)
}

func TestLogLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger("warn", "json")

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	assert.NotContains(t, output, "debug message")
	assert.NotContains(t, output, "info message")
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "error message")
}
