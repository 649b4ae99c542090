// Package logger builds the process slog.Logger and carries per-request
// and per-message identifiers through context.Context.
//
// Records written with the *Context methods get correlation_id,
// request_id, message_id, job_id, trace_id and span_id from ctx.
// Trace and span fall back to the active OpenTelemetry span.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, text
	Output     io.Writer
	AddSource  bool
	TimeFormat string // layout for the time key; empty keeps slog's default

	// Service, Version and Environment are attached to every record when set.
	Service     string
	Version     string
	Environment string
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "json",
		Output:     os.Stdout,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
}

// ParseLevel maps a config value to a slog level. Unknown values mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a new slog.Logger with the given configuration
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}
	if layout := cfg.TimeFormat; layout != "" {
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
				return slog.String(slog.TimeKey, a.Value.Time().UTC().Format(layout))
			}
			return a
		}
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	var base []slog.Attr
	if cfg.Service != "" {
		base = append(base, slog.String("service", cfg.Service))
	}
	if cfg.Version != "" {
		base = append(base, slog.String("version", cfg.Version))
	}
	if cfg.Environment != "" {
		base = append(base, slog.String("env", cfg.Environment))
	}
	if len(base) > 0 {
		handler = handler.WithAttrs(base)
	}

	return slog.New(&ContextHandler{handler: handler})
}

// Setup initializes the global logger
func Setup(cfg *Config) {
	slog.SetDefault(New(cfg))
}

// OutputFromString maps a config value to a writer.
func OutputFromString(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// ============================================
// Context handler
// ============================================

// ContextHandler wraps a slog.Handler and appends the identifiers stored in ctx.
type ContextHandler struct {
	handler slog.Handler
}

// NewContextHandler wraps h.
func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{handler: h}
}

// Enabled reports whether the wrapped handler handles level.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	f := fieldsFrom(ctx)

	if f.correlationID != "" {
		r.AddAttrs(slog.String("correlation_id", f.correlationID))
	}
	if f.requestID != "" {
		r.AddAttrs(slog.String("request_id", f.requestID))
	}
	if f.messageID != "" {
		r.AddAttrs(slog.String("message_id", f.messageID))
	}
	if f.hasJobID {
		r.AddAttrs(slog.Int64("job_id", f.jobID))
	}
	if id := GetTraceID(ctx); id != "" {
		r.AddAttrs(slog.String("trace_id", id))
	}
	if id := GetSpanID(ctx); id != "" {
		r.AddAttrs(slog.String("span_id", id))
	}

	return h.handler.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{handler: h.handler.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{handler: h.handler.WithGroup(name)}
}

// ============================================
// Context fields
// ============================================

type fieldsKey struct{}

// fields is stored by value; every With* copies it.
type fields struct {
	correlationID string
	requestID     string
	messageID     string
	traceID       string
	spanID        string
	jobID         int64
	hasJobID      bool
}

func fieldsFrom(ctx context.Context) fields {
	if ctx == nil {
		return fields{}
	}
	f, _ := ctx.Value(fieldsKey{}).(fields)
	return f
}

func withFields(ctx context.Context, set func(*fields)) context.Context {
	f := fieldsFrom(ctx)
	set(&f)
	return context.WithValue(ctx, fieldsKey{}, f)
}

// WithCorrelationID stores the correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return withFields(ctx, func(f *fields) { f.correlationID = id })
}

// GetCorrelationID returns the correlation ID or "".
func GetCorrelationID(ctx context.Context) string { return fieldsFrom(ctx).correlationID }

// WithRequestID stores the HTTP request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withFields(ctx, func(f *fields) { f.requestID = id })
}

// GetRequestID returns the request ID or "".
func GetRequestID(ctx context.Context) string { return fieldsFrom(ctx).requestID }

// WithMessageID stores the broker message ID.
func WithMessageID(ctx context.Context, id string) context.Context {
	return withFields(ctx, func(f *fields) { f.messageID = id })
}

// GetMessageID returns the broker message ID or "".
func GetMessageID(ctx context.Context) string { return fieldsFrom(ctx).messageID }

// WithJobID stores the job a request or message refers to.
func WithJobID(ctx context.Context, id int64) context.Context {
	return withFields(ctx, func(f *fields) { f.jobID, f.hasJobID = id, true })
}

// GetJobID returns the stored job ID.
func GetJobID(ctx context.Context) (int64, bool) {
	f := fieldsFrom(ctx)
	return f.jobID, f.hasJobID
}

// WithTraceID stores an explicit trace ID.
func WithTraceID(ctx context.Context, id string) context.Context {
	return withFields(ctx, func(f *fields) { f.traceID = id })
}

// GetTraceID returns the stored trace ID, else the active span's.
func GetTraceID(ctx context.Context) string {
	if id := fieldsFrom(ctx).traceID; id != "" {
		return id
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// WithSpanID stores an explicit span ID.
func WithSpanID(ctx context.Context, id string) context.Context {
	return withFields(ctx, func(f *fields) { f.spanID = id })
}

// GetSpanID returns the stored span ID, else the active span's.
func GetSpanID(ctx context.Context) string {
	if id := fieldsFrom(ctx).spanID; id != "" {
		return id
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasSpanID() {
		return sc.SpanID().String()
	}
	return ""
}

// Truncate shortens s to at most limit bytes, appending "..." when cut.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// Since is a duration attribute in milliseconds, the unit dashboards expect.
func Since(start time.Time) slog.Attr {
	return slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000)
}
