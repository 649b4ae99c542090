package rabbitmq

import (
	"context"
	"log/slog"

	"github.com/Haleralex/jobboard/internal/application/ports"
	"github.com/Haleralex/jobboard/internal/domain/events"
)

// Compile-time check
var _ ports.EventPublisher = (*NoopPublisher)(nil)

// NoopPublisher stands in for Publisher when no broker is configured.
// Publish always succeeds and performs no I/O.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a publisher that drops every event.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger.With("component", "rabbitmq_publisher")}
}

// Publish logs the event at debug level and returns nil.
func (p *NoopPublisher) Publish(ctx context.Context, event *events.ApplicationSubmitted) error {
	messagesPublishedTotal.WithLabelValues("skipped").Inc()
	if event == nil {
		return nil
	}
	p.logger.DebugContext(ctx, "RabbitMQ not configured, message NOT sent",
		"message_id", event.MessageID,
		"job_id", event.JobID,
		"application_id", event.ApplicationID,
	)
	return nil
}

// NewEventPublisher picks the publisher once at startup:
// a real one when the connection has a host, the no-op one otherwise.
func NewEventPublisher(conn *Connection, logger *slog.Logger) ports.EventPublisher {
	if conn == nil || !conn.Enabled() {
		return NewNoopPublisher(logger)
	}
	return NewPublisher(conn, logger)
}
