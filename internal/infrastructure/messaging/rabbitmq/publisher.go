package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Haleralex/jobboard/internal/application/ports"
	domainerrors "github.com/Haleralex/jobboard/internal/domain/errors"
	"github.com/Haleralex/jobboard/internal/domain/events"
)

// ContentTypeJSON is the content type of every published body.
const ContentTypeJSON = "application/json"

// PublishChannel is the part of *amqp.Channel the publisher needs.
type PublishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// ChannelOpener opens a channel with the target queue already declared.
type ChannelOpener func(ctx context.Context) (PublishChannel, error)

// Compile-time check
var _ ports.EventPublisher = (*Publisher)(nil)

// Publisher sends ApplicationSubmitted events to a durable queue through the
// default exchange. Messages are persistent JSON with messageId set.
//
// The channel is opened lazily and reopened when it is found closed, which
// covers the window after a reconnect. There is no retry on failure.
type Publisher struct {
	open   ChannelOpener
	queue  string
	logger *slog.Logger

	mu sync.Mutex
	ch PublishChannel
}

// NewPublisher creates a publisher on top of a broker connection.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	open := func(ctx context.Context) (PublishChannel, error) {
		ch, err := conn.Channel(ctx)
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
	return NewChannelPublisher(open, conn.Config().QueueName, logger)
}

// NewChannelPublisher creates a publisher with a custom channel source.
func NewChannelPublisher(open ChannelOpener, queue string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		open:   open,
		queue:  queue,
		logger: logger.With("component", "rabbitmq_publisher"),
	}
}

// Publish stamps a message id when missing, then sends the event.
// Incomplete events are rejected before any I/O.
func (p *Publisher) Publish(ctx context.Context, event *events.ApplicationSubmitted) error {
	if event == nil {
		return fmt.Errorf("%w: nil event", domainerrors.ErrMalformedEvent)
	}

	messageID := event.EnsureMessageID()
	if err := event.Validate(); err != nil {
		messagesPublishedTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("refusing to publish incomplete event: %w", err)
	}

	body, err := event.Encode()
	if err != nil {
		messagesPublishedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to encode event: %w", err)
	}

	ctx, span := tracer.Start(ctx, "rabbitmq.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", p.queue),
			attribute.String("messaging.message.id", messageID),
			attribute.Int64("jobboard.job_id", event.JobID),
		),
	)
	defer span.End()

	headers := amqp.Table{}
	injectTraceContext(ctx, headers)

	msg := amqp.Publishing{
		Headers:      headers,
		ContentType:  ContentTypeJSON,
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		Type:         event.Type,
		Body:         body,
	}

	if err := p.send(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		messagesPublishedTotal.WithLabelValues("error").Inc()
		p.logger.ErrorContext(ctx, "failed to publish ApplicationSubmitted",
			"message_id", messageID,
			"job_id", event.JobID,
			"queue", p.queue,
			"error", err,
		)
		return errors.Join(domainerrors.ErrPublishFailed, err)
	}

	messagesPublishedTotal.WithLabelValues("ok").Inc()
	p.logger.DebugContext(ctx, "published ApplicationSubmitted",
		"message_id", messageID,
		"job_id", event.JobID,
		"application_id", event.ApplicationID,
		"queue", p.queue,
	)
	return nil
}

// Close releases the cached channel.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		p.ch = nil
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}

func (p *Publisher) send(ctx context.Context, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		ch, err := p.open(ctx)
		if err != nil {
			return fmt.Errorf("failed to open publish channel: %w", err)
		}
		p.ch = ch
	}

	// exchange "" routes by queue name
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		if p.ch.IsClosed() {
			p.ch = nil
		}
		return err
	}
	return nil
}
