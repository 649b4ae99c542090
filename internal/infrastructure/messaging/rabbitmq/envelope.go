package rabbitmq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Envelope is the transport view of a single delivery.
// It lives only for the duration of one handler call and is never persisted.
type Envelope struct {
	ContentType string
	Persistent  bool
	DeliveryTag uint64
	MessageID   string
	Type        string
	Redelivered bool
	Headers     amqp.Table
	Body        []byte
}

// NewEnvelope copies transport metadata out of an AMQP delivery.
func NewEnvelope(d amqp.Delivery) Envelope {
	return Envelope{
		ContentType: d.ContentType,
		Persistent:  d.DeliveryMode == amqp.Persistent,
		DeliveryTag: d.DeliveryTag,
		MessageID:   d.MessageId,
		Type:        d.Type,
		Redelivered: d.Redelivered,
		Headers:     d.Headers,
		Body:        d.Body,
	}
}

// Decision is the acknowledgement a handler asks for.
type Decision int

const (
	// Ack confirms the delivery after it was handled (persisted or duplicate).
	Ack Decision = iota
	// Drop acknowledges a delivery that can never be handled.
	Drop
	// Requeue rejects the delivery so the broker redelivers it.
	Requeue
)

func (d Decision) String() string {
	switch d {
	case Ack:
		return "ack"
	case Drop:
		return "drop"
	case Requeue:
		return "requeue"
	default:
		return "unknown"
	}
}

// Handler turns one delivery into an acknowledgement decision.
// It runs synchronously; the consumer acknowledges only after it returns.
type Handler interface {
	Handle(ctx context.Context, env Envelope) Decision
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, env Envelope) Decision

// Handle calls f(ctx, env).
func (f HandlerFunc) Handle(ctx context.Context, env Envelope) Decision {
	return f(ctx, env)
}

// Drainer is implemented by handlers that start background work
// which must finish before the process exits.
type Drainer interface {
	Wait()
}
