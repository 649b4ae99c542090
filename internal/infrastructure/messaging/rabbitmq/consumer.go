package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Haleralex/jobboard/internal/pkg/logger"
)

// bodyPreviewLimit bounds how much of a delivery body is logged.
const bodyPreviewLimit = 500

// Subscription is one attached queue consumer.
type Subscription interface {
	// Deliveries is closed when the consumer is cancelled or its channel dies.
	Deliveries() <-chan amqp.Delivery
	// Cancel stops new deliveries without closing the channel.
	Cancel() error
	// Close closes the underlying channel. Unacknowledged deliveries return to the queue.
	Close() error
}

// DeliverySource opens subscriptions. Connection is the production source.
type DeliverySource interface {
	Subscribe(ctx context.Context, queue string, prefetch int) (Subscription, error)
	NotifyReconnect() <-chan struct{}
}

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	// Enabled is false when no broker host is configured.
	Enabled  bool
	Queue    string
	Prefetch int
	// RetryInterval bounds the wait between failed subscription attempts.
	RetryInterval time.Duration
}

// Consumer drains the queue and acknowledges each delivery only after the
// handler has decided its fate.
//
// Prefetch workers read the subscription, so the broker never has more
// unacknowledged deliveries in flight than there are idle workers.
// A failing message never stops the subscription.
type Consumer struct {
	source  DeliverySource
	handler Handler
	cfg     ConsumerConfig
	logger  *slog.Logger
}

// NewConsumer creates a consumer. source may be nil when cfg.Enabled is false.
func NewConsumer(source DeliverySource, handler Handler, cfg ConsumerConfig, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = DefaultPrefetchCount
	}
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueueName
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	return &Consumer{
		source:  source,
		handler: handler,
		cfg:     cfg,
		logger:  log.With("component", "rabbitmq_consumer", "queue", cfg.Queue),
	}
}

// NewConnectionConsumer wires a consumer to a broker connection.
func NewConnectionConsumer(conn *Connection, handler Handler, log *slog.Logger) *Consumer {
	cfg := conn.Config()
	return NewConsumer(conn, handler, ConsumerConfig{
		Enabled:  cfg.Enabled(),
		Queue:    cfg.QueueName,
		Prefetch: cfg.PrefetchCount,
	}, log)
}

// Run consumes until ctx is cancelled and returns nil on a clean shutdown.
//
// Shutdown order: cancel the consumer tag, let workers finish their
// in-flight deliveries and acknowledgements, wait for background work
// started by the handler, close the channel.
func (c *Consumer) Run(ctx context.Context) error {
	if !c.cfg.Enabled || c.source == nil {
		c.logger.Info("RabbitMQ not configured, consumer idle")
		<-ctx.Done()
		return nil
	}

	reconnected := c.source.NotifyReconnect()

	for {
		sub, err := c.source.Subscribe(ctx, c.cfg.Queue, c.cfg.Prefetch)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to subscribe, waiting for broker", "error", err)
			if !c.waitForBroker(ctx, reconnected) {
				return nil
			}
			continue
		}

		c.logger.Info("consumer started", "prefetch", c.cfg.Prefetch)
		c.consume(ctx, sub)

		if ctx.Err() != nil {
			c.drainHandler()
			c.logger.Info("consumer stopped")
			return nil
		}

		c.logger.Warn("subscription closed by broker, waiting for reconnect")
		if !c.waitForBroker(ctx, reconnected) {
			c.drainHandler()
			return nil
		}
	}
}

// consume blocks until the subscription ends or ctx is cancelled.
func (c *Consumer) consume(ctx context.Context, sub Subscription) {
	consumersActive.Inc()
	defer consumersActive.Dec()

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Prefetch; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for d := range sub.Deliveries() {
				c.process(ctx, worker, d)
			}
		}(i)
	}

	stopped := make(chan struct{})
	go func() {
		wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		if err := sub.Cancel(); err != nil {
			c.logger.Warn("failed to cancel consumer", "error", err)
		}
		<-stopped
	}

	if err := sub.Close(); err != nil {
		c.logger.Debug("failed to close consumer channel", "error", err)
	}
}

// process handles one delivery and acknowledges it on the same channel.
// Handlers run detached from shutdown so in-flight work completes.
func (c *Consumer) process(parent context.Context, worker int, d amqp.Delivery) {
	start := time.Now()
	env := NewEnvelope(d)

	ctx := extractTraceContext(context.WithoutCancel(parent), d.Headers)
	ctx, span := tracer.Start(ctx, "rabbitmq.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.source.name", c.cfg.Queue),
			attribute.String("messaging.message.id", env.MessageID),
			attribute.Bool("messaging.rabbitmq.redelivered", env.Redelivered),
		),
	)
	defer span.End()

	ctx = logger.WithMessageID(ctx, env.MessageID)

	c.logger.DebugContext(ctx, "delivery received",
		"worker", worker,
		"delivery_tag", env.DeliveryTag,
		"redelivered", env.Redelivered,
		"body", logger.Truncate(string(env.Body), bodyPreviewLimit),
	)

	decision := c.handle(ctx, env)
	span.SetAttributes(attribute.String("jobboard.decision", decision.String()))

	var ackErr error
	switch decision {
	case Requeue:
		ackErr = d.Nack(false, true)
	default:
		ackErr = d.Ack(false)
	}

	messagesConsumedTotal.WithLabelValues(decision.String()).Inc()
	messageProcessingDuration.Observe(time.Since(start).Seconds())

	if ackErr != nil {
		span.RecordError(ackErr)
		c.logger.ErrorContext(ctx, "failed to acknowledge delivery",
			"delivery_tag", env.DeliveryTag,
			"decision", decision.String(),
			"error", ackErr,
		)
	}
}

// handle runs the handler and turns a panic into a decision.
// A delivery that panics twice is dropped so it cannot loop forever.
func (c *Consumer) handle(ctx context.Context, env Envelope) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			decision = Requeue
			if env.Redelivered {
				decision = Drop
			}
			c.logger.ErrorContext(ctx, "handler panicked",
				"panic", fmt.Sprint(r),
				"delivery_tag", env.DeliveryTag,
				"decision", decision.String(),
			)
		}
	}()
	return c.handler.Handle(ctx, env)
}

func (c *Consumer) drainHandler() {
	if d, ok := c.handler.(Drainer); ok {
		d.Wait()
	}
}

// waitForBroker returns false when ctx is cancelled first.
func (c *Consumer) waitForBroker(ctx context.Context, reconnected <-chan struct{}) bool {
	timer := time.NewTimer(c.cfg.RetryInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-reconnected:
		return true
	case <-timer.C:
		return true
	}
}
