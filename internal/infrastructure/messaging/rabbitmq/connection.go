package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrNotConfigured is returned by Connect when no broker host is set.
	ErrNotConfigured = errors.New("rabbitmq: host not configured")
	// ErrNotConnected is returned while the connection is down or reconnecting.
	ErrNotConnected = errors.New("rabbitmq: not connected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("rabbitmq: connection closed")
)

type dialFunc func(url string, cfg amqp.Config) (*amqp.Connection, error)

// Connection owns the single broker connection of a process.
//
// amqp091-go does not recover lost connections, so Connection watches
// NotifyClose and redials with exponential backoff. Channels opened before
// the loss are dead afterwards; holders subscribe to NotifyReconnect and
// open new ones. Messages published during the gap are not guaranteed.
type Connection struct {
	cfg    Config
	logger *slog.Logger
	dial   dialFunc

	mu        sync.RWMutex
	conn      *amqp.Connection
	listeners []chan struct{}
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConnection creates an unconnected handle. Call Connect to dial.
func NewConnection(cfg Config, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		cfg:    cfg.withDefaults(),
		logger: logger.With("component", "rabbitmq"),
		dial:   amqp.DialConfig,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Config returns the effective settings.
func (c *Connection) Config() Config {
	return c.cfg
}

// Enabled reports whether a broker host is configured.
func (c *Connection) Enabled() bool {
	return c.cfg.Enabled()
}

// IsConnected reports whether a live connection is held right now.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// Connect dials the broker and starts watching the connection.
// With no host configured it returns ErrNotConfigured and does no I/O.
func (c *Connection) Connect(ctx context.Context) error {
	if !c.cfg.Enabled() {
		c.logger.Info("RabbitMQ host not configured, messaging disabled")
		return ErrNotConfigured
	}

	conn, err := c.dialContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ at %s:%d: %w", c.cfg.Host, c.cfg.Port, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()

	c.watch(conn)

	c.logger.Info("connected to RabbitMQ",
		"host", c.cfg.Host,
		"port", c.cfg.Port,
		"vhost", c.cfg.VirtualHost,
		"tls", c.cfg.UseTLS,
		"queue", c.cfg.QueueName,
	)
	return nil
}

// ConnectInBackground starts the redial loop without blocking. Use it when
// the broker is unreachable at startup: the process keeps serving and
// NotifyReconnect fires once the broker comes up.
func (c *Connection) ConnectInBackground() {
	if !c.cfg.Enabled() || c.isClosed() {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.reconnect()
	}()
}

// Channel opens a new channel with the configured queue declared.
func (c *Connection) Channel(ctx context.Context) (*amqp.Channel, error) {
	return c.openChannel(ctx, c.cfg.QueueName)
}

// Subscribe implements DeliverySource. It opens a dedicated channel,
// applies prefetch and starts a consumer with manual acknowledgement.
func (c *Connection) Subscribe(ctx context.Context, queue string, prefetch int) (Subscription, error) {
	ch, err := c.openChannel(ctx, queue)
	if err != nil {
		return nil, err
	}

	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to set prefetch %d: %w", prefetch, err)
	}

	tag := "jobboard-" + uuid.NewString()
	deliveries, err := ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to consume from %s: %w", queue, err)
	}

	return &channelSubscription{ch: ch, tag: tag, deliveries: deliveries}, nil
}

// NotifyReconnect returns a channel that receives a value after every
// successful redial. Sends never block; a slow reader sees one pending signal.
func (c *Connection) NotifyReconnect() <-chan struct{} {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	c.listeners = append(c.listeners, ch)
	c.mu.Unlock()
	return ch
}

// Close stops reconnection and closes the connection. It is idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.cancel()

	var err error
	if conn != nil && !conn.IsClosed() {
		err = conn.Close()
	}
	c.wg.Wait()

	c.logger.Info("RabbitMQ connection closed")
	return err
}

func (c *Connection) openChannel(ctx context.Context, queue string) (*amqp.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	conn, closed := c.conn, c.closed
	c.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if conn == nil || conn.IsClosed() {
		return nil, ErrNotConnected
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// durable, not auto-deleted, not exclusive
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	return ch, nil
}

func (c *Connection) dialContext(ctx context.Context) (*amqp.Connection, error) {
	type result struct {
		conn *amqp.Connection
		err  error
	}

	done := make(chan result, 1)
	go func() {
		conn, err := c.dial(c.cfg.URL(), c.cfg.AMQPConfig())
		done <- result{conn: conn, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-done:
		return r.conn, r.err
	}
}

func (c *Connection) watch(conn *amqp.Connection) {
	closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		select {
		case <-c.ctx.Done():
			return
		case amqpErr, ok := <-closeCh:
			if c.isClosed() {
				return
			}
			if ok && amqpErr != nil {
				c.logger.Warn("RabbitMQ connection lost, reconnecting",
					"code", amqpErr.Code,
					"reason", amqpErr.Reason,
					"server", amqpErr.Server,
				)
			} else {
				c.logger.Warn("RabbitMQ connection closed unexpectedly, reconnecting")
			}
			c.reconnect()
		}
	}()
}

func (c *Connection) reconnect() {
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = c.cfg.ReconnectMaxInterval
	b.MaxElapsedTime = 0

	var conn *amqp.Connection
	operation := func() error {
		var err error
		conn, err = c.dialContext(c.ctx)
		if c.ctx.Err() != nil {
			return backoff.Permanent(c.ctx.Err())
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		c.logger.Warn("RabbitMQ reconnect attempt failed", "error", err, "retry_in", next)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, c.ctx), notify); err != nil {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	listeners := append([]chan struct{}(nil), c.listeners...)
	c.mu.Unlock()

	brokerReconnectsTotal.Inc()
	c.logger.Info("reconnected to RabbitMQ", "host", c.cfg.Host)

	for _, l := range listeners {
		select {
		case l <- struct{}{}:
		default:
		}
	}

	c.watch(conn)
}

func (c *Connection) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// channelSubscription is a consumer bound to its own AMQP channel.
type channelSubscription struct {
	ch         *amqp.Channel
	tag        string
	deliveries <-chan amqp.Delivery
}

func (s *channelSubscription) Deliveries() <-chan amqp.Delivery {
	return s.deliveries
}

// Cancel stops new deliveries. The library closes Deliveries once the
// broker confirms the cancel.
func (s *channelSubscription) Cancel() error {
	if s.ch.IsClosed() {
		return nil
	}
	return s.ch.Cancel(s.tag, false)
}

func (s *channelSubscription) Close() error {
	if s.ch.IsClosed() {
		return nil
	}
	return s.ch.Close()
}
