package rabbitmq_test

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Haleralex/jobboard/internal/config"
	domainerrors "github.com/Haleralex/jobboard/internal/domain/errors"
	"github.com/Haleralex/jobboard/internal/domain/events"
	"github.com/Haleralex/jobboard/internal/infrastructure/messaging/rabbitmq"
	"github.com/Haleralex/jobboard/internal/infrastructure/messaging/rabbitmq/rabbitmqtest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEvent(jobID int64, email string) *events.ApplicationSubmitted {
	return events.NewApplicationSubmitted(
		100+jobID,
		jobID,
		"Ada Lovelace",
		email,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	)
}

// ============================================
// Config
// ============================================

func TestConfigFrom_Defaults(t *testing.T) {
	cfg := rabbitmq.ConfigFrom(config.RabbitMQConfig{Host: "  mq.internal  "}, false)

	assert.True(t, cfg.Enabled())
	assert.Equal(t, "mq.internal", cfg.Host)
	assert.Equal(t, rabbitmq.DefaultPort, cfg.Port)
	assert.Equal(t, "/", cfg.VirtualHost)
	assert.Equal(t, "job_applications", cfg.QueueName)
	assert.Equal(t, 10, cfg.PrefetchCount)
	assert.Equal(t, 30*time.Second, cfg.Heartbeat)
}

func TestConfig_URL(t *testing.T) {
	tests := []struct {
		name       string
		cfg        rabbitmq.Config
		wantPrefix string
		wantPart   string
	}{
		{
			name:       "tls",
			cfg:        rabbitmq.Config{Host: "mq.example.com", Port: 5671, Username: "svc", Password: "pw", VirtualHost: "/", UseTLS: true},
			wantPrefix: "amqps://",
			wantPart:   "svc:pw@mq.example.com",
		},
		{
			name:       "plain custom port",
			cfg:        rabbitmq.Config{Host: "localhost", Port: 5673, Username: "svc", Password: "pw", VirtualHost: "/"},
			wantPrefix: "amqp://",
			wantPart:   "localhost:5673",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := tt.cfg.URL()
			assert.Contains(t, url, tt.wantPart)
			assert.True(t, len(url) > len(tt.wantPrefix) && url[:len(tt.wantPrefix)] == tt.wantPrefix, url)
		})
	}
}

func TestConfig_AMQPConfig(t *testing.T) {
	cfg := rabbitmq.ConfigFrom(config.RabbitMQConfig{Host: "mq.example.com", UseTLS: true}, false)

	amqpCfg := cfg.AMQPConfig()
	require.NotNil(t, amqpCfg.TLSClientConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), amqpCfg.TLSClientConfig.MinVersion)
	assert.Equal(t, "mq.example.com", amqpCfg.TLSClientConfig.ServerName)
	assert.Equal(t, 30*time.Second, amqpCfg.Heartbeat)

	cfg.UseTLS = false
	assert.Nil(t, cfg.AMQPConfig().TLSClientConfig)
}

// ============================================
// Connection
// ============================================

func TestConnection_NotConfigured(t *testing.T) {
	conn := rabbitmq.NewConnection(rabbitmq.Config{}, discardLogger())

	assert.False(t, conn.Enabled())
	assert.ErrorIs(t, conn.Connect(context.Background()), rabbitmq.ErrNotConfigured)
	assert.False(t, conn.IsConnected())

	_, err := conn.Channel(context.Background())
	assert.ErrorIs(t, err, rabbitmq.ErrNotConnected)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	_, err = conn.Channel(context.Background())
	assert.ErrorIs(t, err, rabbitmq.ErrClosed)
}

func TestConnection_ConnectHonorsContext(t *testing.T) {
	// Reserved TEST-NET address: the dial never completes before the deadline.
	conn := rabbitmq.NewConnection(rabbitmq.Config{Host: "192.0.2.1", Port: 5672}, discardLogger())
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := conn.Connect(ctx)
	require.Error(t, err)
	assert.False(t, conn.IsConnected())
}

func TestConnection_ConnectInBackgroundStopsOnClose(t *testing.T) {
	conn := rabbitmq.NewConnection(rabbitmq.Config{Host: "192.0.2.1", Port: 5672}, discardLogger())
	conn.ConnectInBackground()
	time.Sleep(20 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- conn.Close() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked by the redial loop")
	}
	assert.False(t, conn.IsConnected())

	// A closed connection never starts a new loop.
	conn.ConnectInBackground()
}

// ============================================
// Health probe
// ============================================

func TestHealthProbe_CheckHealth(t *testing.T) {
	tests := []struct {
		name       string
		cfg        rabbitmq.Config
		wantStatus rabbitmq.HealthStatus
		wantReason string
	}{
		{
			name:       "no host",
			cfg:        rabbitmq.Config{},
			wantStatus: rabbitmq.StatusDegraded,
			wantReason: rabbitmq.ReasonNotConfigured,
		},
		{
			name:       "no host in strict mode is still degraded",
			cfg:        rabbitmq.Config{Strict: true},
			wantStatus: rabbitmq.StatusDegraded,
			wantReason: rabbitmq.ReasonNotConfigured,
		},
		{
			name:       "missing password",
			cfg:        rabbitmq.Config{Host: "mq", Username: "svc"},
			wantStatus: rabbitmq.StatusDegraded,
			wantReason: rabbitmq.ReasonIncompleteCredentials,
		},
		{
			name:       "missing username in strict mode",
			cfg:        rabbitmq.Config{Host: "mq", Password: "pw", Strict: true},
			wantStatus: rabbitmq.StatusUnhealthy,
			wantReason: rabbitmq.ReasonIncompleteCredentials,
		},
		{
			name:       "fully configured",
			cfg:        rabbitmq.Config{Host: "mq", Username: "svc", Password: "pw", QueueName: "apps"},
			wantStatus: rabbitmq.StatusHealthy,
			wantReason: "RabbitMQ is configured. Host: mq, Queue: apps",
		},
		{
			name:       "fully configured with default queue",
			cfg:        rabbitmq.Config{Host: "mq", Username: "svc", Password: "pw", Strict: true},
			wantStatus: rabbitmq.StatusHealthy,
			wantReason: "RabbitMQ is configured. Host: mq, Queue: job_applications",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := rabbitmq.NewHealthProbe(tt.cfg).CheckHealth(context.Background())
			assert.Equal(t, tt.wantStatus, report.Status)
			assert.Equal(t, tt.wantReason, report.Reason)
		})
	}
}

// ============================================
// Publishers
// ============================================

func TestNewEventPublisher_SelectsNoopWithoutHost(t *testing.T) {
	conn := rabbitmq.NewConnection(rabbitmq.Config{}, discardLogger())

	pub := rabbitmq.NewEventPublisher(conn, discardLogger())
	assert.IsType(t, &rabbitmq.NoopPublisher{}, pub)
	assert.IsType(t, &rabbitmq.NoopPublisher{}, rabbitmq.NewEventPublisher(nil, discardLogger()))

	conn = rabbitmq.NewConnection(rabbitmq.Config{Host: "mq"}, discardLogger())
	assert.IsType(t, &rabbitmq.Publisher{}, rabbitmq.NewEventPublisher(conn, discardLogger()))
}

func TestNoopPublisher_AlwaysSucceeds(t *testing.T) {
	pub := rabbitmq.NewNoopPublisher(discardLogger())

	assert.NoError(t, pub.Publish(context.Background(), newEvent(7, "a@x.com")))
	assert.NoError(t, pub.Publish(context.Background(), nil))
}

func TestPublisher_Publish(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	pub := rabbitmq.NewChannelPublisher(broker.Opener(), "job_applications", discardLogger())

	event := newEvent(7, "a@x.com")
	event.MessageID = ""

	require.NoError(t, pub.Publish(context.Background(), event))

	published := broker.Published()
	require.Len(t, published, 1)
	msg := published[0]

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Len(t, msg.MessageId, 32)
	assert.Equal(t, event.MessageID, msg.MessageId, "message id is stamped onto the event")
	assert.Equal(t, events.EventTypeApplicationSubmitted, msg.Type)
	assert.False(t, msg.Timestamp.IsZero())

	decoded, err := events.DecodeApplicationSubmitted(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, int64(7), decoded.JobID)
	assert.Equal(t, "a@x.com", decoded.ApplicantEmail)
	assert.Equal(t, msg.MessageId, decoded.MessageID)
}

func TestPublisher_KeepsExistingMessageID(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	pub := rabbitmq.NewChannelPublisher(broker.Opener(), "job_applications", discardLogger())

	event := newEvent(7, "a@x.com")
	event.MessageID = "fixed-id"

	require.NoError(t, pub.Publish(context.Background(), event))
	assert.Equal(t, "fixed-id", broker.Published()[0].MessageId)
}

func TestPublisher_RejectsIncompleteEvent(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	pub := rabbitmq.NewChannelPublisher(broker.Opener(), "job_applications", discardLogger())

	event := newEvent(7, "a@x.com")
	event.ApplicantName = ""

	err := pub.Publish(context.Background(), event)
	require.Error(t, err)
	assert.True(t, domainerrors.IsValidationError(err))
	assert.Empty(t, broker.Published())

	assert.ErrorIs(t, pub.Publish(context.Background(), nil), domainerrors.ErrMalformedEvent)
}

func TestPublisher_FailureIsReturned(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	broker.FailPublish(errors.New("channel/connection is not open"))
	pub := rabbitmq.NewChannelPublisher(broker.Opener(), "job_applications", discardLogger())

	err := pub.Publish(context.Background(), newEvent(7, "a@x.com"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrPublishFailed)
	assert.Contains(t, err.Error(), "channel/connection is not open")
}

type closableChannel struct {
	mu       sync.Mutex
	closed   bool
	messages int
}

func (c *closableChannel) PublishWithContext(context.Context, string, string, bool, bool, amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}
	c.messages++
	return nil
}

func (c *closableChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *closableChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestPublisher_ReopensClosedChannel(t *testing.T) {
	var opened []*closableChannel
	open := func(context.Context) (rabbitmq.PublishChannel, error) {
		ch := &closableChannel{}
		opened = append(opened, ch)
		return ch, nil
	}
	pub := rabbitmq.NewChannelPublisher(open, "job_applications", discardLogger())

	require.NoError(t, pub.Publish(context.Background(), newEvent(1, "a@x.com")))
	require.NoError(t, pub.Publish(context.Background(), newEvent(2, "a@x.com")))
	require.Len(t, opened, 1)

	// Channel dies as it would after a connection loss.
	_ = opened[0].Close()

	require.NoError(t, pub.Publish(context.Background(), newEvent(3, "a@x.com")))
	require.Len(t, opened, 2)
	assert.Equal(t, 1, opened[1].messages)

	require.NoError(t, pub.Close())
	assert.True(t, opened[1].IsClosed())
}

func TestPublisher_OpenFailure(t *testing.T) {
	open := func(context.Context) (rabbitmq.PublishChannel, error) {
		return nil, rabbitmq.ErrNotConnected
	}
	pub := rabbitmq.NewChannelPublisher(open, "job_applications", discardLogger())

	err := pub.Publish(context.Background(), newEvent(7, "a@x.com"))
	assert.ErrorIs(t, err, rabbitmq.ErrNotConnected)
	assert.ErrorIs(t, err, domainerrors.ErrPublishFailed)
}

// ============================================
// Envelope
// ============================================

func TestNewEnvelope(t *testing.T) {
	env := rabbitmq.NewEnvelope(amqp.Delivery{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		DeliveryTag:  42,
		MessageId:    "abc",
		Type:         "ApplicationSubmitted",
		Redelivered:  true,
		Body:         []byte(`{}`),
	})

	assert.Equal(t, "application/json", env.ContentType)
	assert.True(t, env.Persistent)
	assert.Equal(t, uint64(42), env.DeliveryTag)
	assert.Equal(t, "abc", env.MessageID)
	assert.True(t, env.Redelivered)
	assert.Equal(t, []byte(`{}`), env.Body)

	assert.False(t, rabbitmq.NewEnvelope(amqp.Delivery{DeliveryMode: amqp.Transient}).Persistent)
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "ack", rabbitmq.Ack.String())
	assert.Equal(t, "drop", rabbitmq.Drop.String())
	assert.Equal(t, "requeue", rabbitmq.Requeue.String())
	assert.Equal(t, "unknown", rabbitmq.Decision(99).String())
}
