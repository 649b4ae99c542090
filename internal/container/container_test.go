package container

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Haleralex/jobboard/internal/config"
	"github.com/Haleralex/jobboard/internal/infrastructure/messaging/rabbitmq"
	"github.com/Haleralex/jobboard/internal/infrastructure/messaging/rabbitmq/rabbitmqtest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew(t *testing.T) {
	cfg := config.Development()
	c := New(cfg)

	require.NotNil(t, c)
	assert.Equal(t, cfg, c.Config())
	assert.Equal(t, RoleAPI, c.Role())
}

func TestRole_String(t *testing.T) {
	assert.Equal(t, "api", RoleAPI.String())
	assert.Equal(t, "worker", RoleWorker.String())
}

func TestContainer_GettersBeforeInit(t *testing.T) {
	c := New(config.Development())

	assert.Nil(t, c.Logger())
	assert.Nil(t, c.Pool())
	assert.Nil(t, c.HTTPServer())
	assert.Nil(t, c.Hub())
	assert.Nil(t, c.Consumer())
	assert.Nil(t, c.EventPublisher())
	assert.Nil(t, c.JobRepository())
	assert.Nil(t, c.ApplicationRepository())
	assert.Nil(t, c.UnitOfWork())
	assert.Nil(t, c.CreateJobUseCase())
	assert.Nil(t, c.SubmitApplicationUseCase())
	assert.Nil(t, c.AcceptApplicationUseCase())
}

// ============================================
// Logger
// ============================================

func TestContainer_initLogger(t *testing.T) {
	tests := []struct {
		level     string
		format    string
		wantDebug bool
		wantWarn  bool
	}{
		{"debug", "text", true, true},
		{"info", "json", false, true},
		{"warn", "json", false, true},
		{"error", "text", false, false},
		{"unknown", "unknown", false, true},
		{"", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			previous := slog.Default()
			t.Cleanup(func() { slog.SetDefault(previous) })

			cfg := config.Development()
			cfg.Log.Level = tt.level
			cfg.Log.Format = tt.format
			cfg.Log.Output = "stderr"

			log := New(cfg).initLogger()

			require.NotNil(t, log)
			assert.Equal(t, log, slog.Default())
			assert.Equal(t, tt.wantDebug, log.Enabled(context.Background(), slog.LevelDebug))
			assert.Equal(t, tt.wantWarn, log.Enabled(context.Background(), slog.LevelWarn))
		})
	}
}

// ============================================
// Builder
// ============================================

func TestContainerBuilder_Chain(t *testing.T) {
	cfg := config.Development()
	log := discardLogger()
	broker := rabbitmqtest.NewBroker()
	pub := rabbitmq.NewNoopPublisher(log)

	builder := NewBuilder(cfg).
		WithRole(RoleWorker).
		WithLogger(log).
		WithPool(nil).
		WithEventPublisher(pub).
		WithDeliverySource(broker)

	assert.Equal(t, cfg, builder.cfg)
	assert.Equal(t, RoleWorker, builder.role)
	assert.Equal(t, log, builder.logger)
	assert.Nil(t, builder.pool)
	assert.Equal(t, pub, builder.eventPublisher)
	assert.Equal(t, broker, builder.deliverySource)
}

func TestContainerBuilder_Build_WithoutPool(t *testing.T) {
	cfg := config.Development()
	cfg.Database.Host = "invalid-host"
	cfg.Database.Port = 59999

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewBuilder(cfg).
		WithLogger(discardLogger()).
		Build(ctx)

	assert.Error(t, err)
}

func TestContainer_Initialize_NoDB(t *testing.T) {
	cfg := config.Development()
	cfg.Database.Host = "invalid-host-that-does-not-exist"
	cfg.Database.Port = 59999

	c := New(cfg)
	c.logger = discardLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.Initialize(ctx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize database")
}

func TestContainer_Initialize_TelemetryMisconfigured(t *testing.T) {
	cfg := config.Development()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.OTLPEndpoint = ""

	c := New(cfg)
	c.logger = discardLogger()

	err := c.Initialize(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize telemetry")
}

// ============================================
// Messaging wiring
// ============================================

func TestContainer_initMessaging(t *testing.T) {
	t.Run("NoHostUsesNoop", func(t *testing.T) {
		c := New(config.Development())
		c.logger = discardLogger()

		c.initMessaging(context.Background())
		t.Cleanup(func() { _ = c.broker.Close() })

		assert.IsType(t, &rabbitmq.NoopPublisher{}, c.EventPublisher())
		assert.Nil(t, c.deliverySource)
		assert.Equal(t, rabbitmq.StatusDegraded, c.MessagingProbe().CheckHealth(context.Background()).Status)
	})

	t.Run("UnreachableBrokerDoesNotBlockStartup", func(t *testing.T) {
		cfg := config.Development()
		cfg.Messaging.RabbitMQ.Host = "192.0.2.1"
		cfg.Messaging.RabbitMQ.Username = "svc"
		cfg.Messaging.RabbitMQ.Password = "pw"
		c := New(cfg)
		c.logger = discardLogger()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		c.initMessaging(ctx)
		t.Cleanup(func() { _ = c.broker.Close() })

		assert.IsType(t, &rabbitmq.Publisher{}, c.EventPublisher())
		assert.NotNil(t, c.deliverySource)
		assert.False(t, c.broker.IsConnected())
		assert.Equal(t, rabbitmq.StatusHealthy, c.MessagingProbe().CheckHealth(context.Background()).Status)
	})

	t.Run("StrictInProduction", func(t *testing.T) {
		cfg := config.Development()
		cfg.App.Environment = "production"
		cfg.Messaging.RabbitMQ.Host = "mq"
		c := New(cfg)
		c.logger = discardLogger()
		c.eventPublisher = rabbitmq.NewNoopPublisher(c.logger)

		c.initMessaging(context.Background())

		assert.Nil(t, c.broker)
		assert.Equal(t, rabbitmq.StatusUnhealthy, c.MessagingProbe().CheckHealth(context.Background()).Status)
	})
}

func TestContainer_initConsumer(t *testing.T) {
	tests := []struct {
		name         string
		role         Role
		enabled      bool
		wantConsumer bool
	}{
		{"APIWithConsumer", RoleAPI, true, true},
		{"APIWithoutConsumer", RoleAPI, false, false},
		{"WorkerIgnoresFlag", RoleWorker, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Development()
			cfg.Messaging.RabbitMQ.ConsumerEnabled = tt.enabled
			c := New(cfg)
			c.role = tt.role
			c.logger = discardLogger()

			c.initConsumer()

			assert.Equal(t, tt.wantConsumer, c.Consumer() != nil)
		})
	}
}

func TestContainer_initNotifications_WorkerHasNoHub(t *testing.T) {
	c := New(config.Development())
	c.role = RoleWorker
	c.logger = discardLogger()

	require.NoError(t, c.initNotifications())
	t.Cleanup(func() { _ = c.notifiers.Close() })

	assert.Nil(t, c.Hub())
	require.NotNil(t, c.notifiers.Notifier)
}

func TestContainer_Run_NotificationBusDownKeepsConsumer(t *testing.T) {
	cfg := config.Development()
	cfg.Notifier.Drivers = []string{config.NotifierHub, config.NotifierRedis}
	cfg.Notifier.Redis.Addr = "127.0.0.1:1"

	c := New(cfg)
	c.logger = discardLogger()
	require.NoError(t, c.initNotifications())

	broker := rabbitmqtest.NewBroker()
	c.consumer = rabbitmq.NewConsumer(broker,
		rabbitmq.HandlerFunc(func(context.Context, rabbitmq.Envelope) rabbitmq.Decision { return rabbitmq.Ack }),
		rabbitmq.ConsumerConfig{Enabled: true, Prefetch: 1},
		c.logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// relay к Redis уже упал хотя бы раз
	time.Sleep(100 * time.Millisecond)
	broker.Inject([]byte(`{"type":"ApplicationSubmitted"}`))
	require.Eventually(t, func() bool { return broker.Acked() == 1 }, 2*time.Second, 10*time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("Run stopped while the notification bus was down: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.NoError(t, c.Shutdown(context.Background()))
}

func TestContainer_initHTTPServer_RateLimitStore(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		c := New(config.Development())
		c.logger = discardLogger()

		c.initHTTPServer()

		require.NotNil(t, c.HTTPServer())
		assert.Nil(t, c.rateLimitDB)
	})

	t.Run("Redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.Development()
		cfg.RateLimit.RedisAddr = mr.Addr()
		c := New(cfg)
		c.logger = discardLogger()

		c.initHTTPServer()

		require.NotNil(t, c.rateLimitDB)
		assert.NoError(t, c.rateLimitDB.Ping(context.Background()).Err())
		assert.NoError(t, c.Shutdown(context.Background()))
	})

	t.Run("RedisIgnoredWhenDisabled", func(t *testing.T) {
		cfg := config.Test()
		cfg.RateLimit.RedisAddr = "localhost:6379"
		c := New(cfg)
		c.logger = discardLogger()

		c.initHTTPServer()

		assert.Nil(t, c.rateLimitDB)
	})
}

func TestContainer_corsConfig(t *testing.T) {
	cfg := config.Development()
	cfg.CORS = config.CORSConfig{
		AllowedOrigins:   []string{"https://jobs.example.com"},
		AllowCredentials: true,
		MaxAge:           time.Hour,
	}

	cors := New(cfg).corsConfig()

	assert.Equal(t, []string{"https://jobs.example.com"}, cors.AllowOrigins)
	assert.True(t, cors.AllowCredentials)
	assert.Equal(t, time.Hour, cors.MaxAge)
	// Незаданные списки берутся из defaults
	assert.Contains(t, cors.AllowHeaders, "Authorization")
	assert.NotEmpty(t, cors.AllowMethods)
}

// ============================================
// Shutdown
// ============================================

func TestContainer_Shutdown_NilComponents(t *testing.T) {
	c := New(config.Development())
	c.logger = discardLogger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, c.Shutdown(ctx))
}

func TestContainer_Shutdown_BeforeLogger(t *testing.T) {
	c := New(config.Development())

	assert.NoError(t, c.Shutdown(context.Background()))
}
