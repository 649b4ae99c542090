// Package container собирает процесс API или worker'а из конфигурации:
// БД, брокер, уведомления, use cases и HTTP сервер.
//
// Initialize поднимает компоненты по порядку, Run запускает фоновые
// процессы роли, Shutdown закрывает всё в обратном порядке.
package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Haleralex/jobboard/internal/adapters/http"
	"github.com/Haleralex/jobboard/internal/adapters/http/handlers"
	"github.com/Haleralex/jobboard/internal/adapters/http/middleware"
	"github.com/Haleralex/jobboard/internal/adapters/messaging"
	"github.com/Haleralex/jobboard/internal/application/ports"
	"github.com/Haleralex/jobboard/internal/application/usecases/application"
	"github.com/Haleralex/jobboard/internal/application/usecases/job"
	"github.com/Haleralex/jobboard/internal/config"
	"github.com/Haleralex/jobboard/internal/infrastructure/messaging/rabbitmq"
	"github.com/Haleralex/jobboard/internal/infrastructure/notify"
	"github.com/Haleralex/jobboard/internal/infrastructure/persistence/postgres"
	"github.com/Haleralex/jobboard/internal/infrastructure/telemetry"
	"github.com/Haleralex/jobboard/internal/pkg/logger"
)

// ============================================
// Roles
// ============================================

// Role определяет, какие части приложения запускаются в процессе.
type Role int

const (
	// RoleAPI - HTTP API, websocket hub и (если включён) встроенный consumer.
	RoleAPI Role = iota
	// RoleWorker - только consumer очереди откликов.
	RoleWorker
)

func (r Role) String() string {
	if r == RoleWorker {
		return "worker"
	}
	return "api"
}

// ============================================
// Container
// ============================================

// Container владеет всеми зависимостями процесса.
type Container struct {
	config *config.Config
	role   Role
	logger *slog.Logger

	telemetry   *telemetry.Provider
	pool        *pgxpool.Pool
	poolMetrics *postgres.PoolCollector
	broker      *rabbitmq.Connection
	probe       *rabbitmq.HealthProbe

	jobRepo ports.JobRepository
	appRepo ports.ApplicationRepository
	uow     ports.UnitOfWork

	// Messaging
	eventPublisher ports.EventPublisher
	deliverySource rabbitmq.DeliverySource
	consumer       *rabbitmq.Consumer

	// Notifications
	hub       *notify.Hub
	notifiers *notify.Set

	// Use Cases
	createJobUC         *job.CreateJobUseCase
	getJobUC            *job.GetJobUseCase
	listJobsUC          *job.ListJobsUseCase
	submitApplicationUC *application.SubmitApplicationUseCase
	listApplicationsUC  *application.ListApplicationsUseCase
	acceptApplicationUC *application.AcceptApplicationUseCase

	// HTTP
	httpServer  *http.Server
	rateLimitDB *redis.Client
}

// New создаёт контейнер API-процесса.
func New(cfg *config.Config) *Container {
	return &Container{
		config: cfg,
		role:   RoleAPI,
	}
}

// ============================================
// Initialization
// ============================================

// initStep - шаг Initialize; ошибка шага прерывает инициализацию.
type initStep struct {
	name string
	run  func(context.Context) error
}

// Initialize поднимает компоненты в порядке зависимостей. Компоненты,
// переданные через ContainerBuilder (pool, publisher), не пересоздаются.
func (c *Container) Initialize(ctx context.Context) error {
	if c.logger == nil {
		c.logger = c.initLogger()
	}
	c.logger.Info("Initializing container", slog.String("role", c.role.String()))

	steps := []initStep{
		{"telemetry", c.initTelemetry},
		{"database", c.initDatabase},
		{"repositories", noErr(c.initRepositories)},
		{"messaging", func(ctx context.Context) error { c.initMessaging(ctx); return nil }},
		{"notifications", noErr(c.initNotifications)},
		{"use cases", noErr(func() error { c.initUseCases(); return nil })},
		{"consumer", noErr(func() error { c.initConsumer(); return nil })},
	}
	if c.role == RoleAPI {
		steps = append(steps, initStep{"http server", noErr(func() error { c.initHTTPServer(); return nil })})
	}

	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		c.logger.Debug("Component initialized", slog.String("component", step.name))
	}

	c.logger.Info("Container initialized")
	return nil
}

// noErr адаптирует шаг без context к initStep.
func noErr(fn func() error) func(context.Context) error {
	return func(context.Context) error { return fn() }
}

// initLogger инициализирует логгер.
func (c *Container) initLogger() *slog.Logger {
	log := logger.New(&logger.Config{
		Level:     c.config.Log.Level,
		Format:    c.config.Log.Format,
		Output:    logger.OutputFromString(c.config.Log.Output),
		AddSource: c.config.Log.AddSource || c.config.App.Debug,

		Service:     c.serviceName(),
		Version:     c.config.App.Version,
		Environment: c.config.App.Environment,
	})
	slog.SetDefault(log)

	return log
}

// initTelemetry настраивает глобальный TracerProvider.
func (c *Container) initTelemetry(ctx context.Context) error {
	provider, err := telemetry.Setup(ctx, c.config.Telemetry, c.config.App, c.logger)
	if err != nil {
		return err
	}
	c.telemetry = provider
	return nil
}

// initDatabase открывает пул (если он не передан снаружи) и
// регистрирует метрики пула.
func (c *Container) initDatabase(ctx context.Context) error {
	if c.pool == nil {
		pool, err := postgres.NewConnectionPool(ctx, c.config.Database, c.logger)
		if err != nil {
			return err
		}
		c.pool = pool
	}

	collector, err := postgres.RegisterPoolCollector(prometheus.DefaultRegisterer, c.pool)
	if err != nil {
		return fmt.Errorf("register pool metrics: %w", err)
	}
	c.poolMetrics = collector
	return nil
}

func (c *Container) initRepositories() error {
	c.jobRepo = postgres.NewJobRepository(c.pool)
	c.appRepo = postgres.NewApplicationRepository(c.pool)
	c.uow = postgres.NewUnitOfWork(c.pool)
	return nil
}

// initMessaging подключается к брокеру.
//
// Без host брокер выключен: публикатор no-op, consumer простаивает.
// Недоступный брокер не мешает старту, переподключение идёт в фоне.
func (c *Container) initMessaging(ctx context.Context) {
	mqCfg := rabbitmq.ConfigFrom(c.config.Messaging.RabbitMQ, c.config.App.IsProduction())
	c.probe = rabbitmq.NewHealthProbe(mqCfg)

	if c.eventPublisher != nil {
		// Внешний publisher (тесты) - брокер не нужен
		return
	}

	c.broker = rabbitmq.NewConnection(mqCfg, c.logger)
	if c.broker.Enabled() {
		if err := c.broker.Connect(ctx); err != nil {
			c.logger.Error("RabbitMQ unavailable at startup, retrying in background", "error", err)
			c.broker.ConnectInBackground()
		}
		c.deliverySource = c.broker
	}

	c.eventPublisher = rabbitmq.NewEventPublisher(c.broker, c.logger)
}

// initNotifications собирает драйверы уведомлений.
// Hub нужен только процессу с websocket endpoint.
func (c *Container) initNotifications() error {
	if c.role == RoleAPI {
		c.hub = notify.NewHub(c.logger)
	}

	set, err := notify.Build(c.config.Notifier, c.hub, c.logger)
	if err != nil {
		return err
	}
	c.notifiers = set
	return nil
}

func (c *Container) initUseCases() {
	notifier := c.notifiers.Notifier

	c.createJobUC = job.NewCreateJobUseCase(c.jobRepo, c.uow, notifier, c.logger)
	c.getJobUC = job.NewGetJobUseCase(c.jobRepo)
	c.listJobsUC = job.NewListJobsUseCase(c.jobRepo)

	c.submitApplicationUC = application.NewSubmitApplicationUseCase(c.jobRepo, c.appRepo, c.eventPublisher, c.logger)
	c.listApplicationsUC = application.NewListApplicationsUseCase(c.jobRepo, c.appRepo)
	c.acceptApplicationUC = application.NewAcceptApplicationUseCase(c.appRepo, c.uow, notifier, c.logger)
	if t := c.config.Notifier.Timeout; t > 0 {
		c.acceptApplicationUC.WithNotifyTimeout(t)
	}
}

// initConsumer создаёт consumer очереди откликов.
func (c *Container) initConsumer() {
	if c.role == RoleAPI && !c.config.Messaging.RabbitMQ.ConsumerEnabled {
		c.logger.Info("In-process consumer disabled")
		return
	}

	handler := messaging.NewApplicationHandler(c.acceptApplicationUC, c.logger)
	mq := c.config.Messaging.RabbitMQ

	c.consumer = rabbitmq.NewConsumer(c.deliverySource, handler, rabbitmq.ConsumerConfig{
		Enabled:  c.deliverySource != nil,
		Queue:    mq.QueueName,
		Prefetch: mq.PrefetchCount,
	}, c.logger)
}

// initHTTPServer собирает роутер и сервер API.
func (c *Container) initHTTPServer() {
	tokenValidator := middleware.JWTValidator(c.config.Auth.JWTSecret, c.config.Auth.JWTIssuer)
	if c.config.Auth.EnableMockAuth {
		tokenValidator = middleware.DevTokenValidator
	}

	routerConfig := &http.RouterConfig{
		Logger:             c.logger,
		ServiceName:        c.serviceName(),
		Version:            c.config.App.Version,
		BuildTime:          c.config.App.BuildTime,
		Environment:        c.config.App.Environment,
		AllowedOrigins:     c.config.CORS.AllowedOrigins,
		CORS:               c.corsConfig(),
		AuthTokenValidator: tokenValidator,
		EmployerRole:       c.config.Auth.EmployerRole,
		RateLimitEnabled:   c.config.RateLimit.Enabled,
		RequestsPerMinute:  c.config.RateLimit.RequestsPerMinute,
		ApplyPerMinute:     c.config.RateLimit.ApplyPerMinute,
	}
	// Nil-указатель в интерфейсе не равен nil
	if c.pool != nil {
		routerConfig.DB = c.pool
	}
	if c.probe != nil {
		routerConfig.Messaging = c.probe
	}
	if c.broker != nil && c.broker.Enabled() {
		routerConfig.Broker = c.broker
	}
	// Счётчики rate limit в Redis, общие для всех API-реплик
	if addr := c.config.RateLimit.RedisAddr; c.config.RateLimit.Enabled && addr != "" {
		c.rateLimitDB = redis.NewClient(&redis.Options{Addr: addr})
		routerConfig.RateLimiter = middleware.NewRedisLimiter(c.rateLimitDB)
	}

	router := http.NewRouterBuilder(routerConfig).
		WithJobUseCases(&http.JobUseCases{
			CreateJob: c.createJobUC,
			GetJob:    c.getJobUC,
			ListJobs:  c.listJobsUC,
		}).
		WithApplicationUseCases(&http.ApplicationUseCases{
			SubmitApplication: c.submitApplicationUC,
			ListApplications:  c.listApplicationsUC,
		}).
		WithNotificationHub(c.hub).
		Build()

	c.httpServer = http.NewServer(http.ServerConfigFrom(c.config.Server, c.logger), router)
}

// corsConfig переносит секцию cors; пустые списки берутся из defaults.
func (c *Container) corsConfig() *middleware.CORSConfig {
	cfg := c.config.CORS
	out := middleware.DefaultCORSConfig()
	if len(cfg.AllowedOrigins) > 0 {
		out.AllowOrigins = cfg.AllowedOrigins
	}
	if len(cfg.AllowedMethods) > 0 {
		out.AllowMethods = cfg.AllowedMethods
	}
	if len(cfg.AllowedHeaders) > 0 {
		out.AllowHeaders = cfg.AllowedHeaders
	}
	if len(cfg.ExposedHeaders) > 0 {
		out.ExposeHeaders = cfg.ExposedHeaders
	}
	if cfg.MaxAge > 0 {
		out.MaxAge = cfg.MaxAge
	}
	out.AllowCredentials = cfg.AllowCredentials
	return out
}

func (c *Container) serviceName() string {
	if c.config.App.Name != "" {
		return c.config.App.Name
	}
	return "jobboard"
}

// ============================================
// Getters
// ============================================

// Config возвращает конфигурацию.
func (c *Container) Config() *config.Config {
	return c.config
}

// Role возвращает роль процесса.
func (c *Container) Role() Role {
	return c.role
}

// Logger возвращает логгер.
func (c *Container) Logger() *slog.Logger {
	return c.logger
}

// Pool возвращает пул соединений к БД.
func (c *Container) Pool() *pgxpool.Pool {
	return c.pool
}

// HTTPServer возвращает HTTP сервер (nil для RoleWorker).
func (c *Container) HTTPServer() *http.Server {
	return c.httpServer
}

// Hub возвращает websocket hub (nil для RoleWorker).
func (c *Container) Hub() *notify.Hub {
	return c.hub
}

// Consumer возвращает consumer очереди (nil, если выключен).
func (c *Container) Consumer() *rabbitmq.Consumer {
	return c.consumer
}

// MessagingProbe возвращает health probe брокера.
func (c *Container) MessagingProbe() handlers.MessagingProbe {
	return c.probe
}

// EventPublisher возвращает publisher событий.
func (c *Container) EventPublisher() ports.EventPublisher {
	return c.eventPublisher
}

// ============================================
// Repository Getters
// ============================================

// JobRepository возвращает репозиторий вакансий.
func (c *Container) JobRepository() ports.JobRepository {
	return c.jobRepo
}

// ApplicationRepository возвращает репозиторий откликов.
func (c *Container) ApplicationRepository() ports.ApplicationRepository {
	return c.appRepo
}

// UnitOfWork возвращает Unit of Work.
func (c *Container) UnitOfWork() ports.UnitOfWork {
	return c.uow
}

// ============================================
// Use Case Getters
// ============================================

// CreateJobUseCase возвращает use case создания вакансии.
func (c *Container) CreateJobUseCase() *job.CreateJobUseCase {
	return c.createJobUC
}

// SubmitApplicationUseCase возвращает use case отправки отклика.
func (c *Container) SubmitApplicationUseCase() *application.SubmitApplicationUseCase {
	return c.submitApplicationUC
}

// AcceptApplicationUseCase возвращает use case приёма отклика из очереди.
func (c *Container) AcceptApplicationUseCase() *application.AcceptApplicationUseCase {
	return c.acceptApplicationUC
}

// ============================================
// Run
// ============================================

// Run запускает процессы роли и блокируется до отмены ctx
// или первой ошибки одного из них.
func (c *Container) Run(ctx context.Context) error {
	attrs := []any{
		slog.String("role", c.role.String()),
		slog.String("version", c.config.App.Version),
		slog.String("environment", c.config.App.Environment),
	}
	if c.httpServer != nil {
		attrs = append(attrs, slog.String("address", c.httpServer.Addr()))
	}
	c.logger.Info("Starting JobBoard", attrs...)

	g, gctx := errgroup.WithContext(ctx)

	if c.httpServer != nil {
		g.Go(func() error {
			return c.httpServer.Run(gctx)
		})
	}

	if c.consumer != nil {
		g.Go(func() error {
			return c.consumer.Run(gctx)
		})
	}

	if c.notifiers != nil {
		g.Go(func() error {
			return c.notifiers.RunRelays(gctx)
		})
	}

	return g.Wait()
}

// ============================================
// Shutdown
// ============================================

// Shutdown закрывает компоненты: входящий трафик, незавершённые
// уведомления, внешние шины, брокер, БД, трейсинг. Ошибки отдельных
// шагов не прерывают остальные и возвращаются вместе.
func (c *Container) Shutdown(ctx context.Context) error {
	log := c.logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("Shutting down container")

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"http server", func(ctx context.Context) error {
			if c.httpServer == nil {
				return nil
			}
			return c.httpServer.Shutdown(ctx)
		}},
		{"rate limit store", func(context.Context) error {
			if c.rateLimitDB == nil {
				return nil
			}
			return c.rateLimitDB.Close()
		}},
		{"pending notifications", func(context.Context) error {
			if c.acceptApplicationUC != nil {
				c.acceptApplicationUC.Wait()
			}
			return nil
		}},
		{"notifiers", func(context.Context) error {
			var err error
			if c.notifiers != nil {
				err = c.notifiers.Close()
			}
			if c.hub != nil {
				c.hub.Close()
			}
			return err
		}},
		{"publisher", func(context.Context) error {
			if closer, ok := c.eventPublisher.(io.Closer); ok {
				return closer.Close()
			}
			return nil
		}},
		{"broker", func(context.Context) error {
			if c.broker == nil {
				return nil
			}
			return c.broker.Close()
		}},
		{"database", func(ctx context.Context) error {
			if c.poolMetrics != nil {
				prometheus.DefaultRegisterer.Unregister(c.poolMetrics)
			}
			if c.pool == nil {
				return nil
			}
			// pool.Close ждёт возврата всех соединений
			done := make(chan struct{})
			go func() {
				c.pool.Close()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				log.Warn("Database close timed out")
				return nil
			}
		}},
		{"telemetry", func(ctx context.Context) error {
			if c.telemetry == nil {
				return nil
			}
			return c.telemetry.Shutdown(ctx)
		}},
	}

	var errs []error
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown errors: %w", err)
	}

	log.Info("Container shutdown complete")
	return nil
}

// ============================================
// Builder
// ============================================

// ContainerBuilder подставляет готовые компоненты (тесты, worker):
// переданные pool и publisher Initialize не пересоздаёт.
type ContainerBuilder struct {
	cfg            *config.Config
	role           Role
	logger         *slog.Logger
	pool           *pgxpool.Pool
	eventPublisher ports.EventPublisher
	deliverySource rabbitmq.DeliverySource
}

// NewBuilder создаёт новый builder.
func NewBuilder(cfg *config.Config) *ContainerBuilder {
	return &ContainerBuilder{
		cfg: cfg,
	}
}

// WithRole задаёт роль процесса.
func (b *ContainerBuilder) WithRole(role Role) *ContainerBuilder {
	b.role = role
	return b
}

// WithLogger устанавливает кастомный логгер.
func (b *ContainerBuilder) WithLogger(logger *slog.Logger) *ContainerBuilder {
	b.logger = logger
	return b
}

// WithPool устанавливает готовый пул соединений.
func (b *ContainerBuilder) WithPool(pool *pgxpool.Pool) *ContainerBuilder {
	b.pool = pool
	return b
}

// WithEventPublisher устанавливает кастомный event publisher.
// Подключение к брокеру при этом не создаётся.
func (b *ContainerBuilder) WithEventPublisher(ep ports.EventPublisher) *ContainerBuilder {
	b.eventPublisher = ep
	return b
}

// WithDeliverySource устанавливает источник сообщений для consumer.
func (b *ContainerBuilder) WithDeliverySource(source rabbitmq.DeliverySource) *ContainerBuilder {
	b.deliverySource = source
	return b
}

// Build создаёт и инициализирует контейнер.
func (b *ContainerBuilder) Build(ctx context.Context) (*Container, error) {
	c := New(b.cfg)
	c.role = b.role
	c.logger = b.logger
	c.pool = b.pool
	c.eventPublisher = b.eventPublisher
	c.deliverySource = b.deliverySource

	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}
	return c, nil
}
