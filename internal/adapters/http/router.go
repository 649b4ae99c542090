package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Haleralex/jobboard/internal/adapters/http/common"
	"github.com/Haleralex/jobboard/internal/adapters/http/handlers"
	"github.com/Haleralex/jobboard/internal/adapters/http/middleware"
	"github.com/Haleralex/jobboard/internal/infrastructure/notify"
)

// RouterConfig - зависимости и настройки роутера API.
type RouterConfig struct {
	Logger *slog.Logger
	// ServiceName - имя сервиса в spans otelgin
	ServiceName string
	// DB для readiness (обычно *pgxpool.Pool), может быть nil
	DB handlers.DatabasePinger
	// Messaging - probe брокера, может быть nil
	Messaging handlers.MessagingProbe
	// Broker - состояние соединения для /health/detailed, может быть nil
	Broker interface{ IsConnected() bool }
	Version     string
	BuildTime   string
	Environment string
	// AllowedOrigins для CORS и websocket (production)
	AllowedOrigins []string
	// CORS - явная конфигурация; nil = выбор по Environment
	CORS *middleware.CORSConfig
	// AuthTokenValidator проверяет bearer токены работодателей; nil = всё 401
	AuthTokenValidator middleware.TokenValidator
	// EmployerRole - роль, которой разрешён POST /jobs
	EmployerRole string
	// RateLimitEnabled включает глобальный и apply rate limit
	RateLimitEnabled bool
	// RequestsPerMinute - глобальный лимит на IP
	RequestsPerMinute int
	// ApplyPerMinute - лимит откликов на IP и вакансию
	ApplyPerMinute int
	// RateLimiter - хранилище счётчиков; nil = in-memory
	RateLimiter middleware.Limiter
}

// DefaultRouterConfig - локальная конфигурация с dev-токенами.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		Logger:             slog.Default(),
		ServiceName:        "jobboard",
		Version:            "dev",
		BuildTime:          "unknown",
		Environment:        "development",
		AllowedOrigins:     []string{"*"},
		AuthTokenValidator: middleware.DevTokenValidator,
		EmployerRole:       middleware.RoleEmployer,
		RateLimitEnabled:   true,
		RequestsPerMinute:  100,
		ApplyPerMinute:     20,
	}
}

// JobUseCases - provider для use cases вакансий.
type JobUseCases struct {
	CreateJob handlers.CreateJobUseCase
	GetJob    handlers.GetJobUseCase
	ListJobs  handlers.ListJobsUseCase
}

// ApplicationUseCases - provider для use cases откликов.
type ApplicationUseCases struct {
	SubmitApplication handlers.SubmitApplicationUseCase
	ListApplications  handlers.ListApplicationsUseCase
}

// RouterBuilder собирает gin.Engine. Маршруты вакансий, откликов и
// websocket регистрируются, только если переданы их зависимости.
type RouterBuilder struct {
	config       *RouterConfig
	jobs         *JobUseCases
	applications *ApplicationUseCases
	hub          *notify.Hub
}

// NewRouterBuilder создаёт builder; nil config = DefaultRouterConfig.
func NewRouterBuilder(config *RouterConfig) *RouterBuilder {
	if config == nil {
		config = DefaultRouterConfig()
	}
	return &RouterBuilder{config: config}
}

// WithJobUseCases добавляет use cases вакансий.
func (b *RouterBuilder) WithJobUseCases(useCases *JobUseCases) *RouterBuilder {
	b.jobs = useCases
	return b
}

// WithApplicationUseCases добавляет use cases откликов.
func (b *RouterBuilder) WithApplicationUseCases(useCases *ApplicationUseCases) *RouterBuilder {
	b.applications = useCases
	return b
}

// WithNotificationHub включает /ws/notifications.
func (b *RouterBuilder) WithNotificationHub(hub *notify.Hub) *RouterBuilder {
	b.hub = hub
	return b
}

// Build собирает роутер: глобальные middleware, служебные маршруты
// (/metrics, health, websocket) и /api/v1.
func (b *RouterBuilder) Build() *gin.Engine {
	if b.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers.SetupValidator()

	router := gin.New()
	b.useGlobalMiddleware(router)
	b.registerOperational(router)
	b.registerAPI(router.Group("/api/v1"))

	router.NoRoute(func(c *gin.Context) {
		common.Error(c, http.StatusNotFound, &common.APIError{
			Code:    common.ErrCodeNotFound,
			Message: "Endpoint not found",
			Details: map[string]any{"method": c.Request.Method, "path": c.Request.URL.Path},
		})
	})
	return router
}

// useGlobalMiddleware подключает middleware в порядке выполнения.
// otelgin стоит до RequestID, чтобы trace_id попал в контекст логов.
func (b *RouterBuilder) useGlobalMiddleware(router *gin.Engine) {
	cfg := b.config

	router.Use(middleware.Recovery(&middleware.RecoveryConfig{
		Logger:           cfg.Logger,
		EnableStackTrace: cfg.Environment != "production",
	}))

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "jobboard"
	}
	router.Use(otelgin.Middleware(serviceName, otelgin.WithFilter(func(r *http.Request) bool {
		return r.URL.Path != "/metrics"
	})))

	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(b.corsConfig()))
	router.Use(middleware.Logging(&middleware.LoggingConfig{
		Logger:        cfg.Logger,
		SkipPaths:     []string{"/live", "/ready", "/metrics"},
		SkipPrefixes:  []string{"/health"},
		SlowThreshold: time.Second,
	}))

	if cfg.RateLimitEnabled {
		rl := middleware.DefaultRateLimitConfig()
		rl.Limiter = cfg.RateLimiter
		rl.Logger = cfg.Logger
		if cfg.RequestsPerMinute > 0 {
			rl.Limit = cfg.RequestsPerMinute
		}
		router.Use(middleware.RateLimit(rl))
	}

	router.Use(middleware.Metrics())
}

func (b *RouterBuilder) corsConfig() *middleware.CORSConfig {
	switch {
	case b.config.CORS != nil:
		return b.config.CORS
	case b.config.Environment == "production":
		return middleware.ProductionCORSConfig(b.config.AllowedOrigins)
	default:
		return middleware.DefaultCORSConfig()
	}
}

// registerOperational - маршруты без аутентификации: метрики, probes, websocket.
func (b *RouterBuilder) registerOperational(router *gin.Engine) {
	cfg := b.config

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	health := handlers.NewHealthHandler(cfg.DB, cfg.Messaging, cfg.Version, cfg.BuildTime)
	if cfg.Broker != nil {
		health.WithBroker(cfg.Broker)
	}
	health.RegisterRoutes(router)

	if b.hub != nil {
		handlers.NewNotificationsHandler(b.hub, cfg.AllowedOrigins, cfg.Logger).RegisterRoutes(router)
	}
}

// registerAPI - /api/v1. Создание вакансии требует роль работодателя,
// отклик ограничен отдельным rate limit на IP и вакансию.
func (b *RouterBuilder) registerAPI(v1 *gin.RouterGroup) {
	cfg := b.config

	if b.jobs != nil {
		employerRole := cfg.EmployerRole
		if employerRole == "" {
			employerRole = middleware.RoleEmployer
		}
		validator := cfg.AuthTokenValidator
		if validator == nil {
			validator = func(string) (*middleware.AuthClaims, error) {
				return nil, errors.New("auth is not configured")
			}
		}
		handlers.NewJobHandler(b.jobs.CreateJob, b.jobs.GetJob, b.jobs.ListJobs).RegisterRoutes(v1,
			middleware.Auth(&middleware.AuthConfig{TokenValidator: validator}),
			middleware.RequireRole(employerRole),
		)
	}

	if b.applications != nil {
		var applyMiddleware []gin.HandlerFunc
		if cfg.RateLimitEnabled {
			applyMiddleware = append(applyMiddleware, middleware.ApplyRateLimit(cfg.ApplyPerMinute, cfg.RateLimiter))
		}
		handlers.NewApplicationHandler(b.applications.SubmitApplication, b.applications.ListApplications).
			RegisterRoutes(v1, applyMiddleware...)
	}
}
