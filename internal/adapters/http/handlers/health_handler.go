package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/Haleralex/jobboard/internal/infrastructure/messaging/rabbitmq"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"

	dbPingTimeout = 2 * time.Second
)

// DatabasePinger - проверка доступности БД (реализуется *pgxpool.Pool).
type DatabasePinger interface {
	Ping(ctx context.Context) error
}

// MessagingProbe - проверка конфигурации брокера.
type MessagingProbe interface {
	CheckHealth(ctx context.Context) rabbitmq.HealthReport
}

type poolStatter interface {
	Stat() *pgxpool.Stat
}

type brokerStatus interface {
	IsConnected() bool
}

// HealthHandler отдаёт probes для оркестратора.
//
// Брокер влияет на готовность только в strict режиме: без брокера
// отклики принимаются, но не сохраняются, и сервис остаётся ready.
type HealthHandler struct {
	db        DatabasePinger
	messaging MessagingProbe
	broker    brokerStatus
	version   string
	buildTime string
	startTime time.Time
}

// NewHealthHandler создаёт HealthHandler. db и messaging могут быть nil.
func NewHealthHandler(db DatabasePinger, messaging MessagingProbe, version, buildTime string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		messaging: messaging,
		version:   version,
		buildTime: buildTime,
		startTime: time.Now(),
	}
}

// WithBroker добавляет в /health/detailed состояние соединения с брокером.
func (h *HealthHandler) WithBroker(broker interface{ IsConnected() bool }) *HealthHandler {
	h.broker = broker
	return h
}

// HealthResponse - ответ /health и /health/detailed.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	BuildTime string            `json:"build_time"`
	Uptime    string            `json:"uptime"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ReadinessResponse - ответ /ready.
type ReadinessResponse struct {
	Ready     bool              `json:"ready"`
	Checks    map[string]string `json:"checks"`
	Timestamp time.Time         `json:"timestamp"`
}

// RegisterRoutes регистрирует /health, /health/detailed, /health/messaging,
// /ready и /live.
func (h *HealthHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/health/detailed", h.DetailedHealth)
	router.GET("/health/messaging", h.Messaging)
	router.GET("/ready", h.Ready)
	router.GET("/live", h.Live)
}

// Live отвечает, пока процесс обслуживает HTTP.
//
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// Health - версия и uptime без проверки зависимостей.
//
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.healthResponse(statusHealthy, nil))
}

// Ready - 503, если БД недоступна или брокер Unhealthy.
//
// @Summary Readiness probe
// @Tags Health
// @Produce json
// @Success 200 {object} ReadinessResponse
// @Failure 503 {object} ReadinessResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	state := h.evaluate(c.Request.Context())

	code := http.StatusOK
	if !state.ready() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, ReadinessResponse{
		Ready:     state.ready(),
		Checks:    state.checks,
		Timestamp: time.Now().UTC(),
	})
}

// DetailedHealth - все проверки, статистика пула и соединение с брокером.
// Всегда 200: статус в теле.
//
// @Summary Detailed health
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health/detailed [get]
func (h *HealthHandler) DetailedHealth(c *gin.Context) {
	state := h.evaluate(c.Request.Context())

	if ps, ok := h.db.(poolStatter); ok && state.checks["database"] == statusHealthy {
		stat := ps.Stat()
		state.checks["db_total_conns"] = strconv.Itoa(int(stat.TotalConns()))
		state.checks["db_idle_conns"] = strconv.Itoa(int(stat.IdleConns()))
		state.checks["db_acquired_conns"] = strconv.Itoa(int(stat.AcquiredConns()))
	}
	if h.broker != nil {
		state.checks["broker_connected"] = strconv.FormatBool(h.broker.IsConnected())
	}

	c.JSON(http.StatusOK, h.healthResponse(state.status, state.checks))
}

// Messaging отдаёт отчёт probe брокера: 503 только для Unhealthy.
//
// @Summary Messaging health
// @Tags Health
// @Produce json
// @Success 200 {object} rabbitmq.HealthReport
// @Failure 503 {object} rabbitmq.HealthReport
// @Router /health/messaging [get]
func (h *HealthHandler) Messaging(c *gin.Context) {
	report := rabbitmq.HealthReport{Status: rabbitmq.StatusDegraded, Reason: rabbitmq.ReasonNotConfigured}
	if h.messaging != nil {
		report = h.messaging.CheckHealth(c.Request.Context())
	}

	code := http.StatusOK
	if report.Status == rabbitmq.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

// ============================================
// Evaluation
// ============================================

type healthState struct {
	status string
	checks map[string]string
}

func (s healthState) ready() bool { return s.status != statusUnhealthy }

// evaluate опрашивает БД и probe брокера параллельно.
func (h *HealthHandler) evaluate(ctx context.Context) healthState {
	var (
		dbErr  error
		report *rabbitmq.HealthReport
		g      errgroup.Group
	)
	if h.db != nil {
		g.Go(func() error {
			pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
			defer cancel()
			dbErr = h.db.Ping(pingCtx)
			return nil
		})
	}
	if h.messaging != nil {
		g.Go(func() error {
			r := h.messaging.CheckHealth(ctx)
			report = &r
			return nil
		})
	}
	_ = g.Wait()

	state := healthState{status: statusHealthy, checks: make(map[string]string)}

	switch {
	case h.db == nil:
		state.checks["database"] = "not configured"
	case dbErr != nil:
		state.checks["database"] = statusUnhealthy + ": " + dbErr.Error()
		state.status = statusUnhealthy
	default:
		state.checks["database"] = statusHealthy
	}

	if report != nil {
		state.checks["messaging"] = string(report.Status)
		if report.Reason != "" {
			state.checks["messaging_reason"] = report.Reason
		}
		switch report.Status {
		case rabbitmq.StatusUnhealthy:
			state.status = statusUnhealthy
		case rabbitmq.StatusDegraded:
			if state.status == statusHealthy {
				state.status = statusDegraded
			}
		}
	}
	return state
}

func (h *HealthHandler) healthResponse(status string, checks map[string]string) HealthResponse {
	return HealthResponse{
		Status:    status,
		Version:   h.version,
		BuildTime: h.buildTime,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	}
}
