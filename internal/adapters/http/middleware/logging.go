// Package middleware - Logging middleware для структурированного логирования.
package middleware

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Haleralex/jobboard/internal/pkg/logger"
)

// LoggingConfig - конфигурация для logging middleware.
//
// Тела запросов и ответов не логируются: в откликах на вакансии
// email, телефон и сопроводительное письмо кандидата.
type LoggingConfig struct {
	Logger *slog.Logger
	// SkipPaths - точные пути без логирования (/metrics)
	SkipPaths []string
	// SkipPrefixes - префиксы путей без логирования (/health покрывает /health/messaging)
	SkipPrefixes []string
	// SlowThreshold - запросы дольше порога пишутся с warn и slow=true; 0 = выключено
	SlowThreshold time.Duration
}

// DefaultLoggingConfig - конфигурация по умолчанию.
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		Logger:        slog.Default(),
		SkipPaths:     []string{"/ready", "/live", "/metrics"},
		SkipPrefixes:  []string{"/health"},
		SlowThreshold: time.Second,
	}
}

// Logging пишет одну запись на HTTP запрос.
//
// Уровень: error для 5xx, warn для 4xx и медленных запросов, иначе info.
// request_id, job_id и trace_id добавляет logger.ContextHandler из
// контекста запроса; числовой :id маршрута кладётся туда как job id,
// чтобы его видели и логи handler'ов.
func Logging(config *LoggingConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultLoggingConfig()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	skip := make(map[string]struct{}, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skip[path] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, ok := skip[path]; ok || hasAnyPrefix(path, config.SkipPrefixes) {
			c.Next()
			return
		}

		if jobID, err := strconv.ParseInt(c.Param("id"), 10, 64); err == nil {
			c.Request = c.Request.WithContext(logger.WithJobID(c.Request.Context(), jobID))
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()

		attrs := make([]slog.Attr, 0, 10)
		attrs = append(attrs,
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("route", routeLabel(c)),
			slog.Int("status", status),
			logger.Since(start),
			slog.String("client_ip", c.ClientIP()),
			slog.String("user_agent", c.Request.UserAgent()),
			slog.Int("response_size", c.Writer.Size()),
		)

		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}

		slow := config.SlowThreshold > 0 && duration > config.SlowThreshold
		if slow {
			attrs = append(attrs, slog.Bool("slow", true))
		}

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400, slow:
			level = slog.LevelWarn
		}

		config.Logger.LogAttrs(c.Request.Context(), level, "HTTP Request", attrs...)
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
