// Package middleware - Recovery middleware для обработки паник.
package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Haleralex/jobboard/internal/adapters/http/common"
)

// RecoveryConfig - конфигурация для recovery middleware.
type RecoveryConfig struct {
	Logger *slog.Logger
	// EnableStackTrace - stack trace в логе (выключен в production)
	EnableStackTrace bool
}

// DefaultRecoveryConfig - конфигурация по умолчанию.
func DefaultRecoveryConfig() *RecoveryConfig {
	return &RecoveryConfig{
		Logger:           slog.Default(),
		EnableStackTrace: true,
	}
}

// Recovery перехватывает панику handler'а и отвечает 500.
//
// Паника записывается в лог, в активный span (если otelgin стоит
// раньше в цепочке) и в jobboard_http_panics_total.
// http.ErrAbortHandler пробрасывается дальше: net/http обрывает
// соединение без лога.
func Recovery(config *RecoveryConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultRecoveryConfig()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			err := fmt.Errorf("panic: %v", rec)
			route := routeLabel(c)
			httpPanics.WithLabelValues(route).Inc()

			span := trace.SpanFromContext(c.Request.Context())
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, "panic recovered")

			attrs := []slog.Attr{
				slog.String("error", err.Error()),
				slog.String("method", c.Request.Method),
				slog.String("route", route),
				slog.String("path", c.Request.URL.Path),
				slog.String("client_ip", c.ClientIP()),
			}
			if config.EnableStackTrace {
				attrs = append(attrs, slog.String("stack", string(debug.Stack())))
			}
			config.Logger.LogAttrs(c.Request.Context(), slog.LevelError, "Panic recovered", attrs...)

			// Заголовки уже ушли клиенту, ответить JSON нельзя
			if c.Writer.Written() {
				c.Abort()
				return
			}

			common.InternalErrorResponse(c, "An unexpected error occurred")
		}()

		c.Next()
	}
}
