// Package middleware содержит HTTP middleware API: request id, логирование,
// recovery, CORS, rate limiting, аутентификацию и метрики Prometheus.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Haleralex/jobboard/internal/pkg/logger"
)

const (
	// RequestIDHeader - имя заголовка для Request ID
	RequestIDHeader = "X-Request-ID"
	// CorrelationIDHeader - сквозной ID цепочки запросов
	CorrelationIDHeader = "X-Correlation-ID"
	// RequestIDContextKey - ключ для хранения Request ID в контексте
	RequestIDContextKey = "request_id"

	maxRequestIDLen = 128
)

// RequestID присваивает запросу ID.
//
// Клиентский X-Request-ID принимается, если он не длиннее 128 символов
// и состоит из печатных ASCII; иначе генерируется UUID. ID, correlation ID
// и trace/span (если otelgin стоит раньше) кладутся в context.Context
// запроса, откуда их берёт logger.ContextHandler. Correlation ID
// возвращается клиенту без изменений.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}

		c.Set(RequestIDContextKey, requestID)
		c.Header(RequestIDHeader, requestID)

		ctx := logger.WithRequestID(c.Request.Context(), requestID)
		if correlationID := c.GetHeader(CorrelationIDHeader); validRequestID(correlationID) {
			ctx = logger.WithCorrelationID(ctx, correlationID)
			c.Header(CorrelationIDHeader, correlationID)
		}

		span := trace.SpanFromContext(ctx)
		if sc := span.SpanContext(); sc.IsValid() {
			span.SetAttributes(attribute.String("http.request_id", requestID))
			ctx = logger.WithTraceID(ctx, sc.TraceID().String())
			ctx = logger.WithSpanID(ctx, sc.SpanID().String())
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetRequestID извлекает Request ID из контекста Gin.
func GetRequestID(c *gin.Context) string {
	id, _ := c.Get(RequestIDContextKey)
	s, _ := id.(string)
	return s
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
