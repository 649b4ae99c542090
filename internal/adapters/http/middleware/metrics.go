package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobboard",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jobboard",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jobboard",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jobboard",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
		},
		[]string{"method", "route"},
	)

	// httpRateLimited - запросы, отклонённые с 429
	httpRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobboard",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"scope", "route"},
	)

	httpPanics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobboard",
			Subsystem: "http",
			Name:      "panics_total",
			Help:      "Handler panics recovered by the recovery middleware",
		},
		[]string{"route"},
	)
)

// routeLabel - шаблон маршрута (/api/v1/jobs/:id), чтобы id не раздували кардинальность.
func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}

// Metrics returns Prometheus metrics middleware.
//
// /metrics и websocket upgrade не учитываются: длительность
// websocket-сессии не является латентностью запроса.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" || c.IsWebsocket() {
			c.Next()
			return
		}

		start := time.Now()
		route := routeLabel(c)
		method := c.Request.Method

		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(method, route, status).Inc()
		httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		httpResponseSize.WithLabelValues(method, route).Observe(float64(c.Writer.Size()))
	}
}
