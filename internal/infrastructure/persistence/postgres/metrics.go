package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jobboard",
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	queryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobboard",
			Subsystem: "db",
			Name:      "errors_total",
			Help:      "Total number of database errors",
		},
		[]string{"operation", "error_type"},
	)
)

// ============================================
// Query tracer
// ============================================

type traceKey struct{}

type traceData struct {
	operation string
	start     time.Time
}

// queryTracer реализует pgx.QueryTracer: длительность и ошибки каждого запроса.
type queryTracer struct{}

func (queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceKey{}, traceData{
		operation: operationOf(data.SQL),
		start:     time.Now(),
	})
}

func (queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	td, ok := ctx.Value(traceKey{}).(traceData)
	if !ok {
		return
	}
	queryDuration.WithLabelValues(td.operation).Observe(time.Since(td.start).Seconds())
	if data.Err != nil && !errors.Is(data.Err, pgx.ErrNoRows) {
		queryErrors.WithLabelValues(td.operation, errorType(data.Err)).Inc()
	}
}

// operationOf возвращает первое слово SQL в нижнем регистре: select, insert, begin...
func operationOf(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	op := strings.ToLower(fields[0])
	switch op {
	case "select", "insert", "update", "delete", "begin", "commit", "rollback", "with":
		return op
	default:
		return "other"
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	case isUniqueViolation(err, ""):
		return "unique_violation"
	case isForeignKeyViolation(err):
		return "foreign_key_violation"
	case isCheckViolation(err):
		return "check_violation"
	}
	if pgErr, ok := asPgError(err); ok {
		return "pg_" + pgErr.Code
	}
	return "connection"
}

// ============================================
// Pool collector
// ============================================

// PoolCollector экспортирует pgxpool.Stat как метрики Prometheus.
type PoolCollector struct {
	pool *pgxpool.Pool

	conns        *prometheus.Desc
	maxConns     *prometheus.Desc
	acquires     *prometheus.Desc
	emptyAcquire *prometheus.Desc
	acquireWait  *prometheus.Desc
}

// NewPoolCollector создаёт collector для пула.
func NewPoolCollector(pool *pgxpool.Pool) *PoolCollector {
	return &PoolCollector{
		pool: pool,
		conns: prometheus.NewDesc("jobboard_db_connections",
			"Number of database connections by state", []string{"state"}, nil),
		maxConns: prometheus.NewDesc("jobboard_db_connections_max",
			"Maximum size of the connection pool", nil, nil),
		acquires: prometheus.NewDesc("jobboard_db_acquires_total",
			"Total number of successful connection acquires", nil, nil),
		emptyAcquire: prometheus.NewDesc("jobboard_db_empty_acquires_total",
			"Acquires that had to wait for a connection", nil, nil),
		acquireWait: prometheus.NewDesc("jobboard_db_acquire_wait_seconds_total",
			"Total time spent waiting for a connection", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.conns
	ch <- c.maxConns
	ch <- c.acquires
	ch <- c.emptyAcquire
	ch <- c.acquireWait
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.pool.Stat()

	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(stat.IdleConns()), "idle")
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(stat.AcquiredConns()), "in_use")
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(stat.ConstructingConns()), "constructing")
	ch <- prometheus.MustNewConstMetric(c.maxConns, prometheus.GaugeValue, float64(stat.MaxConns()))
	ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue, float64(stat.AcquireCount()))
	ch <- prometheus.MustNewConstMetric(c.emptyAcquire, prometheus.CounterValue, float64(stat.EmptyAcquireCount()))
	ch <- prometheus.MustNewConstMetric(c.acquireWait, prometheus.CounterValue, stat.AcquireDuration().Seconds())
}

// RegisterPoolCollector регистрирует collector пула. Ранее
// зарегистрированный collector другого пула заменяется.
func RegisterPoolCollector(reg prometheus.Registerer, pool *pgxpool.Pool) (*PoolCollector, error) {
	collector := NewPoolCollector(pool)
	err := reg.Register(collector)

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		reg.Unregister(already.ExistingCollector)
		err = reg.Register(collector)
	}
	if err != nil {
		return nil, err
	}
	return collector, nil
}
