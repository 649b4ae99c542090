package rabbitmq

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// messagesPublishedTotal counts publish attempts by result (ok, error, skipped)
	messagesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobboard",
			Subsystem: "messaging",
			Name:      "messages_published_total",
			Help:      "Total number of ApplicationSubmitted publish attempts",
		},
		[]string{"result"},
	)

	// messagesConsumedTotal counts handled deliveries by acknowledgement decision
	messagesConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobboard",
			Subsystem: "messaging",
			Name:      "messages_consumed_total",
			Help:      "Total number of consumed deliveries by decision",
		},
		[]string{"decision"},
	)

	// messageProcessingDuration measures handler latency including the ack round trip
	messageProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "jobboard",
			Subsystem: "messaging",
			Name:      "message_processing_duration_seconds",
			Help:      "Time spent handling a single delivery",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// brokerReconnectsTotal counts successful redials after a connection loss
	brokerReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jobboard",
			Subsystem: "messaging",
			Name:      "broker_reconnects_total",
			Help:      "Total number of successful broker reconnections",
		},
	)

	// consumersActive reports whether the subscription is currently attached
	consumersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jobboard",
			Subsystem: "messaging",
			Name:      "consumers_active",
			Help:      "Number of attached queue subscriptions",
		},
	)
)
