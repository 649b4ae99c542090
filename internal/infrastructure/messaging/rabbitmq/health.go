package rabbitmq

import (
	"context"
	"fmt"
)

// HealthStatus is the outcome of a probe.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "Healthy"
	StatusDegraded  HealthStatus = "Degraded"
	StatusUnhealthy HealthStatus = "Unhealthy"
)

// Probe reasons.
const (
	ReasonNotConfigured         = "RabbitMQ host not configured; messaging disabled"
	ReasonIncompleteCredentials = "RabbitMQ credentials incomplete"
)

// HealthReport is a probe result with a human-readable reason.
type HealthReport struct {
	Status HealthStatus `json:"status"`
	Reason string       `json:"reason"`
}

// HealthProbe reports messaging health from configuration alone.
// It never contacts the broker.
type HealthProbe struct {
	cfg Config
}

// NewHealthProbe creates a probe. cfg.Strict escalates incomplete
// credentials from Degraded to Unhealthy.
func NewHealthProbe(cfg Config) *HealthProbe {
	return &HealthProbe{cfg: cfg.withDefaults()}
}

// CheckHealth evaluates the configuration.
func (p *HealthProbe) CheckHealth(_ context.Context) HealthReport {
	if !p.cfg.Enabled() {
		return HealthReport{Status: StatusDegraded, Reason: ReasonNotConfigured}
	}

	if !p.cfg.HasCredentials() {
		status := StatusDegraded
		if p.cfg.Strict {
			status = StatusUnhealthy
		}
		return HealthReport{Status: status, Reason: ReasonIncompleteCredentials}
	}

	return HealthReport{
		Status: StatusHealthy,
		Reason: fmt.Sprintf("RabbitMQ is configured. Host: %s, Queue: %s", p.cfg.Host, p.cfg.QueueName),
	}
}
