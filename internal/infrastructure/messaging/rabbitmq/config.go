// Package rabbitmq connects the service to a RabbitMQ broker.
//
// Components:
// - Connection: explicitly owned broker handle with automatic reconnection
// - Publisher / NoopPublisher: ports.EventPublisher implementations
// - Consumer: long-running subscription with manual acknowledgement
// - HealthProbe: configuration-level liveness check
//
// An empty host disables messaging entirely. Nothing in this package
// treats that as an error.
package rabbitmq

import (
	"crypto/tls"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Haleralex/jobboard/internal/config"
)

// Defaults applied when the corresponding setting is zero.
const (
	DefaultPort                 = 5671
	DefaultVirtualHost          = "/"
	DefaultQueueName            = "job_applications"
	DefaultPrefetchCount        = 10
	DefaultHeartbeat            = 30 * time.Second
	DefaultReconnectMaxInterval = 30 * time.Second
)

// Config holds broker settings used by this package.
type Config struct {
	Host                 string
	Port                 int
	Username             string
	Password             string
	VirtualHost          string
	UseTLS               bool
	QueueName            string
	PrefetchCount        int
	Heartbeat            time.Duration
	ReconnectMaxInterval time.Duration

	// Strict makes the health probe report incomplete credentials as Unhealthy.
	Strict bool
}

// ConfigFrom maps application configuration onto Config.
func ConfigFrom(c config.RabbitMQConfig, strict bool) Config {
	return Config{
		Host:                 strings.TrimSpace(c.Host),
		Port:                 c.Port,
		Username:             c.Username,
		Password:             c.Password,
		VirtualHost:          c.VirtualHost,
		UseTLS:               c.UseTLS,
		QueueName:            c.QueueName,
		PrefetchCount:        c.PrefetchCount,
		Heartbeat:            c.Heartbeat,
		ReconnectMaxInterval: c.ReconnectMaxInterval,
		Strict:               strict,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.VirtualHost == "" {
		c.VirtualHost = DefaultVirtualHost
	}
	if c.QueueName == "" {
		c.QueueName = DefaultQueueName
	}
	if c.PrefetchCount <= 0 {
		c.PrefetchCount = DefaultPrefetchCount
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = DefaultHeartbeat
	}
	if c.ReconnectMaxInterval <= 0 {
		c.ReconnectMaxInterval = DefaultReconnectMaxInterval
	}
	return c
}

// Enabled reports whether a broker host is configured.
func (c Config) Enabled() bool {
	return c.Host != ""
}

// HasCredentials reports whether both username and password are set.
func (c Config) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// URL builds the AMQP connection URI.
func (c Config) URL() string {
	scheme := "amqp"
	if c.UseTLS {
		scheme = "amqps"
	}
	uri := amqp.URI{
		Scheme:   scheme,
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		Vhost:    c.VirtualHost,
	}
	return uri.String()
}

// AMQPConfig returns the dial settings: heartbeat and, when enabled, TLS 1.2+.
func (c Config) AMQPConfig() amqp.Config {
	cfg := amqp.Config{
		Heartbeat: c.Heartbeat,
		Vhost:     c.VirtualHost,
		Locale:    "en_US",
		Properties: amqp.Table{
			"connection_name": "jobboard",
		},
	}
	if c.UseTLS {
		cfg.TLSClientConfig = c.TLSConfig()
	}
	return cfg
}

// TLSConfig returns the client TLS settings. The server name is the broker host.
func (c Config) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: c.Host,
	}
}
