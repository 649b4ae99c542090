// Command api запускает HTTP API доски вакансий.
//
// Процесс обслуживает REST API, /ws/notifications и, если
// messaging.rabbitmq.consumer_enabled, встроенный consumer откликов.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Haleralex/jobboard/internal/config"
	"github.com/Haleralex/jobboard/internal/container"
)

// Заполняются через -ldflags "-X main.version=... -X main.buildTime=...".
var (
	version   = ""
	buildTime = ""
)

func main() {
	configPath := flag.String("config", "configs", "Directory with config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath, "config")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if version != "" {
		cfg.App.Version = version
	}
	if buildTime != "" {
		cfg.App.BuildTime = buildTime
	}

	// SIGINT (Ctrl+C) и SIGTERM (kill) отменяют ctx
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := container.New(cfg)
	if err := c.Initialize(ctx); err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		shutdown(c, cfg.Server.ShutdownTimeout)
		os.Exit(1)
	}

	runErr := c.Run(ctx)
	if runErr != nil {
		slog.Error("Application stopped with error", slog.String("error", runErr.Error()))
	}

	if !shutdown(c, cfg.Server.ShutdownTimeout) || runErr != nil {
		os.Exit(1)
	}
	slog.Info("Server stopped gracefully")
}

func shutdown(c *container.Container, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := c.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", slog.String("error", err.Error()))
		return false
	}
	return true
}
