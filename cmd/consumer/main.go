// Command consumer запускает только обработку очереди откликов.
//
// Для realtime-уведомлений процессу нужен драйвер redis или nats:
// API-процессы пересылают сообщения шины своим websocket-клиентам.
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

var version = ""

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewBuilder(cfg).
		WithRole(container.RoleWorker).
		Build(ctx)
	if err != nil {
		slog.Error("Failed to initialize worker", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if !cfg.Messaging.RabbitMQ.Enabled() {
		slog.Warn("RabbitMQ host not configured, worker has nothing to consume")
	}

	runErr := c.Run(ctx)
	if runErr != nil {
		slog.Error("Worker stopped with error", slog.String("error", runErr.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if runErr != nil {
		os.Exit(1)
	}
}
