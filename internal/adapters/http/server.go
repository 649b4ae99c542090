// Package http собирает HTTP API сервиса вакансий: роутер, middleware
// и сервер с graceful shutdown.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Haleralex/jobboard/internal/config"
)

// ============================================
// Server Configuration
// ============================================

// ServerConfig - параметры прослушивания и таймауты HTTP сервера.
type ServerConfig struct {
	Host string
	// Port "0" - любой свободный порт, фактический адрес отдаёт Server.Addr
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	// WriteTimeout не касается websocket: после upgrade дедлайны ставит hub
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// DefaultServerConfig - конфигурация по умолчанию.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:              "0.0.0.0",
		Port:              "8080",
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		Logger:            slog.Default(),
	}
}

// ServerConfigFrom переносит config.ServerConfig поверх значений по умолчанию.
func ServerConfigFrom(c config.ServerConfig, logger *slog.Logger) *ServerConfig {
	cfg := &ServerConfig{
		Host:            c.Host,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		IdleTimeout:     c.IdleTimeout,
		ShutdownTimeout: c.ShutdownTimeout,
		Logger:          logger,
	}
	if c.Port > 0 {
		cfg.Port = strconv.Itoa(c.Port)
	}
	return cfg.withDefaults()
}

// withDefaults заполняет нулевые поля копии значениями DefaultServerConfig.
func (c ServerConfig) withDefaults() *ServerConfig {
	def := DefaultServerConfig()
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.Port == "" {
		c.Port = def.Port
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = min(def.ReadHeaderTimeout, c.ReadTimeout)
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.Logger == nil {
		c.Logger = def.Logger
	}
	return &c
}

// Address возвращает адрес для прослушивания.
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// ============================================
// Server
// ============================================

// Server - HTTP сервер API. Порт занимается в Listen, до первого запроса,
// чтобы Addr был известен сразу (Port "0" в тестах).
type Server struct {
	config     *ServerConfig
	httpServer *http.Server
	logger     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewServer создаёт сервер. Нулевые поля config берутся из DefaultServerConfig.
func NewServer(cfg *ServerConfig, handler http.Handler) *Server {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	cfg = cfg.withDefaults()

	return &Server{
		config: cfg,
		logger: cfg.Logger.With(slog.String("component", "http")),
		httpServer: &http.Server{
			Addr:              cfg.Address(),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			ErrorLog:          slog.NewLogLogger(cfg.Logger.Handler(), slog.LevelWarn),
		},
	}
}

// Listen занимает порт. Повторный вызов возвращает тот же listener.
func (s *Server) Listen() (net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		ln, err := net.Listen("tcp", s.config.Address())
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", s.config.Address(), err)
		}
		s.listener = ln
	}
	return s.listener, nil
}

// Addr возвращает фактический адрес после Listen, иначе сконфигурированный.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return s.config.Address()
	}
	return s.listener.Addr().String()
}

// Run обслуживает запросы до отмены ctx, затем даёт активным запросам
// завершиться не дольше ShutdownTimeout. Отмена ctx - штатная остановка,
// Run возвращает nil.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", slog.String("address", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	if err := s.Shutdown(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	return <-serveErr
}

// Shutdown закрывает listener и ждёт активные запросы не дольше ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("HTTP server shutting down", slog.Duration("timeout", s.config.ShutdownTimeout))
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
