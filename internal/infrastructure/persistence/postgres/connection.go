// Package postgres хранит вакансии и отклики в PostgreSQL.
//
// Уникальность отклика по ключу (job_id, applicant_email, applied_at)
// обеспечивает constraint uq_job_applications_idempotency, а не проверки
// в коде: consumer полагается на INSERT ... ON CONFLICT DO NOTHING.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Haleralex/jobboard/internal/config"
)

const (
	connectTimeout = 5 * time.Second
	// maxStartupWait - сколько ждать БД при старте (docker compose
	// поднимает postgres параллельно с сервисом).
	maxStartupWait = 30 * time.Second
)

// PoolConfig собирает pgxpool.Config из настроек приложения.
// Нулевые лимиты оставляют значения pgxpool по умолчанию.
func PoolConfig(db config.DatabaseConfig) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(db.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database dsn: %w", err)
	}

	if db.MaxConnections > 0 {
		cfg.MaxConns = db.MaxConnections
	}
	if db.MinConnections > 0 {
		cfg.MinConns = min(db.MinConnections, cfg.MaxConns)
	}
	if db.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = db.MaxConnLifetime
	}
	if db.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = db.MaxConnIdleTime
	}
	cfg.ConnConfig.ConnectTimeout = connectTimeout
	cfg.ConnConfig.Tracer = queryTracer{}
	return cfg, nil
}

// NewConnectionPool открывает пул и ждёт, пока БД ответит на ping.
//
// Ping повторяется с экспоненциальной задержкой не дольше maxStartupWait;
// отмена ctx прерывает ожидание сразу.
func NewConnectionPool(ctx context.Context, db config.DatabaseConfig, log *slog.Logger) (*pgxpool.Pool, error) {
	cfg, err := PoolConfig(db)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = maxStartupWait

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		err := pool.Ping(pingCtx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(errors.Join(ctx.Err(), err))
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		log.Warn("database not ready, retrying",
			slog.String("host", db.Host),
			slog.Duration("retry_in", next),
			slog.String("error", err.Error()),
		)
	}

	if err := backoff.RetryNotify(ping, backoff.WithContext(b, ctx), notify); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("database connected",
		slog.String("host", db.Host),
		slog.String("database", db.Database),
		slog.Int("max_conns", int(cfg.MaxConns)),
	)
	return pool, nil
}
