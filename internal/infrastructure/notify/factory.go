package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Haleralex/jobboard/internal/application/ports"
	"github.com/Haleralex/jobboard/internal/config"
)

// Set - собранные по конфигурации драйверы уведомлений.
type Set struct {
	// Notifier передаётся в use cases.
	Notifier ports.Notifier

	relays  []Relay
	sink    func([]byte)
	closers []io.Closer
	logger  *slog.Logger

	relayBackOff func() backoff.BackOff
}

const relayStableAfter = time.Minute

var errRelayStopped = errors.New("relay stopped")

// Build создаёт драйверы из конфигурации.
//
// Если включён hub и одна из шин (redis, nats), hub получает уведомления
// только через Relay этой шины: так каждый процесс API видит уведомления
// всех процессов, и ни одно не приходит дважды.
func Build(cfg config.NotifierConfig, hub *Hub, log *slog.Logger) (*Set, error) {
	if log == nil {
		log = slog.Default()
	}

	drivers := cfg.Drivers
	if len(drivers) == 0 {
		drivers = []string{config.NotifierHub}
	}
	enabled := config.NotifierConfig{Drivers: drivers}

	set := &Set{logger: log.With("component", "notify"), relayBackOff: defaultRelayBackOff}
	var fanout Fanout

	if enabled.HasDriver(config.NotifierRedis) {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rn := NewRedisNotifier(client, cfg.Redis.Channel, log)
		fanout = append(fanout, Instrument(config.NotifierRedis, rn))
		set.relays = append(set.relays, rn)
		set.closers = append(set.closers, rn)
	}

	if enabled.HasDriver(config.NotifierNATS) {
		conn, err := DialNATS(cfg.NATS.URL, log)
		if err != nil {
			_ = set.Close()
			return nil, err
		}
		nn := NewNATSNotifier(conn, cfg.NATS.Subject, log)
		fanout = append(fanout, Instrument(config.NotifierNATS, nn))
		set.relays = append(set.relays, nn)
		set.closers = append(set.closers, nn)
	}

	if enabled.HasDriver(config.NotifierKafka) {
		writer, err := NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			_ = set.Close()
			return nil, fmt.Errorf("kafka notifier: %w", err)
		}
		kn := NewKafkaNotifier(writer)
		fanout = append(fanout, Instrument(config.NotifierKafka, kn))
		set.closers = append(set.closers, kn)
	}

	if enabled.HasDriver(config.NotifierHub) && hub != nil {
		if len(set.relays) > 0 {
			// Достаточно одной шины, иначе клиенты получат дубликаты
			set.relays = set.relays[:1]
			set.sink = hub.Broadcast
		} else {
			fanout = append(fanout, Instrument(config.NotifierHub, hub))
		}
	}
	if set.sink == nil {
		set.relays = nil
	}

	switch len(fanout) {
	case 0:
		set.Notifier = Noop{}
	case 1:
		set.Notifier = fanout[0]
	default:
		set.Notifier = fanout
	}

	log.Info("notification drivers configured", "drivers", drivers, "relays", len(set.relays))
	return set, nil
}

// RunRelays пересылает уведомления из шин в Hub до отмены ctx.
//
// Недоступная шина не останавливает процесс: каждый Relay перезапускается
// с экспоненциальной задержкой, RunRelays всегда возвращает nil.
func (s *Set) RunRelays(ctx context.Context) error {
	var g errgroup.Group
	for _, r := range s.relays {
		g.Go(func() error {
			s.supervise(ctx, r)
			return nil
		})
	}
	<-ctx.Done()
	return g.Wait()
}

// supervise перезапускает r, пока ctx не отменён. Задержка сбрасывается,
// если Relay проработал дольше relayStableAfter.
func (s *Set) supervise(ctx context.Context, r Relay) {
	b := s.relayBackOff()
	for {
		started := time.Now()
		err := r.Relay(ctx, s.sink)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > relayStableAfter {
			b.Reset()
		}
		if err == nil {
			err = errRelayStopped
		}

		wait := b.NextBackOff()
		relayRestartsTotal.Inc()
		s.logger.Warn("notification relay failed, retrying",
			"relay", fmt.Sprintf("%T", r),
			"retry_in", wait,
			"error", err,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func defaultRelayBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Close закрывает клиентов внешних шин.
func (s *Set) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
