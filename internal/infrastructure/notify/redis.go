package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Haleralex/jobboard/internal/application/ports"
)

// DefaultRedisChannel - канал Redis pub/sub для уведомлений.
const DefaultRedisChannel = "jobboard:notifications"

// Relay пересылает уведомления из внешней шины в локальный sink (обычно Hub.Broadcast).
type Relay interface {
	// Relay блокируется до отмены ctx.
	Relay(ctx context.Context, sink func([]byte)) error
}

// Compile-time checks
var (
	_ ports.Notifier = (*RedisNotifier)(nil)
	_ Relay          = (*RedisNotifier)(nil)
)

// RedisNotifier публикует уведомления в Redis pub/sub.
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

// NewRedisNotifier создаёт notifier поверх готового клиента.
func NewRedisNotifier(client redis.UniversalClient, channel string, log *slog.Logger) *RedisNotifier {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisNotifier{
		client:  client,
		channel: channel,
		logger:  log.With("component", "redis_notifier", "channel", channel),
	}
}

// Notify выполняет PUBLISH.
func (r *RedisNotifier) Notify(ctx context.Context, n ports.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Relay подписывается на канал и передаёт каждое сообщение в sink.
func (r *RedisNotifier) Relay(ctx context.Context, sink func([]byte)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Ждём подтверждения подписки
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("relaying notifications from redis")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			sink([]byte(msg.Payload))
		}
	}
}

// Close закрывает клиент Redis.
func (r *RedisNotifier) Close() error {
	return r.client.Close()
}
