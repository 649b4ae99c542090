// Package ports - Event Publisher для интеграции с message broker.
//
// Pattern: Publisher/Subscriber
// - Use case публикует событие и сразу возвращается (fire-and-forget)
// - Consumer независимо от запроса сохраняет результат
package ports

import (
	"context"

	"github.com/Haleralex/jobboard/internal/domain/events"
)

// EventPublisher определяет контракт для публикации событий о новых откликах.
//
// Реализации (выбираются один раз при старте):
// - rabbitmq.Publisher: durable очередь, persistent delivery
// - rabbitmq.NoopPublisher: брокер не настроен, ничего не отправляет
//
// Вызывающий код не должен знать, какая реализация подключена.
type EventPublisher interface {
	// Publish отправляет событие в очередь.
	//
	// Событие должно быть полностью заполнено. Если MessageID пуст,
	// публикатор присвоит новый. Повторных попыток нет: ошибка
	// возвращается вызывающему, и он решает, продолжать ли без события.
	Publish(ctx context.Context, event *events.ApplicationSubmitted) error
}
