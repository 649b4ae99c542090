package ports

import (
	"context"
	"time"
)

// Типы уведомлений, которые получают realtime-клиенты.
const (
	NotificationApplicationCreated = "ApplicationCreated"
	NotificationJobCreated         = "JobCreated"
)

// Notification - непрозрачное для ядра сообщение для realtime-клиентов.
type Notification struct {
	Type       string    `json:"type"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewNotification создаёт уведомление с текущим временем.
func NewNotification(notificationType string, payload any) Notification {
	return Notification{
		Type:       notificationType,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

// Notifier - получатель уведомлений (websocket hub, Redis, NATS, Kafka).
//
// Ядро вызывает Notify после принятия нового отклика и не зависит
// от результата: ошибка только логируется.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
