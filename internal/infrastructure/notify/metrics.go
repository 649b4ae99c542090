// Package notify доставляет уведомления о новых вакансиях и откликах
// realtime-клиентам.
//
// Драйверы:
//   - Hub: websocket broadcast внутри процесса
//   - RedisNotifier / NATSNotifier: публикация для других процессов API,
//     Relay пересылает полученное обратно в локальный Hub
//   - KafkaNotifier: экспорт во внешние системы, ключ = ID вакансии
//   - Noop: ничего не делает
//
// Ядро не зависит от результата Notify: ошибки только логируются.
package notify

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Haleralex/jobboard/internal/application/ports"
)

var notificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "jobboard",
		Subsystem: "notify",
		Name:      "notifications_total",
		Help:      "Notifications sent by driver and result",
	},
	[]string{"driver", "result"},
)

var relayRestartsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "jobboard",
	Subsystem: "notify",
	Name:      "relay_restarts_total",
	Help:      "Notification relay restarts after a bus failure",
})

// instrumented считает результат каждого Notify.
type instrumented struct {
	driver string
	next   ports.Notifier
}

// Instrument оборачивает notifier счётчиком notifications_total.
func Instrument(driver string, next ports.Notifier) ports.Notifier {
	return &instrumented{driver: driver, next: next}
}

func (i *instrumented) Notify(ctx context.Context, n ports.Notification) error {
	if err := i.next.Notify(ctx, n); err != nil {
		notificationsTotal.WithLabelValues(i.driver, "error").Inc()
		return err
	}
	notificationsTotal.WithLabelValues(i.driver, "ok").Inc()
	return nil
}
