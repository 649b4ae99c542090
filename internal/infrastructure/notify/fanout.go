package notify

import (
	"context"
	"errors"

	"github.com/Haleralex/jobboard/internal/application/ports"
)

// Compile-time checks
var (
	_ ports.Notifier = Noop{}
	_ ports.Notifier = Fanout(nil)
)

// Noop игнорирует уведомления.
type Noop struct{}

// Notify ничего не делает.
func (Noop) Notify(context.Context, ports.Notification) error { return nil }

// Fanout отправляет уведомление всем драйверам по очереди.
// Ошибка одного драйвера не мешает остальным.
type Fanout []ports.Notifier

// Notify возвращает объединённые ошибки драйверов.
func (f Fanout) Notify(ctx context.Context, n ports.Notification) error {
	var errs []error
	for _, notifier := range f {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
