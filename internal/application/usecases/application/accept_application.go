// Package application содержит use cases для откликов на вакансии.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Haleralex/jobboard/internal/application/dtos"
	"github.com/Haleralex/jobboard/internal/application/ports"
	"github.com/Haleralex/jobboard/internal/domain/errors"
	"github.com/Haleralex/jobboard/internal/domain/events"
)

// Outcome - результат обработки события.
type Outcome string

const (
	// OutcomePersisted - отклик сохранён впервые.
	OutcomePersisted Outcome = "persisted"
	// OutcomeDuplicate - отклик с таким ключом уже есть, запись пропущена.
	OutcomeDuplicate Outcome = "duplicate"
)

// DefaultNotifyTimeout ограничивает одну попытку уведомления.
const DefaultNotifyTimeout = 5 * time.Second

// AcceptApplicationUseCase - use case приёма события ApplicationSubmitted из очереди.
//
// Сценарий:
// 1. Преобразовать событие в entity (ошибка валидации = битое сообщение)
// 2. Проверить ключ идемпотентности (jobId, applicantEmail, appliedAt)
// 3. Сохранить отклик в транзакции (ON CONFLICT DO NOTHING)
// 4. Асинхронно уведомить realtime-клиентов
//
// Гарантии:
// - Повторная доставка того же события не создаёт вторую запись
// - Результат уведомления не влияет на результат use case
type AcceptApplicationUseCase struct {
	appRepo  ports.ApplicationRepository
	uow      ports.UnitOfWork
	notifier ports.Notifier
	logger   *slog.Logger

	notifyTimeout time.Duration
	pending       sync.WaitGroup
}

// NewAcceptApplicationUseCase создаёт новый use case. notifier может быть nil.
func NewAcceptApplicationUseCase(
	appRepo ports.ApplicationRepository,
	uow ports.UnitOfWork,
	notifier ports.Notifier,
	logger *slog.Logger,
) *AcceptApplicationUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &AcceptApplicationUseCase{
		appRepo:       appRepo,
		uow:           uow,
		notifier:      notifier,
		logger:        logger,
		notifyTimeout: DefaultNotifyTimeout,
	}
}

// WithNotifyTimeout задаёт таймаут уведомления.
func (uc *AcceptApplicationUseCase) WithNotifyTimeout(d time.Duration) *AcceptApplicationUseCase {
	if d > 0 {
		uc.notifyTimeout = d
	}
	return uc
}

// Execute сохраняет отклик ровно один раз.
//
// Ошибки:
// - errors.ErrMalformedEvent / ValidationErrors: событие никогда не будет обработано
// - errors.ErrJobNotFound: вакансии не существует
// - прочие: временная ошибка хранилища, событие можно повторить
func (uc *AcceptApplicationUseCase) Execute(ctx context.Context, event *events.ApplicationSubmitted) (Outcome, error) {
	if event == nil {
		return "", fmt.Errorf("%w: nil event", errors.ErrMalformedEvent)
	}

	// 1. Валидация через domain entity
	app, err := event.ToApplication()
	if err != nil {
		return "", err
	}
	key := app.Key()

	// 2-3. Проверка ключа и вставка в одной транзакции
	var outcome Outcome
	err = uc.uow.Execute(ctx, func(txCtx context.Context) error {
		exists, err := uc.appRepo.ExistsByKey(txCtx, key)
		if err != nil {
			return fmt.Errorf("failed to check idempotency key: %w", err)
		}
		if exists {
			outcome = OutcomeDuplicate
			return nil
		}

		inserted, err := uc.appRepo.Insert(txCtx, app)
		if err != nil {
			if errors.IsNotFound(err) {
				return err
			}
			return fmt.Errorf("failed to insert application: %w", err)
		}
		if !inserted {
			// Конкурентная доставка успела раньше
			outcome = OutcomeDuplicate
			return nil
		}

		outcome = OutcomePersisted
		return nil
	})
	if err != nil {
		return "", err
	}

	if outcome == OutcomeDuplicate {
		uc.logger.InfoContext(ctx, "duplicate application skipped",
			"job_id", key.JobID,
			"applicant_email", key.ApplicantEmail,
			"applied_at", key.AppliedAt,
			"message_id", event.MessageID,
		)
		return OutcomeDuplicate, nil
	}

	uc.logger.InfoContext(ctx, "application persisted",
		"application_id", app.ID(),
		"job_id", app.JobID(),
		"message_id", event.MessageID,
	)

	// 4. Уведомление (fire-and-forget)
	uc.notify(ctx, ports.NewNotification(ports.NotificationApplicationCreated, dtos.ToApplicationDTO(app)))

	return OutcomePersisted, nil
}

// Wait блокируется до завершения всех отправленных уведомлений.
// Вызывается при остановке consumer.
func (uc *AcceptApplicationUseCase) Wait() {
	uc.pending.Wait()
}

func (uc *AcceptApplicationUseCase) notify(ctx context.Context, n ports.Notification) {
	if uc.notifier == nil {
		return
	}

	uc.pending.Add(1)
	go func() {
		defer uc.pending.Done()

		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.notifyTimeout)
		defer cancel()

		if err := uc.notifier.Notify(notifyCtx, n); err != nil {
			uc.logger.WarnContext(notifyCtx, "notification failed",
				"type", n.Type,
				"error", err,
			)
		}
	}()
}
