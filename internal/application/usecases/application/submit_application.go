package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Haleralex/jobboard/internal/application/dtos"
	"github.com/Haleralex/jobboard/internal/application/ports"
	"github.com/Haleralex/jobboard/internal/domain/entities"
	"github.com/Haleralex/jobboard/internal/domain/errors"
	"github.com/Haleralex/jobboard/internal/domain/events"
)

// SubmitApplicationUseCase - use case отклика на вакансию.
//
// Сценарий:
// 1. Провалидировать кандидата через domain entity
// 2. Проверить, что вакансия существует
// 3. Зарезервировать ID отклика
// 4. Опубликовать ApplicationSubmitted
//
// Запись в хранилище делает consumer. Ошибка публикации логируется,
// но запрос не проваливается: без брокера отклик просто не сохранится.
type SubmitApplicationUseCase struct {
	jobRepo   ports.JobRepository
	appRepo   ports.ApplicationRepository
	publisher ports.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewSubmitApplicationUseCase создаёт новый use case.
func NewSubmitApplicationUseCase(
	jobRepo ports.JobRepository,
	appRepo ports.ApplicationRepository,
	publisher ports.EventPublisher,
	logger *slog.Logger,
) *SubmitApplicationUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmitApplicationUseCase{
		jobRepo:   jobRepo,
		appRepo:   appRepo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Execute принимает отклик и возвращает его идентификаторы.
func (uc *SubmitApplicationUseCase) Execute(ctx context.Context, cmd dtos.SubmitApplicationCommand) (*dtos.ApplicationSubmittedDTO, error) {
	// PostgreSQL хранит timestamptz с точностью до микросекунд;
	// ключ идемпотентности должен совпадать после round-trip.
	appliedAt := uc.now().UTC().Truncate(time.Microsecond)

	// 1. Валидация
	app, err := entities.NewApplication(0, cmd.JobID, cmd.ApplicantName, cmd.ApplicantEmail, appliedAt)
	if err != nil {
		return nil, err
	}

	// 2. Вакансия должна существовать
	exists, err := uc.jobRepo.Exists(ctx, cmd.JobID)
	if err != nil {
		return nil, fmt.Errorf("failed to check job existence: %w", err)
	}
	if !exists {
		return nil, errors.NewDomainError("JOB_NOT_FOUND", "job not found", errors.ErrJobNotFound)
	}

	// 3. ID резервируется заранее, чтобы вернуть его клиенту
	id, err := uc.appRepo.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve application id: %w", err)
	}

	// 4. Публикация
	event := events.NewApplicationSubmitted(id, app.JobID(), app.ApplicantName(), app.ApplicantEmail(), app.AppliedAt())
	if err := uc.publisher.Publish(ctx, event); err != nil {
		uc.logger.ErrorContext(ctx, "failed to publish ApplicationSubmitted, application will not be recorded",
			"application_id", id,
			"job_id", event.JobID,
			"message_id", event.MessageID,
			"error", err,
		)
	}

	return &dtos.ApplicationSubmittedDTO{
		ApplicationID: id,
		JobID:         event.JobID,
		MessageID:     event.MessageID,
		AppliedAt:     event.AppliedAt,
	}, nil
}
