// Package job содержит use cases для работы с вакансиями.
package job

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Haleralex/jobboard/internal/application/dtos"
	"github.com/Haleralex/jobboard/internal/application/ports"
	"github.com/Haleralex/jobboard/internal/domain/entities"
)

// CreateJobUseCase - use case для публикации вакансии.
//
// Сценарий:
// 1. Создать entity (валидация заголовка)
// 2. Сохранить в БД
// 3. Уведомить realtime-клиентов (JobCreated)
type CreateJobUseCase struct {
	jobRepo  ports.JobRepository
	uow      ports.UnitOfWork
	notifier ports.Notifier
	logger   *slog.Logger
}

// NewCreateJobUseCase создаёт новый use case. notifier может быть nil.
func NewCreateJobUseCase(
	jobRepo ports.JobRepository,
	uow ports.UnitOfWork,
	notifier ports.Notifier,
	logger *slog.Logger,
) *CreateJobUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &CreateJobUseCase{
		jobRepo:  jobRepo,
		uow:      uow,
		notifier: notifier,
		logger:   logger,
	}
}

// Execute создаёт вакансию.
func (uc *CreateJobUseCase) Execute(ctx context.Context, cmd dtos.CreateJobCommand) (*dtos.JobDTO, error) {
	job, err := entities.NewJob(cmd.Title, cmd.Description)
	if err != nil {
		return nil, err
	}

	err = uc.uow.Execute(ctx, func(txCtx context.Context) error {
		if err := uc.jobRepo.Create(txCtx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := dtos.ToJobDTO(job)

	// Уведомление не влияет на результат: клиенты могут перечитать список
	if uc.notifier != nil {
		if err := uc.notifier.Notify(ctx, ports.NewNotification(ports.NotificationJobCreated, result)); err != nil {
			uc.logger.WarnContext(ctx, "notification failed", "type", ports.NotificationJobCreated, "job_id", job.ID(), "error", err)
		}
	}

	return &result, nil
}
