package application

import (
	"context"
	"fmt"

	"github.com/Haleralex/jobboard/internal/application/dtos"
	"github.com/Haleralex/jobboard/internal/application/ports"
	"github.com/Haleralex/jobboard/internal/domain/errors"
)

// ListApplicationsUseCase - use case для получения откликов на вакансию.
type ListApplicationsUseCase struct {
	jobRepo ports.JobRepository
	appRepo ports.ApplicationRepository
}

// NewListApplicationsUseCase создаёт новый use case.
func NewListApplicationsUseCase(jobRepo ports.JobRepository, appRepo ports.ApplicationRepository) *ListApplicationsUseCase {
	return &ListApplicationsUseCase{
		jobRepo: jobRepo,
		appRepo: appRepo,
	}
}

// Execute возвращает сохранённые отклики в порядке подачи.
func (uc *ListApplicationsUseCase) Execute(ctx context.Context, query dtos.ListApplicationsQuery) ([]dtos.ApplicationDTO, error) {
	exists, err := uc.jobRepo.Exists(ctx, query.JobID)
	if err != nil {
		return nil, fmt.Errorf("failed to check job existence: %w", err)
	}
	if !exists {
		return nil, errors.NewDomainError("JOB_NOT_FOUND", "job not found", errors.ErrJobNotFound)
	}

	apps, err := uc.appRepo.ListByJob(ctx, query.JobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}

	return dtos.ToApplicationDTOList(apps), nil
}
