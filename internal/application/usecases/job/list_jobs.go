package job

import (
	"context"
	"fmt"

	"github.com/Haleralex/jobboard/internal/application/dtos"
	"github.com/Haleralex/jobboard/internal/application/ports"
)

// ListJobsUseCase - use case для получения списка вакансий с пагинацией.
type ListJobsUseCase struct {
	jobRepo ports.JobRepository
}

// NewListJobsUseCase создаёт новый use case.
func NewListJobsUseCase(jobRepo ports.JobRepository) *ListJobsUseCase {
	return &ListJobsUseCase{
		jobRepo: jobRepo,
	}
}

// Execute возвращает страницу вакансий, новые первыми.
func (uc *ListJobsUseCase) Execute(ctx context.Context, query dtos.ListJobsQuery) (*dtos.JobListDTO, error) {
	jobs, err := uc.jobRepo.List(ctx, query.Offset, query.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	total, err := uc.jobRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	return &dtos.JobListDTO{
		Jobs:       dtos.ToJobDTOList(jobs),
		TotalCount: total,
		Offset:     query.Offset,
		Limit:      query.Limit,
	}, nil
}
