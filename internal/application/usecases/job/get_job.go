package job

import (
	"context"
	"fmt"

	"github.com/Haleralex/jobboard/internal/application/dtos"
	"github.com/Haleralex/jobboard/internal/application/ports"
	"github.com/Haleralex/jobboard/internal/domain/errors"
)

// GetJobUseCase - use case для получения вакансии по ID.
type GetJobUseCase struct {
	jobRepo ports.JobRepository
}

// NewGetJobUseCase создаёт новый use case.
func NewGetJobUseCase(jobRepo ports.JobRepository) *GetJobUseCase {
	return &GetJobUseCase{
		jobRepo: jobRepo,
	}
}

// Execute возвращает вакансию по ID.
func (uc *GetJobUseCase) Execute(ctx context.Context, query dtos.GetJobQuery) (*dtos.JobDTO, error) {
	if query.JobID <= 0 {
		return nil, errors.ValidationError{Field: "job_id", Message: "must be positive"}
	}

	job, err := uc.jobRepo.FindByID(ctx, query.JobID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewDomainError("JOB_NOT_FOUND", "job not found", err)
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	result := dtos.ToJobDTO(job)
	return &result, nil
}
