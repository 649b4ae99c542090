// Package dtos - Mappers для конвертации domain entities в DTOs.
package dtos

import (
	"github.com/Haleralex/jobboard/internal/domain/entities"
)

// ToJobDTO конвертирует domain entity Job в DTO.
func ToJobDTO(job *entities.Job) JobDTO {
	return JobDTO{
		ID:          job.ID(),
		Title:       job.Title(),
		Description: job.Description(),
		PostedAt:    job.PostedAt(),
	}
}

// ToJobDTOList конвертирует список вакансий.
func ToJobDTOList(jobs []*entities.Job) []JobDTO {
	result := make([]JobDTO, len(jobs))
	for i, job := range jobs {
		result[i] = ToJobDTO(job)
	}
	return result
}

// ToApplicationDTO конвертирует domain entity Application в DTO.
func ToApplicationDTO(app *entities.Application) ApplicationDTO {
	return ApplicationDTO{
		ID:             app.ID(),
		JobID:          app.JobID(),
		ApplicantName:  app.ApplicantName(),
		ApplicantEmail: app.ApplicantEmail(),
		AppliedAt:      app.AppliedAt(),
	}
}

// ToApplicationDTOList конвертирует список откликов.
func ToApplicationDTOList(apps []*entities.Application) []ApplicationDTO {
	result := make([]ApplicationDTO, len(apps))
	for i, app := range apps {
		result[i] = ToApplicationDTO(app)
	}
	return result
}
