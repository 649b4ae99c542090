// Package dtos определяет Data Transfer Objects для передачи данных между слоями.
//
// Domain entities не выходят за пределы application слоя:
// handlers работают только с DTOs.
//
// Pattern: Data Transfer Object
package dtos

import "time"

// ============================================
// Commands (Write операции)
// ============================================

// CreateJobCommand - команда для публикации вакансии.
type CreateJobCommand struct {
	Title       string `json:"title" validate:"required,job_title"`
	Description string `json:"description" validate:"max=10000"`
}

// SubmitApplicationCommand - команда для отклика на вакансию.
type SubmitApplicationCommand struct {
	JobID          int64  `json:"jobId" validate:"required,gt=0"`
	ApplicantName  string `json:"applicantName" validate:"required,min=1,max=200"`
	ApplicantEmail string `json:"applicantEmail" validate:"required,email,max=320"`
}

// ============================================
// Queries (Read операции)
// ============================================

// GetJobQuery - запрос вакансии по ID.
type GetJobQuery struct {
	JobID int64 `json:"jobId" validate:"required,gt=0"`
}

// ListJobsQuery - запрос списка вакансий с пагинацией.
type ListJobsQuery struct {
	Offset int `json:"offset" validate:"min=0"`
	Limit  int `json:"limit" validate:"min=1,max=100"`
}

// ListApplicationsQuery - запрос откликов на вакансию.
type ListApplicationsQuery struct {
	JobID int64 `json:"jobId" validate:"required,gt=0"`
}

// ============================================
// Results
// ============================================

// JobDTO - представление вакансии.
type JobDTO struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PostedAt    time.Time `json:"postedAt"`
}

// JobListDTO - страница вакансий.
type JobListDTO struct {
	Jobs       []JobDTO `json:"jobs"`
	TotalCount int      `json:"totalCount"`
	Offset     int      `json:"offset"`
	Limit      int      `json:"limit"`
}

// ApplicationDTO - представление отклика.
type ApplicationDTO struct {
	ID             int64     `json:"id"`
	JobID          int64     `json:"jobId"`
	ApplicantName  string    `json:"applicantName"`
	ApplicantEmail string    `json:"applicantEmail"`
	AppliedAt      time.Time `json:"appliedAt"`
}

// ApplicationSubmittedDTO - результат отклика: заявка принята к обработке.
//
// Запись появится в хранилище асинхронно, когда consumer обработает событие.
type ApplicationSubmittedDTO struct {
	ApplicationID int64     `json:"applicationId"`
	JobID         int64     `json:"jobId"`
	MessageID     string    `json:"messageId"`
	AppliedAt     time.Time `json:"appliedAt"`
}
