// Package handlers - Job HTTP handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Haleralex/jobboard/internal/adapters/http/common"
	"github.com/Haleralex/jobboard/internal/application/dtos"
)

// ============================================
// Use Case Interfaces
// ============================================

// CreateJobUseCase - интерфейс для публикации вакансии.
type CreateJobUseCase interface {
	Execute(ctx context.Context, cmd dtos.CreateJobCommand) (*dtos.JobDTO, error)
}

// GetJobUseCase - интерфейс для получения вакансии.
type GetJobUseCase interface {
	Execute(ctx context.Context, query dtos.GetJobQuery) (*dtos.JobDTO, error)
}

// ListJobsUseCase - интерфейс для получения списка вакансий.
type ListJobsUseCase interface {
	Execute(ctx context.Context, query dtos.ListJobsQuery) (*dtos.JobListDTO, error)
}

// ============================================
// Job Handler
// ============================================

// JobHandler обрабатывает HTTP запросы для вакансий.
type JobHandler struct {
	createJob CreateJobUseCase
	getJob    GetJobUseCase
	listJobs  ListJobsUseCase
}

// NewJobHandler создаёт новый JobHandler.
func NewJobHandler(createJob CreateJobUseCase, getJob GetJobUseCase, listJobs ListJobsUseCase) *JobHandler {
	return &JobHandler{
		createJob: createJob,
		getJob:    getJob,
		listJobs:  listJobs,
	}
}

// ============================================
// Request DTOs
// ============================================

// CreateJobRequest - запрос на публикацию вакансии.
//
// @Description Create job request body
type CreateJobRequest struct {
	Title       string `json:"title" binding:"required,job_title"`
	Description string `json:"description" binding:"max=10000"`
}

// ============================================
// HTTP Handlers
// ============================================

// CreateJob публикует вакансию. Только для роли employer.
//
// @Summary Post a job
// @Tags Jobs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateJobRequest true "Job data"
// @Success 201 {object} common.APIResponse{data=dtos.JobDTO}
// @Failure 400 {object} common.APIResponse
// @Failure 401 {object} common.APIResponse
// @Failure 403 {object} common.APIResponse
// @Router /api/v1/jobs [post]
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if !BindJSON(c, &req) {
		return
	}

	result, err := h.createJob.Execute(c.Request.Context(), dtos.CreateJobCommand{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}

	common.Success(c, http.StatusCreated, result)
}

// GetJob возвращает вакансию по ID.
//
// @Summary Get job by ID
// @Tags Jobs
// @Produce json
// @Param id path int true "Job ID"
// @Success 200 {object} common.APIResponse{data=dtos.JobDTO}
// @Failure 400 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /api/v1/jobs/{id} [get]
func (h *JobHandler) GetJob(c *gin.Context) {
	id, ok := ParseIDParam(c, "id")
	if !ok {
		return
	}

	result, err := h.getJob.Execute(c.Request.Context(), dtos.GetJobQuery{JobID: id})
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}

	common.Success(c, http.StatusOK, result)
}

// ListJobs возвращает вакансии, новые первыми.
//
// @Summary List jobs
// @Tags Jobs
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20) maximum(100)
// @Success 200 {object} common.APIResponse{data=[]dtos.JobDTO}
// @Router /api/v1/jobs [get]
func (h *JobHandler) ListJobs(c *gin.Context) {
	pagination := ParsePagination(c)

	result, err := h.listJobs.Execute(c.Request.Context(), dtos.ListJobsQuery{
		Offset: pagination.Offset(),
		Limit:  pagination.PerPage,
	})
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}

	common.SuccessWithMeta(c, http.StatusOK, result.Jobs, BuildMeta(pagination, result.TotalCount))
}

// RegisterRoutes регистрирует маршруты вакансий.
// employerOnly применяется только к POST /jobs.
func (h *JobHandler) RegisterRoutes(rg *gin.RouterGroup, employerOnly ...gin.HandlerFunc) {
	jobs := rg.Group("/jobs")
	jobs.GET("", h.ListJobs)
	jobs.GET("/:id", h.GetJob)
	jobs.POST("", append(employerOnly, h.CreateJob)...)
}
