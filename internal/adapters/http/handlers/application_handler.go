// Package handlers - Application (отклик) HTTP handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Haleralex/jobboard/internal/adapters/http/common"
	"github.com/Haleralex/jobboard/internal/application/dtos"
)

// SubmitApplicationUseCase - интерфейс для отклика на вакансию.
type SubmitApplicationUseCase interface {
	Execute(ctx context.Context, cmd dtos.SubmitApplicationCommand) (*dtos.ApplicationSubmittedDTO, error)
}

// ListApplicationsUseCase - интерфейс для получения откликов на вакансию.
type ListApplicationsUseCase interface {
	Execute(ctx context.Context, query dtos.ListApplicationsQuery) ([]dtos.ApplicationDTO, error)
}

// ApplicationHandler обрабатывает отклики.
type ApplicationHandler struct {
	submit SubmitApplicationUseCase
	list   ListApplicationsUseCase
}

// NewApplicationHandler создаёт новый ApplicationHandler.
func NewApplicationHandler(submit SubmitApplicationUseCase, list ListApplicationsUseCase) *ApplicationHandler {
	return &ApplicationHandler{
		submit: submit,
		list:   list,
	}
}

// ApplyRequest - тело отклика.
//
// @Description Apply to job request body
type ApplyRequest struct {
	ApplicantName  string `json:"applicantName" binding:"required,min=1,max=200"`
	ApplicantEmail string `json:"applicantEmail" binding:"required,email,max=320"`
}

// Apply принимает отклик на вакансию.
//
// Ответ 202: событие отправлено в очередь, запись появится после
// обработки consumer-ом.
//
// @Summary Apply to a job
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path int true "Job ID"
// @Param request body ApplyRequest true "Applicant"
// @Success 202 {object} common.APIResponse{data=dtos.ApplicationSubmittedDTO}
// @Failure 400 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Failure 429 {object} common.APIResponse
// @Router /api/v1/jobs/{id}/apply [post]
func (h *ApplicationHandler) Apply(c *gin.Context) {
	jobID, ok := ParseIDParam(c, "id")
	if !ok {
		return
	}

	var req ApplyRequest
	if !BindJSON(c, &req) {
		return
	}

	result, err := h.submit.Execute(c.Request.Context(), dtos.SubmitApplicationCommand{
		JobID:          jobID,
		ApplicantName:  req.ApplicantName,
		ApplicantEmail: req.ApplicantEmail,
	})
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}

	common.Success(c, http.StatusAccepted, result)
}

// ListApplications возвращает сохранённые отклики на вакансию.
//
// @Summary List applications for a job
// @Tags Applications
// @Produce json
// @Param id path int true "Job ID"
// @Success 200 {object} common.APIResponse{data=[]dtos.ApplicationDTO}
// @Failure 404 {object} common.APIResponse
// @Router /api/v1/jobs/{id}/applications [get]
func (h *ApplicationHandler) ListApplications(c *gin.Context) {
	jobID, ok := ParseIDParam(c, "id")
	if !ok {
		return
	}

	result, err := h.list.Execute(c.Request.Context(), dtos.ListApplicationsQuery{JobID: jobID})
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}

	if result == nil {
		result = []dtos.ApplicationDTO{}
	}
	common.Success(c, http.StatusOK, result)
}

// RegisterRoutes регистрирует маршруты откликов.
// applyMiddleware (обычно rate limit) применяется только к отклику.
func (h *ApplicationHandler) RegisterRoutes(rg *gin.RouterGroup, applyMiddleware ...gin.HandlerFunc) {
	rg.POST("/jobs/:id/apply", append(applyMiddleware, h.Apply)...)
	rg.GET("/jobs/:id/applications", h.ListApplications)
}
