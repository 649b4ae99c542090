// Package common содержит формат ответов API, общий для handlers и middleware.
package common

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	domainerrors "github.com/Haleralex/jobboard/internal/domain/errors"
)

// ============================================
// Standard API Response Format
// ============================================

// APIResponse - стандартный формат ответа API.
type APIResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	Meta      *APIMeta  `json:"meta,omitempty"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// APIMeta - мета-информация для пагинации.
type APIMeta struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	Total      int `json:"total,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
}

// APIError - структура ошибки API.
type APIError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	Fields     []FieldError   `json:"fields,omitempty"`
	RetryAfter int            `json:"retry_after,omitempty"`
}

// FieldError - ошибка конкретного поля.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Коды ошибок API.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeTooManyRequests = "TOO_MANY_REQUESTS"
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeUnavailable     = "SERVICE_UNAVAILABLE"
)

// requestIDContextKey - ключ, под которым middleware.RequestID хранит ID.
const requestIDContextKey = "request_id"

// GetRequestID возвращает Request ID из контекста.
func GetRequestID(c *gin.Context) string {
	id, _ := c.Get(requestIDContextKey)
	s, _ := id.(string)
	return s
}

// ============================================
// Response Helpers
// ============================================

// Success отправляет успешный ответ.
func Success(c *gin.Context, statusCode int, data any) {
	SuccessWithMeta(c, statusCode, data, nil)
}

// SuccessWithMeta отправляет успешный ответ с мета-информацией.
func SuccessWithMeta(c *gin.Context, statusCode int, data any, meta *APIMeta) {
	c.JSON(statusCode, APIResponse{
		Success:   true,
		Data:      data,
		Meta:      meta,
		RequestID: GetRequestID(c),
		Timestamp: time.Now().UTC(),
	})
}

// Error отправляет ответ с ошибкой и прерывает цепочку handlers.
func Error(c *gin.Context, statusCode int, apiError *APIError) {
	c.AbortWithStatusJSON(statusCode, APIResponse{
		Success:   false,
		Error:     apiError,
		RequestID: GetRequestID(c),
		Timestamp: time.Now().UTC(),
	})
}

func errorWithCode(c *gin.Context, statusCode int, code, message string) {
	Error(c, statusCode, &APIError{Code: code, Message: message})
}

// ValidationErrorResponse - 400 с ошибками по полям.
func ValidationErrorResponse(c *gin.Context, fields []FieldError) {
	Error(c, http.StatusBadRequest, &APIError{
		Code:    ErrCodeValidation,
		Message: "Request validation failed",
		Fields:  fields,
	})
}

// NotFoundResponse - 404 для ресурса.
func NotFoundResponse(c *gin.Context, resource string) {
	Error(c, http.StatusNotFound, &APIError{
		Code:    ErrCodeNotFound,
		Message: resource + " not found",
		Details: map[string]any{"resource": resource},
	})
}

// BadRequestResponse - 400 без деталей по полям.
func BadRequestResponse(c *gin.Context, message string) {
	errorWithCode(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// UnauthorizedResponse - 401.
func UnauthorizedResponse(c *gin.Context, message string) {
	errorWithCode(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// ForbiddenResponse - 403.
func ForbiddenResponse(c *gin.Context, message string) {
	errorWithCode(c, http.StatusForbidden, ErrCodeForbidden, message)
}

// ConflictResponse - 409.
func ConflictResponse(c *gin.Context, message string) {
	errorWithCode(c, http.StatusConflict, ErrCodeConflict, message)
}

// TooManyRequestsResponse - 429; retryAfter в секундах дублирует заголовок Retry-After.
func TooManyRequestsResponse(c *gin.Context, retryAfter int) {
	Error(c, http.StatusTooManyRequests, &APIError{
		Code:       ErrCodeTooManyRequests,
		Message:    "Rate limit exceeded, please try again later",
		RetryAfter: retryAfter,
	})
}

// InternalErrorResponse - 500. message уходит клиенту, детали ошибки не передавать.
func InternalErrorResponse(c *gin.Context, message string) {
	errorWithCode(c, http.StatusInternalServerError, ErrCodeInternal, message)
}

// UnavailableResponse - 503.
func UnavailableResponse(c *gin.Context, message string) {
	errorWithCode(c, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// ============================================
// Domain Error to HTTP Error Mapper
// ============================================

// HandleDomainError преобразует ошибку use case в HTTP ответ.
//
// Ошибки валидации отдаются списком полей, DomainError - своим кодом,
// неизвестные ошибки - 500 без текста исходной ошибки.
func HandleDomainError(c *gin.Context, err error) {
	if fields := validationFields(err); fields != nil {
		ValidationErrorResponse(c, fields)
		return
	}

	var domainErr *domainerrors.DomainError
	if errors.As(err, &domainErr) {
		errorWithCode(c, domainStatus(domainErr), domainErr.Code, domainErr.Message)
		return
	}

	switch {
	case domainerrors.IsNotFound(err):
		NotFoundResponse(c, "Resource")
	case domainerrors.IsDuplicate(err):
		ConflictResponse(c, "Resource already exists")
	case errors.Is(err, domainerrors.ErrPublishFailed):
		UnavailableResponse(c, "Event broker is unavailable, please retry")
	default:
		InternalErrorResponse(c, "An unexpected error occurred")
	}
}

func validationFields(err error) []FieldError {
	var many domainerrors.ValidationErrors
	if errors.As(err, &many) && len(many) > 0 {
		fields := make([]FieldError, 0, len(many))
		for _, v := range many {
			fields = append(fields, FieldError{Field: v.Field, Message: v.Message, Code: "invalid"})
		}
		return fields
	}

	var one domainerrors.ValidationError
	if errors.As(err, &one) {
		return []FieldError{{Field: one.Field, Message: one.Message, Code: "invalid"}}
	}
	return nil
}

func domainStatus(err *domainerrors.DomainError) int {
	switch {
	case domainerrors.IsNotFound(err):
		return http.StatusNotFound
	case domainerrors.IsDuplicate(err):
		return http.StatusConflict
	case errors.Is(err, domainerrors.ErrPublishFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
