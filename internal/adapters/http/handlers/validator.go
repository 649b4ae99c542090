// Package handlers содержит HTTP handlers REST API.
//
// Handler разбирает запрос в command/query DTO, вызывает use case
// и отдаёт результат в формате common.APIResponse.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/Haleralex/jobboard/internal/adapters/http/common"
	"github.com/Haleralex/jobboard/internal/domain/entities"
)

// ============================================
// Validator setup
// ============================================

var setupOnce sync.Once

// SetupValidator регистрирует в движке gin json-имена полей и тег job_title.
func SetupValidator() {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(jsonFieldName)
		_ = v.RegisterValidation("job_title", validateJobTitle)
	})
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// validateJobTitle: непустой после trim и не длиннее entities.MaxJobTitleLength рун.
func validateJobTitle(fl validator.FieldLevel) bool {
	title := strings.TrimSpace(fl.Field().String())
	return title != "" && utf8.RuneCountInString(title) <= entities.MaxJobTitleLength
}

// ============================================
// Binding
// ============================================

// BindJSON биндит JSON тело запроса.
// false означает, что 400 уже отправлен.
func BindJSON[T any](c *gin.Context, req *T) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondBindError(c, err)
		return false
	}
	return true
}

// respondBindError отдаёт ошибку биндинга: поля для validator и JSON
// ошибок типа, общий 400 для остального.
func respondBindError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fields := make([]common.FieldError, 0, len(validationErrs))
		for _, fe := range validationErrs {
			fields = append(fields, common.FieldError{
				Field:   fe.Field(),
				Message: validationMessage(fe),
				Code:    fe.Tag(),
			})
		}
		common.ValidationErrorResponse(c, fields)
		return
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		common.ValidationErrorResponse(c, []common.FieldError{{
			Field:   typeErr.Field,
			Message: "Must be of type " + typeErr.Type.String(),
			Code:    "type",
		}})
		return
	}

	var syntaxErr *json.SyntaxError
	switch {
	case errors.Is(err, io.EOF):
		common.BadRequestResponse(c, "Request body is empty")
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		common.BadRequestResponse(c, "Request body is not valid JSON")
	default:
		common.BadRequestResponse(c, "Invalid request body")
	}
}

var validationMessages = map[string]func(validator.FieldError) string{
	"required": func(validator.FieldError) string { return "This field is required" },
	"email":    func(validator.FieldError) string { return "Invalid email format" },
	"gt":       func(fe validator.FieldError) string { return "Value must be greater than " + fe.Param() },
	"min":      func(fe validator.FieldError) string { return "Value is too short (minimum: " + fe.Param() + ")" },
	"max":      func(fe validator.FieldError) string { return "Value is too long (maximum: " + fe.Param() + ")" },
	"oneof":    func(fe validator.FieldError) string { return "Value must be one of: " + fe.Param() },
	"job_title": func(validator.FieldError) string {
		return "Title is required and must be at most " + strconv.Itoa(entities.MaxJobTitleLength) + " characters"
	},
}

func validationMessage(fe validator.FieldError) string {
	if msg, ok := validationMessages[fe.Tag()]; ok {
		return msg(fe)
	}
	return "Invalid value"
}

// ============================================
// Params and pagination
// ============================================

// ParseIDParam читает положительный int64 из URL параметра.
// false означает, что 400 уже отправлен.
func ParseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		common.ValidationErrorResponse(c, []common.FieldError{
			{Field: name, Message: "Must be a positive integer", Code: "gt"},
		})
		return 0, false
	}
	return id, true
}

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// PaginationParams - параметры пагинации из query string.
type PaginationParams struct {
	Page    int
	PerPage int
}

// Offset вычисляет offset для SQL запроса.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// ParsePagination читает page и per_page. Некорректные значения
// заменяются на 1 и 20, per_page больше 100 обрезается до 100.
func ParsePagination(c *gin.Context) PaginationParams {
	params := PaginationParams{Page: 1, PerPage: defaultPerPage}

	if p, err := strconv.Atoi(c.Query("page")); err == nil && p > 0 {
		params.Page = p
	}
	if pp, err := strconv.Atoi(c.Query("per_page")); err == nil && pp > 0 {
		params.PerPage = min(pp, maxPerPage)
	}
	return params
}

// BuildMeta создаёт мета-информацию для пагинированного ответа.
func BuildMeta(params PaginationParams, total int) *common.APIMeta {
	return &common.APIMeta{
		Page:       params.Page,
		PerPage:    params.PerPage,
		Total:      total,
		TotalPages: (total + params.PerPage - 1) / params.PerPage,
	}
}
