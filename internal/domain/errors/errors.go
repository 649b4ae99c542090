// Package errors - ошибки домена вакансий и откликов.
//
// Use cases и адаптеры различают случаи через errors.Is/As на sentinel
// ошибках и типах этого пакета; текст ошибок для ветвления не используется.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEntityNotFound      = errors.New("entity not found")
	ErrEntityAlreadyExists = errors.New("entity already exists")

	ErrJobNotFound     = fmt.Errorf("job %w", ErrEntityNotFound)
	ErrInvalidJobTitle = errors.New("invalid job title")

	ErrApplicationNotFound  = fmt.Errorf("application %w", ErrEntityNotFound)
	ErrInvalidEmail         = errors.New("invalid email address")
	ErrInvalidApplicant     = errors.New("invalid applicant name")
	ErrDuplicateApplication = errors.New("duplicate application")

	// ErrMalformedEvent - сообщение брокера нельзя декодировать или оно
	// не проходит проверку схемы. Повторная доставка не поможет.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrPublishFailed - брокер не подтвердил публикацию события.
	ErrPublishFailed = errors.New("event publish failed")
)

// DomainError - ошибка с машиночитаемым кодом для API (например JOB_NOT_FOUND).
// Err сохраняет исходную причину для errors.Is.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// NewDomainError создаёт DomainError.
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

func (e *DomainError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// ValidationError - нарушение правила для одного поля.
// Field совпадает с JSON именем поля в API и в событии.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors копит нарушения, чтобы вернуть их клиенту одним ответом.
type ValidationErrors []ValidationError

// Add добавляет нарушение для поля.
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// HasErrors сообщает, есть ли нарушения.
func (e ValidationErrors) HasErrors() bool { return len(e) > 0 }

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e))
	for i, v := range e {
		parts[i] = v.Error()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsNotFound - вакансия или отклик не найдены.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}

// IsDuplicate - отклик с таким ключом идемпотентности уже сохранён.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateApplication) || errors.Is(err, ErrEntityAlreadyExists)
}

// IsMalformedEvent - сообщение отклоняется без повторной доставки.
func IsMalformedEvent(err error) bool {
	return errors.Is(err, ErrMalformedEvent)
}

// IsValidationError - ошибка содержит ValidationError или ValidationErrors.
func IsValidationError(err error) bool {
	var one ValidationError
	var many ValidationErrors
	return errors.As(err, &one) || errors.As(err, &many)
}
