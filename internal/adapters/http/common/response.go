// Package common содержит общие типы для HTTP слоя.
//
// Вынесен в отдельный пакет чтобы избежать циклических импортов
// между handlers, middleware и основным http пакетом.
package common

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	domainerrors "github.com/Haleralex/payledger/internal/domain/errors"
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
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
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

// ============================================
// Error Codes
// ============================================

const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeConcurrency     = "CONCURRENCY_ERROR"
	ErrCodePersistence     = "PERSISTENCE_ERROR"
	ErrCodeTooManyRequests = "TOO_MANY_REQUESTS"
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeUnavailable     = "SERVICE_UNAVAILABLE"
)

// ============================================
// Request ID
// ============================================

const (
	// RequestIDHeader - заголовок запроса/ответа
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey - ключ в gin.Context
	RequestIDKey = "request_id"
)

// ============================================
// Idempotency
// ============================================

const (
	// IdempotencyKeyHeader - ключ безопасного повтора POST /payments
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayHeader выставляется, когда ответ взят из первого запроса с тем же ключом
	IdempotentReplayHeader = "Idempotent-Replayed"
)

// GetRequestID возвращает Request ID из контекста.
func GetRequestID(c *gin.Context) string {
	if id, ok := c.Get(RequestIDKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// SetRequestID сохраняет Request ID в контекст и заголовок ответа.
func SetRequestID(c *gin.Context, id string) {
	c.Set(RequestIDKey, id)
	c.Header(RequestIDHeader, id)
}

// ============================================
// Response Helpers
// ============================================

// Success отправляет успешный ответ.
func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, APIResponse{
		Success:   true,
		Data:      data,
		RequestID: GetRequestID(c),
		Timestamp: time.Now().UTC(),
	})
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

// Error отправляет ответ с ошибкой.
func Error(c *gin.Context, statusCode int, apiError *APIError) {
	c.JSON(statusCode, APIResponse{
		Success:   false,
		Error:     apiError,
		RequestID: GetRequestID(c),
		Timestamp: time.Now().UTC(),
	})
}

// AbortWithError прерывает цепочку middleware с ошибкой.
func AbortWithError(c *gin.Context, statusCode int, apiError *APIError) {
	c.AbortWithStatusJSON(statusCode, APIResponse{
		Success:   false,
		Error:     apiError,
		RequestID: GetRequestID(c),
		Timestamp: time.Now().UTC(),
	})
}

// ValidationErrorResponse создаёт ответ для ошибок валидации.
func ValidationErrorResponse(c *gin.Context, fields []FieldError) {
	message := "Request validation failed"
	if len(fields) == 1 {
		message = fields[0].Message
	}
	Error(c, http.StatusBadRequest, &APIError{
		Code:    ErrCodeValidation,
		Message: message,
		Fields:  fields,
	})
}

// BadRequestResponse создаёт ответ для некорректного запроса.
func BadRequestResponse(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, &APIError{
		Code:    ErrCodeBadRequest,
		Message: message,
	})
}

// TooManyRequestsResponse создаёт ответ для rate limiting.
func TooManyRequestsResponse(c *gin.Context, retryAfter int) {
	AbortWithError(c, http.StatusTooManyRequests, &APIError{
		Code:       ErrCodeTooManyRequests,
		Message:    "Rate limit exceeded, please try again later",
		RetryAfter: retryAfter,
	})
}

// InternalErrorResponse создаёт ответ для внутренней ошибки.
func InternalErrorResponse(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, &APIError{
		Code:    ErrCodeInternal,
		Message: message,
	})
}

// ============================================
// Domain Error to HTTP Error Mapper
// ============================================

// HandleDomainError преобразует domain error в HTTP response.
//
//	ValidationError  -> 400 VALIDATION_ERROR
//	ErrEntityNotFound -> 404 NOT_FOUND
//	ConcurrencyError -> 409 CONCURRENCY_ERROR (retryable)
//	ConflictError    -> 409 CONFLICT
//	PersistenceError -> 503 PERSISTENCE_ERROR
//	остальное        -> 500 INTERNAL_ERROR
func HandleDomainError(c *gin.Context, err error) {
	_ = c.Error(err)

	var (
		valErr         domainerrors.ValidationError
		concurrencyErr *domainerrors.ConcurrencyError
		conflictErr    *domainerrors.ConflictError
		persistErr     *domainerrors.PersistenceError
	)

	switch {
	case errors.As(err, &valErr):
		ValidationErrorResponse(c, []FieldError{
			{Field: valErr.Field, Message: valErr.Message, Code: "invalid"},
		})

	case domainerrors.IsNotFound(err):
		Error(c, http.StatusNotFound, &APIError{
			Code:    ErrCodeNotFound,
			Message: err.Error(),
		})

	case errors.As(err, &concurrencyErr):
		Error(c, http.StatusConflict, &APIError{
			Code:    ErrCodeConcurrency,
			Message: "Resource was modified by another request, please retry",
			Details: map[string]any{
				"resource":  concurrencyErr.EntityType,
				"id":        concurrencyErr.EntityID,
				"retryable": true,
			},
		})

	case errors.As(err, &conflictErr):
		Error(c, http.StatusConflict, &APIError{
			Code:    ErrCodeConflict,
			Message: conflictErr.Message,
			Details: map[string]any{
				"resource": conflictErr.Resource,
				"id":       conflictErr.ID,
			},
		})

	case errors.As(err, &persistErr):
		Error(c, http.StatusServiceUnavailable, &APIError{
			Code:    ErrCodePersistence,
			Message: "Storage is temporarily unavailable, please retry",
		})

	default:
		InternalErrorResponse(c, "An unexpected error occurred")
	}
}
