// Package handlers содержит HTTP handlers для REST API.
//
// Handler - это Adapter в терминах Clean Architecture:
// - Принимает HTTP запрос
// - Преобразует в Command/Query DTO
// - Отправляет его в bus
// - Преобразует результат в HTTP ответ
package handlers

import (
	"encoding/json"
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/Haleralex/payledger/internal/adapters/http/common"
	"github.com/Haleralex/payledger/internal/domain/entities"
	"github.com/Haleralex/payledger/internal/domain/valueobjects"
)

// ============================================
// Custom Validator Setup
// ============================================

var setupOnce sync.Once

// SetupValidator настраивает валидатор Gin: теги `validate`, имена полей из json,
// кастомные правила money_amount, currency_code, payment_status.
func SetupValidator() {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		v.SetTagName("validate")
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			if name == "-" {
				return ""
			}
			return name
		})

		_ = v.RegisterValidation("currency_code", validateCurrencyCode)
		_ = v.RegisterValidation("money_amount", validateMoneyAmount)
		_ = v.RegisterValidation("payment_status", validatePaymentStatus)
	})
}

// ============================================
// Custom Validators
// ============================================

// validateCurrencyCode проверяет, что валюта поддерживается.
func validateCurrencyCode(fl validator.FieldLevel) bool {
	return valueobjects.IsSupportedCurrency(fl.Field().String())
}

// moneyPattern - неотрицательная десятичная строка.
var moneyPattern = regexp.MustCompile(`^\d+(\.\d{1,8})?$`)

func validateMoneyAmount(fl validator.FieldLevel) bool {
	return moneyPattern.MatchString(fl.Field().String())
}

// validatePaymentStatus работает и для string, и для *string (omitempty пропускает nil).
func validatePaymentStatus(fl validator.FieldLevel) bool {
	return entities.PaymentStatus(fl.Field().String()).IsValid()
}

// ============================================
// Validation Error Handling
// ============================================

// HandleValidationErrors преобразует ошибки валидации в HTTP ответ.
func HandleValidationErrors(c *gin.Context, err error) {
	var fieldErrors []common.FieldError

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, fieldErr := range validationErrors {
			fieldErrors = append(fieldErrors, common.FieldError{
				Field:   fieldErr.Field(),
				Message: validationMessage(fieldErr),
				Code:    fieldErr.Tag(),
			})
		}
	}

	if len(fieldErrors) == 0 {
		common.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	common.ValidationErrorResponse(c, fieldErrors)
}

// validationMessage возвращает человекочитаемое сообщение об ошибке.
func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "uuid":
		return fe.Field() + " must be a valid UUID"
	case "min":
		return fe.Field() + " is too short (minimum: " + fe.Param() + ")"
	case "max":
		return fe.Field() + " is too long (maximum: " + fe.Param() + ")"
	case "currency_code":
		return "unsupported currency"
	case "money_amount":
		return "invalid amount format (use a decimal like '100.50')"
	case "payment_status":
		return "invalid status, expected one of PROCESSED, CANCELLED, REFUNDED"
	default:
		return fe.Field() + " is invalid"
	}
}

// ============================================
// Request Parsing Helpers
// ============================================

// BindJSON биндит JSON тело запроса.
// Возвращает false если была ошибка (ответ уже отправлен).
func BindJSON[T any](c *gin.Context, req *T) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		HandleValidationErrors(c, err)
		return false
	}
	return true
}

// BindQuery биндит query параметры.
func BindQuery[T any](c *gin.Context, req *T) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		HandleValidationErrors(c, err)
		return false
	}
	return true
}

// Validate валидирует уже собранную структуру.
func Validate[T any](c *gin.Context, req *T) bool {
	if err := binding.Validator.ValidateStruct(req); err != nil {
		HandleValidationErrors(c, err)
		return false
	}
	return true
}

// flexibleAmount принимает сумму и числом (500.5), и строкой ("500.50").
type flexibleAmount string

func (a *flexibleAmount) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("amount must be a number or a decimal string")
	}
	*a = flexibleAmount(n.String())
	return nil
}
