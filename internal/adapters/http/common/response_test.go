package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/Haleralex/payledger/internal/domain/errors"
)

func setupTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(RequestIDKey, "test-request-123")
	return c, w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRequestID(t *testing.T) {
	t.Run("ReturnsRequestID", func(t *testing.T) {
		c, _ := setupTestContext()
		assert.Equal(t, "test-request-123", GetRequestID(c))
	})

	t.Run("ReturnsEmptyWhenNotSet", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		assert.Empty(t, GetRequestID(c))
	})

	t.Run("SetWritesHeader", func(t *testing.T) {
		c, w := setupTestContext()
		SetRequestID(c, "new-id-456")

		assert.Equal(t, "new-id-456", GetRequestID(c))
		assert.Equal(t, "new-id-456", w.Header().Get(RequestIDHeader))
	})
}

func TestSuccessWithMeta(t *testing.T) {
	c, w := setupTestContext()

	SuccessWithMeta(c, http.StatusOK, []string{"a", "b"}, &APIMeta{Page: 2, PerPage: 2, Total: 5, TotalPages: 3})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "test-request-123", resp.RequestID)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(5), resp.Meta.Total)
	assert.Equal(t, 3, resp.Meta.TotalPages)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestValidationErrorResponse_SingleFieldMessage(t *testing.T) {
	c, w := setupTestContext()

	ValidationErrorResponse(c, []FieldError{{Field: "amount", Message: "amount must be greater than zero", Code: "invalid"}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "amount must be greater than zero", resp.Error.Message)
	assert.Len(t, resp.Error.Fields, 1)
}

func TestTooManyRequestsResponse(t *testing.T) {
	c, w := setupTestContext()

	TooManyRequestsResponse(c, 30)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.True(t, c.IsAborted())
	resp := decode(t, w)
	assert.Equal(t, ErrCodeTooManyRequests, resp.Error.Code)
	assert.Equal(t, 30, resp.Error.RetryAfter)
}

func TestHandleDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "validation",
			err:        domainerrors.NewValidationError("amount", "insufficient funds: available 250.00, required 300.00", domainerrors.ErrInsufficientBalance),
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
			wantMsg:    "insufficient funds: available 250.00, required 300.00",
		},
		{
			name:       "wrapped validation",
			err:        fmt.Errorf("process: %w", domainerrors.NewValidationError("currency", "unsupported currency", nil)),
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
		},
		{
			name:       "not found",
			err:        fmt.Errorf("%w: payment 123", domainerrors.ErrEntityNotFound),
			wantStatus: http.StatusNotFound,
			wantCode:   ErrCodeNotFound,
			wantMsg:    "entity not found: payment 123",
		},
		{
			name:       "conflict",
			err:        domainerrors.NewConflictError("Payment", "p1", "payment p1 already cancelled or refunded", domainerrors.ErrPaymentAlreadySettled),
			wantStatus: http.StatusConflict,
			wantCode:   ErrCodeConflict,
			wantMsg:    "payment p1 already cancelled or refunded",
		},
		{
			name:       "concurrency",
			err:        domainerrors.NewConcurrencyError("Wallet", "WAL-001", 3, "version taken"),
			wantStatus: http.StatusConflict,
			wantCode:   ErrCodeConcurrency,
		},
		{
			name:       "persistence",
			err:        domainerrors.NewPersistenceError("append event", errors.New("connection refused")),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   ErrCodePersistence,
		},
		{
			name:       "unknown",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   ErrCodeInternal,
			wantMsg:    "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := setupTestContext()

			HandleDomainError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decode(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, resp.Error.Message)
			}
			assert.Len(t, c.Errors, 1)
		})
	}
}

func TestHandleDomainError_DoesNotLeakInternals(t *testing.T) {
	c, w := setupTestContext()

	HandleDomainError(c, domainerrors.NewPersistenceError("append event", errors.New("password=secret host=db")))

	assert.NotContains(t, w.Body.String(), "secret")
}
