package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/Haleralex/payledger/internal/adapters/http/common"
	"github.com/Haleralex/payledger/internal/pkg/logger"
)

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("GeneratesNewRequestID", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			c.String(200, "ok")
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		requestID := w.Header().Get(common.RequestIDHeader)
		assert.NotEmpty(t, requestID)
		assert.Len(t, requestID, 36) // UUID length
	})

	t.Run("UsesProvidedRequestID", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			c.String(200, "ok")
		})

		customID := "custom-request-123"
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(common.RequestIDHeader, customID)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, customID, w.Header().Get(common.RequestIDHeader))
	})

	t.Run("ReplacesOversizedRequestID", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			c.String(200, "ok")
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(common.RequestIDHeader, strings.Repeat("a", 500))
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Len(t, w.Header().Get(common.RequestIDHeader), 36)
	})

	t.Run("StoresRequestIDInBothContexts", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())

		var ginID, ctxID string
		router.GET("/test", func(c *gin.Context) {
			ginID = GetRequestID(c)
			ctxID = logger.GetRequestID(c.Request.Context())
			c.String(200, "ok")
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		responseID := w.Header().Get(common.RequestIDHeader)
		assert.NotEmpty(t, ginID)
		assert.Equal(t, responseID, ginID)
		assert.Equal(t, responseID, ctxID)
	})
}

func TestGetRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("ReturnsRequestID", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(common.RequestIDKey, "test-id-123")

		assert.Equal(t, "test-id-123", GetRequestID(c))
	})

	t.Run("ReturnsEmptyWhenNotSet", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())

		assert.Empty(t, GetRequestID(c))
	})

	t.Run("ReturnsEmptyWhenWrongType", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(common.RequestIDKey, 12345)

		assert.Empty(t, GetRequestID(c))
	})
}
