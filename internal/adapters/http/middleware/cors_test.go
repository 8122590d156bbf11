package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Haleralex/payledger/internal/adapters/http/common"
)

func corsRouter(config *CORSConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORS(config))
	router.POST("/api/v1/payments", func(c *gin.Context) {
		c.Header(common.IdempotentReplayHeader, "true")
		c.Status(http.StatusOK)
	})
	return router
}

func corsRequest(router *gin.Engine, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/v1/payments", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if method == http.MethodOptions {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", common.IdempotencyKeyHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		config      *CORSConfig
		method      string
		origin      string
		wantStatus  int
		wantOrigin  string
		wantVary    bool
		wantCreds   bool
		wantHeaders bool
	}{
		{
			name:        "preflight for payment with idempotency key",
			config:      DefaultCORSConfig(),
			method:      http.MethodOptions,
			origin:      "http://localhost:3000",
			wantStatus:  http.StatusNoContent,
			wantOrigin:  "*",
			wantHeaders: true,
		},
		{
			name:        "nil config uses defaults",
			config:      nil,
			method:      http.MethodPost,
			origin:      "http://localhost:3000",
			wantStatus:  http.StatusOK,
			wantOrigin:  "*",
			wantHeaders: true,
		},
		{
			name:        "listed origin is echoed",
			config:      ProductionCORSConfig([]string{"https://ledger.example.com"}),
			method:      http.MethodPost,
			origin:      "https://ledger.example.com",
			wantStatus:  http.StatusOK,
			wantOrigin:  "https://ledger.example.com",
			wantVary:    true,
			wantCreds:   true,
			wantHeaders: true,
		},
		{
			name:       "unlisted origin gets no CORS headers",
			config:     ProductionCORSConfig([]string{"https://ledger.example.com"}),
			method:     http.MethodPost,
			origin:     "https://evil.example.com",
			wantStatus: http.StatusOK,
			wantVary:   true,
		},
		{
			name:        "wildcard with credentials echoes origin",
			config:      NewCORSConfig([]string{"*"}, nil, nil, nil, true, time.Hour),
			method:      http.MethodPost,
			origin:      "https://partner.example.com",
			wantStatus:  http.StatusOK,
			wantOrigin:  "https://partner.example.com",
			wantVary:    true,
			wantCreds:   true,
			wantHeaders: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := corsRequest(corsRouter(tt.config), tt.method, tt.origin)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantVary, w.Header().Get("Vary") == "Origin")
			assert.Equal(t, tt.wantCreds, w.Header().Get("Access-Control-Allow-Credentials") == "true")

			if !tt.wantHeaders {
				assert.Empty(t, w.Header().Get("Access-Control-Expose-Headers"))
				return
			}
			assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), common.IdempotencyKeyHeader)
			expose := w.Header().Get("Access-Control-Expose-Headers")
			for _, h := range []string{common.IdempotentReplayHeader, RateLimitRemainingHeader, RetryAfterHeader} {
				assert.Contains(t, expose, h)
			}
		})
	}
}

func TestNewCORSConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		config := NewCORSConfig(nil, nil, nil, nil, false, 12*time.Hour)

		assert.Equal(t, []string{"*"}, config.AllowOrigins)
		assert.Equal(t, []string{http.MethodGet, http.MethodPost, http.MethodOptions}, config.AllowMethods)
		assert.Equal(t, 43200, config.MaxAge)
		assert.False(t, config.AllowCredentials)
	})

	t.Run("RequiredHeadersAreKept", func(t *testing.T) {
		// Настройки без заголовков ledger'а, с другим регистром для X-Request-ID.
		config := NewCORSConfig(
			[]string{"https://ledger.example.com"},
			[]string{http.MethodGet},
			[]string{"x-request-id"},
			[]string{"X-Custom"},
			true,
			time.Minute,
		)

		assert.Equal(t, []string{http.MethodGet}, config.AllowMethods)
		assert.Equal(t, []string{"Origin", "Accept", "x-request-id", "Content-Type", common.IdempotencyKeyHeader}, config.AllowHeaders)
		require.NotEmpty(t, config.ExposeHeaders)
		assert.Equal(t, "X-Custom", config.ExposeHeaders[0])
		assert.Subset(t, config.ExposeHeaders, []string{
			common.RequestIDHeader,
			common.IdempotentReplayHeader,
			RateLimitLimitHeader,
			RateLimitRemainingHeader,
			RateLimitResetHeader,
			RetryAfterHeader,
		})
		assert.Equal(t, 60, config.MaxAge)
	})

	t.Run("DoesNotMutateInput", func(t *testing.T) {
		exposed := make([]string, 1, 8)
		exposed[0] = "X-Custom"

		NewCORSConfig(nil, nil, nil, exposed, false, time.Minute)

		assert.Equal(t, []string{"X-Custom"}, exposed)
		assert.Equal(t, "X-Custom", exposed[:cap(exposed)][0])
		assert.Empty(t, exposed[:2][1])
	})
}
