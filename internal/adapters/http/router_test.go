package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Haleralex/payledger/internal/adapters/http/common"
	"github.com/Haleralex/payledger/internal/adapters/http/middleware"
	"github.com/Haleralex/payledger/internal/application/bus"
	"github.com/Haleralex/payledger/internal/application/dtos"
	"github.com/Haleralex/payledger/internal/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticChecker struct {
	name string
	err  error
}

func (s staticChecker) Name() string                   { return s.name }
func (s staticChecker) Ping(ctx context.Context) error { return s.err }

func testBus() *bus.Bus {
	b := bus.New(logger.Discard())
	b.MustRegister(bus.GetWalletBalance, bus.Handle(func(_ context.Context, q dtos.GetWalletBalanceQuery) (*dtos.WalletBalanceDTO, error) {
		return &dtos.WalletBalanceDTO{WalletID: q.WalletID, Balance: "10000.00", Currency: "USD"}, nil
	}))
	b.MustRegister(bus.ProcessPayment, bus.Handle(func(_ context.Context, cmd dtos.ProcessPaymentCommand) (*dtos.PaymentResultDTO, error) {
		return &dtos.PaymentResultDTO{PaymentID: "p-1", WalletID: cmd.WalletID, Status: "PROCESSED", Amount: cmd.Amount, Currency: cmd.Currency}, nil
	}))
	return b
}

func testConfig() *RouterConfig {
	cfg := DefaultRouterConfig()
	cfg.Logger = logger.Discard()
	return cfg
}

func serve(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestDefaultRouterConfig(t *testing.T) {
	cfg := DefaultRouterConfig()

	assert.NotNil(t, cfg.Logger)
	assert.Equal(t, "payledger", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.Version)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "memory", cfg.StorageDriver)
	assert.True(t, cfg.RateLimitEnabled)
	assert.Equal(t, int64(100), cfg.RequestsPerMinute)
	assert.Equal(t, int64(30), cfg.PaymentOpsPerMin)
}

func TestNewRouterBuilder_NilConfig(t *testing.T) {
	builder := NewRouterBuilder(nil)

	require.NotNil(t, builder)
	assert.Equal(t, "development", builder.config.Environment)
	assert.Nil(t, builder.bus)
}

func TestRouterBuilder_Chain(t *testing.T) {
	b := testBus()
	builder := NewRouterBuilder(testConfig()).
		WithBus(b).
		WithCheckers(staticChecker{name: "redis"})

	assert.Same(t, b, builder.bus)
	assert.Len(t, builder.config.Checkers, 1)
}

func TestRouter_HealthEndpoints(t *testing.T) {
	router := NewRouter(testConfig(), testBus())

	for _, path := range []string{"/health", "/live", "/ready", "/health/detailed"} {
		t.Run(path, func(t *testing.T) {
			w := serve(router, http.MethodGet, path, "")
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestRouter_ReadyReflectsCheckers(t *testing.T) {
	router := NewRouterBuilder(testConfig()).
		WithBus(testBus()).
		WithCheckers(staticChecker{name: "database", err: errors.New("connection refused")}).
		Build()

	w := serve(router, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router := NewRouter(testConfig(), nil)

	w := serve(router, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRouter_404Handler(t *testing.T) {
	router := NewRouter(testConfig(), testBus())

	w := serve(router, http.MethodGet, "/api/v1/unknown", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp common.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, common.ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "/api/v1/unknown", resp.Error.Details["path"])
}

func TestRouter_NoBusSkipsAPIRoutes(t *testing.T) {
	router := NewRouter(testConfig(), nil)

	w := serve(router, http.MethodGet, "/api/v1/wallets/w-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_WalletRoute(t *testing.T) {
	router := NewRouter(testConfig(), testBus())

	w := serve(router, http.MethodGet, "/api/v1/wallets/w-1", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"wallet_id":"w-1"`)
}

func TestRouter_RequestID(t *testing.T) {
	router := NewRouter(testConfig(), testBus())

	w := serve(router, http.MethodGet, "/health", "")
	assert.NotEmpty(t, w.Header().Get(common.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(common.RequestIDHeader, "client-id")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "client-id", w.Header().Get(common.RequestIDHeader))
}

func TestRouter_CORS_Development(t *testing.T) {
	router := NewDevelopmentRouter(testBus())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/payments", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_CORS_Production(t *testing.T) {
	cfg := testConfig()
	cfg.Environment = "production"
	cfg.AllowedOrigins = []string{"https://ledger.example.com"}
	router := NewRouter(cfg, testBus())
	t.Cleanup(func() { gin.SetMode(gin.TestMode) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://ledger.example.com")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "https://ledger.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_CORS_FromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Environment = "production"
	cfg.AllowedOrigins = []string{"https://ignored.example.com"}
	cfg.CORS = middleware.NewCORSConfig([]string{"https://ledger.example.com"}, nil, nil, nil, false, time.Hour)
	router := NewRouter(cfg, testBus())
	t.Cleanup(func() { gin.SetMode(gin.TestMode) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://ledger.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "https://ledger.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), common.IdempotentReplayHeader)
}

func TestRouter_PaymentCommandsRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.PaymentOpsPerMin = 1
	router := NewRouter(cfg, testBus())

	body := `{"wallet_id":"w-1","amount":"10.00","currency":"USD","concept":"coffee"}`

	w := serve(router, http.MethodPost, "/api/v1/payments", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = serve(router, http.MethodPost, "/api/v1/payments", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Запросы на чтение ограничены только глобальным лимитом.
	w = serve(router, http.MethodGet, "/api/v1/wallets/w-1", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_RateLimitDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitEnabled = false
	cfg.RequestsPerMinute = 1
	cfg.PaymentOpsPerMin = 1
	router := NewRouter(cfg, testBus())

	body := `{"wallet_id":"w-1","amount":"10.00","currency":"USD","concept":"coffee"}`
	for i := 0; i < 3; i++ {
		w := serve(router, http.MethodPost, "/api/v1/payments", body)
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}
