package container

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Haleralex/payledger/internal/adapters/http/common"
	"github.com/Haleralex/payledger/internal/application/bus"
	"github.com/Haleralex/payledger/internal/application/dtos"
	"github.com/Haleralex/payledger/internal/config"
	"github.com/Haleralex/payledger/internal/domain/events"
	"github.com/Haleralex/payledger/internal/domain/valueobjects"
	"github.com/Haleralex/payledger/internal/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// startContainer собирает memory-контейнер и запускает доставку событий.
func startContainer(t *testing.T, cfg *config.Config, opts ...func(*ContainerBuilder)) *Container {
	t.Helper()

	builder := NewBuilder(cfg).WithLogger(logger.Discard())
	for _, opt := range opts {
		opt(builder)
	}

	c, err := builder.Build(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func call(t *testing.T, router http.Handler, method, path string, body any, headers map[string]string) (int, common.APIResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp common.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func dataField(t *testing.T, resp common.APIResponse, field string) any {
	t.Helper()
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "unexpected data: %#v", resp.Data)
	return data[field]
}

func TestNew(t *testing.T) {
	cfg := config.Test()
	c := New(cfg)

	require.NotNil(t, c)
	assert.Equal(t, cfg, c.Config())
	assert.Nil(t, c.Logger())
	assert.Nil(t, c.Pool())
	assert.Nil(t, c.Bus())
	assert.Nil(t, c.HTTPServer())
}

func TestBuilder_RequiresConfig(t *testing.T) {
	_, err := NewBuilder(nil).Build(context.Background())
	assert.Error(t, err)
}

func TestBuilder_UnknownStorageDriver(t *testing.T) {
	cfg := config.Test()
	cfg.Storage.Driver = "sqlite"

	_, err := NewBuilder(cfg).WithLogger(logger.Discard()).Build(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown storage driver "sqlite"`)
}

func TestContainer_MemoryWiring(t *testing.T) {
	c := startContainer(t, config.Test())

	assert.Nil(t, c.Pool())
	assert.NotNil(t, c.EventStore())
	assert.NotNil(t, c.Publisher())
	assert.NotNil(t, c.Router())
	assert.NotNil(t, c.HTTPServer())
	assert.ElementsMatch(t, []bus.Kind{
		bus.ProcessPayment, bus.CancelPayment, bus.RefundPayment,
		bus.GetPayment, bus.ListPayments, bus.GetPaymentHistory, bus.GetWalletBalance,
	}, c.Bus().Kinds())
}

func TestContainer_PaymentLifecycle(t *testing.T) {
	c := startContainer(t, config.Test())
	router := c.Router()

	code, resp := call(t, router, http.MethodPost, "/api/v1/payments", map[string]any{
		"wallet_id":           "WAL-001",
		"amount":              500,
		"currency":            "usd",
		"recipient_wallet_id": "WAL-002",
		"concept":             "Invoice 42",
	}, nil)
	require.Equal(t, http.StatusCreated, code, resp.Error)
	assert.Equal(t, "10000.00", dataField(t, resp, "previous_balance"))
	assert.Equal(t, "9500.00", dataField(t, resp, "new_balance"))
	paymentID := dataField(t, resp, "payment_id").(string)

	// Read-модели обновляются асинхронно.
	require.Eventually(t, func() bool {
		code, resp := call(t, router, http.MethodGet, "/api/v1/wallets/WAL-001", nil, nil)
		return code == http.StatusOK && dataField(t, resp, "balance") == "9500.00"
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		code, _ := call(t, router, http.MethodGet, "/api/v1/payments/"+paymentID, nil, nil)
		return code == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	code, resp = call(t, router, http.MethodPost, "/api/v1/payments/"+paymentID+"/refund",
		map[string]any{"reason": "customer request"}, nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, "10000.00", dataField(t, resp, "new_balance"))

	code, resp = call(t, router, http.MethodPost, "/api/v1/payments/"+paymentID+"/refund",
		map[string]any{"reason": "customer request"}, nil)
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, common.ErrCodeConflict, resp.Error.Code)

	code, resp = call(t, router, http.MethodGet, "/api/v1/payments/history/WAL-001", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), dataField(t, resp, "total_events"))
}

func TestContainer_IdempotentReplay(t *testing.T) {
	c := startContainer(t, config.Test())
	body := map[string]any{
		"wallet_id":           "WAL-002",
		"amount":              "25.00",
		"currency":            "USD",
		"recipient_wallet_id": "WAL-001",
		"concept":             "Subscription",
	}
	headers := map[string]string{"Idempotency-Key": "order-7"}

	code, first := call(t, c.Router(), http.MethodPost, "/api/v1/payments", body, headers)
	require.Equal(t, http.StatusCreated, code)

	code, second := call(t, c.Router(), http.MethodPost, "/api/v1/payments", body, headers)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, dataField(t, first, "payment_id"), dataField(t, second, "payment_id"))

	history, err := bus.Call[*dtos.PaymentHistoryDTO](context.Background(), c.Bus(), bus.GetPaymentHistory,
		dtos.GetPaymentHistoryQuery{WalletID: "WAL-002", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, history.TotalEvents)
}

func TestContainer_RedisBackedStores(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Test()
	cfg.RateLimit.Backend = "redis"
	cfg.RateLimit.Enabled = true

	c := startContainer(t, cfg, func(b *ContainerBuilder) { b.WithRedis(client) })

	code, _ := call(t, c.Router(), http.MethodGet, "/ready", nil, nil)
	// /ready отвечает без envelope, поэтому достаточно статуса.
	assert.Equal(t, http.StatusOK, code)

	code, _ = call(t, c.Router(), http.MethodPost, "/api/v1/payments", map[string]any{
		"wallet_id":           "WAL-003",
		"amount":              "10.00",
		"currency":            "USD",
		"recipient_wallet_id": "WAL-001",
		"concept":             "Lunch",
	}, map[string]string{"Idempotency-Key": "lunch-1"})
	require.Equal(t, http.StatusCreated, code)

	assert.NotEmpty(t, mr.Keys(), "idempotency and rate limit keys live in redis")

	// Клиент передан снаружи и остаётся открытым после Close.
	require.NoError(t, c.Close(context.Background()))
	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestContainer_ReplayRebuildsReadModels(t *testing.T) {
	c := startContainer(t, config.Test())

	_, err := bus.Call[*dtos.PaymentResultDTO](context.Background(), c.Bus(), bus.ProcessPayment, dtos.ProcessPaymentCommand{
		WalletID:          "WAL-001",
		Amount:            "100.00",
		Currency:          "USD",
		RecipientWalletID: "WAL-002",
		Concept:           "Rent",
	})
	require.NoError(t, err)

	// Повторный replay идемпотентен: версии read-моделей не откатываются.
	applied, err := c.replayer.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	require.Eventually(t, func() bool {
		balance, err := bus.Call[*dtos.WalletBalanceDTO](context.Background(), c.Bus(), bus.GetWalletBalance,
			dtos.GetWalletBalanceQuery{WalletID: "WAL-001"})
		return err == nil && balance.Balance == "9900.00" && balance.Version == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestContainer_PeriodicReplayProjectsUndeliveredEvents(t *testing.T) {
	cfg := config.Test()
	cfg.Publisher.ReplayInterval = 20 * time.Millisecond
	c := startContainer(t, cfg)
	ctx := context.Background()

	// Запись мимо publisher: живая доставка этого события не увидит.
	usd := func(a string) valueobjects.Money { return valueobjects.MustNewMoney(a, valueobjects.USD) }
	payload, err := events.Encode(events.NewPaymentProcessed(uuid.New(), "WAL-003", usd("50"), "WAL-001", "Lost", usd("250"), usd("200")))
	require.NoError(t, err)
	_, err = c.EventStore().Append(ctx, "WAL-003", events.AggregateTypeWallet, events.EventTypePaymentProcessed, payload, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		balance, err := bus.Call[*dtos.WalletBalanceDTO](ctx, c.Bus(), bus.GetWalletBalance,
			dtos.GetWalletBalanceQuery{WalletID: "WAL-003"})
		return err == nil && balance.Balance == "200.00" && balance.Version == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestContainer_CloseIsIdempotent(t *testing.T) {
	c := startContainer(t, config.Test())

	require.NoError(t, c.Close(context.Background()))
	assert.NoError(t, c.Close(context.Background()))
}
