// Package middleware - Rate Limiting middleware.
//
// Защита от abuse через ограничение количества запросов.
// Алгоритм: Fixed Window Counter. Хранилище счётчиков - ports.RateLimiter:
// in-memory для одного инстанса, Redis для нескольких.
package middleware

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Haleralex/payledger/internal/adapters/http/common"
	"github.com/Haleralex/payledger/internal/application/ports"
)

// Заголовки ответа rate limiter.
const (
	RateLimitLimitHeader     = "X-RateLimit-Limit"
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
	RateLimitResetHeader     = "X-RateLimit-Reset"
	RetryAfterHeader         = "Retry-After"
)

// RateLimitConfig - конфигурация для rate limiting.
type RateLimitConfig struct {
	// Requests per window
	Limit int64
	// Time window
	Window time.Duration
	// KeyFunc - функция для определения ключа лимитирования
	// По умолчанию - IP адрес
	KeyFunc func(*gin.Context) string
	// OnLimitReached - callback при достижении лимита
	OnLimitReached func(*gin.Context)
	// Store - хранилище счётчиков. nil - новый MemoryRateLimiter.
	Store ports.RateLimiter
	// Logger для ошибок хранилища
	Logger *slog.Logger
}

// DefaultRateLimitConfig - конфигурация по умолчанию.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Limit:  100,         // 100 запросов
		Window: time.Minute, // в минуту
		KeyFunc: func(c *gin.Context) string { // по IP
			return "ip:" + c.ClientIP()
		},
	}
}

// ============================================
// In-memory store
// ============================================

var _ ports.RateLimiter = (*MemoryRateLimiter)(nil)

// MemoryRateLimiter хранит окна в памяти процесса.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// window - счётчик одного ключа.
type window struct {
	count   int64
	resetAt time.Time
}

// NewMemoryRateLimiter создаёт in-memory limiter.
// cleanupInterval > 0 запускает фоновую очистку истёкших окон до Close.
func NewMemoryRateLimiter(cleanupInterval time.Duration) *MemoryRateLimiter {
	rl := &MemoryRateLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go rl.cleanup(cleanupInterval)
	}

	return rl
}

// Allow учитывает запрос по ключу key.
func (rl *MemoryRateLimiter) Allow(_ context.Context, key string, limit int64, win time.Duration) (ports.RateLimitResult, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, exists := rl.windows[key]
	if !exists || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(win)}
		rl.windows[key] = w
	}

	result := ports.RateLimitResult{Limit: limit, ResetAt: w.resetAt}
	if w.count >= limit {
		return result, nil
	}

	w.count++
	result.Allowed = true
	result.Remaining = limit - w.count
	return result, nil
}

// Len возвращает число отслеживаемых ключей.
func (rl *MemoryRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// Close останавливает очистку.
func (rl *MemoryRateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// cleanup удаляет устаревшие записи.
func (rl *MemoryRateLimiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictExpired()
		}
	}
}

func (rl *MemoryRateLimiter) evictExpired() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, key)
		}
	}
}

// ============================================
// Middleware
// ============================================

// RateLimit middleware для ограничения количества запросов.
//
// Headers:
// - X-RateLimit-Limit: Максимум запросов
// - X-RateLimit-Remaining: Оставшееся количество
// - X-RateLimit-Reset: Время сброса (Unix timestamp)
// - Retry-After: Секунд до сброса (при 429)
//
// Ошибка хранилища (Redis недоступен) пропускает запрос.
func RateLimit(config *RateLimitConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if config.KeyFunc == nil {
		config.KeyFunc = DefaultRateLimitConfig().KeyFunc
	}
	if config.Store == nil {
		config.Store = NewMemoryRateLimiter(config.Window * 2)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return func(c *gin.Context) {
		key := config.KeyFunc(c)

		result, err := config.Store.Allow(c.Request.Context(), key, config.Limit, config.Window)
		if err != nil {
			config.Logger.WarnContext(c.Request.Context(), "rate limit store unavailable, allowing request",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			c.Next()
			return
		}

		c.Header(RateLimitLimitHeader, strconv.FormatInt(result.Limit, 10))
		c.Header(RateLimitRemainingHeader, strconv.FormatInt(result.Remaining, 10))
		c.Header(RateLimitResetHeader, strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retrySeconds := int(math.Ceil(time.Until(result.ResetAt).Seconds()))
			if retrySeconds < 1 {
				retrySeconds = 1
			}
			c.Header(RetryAfterHeader, strconv.Itoa(retrySeconds))

			if config.OnLimitReached != nil {
				config.OnLimitReached(c)
			}

			common.TooManyRequestsResponse(c, retrySeconds)
			return
		}

		c.Next()
	}
}

// ============================================
// Endpoint-specific rate limiters
// ============================================

// PaymentOperationsRateLimit - отдельный лимит на команды над платежами
// (POST /payments, cancel, refund). Ключ - IP клиента.
func PaymentOperationsRateLimit(store ports.RateLimiter, perMinute int64, logger *slog.Logger) gin.HandlerFunc {
	return RateLimit(&RateLimitConfig{
		Limit:  perMinute,
		Window: time.Minute,
		KeyFunc: func(c *gin.Context) string {
			return "payments:" + c.ClientIP()
		},
		Store:  store,
		Logger: logger,
	})
}
