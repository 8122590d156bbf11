package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PaymentCache - read-through кэш строк платежей (Redis).
// Промах кэша не является ошибкой: Get возвращает nil, nil.
type PaymentCache interface {
	Get(ctx context.Context, paymentID uuid.UUID) (*PaymentReadModel, error)
	Set(ctx context.Context, row *PaymentReadModel) error
	Invalidate(ctx context.Context, paymentID uuid.UUID) error
}

// IdempotencyStore защищает ProcessPayment от повторной отправки запроса.
//
// Протокол:
//  1. Reserve(key, lease) - захватывает ключ на короткий lease; если ключ уже завершён, возвращает paymentID
//  2. Complete(key, paymentID, ttl) - после успешного Append, продлевает ключ до ttl
//  3. Release(key) - если команда провалилась, чтобы клиент мог повторить
//
// Если процесс упал между Reserve и Complete, ключ освобождается по истечении lease.
type IdempotencyStore interface {
	// Reserve возвращает (paymentID, false) если ключ уже завершён,
	// *errors.ConflictError если ключ захвачен другим запросом,
	// ("", true) если ключ захвачен этим вызовом.
	Reserve(ctx context.Context, key string, lease time.Duration) (existing string, reserved bool, err error)
	Complete(ctx context.Context, key, paymentID string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// RateLimitResult - результат проверки лимита запросов.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// RateLimiter - счётчик запросов с фиксированным окном.
// Реализации: in-memory (один инстанс) и Redis (несколько инстансов).
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (RateLimitResult, error)
}
