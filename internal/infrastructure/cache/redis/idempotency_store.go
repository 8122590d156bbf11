package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Haleralex/payledger/internal/application/ports"
	domainErrors "github.com/Haleralex/payledger/internal/domain/errors"
)

var _ ports.IdempotencyStore = (*IdempotencyStore)(nil)

// pendingMarker - значение ключа, пока запрос выполняется.
const pendingMarker = "__pending__"

// IdempotencyStore хранит Idempotency-Key в Redis.
//
// Reserve - SET NX с маркером pending на время lease, Complete перезаписывает
// маркер id платежа с полным TTL, Release удаляет ключ только если он всё ещё pending.
type IdempotencyStore struct {
	client goredis.UniversalClient
	prefix string
}

func NewIdempotencyStore(client goredis.UniversalClient, prefix string) *IdempotencyStore {
	return &IdempotencyStore{client: client, prefix: prefix}
}

func (s *IdempotencyStore) key(k string) string {
	return prefixed(s.prefix, "idempotency", k)
}

func (s *IdempotencyStore) Reserve(ctx context.Context, key string, lease time.Duration) (string, bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(key), pendingMarker, lease).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis idempotency reserve: %w", err)
	}
	if ok {
		return "", true, nil
	}

	val, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		// ключ истёк между SETNX и GET
		return "", false, domainErrors.NewConflictError("IdempotencyKey", key, "request with this key is still in progress", nil)
	}
	if err != nil {
		return "", false, fmt.Errorf("redis idempotency get: %w", err)
	}
	if val == pendingMarker {
		return "", false, domainErrors.NewConflictError("IdempotencyKey", key, "request with this key is still in progress", nil)
	}

	return val, false, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, key, paymentID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), paymentID, ttl).Err(); err != nil {
		return fmt.Errorf("redis idempotency complete: %w", err)
	}
	return nil
}

// releaseScript удаляет ключ только в состоянии pending.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, s.client, []string{s.key(key)}, pendingMarker).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("redis idempotency release: %w", err)
	}
	return nil
}
