package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Haleralex/payledger/internal/application/ports"
	"github.com/Haleralex/payledger/internal/domain/errors"
)

var _ ports.IdempotencyStore = (*IdempotencyStore)(nil)

type idempotencyEntry struct {
	paymentID string // empty while the request is in flight
	expiresAt time.Time
}

// IdempotencyStore keeps idempotency keys in process memory.
// Used when redis is disabled.
type IdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]idempotencyEntry
	now  func() time.Time
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{
		keys: make(map[string]idempotencyEntry),
		now:  time.Now,
	}
}

// Reserve holds the key as pending for lease; Complete extends it to the full TTL.
func (s *IdempotencyStore) Reserve(ctx context.Context, key string, lease time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.keys[key]; ok && now.Before(e.expiresAt) {
		if e.paymentID == "" {
			return "", false, errors.NewConflictError("IdempotencyKey", key, "request with this key is still in progress", nil)
		}
		return e.paymentID, false, nil
	}

	s.keys[key] = idempotencyEntry{expiresAt: now.Add(lease)}
	return "", true, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, key, paymentID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys[key] = idempotencyEntry{paymentID: paymentID, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.keys[key]; ok && e.paymentID == "" {
		delete(s.keys, key)
	}
	return nil
}
