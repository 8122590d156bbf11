package payment

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Haleralex/payledger/internal/application/ports"
	"github.com/Haleralex/payledger/internal/domain/entities"
	domainErrors "github.com/Haleralex/payledger/internal/domain/errors"
	"github.com/Haleralex/payledger/internal/domain/events"
	"github.com/Haleralex/payledger/internal/domain/valueobjects"
	"github.com/Haleralex/payledger/internal/infrastructure/persistence/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ============================================
// Event store mocks
// ============================================

// mockEventStore делегирует в memory.EventStore, пока не задана функция.
type mockEventStore struct {
	inner *memory.EventStore

	appendFunc    func(ctx context.Context, aggregateID, aggregateType, eventType string, payload json.RawMessage, expectedVersion int64) (events.Record, error)
	getEventsFunc func(ctx context.Context, aggregateID string) ([]events.Record, error)

	mu          sync.Mutex
	appendCalls int
}

func newMockEventStore() *mockEventStore {
	return &mockEventStore{inner: memory.NewEventStore()}
}

func (m *mockEventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, payload json.RawMessage, expectedVersion int64) (events.Record, error) {
	m.mu.Lock()
	m.appendCalls++
	m.mu.Unlock()

	if m.appendFunc != nil {
		return m.appendFunc(ctx, aggregateID, aggregateType, eventType, payload, expectedVersion)
	}
	return m.inner.Append(ctx, aggregateID, aggregateType, eventType, payload, expectedVersion)
}

func (m *mockEventStore) GetEvents(ctx context.Context, aggregateID string) ([]events.Record, error) {
	if m.getEventsFunc != nil {
		return m.getEventsFunc(ctx, aggregateID)
	}
	return m.inner.GetEvents(ctx, aggregateID)
}

func (m *mockEventStore) FindEventByField(ctx context.Context, eventType, field, value string) (events.Record, error) {
	return m.inner.FindEventByField(ctx, eventType, field, value)
}

func (m *mockEventStore) ReadAll(ctx context.Context, afterSequence int64, limit int) ([]events.Record, error) {
	return m.inner.ReadAll(ctx, afterSequence, limit)
}

func (m *mockEventStore) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendCalls
}

// untouchableStore падает на любом обращении.
type untouchableStore struct {
	t *testing.T
}

func (s untouchableStore) Append(context.Context, string, string, string, json.RawMessage, int64) (events.Record, error) {
	s.t.Fatal("event store must not be touched")
	return events.Record{}, nil
}

func (s untouchableStore) GetEvents(context.Context, string) ([]events.Record, error) {
	s.t.Fatal("event store must not be touched")
	return nil, nil
}

func (s untouchableStore) FindEventByField(context.Context, string, string, string) (events.Record, error) {
	s.t.Fatal("event store must not be touched")
	return events.Record{}, nil
}

func (s untouchableStore) ReadAll(context.Context, int64, int) ([]events.Record, error) {
	s.t.Fatal("event store must not be touched")
	return nil, nil
}

type untouchableWallets struct {
	t *testing.T
}

func (w untouchableWallets) FindByID(context.Context, string) (*entities.Wallet, error) {
	w.t.Fatal("wallet repository must not be touched")
	return nil, nil
}

// ============================================
// Publisher mock
// ============================================

type mockEventPublisher struct {
	mu          sync.Mutex
	published   []events.Record
	publishFunc func(ctx context.Context, rec events.Record) error
}

func (m *mockEventPublisher) Publish(ctx context.Context, rec events.Record) error {
	if m.publishFunc != nil {
		if err := m.publishFunc(ctx, rec); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, rec)
	return nil
}

func (m *mockEventPublisher) PublishBatch(ctx context.Context, recs []events.Record) error {
	for _, r := range recs {
		if err := m.Publish(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockEventPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

// ============================================
// Idempotency mock
// ============================================

type mockIdempotencyStore struct {
	mu       sync.Mutex
	keys     map[string]string // "" = in progress
	released []string
	leases   []time.Duration
	ttls     []time.Duration
}

func newMockIdempotencyStore() *mockIdempotencyStore {
	return &mockIdempotencyStore{keys: make(map[string]string)}
}

func (m *mockIdempotencyStore) Reserve(ctx context.Context, key string, lease time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leases = append(m.leases, lease)

	if v, ok := m.keys[key]; ok {
		if v == "" {
			return "", false, domainErrors.NewConflictError("IdempotencyKey", key, "in progress", nil)
		}
		return v, false, nil
	}
	m.keys[key] = ""
	return "", true, nil
}

func (m *mockIdempotencyStore) Complete(ctx context.Context, key, paymentID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttls = append(m.ttls, ttl)
	m.keys[key] = paymentID
	return nil
}

func (m *mockIdempotencyStore) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	m.released = append(m.released, key)
	return nil
}

// ============================================
// Cache / read repo mocks
// ============================================

type mockPaymentCache struct {
	getFunc     func(ctx context.Context, id uuid.UUID) (*ports.PaymentReadModel, error)
	setCalls    int
	invalidated []uuid.UUID
}

func (m *mockPaymentCache) Get(ctx context.Context, id uuid.UUID) (*ports.PaymentReadModel, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockPaymentCache) Set(ctx context.Context, row *ports.PaymentReadModel) error {
	m.setCalls++
	return nil
}

func (m *mockPaymentCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	m.invalidated = append(m.invalidated, id)
	return nil
}

type mockPaymentReadRepo struct {
	findByIDFunc func(ctx context.Context, id uuid.UUID) (*ports.PaymentReadModel, error)
	findAllFunc  func(ctx context.Context, filter ports.PaymentFilter) ([]*ports.PaymentReadModel, int64, error)
}

func (m *mockPaymentReadRepo) FindByID(ctx context.Context, id uuid.UUID) (*ports.PaymentReadModel, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, domainErrors.ErrEntityNotFound
}

func (m *mockPaymentReadRepo) FindAll(ctx context.Context, filter ports.PaymentFilter) ([]*ports.PaymentReadModel, int64, error) {
	if m.findAllFunc != nil {
		return m.findAllFunc(ctx, filter)
	}
	return nil, 0, nil
}

func (m *mockPaymentReadRepo) Upsert(ctx context.Context, row *ports.PaymentReadModel) (bool, error) {
	return true, nil
}

func (m *mockPaymentReadRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.PaymentStatus, at time.Time) (bool, error) {
	return true, nil
}

// ============================================
// Fixture
// ============================================

type fixture struct {
	wallets     *memory.WalletRepository
	store       *mockEventStore
	publisher   *mockEventPublisher
	idempotency *mockIdempotencyStore

	process *ProcessPaymentUseCase
	cancel  *CancelPaymentUseCase
	refund  *RefundPaymentUseCase
}

func newFixture() *fixture {
	f := &fixture{
		wallets:     memory.NewWalletRepository(memory.DefaultSeeds()),
		store:       newMockEventStore(),
		publisher:   &mockEventPublisher{},
		idempotency: newMockIdempotencyStore(),
	}
	opts := DefaultOptions()
	logger := testLogger()

	f.process = NewProcessPaymentUseCase(f.wallets, f.store, f.publisher, f.idempotency, opts, logger)
	f.cancel = NewCancelPaymentUseCase(f.wallets, f.store, f.publisher, opts, logger)
	f.refund = NewRefundPaymentUseCase(f.wallets, f.store, f.publisher, opts, logger)
	return f
}

func mustMoney(amount string) valueobjects.Money {
	return valueobjects.MustNewMoney(amount, valueobjects.USD)
}
