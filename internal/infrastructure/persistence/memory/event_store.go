// Package memory - in-memory реализации портов хранилища.
//
// Используются в тестах и при storage.driver=memory. Гарантии те же,
// что у PostgreSQL реализации: версии без пропусков, ровно один победитель
// при конкурентной записи одной версии.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Haleralex/payledger/internal/application/ports"
	domainErrors "github.com/Haleralex/payledger/internal/domain/errors"
	"github.com/Haleralex/payledger/internal/domain/events"
)

// Compile-time check
var _ ports.EventStore = (*EventStore)(nil)

// EventStore - журнал событий в памяти процесса.
type EventStore struct {
	mu       sync.RWMutex
	log      []events.Record
	streams  map[string][]int // aggregateID -> индексы в log
	sequence int64
	now      func() time.Time
}

// NewEventStore создаёт пустой журнал.
func NewEventStore() *EventStore {
	return &EventStore{
		streams: make(map[string][]int),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Append добавляет событие. Проверка головы потока и запись выполняются под одной блокировкой.
func (s *EventStore) Append(
	ctx context.Context,
	aggregateID, aggregateType, eventType string,
	payload json.RawMessage,
	expectedVersion int64,
) (events.Record, error) {
	if err := ctx.Err(); err != nil {
		return events.Record{}, domainErrors.NewPersistenceError("append event", err)
	}
	if !json.Valid(payload) {
		return events.Record{}, domainErrors.NewPersistenceError("append event", fmt.Errorf("payload is not valid JSON"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	head := int64(len(s.streams[aggregateID]))
	if expectedVersion != ports.AnyVersion && expectedVersion != head {
		return events.Record{}, domainErrors.NewConcurrencyError(aggregateType, aggregateID, expectedVersion,
			fmt.Sprintf("stream head is at version %d", head))
	}

	s.sequence++
	rec := events.Record{
		Sequence:      s.sequence,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       append(json.RawMessage(nil), payload...),
		OccurredAt:    s.now(),
		Version:       head + 1,
	}

	s.log = append(s.log, rec)
	s.streams[aggregateID] = append(s.streams[aggregateID], len(s.log)-1)

	return rec, nil
}

// GetEvents возвращает поток агрегата по возрастанию версии.
func (s *EventStore) GetEvents(ctx context.Context, aggregateID string) ([]events.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.streams[aggregateID]
	records := make([]events.Record, 0, len(idx))
	for _, i := range idx {
		records = append(records, s.log[i])
	}
	return records, nil
}

// FindEventByField ищет самое раннее событие eventType с payload[field] == value.
func (s *EventStore) FindEventByField(ctx context.Context, eventType, field, value string) (events.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.log {
		if rec.EventType != eventType {
			continue
		}
		var data map[string]any
		if err := json.Unmarshal(rec.Payload, &data); err != nil {
			continue
		}
		if v, ok := data[field]; ok && fmt.Sprint(v) == value {
			return rec, nil
		}
	}

	return events.Record{}, fmt.Errorf("%w: %s with %s=%s", domainErrors.ErrEntityNotFound, eventType, field, value)
}

// ReadAll читает журнал по Sequence начиная после afterSequence.
func (s *EventStore) ReadAll(ctx context.Context, afterSequence int64, limit int) ([]events.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]events.Record, 0)
	// Sequence i+1 лежит по индексу i
	start := afterSequence
	if start < 0 {
		start = 0
	}
	for i := start; i < int64(len(s.log)) && len(records) < limit; i++ {
		records = append(records, s.log[i])
	}
	return records, nil
}

// Len возвращает число записей в журнале.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}
