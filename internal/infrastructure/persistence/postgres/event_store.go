// Package postgres - EventStore: append-only журнал событий.
//
// Особенности:
//   - UNIQUE (aggregate_id, version) - единственный механизм concurrency control
//   - Версия вычисляется и вставляется одним SQL statement
//   - Вставки сериализованы advisory lock'ом до коммита, поэтому id видимых
//     строк растут в порядке коммита и ReadAll не перепрыгивает незакоммиченные
//   - event_data хранится как JSONB, поиск по полю через ->>
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Haleralex/payledger/internal/application/ports"
	domainErrors "github.com/Haleralex/payledger/internal/domain/errors"
	"github.com/Haleralex/payledger/internal/domain/events"
	"github.com/Haleralex/payledger/internal/pkg/metrics"
)

// Compile-time check
var _ ports.EventStore = (*EventStore)(nil)

const eventStoreVersionConstraint = "event_store_aggregate_version_unique"

const (
	// appendLockCTE берёт transaction-level advisory lock до nextval(id).
	// Lock держится до коммита statement'а: следующий писатель получит id
	// только после того, как предыдущая строка стала видимой.
	appendLockCTE = `WITH append_lock AS (SELECT pg_advisory_xact_lock(7302115640918337))`

	// appendExpectedSQL вставляет событие только если голова потока равна $6.
	// Два конкурентных писателя с одинаковым $6 оба пройдут WHERE
	// (snapshot взят до ожидания lock'а), но второй упадёт на UNIQUE (aggregate_id, version).
	appendExpectedSQL = appendLockCTE + `
		INSERT INTO event_store (aggregate_id, aggregate_type, event_type, event_data, occurred_at, version)
		SELECT $1::text, $2::text, $3::text, $4::jsonb, $5::timestamptz, $6::bigint + 1
		FROM append_lock
		WHERE (SELECT COALESCE(MAX(version), 0) FROM event_store WHERE aggregate_id = $1::text) = $6::bigint
		RETURNING id, version
	`

	// appendAnySQL вставляет событие в текущую голову потока.
	appendAnySQL = appendLockCTE + `
		INSERT INTO event_store (aggregate_id, aggregate_type, event_type, event_data, occurred_at, version)
		SELECT $1::text, $2::text, $3::text, $4::jsonb, $5::timestamptz,
			(SELECT COALESCE(MAX(version), 0) FROM event_store WHERE aggregate_id = $1::text) + 1
		FROM append_lock
		RETURNING id, version
	`

	selectEventColumns = `SELECT id, aggregate_id, aggregate_type, event_type, event_data, occurred_at, version FROM event_store`
)

// EventStore реализует ports.EventStore поверх таблицы event_store.
type EventStore struct {
	db  DB
	now func() time.Time
}

// NewEventStore создаёт новый EventStore.
func NewEventStore(db DB) *EventStore {
	return &EventStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Append добавляет событие в поток агрегата.
//
// Результаты:
// - запись вставлена: Record с версией expectedVersion+1
// - голова потока != expectedVersion (ни одной строки): ConcurrencyError
// - UNIQUE violation / serialization failure: ConcurrencyError
// - прочее: PersistenceError, ничего не записано
func (s *EventStore) Append(
	ctx context.Context,
	aggregateID, aggregateType, eventType string,
	payload json.RawMessage,
	expectedVersion int64,
) (events.Record, error) {
	start := time.Now()
	defer metrics.RecordDBQuery("insert", "event_store", start)

	q := getQuerier(ctx, s.db)
	occurredAt := s.now()

	var row pgx.Row
	if expectedVersion == ports.AnyVersion {
		row = q.QueryRow(ctx, appendAnySQL, aggregateID, aggregateType, eventType, []byte(payload), occurredAt)
	} else {
		row = q.QueryRow(ctx, appendExpectedSQL, aggregateID, aggregateType, eventType, []byte(payload), occurredAt, expectedVersion)
	}

	rec := events.Record{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payload,
		OccurredAt:    occurredAt,
	}

	err := row.Scan(&rec.Sequence, &rec.Version)
	switch {
	case err == nil:
		metrics.EventStoreAppends.WithLabelValues(eventType).Inc()
		return rec, nil
	case errors.Is(err, pgx.ErrNoRows):
		metrics.EventStoreConflicts.WithLabelValues(aggregateType).Inc()
		return events.Record{}, domainErrors.NewConcurrencyError(aggregateType, aggregateID, expectedVersion,
			fmt.Sprintf("stream head moved past version %d", expectedVersion))
	case isUniqueViolation(err, eventStoreVersionConstraint) || isSerializationFailure(err):
		metrics.EventStoreConflicts.WithLabelValues(aggregateType).Inc()
		return events.Record{}, domainErrors.NewConcurrencyError(aggregateType, aggregateID, expectedVersion,
			"version already claimed by a concurrent writer")
	default:
		metrics.RecordDBError("append_event", "query")
		return events.Record{}, persistenceError("append event", err)
	}
}

// GetEvents возвращает поток агрегата по возрастанию версии.
func (s *EventStore) GetEvents(ctx context.Context, aggregateID string) ([]events.Record, error) {
	start := time.Now()
	defer metrics.RecordDBQuery("select", "event_store", start)

	rows, err := getQuerier(ctx, s.db).Query(ctx,
		selectEventColumns+` WHERE aggregate_id = $1 ORDER BY version ASC`, aggregateID)
	if err != nil {
		return nil, persistenceError("read aggregate stream", err)
	}

	return collectRecords(rows, "read aggregate stream")
}

// FindEventByField ищет самое раннее событие eventType с event_data->>field = value.
func (s *EventStore) FindEventByField(ctx context.Context, eventType, field, value string) (events.Record, error) {
	start := time.Now()
	defer metrics.RecordDBQuery("select", "event_store", start)

	row := getQuerier(ctx, s.db).QueryRow(ctx,
		selectEventColumns+` WHERE event_type = $1 AND event_data ->> $2 = $3 ORDER BY id ASC LIMIT 1`,
		eventType, field, value)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return events.Record{}, fmt.Errorf("%w: %s with %s=%s", domainErrors.ErrEntityNotFound, eventType, field, value)
	}
	if err != nil {
		return events.Record{}, persistenceError("find event by field", err)
	}

	return rec, nil
}

// ReadAll читает журнал по возрастанию id начиная после afterSequence.
// Безопасно при конкурентных Append: id выдаются под advisory lock'ом,
// поэтому строка с меньшим id всегда видима раньше строки с большим.
func (s *EventStore) ReadAll(ctx context.Context, afterSequence int64, limit int) ([]events.Record, error) {
	start := time.Now()
	defer metrics.RecordDBQuery("select", "event_store", start)

	rows, err := getQuerier(ctx, s.db).Query(ctx,
		selectEventColumns+` WHERE id > $1 ORDER BY id ASC LIMIT $2`, afterSequence, limit)
	if err != nil {
		return nil, persistenceError("read event log", err)
	}

	return collectRecords(rows, "read event log")
}

func collectRecords(rows pgx.Rows, op string) ([]events.Record, error) {
	defer rows.Close()

	records := make([]events.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, persistenceError(op, err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, persistenceError(op, err)
	}

	return records, nil
}

func scanRecord(row pgx.Row) (events.Record, error) {
	var (
		rec  events.Record
		data []byte
	)

	if err := row.Scan(
		&rec.Sequence,
		&rec.AggregateID,
		&rec.AggregateType,
		&rec.EventType,
		&data,
		&rec.OccurredAt,
		&rec.Version,
	); err != nil {
		return events.Record{}, err
	}

	rec.Payload = json.RawMessage(data)
	return rec, nil
}
