// Package ports - EventStore: append-only журнал событий агрегатов.
//
// Журнал является единственным источником истины. Read-модели строятся из него
// проекциями и могут быть пересобраны в любой момент.
package ports

import (
	"context"
	"encoding/json"

	"github.com/Haleralex/payledger/internal/domain/events"
)

// AnyVersion отключает проверку expectedVersion: событие пишется в текущую голову потока.
const AnyVersion int64 = -1

// EventStore определяет контракт хранилища событий.
//
// Гарантии:
// - Записи неизменяемы, удаление и редактирование невозможны
// - Версии внутри агрегата идут 1, 2, 3... без пропусков и повторов
// - Из двух конкурентных Append на одну версию успешен ровно один
type EventStore interface {
	// Append добавляет событие с версией expectedVersion+1.
	//
	// Вычисление версии и INSERT выполняются атомарно.
	// Ошибки:
	// - *errors.ConcurrencyError: версия уже занята (можно перечитать поток и повторить)
	// - *errors.PersistenceError: хранилище недоступно, ничего не записано
	//
	// Example:
	//   rec, err := store.Append(ctx, "WAL-001", events.AggregateTypeWallet,
	//       events.EventTypePaymentProcessed, payload, wallet.Version())
	Append(ctx context.Context, aggregateID, aggregateType, eventType string, payload json.RawMessage, expectedVersion int64) (events.Record, error)

	// GetEvents возвращает поток агрегата по возрастанию версии.
	// Пустой срез для агрегата без событий.
	GetEvents(ctx context.Context, aggregateID string) ([]events.Record, error)

	// FindEventByField ищет первое событие типа eventType, у которого
	// поле payload field равно value. ErrEntityNotFound если не найдено.
	FindEventByField(ctx context.Context, eventType, field, value string) (events.Record, error)

	// ReadAll читает журнал целиком по глобальному порядку вставки,
	// начиная после afterSequence. Используется для пересборки проекций.
	ReadAll(ctx context.Context, afterSequence int64, limit int) ([]events.Record, error)
}
