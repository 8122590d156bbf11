// Package ports - EventPublisher для доставки записанных событий подписчикам.
//
// Публикация происходит после успешного Append: команда считается выполненной
// уже на этапе записи в журнал, доставка не влияет на её результат.
package ports

import (
	"context"

	"github.com/Haleralex/payledger/internal/domain/events"
)

// EventPublisher определяет контракт для публикации событий.
//
// Behaviour:
// - Не блокирует вызывающего
// - At-least-once delivery (возможны дубликаты)
// - Consumers должны быть идемпотентными!
type EventPublisher interface {
	// Publish ставит событие в очередь доставки.
	Publish(ctx context.Context, record events.Record) error

	// PublishBatch публикует несколько событий по порядку.
	// Останавливается на первой ошибке.
	PublishBatch(ctx context.Context, records []events.Record) error
}

// EventSubscriber определяет контракт для подписки на события (consumers).
type EventSubscriber interface {
	// Subscribe регистрирует обработчик для типа события.
	// eventType "*" означает все типы.
	//
	// Example:
	//   subscriber.Subscribe(events.EventTypePaymentProcessed, projection.Handle)
	Subscribe(eventType string, handler EventHandler) error

	// Start запускает воркеры доставки.
	Start(ctx context.Context) error

	// Stop останавливает доставку, дожидаясь обработки очереди.
	Stop(ctx context.Context) error
}

// EventHandler - функция-обработчик события.
type EventHandler func(ctx context.Context, record events.Record) error

// AllEvents - подписка на все типы событий.
const AllEvents = "*"
