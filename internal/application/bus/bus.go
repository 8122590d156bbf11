// Package bus - реестр команд и запросов.
//
// Обработчики регистрируются явно по Kind в map, без reflection.
// Типизированный адаптер Handle[M, R] превращает use case в Handler,
// Call[R] выполняет обратное приведение результата на стороне вызывающего.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Kind - имя команды или запроса.
type Kind string

// Commands
const (
	ProcessPayment Kind = "ProcessPayment"
	CancelPayment  Kind = "CancelPayment"
	RefundPayment  Kind = "RefundPayment"
)

// Queries
const (
	GetPayment        Kind = "GetPayment"
	ListPayments      Kind = "ListPayments"
	GetPaymentHistory Kind = "GetPaymentHistory"
	GetWalletBalance  Kind = "GetWalletBalance"
)

var (
	ErrHandlerNotFound  = errors.New("no handler registered")
	ErrDuplicateHandler = errors.New("handler already registered")
	ErrMessageType      = errors.New("unexpected message type")
)

// Handler - обработчик в нетипизированной форме.
type Handler func(ctx context.Context, msg any) (any, error)

// Handle адаптирует типизированную функцию к Handler.
//
// Example:
//
//	b.Register(bus.ProcessPayment, bus.Handle(processUC.Execute))
func Handle[M any, R any](fn func(context.Context, M) (R, error)) Handler {
	return func(ctx context.Context, msg any) (any, error) {
		m, ok := msg.(M)
		if !ok {
			var want M
			return nil, fmt.Errorf("%w: got %T, want %T", ErrMessageType, msg, want)
		}
		return fn(ctx, m)
	}
}

// Bus маршрутизирует сообщения по Kind.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind]Handler
	logger   *slog.Logger
}

// New создаёт пустой реестр.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[Kind]Handler),
		logger:   logger,
	}
}

// Register добавляет обработчик. Повторная регистрация Kind - ошибка.
func (b *Bus) Register(kind Kind, h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler for %s", kind)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[kind]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, kind)
	}
	b.handlers[kind] = h
	return nil
}

// MustRegister как Register, но паникует. Для composition root.
func (b *Bus) MustRegister(kind Kind, h Handler) {
	if err := b.Register(kind, h); err != nil {
		panic(err)
	}
}

// Dispatch выполняет обработчик kind.
func (b *Bus) Dispatch(ctx context.Context, kind Kind, msg any) (any, error) {
	b.mu.RLock()
	h, ok := b.handlers[kind]
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, kind)
	}

	b.logger.DebugContext(ctx, "dispatching", slog.String("kind", string(kind)))
	return h(ctx, msg)
}

// Kinds возвращает зарегистрированные имена.
func (b *Bus) Kinds() []Kind {
	b.mu.RLock()
	defer b.mu.RUnlock()

	kinds := make([]Kind, 0, len(b.handlers))
	for k := range b.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}

// Call - типизированная обёртка над Dispatch.
func Call[R any](ctx context.Context, b *Bus, kind Kind, msg any) (R, error) {
	var zero R

	out, err := b.Dispatch(ctx, kind, msg)
	if err != nil {
		return zero, err
	}
	r, ok := out.(R)
	if !ok {
		return zero, fmt.Errorf("%w: %s returned %T, want %T", ErrMessageType, kind, out, zero)
	}
	return r, nil
}
