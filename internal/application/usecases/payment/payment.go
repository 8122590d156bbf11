// Package payment содержит use cases платёжного журнала.
//
// Команды (ProcessPayment, CancelPayment, RefundPayment) пишут только в EventStore.
// Точка фиксации - успешный Append: публикация событий после него не влияет
// на результат команды. Запросы читают read-модели либо журнал напрямую.
package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Haleralex/payledger/internal/application/dtos"
	"github.com/Haleralex/payledger/internal/application/ports"
	"github.com/Haleralex/payledger/internal/domain/entities"
	"github.com/Haleralex/payledger/internal/domain/errors"
	"github.com/Haleralex/payledger/internal/domain/events"
)

const tracerName = "github.com/Haleralex/payledger/internal/application/usecases/payment"

// Options - настройки команд.
type Options struct {
	// ConflictRetries - сколько раз перечитать поток и повторить Append после ConcurrencyError.
	ConflictRetries int
	// IdempotencyTTL - время жизни завершённого Idempotency-Key.
	IdempotencyTTL time.Duration
	// IdempotencyLease - время жизни ключа в состоянии pending.
	// Должно превышать время выполнения команды: после истечения ключ снова свободен.
	IdempotencyLease time.Duration
}

// DefaultOptions возвращает настройки по умолчанию.
func DefaultOptions() Options {
	return Options{
		ConflictRetries:  3,
		IdempotencyTTL:   24 * time.Hour,
		IdempotencyLease: 30 * time.Second,
	}
}

// walletLoader собирает текущее состояние кошелька: seed + все события потока.
type walletLoader struct {
	wallets ports.WalletRepository
	store   ports.EventStore
}

func (l walletLoader) load(ctx context.Context, walletID string) (*entities.Wallet, error) {
	wallet, err := l.wallets.FindByID(ctx, walletID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: wallet %s", errors.ErrEntityNotFound, walletID)
		}
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}

	records, err := l.store.GetEvents(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet stream: %w", err)
	}

	if err := wallet.Replay(records); err != nil {
		return nil, fmt.Errorf("failed to rebuild wallet %s: %w", walletID, err)
	}

	return wallet, nil
}

// appendWithRetry вызывает attempt, пока тот возвращает ConcurrencyError и есть попытки.
// attempt каждый раз заново загружает кошелёк.
func appendWithRetry(ctx context.Context, retries int, logger *slog.Logger, attempt func(ctx context.Context) (events.Record, error)) (events.Record, error) {
	var lastErr error

	for i := 0; i <= retries; i++ {
		rec, err := attempt(ctx)
		if err == nil {
			return rec, nil
		}
		if !errors.IsConcurrencyError(err) {
			return events.Record{}, err
		}

		lastErr = err
		logger.WarnContext(ctx, "append conflict, reloading stream",
			slog.Int("attempt", i+1),
			slog.String("error", err.Error()),
		)
	}

	return events.Record{}, lastErr
}

// publish доставляет событие подписчикам. Ошибка только логируется:
// событие уже в журнале и будет подхвачено replayer'ом.
func publish(ctx context.Context, publisher ports.EventPublisher, logger *slog.Logger, rec events.Record) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, rec); err != nil {
		logger.WarnContext(ctx, "failed to publish event",
			slog.String("event_type", rec.EventType),
			slog.String("aggregate_id", rec.AggregateID),
			slog.Int64("version", rec.Version),
			slog.String("error", err.Error()),
		)
	}
}

// resultFromRecord строит ответ команды из записанного события.
func resultFromRecord(rec events.Record, status entities.PaymentStatus) (*dtos.PaymentResultDTO, error) {
	p, err := rec.ParsePayload()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s payload: %w", rec.EventType, err)
	}

	return &dtos.PaymentResultDTO{
		PaymentID:       p.PaymentID,
		WalletID:        rec.AggregateID,
		Status:          string(status),
		Amount:          p.Amount,
		Currency:        p.Currency,
		PreviousBalance: p.PreviousBalance,
		NewBalance:      p.NewBalance,
		Version:         rec.Version,
		Reason:          p.Reason,
	}, nil
}

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errors.Kind(err))
	}
	span.End()
}
