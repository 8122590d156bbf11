package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Haleralex/payledger/internal/application/dtos"
	"github.com/Haleralex/payledger/internal/application/ports"
	"github.com/Haleralex/payledger/internal/domain/entities"
	"github.com/Haleralex/payledger/internal/domain/errors"
	"github.com/Haleralex/payledger/internal/domain/events"
	"github.com/Haleralex/payledger/internal/domain/valueobjects"
	"github.com/Haleralex/payledger/internal/pkg/metrics"
)

// ProcessPaymentUseCase - use case списания средств с кошелька.
//
// Сценарий:
// 1. Разобрать сумму и валюту (ValidationError до любого обращения к хранилищу)
// 2. Проверить Idempotency-Key (повтор возвращает первый платёж)
// 3. Загрузить кошелёк: seed + все события потока
// 4. wallet.CanProcessPayment: валюта, сумма > 0, лимит, баланс
// 5. Append PaymentProcessed с expectedVersion = wallet.Version()
// 6. Опубликовать событие
//
// Бизнес-правила:
// - Баланс никогда не уходит в минус
// - При ConcurrencyError поток перечитывается и проверки повторяются
type ProcessPaymentUseCase struct {
	loader      walletLoader
	store       ports.EventStore
	publisher   ports.EventPublisher
	idempotency ports.IdempotencyStore
	opts        Options
	logger      *slog.Logger
}

// NewProcessPaymentUseCase создаёт новый use case. idempotency может быть nil.
func NewProcessPaymentUseCase(
	wallets ports.WalletRepository,
	store ports.EventStore,
	publisher ports.EventPublisher,
	idempotency ports.IdempotencyStore,
	opts Options,
	logger *slog.Logger,
) *ProcessPaymentUseCase {
	defaults := DefaultOptions()
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = defaults.IdempotencyTTL
	}
	if opts.IdempotencyLease <= 0 {
		opts.IdempotencyLease = defaults.IdempotencyLease
	}
	return &ProcessPaymentUseCase{
		loader:      walletLoader{wallets: wallets, store: store},
		store:       store,
		publisher:   publisher,
		idempotency: idempotency,
		opts:        opts,
		logger:      logger,
	}
}

// Execute выполняет платёж.
func (uc *ProcessPaymentUseCase) Execute(ctx context.Context, cmd dtos.ProcessPaymentCommand) (result *dtos.PaymentResultDTO, err error) {
	ctx, span := startSpan(ctx, "ProcessPayment")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("wallet.id", cmd.WalletID))

	amount, err := parseAmount(cmd)
	if err != nil {
		metrics.RecordPayment(events.EventTypePaymentProcessed, "rejected", cmd.Currency, 0)
		return nil, err
	}

	// Idempotency
	if cmd.IdempotencyKey != "" && uc.idempotency != nil {
		existing, reserved, rErr := uc.idempotency.Reserve(ctx, cmd.IdempotencyKey, uc.opts.IdempotencyLease)
		if rErr != nil {
			return nil, rErr
		}
		if !reserved {
			if existing == "" {
				return nil, errors.NewConflictError("IdempotencyKey", cmd.IdempotencyKey, "request with this key is still in progress", nil)
			}
			return uc.replay(ctx, existing)
		}

		defer func() {
			uc.finishIdempotency(ctx, cmd.IdempotencyKey, result, err)
		}()
	}

	paymentID := uuid.New()

	rec, err := appendWithRetry(ctx, uc.opts.ConflictRetries, uc.logger, func(ctx context.Context) (events.Record, error) {
		wallet, err := uc.loader.load(ctx, cmd.WalletID)
		if err != nil {
			return events.Record{}, err
		}

		if err := wallet.CanProcessPayment(amount); err != nil {
			return events.Record{}, err
		}

		previous := wallet.Balance()
		next, err := wallet.CalculateNewBalance(amount)
		if err != nil {
			return events.Record{}, fmt.Errorf("failed to calculate new balance: %w", err)
		}

		event := events.NewPaymentProcessed(paymentID, wallet.ID(), amount, cmd.RecipientWalletID, cmd.Concept, previous, next)
		payload, err := events.Encode(event)
		if err != nil {
			return events.Record{}, err
		}

		return uc.store.Append(ctx, wallet.ID(), events.AggregateTypeWallet, event.EventType(), payload, wallet.Version())
	})
	if err != nil {
		metrics.RecordPayment(events.EventTypePaymentProcessed, errors.Kind(err), amount.Currency().Code(), 0)
		return nil, err
	}

	metrics.RecordPayment(events.EventTypePaymentProcessed, "success", amount.Currency().Code(), amount.Cents())
	uc.logger.InfoContext(ctx, "payment processed",
		slog.String("payment_id", paymentID.String()),
		slog.String("wallet_id", rec.AggregateID),
		slog.String("amount", amount.String()),
		slog.Int64("version", rec.Version),
	)

	publish(ctx, uc.publisher, uc.logger, rec)

	return resultFromRecord(rec, entities.PaymentStatusProcessed)
}

// replay отвечает на повторный Idempotency-Key исходным платежом.
func (uc *ProcessPaymentUseCase) replay(ctx context.Context, paymentID string) (*dtos.PaymentResultDTO, error) {
	rec, err := uc.store.FindEventByField(ctx, events.EventTypePaymentProcessed, events.FieldPaymentID, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load idempotent payment %s: %w", paymentID, err)
	}

	result, err := resultFromRecord(rec, entities.PaymentStatusProcessed)
	if err != nil {
		return nil, err
	}
	result.Replayed = true
	return result, nil
}

// finishIdempotency фиксирует ключ после успеха или освобождает его после ошибки.
func (uc *ProcessPaymentUseCase) finishIdempotency(ctx context.Context, key string, result *dtos.PaymentResultDTO, err error) {
	ctx = context.WithoutCancel(ctx)

	if err != nil || result == nil {
		if relErr := uc.idempotency.Release(ctx, key); relErr != nil {
			uc.logger.WarnContext(ctx, "failed to release idempotency key", slog.String("error", relErr.Error()))
		}
		return
	}

	if cErr := uc.idempotency.Complete(ctx, key, result.PaymentID, uc.opts.IdempotencyTTL); cErr != nil {
		uc.logger.WarnContext(ctx, "failed to complete idempotency key",
			slog.String("payment_id", result.PaymentID),
			slog.String("error", cErr.Error()),
		)
	}
}

// parseAmount проверяет форму команды до обращения к хранилищу.
func parseAmount(cmd dtos.ProcessPaymentCommand) (valueobjects.Money, error) {
	if strings.TrimSpace(cmd.WalletID) == "" {
		return valueobjects.Money{}, errors.NewValidationError("wallet_id", "wallet id is required", errors.ErrInvalidEntityID)
	}

	currency, err := valueobjects.NewCurrency(cmd.Currency)
	if err != nil {
		return valueobjects.Money{}, errors.NewValidationError("currency", fmt.Sprintf("unsupported currency %q", cmd.Currency), err)
	}

	amount, err := valueobjects.NewMoney(cmd.Amount, currency)
	if err != nil {
		return valueobjects.Money{}, errors.NewValidationError("amount", fmt.Sprintf("invalid amount: %v", err), err)
	}

	if !amount.IsPositive() {
		return valueobjects.Money{}, errors.NewValidationError("amount", "amount must be greater than zero", errors.ErrNonPositiveAmount)
	}

	return amount, nil
}
