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

// settler - общая логика отмены и возврата.
// Обе операции возвращают сумму платежа на кошелёк и закрывают платёж.
type settler struct {
	loader    walletLoader
	store     ports.EventStore
	publisher ports.EventPublisher
	opts      Options
	logger    *slog.Logger
}

func (s *settler) settle(ctx context.Context, rawID, reason string, status entities.PaymentStatus) (result *dtos.PaymentResultDTO, err error) {
	eventType := events.EventTypePaymentCancelled
	if status == entities.PaymentStatusRefunded {
		eventType = events.EventTypePaymentRefunded
	}

	ctx, span := startSpan(ctx, eventType)
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("payment.id", rawID))

	// 1. Валидация до обращения к хранилищу
	if strings.TrimSpace(reason) == "" {
		return nil, errors.NewValidationError("reason", "reason is required", errors.ErrBlankReason)
	}
	paymentID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, errors.NewValidationError("payment_id", "invalid payment ID format", errors.ErrInvalidEntityID)
	}

	// 2. Находим исходный платёж
	origin, err := s.store.FindEventByField(ctx, events.EventTypePaymentProcessed, events.FieldPaymentID, paymentID.String())
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: payment %s", errors.ErrEntityNotFound, paymentID)
		}
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	walletID := origin.AggregateID

	var settled valueobjects.Money
	// 3. Загрузка, проверка и Append с повтором при конфликте версий
	rec, err := appendWithRetry(ctx, s.opts.ConflictRetries, s.logger, func(ctx context.Context) (events.Record, error) {
		wallet, err := s.loader.load(ctx, walletID)
		if err != nil {
			return events.Record{}, err
		}

		if err := wallet.CanSettle(paymentID); err != nil {
			return events.Record{}, err
		}

		state, _ := wallet.Payment(paymentID)
		settled = state.Amount
		previous := wallet.Balance()
		next, err := wallet.CalculateRestoredBalance(state.Amount)
		if err != nil {
			return events.Record{}, fmt.Errorf("failed to calculate restored balance: %w", err)
		}

		var event events.DomainEvent
		if status == entities.PaymentStatusRefunded {
			event = events.NewPaymentRefunded(paymentID, walletID, state.Amount, reason, previous, next)
		} else {
			event = events.NewPaymentCancelled(paymentID, walletID, state.Amount, reason, previous, next)
		}

		payload, err := events.Encode(event)
		if err != nil {
			return events.Record{}, err
		}

		return s.store.Append(ctx, walletID, events.AggregateTypeWallet, event.EventType(), payload, wallet.Version())
	})
	if err != nil {
		metrics.RecordPayment(eventType, errors.Kind(err), "", 0)
		return nil, err
	}

	result, err = resultFromRecord(rec, status)
	if err != nil {
		return nil, err
	}

	metrics.RecordPayment(eventType, "success", result.Currency, settled.Cents())
	s.logger.InfoContext(ctx, "payment settled",
		slog.String("payment_id", paymentID.String()),
		slog.String("wallet_id", walletID),
		slog.String("status", string(status)),
		slog.Int64("version", rec.Version),
	)

	publish(ctx, s.publisher, s.logger, rec)

	return result, nil
}

// CancelPaymentUseCase - use case отмены платежа.
//
// Бизнес-правила:
// - Причина обязательна
// - Платёж должен существовать (PaymentProcessed в журнале)
// - Отмена или возврат применяется к платежу не более одного раза
type CancelPaymentUseCase struct {
	settler
}

// NewCancelPaymentUseCase создаёт новый use case.
func NewCancelPaymentUseCase(
	wallets ports.WalletRepository,
	store ports.EventStore,
	publisher ports.EventPublisher,
	opts Options,
	logger *slog.Logger,
) *CancelPaymentUseCase {
	return &CancelPaymentUseCase{settler{
		loader:    walletLoader{wallets: wallets, store: store},
		store:     store,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
	}}
}

// Execute выполняет отмену.
func (uc *CancelPaymentUseCase) Execute(ctx context.Context, cmd dtos.CancelPaymentCommand) (*dtos.PaymentResultDTO, error) {
	return uc.settle(ctx, cmd.PaymentID, cmd.Reason, entities.PaymentStatusCancelled)
}

// RefundPaymentUseCase - use case возврата платежа. Эффект на баланс тот же, что у отмены.
type RefundPaymentUseCase struct {
	settler
}

// NewRefundPaymentUseCase создаёт новый use case.
func NewRefundPaymentUseCase(
	wallets ports.WalletRepository,
	store ports.EventStore,
	publisher ports.EventPublisher,
	opts Options,
	logger *slog.Logger,
) *RefundPaymentUseCase {
	return &RefundPaymentUseCase{settler{
		loader:    walletLoader{wallets: wallets, store: store},
		store:     store,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
	}}
}

// Execute выполняет возврат.
func (uc *RefundPaymentUseCase) Execute(ctx context.Context, cmd dtos.RefundPaymentCommand) (*dtos.PaymentResultDTO, error) {
	return uc.settle(ctx, cmd.PaymentID, cmd.Reason, entities.PaymentStatusRefunded)
}
