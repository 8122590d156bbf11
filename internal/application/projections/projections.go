// Package projections turns committed wallet events into read models.
//
// Every projection is idempotent: a redelivered or replayed event leaves the
// read model unchanged. Publishers deliver at least once and the replayer
// re-reads the log from its checkpoint, so duplicates are normal.
package projections

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Haleralex/payledger/internal/application/ports"
	"github.com/Haleralex/payledger/internal/domain/entities"
	"github.com/Haleralex/payledger/internal/domain/errors"
	"github.com/Haleralex/payledger/internal/domain/events"
	"github.com/Haleralex/payledger/internal/domain/valueobjects"
	"github.com/Haleralex/payledger/internal/pkg/metrics"
)

// decodedEvent is the subset of a payload every projection needs.
type decodedEvent struct {
	paymentID uuid.UUID
	payload   events.Payload
	amount    valueobjects.Money
	balance   valueobjects.Money
}

func decode(rec events.Record) (decodedEvent, error) {
	p, err := rec.ParsePayload()
	if err != nil {
		return decodedEvent{}, fmt.Errorf("failed to parse %s v%d of %s: %w", rec.EventType, rec.Version, rec.AggregateID, err)
	}

	id, err := uuid.Parse(p.PaymentID)
	if err != nil {
		return decodedEvent{}, fmt.Errorf("invalid paymentId in %s v%d: %w", rec.EventType, rec.Version, err)
	}
	currency, err := valueobjects.NewCurrency(p.Currency)
	if err != nil {
		return decodedEvent{}, err
	}
	amount, err := valueobjects.NewMoney(p.Amount, currency)
	if err != nil {
		return decodedEvent{}, fmt.Errorf("invalid amount in %s v%d: %w", rec.EventType, rec.Version, err)
	}
	balance, err := valueobjects.NewMoney(p.NewBalance, currency)
	if err != nil {
		return decodedEvent{}, fmt.Errorf("invalid newBalance in %s v%d: %w", rec.EventType, rec.Version, err)
	}

	return decodedEvent{paymentID: id, payload: p, amount: amount, balance: balance}, nil
}

// PaymentProjection maintains payments_read_model.
type PaymentProjection struct {
	payments ports.PaymentReadRepository
}

func NewPaymentProjection(payments ports.PaymentReadRepository) *PaymentProjection {
	return &PaymentProjection{payments: payments}
}

// Apply inserts the row on PaymentProcessed and moves it to a terminal status
// on PaymentCancelled / PaymentRefunded. A terminal status is never overwritten.
func (p *PaymentProjection) Apply(ctx context.Context, rec events.Record) error {
	status, ok := entities.StatusForEvent(rec.EventType)
	if !ok {
		return fmt.Errorf("%w: %q", errors.ErrUnknownEventType, rec.EventType)
	}

	d, err := decode(rec)
	if err != nil {
		return err
	}

	if status == entities.PaymentStatusProcessed {
		_, err = p.payments.Upsert(ctx, &ports.PaymentReadModel{
			PaymentID:         d.paymentID,
			WalletID:          rec.AggregateID,
			AmountCents:       d.amount.Cents(),
			Currency:          d.amount.Currency().Code(),
			RecipientWalletID: d.payload.RecipientWalletID,
			Concept:           d.payload.Concept,
			Status:            entities.PaymentStatusProcessed,
			CreatedAt:         rec.OccurredAt,
			UpdatedAt:         rec.OccurredAt,
		})
		return err
	}

	_, err = p.payments.UpdateStatus(ctx, d.paymentID, status, rec.OccurredAt)
	return err
}

// WalletBalanceProjection maintains wallets_read_model.
type WalletBalanceProjection struct {
	wallets ports.WalletReadRepository
}

func NewWalletBalanceProjection(wallets ports.WalletReadRepository) *WalletBalanceProjection {
	return &WalletBalanceProjection{wallets: wallets}
}

// Apply writes the event's newBalance if the event is newer than the snapshot.
func (p *WalletBalanceProjection) Apply(ctx context.Context, rec events.Record) error {
	d, err := decode(rec)
	if err != nil {
		return err
	}

	_, err = p.wallets.ApplyBalance(ctx, &ports.WalletBalanceReadModel{
		WalletID:     rec.AggregateID,
		BalanceCents: d.balance.Cents(),
		Currency:     d.balance.Currency().Code(),
		Version:      rec.Version,
		UpdatedAt:    rec.OccurredAt,
	})
	return err
}

// Projector applies both projections to one event inside a unit of work and
// drops the cached payment row afterwards.
type Projector struct {
	payments *PaymentProjection
	balances *WalletBalanceProjection
	uow      ports.UnitOfWork
	cache    ports.PaymentCache
	logger   *slog.Logger
}

// NewProjector wires the projections. cache may be nil.
func NewProjector(
	payments *PaymentProjection,
	balances *WalletBalanceProjection,
	uow ports.UnitOfWork,
	cache ports.PaymentCache,
	logger *slog.Logger,
) *Projector {
	return &Projector{
		payments: payments,
		balances: balances,
		uow:      uow,
		cache:    cache,
		logger:   logger,
	}
}

// Handle is a ports.EventHandler.
func (p *Projector) Handle(ctx context.Context, rec events.Record) error {
	err := p.uow.Execute(ctx, func(txCtx context.Context) error {
		if err := p.payments.Apply(txCtx, rec); err != nil {
			return fmt.Errorf("payment projection: %w", err)
		}
		if err := p.balances.Apply(txCtx, rec); err != nil {
			return fmt.Errorf("wallet balance projection: %w", err)
		}
		return nil
	})
	if err != nil {
		metrics.ProjectionErrors.WithLabelValues(rec.EventType).Inc()
		return err
	}

	if p.cache != nil && events.IsTerminal(rec.EventType) {
		if d, derr := decode(rec); derr == nil {
			if cerr := p.cache.Invalidate(ctx, d.paymentID); cerr != nil {
				p.logger.WarnContext(ctx, "failed to invalidate payment cache",
					slog.String("payment_id", d.paymentID.String()),
					slog.String("error", cerr.Error()),
				)
			}
		}
	}

	p.logger.DebugContext(ctx, "event projected",
		slog.String("event_type", rec.EventType),
		slog.String("aggregate_id", rec.AggregateID),
		slog.Int64("version", rec.Version),
	)
	return nil
}
