// Package entities - Wallet is the event-sourced aggregate behind every payment.
// Its balance is never stored: it is the seed balance folded with the wallet's
// committed events, in version order.
package entities

import (
	"fmt"
	"strings"

	"github.com/Haleralex/payledger/internal/domain/errors"
	"github.com/Haleralex/payledger/internal/domain/events"
	"github.com/Haleralex/payledger/internal/domain/valueobjects"
	"github.com/google/uuid"
)

// MaxTransactionAmount is the per-payment cap, in units of the wallet currency.
const MaxTransactionAmount = "50000"

// Wallet is the consistency boundary for payments.
//
// Invariants:
// - balance >= 0 after every applied event
// - version equals the number of applied events
// - at most one terminal event per payment
type Wallet struct {
	id       string
	ownerID  string
	currency valueobjects.Currency

	seedBalance valueobjects.Money
	balance     valueobjects.Money
	version     int64

	payments map[uuid.UUID]*PaymentState
}

// ReconstructWallet builds the version-0 aggregate from its seed record.
// Apply the wallet's events afterwards to reach the current state.
func ReconstructWallet(id, ownerID string, currency valueobjects.Currency, seedBalance valueobjects.Money) (*Wallet, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.NewValidationError("walletId", "wallet id is required", errors.ErrInvalidEntityID)
	}
	if currency.IsZero() {
		return nil, errors.NewValidationError("currency", "currency is required", nil)
	}
	if !seedBalance.Currency().Equals(currency) {
		return nil, errors.NewValidationError("currency", "seed balance currency does not match wallet currency", errors.ErrCurrencyMismatch)
	}

	return &Wallet{
		id:          id,
		ownerID:     ownerID,
		currency:    currency,
		seedBalance: seedBalance,
		balance:     seedBalance,
		payments:    make(map[uuid.UUID]*PaymentState),
	}, nil
}

// Getters

func (w *Wallet) ID() string {
	return w.id
}

func (w *Wallet) OwnerID() string {
	return w.ownerID
}

func (w *Wallet) Currency() valueobjects.Currency {
	return w.currency
}

func (w *Wallet) SeedBalance() valueobjects.Money {
	return w.seedBalance
}

// Balance returns the balance after all applied events.
func (w *Wallet) Balance() valueobjects.Money {
	return w.balance
}

// Version returns the version of the last applied event (0 for a fresh wallet).
func (w *Wallet) Version() int64 {
	return w.version
}

// Payment returns what the wallet knows about paymentID.
func (w *Wallet) Payment(paymentID uuid.UUID) (PaymentState, bool) {
	p, ok := w.payments[paymentID]
	if !ok {
		return PaymentState{}, false
	}
	return *p, true
}

// Business Methods

// CanProcessPayment validates a debit of amount against the current balance.
// It never mutates the wallet.
func (w *Wallet) CanProcessPayment(amount valueobjects.Money) error {
	if !amount.Currency().Equals(w.currency) {
		return errors.NewValidationError(
			"currency",
			fmt.Sprintf("payment currency %s does not match wallet currency %s", amount.Currency().Code(), w.currency.Code()),
			errors.ErrCurrencyMismatch,
		)
	}

	if !amount.IsPositive() {
		return errors.NewValidationError("amount", "amount must be greater than zero", errors.ErrNonPositiveAmount)
	}

	limit := valueobjects.MustNewMoney(MaxTransactionAmount, w.currency)
	if over, _ := amount.GreaterThan(limit); over {
		return errors.NewValidationError(
			"amount",
			fmt.Sprintf("amount %s exceeds the maximum of %s per transaction", amount.Decimal(), limit.Decimal()),
			errors.ErrTransactionLimitExceeded,
		)
	}

	if short, _ := w.balance.LessThan(amount); short {
		return errors.NewValidationError(
			"amount",
			fmt.Sprintf("insufficient funds: available %s, required %s", w.balance.Decimal(), amount.Decimal()),
			errors.ErrInsufficientBalance,
		)
	}

	return nil
}

// CalculateNewBalance returns balance - amount. Call CanProcessPayment first;
// the result is only authoritative once the event is appended.
func (w *Wallet) CalculateNewBalance(amount valueobjects.Money) (valueobjects.Money, error) {
	return w.balance.Subtract(amount)
}

// CalculateRestoredBalance returns balance + amount, used by cancel and refund.
func (w *Wallet) CalculateRestoredBalance(amount valueobjects.Money) (valueobjects.Money, error) {
	return w.balance.Add(amount)
}

// CanSettle checks that paymentID belongs to this wallet and is not yet terminal.
func (w *Wallet) CanSettle(paymentID uuid.UUID) error {
	p, ok := w.payments[paymentID]
	if !ok {
		return fmt.Errorf("%w: payment %s in wallet %s", errors.ErrEntityNotFound, paymentID, w.id)
	}
	if p.Status.IsTerminal() {
		return errors.NewConflictError(
			"Payment",
			paymentID.String(),
			fmt.Sprintf("payment %s already cancelled or refunded", paymentID),
			errors.ErrPaymentAlreadySettled,
		)
	}
	return nil
}

// Apply folds one committed event into the aggregate.
// Events must arrive in version order with no gaps.
func (w *Wallet) Apply(event events.DomainEvent) error {
	if event.AggregateID() != w.id {
		return fmt.Errorf("event for aggregate %s applied to wallet %s", event.AggregateID(), w.id)
	}
	if event.Version() != w.version+1 {
		return fmt.Errorf("%w: wallet %s at v%d got v%d", errors.ErrEventOutOfOrder, w.id, w.version, event.Version())
	}

	switch e := event.(type) {
	case *events.PaymentProcessed:
		next, err := w.balance.Subtract(e.Amount)
		if err != nil {
			return fmt.Errorf("failed to apply %s v%d: %w", e.EventType(), e.Version(), err)
		}
		w.balance = next
		w.payments[e.PaymentID] = &PaymentState{
			PaymentID: e.PaymentID,
			Amount:    e.Amount,
			Status:    PaymentStatusProcessed,
			Version:   e.Version(),
		}
	case *events.PaymentCancelled:
		if err := w.restore(e.PaymentID, e.Amount, PaymentStatusCancelled, e.Version()); err != nil {
			return err
		}
	case *events.PaymentRefunded:
		if err := w.restore(e.PaymentID, e.Amount, PaymentStatusRefunded, e.Version()); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %s", errors.ErrUnknownEventType, event.EventType())
	}

	w.version = event.Version()
	return nil
}

func (w *Wallet) restore(paymentID uuid.UUID, amount valueobjects.Money, status PaymentStatus, version int64) error {
	next, err := w.balance.Add(amount)
	if err != nil {
		return fmt.Errorf("failed to apply %s v%d: %w", status, version, err)
	}
	w.balance = next

	p, ok := w.payments[paymentID]
	if !ok {
		p = &PaymentState{PaymentID: paymentID, Amount: amount}
		w.payments[paymentID] = p
	}
	// first terminal event wins
	if !p.Status.IsTerminal() {
		p.Status = status
		p.Version = version
	}
	return nil
}

// Replay decodes and applies a wallet's records in order.
func (w *Wallet) Replay(records []events.Record) error {
	for _, r := range records {
		event, err := events.Decode(r)
		if err != nil {
			return err
		}
		if err := w.Apply(event); err != nil {
			return err
		}
	}
	return nil
}
