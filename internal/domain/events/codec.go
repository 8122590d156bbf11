package events

import (
	"encoding/json"
	"fmt"

	domainerrors "github.com/Haleralex/payledger/internal/domain/errors"
	"github.com/Haleralex/payledger/internal/domain/valueobjects"
	"github.com/google/uuid"
)

// Encode serializes a typed event into its persisted payload.
func Encode(e DomainEvent) (json.RawMessage, error) {
	var p Payload

	switch ev := e.(type) {
	case *PaymentProcessed:
		p = Payload{
			PaymentID:         ev.PaymentID.String(),
			WalletID:          ev.WalletID,
			Amount:            ev.Amount.Decimal(),
			Currency:          ev.Amount.Currency().Code(),
			RecipientWalletID: ev.RecipientWalletID,
			Concept:           ev.Concept,
			PreviousBalance:   ev.PreviousBalance.Decimal(),
			NewBalance:        ev.NewBalance.Decimal(),
		}
	case *PaymentCancelled:
		p = terminalPayload(ev.PaymentID, ev.WalletID, ev.Amount, ev.Reason, ev.PreviousBalance, ev.NewBalance)
	case *PaymentRefunded:
		p = terminalPayload(ev.PaymentID, ev.WalletID, ev.Amount, ev.Reason, ev.PreviousBalance, ev.NewBalance)
	default:
		return nil, fmt.Errorf("%w: %T", domainerrors.ErrUnknownEventType, e)
	}

	p.EventID = e.EventID().String()

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", e.EventType(), err)
	}
	return data, nil
}

func terminalPayload(paymentID uuid.UUID, walletID string, amount valueobjects.Money, reason string, prev, next valueobjects.Money) Payload {
	return Payload{
		PaymentID:       paymentID.String(),
		WalletID:        walletID,
		Amount:          amount.Decimal(),
		Currency:        amount.Currency().Code(),
		Reason:          reason,
		PreviousBalance: prev.Decimal(),
		NewBalance:      next.Decimal(),
	}
}

// Decode rebuilds the typed event from a stored record.
// Envelope fields (version, occurredAt, aggregate id) come from the record.
func Decode(r Record) (DomainEvent, error) {
	switch r.EventType {
	case EventTypePaymentProcessed, EventTypePaymentCancelled, EventTypePaymentRefunded:
	default:
		return nil, fmt.Errorf("%w: %q", domainerrors.ErrUnknownEventType, r.EventType)
	}

	p, err := r.ParsePayload()
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s v%d of %s: %w", r.EventType, r.Version, r.AggregateID, err)
	}

	d, err := decodeAmounts(p)
	if err != nil {
		return nil, fmt.Errorf("invalid %s v%d of %s: %w", r.EventType, r.Version, r.AggregateID, err)
	}

	base := BaseEvent{
		eventID:     d.eventID,
		eventType:   r.EventType,
		occurredAt:  r.OccurredAt,
		aggregateID: r.AggregateID,
		version:     r.Version,
	}

	switch r.EventType {
	case EventTypePaymentProcessed:
		return &PaymentProcessed{
			BaseEvent:         base,
			PaymentID:         d.paymentID,
			WalletID:          p.WalletID,
			Amount:            d.amount,
			RecipientWalletID: p.RecipientWalletID,
			Concept:           p.Concept,
			PreviousBalance:   d.previous,
			NewBalance:        d.next,
		}, nil
	case EventTypePaymentCancelled:
		return &PaymentCancelled{
			BaseEvent:       base,
			PaymentID:       d.paymentID,
			WalletID:        p.WalletID,
			Amount:          d.amount,
			Reason:          p.Reason,
			PreviousBalance: d.previous,
			NewBalance:      d.next,
		}, nil
	default:
		return &PaymentRefunded{
			BaseEvent:       base,
			PaymentID:       d.paymentID,
			WalletID:        p.WalletID,
			Amount:          d.amount,
			Reason:          p.Reason,
			PreviousBalance: d.previous,
			NewBalance:      d.next,
		}, nil
	}
}

type decoded struct {
	eventID   uuid.UUID
	paymentID uuid.UUID
	amount    valueobjects.Money
	previous  valueobjects.Money
	next      valueobjects.Money
}

func decodeAmounts(p Payload) (decoded, error) {
	var (
		d   decoded
		err error
	)

	if d.paymentID, err = uuid.Parse(p.PaymentID); err != nil {
		return d, fmt.Errorf("paymentId: %w", err)
	}
	// eventId is optional for records written by external tools
	if p.EventID != "" {
		if d.eventID, err = uuid.Parse(p.EventID); err != nil {
			return d, fmt.Errorf("eventId: %w", err)
		}
	}

	currency, err := valueobjects.NewCurrency(p.Currency)
	if err != nil {
		return d, err
	}
	if d.amount, err = valueobjects.NewMoney(p.Amount, currency); err != nil {
		return d, fmt.Errorf("amount: %w", err)
	}
	if d.previous, err = valueobjects.NewMoney(p.PreviousBalance, currency); err != nil {
		return d, fmt.Errorf("previousBalance: %w", err)
	}
	if d.next, err = valueobjects.NewMoney(p.NewBalance, currency); err != nil {
		return d, fmt.Errorf("newBalance: %w", err)
	}
	return d, nil
}

// ToRecord encodes e into the envelope it would have once stored at version.
// Sequence is left to the store.
func ToRecord(e DomainEvent, version int64) (Record, error) {
	payload, err := Encode(e)
	if err != nil {
		return Record{}, err
	}
	return Record{
		AggregateID:   e.AggregateID(),
		AggregateType: AggregateTypeWallet,
		EventType:     e.EventType(),
		Payload:       payload,
		OccurredAt:    e.OccurredAt(),
		Version:       version,
	}, nil
}
