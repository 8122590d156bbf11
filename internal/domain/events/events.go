// Package events defines the wallet ledger's domain events.
// Events are immutable facts about what happened in the past.
//
// Two representations exist:
//   - typed events (PaymentProcessed, PaymentCancelled, PaymentRefunded) used by
//     the wallet aggregate and command handlers;
//   - Record, the persisted envelope with an opaque JSON payload, used by the
//     event store, the publisher and projections.
//
// Encode and Decode convert between them.
package events

import (
	"encoding/json"
	"time"

	"github.com/Haleralex/payledger/internal/domain/valueobjects"
	"github.com/google/uuid"
)

// AggregateTypeWallet is the only aggregate type written by the ledger.
const AggregateTypeWallet = "Wallet"

// Event Types (persisted in event_store.event_type)
const (
	EventTypePaymentProcessed = "PaymentProcessed"
	EventTypePaymentCancelled = "PaymentCancelled"
	EventTypePaymentRefunded  = "PaymentRefunded"
)

// FieldPaymentID is the payload key used to locate a payment's events.
const FieldPaymentID = "paymentId"

// DomainEvent is the base interface for all domain events.
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() string // wallet id
	Version() int64      // 0 until the event has been appended
}

// BaseEvent provides common fields for all events.
// Embedded in specific event types to avoid duplication.
type BaseEvent struct {
	eventID     uuid.UUID
	eventType   string
	occurredAt  time.Time
	aggregateID string
	version     int64
}

func newBaseEvent(eventType, aggregateID string) BaseEvent {
	return BaseEvent{
		eventID:     uuid.New(),
		eventType:   eventType,
		occurredAt:  time.Now().UTC(),
		aggregateID: aggregateID,
	}
}

func (e BaseEvent) EventID() uuid.UUID {
	return e.eventID
}

func (e BaseEvent) EventType() string {
	return e.eventType
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.occurredAt
}

func (e BaseEvent) AggregateID() string {
	return e.aggregateID
}

func (e BaseEvent) Version() int64 {
	return e.version
}

// ===== Payment Events =====

// PaymentProcessed is raised when funds leave a wallet towards a recipient.
// A payment is created already processed; there is no pending state.
type PaymentProcessed struct {
	BaseEvent
	PaymentID         uuid.UUID
	WalletID          string
	Amount            valueobjects.Money
	RecipientWalletID string
	Concept           string
	PreviousBalance   valueobjects.Money
	NewBalance        valueobjects.Money
}

func NewPaymentProcessed(
	paymentID uuid.UUID,
	walletID string,
	amount valueobjects.Money,
	recipientWalletID, concept string,
	previousBalance, newBalance valueobjects.Money,
) *PaymentProcessed {
	return &PaymentProcessed{
		BaseEvent:         newBaseEvent(EventTypePaymentProcessed, walletID),
		PaymentID:         paymentID,
		WalletID:          walletID,
		Amount:            amount,
		RecipientWalletID: recipientWalletID,
		Concept:           concept,
		PreviousBalance:   previousBalance,
		NewBalance:        newBalance,
	}
}

// PaymentCancelled is a terminal event that returns a payment's amount to the payer.
type PaymentCancelled struct {
	BaseEvent
	PaymentID       uuid.UUID
	WalletID        string
	Amount          valueobjects.Money
	Reason          string
	PreviousBalance valueobjects.Money
	NewBalance      valueobjects.Money
}

func NewPaymentCancelled(
	paymentID uuid.UUID,
	walletID string,
	amount valueobjects.Money,
	reason string,
	previousBalance, newBalance valueobjects.Money,
) *PaymentCancelled {
	return &PaymentCancelled{
		BaseEvent:       newBaseEvent(EventTypePaymentCancelled, walletID),
		PaymentID:       paymentID,
		WalletID:        walletID,
		Amount:          amount,
		Reason:          reason,
		PreviousBalance: previousBalance,
		NewBalance:      newBalance,
	}
}

// PaymentRefunded is the refund flavour of PaymentCancelled. Same balance effect,
// different label.
type PaymentRefunded struct {
	BaseEvent
	PaymentID       uuid.UUID
	WalletID        string
	Amount          valueobjects.Money
	Reason          string
	PreviousBalance valueobjects.Money
	NewBalance      valueobjects.Money
}

func NewPaymentRefunded(
	paymentID uuid.UUID,
	walletID string,
	amount valueobjects.Money,
	reason string,
	previousBalance, newBalance valueobjects.Money,
) *PaymentRefunded {
	return &PaymentRefunded{
		BaseEvent:       newBaseEvent(EventTypePaymentRefunded, walletID),
		PaymentID:       paymentID,
		WalletID:        walletID,
		Amount:          amount,
		Reason:          reason,
		PreviousBalance: previousBalance,
		NewBalance:      newBalance,
	}
}

// IsTerminal reports whether eventType closes a payment.
func IsTerminal(eventType string) bool {
	return eventType == EventTypePaymentCancelled || eventType == EventTypePaymentRefunded
}

// ===== Persisted envelope =====

// Record is an event as stored in the event store.
// Sequence is the store-wide insertion order, Version the per-aggregate one.
type Record struct {
	Sequence      int64           `json:"sequence"`
	AggregateID   string          `json:"aggregateId"`
	AggregateType string          `json:"aggregateType"`
	EventType     string          `json:"eventType"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Version       int64           `json:"version"`
}

// Payload is the JSON shape of every payment event's event_data.
// Monetary values are decimal strings ("500.00").
type Payload struct {
	EventID           string `json:"eventId"`
	PaymentID         string `json:"paymentId"`
	WalletID          string `json:"walletId"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	RecipientWalletID string `json:"recipientWalletId,omitempty"`
	Concept           string `json:"concept,omitempty"`
	Reason            string `json:"reason,omitempty"`
	PreviousBalance   string `json:"previousBalance"`
	NewBalance        string `json:"newBalance"`
}

// ParsePayload unmarshals a record's payload without building the typed event.
func (r Record) ParsePayload() (Payload, error) {
	var p Payload
	err := json.Unmarshal(r.Payload, &p)
	return p, err
}
