package entities

import (
	"github.com/Haleralex/payledger/internal/domain/events"
	"github.com/Haleralex/payledger/internal/domain/valueobjects"
	"github.com/google/uuid"
)

// PaymentStatus is the lifecycle state of a payment, derived from the log.
//
//	PROCESSED -> CANCELLED
//	PROCESSED -> REFUNDED
//
// There is no pending state: a payment exists only once its PaymentProcessed
// event is committed.
type PaymentStatus string

const (
	PaymentStatusProcessed PaymentStatus = "PROCESSED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// IsValid checks if the payment status is known.
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusProcessed, PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for CANCELLED and REFUNDED.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCancelled || s == PaymentStatusRefunded
}

// CanTransitionTo checks if status can change to target.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	return s == PaymentStatusProcessed && target.IsTerminal()
}

// StatusForEvent maps an event type to the status it leaves the payment in.
func StatusForEvent(eventType string) (PaymentStatus, bool) {
	switch eventType {
	case events.EventTypePaymentProcessed:
		return PaymentStatusProcessed, true
	case events.EventTypePaymentCancelled:
		return PaymentStatusCancelled, true
	case events.EventTypePaymentRefunded:
		return PaymentStatusRefunded, true
	default:
		return "", false
	}
}

// PaymentState is what a wallet remembers about one of its payments.
type PaymentState struct {
	PaymentID uuid.UUID
	Amount    valueobjects.Money
	Status    PaymentStatus
	Version   int64 // version of the event that set Status
}
