// Package dtos - Payment DTOs для передачи данных о платежах.
package dtos

import "time"

// ============================================
// Commands (Write операции)
// ============================================

// ProcessPaymentCommand - команда списания средств с кошелька в пользу получателя.
// Amount - десятичная строка ("500.00").
type ProcessPaymentCommand struct {
	WalletID          string `json:"wallet_id" validate:"required,max=64"`
	Amount            string `json:"amount" validate:"required,money_amount"`
	Currency          string `json:"currency" validate:"required,currency_code"`
	RecipientWalletID string `json:"recipient_wallet_id" validate:"required,max=64"`
	Concept           string `json:"concept" validate:"required,max=255"`
	IdempotencyKey    string `json:"-"` // из заголовка Idempotency-Key
}

// CancelPaymentCommand - команда отмены платежа.
type CancelPaymentCommand struct {
	PaymentID string `json:"-"`
	Reason    string `json:"reason" validate:"required,min=5,max=255"`
}

// RefundPaymentCommand - команда возврата платежа.
type RefundPaymentCommand struct {
	PaymentID string `json:"-"`
	Reason    string `json:"reason" validate:"required,min=5,max=255"`
}

// ============================================
// Queries (Read операции)
// ============================================

// GetPaymentQuery - запрос платежа по ID.
type GetPaymentQuery struct {
	PaymentID string `json:"payment_id" validate:"required,uuid"`
}

// ListPaymentsQuery - запрос списка платежей с фильтрацией.
type ListPaymentsQuery struct {
	WalletID *string `form:"wallet_id" json:"wallet_id,omitempty" validate:"omitempty,max=64"`
	Status   *string `form:"status" json:"status,omitempty" validate:"omitempty,payment_status"`
	Page     int     `form:"page" json:"page" validate:"omitempty,min=1,max=100000"`
	Limit    int     `form:"limit" json:"limit" validate:"omitempty,min=1,max=100"`
}

// GetPaymentHistoryQuery - последние события кошелька прямо из журнала.
type GetPaymentHistoryQuery struct {
	WalletID string `json:"wallet_id" validate:"required"`
	Limit    int    `json:"limit" validate:"omitempty,min=1,max=100"`
}

// ============================================
// Response DTOs
// ============================================

// PaymentDTO - представление платежа для API (из read-модели).
type PaymentDTO struct {
	PaymentID         string    `json:"payment_id"`
	WalletID          string    `json:"wallet_id"`
	Amount            string    `json:"amount"`
	Currency          string    `json:"currency"`
	RecipientWalletID string    `json:"recipient_wallet_id,omitempty"`
	Concept           string    `json:"concept,omitempty"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// PaymentListDTO - страница платежей.
type PaymentListDTO struct {
	Payments   []PaymentDTO `json:"payments"`
	Total      int64        `json:"total"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	TotalPages int          `json:"total_pages"`
}

// PaymentResultDTO - результат команды над платежом.
type PaymentResultDTO struct {
	PaymentID       string `json:"payment_id"`
	WalletID        string `json:"wallet_id"`
	Status          string `json:"status"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	PreviousBalance string `json:"previous_balance"`
	NewBalance      string `json:"new_balance"`
	Version         int64  `json:"version"`
	Reason          string `json:"reason,omitempty"`
	Replayed        bool   `json:"replayed,omitempty"` // ответ по повторному Idempotency-Key
}

// PaymentHistoryItemDTO - одно событие из журнала кошелька.
type PaymentHistoryItemDTO struct {
	EventType         string    `json:"event_type"`
	PaymentID         string    `json:"payment_id"`
	Amount            string    `json:"amount"`
	Currency          string    `json:"currency"`
	RecipientWalletID string    `json:"recipient_wallet_id,omitempty"`
	Concept           string    `json:"concept,omitempty"`
	Reason            string    `json:"reason,omitempty"`
	PreviousBalance   string    `json:"previous_balance"`
	NewBalance        string    `json:"new_balance"`
	OccurredAt        time.Time `json:"occurred_at"`
	Version           int64     `json:"version"`
}

// PaymentHistoryDTO - история кошелька.
type PaymentHistoryDTO struct {
	WalletID    string                  `json:"wallet_id"`
	Events      []PaymentHistoryItemDTO `json:"events"`
	TotalEvents int                     `json:"total_events"`
	GeneratedAt time.Time               `json:"generated_at"`
}
