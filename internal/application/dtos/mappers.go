// Package dtos - Mappers для конвертации read-моделей и событий в DTOs.
//
// Pattern: Mapper/Converter
// Отделяет внутреннее представление от API representation
package dtos

import (
	"github.com/Haleralex/payledger/internal/application/ports"
	"github.com/Haleralex/payledger/internal/domain/events"
	"github.com/Haleralex/payledger/internal/domain/valueobjects"
)

// ============================================
// Payment Mappers
// ============================================

// ToPaymentDTO конвертирует строку read-модели в DTO.
func ToPaymentDTO(row *ports.PaymentReadModel) PaymentDTO {
	return PaymentDTO{
		PaymentID:         row.PaymentID.String(),
		WalletID:          row.WalletID,
		Amount:            FormatCents(row.AmountCents, row.Currency),
		Currency:          row.Currency,
		RecipientWalletID: row.RecipientWalletID,
		Concept:           row.Concept,
		Status:            string(row.Status),
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
}

// ToPaymentDTOList конвертирует список строк.
func ToPaymentDTOList(rows []*ports.PaymentReadModel) []PaymentDTO {
	result := make([]PaymentDTO, len(rows))
	for i, row := range rows {
		result[i] = ToPaymentDTO(row)
	}
	return result
}

// ToPaymentListDTO собирает страницу с метаданными пагинации.
func ToPaymentListDTO(rows []*ports.PaymentReadModel, total int64, page, limit int) *PaymentListDTO {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}

	return &PaymentListDTO{
		Payments:   ToPaymentDTOList(rows),
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}
}

// ToPaymentHistoryItem конвертирует запись журнала в элемент истории.
func ToPaymentHistoryItem(rec events.Record) (PaymentHistoryItemDTO, error) {
	p, err := rec.ParsePayload()
	if err != nil {
		return PaymentHistoryItemDTO{}, err
	}

	return PaymentHistoryItemDTO{
		EventType:         rec.EventType,
		PaymentID:         p.PaymentID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		RecipientWalletID: p.RecipientWalletID,
		Concept:           p.Concept,
		Reason:            p.Reason,
		PreviousBalance:   p.PreviousBalance,
		NewBalance:        p.NewBalance,
		OccurredAt:        rec.OccurredAt,
		Version:           rec.Version,
	}, nil
}

// ============================================
// Wallet Mappers
// ============================================

// ToWalletBalanceDTO конвертирует снимок баланса в DTO.
func ToWalletBalanceDTO(row *ports.WalletBalanceReadModel) WalletBalanceDTO {
	return WalletBalanceDTO{
		WalletID:  row.WalletID,
		Balance:   FormatCents(row.BalanceCents, row.Currency),
		Currency:  row.Currency,
		Version:   row.Version,
		UpdatedAt: row.UpdatedAt,
	}
}

// ============================================
// Helpers
// ============================================

// FormatCents переводит минимальные единицы в десятичную строку валюты.
// Для неизвестной валюты возвращает "0".
func FormatCents(cents int64, currencyCode string) string {
	currency, err := valueobjects.NewCurrency(currencyCode)
	if err != nil {
		return "0"
	}
	m, err := valueobjects.NewMoneyFromCents(cents, currency)
	if err != nil {
		return "0"
	}
	return m.Decimal()
}
