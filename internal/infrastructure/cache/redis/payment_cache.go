package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Haleralex/payledger/internal/application/ports"
	"github.com/Haleralex/payledger/internal/domain/entities"
)

var _ ports.PaymentCache = (*PaymentCache)(nil)

// cachedPayment - JSON-представление строки read-модели в Redis.
type cachedPayment struct {
	PaymentID         uuid.UUID `json:"paymentId"`
	WalletID          string    `json:"walletId"`
	AmountCents       int64     `json:"amountCents"`
	Currency          string    `json:"currency"`
	RecipientWalletID string    `json:"recipientWalletId,omitempty"`
	Concept           string    `json:"concept,omitempty"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// PaymentCache - read-through кэш строк payments_read_model.
//
// Терминальные события инвалидируют ключ (проекция), поэтому TTL
// ограничивает только объём памяти, а не свежесть данных.
type PaymentCache struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewPaymentCache создаёт кэш. ttl <= 0 означает 5 минут.
func NewPaymentCache(client goredis.UniversalClient, prefix string, ttl time.Duration) *PaymentCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PaymentCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *PaymentCache) key(id uuid.UUID) string {
	return prefixed(c.prefix, "payment", id.String())
}

// Get возвращает nil, nil при промахе.
func (c *PaymentCache) Get(ctx context.Context, paymentID uuid.UUID) (*ports.PaymentReadModel, error) {
	data, err := c.client.Get(ctx, c.key(paymentID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis payment cache get: %w", err)
	}

	var cp cachedPayment
	if err := json.Unmarshal(data, &cp); err != nil {
		// битая запись - считаем промахом и удаляем
		_ = c.client.Del(ctx, c.key(paymentID)).Err()
		return nil, nil
	}

	return &ports.PaymentReadModel{
		PaymentID:         cp.PaymentID,
		WalletID:          cp.WalletID,
		AmountCents:       cp.AmountCents,
		Currency:          cp.Currency,
		RecipientWalletID: cp.RecipientWalletID,
		Concept:           cp.Concept,
		Status:            entities.PaymentStatus(cp.Status),
		CreatedAt:         cp.CreatedAt,
		UpdatedAt:         cp.UpdatedAt,
	}, nil
}

func (c *PaymentCache) Set(ctx context.Context, row *ports.PaymentReadModel) error {
	data, err := json.Marshal(cachedPayment{
		PaymentID:         row.PaymentID,
		WalletID:          row.WalletID,
		AmountCents:       row.AmountCents,
		Currency:          row.Currency,
		RecipientWalletID: row.RecipientWalletID,
		Concept:           row.Concept,
		Status:            string(row.Status),
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cached payment: %w", err)
	}

	if err := c.client.Set(ctx, c.key(row.PaymentID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis payment cache set: %w", err)
	}
	return nil
}

func (c *PaymentCache) Invalidate(ctx context.Context, paymentID uuid.UUID) error {
	if err := c.client.Del(ctx, c.key(paymentID)).Err(); err != nil {
		return fmt.Errorf("redis payment cache del: %w", err)
	}
	return nil
}
