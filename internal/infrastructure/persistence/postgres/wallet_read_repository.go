// Package postgres - WalletReadRepository: снимки балансов.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Haleralex/payledger/internal/application/ports"
	domainErrors "github.com/Haleralex/payledger/internal/domain/errors"
	"github.com/Haleralex/payledger/internal/pkg/metrics"
)

// Compile-time check
var _ ports.WalletReadRepository = (*WalletReadRepository)(nil)

// WalletReadRepository реализует ports.WalletReadRepository.
// Колонка version защищает снимок от повторных и устаревших событий.
type WalletReadRepository struct {
	db DB
}

// NewWalletReadRepository создаёт новый WalletReadRepository.
func NewWalletReadRepository(db DB) *WalletReadRepository {
	return &WalletReadRepository{db: db}
}

// FindByID загружает снимок баланса.
func (r *WalletReadRepository) FindByID(ctx context.Context, walletID string) (*ports.WalletBalanceReadModel, error) {
	start := time.Now()
	defer metrics.RecordDBQuery("select", "wallets_read_model", start)

	query := `
		SELECT wallet_id, balance, currency, version, updated_at
		FROM wallets_read_model
		WHERE wallet_id = $1
	`

	var w ports.WalletBalanceReadModel
	err := getQuerier(ctx, r.db).QueryRow(ctx, query, walletID).Scan(
		&w.WalletID,
		&w.BalanceCents,
		&w.Currency,
		&w.Version,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: wallet %s", domainErrors.ErrEntityNotFound, walletID)
		}
		return nil, persistenceError("load wallet snapshot", err)
	}

	return &w, nil
}

// ApplyBalance пишет снимок только если его версия новее сохранённой.
func (r *WalletReadRepository) ApplyBalance(ctx context.Context, s *ports.WalletBalanceReadModel) (bool, error) {
	start := time.Now()
	defer metrics.RecordDBQuery("upsert", "wallets_read_model", start)

	query := `
		INSERT INTO wallets_read_model (wallet_id, balance, currency, version, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (wallet_id) DO UPDATE
		SET balance = EXCLUDED.balance, version = EXCLUDED.version, updated_at = EXCLUDED.updated_at
		WHERE wallets_read_model.version < EXCLUDED.version
	`

	tag, err := getQuerier(ctx, r.db).Exec(ctx, query,
		s.WalletID, s.BalanceCents, s.Currency, s.Version, s.UpdatedAt)
	if err != nil {
		return false, persistenceError("apply wallet balance", err)
	}

	return tag.RowsAffected() == 1, nil
}
