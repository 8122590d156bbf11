// Package postgres - WalletRepository: seed-записи кошельков.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Haleralex/payledger/internal/application/ports"
	"github.com/Haleralex/payledger/internal/domain/entities"
	domainErrors "github.com/Haleralex/payledger/internal/domain/errors"
	"github.com/Haleralex/payledger/internal/domain/valueobjects"
	"github.com/Haleralex/payledger/internal/pkg/metrics"
)

// Compile-time check
var _ ports.WalletRepository = (*WalletRepository)(nil)

// WalletRepository реализует ports.WalletRepository.
//
// Таблица wallets неизменяема после seed: баланс в ней - начальный,
// текущий баланс получается из журнала событий.
// Money хранится как BIGINT (cents/satoshis).
type WalletRepository struct {
	db DB
}

// NewWalletRepository создаёт новый WalletRepository.
func NewWalletRepository(db DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// FindByID загружает кошелёк версии 0.
func (r *WalletRepository) FindByID(ctx context.Context, walletID string) (*entities.Wallet, error) {
	start := time.Now()
	defer metrics.RecordDBQuery("select", "wallets", start)

	query := `
		SELECT wallet_id, owner_id, currency, initial_balance
		FROM wallets
		WHERE wallet_id = $1
	`

	var (
		id, ownerID, currencyCode string
		initialCents              int64
	)

	err := getQuerier(ctx, r.db).QueryRow(ctx, query, walletID).Scan(&id, &ownerID, &currencyCode, &initialCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: wallet %s", domainErrors.ErrEntityNotFound, walletID)
		}
		return nil, persistenceError("load wallet", err)
	}

	currency, err := valueobjects.NewCurrency(currencyCode)
	if err != nil {
		return nil, fmt.Errorf("invalid currency in database: %w", err)
	}

	seed, err := valueobjects.NewMoneyFromCents(initialCents, currency)
	if err != nil {
		return nil, fmt.Errorf("failed to convert initial balance: %w", err)
	}

	return entities.ReconstructWallet(id, ownerID, currency, seed)
}
