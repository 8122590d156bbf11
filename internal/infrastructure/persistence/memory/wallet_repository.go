package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Haleralex/payledger/internal/application/ports"
	"github.com/Haleralex/payledger/internal/domain/entities"
	domainErrors "github.com/Haleralex/payledger/internal/domain/errors"
	"github.com/Haleralex/payledger/internal/domain/valueobjects"
)

// Compile-time check
var _ ports.WalletRepository = (*WalletRepository)(nil)

// WalletSeed - seed-запись кошелька. InitialBalance в минимальных единицах.
type WalletSeed struct {
	WalletID       string
	OwnerID        string
	Currency       string
	InitialBalance int64
}

// DefaultSeeds совпадают с миграцией 000002_create_wallets.
func DefaultSeeds() []WalletSeed {
	return []WalletSeed{
		{WalletID: "WAL-001", OwnerID: "USER-001", Currency: "USD", InitialBalance: 1000000},
		{WalletID: "WAL-002", OwnerID: "USER-002", Currency: "USD", InitialBalance: 500000},
		{WalletID: "WAL-003", OwnerID: "USER-003", Currency: "USD", InitialBalance: 25000},
	}
}

// WalletRepository отдаёт seed-кошельки версии 0.
type WalletRepository struct {
	mu    sync.RWMutex
	seeds map[string]WalletSeed
}

// NewWalletRepository создаёт репозиторий с заданными seed-записями.
func NewWalletRepository(seeds []WalletSeed) *WalletRepository {
	r := &WalletRepository{seeds: make(map[string]WalletSeed, len(seeds))}
	for _, s := range seeds {
		r.seeds[s.WalletID] = s
	}
	return r
}

// FindByID реконструирует кошелёк из seed-записи.
func (r *WalletRepository) FindByID(ctx context.Context, walletID string) (*entities.Wallet, error) {
	r.mu.RLock()
	seed, ok := r.seeds[walletID]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: wallet %s", domainErrors.ErrEntityNotFound, walletID)
	}

	currency, err := valueobjects.NewCurrency(seed.Currency)
	if err != nil {
		return nil, fmt.Errorf("invalid currency for wallet %s: %w", walletID, err)
	}
	balance, err := valueobjects.NewMoneyFromCents(seed.InitialBalance, currency)
	if err != nil {
		return nil, fmt.Errorf("invalid seed balance for wallet %s: %w", walletID, err)
	}

	return entities.ReconstructWallet(seed.WalletID, seed.OwnerID, currency, balance)
}
