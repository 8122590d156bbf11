package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Haleralex/payledger/internal/application/ports"
	"github.com/Haleralex/payledger/internal/domain/entities"
	domainErrors "github.com/Haleralex/payledger/internal/domain/errors"
)

// Compile-time checks
var (
	_ ports.PaymentReadRepository = (*PaymentReadRepository)(nil)
	_ ports.WalletReadRepository  = (*WalletReadRepository)(nil)
	_ ports.CheckpointRepository  = (*CheckpointRepository)(nil)
)

// ============================================
// Payments
// ============================================

// PaymentReadRepository - read-модель платежей в памяти.
type PaymentReadRepository struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]ports.PaymentReadModel
}

// NewPaymentReadRepository создаёт пустую read-модель.
func NewPaymentReadRepository() *PaymentReadRepository {
	return &PaymentReadRepository{rows: make(map[uuid.UUID]ports.PaymentReadModel)}
}

func (r *PaymentReadRepository) FindByID(ctx context.Context, paymentID uuid.UUID) (*ports.PaymentReadModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[paymentID]
	if !ok {
		return nil, fmt.Errorf("%w: payment %s", domainErrors.ErrEntityNotFound, paymentID)
	}
	return &row, nil
}

// FindAll фильтрует, сортирует (created_at DESC, payment_id ASC) и отдаёт страницу.
func (r *PaymentReadRepository) FindAll(ctx context.Context, filter ports.PaymentFilter) ([]*ports.PaymentReadModel, int64, error) {
	r.mu.RLock()
	matched := make([]ports.PaymentReadModel, 0, len(r.rows))
	for _, row := range r.rows {
		if filter.WalletID != nil && row.WalletID != *filter.WalletID {
			continue
		}
		if filter.Status != nil && row.Status != *filter.Status {
			continue
		}
		matched = append(matched, row)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].PaymentID.String() < matched[j].PaymentID.String()
	})

	total := int64(len(matched))
	offset := filter.Offset()
	if offset >= len(matched) {
		return []*ports.PaymentReadModel{}, total, nil
	}
	end := len(matched)
	if filter.Limit > 0 && filter.Limit < end-offset {
		end = offset + filter.Limit
	}

	page := make([]*ports.PaymentReadModel, 0, end-offset)
	for i := offset; i < end; i++ {
		row := matched[i]
		page = append(page, &row)
	}
	return page, total, nil
}

// Upsert вставляет строку, если её ещё нет.
func (r *PaymentReadRepository) Upsert(ctx context.Context, row *ports.PaymentReadModel) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rows[row.PaymentID]; exists {
		return false, nil
	}
	r.rows[row.PaymentID] = *row
	return true, nil
}

// UpdateStatus переводит PROCESSED -> status. Терминальные строки не трогает.
func (r *PaymentReadRepository) UpdateStatus(ctx context.Context, paymentID uuid.UUID, status entities.PaymentStatus, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[paymentID]
	if !ok || !row.Status.CanTransitionTo(status) {
		return false, nil
	}
	row.Status = status
	row.UpdatedAt = at
	r.rows[paymentID] = row
	return true, nil
}

// ============================================
// Wallet balances
// ============================================

// WalletReadRepository - снимки балансов в памяти.
type WalletReadRepository struct {
	mu   sync.RWMutex
	rows map[string]ports.WalletBalanceReadModel
}

// NewWalletReadRepository создаёт снимки версии 0 из seed-записей.
func NewWalletReadRepository(seeds []WalletSeed) *WalletReadRepository {
	r := &WalletReadRepository{rows: make(map[string]ports.WalletBalanceReadModel, len(seeds))}
	now := time.Now().UTC()
	for _, s := range seeds {
		r.rows[s.WalletID] = ports.WalletBalanceReadModel{
			WalletID:     s.WalletID,
			BalanceCents: s.InitialBalance,
			Currency:     s.Currency,
			UpdatedAt:    now,
		}
	}
	return r
}

func (r *WalletReadRepository) FindByID(ctx context.Context, walletID string) (*ports.WalletBalanceReadModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[walletID]
	if !ok {
		return nil, fmt.Errorf("%w: wallet %s", domainErrors.ErrEntityNotFound, walletID)
	}
	return &row, nil
}

// ApplyBalance записывает снимок только если его версия новее сохранённой.
func (r *WalletReadRepository) ApplyBalance(ctx context.Context, s *ports.WalletBalanceReadModel) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.rows[s.WalletID]; ok && cur.Version >= s.Version {
		return false, nil
	}
	r.rows[s.WalletID] = *s
	return true, nil
}

// ============================================
// Checkpoints
// ============================================

// CheckpointRepository хранит позиции проекций в памяти.
type CheckpointRepository struct {
	mu        sync.Mutex
	positions map[string]int64
}

// NewCheckpointRepository создаёт пустое хранилище позиций.
func NewCheckpointRepository() *CheckpointRepository {
	return &CheckpointRepository{positions: make(map[string]int64)}
}

func (r *CheckpointRepository) Load(ctx context.Context, name string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.positions[name], nil
}

// Save никогда не уменьшает позицию.
func (r *CheckpointRepository) Save(ctx context.Context, name string, sequence int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sequence > r.positions[name] {
		r.positions[name] = sequence
	}
	return nil
}
