// Package ports определяет интерфейсы (порты) для внешних зависимостей.
// Эти интерфейсы реализуются в Infrastructure Layer (PostgreSQL, in-memory, Redis).
//
// Pattern: Repository Pattern + Ports & Adapters (Hexagonal Architecture)
package ports

import (
	"context"
	"math"
	"time"

	"github.com/Haleralex/payledger/internal/domain/entities"
	"github.com/google/uuid"
)

// WalletRepository отдаёт seed-запись кошелька (владелец, валюта, начальный баланс).
//
// Важно: баланс здесь НЕ хранится. Текущее состояние кошелька получается
// применением его событий из EventStore к seed-версии.
type WalletRepository interface {
	// FindByID возвращает кошелёк версии 0.
	// ErrEntityNotFound если кошелька нет.
	FindByID(ctx context.Context, walletID string) (*entities.Wallet, error)
}

// PaymentReadModel - строка read-модели платежа (payments_read_model).
// Суммы хранятся в минимальных единицах валюты (cents).
type PaymentReadModel struct {
	PaymentID         uuid.UUID
	WalletID          string
	AmountCents       int64
	Currency          string
	RecipientWalletID string
	Concept           string
	Status            entities.PaymentStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PaymentFilter определяет критерии фильтрации для платежей.
type PaymentFilter struct {
	WalletID *string                 // Фильтр по кошельку
	Status   *entities.PaymentStatus // Фильтр по статусу
	Page     int                     // С 1
	Limit    int
}

// Offset вычисляет смещение для OFFSET-пагинации.
// При переполнении возвращает math.MaxInt: такая страница заведомо пуста.
func (f PaymentFilter) Offset() int {
	if f.Page < 1 || f.Limit < 1 {
		return 0
	}
	if f.Page-1 > math.MaxInt/f.Limit {
		return math.MaxInt
	}
	return (f.Page - 1) * f.Limit
}

// PaymentReadRepository обслуживает запросы к read-модели платежей.
// Никогда не обращается к EventStore.
type PaymentReadRepository interface {
	// FindByID загружает строку платежа. ErrEntityNotFound если нет.
	FindByID(ctx context.Context, paymentID uuid.UUID) (*PaymentReadModel, error)

	// FindAll возвращает страницу и общее число строк, подходящих под фильтр.
	FindAll(ctx context.Context, filter PaymentFilter) ([]*PaymentReadModel, int64, error)

	// Upsert вставляет строку. Существующая строка не перезаписывается,
	// поэтому повторная доставка PaymentProcessed не откатит терминальный статус.
	// inserted = false для дубликата.
	Upsert(ctx context.Context, row *PaymentReadModel) (inserted bool, err error)

	// UpdateStatus переводит платёж PROCESSED -> status.
	// updated = false если строка уже в терминальном статусе или отсутствует.
	UpdateStatus(ctx context.Context, paymentID uuid.UUID, status entities.PaymentStatus, at time.Time) (updated bool, err error)
}

// WalletBalanceReadModel - снимок баланса (wallets_read_model).
// Version - версия последнего применённого события.
type WalletBalanceReadModel struct {
	WalletID     string
	BalanceCents int64
	Currency     string
	Version      int64
	UpdatedAt    time.Time
}

// WalletReadRepository обслуживает снимки балансов.
type WalletReadRepository interface {
	// FindByID загружает снимок. ErrEntityNotFound если нет.
	FindByID(ctx context.Context, walletID string) (*WalletBalanceReadModel, error)

	// ApplyBalance записывает снимок только если snapshot.Version больше сохранённой.
	// applied = false для устаревшего или повторного события.
	ApplyBalance(ctx context.Context, snapshot *WalletBalanceReadModel) (applied bool, err error)
}

// CheckpointRepository хранит позицию проекций в журнале (projection_checkpoints).
type CheckpointRepository interface {
	// Load возвращает последний обработанный Sequence (0 если нет).
	Load(ctx context.Context, name string) (int64, error)

	// Save сохраняет позицию. Позиция никогда не уменьшается.
	Save(ctx context.Context, name string, sequence int64) error
}
