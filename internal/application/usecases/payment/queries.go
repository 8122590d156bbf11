package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Haleralex/payledger/internal/application/dtos"
	"github.com/Haleralex/payledger/internal/application/ports"
	"github.com/Haleralex/payledger/internal/domain/entities"
	"github.com/Haleralex/payledger/internal/domain/errors"
)

const (
	defaultPage         = 1
	maxPage             = 100000
	defaultPageLimit    = 20
	maxPageLimit        = 100
	defaultHistoryLimit = 10
)

// ============================================
// GetPayment
// ============================================

// GetPaymentUseCase - платёж по ID из read-модели (через кэш).
type GetPaymentUseCase struct {
	payments ports.PaymentReadRepository
	cache    ports.PaymentCache
	logger   *slog.Logger
}

// NewGetPaymentUseCase создаёт use case. cache может быть nil.
func NewGetPaymentUseCase(payments ports.PaymentReadRepository, cache ports.PaymentCache, logger *slog.Logger) *GetPaymentUseCase {
	return &GetPaymentUseCase{payments: payments, cache: cache, logger: logger}
}

// Execute возвращает платёж. Ошибки кэша не прерывают запрос.
func (uc *GetPaymentUseCase) Execute(ctx context.Context, query dtos.GetPaymentQuery) (*dtos.PaymentDTO, error) {
	paymentID, err := uuid.Parse(query.PaymentID)
	if err != nil {
		return nil, errors.NewValidationError("payment_id", "invalid payment ID format", errors.ErrInvalidEntityID)
	}

	if uc.cache != nil {
		row, err := uc.cache.Get(ctx, paymentID)
		if err != nil {
			uc.logger.WarnContext(ctx, "payment cache read failed", slog.String("error", err.Error()))
		} else if row != nil {
			dto := dtos.ToPaymentDTO(row)
			return &dto, nil
		}
	}

	row, err := uc.payments.FindByID(ctx, paymentID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: payment %s", errors.ErrEntityNotFound, paymentID)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	// Кэшируются только терминальные строки: они больше не меняются.
	// PROCESSED может устареть, если проекция отменит платёж между FindByID и Set.
	if uc.cache != nil && row.Status.IsTerminal() {
		if err := uc.cache.Set(ctx, row); err != nil {
			uc.logger.WarnContext(ctx, "payment cache write failed", slog.String("error", err.Error()))
		}
	}

	dto := dtos.ToPaymentDTO(row)
	return &dto, nil
}

// ============================================
// ListPayments
// ============================================

// ListPaymentsUseCase - страница платежей с фильтрами.
type ListPaymentsUseCase struct {
	payments ports.PaymentReadRepository
}

// NewListPaymentsUseCase создаёт use case.
func NewListPaymentsUseCase(payments ports.PaymentReadRepository) *ListPaymentsUseCase {
	return &ListPaymentsUseCase{payments: payments}
}

// Execute возвращает страницу. page по умолчанию 1, limit 20, максимум 100.
func (uc *ListPaymentsUseCase) Execute(ctx context.Context, query dtos.ListPaymentsQuery) (*dtos.PaymentListDTO, error) {
	filter := ports.PaymentFilter{
		Page:  query.Page,
		Limit: query.Limit,
	}
	if filter.Page < 1 {
		filter.Page = defaultPage
	}
	if filter.Page > maxPage {
		return nil, errors.NewValidationError("page", fmt.Sprintf("page must not exceed %d", maxPage), nil)
	}
	if filter.Limit < 1 {
		filter.Limit = defaultPageLimit
	}
	if filter.Limit > maxPageLimit {
		filter.Limit = maxPageLimit
	}

	if query.WalletID != nil && *query.WalletID != "" {
		filter.WalletID = query.WalletID
	}
	if query.Status != nil && *query.Status != "" {
		status := entities.PaymentStatus(strings.ToUpper(*query.Status))
		if !status.IsValid() {
			return nil, errors.NewValidationError("status", fmt.Sprintf("invalid status %q", *query.Status), nil)
		}
		filter.Status = &status
	}

	rows, total, err := uc.payments.FindAll(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	return dtos.ToPaymentListDTO(rows, total, filter.Page, filter.Limit), nil
}

// ============================================
// GetPaymentHistory
// ============================================

// GetPaymentHistoryUseCase - последние события кошелька прямо из журнала.
// В отличие от read-моделей история всегда актуальна.
type GetPaymentHistoryUseCase struct {
	wallets ports.WalletRepository
	store   ports.EventStore
	now     func() time.Time
}

// NewGetPaymentHistoryUseCase создаёт use case.
func NewGetPaymentHistoryUseCase(wallets ports.WalletRepository, store ports.EventStore) *GetPaymentHistoryUseCase {
	return &GetPaymentHistoryUseCase{
		wallets: wallets,
		store:   store,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Execute возвращает последние limit событий по возрастанию версии.
func (uc *GetPaymentHistoryUseCase) Execute(ctx context.Context, query dtos.GetPaymentHistoryQuery) (*dtos.PaymentHistoryDTO, error) {
	limit := query.Limit
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	if _, err := uc.wallets.FindByID(ctx, query.WalletID); err != nil {
		if errors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: wallet %s", errors.ErrEntityNotFound, query.WalletID)
		}
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}

	records, err := uc.store.GetEvents(ctx, query.WalletID)
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet stream: %w", err)
	}

	if len(records) > limit {
		records = records[len(records)-limit:]
	}

	items := make([]dtos.PaymentHistoryItemDTO, 0, len(records))
	for _, rec := range records {
		item, err := dtos.ToPaymentHistoryItem(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s v%d: %w", rec.EventType, rec.Version, err)
		}
		items = append(items, item)
	}

	return &dtos.PaymentHistoryDTO{
		WalletID:    query.WalletID,
		Events:      items,
		TotalEvents: len(items),
		GeneratedAt: uc.now(),
	}, nil
}

// ============================================
// GetWalletBalance
// ============================================

// GetWalletBalanceUseCase - снимок баланса из wallets_read_model.
type GetWalletBalanceUseCase struct {
	wallets ports.WalletReadRepository
}

// NewGetWalletBalanceUseCase создаёт use case.
func NewGetWalletBalanceUseCase(wallets ports.WalletReadRepository) *GetWalletBalanceUseCase {
	return &GetWalletBalanceUseCase{wallets: wallets}
}

// Execute возвращает снимок.
func (uc *GetWalletBalanceUseCase) Execute(ctx context.Context, query dtos.GetWalletBalanceQuery) (*dtos.WalletBalanceDTO, error) {
	if strings.TrimSpace(query.WalletID) == "" {
		return nil, errors.NewValidationError("wallet_id", "wallet id is required", errors.ErrInvalidEntityID)
	}

	row, err := uc.wallets.FindByID(ctx, query.WalletID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: wallet %s", errors.ErrEntityNotFound, query.WalletID)
		}
		return nil, fmt.Errorf("failed to get wallet balance: %w", err)
	}

	dto := dtos.ToWalletBalanceDTO(row)
	return &dto, nil
}
