package payment

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Haleralex/payledger/internal/application/dtos"
	"github.com/Haleralex/payledger/internal/application/ports"
	"github.com/Haleralex/payledger/internal/domain/entities"
	domainErrors "github.com/Haleralex/payledger/internal/domain/errors"
	"github.com/Haleralex/payledger/internal/infrastructure/persistence/memory"
)

func sampleRow(id uuid.UUID) *ports.PaymentReadModel {
	return &ports.PaymentReadModel{
		PaymentID:   id,
		WalletID:    "WAL-001",
		AmountCents: 50000,
		Currency:    "USD",
		Status:      entities.PaymentStatusProcessed,
		CreatedAt:   time.Now(),
	}
}

func TestGetPayment_CacheMissPopulatesCache(t *testing.T) {
	tests := []struct {
		status       entities.PaymentStatus
		wantSetCalls int
	}{
		{entities.PaymentStatusProcessed, 0},
		{entities.PaymentStatusCancelled, 1},
		{entities.PaymentStatusRefunded, 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			repoCalls := 0
			repo := &mockPaymentReadRepo{
				findByIDFunc: func(ctx context.Context, got uuid.UUID) (*ports.PaymentReadModel, error) {
					repoCalls++
					row := sampleRow(got)
					row.Status = tt.status
					return row, nil
				},
			}
			cache := &mockPaymentCache{}

			uc := NewGetPaymentUseCase(repo, cache, testLogger())
			dto, err := uc.Execute(context.Background(), dtos.GetPaymentQuery{PaymentID: uuid.NewString()})

			require.NoError(t, err)
			assert.Equal(t, "500.00", dto.Amount)
			assert.Equal(t, string(tt.status), dto.Status)
			assert.Equal(t, 1, repoCalls)
			assert.Equal(t, tt.wantSetCalls, cache.setCalls)
		})
	}
}

// Проекция отменяет платёж между чтением и записью в кэш:
// устаревшая строка PROCESSED не должна попасть в кэш.
func TestGetPayment_ProcessedRowNotCachedAcrossCancellation(t *testing.T) {
	id := uuid.New()
	cache := &mockPaymentCache{}
	status := entities.PaymentStatusProcessed
	repo := &mockPaymentReadRepo{
		findByIDFunc: func(ctx context.Context, got uuid.UUID) (*ports.PaymentReadModel, error) {
			row := sampleRow(got)
			row.Status = status
			// Проекция коммитит CANCELLED и инвалидирует кэш после чтения.
			status = entities.PaymentStatusCancelled
			_ = cache.Invalidate(ctx, got)
			return row, nil
		},
	}
	uc := NewGetPaymentUseCase(repo, cache, testLogger())

	dto, err := uc.Execute(context.Background(), dtos.GetPaymentQuery{PaymentID: id.String()})
	require.NoError(t, err)
	assert.Equal(t, "PROCESSED", dto.Status)
	assert.Equal(t, 0, cache.setCalls)

	dto, err = uc.Execute(context.Background(), dtos.GetPaymentQuery{PaymentID: id.String()})
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", dto.Status)
	assert.Equal(t, 1, cache.setCalls)
}

func TestGetPayment_CacheHitSkipsRepository(t *testing.T) {
	id := uuid.New()
	repo := &mockPaymentReadRepo{
		findByIDFunc: func(ctx context.Context, got uuid.UUID) (*ports.PaymentReadModel, error) {
			t.Fatal("repository must not be called on cache hit")
			return nil, nil
		},
	}
	cache := &mockPaymentCache{
		getFunc: func(ctx context.Context, got uuid.UUID) (*ports.PaymentReadModel, error) {
			return sampleRow(got), nil
		},
	}

	uc := NewGetPaymentUseCase(repo, cache, testLogger())
	dto, err := uc.Execute(context.Background(), dtos.GetPaymentQuery{PaymentID: id.String()})

	require.NoError(t, err)
	assert.Equal(t, id.String(), dto.PaymentID)
}

func TestGetPayment_CacheErrorFallsBackToRepository(t *testing.T) {
	repo := &mockPaymentReadRepo{
		findByIDFunc: func(ctx context.Context, got uuid.UUID) (*ports.PaymentReadModel, error) {
			return sampleRow(got), nil
		},
	}
	cache := &mockPaymentCache{
		getFunc: func(ctx context.Context, got uuid.UUID) (*ports.PaymentReadModel, error) {
			return nil, errors.New("redis down")
		},
	}

	uc := NewGetPaymentUseCase(repo, cache, testLogger())
	_, err := uc.Execute(context.Background(), dtos.GetPaymentQuery{PaymentID: uuid.NewString()})
	assert.NoError(t, err)
}

func TestGetPayment_Errors(t *testing.T) {
	uc := NewGetPaymentUseCase(&mockPaymentReadRepo{}, nil, testLogger())

	_, err := uc.Execute(context.Background(), dtos.GetPaymentQuery{PaymentID: "bad"})
	assert.True(t, domainErrors.IsValidationError(err))

	_, err = uc.Execute(context.Background(), dtos.GetPaymentQuery{PaymentID: uuid.NewString()})
	assert.True(t, domainErrors.IsNotFound(err))
}

func TestListPayments_DefaultsAndFilters(t *testing.T) {
	var got ports.PaymentFilter
	repo := &mockPaymentReadRepo{
		findAllFunc: func(ctx context.Context, filter ports.PaymentFilter) ([]*ports.PaymentReadModel, int64, error) {
			got = filter
			return []*ports.PaymentReadModel{sampleRow(uuid.New())}, 41, nil
		},
	}
	uc := NewListPaymentsUseCase(repo)

	list, err := uc.Execute(context.Background(), dtos.ListPaymentsQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Page)
	assert.Equal(t, 20, got.Limit)
	assert.Nil(t, got.WalletID)
	assert.Nil(t, got.Status)
	assert.Equal(t, 3, list.TotalPages)
	assert.Len(t, list.Payments, 1)

	wallet, status := "WAL-002", "refunded"
	_, err = uc.Execute(context.Background(), dtos.ListPaymentsQuery{WalletID: &wallet, Status: &status, Page: 2, Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, "WAL-002", *got.WalletID)
	assert.Equal(t, entities.PaymentStatusRefunded, *got.Status)
	assert.Equal(t, 100, got.Limit)
	assert.Equal(t, 2, got.Page)
}

func TestListPayments_PageTooLarge(t *testing.T) {
	called := false
	repo := &mockPaymentReadRepo{
		findAllFunc: func(ctx context.Context, filter ports.PaymentFilter) ([]*ports.PaymentReadModel, int64, error) {
			called = true
			return nil, 0, nil
		},
	}
	uc := NewListPaymentsUseCase(repo)

	_, err := uc.Execute(context.Background(), dtos.ListPaymentsQuery{Page: math.MaxInt, Limit: 20})

	assert.True(t, domainErrors.IsValidationError(err))
	assert.False(t, called)
}

func TestListPayments_InvalidStatus(t *testing.T) {
	uc := NewListPaymentsUseCase(&mockPaymentReadRepo{})
	status := "PENDING"

	_, err := uc.Execute(context.Background(), dtos.ListPaymentsQuery{Status: &status})
	assert.True(t, domainErrors.IsValidationError(err))
}

func TestGetPaymentHistory_ReturnsLastEvents(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for _, amount := range []string{"1", "2", "3"} {
		_, err := f.process.Execute(ctx, processCmd("WAL-001", amount))
		require.NoError(t, err)
	}

	uc := NewGetPaymentHistoryUseCase(f.wallets, f.store)

	history, err := uc.Execute(ctx, dtos.GetPaymentHistoryQuery{WalletID: "WAL-001", Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 2, history.TotalEvents)
	assert.Equal(t, int64(2), history.Events[0].Version)
	assert.Equal(t, "3.00", history.Events[1].Amount)
	assert.Equal(t, "9994.00", history.Events[1].NewBalance)

	history, err = uc.Execute(ctx, dtos.GetPaymentHistoryQuery{WalletID: "WAL-002"})
	require.NoError(t, err)
	assert.Empty(t, history.Events)

	_, err = uc.Execute(ctx, dtos.GetPaymentHistoryQuery{WalletID: "WAL-404"})
	assert.True(t, domainErrors.IsNotFound(err))
}

func TestGetWalletBalance(t *testing.T) {
	uc := NewGetWalletBalanceUseCase(memory.NewWalletReadRepository(memory.DefaultSeeds()))

	dto, err := uc.Execute(context.Background(), dtos.GetWalletBalanceQuery{WalletID: "WAL-002"})
	require.NoError(t, err)
	assert.Equal(t, "5000.00", dto.Balance)
	assert.Equal(t, int64(0), dto.Version)

	_, err = uc.Execute(context.Background(), dtos.GetWalletBalanceQuery{WalletID: "WAL-404"})
	assert.True(t, domainErrors.IsNotFound(err))

	_, err = uc.Execute(context.Background(), dtos.GetWalletBalanceQuery{})
	assert.True(t, domainErrors.IsValidationError(err))
}
