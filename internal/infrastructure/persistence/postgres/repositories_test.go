package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Haleralex/payledger/internal/application/ports"
	"github.com/Haleralex/payledger/internal/domain/entities"
	domainErrors "github.com/Haleralex/payledger/internal/domain/errors"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func paymentRowColumns() []string {
	return []string{"payment_id", "wallet_id", "amount", "currency", "recipient_wallet_id", "concept", "status", "created_at", "updated_at"}
}

func TestWalletRepository_FindByID(t *testing.T) {
	mock := newMock(t)
	repo := NewWalletRepository(mock)

	mock.ExpectQuery(`FROM wallets`).
		WithArgs("WAL-001").
		WillReturnRows(pgxmock.NewRows([]string{"wallet_id", "owner_id", "currency", "initial_balance"}).
			AddRow("WAL-001", "USER-001", "USD", int64(1000000)))

	w, err := repo.FindByID(context.Background(), "WAL-001")

	require.NoError(t, err)
	assert.Equal(t, "USER-001", w.OwnerID())
	assert.Equal(t, "10000.00 USD", w.Balance().String())
	assert.Equal(t, int64(0), w.Version())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepository_FindByID_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewWalletRepository(mock)

	mock.ExpectQuery(`FROM wallets`).
		WithArgs("WAL-999").
		WillReturnRows(pgxmock.NewRows([]string{"wallet_id", "owner_id", "currency", "initial_balance"}))

	_, err := repo.FindByID(context.Background(), "WAL-999")

	assert.True(t, domainErrors.IsNotFound(err))
}

func TestPaymentReadRepository_Upsert(t *testing.T) {
	mock := newMock(t)
	repo := NewPaymentReadRepository(mock)
	now := time.Now().UTC()

	row := &ports.PaymentReadModel{
		PaymentID:         uuid.New(),
		WalletID:          "WAL-001",
		AmountCents:       50000,
		Currency:          "USD",
		RecipientWalletID: "WAL-002",
		Concept:           "order",
		Status:            entities.PaymentStatusProcessed,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	mock.ExpectExec(`ON CONFLICT \(payment_id\) DO NOTHING`).
		WithArgs(row.PaymentID, "WAL-001", int64(50000), "USD", "WAL-002", "order", "PROCESSED", now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`ON CONFLICT \(payment_id\) DO NOTHING`).
		WithArgs(row.PaymentID, "WAL-001", int64(50000), "USD", "WAL-002", "order", "PROCESSED", now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := repo.Upsert(context.Background(), row)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Upsert(context.Background(), row)
	require.NoError(t, err)
	assert.False(t, inserted, "redelivery must be a no-op")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentReadRepository_UpdateStatus_OnlyFromProcessed(t *testing.T) {
	mock := newMock(t)
	repo := NewPaymentReadRepository(mock)
	id := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE payments_read_model`).
		WithArgs(id, "REFUNDED", at, "PROCESSED").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	updated, err := repo.UpdateStatus(context.Background(), id, entities.PaymentStatusRefunded, at)

	require.NoError(t, err)
	assert.False(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentReadRepository_FindAll(t *testing.T) {
	mock := newMock(t)
	repo := NewPaymentReadRepository(mock)
	walletID := "WAL-001"
	status := entities.PaymentStatusProcessed
	now := time.Now().UTC()
	id := uuid.New()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM payments_read_model WHERE 1=1 AND wallet_id = \$1 AND status = \$2`).
		WithArgs(walletID, "PROCESSED").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(21)))
	mock.ExpectQuery(`OFFSET \$3 LIMIT \$4`).
		WithArgs(walletID, "PROCESSED", 20, 20).
		WillReturnRows(pgxmock.NewRows(paymentRowColumns()).
			AddRow(id, walletID, int64(100), "USD", "WAL-002", "", "PROCESSED", now, now))

	items, total, err := repo.FindAll(context.Background(), ports.PaymentFilter{
		WalletID: &walletID,
		Status:   &status,
		Page:     2,
		Limit:    20,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(21), total)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].PaymentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentReadRepository_FindByID_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewPaymentReadRepository(mock)
	id := uuid.New()

	mock.ExpectQuery(`FROM payments_read_model WHERE payment_id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(paymentRowColumns()))

	_, err := repo.FindByID(context.Background(), id)
	assert.True(t, domainErrors.IsNotFound(err))
}

func TestWalletReadRepository_ApplyBalance(t *testing.T) {
	mock := newMock(t)
	repo := NewWalletReadRepository(mock)
	at := time.Now().UTC()

	snapshot := &ports.WalletBalanceReadModel{WalletID: "WAL-001", BalanceCents: 950000, Currency: "USD", Version: 1, UpdatedAt: at}

	mock.ExpectExec(`WHERE wallets_read_model.version < EXCLUDED.version`).
		WithArgs("WAL-001", int64(950000), "USD", int64(1), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`WHERE wallets_read_model.version < EXCLUDED.version`).
		WithArgs("WAL-001", int64(950000), "USD", int64(1), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	applied, err := repo.ApplyBalance(context.Background(), snapshot)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.ApplyBalance(context.Background(), snapshot)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckpointRepository(t *testing.T) {
	mock := newMock(t)
	repo := NewCheckpointRepository(mock)

	mock.ExpectQuery(`SELECT last_sequence FROM projection_checkpoints`).
		WithArgs("read-models").
		WillReturnRows(pgxmock.NewRows([]string{"last_sequence"}))
	mock.ExpectExec(`GREATEST`).
		WithArgs("read-models", int64(15)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	seq, err := repo.Load(context.Background(), "read-models")
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	require.NoError(t, repo.Save(context.Background(), "read-models", 15))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_Execute(t *testing.T) {
	t.Run("Commit", func(t *testing.T) {
		mock := newMock(t)
		uow := NewUnitOfWork(mock)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE payments_read_model`).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		err := uow.Execute(context.Background(), func(ctx context.Context) error {
			assert.True(t, hasTx(ctx))
			_, err := NewPaymentReadRepository(mock).UpdateStatus(ctx, uuid.New(), entities.PaymentStatusCancelled, time.Now())
			return err
		})

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		mock := newMock(t)
		uow := NewUnitOfWork(mock)
		boom := errors.New("intentional error")

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := uow.Execute(context.Background(), func(ctx context.Context) error {
			return boom
		})

		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
