// Package postgres - UnitOfWork implementation для PostgreSQL.
//
// Usage:
//
//	err := uow.Execute(ctx, func(txCtx context.Context) error {
//	    // Все операции с репозиториями используют txCtx
//	    if _, err := paymentRepo.Upsert(txCtx, row); err != nil {
//	        return err // ROLLBACK
//	    }
//	    _, err := walletReadRepo.ApplyBalance(txCtx, snapshot)
//	    return err // nil = COMMIT
//	})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Haleralex/payledger/internal/application/ports"
)

// Compile-time check
var _ ports.UnitOfWork = (*UnitOfWork)(nil)

// UnitOfWork реализует ports.UnitOfWork с PostgreSQL транзакциями.
// Transaction isolation: по умолчанию READ COMMITTED.
type UnitOfWork struct {
	db   DB
	opts pgx.TxOptions
}

// NewUnitOfWork создаёт новый UnitOfWork.
func NewUnitOfWork(db DB) *UnitOfWork {
	return NewUnitOfWorkWithIsolation(db, pgx.ReadCommitted)
}

// NewUnitOfWorkWithIsolation создаёт UnitOfWork с указанным уровнем изоляции.
func NewUnitOfWorkWithIsolation(db DB, isolation pgx.TxIsoLevel) *UnitOfWork {
	return &UnitOfWork{
		db:   db,
		opts: pgx.TxOptions{IsoLevel: isolation},
	}
}

// Execute выполняет функцию внутри транзакции.
//
// Поведение:
// - Если уже внутри транзакции: fn выполняется в ней же
// - Если fn возвращает nil: COMMIT
// - Если fn возвращает error: ROLLBACK
// - Если panic: ROLLBACK + re-panic
func (u *UnitOfWork) Execute(ctx context.Context, fn func(context.Context) error) error {
	if hasTx(ctx) {
		return fn(ctx)
	}

	tx, err := u.db.BeginTx(ctx, u.opts)
	if err != nil {
		return persistenceError("begin transaction", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()

	if err := fn(injectTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return persistenceError("commit transaction", err)
	}

	return nil
}
