// Package ports - UnitOfWork паттерн для управления транзакциями.
//
// Используется проекциями: строка платежа и снимок баланса кошелька
// обновляются в одной транзакции.
package ports

import "context"

// UnitOfWork определяет контракт для управления транзакциями.
//
// Пример использования:
//
//	err := uow.Execute(ctx, func(txCtx context.Context) error {
//	    if err := payments.Upsert(txCtx, row); err != nil {
//	        return err // Автоматический rollback
//	    }
//	    _, err := wallets.ApplyBalance(txCtx, snapshot)
//	    return err
//	})
type UnitOfWork interface {
	// Execute выполняет функцию внутри транзакции.
	//
	// Поведение:
	// - Если fn возвращает error: ROLLBACK
	// - Если fn возвращает nil: COMMIT
	// - Panic внутри fn: ROLLBACK и повторный panic
	//
	// Все операции внутри fn должны использовать переданный context!
	Execute(ctx context.Context, fn func(context.Context) error) error
}
