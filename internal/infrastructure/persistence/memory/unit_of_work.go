package memory

import (
	"context"
	"sync"

	"github.com/Haleralex/payledger/internal/application/ports"
)

// Compile-time check
var _ ports.UnitOfWork = (*UnitOfWork)(nil)

// UnitOfWork сериализует единицы работы.
//
// Ограничение: rollback не поддерживается. Изменения, сделанные fn до ошибки,
// остаются. Проекции идемпотентны, поэтому повторная доставка события
// доводит read-модели до согласованного состояния.
type UnitOfWork struct {
	mu sync.Mutex
}

// NewUnitOfWork создаёт UnitOfWork.
func NewUnitOfWork() *UnitOfWork {
	return &UnitOfWork{}
}

// Execute выполняет fn под глобальной блокировкой.
func (u *UnitOfWork) Execute(ctx context.Context, fn func(context.Context) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
