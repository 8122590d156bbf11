// Package postgres - вспомогательные функции для работы с PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	domainErrors "github.com/Haleralex/payledger/internal/domain/errors"
)

// querier - общий интерфейс pool и pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB - то, что нужно репозиториям от пула.
// Реализуется *pgxpool.Pool и pgxmock.PgxPoolIface (unit тесты).
type DB interface {
	querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// txKey - ключ для хранения транзакции в context.
type txKey struct{}

// injectTx добавляет транзакцию в context.
// Используется UnitOfWork для передачи транзакции в repositories.
func injectTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// extractTx извлекает транзакцию из context.
// Возвращает nil если транзакции нет.
func extractTx(ctx context.Context) pgx.Tx {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	if !ok {
		return nil
	}
	return tx
}

// hasTx проверяет наличие транзакции в context.
func hasTx(ctx context.Context) bool {
	return extractTx(ctx) != nil
}

// getQuerier возвращает транзакцию из context или db.
func getQuerier(ctx context.Context, db DB) querier {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return db
}

// PostgreSQL error codes
const (
	pgUniqueViolation = "23505"

	// Serialization failures
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// isPgError проверяет, является ли ошибка PostgreSQL ошибкой с определённым кодом.
func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == code
}

// isUniqueViolation проверяет, является ли ошибка нарушением UNIQUE constraint.
// constraintName - опциональное имя constraint для проверки.
func isUniqueViolation(err error, constraintName string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}

	// Если указано имя constraint, проверяем его
	if constraintName != "" {
		return strings.Contains(pgErr.ConstraintName, constraintName)
	}

	return true
}

// isSerializationFailure проверяет ошибку сериализации или deadlock.
// Для журнала событий это тоже конфликт версий: повтор безопасен.
func isSerializationFailure(err error) bool {
	return isPgError(err, pgSerializationFailure) || isPgError(err, pgDeadlockDetected)
}

// persistenceError оборачивает ошибку хранилища в *errors.PersistenceError.
// Доменные ошибки (not found, conflict) пропускаются как есть.
func persistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	if domainErrors.IsNotFound(err) || domainErrors.IsConflict(err) || domainErrors.IsPersistence(err) {
		return err
	}
	return domainErrors.NewPersistenceError(op, err)
}
