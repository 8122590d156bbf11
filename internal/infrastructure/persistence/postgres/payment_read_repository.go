// Package postgres - PaymentReadRepository: read-модель платежей.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Haleralex/payledger/internal/application/ports"
	"github.com/Haleralex/payledger/internal/domain/entities"
	domainErrors "github.com/Haleralex/payledger/internal/domain/errors"
	"github.com/Haleralex/payledger/internal/pkg/metrics"
)

// Compile-time check
var _ ports.PaymentReadRepository = (*PaymentReadRepository)(nil)

const paymentColumns = `payment_id, wallet_id, amount, currency, recipient_wallet_id, concept, status, created_at, updated_at`

// PaymentReadRepository реализует ports.PaymentReadRepository.
//
// Пишут сюда только проекции. Идемпотентность:
// - Upsert: ON CONFLICT DO NOTHING (терминальный статус не перезаписывается)
// - UpdateStatus: только из PROCESSED
type PaymentReadRepository struct {
	db DB
}

// NewPaymentReadRepository создаёт новый PaymentReadRepository.
func NewPaymentReadRepository(db DB) *PaymentReadRepository {
	return &PaymentReadRepository{db: db}
}

// FindByID загружает строку платежа.
func (r *PaymentReadRepository) FindByID(ctx context.Context, paymentID uuid.UUID) (*ports.PaymentReadModel, error) {
	start := time.Now()
	defer metrics.RecordDBQuery("select", "payments_read_model", start)

	row := getQuerier(ctx, r.db).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments_read_model WHERE payment_id = $1`, paymentID)

	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: payment %s", domainErrors.ErrEntityNotFound, paymentID)
		}
		return nil, persistenceError("load payment", err)
	}

	return p, nil
}

// FindAll возвращает страницу платежей и общее число строк под фильтром.
func (r *PaymentReadRepository) FindAll(ctx context.Context, filter ports.PaymentFilter) ([]*ports.PaymentReadModel, int64, error) {
	start := time.Now()
	defer metrics.RecordDBQuery("select", "payments_read_model", start)

	q := getQuerier(ctx, r.db)

	// Строим динамический WHERE с фильтрами
	where := " WHERE 1=1"
	args := []interface{}{}
	argNum := 1

	if filter.WalletID != nil {
		where += fmt.Sprintf(" AND wallet_id = $%d", argNum)
		args = append(args, *filter.WalletID)
		argNum++
	}

	if filter.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(*filter.Status))
		argNum++
	}

	var total int64
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM payments_read_model`+where, args...).Scan(&total); err != nil {
		return nil, 0, persistenceError("count payments", err)
	}

	query := `SELECT ` + paymentColumns + ` FROM payments_read_model` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, payment_id ASC OFFSET $%d LIMIT $%d", argNum, argNum+1)
	args = append(args, filter.Offset(), filter.Limit)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, persistenceError("list payments", err)
	}
	defer rows.Close()

	items := make([]*ports.PaymentReadModel, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, persistenceError("list payments", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, persistenceError("list payments", err)
	}

	return items, total, nil
}

// Upsert вставляет строку; повторная вставка игнорируется.
func (r *PaymentReadRepository) Upsert(ctx context.Context, p *ports.PaymentReadModel) (bool, error) {
	start := time.Now()
	defer metrics.RecordDBQuery("insert", "payments_read_model", start)

	query := `
		INSERT INTO payments_read_model (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (payment_id) DO NOTHING
	`

	tag, err := getQuerier(ctx, r.db).Exec(ctx, query,
		p.PaymentID,
		p.WalletID,
		p.AmountCents,
		p.Currency,
		p.RecipientWalletID,
		p.Concept,
		string(p.Status),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return false, persistenceError("upsert payment", err)
	}

	return tag.RowsAffected() == 1, nil
}

// UpdateStatus переводит платёж из PROCESSED в терминальный статус.
func (r *PaymentReadRepository) UpdateStatus(ctx context.Context, paymentID uuid.UUID, status entities.PaymentStatus, at time.Time) (bool, error) {
	start := time.Now()
	defer metrics.RecordDBQuery("update", "payments_read_model", start)

	query := `
		UPDATE payments_read_model
		SET status = $2, updated_at = $3
		WHERE payment_id = $1 AND status = $4
	`

	tag, err := getQuerier(ctx, r.db).Exec(ctx, query,
		paymentID, string(status), at, string(entities.PaymentStatusProcessed))
	if err != nil {
		return false, persistenceError("update payment status", err)
	}

	return tag.RowsAffected() == 1, nil
}

func scanPayment(row pgx.Row) (*ports.PaymentReadModel, error) {
	var (
		p      ports.PaymentReadModel
		status string
	)

	if err := row.Scan(
		&p.PaymentID,
		&p.WalletID,
		&p.AmountCents,
		&p.Currency,
		&p.RecipientWalletID,
		&p.Concept,
		&status,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.Status = entities.PaymentStatus(status)
	return &p, nil
}
