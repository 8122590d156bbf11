// Package postgres - CheckpointRepository: позиции проекций в журнале.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/Haleralex/payledger/internal/application/ports"
)

// Compile-time check
var _ ports.CheckpointRepository = (*CheckpointRepository)(nil)

// CheckpointRepository реализует ports.CheckpointRepository (projection_checkpoints).
type CheckpointRepository struct {
	db DB
}

// NewCheckpointRepository создаёт новый CheckpointRepository.
func NewCheckpointRepository(db DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// Load возвращает последний обработанный sequence (0 если проекция новая).
func (r *CheckpointRepository) Load(ctx context.Context, name string) (int64, error) {
	var seq int64
	err := getQuerier(ctx, r.db).QueryRow(ctx,
		`SELECT last_sequence FROM projection_checkpoints WHERE name = $1`, name).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, persistenceError("load checkpoint", err)
	}
	return seq, nil
}

// Save сохраняет позицию; GREATEST не даёт ей откатиться назад.
func (r *CheckpointRepository) Save(ctx context.Context, name string, sequence int64) error {
	query := `
		INSERT INTO projection_checkpoints (name, last_sequence, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE
		SET last_sequence = GREATEST(projection_checkpoints.last_sequence, EXCLUDED.last_sequence),
		    updated_at = NOW()
	`

	if _, err := getQuerier(ctx, r.db).Exec(ctx, query, name, sequence); err != nil {
		return persistenceError("save checkpoint", err)
	}
	return nil
}
