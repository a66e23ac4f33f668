package repositories

import (
	"context"
	"errors"
	"fmt"

	"sayu-ops/internal/models"

	"github.com/jackc/pgx/v5"
)

// CheckpointRepository stores migration progress in ops_checkpoints.
type CheckpointRepository struct {
	db DBTX
}

func NewCheckpointRepository(db DBTX) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

func (r *CheckpointRepository) Get(ctx context.Context, runKey, table string) (*models.Checkpoint, error) {
	query := `
		SELECT run_key, table_name, last_key, rows_done, updated_at
		FROM ops_checkpoints
		WHERE run_key = $1 AND table_name = $2
	`

	var cp models.Checkpoint
	err := r.db.QueryRow(ctx, query, runKey, table).Scan(&cp.RunKey, &cp.Table, &cp.LastKey, &cp.RowsDone, &cp.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return &cp, nil
}

// Save upserts cp using db, which should be the transaction that wrote the batch.
func (r *CheckpointRepository) Save(ctx context.Context, db DBTX, cp models.Checkpoint) error {
	query := `
		INSERT INTO ops_checkpoints (run_key, table_name, last_key, rows_done, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (run_key, table_name)
		DO UPDATE SET last_key = EXCLUDED.last_key, rows_done = EXCLUDED.rows_done, updated_at = NOW()
	`

	if _, err := db.Exec(ctx, query, cp.RunKey, cp.Table, cp.LastKey, cp.RowsDone); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Delete removes every checkpoint of runKey and returns how many there were.
func (r *CheckpointRepository) Delete(ctx context.Context, runKey string) (int64, error) {
	tag, err := r.db.Exec(ctx, "DELETE FROM ops_checkpoints WHERE run_key = $1", runKey)
	if err != nil {
		return 0, fmt.Errorf("delete checkpoints: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *CheckpointRepository) List(ctx context.Context, runKey string) ([]models.Checkpoint, error) {
	query := `
		SELECT run_key, table_name, last_key, rows_done, updated_at
		FROM ops_checkpoints
		WHERE run_key = $1
		ORDER BY table_name
	`

	rows, err := r.db.Query(ctx, query, runKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Checkpoint
	for rows.Next() {
		var cp models.Checkpoint
		if err := rows.Scan(&cp.RunKey, &cp.Table, &cp.LastKey, &cp.RowsDone, &cp.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, cp)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}
