package services

import (
	"context"
	"fmt"
	"time"

	"sayu-ops/internal/config"
	"sayu-ops/internal/database"
	"sayu-ops/internal/models"
	"sayu-ops/internal/repositories"
	"sayu-ops/internal/utils"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PostgresSink writes straight into the target database. Rows and checkpoint of a
// batch commit in the same transaction.
type PostgresSink struct {
	pool        *pgxpool.Pool
	schemaName  string
	schema      *repositories.SchemaRepository
	checkpoints *repositories.CheckpointRepository
	retry       utils.RetryPolicy
	log         zerolog.Logger

	primaryKeys map[string][]string
}

func NewPostgresSink(pool *pgxpool.Pool, schemaName string, retry utils.RetryPolicy, log zerolog.Logger) *PostgresSink {
	if schemaName == "" {
		schemaName = "public"
	}
	return &PostgresSink{
		pool:        pool,
		schemaName:  schemaName,
		schema:      repositories.NewSchemaRepository(pool),
		checkpoints: repositories.NewCheckpointRepository(pool),
		retry:       retry,
		log:         log,
		primaryKeys: make(map[string][]string),
	}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) TargetColumns(ctx context.Context, table string) ([]string, error) {
	cols, err := s.schema.GetColumns(ctx, s.schemaName, table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("target table %s not found", table)
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names, nil
}

func (s *PostgresSink) Checkpoint(ctx context.Context, runKey, table string) (*models.Checkpoint, error) {
	return s.checkpoints.Get(ctx, runKey, table)
}

func (s *PostgresSink) ResetCheckpoints(ctx context.Context, runKey string) (int64, error) {
	return s.checkpoints.Delete(ctx, runKey)
}

func (s *PostgresSink) conflictColumns(ctx context.Context, b Batch) ([]string, error) {
	if len(b.ConflictColumns) > 0 || b.OnConflict != config.ConflictUpdate {
		return b.ConflictColumns, nil
	}
	if pks, ok := s.primaryKeys[b.Table]; ok {
		return pks, nil
	}
	pks, err := s.schema.GetPrimaryKeys(ctx, s.schemaName, b.Table)
	if err != nil {
		return nil, err
	}
	s.primaryKeys[b.Table] = pks
	return pks, nil
}

func (s *PostgresSink) WriteBatch(ctx context.Context, b Batch) (BatchResult, error) {
	conflict, err := s.conflictColumns(ctx, b)
	if err != nil {
		return BatchResult{}, fmt.Errorf("resolve conflict columns: %w", err)
	}

	var res BatchResult
	err = utils.Retry(ctx, s.retry, func() error {
		r, err := s.writeBatch(ctx, b, conflict)
		if err != nil {
			if database.IsTransient(err) {
				return err
			}
			return utils.Permanent(err)
		}
		res = r
		return nil
	}, func(err error, wait time.Duration) {
		s.log.Warn().Err(err).Str("table", b.Table).Dur("wait", wait).Msg("batch write failed, retrying")
	})
	return res, err
}

func (s *PostgresSink) writeBatch(ctx context.Context, b Batch, conflict []string) (BatchResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows := b.values()
	affected, err := repositories.NewRowRepository(tx).InsertRows(ctx, s.schemaName, b.Table, b.Columns, rows, conflict, b.OnConflict)
	if err != nil {
		if database.IsTransient(err) {
			return BatchResult{}, err
		}
		s.log.Warn().Err(err).Str("table", b.Table).Int("rows", len(rows)).Msg("batch insert rejected, writing row by row")
		tx.Rollback(ctx)
		return s.writeRows(ctx, b, rows, conflict)
	}

	res := BatchResult{Written: affected, Skipped: int64(len(rows)) - affected}
	if err := s.checkpoints.Save(ctx, tx, b.Checkpoint); err != nil {
		return BatchResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return BatchResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return res, nil
}

// writeRows inserts each row under its own savepoint so one bad row does not discard
// the rest of the batch.
func (s *PostgresSink) writeRows(ctx context.Context, b Batch, rows [][]any, conflict []string) (BatchResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var res BatchResult
	for i, row := range rows {
		sp, err := tx.Begin(ctx)
		if err != nil {
			return BatchResult{}, fmt.Errorf("savepoint: %w", err)
		}

		n, err := repositories.NewRowRepository(sp).InsertRows(ctx, s.schemaName, b.Table, b.Columns, [][]any{row}, conflict, b.OnConflict)
		if err != nil {
			sp.Rollback(ctx)
			if database.IsTransient(err) {
				return BatchResult{}, err
			}
			if database.IsUniqueViolation(err) {
				res.Skipped++
				continue
			}
			res.Errors = append(res.Errors, models.RowError{
				Key:     b.Keys[i],
				Code:    database.ErrorCode(err),
				Message: err.Error(),
			})
			s.log.Warn().Err(err).Str("table", b.Table).Str("key", b.Keys[i]).Msg("row rejected")
			continue
		}
		if err := sp.Commit(ctx); err != nil {
			return BatchResult{}, fmt.Errorf("release savepoint: %w", err)
		}
		res.Written += n
		res.Skipped += 1 - n
	}

	if err := s.checkpoints.Save(ctx, tx, b.Checkpoint); err != nil {
		return BatchResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return BatchResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return res, nil
}
