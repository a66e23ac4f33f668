package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sayu-ops/internal/config"
	"sayu-ops/internal/database"
	"sayu-ops/internal/metrics"
	"sayu-ops/internal/models"
	"sayu-ops/internal/repositories"
	"sayu-ops/internal/utils"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var ErrPlanInvalid = errors.New("migration plan is invalid")

// Source is where migrated rows come from.
type Source interface {
	Tables(ctx context.Context, schema string) ([]models.Table, error)
	ReadBatch(ctx context.Context, q repositories.BatchQuery) ([]models.Row, error)
}

// PostgresSource reads the legacy database.
type PostgresSource struct {
	schema *SchemaService
	rows   *repositories.RowRepository
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{
		schema: NewSchemaService(repositories.NewSchemaRepository(pool)),
		rows:   repositories.NewRowRepository(pool),
	}
}

func (s *PostgresSource) Tables(ctx context.Context, schema string) ([]models.Table, error) {
	tables, err := s.schema.Describe(ctx, schema)
	if err != nil {
		return nil, err
	}
	return OrderTables(tables), nil
}

func (s *PostgresSource) ReadBatch(ctx context.Context, q repositories.BatchQuery) ([]models.Row, error) {
	return s.rows.ReadBatch(ctx, q)
}

type MigrateOptions struct {
	DryRun bool
	Reset  bool
}

// MigrationService copies tables from a Source to a Sink in keyset-ordered batches.
type MigrationService struct {
	source Source
	sink   Sink
	retry  utils.RetryPolicy
	log    zerolog.Logger
}

func NewMigrationService(source Source, sink Sink, retry utils.RetryPolicy, log zerolog.Logger) *MigrationService {
	return &MigrationService{source: source, sink: sink, retry: retry, log: log}
}

// Run migrates every table of plan. Per-table failures are recorded in the summary;
// the returned error is reserved for failures that stop the whole run, including
// cancellation of ctx.
func (s *MigrationService) Run(ctx context.Context, plan config.MigrationPlan, opts MigrateOptions) (*models.MigrationSummary, error) {
	if plan.RunKey == "" {
		return nil, fmt.Errorf("%w: run key is required", ErrPlanInvalid)
	}
	if plan.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive", ErrPlanInvalid)
	}
	if plan.Schema == "" {
		plan.Schema = "public"
	}

	summary := &models.MigrationSummary{
		RunKey:  plan.RunKey,
		DryRun:  opts.DryRun,
		Sink:    s.sinkName(),
		Started: time.Now().UTC(),
	}
	defer func() { summary.Finished = time.Now().UTC() }()

	if opts.Reset && s.sink != nil && !opts.DryRun {
		n, err := s.sink.ResetCheckpoints(ctx, plan.RunKey)
		if err != nil {
			return summary, fmt.Errorf("reset checkpoints: %w", err)
		}
		s.log.Info().Str("run_key", plan.RunKey).Int64("checkpoints", n).Msg("checkpoints reset")
	}

	tables, err := s.source.Tables(ctx, plan.Schema)
	if err != nil {
		return summary, fmt.Errorf("describe source: %w", err)
	}
	byName := make(map[string]models.Table, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}

	tablePlans := plan.Tables
	if len(tablePlans) == 0 {
		for _, t := range tables {
			if isOpsTable(t.Name) {
				continue
			}
			tablePlans = append(tablePlans, config.TablePlan{Name: t.Name})
		}
	}

	for _, tp := range tablePlans {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		table, ok := byName[tp.Name]
		if !ok {
			summary.Tables = append(summary.Tables, models.TableResult{
				Table:  tp.Name,
				Target: tp.TargetName(),
				Error:  "table not found in source",
			})
			continue
		}

		res := s.migrateTable(ctx, plan, tp, table, opts)
		summary.Tables = append(summary.Tables, res)
		if err := ctx.Err(); err != nil {
			return summary, err
		}
	}

	return summary, nil
}

func (s *MigrationService) sinkName() string {
	if s.sink == nil {
		return "none"
	}
	return s.sink.Name()
}

func isOpsTable(name string) bool {
	return name == "ops_checkpoints" || name == "ops_runs"
}

func resolveKey(tp config.TablePlan, table models.Table) (string, error) {
	if tp.Key != "" {
		if !table.HasColumn(tp.Key) {
			return "", fmt.Errorf("key column %s does not exist", tp.Key)
		}
		// keyset batches page on key > last, so equal or NULL keys would be skipped
		if !table.IsUniqueKey(tp.Key) {
			return "", fmt.Errorf("key column %s must be the primary key or a NOT NULL unique column", tp.Key)
		}
		return tp.Key, nil
	}
	if len(table.PrimaryKeys) == 1 {
		return table.PrimaryKeys[0], nil
	}
	return "", errors.New("table has no single-column primary key; set key in the plan")
}

func (s *MigrationService) migrateTable(ctx context.Context, plan config.MigrationPlan, tp config.TablePlan, table models.Table, opts MigrateOptions) models.TableResult {
	started := time.Now()
	res := models.TableResult{Table: tp.Name, Target: tp.TargetName()}
	defer func() { res.Duration = time.Since(started) }()

	log := s.log.With().Str("table", tp.Name).Str("target", res.Target).Logger()

	key, err := resolveKey(tp, table)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	keyCol, _ := table.Column(key)

	var targetCols []string
	if s.sink != nil {
		targetCols, err = s.sink.TargetColumns(ctx, res.Target)
		if err != nil {
			res.Error = err.Error()
			return res
		}
	}
	tr := newRowTransformer(tp, key, targetCols, table.Columns)

	var after *string
	var rowsDone int64
	if s.sink != nil && !opts.DryRun {
		cp, err := s.sink.Checkpoint(ctx, plan.RunKey, tp.Name)
		if err != nil {
			res.Error = fmt.Sprintf("load checkpoint: %v", err)
			return res
		}
		if cp != nil {
			after = &cp.LastKey
			rowsDone = cp.RowsDone
			res.Resumed = true
			res.LastKey = cp.LastKey
			log.Info().Str("after", cp.LastKey).Int64("rows_done", cp.RowsDone).Msg("resuming from checkpoint")
		}
	}

	for batchNo := 1; ; batchNo++ {
		limit := plan.BatchSize
		if tp.Limit > 0 {
			remaining := int64(tp.Limit) - res.Read
			if remaining <= 0 {
				break
			}
			limit = int(min(int64(limit), remaining))
		}

		q := repositories.BatchQuery{
			Schema:  plan.Schema,
			Table:   tp.Name,
			Key:     key,
			KeyType: keyCol.UDTName,
			After:   after,
			Where:   tp.Where,
			Limit:   limit,
		}
		var rows []models.Row
		err := utils.Retry(ctx, s.retry, func() error {
			var err error
			rows, err = s.source.ReadBatch(ctx, q)
			if err != nil && !database.IsTransient(err) {
				return utils.Permanent(err)
			}
			return err
		}, func(err error, wait time.Duration) {
			log.Warn().Err(err).Dur("wait", wait).Msg("source read failed, retrying")
		})
		if err != nil {
			res.Error = fmt.Sprintf("read batch %d: %v", batchNo, err)
			return res
		}
		if len(rows) == 0 {
			break
		}

		res.Read += int64(len(rows))
		lastKey := keyString(rows[len(rows)-1][key])

		batch := Batch{
			Table:           res.Target,
			ConflictColumns: tp.ConflictColumns,
			OnConflict:      plan.OnConflict,
		}
		for _, row := range rows {
			k := keyString(row[key])
			out, err := tr.Apply(row)
			if err != nil {
				res.AddRowError(models.RowError{Key: k, Message: err.Error()})
				metrics.RowsMigrated.WithLabelValues(tp.Name, "failed").Inc()
				continue
			}
			batch.Rows = append(batch.Rows, out)
			batch.Keys = append(batch.Keys, k)
		}
		batch.Columns = tr.Columns(batch.Rows)

		if batchNo == 1 {
			if dropped := tr.Dropped(); len(dropped) > 0 {
				log.Warn().Strs("columns", dropped).Msg("columns missing in target are dropped")
			}
		}

		if opts.DryRun || s.sink == nil {
			res.Written += int64(len(batch.Rows))
			log.Info().Msgf("batch %d: %d rows (dry run)", batchNo, len(rows))
		} else {
			batch.Checkpoint = models.Checkpoint{
				RunKey:   plan.RunKey,
				Table:    tp.Name,
				LastKey:  lastKey,
				RowsDone: rowsDone + res.Read,
			}
			br, err := s.sink.WriteBatch(ctx, batch)
			if err != nil {
				res.Error = fmt.Sprintf("write batch %d: %v", batchNo, err)
				return res
			}
			res.Written += br.Written
			res.Skipped += br.Skipped
			for _, e := range br.Errors {
				res.AddRowError(e)
			}
			metrics.RowsMigrated.WithLabelValues(tp.Name, "written").Add(float64(br.Written))
			metrics.RowsMigrated.WithLabelValues(tp.Name, "skipped").Add(float64(br.Skipped))
			metrics.RowsMigrated.WithLabelValues(tp.Name, "failed").Add(float64(len(br.Errors)))
			log.Info().Int64("written", br.Written).Int64("skipped", br.Skipped).Int("failed", len(br.Errors)).
				Msgf("batch %d: %d rows", batchNo, len(rows))
		}

		after = &lastKey
		res.LastKey = lastKey

		if len(rows) < limit {
			break
		}
		if err := ctx.Err(); err != nil {
			res.Error = err.Error()
			return res
		}
	}

	log.Info().Int64("read", res.Read).Int64("written", res.Written).Int64("skipped", res.Skipped).
		Int64("failed", res.Failed).Msg("table done")
	return res
}
