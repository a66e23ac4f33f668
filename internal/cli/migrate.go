package cli

import (
	"fmt"

	"sayu-ops/internal/config"
	"sayu-ops/internal/models"
	"sayu-ops/internal/repositories"
	"sayu-ops/internal/services"
	"sayu-ops/internal/utils"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

const defaultCheckpointFile = ".sayu-checkpoints.json"

type migrateFlags struct {
	runKey         string
	dryRun         bool
	reset          bool
	sink           string
	checkpointFile string
	out            string
	tables         []string
	batchSize      int
}

func newMigrateCommand(a *app) *cobra.Command {
	var f migrateFlags
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy tables from the source database to the target",
		Long: `Copies every table of the migration plan (or, with an empty plan, every table of the
source schema in foreign key order) in keyset ordered batches. Progress is checkpointed
per run key, so re-running with the same --run-key resumes where the last run stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMigrate(cmd, f)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.runKey, "run-key", "", "checkpoint namespace (default: plan run_key or \"default\")")
	flags.BoolVar(&f.dryRun, "dry-run", false, "read and transform rows without writing")
	flags.BoolVar(&f.reset, "reset", false, "drop the checkpoints of this run key first")
	flags.StringVar(&f.sink, "sink", "postgres", "target writer: postgres or rest")
	flags.StringVar(&f.checkpointFile, "checkpoint-file", defaultCheckpointFile, "checkpoint file used by the rest sink")
	flags.StringVar(&f.out, "out", "", "write the summary JSON here instead of stdout")
	flags.StringSliceVar(&f.tables, "table", nil, "only migrate these plan tables (repeatable)")
	flags.IntVar(&f.batchSize, "batch-size", 0, "override the plan batch size")

	cmd.AddCommand(newMigrateStatusCommand(a))
	return cmd
}

func newMigrateStatusCommand(a *app) *cobra.Command {
	var (
		runKey         string
		sink           string
		checkpointFile string
		out            string
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the checkpoints of a run key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if runKey == "" {
				runKey = a.cfg.Plan.RunKey
			}
			if runKey == "" {
				runKey = "default"
			}

			var (
				checkpoints []models.Checkpoint
				err         error
			)
			switch sink {
			case "postgres":
				pool, cerr := a.targetPool(ctx)
				if cerr != nil {
					return cerr
				}
				defer pool.Close()
				checkpoints, err = repositories.NewCheckpointRepository(pool).List(ctx, runKey)
			case "rest":
				checkpoints, err = repositories.NewFileCheckpointStore(checkpointFile).List(ctx, runKey)
			default:
				return fmt.Errorf("unknown sink %q (want postgres or rest)", sink)
			}
			if err != nil {
				return fmt.Errorf("list checkpoints: %w", err)
			}
			if checkpoints == nil {
				checkpoints = []models.Checkpoint{}
			}
			a.log.Info().Str("run_key", runKey).Int("tables", len(checkpoints)).Msg("checkpoints loaded")
			return writeReport(a.stdout, out, checkpoints)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&runKey, "run-key", "", "checkpoint namespace (default: plan run_key or \"default\")")
	flags.StringVar(&sink, "sink", "postgres", "where the checkpoints live: postgres (ops_checkpoints) or rest (checkpoint file)")
	flags.StringVar(&checkpointFile, "checkpoint-file", defaultCheckpointFile, "checkpoint file used by the rest sink")
	flags.StringVar(&out, "out", "", "write the checkpoints JSON here instead of stdout")
	return cmd
}

func (a *app) runMigrate(cmd *cobra.Command, f migrateFlags) (err error) {
	ctx := cmd.Context()
	plan := a.cfg.Plan

	switch {
	case f.runKey != "":
		plan.RunKey = f.runKey
	case plan.RunKey == "":
		plan.RunKey = "default"
	}
	if f.batchSize > 0 {
		plan.BatchSize = f.batchSize
	}
	if len(f.tables) > 0 {
		plan.Tables, err = selectTables(plan, f.tables)
		if err != nil {
			return err
		}
	}

	sourcePool, err := a.sourcePool(ctx)
	if err != nil {
		return err
	}
	defer sourcePool.Close()

	retry := utils.DefaultRetryPolicy()
	log := a.log.With().Str("run_key", plan.RunKey).Logger()

	var (
		sink       services.Sink
		targetPool *pgxpool.Pool
	)
	switch f.sink {
	case "postgres":
		targetPool, err = a.targetPool(ctx)
		if err != nil {
			return err
		}
		defer targetPool.Close()
		sink = services.NewPostgresSink(targetPool, plan.Schema, retry, log)
	case "rest":
		if a.cfg.Supabase.URL == "" || a.cfg.Supabase.ServiceKey == "" {
			return fmt.Errorf("rest sink needs SUPABASE_URL and SUPABASE_SERVICE_KEY")
		}
		client, err := repositories.NewSupabaseRepository(a.cfg.Supabase.URL, a.cfg.Supabase.ServiceKey)
		if err != nil {
			return err
		}
		sink = services.NewRESTSink(client, repositories.NewFileCheckpointStore(f.checkpointFile), retry, log)
	default:
		return fmt.Errorf("unknown sink %q (want postgres or rest)", f.sink)
	}

	run := a.startRun(ctx, targetPool, !a.noLedger && !f.dryRun, "migrate", plan.RunKey)

	svc := services.NewMigrationService(services.NewPostgresSource(sourcePool), sink, retry, log)
	summary, err := svc.Run(ctx, plan, services.MigrateOptions{DryRun: f.dryRun, Reset: f.reset})
	if err == nil && summary.Partial() {
		_, _, _, failed := summary.Totals()
		err = fmt.Errorf("%w: %d rows failed", ErrPartial, failed)
	}
	defer func() { run.finish(ctx, summary, err) }()

	if summary != nil {
		read, written, skipped, failed := summary.Totals()
		a.log.Info().
			Int64("read", read).
			Int64("written", written).
			Int64("skipped", skipped).
			Int64("failed", failed).
			Msg("migration finished")
		if werr := writeReport(a.stdout, f.out, summary); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func selectTables(plan config.MigrationPlan, names []string) ([]config.TablePlan, error) {
	if len(plan.Tables) == 0 {
		out := make([]config.TablePlan, 0, len(names))
		for _, n := range names {
			out = append(out, config.TablePlan{Name: n})
		}
		return out, nil
	}

	byName := make(map[string]config.TablePlan, len(plan.Tables))
	for _, t := range plan.Tables {
		byName[t.Name] = t
	}
	out := make([]config.TablePlan, 0, len(names))
	for _, n := range names {
		t, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("table %s is not in the migration plan", n)
		}
		out = append(out, t)
	}
	return out, nil
}
