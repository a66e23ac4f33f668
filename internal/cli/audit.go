package cli

import (
	"context"
	"fmt"

	"sayu-ops/internal/database"
	"sayu-ops/internal/models"
	"sayu-ops/internal/repositories"
	"sayu-ops/internal/services"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func newAuditCommand(a *app) *cobra.Command {
	var (
		schema     string
		sampleSize int
		out        string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Run data quality checks against the target database",
		Long: `Runs the built-in checks (exhibition completeness and dates, duplicates, APT types,
orphaned foreign keys) plus the custom SELECT checks of the plan. Exits with 2 when an
error severity check finds rows.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()

			pool, auditor, closeAll, err := a.auditService(ctx, schema)
			if err != nil {
				return err
			}
			defer closeAll()

			plan := a.cfg.Audit
			if sampleSize > 0 {
				plan.SampleSize = sampleSize
			}

			run := a.startRun(ctx, pool, !a.noLedger, "audit", "")
			var report *models.AuditReport
			defer func() { run.finish(ctx, report, err) }()

			report, err = auditor.Run(ctx, plan)
			if err != nil {
				return err
			}
			if err := writeReport(a.stdout, out, report); err != nil {
				return err
			}
			if report.Failed() {
				return fmt.Errorf("%w: audit found errors", ErrPartial)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&schema, "schema", "public", "schema to audit")
	flags.IntVar(&sampleSize, "sample-size", 0, "rows to include per finding (default from plan, 5)")
	flags.StringVar(&out, "out", "", "write the report JSON here instead of stdout")
	return cmd
}

// auditService opens the pgx pool used for introspection and the database/sql handle
// the checks run on.
func (a *app) auditService(ctx context.Context, schema string) (*pgxpool.Pool, *services.AuditService, func(), error) {
	pool, err := a.targetPool(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := database.OpenSQL(ctx, a.cfg.Target.URL)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	svc := services.NewAuditService(
		repositories.NewQueryRepository(db),
		services.NewSchemaService(repositories.NewSchemaRepository(pool)),
		schema,
		a.log,
	)
	closeAll := func() {
		db.Close()
		pool.Close()
	}
	return pool, svc, closeAll, nil
}
