package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"sayu-ops/internal/repositories"
	"sayu-ops/internal/services"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func newSchemaCommand(a *app) *cobra.Command {
	var (
		db      string
		schema  string
		order   bool
		mermaid bool
		out     string
	)
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Describe a database: tables, copy order or a Mermaid ER diagram",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var (
				pool *pgxpool.Pool
				err  error
			)
			switch db {
			case "source":
				pool, err = a.sourcePool(ctx)
			case "target":
				pool, err = a.connectTarget(ctx, false)
			default:
				return fmt.Errorf("unknown --db %q (want source or target)", db)
			}
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := services.NewSchemaService(repositories.NewSchemaRepository(pool))

			if mermaid {
				diagram, err := svc.Mermaid(ctx, schema)
				if err != nil {
					return err
				}
				if out == "" {
					_, err = fmt.Fprintln(a.stdout, diagram)
					return err
				}
				return writeReport(a.stdout, out, map[string]string{"mermaid": diagram})
			}

			tables, err := svc.Describe(ctx, schema)
			if err != nil {
				return err
			}
			if order {
				return writeReport(a.stdout, out, services.Order(tables))
			}
			return writeReport(a.stdout, out, tables)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&db, "db", "source", "which database to describe: source or target")
	flags.StringVar(&schema, "schema", "public", "schema name")
	flags.BoolVar(&order, "order", false, "print the foreign key copy order")
	flags.BoolVar(&mermaid, "mermaid", false, "print a Mermaid ER diagram")
	flags.StringVar(&out, "out", "", "write the output here instead of stdout")
	cmd.MarkFlagsMutuallyExclusive("order", "mermaid")

	cmd.AddCommand(newSchemaApplyCommand(a))
	return cmd
}

func newSchemaApplyCommand(a *app) *cobra.Command {
	var (
		schema    string
		enableRLS bool
		dryRun    bool
		out       string
	)
	cmd := &cobra.Command{
		Use:   "apply <file.sql>",
		Short: "Run a DDL script against the target in one transaction",
		Long: `Runs every statement of the script in a single transaction on the target database.
With --enable-rls, row level security is then enabled on the rls.tables of the plan
(every table of the schema when empty) and the rls.policies are recreated. Any error
rolls the whole script back.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			file := args[0]

			script, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read script: %w", err)
			}

			pool, err := a.connectTarget(ctx, !dryRun)
			if err != nil {
				return err
			}
			defer pool.Close()

			run := a.startRun(ctx, pool, !a.noLedger && !dryRun, "schema-apply", filepath.Base(file))
			applier := services.NewSchemaApplier(pool, schema, a.log.With().Str("file", file).Logger())
			res, err := applier.Apply(ctx, filepath.Base(file), string(script), services.ApplyOptions{
				EnableRLS: enableRLS,
				RLS:       a.cfg.RLS,
				DryRun:    dryRun,
			})
			defer func() { run.finish(ctx, res, err) }()
			if err != nil {
				return err
			}
			return writeReport(a.stdout, out, res)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&schema, "schema", "public", "schema the RLS tables and policies live in")
	flags.BoolVar(&enableRLS, "enable-rls", false, "enable row level security and create the plan's policies")
	flags.BoolVar(&dryRun, "dry-run", false, "run the script and roll it back")
	flags.StringVar(&out, "out", "", "write the result JSON here instead of stdout")
	return cmd
}
