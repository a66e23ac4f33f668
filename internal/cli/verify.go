package cli

import (
	"fmt"

	"sayu-ops/internal/models"
	"sayu-ops/internal/repositories"
	"sayu-ops/internal/services"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func newVerifyCommand(a *app) *cobra.Command {
	var (
		sample int
		out    string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare row counts (and sampled keys) between source and target",
		Long: `Counts the rows of every planned table on both sides. With a target database URL the
first --sample source keys of each table are also looked up in the target; against the
Supabase REST API only counts are compared.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			sourcePool, err := a.sourcePool(ctx)
			if err != nil {
				return err
			}
			defer sourcePool.Close()

			schema := a.cfg.Plan.Schema
			var (
				target     services.TableCounter
				targetPool *pgxpool.Pool
			)
			switch {
			case a.cfg.Target.URL != "":
				targetPool, err = a.targetPool(ctx)
				if err != nil {
					return err
				}
				defer targetPool.Close()
				target = services.NewPostgresTables(targetPool, schema)
			case a.cfg.Supabase.URL != "" && a.cfg.Supabase.ServiceKey != "":
				client, err := repositories.NewSupabaseRepository(a.cfg.Supabase.URL, a.cfg.Supabase.ServiceKey)
				if err != nil {
					return err
				}
				target = client
				a.log.Info().Msg("no target database url, comparing REST counts only")
			default:
				return fmt.Errorf("verify needs TARGET_DATABASE_URL or SUPABASE_URL with SUPABASE_SERVICE_KEY")
			}

			run := a.startRun(ctx, targetPool, !a.noLedger, "verify", a.cfg.Plan.RunKey)
			var report *models.VerifyReport
			defer func() { run.finish(ctx, report, err) }()

			verifier := services.PlanVerifier{
				Service: services.NewVerifyService(services.NewPostgresTables(sourcePool, schema), target),
				Source:  services.NewPostgresSource(sourcePool),
				Plan:    a.cfg.Plan,
				Sample:  sample,
			}
			report, err = verifier.Verify(ctx)
			if err != nil {
				return err
			}

			for _, t := range report.Tables {
				ev := a.log.Info()
				if t.Status != models.VerifyMatch {
					ev = a.log.Warn()
				}
				ev.Str("table", t.Table).
					Int64("source", t.SourceCount).
					Int64("target", t.TargetCount).
					Str("status", t.Status).
					Msg("verified")
			}

			if err := writeReport(a.stdout, out, report); err != nil {
				return err
			}
			if !report.AllMatch() {
				return fmt.Errorf("%w: source and target differ", ErrPartial)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&sample, "sample", 20, "source keys per table to look up in the target (0 disables)")
	cmd.Flags().StringVar(&out, "out", "", "write the report JSON here instead of stdout")
	return cmd
}
