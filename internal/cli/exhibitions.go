package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"sayu-ops/internal/models"
	"sayu-ops/internal/repositories"
	"sayu-ops/internal/services"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func newExhibitionsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exhibitions",
		Short: "Hand-authored exhibition records",
	}

	var (
		dryRun bool
		out    string
	)
	importCmd := &cobra.Command{
		Use:   "import <file.json>...",
		Short: "Clean, validate, de-duplicate and insert exhibition records",
		Long: `Each file holds a JSON array of exhibition records. Records are cleaned and validated;
duplicates (same title, venue and start date, ignoring case) are dropped within the
input and against the database, and the rest is inserted in a single transaction.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()

			var records []models.Exhibition
			for _, path := range args {
				batch, err := readExhibitions(path)
				if err != nil {
					return err
				}
				records = append(records, batch...)
			}

			var (
				svc  *services.ExhibitionService
				pool *pgxpool.Pool
			)
			if a.cfg.Target.URL == "" && dryRun {
				svc = services.NewExhibitionService(nil, nil, a.log)
			} else {
				// a dry run only reads exhibitions, so the ops tables are left alone
				pool, err = a.connectTarget(ctx, !dryRun)
				if err != nil {
					return err
				}
				defer pool.Close()
				svc = services.NewExhibitionService(
					repositories.NewExhibitionRepository(pool),
					repositories.NewVenueRepository(pool),
					a.log,
				)
			}

			run := a.startRun(ctx, pool, !a.noLedger && !dryRun, "exhibitions-import", "")
			var summary *models.ImportSummary
			defer func() { run.finish(ctx, summary, err) }()

			summary, err = svc.Import(ctx, records, services.ExhibitionImportOptions{DryRun: dryRun})
			if summary != nil {
				if werr := writeReport(a.stdout, out, summary); werr != nil && err == nil {
					err = werr
				}
			}
			if err != nil {
				return err
			}
			if summary.Invalid > 0 {
				return fmt.Errorf("%w: %d records rejected", ErrPartial, summary.Invalid)
			}
			return nil
		},
	}
	importCmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate only")
	importCmd.Flags().StringVar(&out, "out", "", "write the summary JSON here instead of stdout")

	cmd.AddCommand(importCmd)
	return cmd
}

func readExhibitions(path string) ([]models.Exhibition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var records []models.Exhibition
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}
