package cli

import (
	"fmt"
	"strconv"
	"strings"

	"sayu-ops/internal/metmuseum"
	"sayu-ops/internal/models"
	"sayu-ops/internal/repositories"
	"sayu-ops/internal/services"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func newMetCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "met",
		Short: "Metropolitan Museum of Art collection import",
	}
	cmd.AddCommand(newMetImportCommand(a), newMetDepartmentsCommand(a))
	return cmd
}

func (a *app) metClient() *metmuseum.Client {
	return metmuseum.NewClient(a.cfg.Met.BaseURL, a.cfg.Met.RequestsPerSec, a.cfg.Met.Timeout)
}

type metImportFlags struct {
	search              string
	departments         []int
	limit               int
	requireImage        bool
	requirePublicDomain bool
	noDB                bool
	out                 string
}

func newMetImportCommand(a *app) *cobra.Command {
	var f metImportFlags
	cmd := &cobra.Command{
		Use:   "import [object-id...]",
		Short: "Fetch Met objects and store them as artworks",
		Long: `Fetches objects by id (arguments), by --search, or every object of --department,
keeps public domain objects that have an image and upserts them into artworks.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMetImport(cmd, args, f)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.search, "search", "", "search term; ids come from the search endpoint")
	flags.IntSliceVar(&f.departments, "department", nil, "department id to import (repeatable)")
	flags.IntVar(&f.limit, "limit", 100, "maximum number of objects to fetch (0 for no limit)")
	flags.BoolVar(&f.requireImage, "require-image", true, "skip objects without a primary image")
	flags.BoolVar(&f.requirePublicDomain, "require-public-domain", true, "skip objects that are not public domain")
	flags.BoolVar(&f.noDB, "no-db", false, "do not write artworks to the target database")
	flags.StringVar(&f.out, "out", "", "dump the raw JSON of kept objects to this file")
	return cmd
}

func (a *app) runMetImport(cmd *cobra.Command, args []string, f metImportFlags) (err error) {
	ctx := cmd.Context()
	client := a.metClient()

	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	switch {
	case f.search != "":
		found, err := client.Search(ctx, metmuseum.SearchQuery{
			Q:              f.search,
			HasImages:      f.requireImage,
			IsPublicDomain: f.requirePublicDomain,
			DepartmentID:   firstOrZero(f.departments),
		})
		if err != nil {
			return fmt.Errorf("search met: %w", err)
		}
		ids = append(ids, found...)
	case len(f.departments) > 0:
		found, err := client.ObjectIDs(ctx, f.departments)
		if err != nil {
			return fmt.Errorf("list met objects: %w", err)
		}
		ids = append(ids, found...)
	}
	if len(ids) == 0 {
		return fmt.Errorf("no object ids: pass ids, --search or --department")
	}
	if f.limit > 0 && len(ids) > f.limit {
		a.log.Info().Int("found", len(ids)).Int("limit", f.limit).Msg("limiting object ids")
		ids = ids[:f.limit]
	}

	var (
		store services.ArtworkStore
		pool  *pgxpool.Pool
	)
	if !f.noDB {
		pool, err = a.targetPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = repositories.NewArtworkRepository(pool)
	}

	run := a.startRun(ctx, pool, !a.noLedger && !f.noDB, "met-import", "")
	var summary *models.MetImportSummary
	defer func() { run.finish(ctx, summary, err) }()

	svc := services.NewMetImportService(client, store, a.log)
	res, err := svc.Import(ctx, ids, services.MetImportOptions{
		Concurrency:         a.cfg.Met.Concurrency,
		RequireImage:        f.requireImage,
		RequirePublicDomain: f.requirePublicDomain,
		NoStore:             f.noDB,
	})
	if res != nil {
		summary = &res.Summary
		if f.out != "" && len(res.Objects) > 0 {
			if werr := writeReport(a.stdout, f.out, res.Objects); werr != nil && err == nil {
				err = werr
			}
		}
		if werr := writeReport(a.stdout, "", summary); werr != nil && err == nil {
			err = werr
		}
	}
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%w: %d objects could not be fetched", ErrPartial, summary.Failed)
	}
	return nil
}

func newMetDepartmentsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "departments",
		Short: "List Met department ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := a.metClient().Departments(cmd.Context())
			if err != nil {
				return err
			}
			return writeReport(a.stdout, "", deps)
		},
	}
}

// parseIDs accepts ids as separate arguments or comma separated.
func parseIDs(args []string) ([]int, error) {
	var ids []int
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.Atoi(part)
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("invalid object id %q", part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func firstOrZero(ids []int) int {
	if len(ids) == 0 {
		return 0
	}
	return ids[0]
}
