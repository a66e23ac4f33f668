package cli

import (
	"context"
	"fmt"
	"time"

	"sayu-ops/internal/cloudinary"
	"sayu-ops/internal/models"
	"sayu-ops/internal/repositories"
	"sayu-ops/internal/utils"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newCDNCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cdn",
		Short: "Cloudinary asset discovery",
	}
	cmd.AddCommand(newProbeCommand(a))
	return cmd
}

func newProbeCommand(a *app) *cobra.Command {
	var (
		cloud   string
		noCache bool
		refresh bool
		list    bool
		out     string
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Find which guessed Cloudinary URLs exist",
		Long: `Expands the probe patterns of the plan into candidate delivery URLs and sends a HEAD
request to each, bounded by probe.concurrency and probe.requests_per_sec. Results are
cached in Redis when REDIS_ADDR is set; --refresh drops the cached results of the
candidates first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if cloud == "" {
				cloud = a.cfg.Cloudinary.CloudName
			}
			if cloud == "" {
				return fmt.Errorf("cloud name is required (set CLOUDINARY_CLOUD_NAME or --cloud)")
			}

			urls := cloudinary.Candidates(a.cfg.Cloudinary.BaseURL, cloud, a.cfg.Probe.Patterns)
			a.log.Info().Int("candidates", len(urls)).Msg("candidate urls expanded")
			if list {
				return writeReport(a.stdout, out, urls)
			}

			var cache cloudinary.Cache = cloudinary.NopCache{}
			if !noCache {
				if c := a.probeCache(ctx); c != nil {
					if refresh {
						n, err := c.Forget(ctx, urls...)
						if err != nil {
							return fmt.Errorf("clear cached results: %w", err)
						}
						a.log.Info().Int64("forgotten", n).Msg("cached results cleared")
					}
					cache = c
				}
			}

			prober := cloudinary.NewProber(cloudinary.Options{
				Concurrency:    a.cfg.Probe.Concurrency,
				RequestsPerSec: a.cfg.Probe.RequestsPerSec,
				Timeout:        a.cfg.Probe.Timeout,
				Retry:          utils.DefaultRetryPolicy(),
			}, cache, a.log)

			results, err := prober.Probe(ctx, urls)
			report := models.NewProbeReport(results)
			a.log.Info().
				Int("found", report.Found).
				Int("missing", report.Missing).
				Int("errors", report.Errors).
				Int("cached", report.Cached).
				Msg("probe finished")

			if werr := writeReport(a.stdout, out, report); werr != nil {
				return werr
			}
			if err != nil {
				return err
			}
			if report.Errors > 0 {
				return fmt.Errorf("%w: %d urls could not be checked", ErrPartial, report.Errors)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&cloud, "cloud", "", "Cloudinary cloud name (default CLOUDINARY_CLOUD_NAME)")
	flags.BoolVar(&noCache, "no-cache", false, "ignore the Redis result cache")
	flags.BoolVar(&refresh, "refresh", false, "drop the cached results of the candidates and probe them again")
	flags.BoolVar(&list, "list", false, "only print the candidate URLs")
	flags.StringVar(&out, "out", "", "write the report JSON here instead of stdout")
	cmd.MarkFlagsMutuallyExclusive("no-cache", "refresh")
	return cmd
}

// probeCache returns the Redis cache, or nil when Redis is not configured or unreachable.
func (a *app) probeCache(ctx context.Context) *repositories.ProbeCacheRepository {
	if a.cfg.Redis.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		a.log.Warn().Err(err).Str("addr", a.cfg.Redis.Addr).Msg("redis unavailable, probing without cache")
		rdb.Close()
		return nil
	}
	a.log.Debug().Str("addr", a.cfg.Redis.Addr).Msg("connected to redis")
	return repositories.NewProbeCacheRepository(rdb)
}
