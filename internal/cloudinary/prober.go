package cloudinary

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"sayu-ops/internal/metrics"
	"sayu-ops/internal/models"
	"sayu-ops/internal/utils"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Cache remembers probe results between runs.
type Cache interface {
	Get(ctx context.Context, url string) (*models.ProbeResult, error)
	Put(ctx context.Context, res models.ProbeResult) error
}

// NopCache never hits.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*models.ProbeResult, error) { return nil, nil }
func (NopCache) Put(context.Context, models.ProbeResult) error            { return nil }

type Options struct {
	Concurrency    int
	RequestsPerSec float64
	Timeout        time.Duration
	Retry          utils.RetryPolicy
}

// Prober issues rate limited HEAD requests against candidate URLs.
type Prober struct {
	client      *http.Client
	limiter     *rate.Limiter
	concurrency int
	cache       Cache
	retry       utils.RetryPolicy
	log         zerolog.Logger
}

func NewProber(opts Options, cache Cache, log zerolog.Logger) *Prober {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if opts.RequestsPerSec > 0 {
		limit = rate.Limit(opts.RequestsPerSec)
	}
	if cache == nil {
		cache = NopCache{}
	}
	return &Prober{
		client:      &http.Client{Timeout: opts.Timeout},
		limiter:     rate.NewLimiter(limit, opts.Concurrency),
		concurrency: opts.Concurrency,
		cache:       cache,
		retry:       opts.Retry,
		log:         log,
	}
}

// Probe checks every url and returns the results in the same order. On cancellation
// the results gathered so far are returned with the context error.
func (p *Prober) Probe(ctx context.Context, urls []string) ([]models.ProbeResult, error) {
	results := make([]models.ProbeResult, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, u := range urls {
		i, u := i, u // per-iteration copies (go directive is 1.21)
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = p.probeOne(gctx, u)
			metrics.Probes.WithLabelValues(results[i].Result).Inc()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

func (p *Prober) probeOne(ctx context.Context, url string) models.ProbeResult {
	if cached, err := p.cache.Get(ctx, url); err != nil {
		p.log.Debug().Err(err).Str("url", url).Msg("probe cache read failed")
	} else if cached != nil {
		return *cached
	}

	res := models.ProbeResult{URL: url}
	err := utils.Retry(ctx, p.retry, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return utils.Permanent(err)
		}
		r, err := p.head(ctx, url)
		if err != nil {
			return err
		}
		res = r
		if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500 {
			return &statusError{code: r.StatusCode}
		}
		return nil
	}, func(err error, wait time.Duration) {
		p.log.Debug().Err(err).Str("url", url).Dur("wait", wait).Msg("probe retry")
	})

	res.CheckedAt = time.Now().UTC()
	if err == nil {
		res.Result = classify(res.StatusCode)
	} else {
		res.Result = models.ProbeError
		res.Error = err.Error()
	}

	if err := p.cache.Put(ctx, res); err != nil {
		p.log.Debug().Err(err).Str("url", url).Msg("probe cache write failed")
	}
	return res
}

func (p *Prober) head(ctx context.Context, url string) (models.ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return models.ProbeResult{}, utils.Permanent(err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return models.ProbeResult{}, err
	}
	resp.Body.Close()

	return models.ProbeResult{
		URL:           url,
		StatusCode:    resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: max(resp.ContentLength, 0),
		Latency:       time.Since(start),
	}, nil
}

func classify(status int) string {
	switch {
	case status >= 200 && status < 300:
		return models.ProbeFound
	case status >= 400 && status < 500:
		return models.ProbeMissing
	default:
		return models.ProbeError
	}
}
