package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"sayu-ops/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	probeKeyPrefix = "probe:"
	FoundTTL       = 24 * time.Hour
	MissingTTL     = 6 * time.Hour
)

// ProbeCacheRepository remembers Cloudinary probe results in Redis.
type ProbeCacheRepository struct {
	rdb *redis.Client
}

func NewProbeCacheRepository(rdb *redis.Client) *ProbeCacheRepository {
	return &ProbeCacheRepository{rdb: rdb}
}

// Get returns the cached result for url, or nil when nothing is cached.
func (r *ProbeCacheRepository) Get(ctx context.Context, url string) (*models.ProbeResult, error) {
	data, err := r.rdb.Get(ctx, probeKeyPrefix+url).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var res models.ProbeResult
	if err := json.Unmarshal(data, &res); err != nil {
		// unreadable entries are treated as misses and overwritten later
		return nil, nil
	}
	res.Cached = true
	return &res, nil
}

// Put stores found and missing results. Errors are never cached.
func (r *ProbeCacheRepository) Put(ctx context.Context, res models.ProbeResult) error {
	var ttl time.Duration
	switch res.Result {
	case models.ProbeFound:
		ttl = FoundTTL
	case models.ProbeMissing:
		ttl = MissingTTL
	default:
		return nil
	}

	res.Cached = false
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, probeKeyPrefix+res.URL, data, ttl).Err()
}

// Forget drops the cached results of urls and returns how many were cached.
func (r *ProbeCacheRepository) Forget(ctx context.Context, urls ...string) (int64, error) {
	if len(urls) == 0 {
		return 0, nil
	}
	keys := make([]string, len(urls))
	for i, u := range urls {
		keys[i] = probeKeyPrefix + u
	}
	return r.rdb.Del(ctx, keys...).Result()
}
