package repositories

import (
	"context"
	"testing"

	"sayu-ops/internal/models"
	"sayu-ops/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeCacheRepository(t *testing.T) {
	rdb := testutil.Redis(t)
	ctx := context.Background()
	cache := NewProbeCacheRepository(rdb)

	found := "https://res.cloudinary.com/demo/image/upload/sayu/artworks/met-1.jpg"
	missing := "https://res.cloudinary.com/demo/image/upload/sayu/artworks/met-2.jpg"
	broken := "https://res.cloudinary.com/demo/image/upload/sayu/artworks/met-3.jpg"

	require.NoError(t, cache.Put(ctx, models.ProbeResult{URL: found, Result: models.ProbeFound}))
	require.NoError(t, cache.Put(ctx, models.ProbeResult{URL: missing, Result: models.ProbeMissing}))
	require.NoError(t, cache.Put(ctx, models.ProbeResult{URL: broken, Result: models.ProbeError}))

	got, err := cache.Get(ctx, found)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.ProbeFound, got.Result)
	assert.True(t, got.Cached)

	ttl, err := rdb.TTL(ctx, probeKeyPrefix+missing).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, MissingTTL)

	got, err = cache.Get(ctx, broken)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := cache.Forget(ctx, found, missing, broken)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err = cache.Get(ctx, found)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err = cache.Forget(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
