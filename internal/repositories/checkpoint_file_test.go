package repositories

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"sayu-ops/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCheckpointStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoints.json")
	store := NewFileCheckpointStore(path)

	cp, err := store.Get(ctx, "run-1", "venues")
	require.NoError(t, err)
	assert.Nil(t, cp)

	require.NoError(t, store.Save(ctx, models.Checkpoint{RunKey: "run-1", Table: "venues", LastKey: "10", RowsDone: 10}))
	require.NoError(t, store.Save(ctx, models.Checkpoint{RunKey: "run-1", Table: "venues", LastKey: "20", RowsDone: 20}))
	require.NoError(t, store.Save(ctx, models.Checkpoint{RunKey: "run-2", Table: "venues", LastKey: "5", RowsDone: 5}))

	// a second store over the same file sees the saved state
	cp, err = NewFileCheckpointStore(path).Get(ctx, "run-1", "venues")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "20", cp.LastKey)
	assert.Equal(t, int64(20), cp.RowsDone)
	assert.False(t, cp.UpdatedAt.IsZero())

	require.NoError(t, store.Save(ctx, models.Checkpoint{RunKey: "run-1", Table: "artists", LastKey: "3", RowsDone: 3}))
	list, err := store.List(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "artists", list[0].Table)
	assert.Equal(t, "venues", list[1].Table)

	n, err := store.Delete(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	cp, err = store.Get(ctx, "run-1", "venues")
	require.NoError(t, err)
	assert.Nil(t, cp)

	cp, err = store.Get(ctx, "run-2", "venues")
	require.NoError(t, err)
	require.NotNil(t, cp)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileCheckpointStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileCheckpointStore(path).Get(context.Background(), "run", "t")
	assert.Error(t, err)
}
