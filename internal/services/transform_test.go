package services

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"sayu-ops/internal/config"
	"sayu-ops/internal/models"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeValue(t *testing.T) {
	raw := normalizeValue([]byte(`{"a":1}`), "jsonb")
	assert.Equal(t, json.RawMessage(`{"a":1}`), raw)

	// bytea holding bytes that happen to parse as JSON stays binary
	digits := []byte("12345")
	assert.Equal(t, digits, normalizeValue(digits, "bytea"))
	assert.Equal(t, []byte(`{"a":1}`), normalizeValue([]byte(`{"a":1}`), ""))

	bin := []byte{0xff, 0x00}
	assert.Equal(t, bin, normalizeValue(bin, "bytea"))

	id := [16]byte{0x6b, 0xa7, 0xb8, 0x10, 0x9d, 0xad, 0x11, 0xd1, 0x80, 0xb4, 0x00, 0xc0, 0x4f, 0xd4, 0x30, 0xc8}
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", normalizeValue(id, ""))

	num := pgtype.Numeric{Int: big.NewInt(12345), Exp: -2, Valid: true}
	assert.Equal(t, "123.45", normalizeValue(num, ""))

	assert.Nil(t, normalizeValue(nil, ""))
	assert.Equal(t, []any{"a", "b"}, normalizeValue([]any{"a", "b"}, ""))
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "42", keyString(int64(42)))
	assert.Equal(t, "abc", keyString("abc"))
	assert.Equal(t, "", keyString(nil))
	ts := time.Date(2025, 7, 17, 9, 0, 0, 0, time.FixedZone("KST", 9*3600))
	assert.Equal(t, "2025-07-17T00:00:00Z", keyString(ts))
}

func TestStashKey(t *testing.T) {
	obj, err := stashKey(nil, "railway_id", 7)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"railway_id": 7}, obj)

	obj, err = stashKey(json.RawMessage(`{"source":"railway"}`), "railway_id", 7)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"source": "railway", "railway_id": 7}, obj)

	obj, err = stashKey(map[string]any{"x": true}, "id", "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": true, "id": "a"}, obj)

	_, err = stashKey(42, "id", 1)
	assert.Error(t, err)
}

func TestRowTransformerColumns(t *testing.T) {
	plan := config.TablePlan{Name: "artists", Columns: []string{"id", "name", "bio"}, Rename: map[string]string{"bio": "biography"}}
	tr := newRowTransformer(plan, "id", []string{"id", "biography", "name"}, nil)

	out, err := tr.Apply(models.Row{"id": 1, "name": "Lee Ufan", "bio": "painter", "secret": "x"})
	require.NoError(t, err)
	assert.Equal(t, models.Row{"id": 1, "name": "Lee Ufan", "biography": "painter"}, out)
	assert.Equal(t, []string{"id", "biography", "name"}, tr.Columns([]models.Row{out}))
	assert.Empty(t, tr.Dropped())

	// without target columns the order is alphabetical
	tr = newRowTransformer(config.TablePlan{Name: "artists"}, "id", nil, nil)
	out, err = tr.Apply(models.Row{"name": "x", "id": 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, tr.Columns([]models.Row{out}))
}

func TestRowTransformerStashError(t *testing.T) {
	plan := config.TablePlan{Name: "venues", StashKeyAs: "metadata.railway_id"}
	tr := newRowTransformer(plan, "id", nil, nil)

	_, err := tr.Apply(models.Row{"id": 1, "metadata": "not json"})
	assert.Error(t, err)
}

func TestRowTransformerUsesSourceTypes(t *testing.T) {
	src := []models.Column{{Name: "id", UDTName: "int4"}, {Name: "thumbnail", UDTName: "bytea"}, {Name: "meta", UDTName: "json"}}
	tr := newRowTransformer(config.TablePlan{Name: "artworks"}, "id", nil, src)

	out, err := tr.Apply(models.Row{"id": 1, "thumbnail": []byte(`[1,2]`), "meta": []byte(`{"src":"met"}`)})
	require.NoError(t, err)
	assert.Equal(t, []byte(`[1,2]`), out["thumbnail"])
	assert.Equal(t, json.RawMessage(`{"src":"met"}`), out["meta"])
}
