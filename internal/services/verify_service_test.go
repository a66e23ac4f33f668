package services

import (
	"context"
	"errors"
	"testing"

	"sayu-ops/internal/config"
	"sayu-ops/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countOnly map[string]int64

func (c countOnly) Count(_ context.Context, table string) (int64, error) {
	n, ok := c[table]
	if !ok {
		return 0, errors.New("relation does not exist")
	}
	return n, nil
}

type keyedTables struct {
	countOnly
	keys map[string][]string
}

func (k keyedTables) FirstKeys(_ context.Context, table, _, _ string, n int) ([]string, error) {
	keys := k.keys[table]
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys, nil
}

func (k keyedTables) ExistingKeys(_ context.Context, table, _ string, keys []string) (map[string]bool, error) {
	found := map[string]bool{}
	for _, want := range keys {
		for _, have := range k.keys[table] {
			if want == have {
				found[want] = true
			}
		}
	}
	return found, nil
}

// filteredTables counts rows per table and where clause.
type filteredTables struct {
	countOnly
	filtered map[string]int64
	limits   []int
}

func (f *filteredTables) CountWhere(_ context.Context, table, where string, limit int) (int64, error) {
	f.limits = append(f.limits, limit)
	n := f.filtered[table+" WHERE "+where]
	if limit > 0 && n > int64(limit) {
		n = int64(limit)
	}
	return n, nil
}

func TestVerifyCountsOnlyPlannedRows(t *testing.T) {
	source := &filteredTables{
		countOnly: countOnly{"exhibitions": 120, "venues": 40},
		filtered:  map[string]int64{"exhibitions WHERE status = 'active'": 80, "venues WHERE ": 40},
	}
	target := countOnly{"exhibitions": 80, "venues": 25}
	svc := NewVerifyService(source, target)

	plan := config.MigrationPlan{Tables: []config.TablePlan{
		{Name: "exhibitions", Where: "status = 'active'"},
		{Name: "venues", Limit: 25},
	}}
	report := svc.Compare(context.Background(), VerifyTables(plan, nil), 0)

	require.Len(t, report.Tables, 2)
	assert.Equal(t, models.VerifyMatch, report.Tables[0].Status)
	assert.Equal(t, int64(80), report.Tables[0].SourceCount)
	assert.Equal(t, models.VerifyMatch, report.Tables[1].Status)
	assert.Equal(t, int64(25), report.Tables[1].SourceCount)
	assert.Equal(t, []int{0, 25}, source.limits)

	// a source that cannot filter reports an error instead of a false "missing"
	report = NewVerifyService(countOnly{"exhibitions": 120}, target).
		Compare(context.Background(), []VerifyTable{{Source: "exhibitions", Target: "exhibitions", Where: "status = 'active'"}}, 0)
	assert.Equal(t, models.VerifyError, report.Tables[0].Status)
	assert.Contains(t, report.Tables[0].Error, "where/limit")
}

func TestVerifyCompare(t *testing.T) {
	source := countOnly{"venues": 10, "exhibitions": 5, "artists": 3, "users": 1}
	target := countOnly{"venues": 10, "exhibitions": 4, "artists": 4}
	svc := NewVerifyService(source, target)

	report := svc.Compare(context.Background(), []VerifyTable{
		{Source: "venues", Target: "venues"},
		{Source: "exhibitions", Target: "exhibitions"},
		{Source: "artists", Target: "artists"},
		{Source: "users", Target: "users"},
		{Source: "ghosts", Target: "ghosts"},
	}, 0)

	require.Len(t, report.Tables, 5)
	assert.Equal(t, models.VerifyMatch, report.Tables[0].Status)
	assert.Equal(t, models.VerifyMissing, report.Tables[1].Status)
	assert.Equal(t, models.VerifySurplus, report.Tables[2].Status)
	assert.Equal(t, models.VerifyError, report.Tables[3].Status)
	assert.Contains(t, report.Tables[3].Error, "target:")
	assert.Contains(t, report.Tables[4].Error, "source:")
	assert.False(t, report.AllMatch())
}

func TestVerifySampleKeys(t *testing.T) {
	source := keyedTables{countOnly{"venues": 3}, map[string][]string{"venues": {"1", "2", "3"}}}
	target := keyedTables{countOnly{"places": 3}, map[string][]string{"places": {"1", "3", "4"}}}
	svc := NewVerifyService(source, target)

	report := svc.Compare(context.Background(), []VerifyTable{{Source: "venues", Target: "places", SourceKey: "id", TargetKey: "legacy_id"}}, 10)
	require.Len(t, report.Tables, 1)
	assert.Equal(t, models.VerifyMissing, report.Tables[0].Status, "equal counts with missing keys are not a match")
	assert.Equal(t, []string{"2"}, report.Tables[0].MissingKeys)
}

func TestVerifySkipsSamplingOverREST(t *testing.T) {
	source := keyedTables{countOnly{"venues": 3}, map[string][]string{"venues": {"1"}}}
	svc := NewVerifyService(source, countOnly{"venues": 3})

	report := svc.Compare(context.Background(), []VerifyTable{{Source: "venues", Target: "venues", SourceKey: "id", TargetKey: "id"}}, 10)
	assert.Equal(t, models.VerifyMatch, report.Tables[0].Status)
	assert.True(t, report.AllMatch())
}

func TestVerifyTables(t *testing.T) {
	tables := []models.Table{
		{Name: "venues", PrimaryKeys: []string{"id"}},
		{Name: "artists", PrimaryKeys: []string{"id"}},
		{Name: "ops_runs", PrimaryKeys: []string{"id"}},
	}

	all := VerifyTables(config.MigrationPlan{}, tables)
	require.Len(t, all, 2)
	assert.Equal(t, VerifyTable{Source: "venues", Target: "venues", SourceKey: "id", TargetKey: "id"}, all[0])

	planned := VerifyTables(config.MigrationPlan{Tables: []config.TablePlan{
		{Name: "venues", Exclude: []string{"id"}},
		{Name: "artists", Target: "people", Rename: map[string]string{"id": "legacy_id"}},
	}}, tables)
	require.Len(t, planned, 2)
	assert.Equal(t, VerifyTable{Source: "venues", Target: "venues"}, planned[0])
	assert.Equal(t, VerifyTable{Source: "artists", Target: "people", SourceKey: "id", TargetKey: "legacy_id"}, planned[1])
}
