package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPTTypes(t *testing.T) {
	types := APTTypes()
	require.Len(t, types, 16)
	seen := make(map[string]bool)
	for _, code := range types {
		assert.True(t, IsValidAPTType(code), code)
		assert.False(t, seen[code], "duplicate %s", code)
		seen[code] = true
	}
	for _, bad := range []string{"", "INFP", "LAE", "LAEFX", "laef", "LAXF"} {
		assert.False(t, IsValidAPTType(bad), bad)
	}
}

func TestExhibitionStatusOn(t *testing.T) {
	e := Exhibition{StartDate: "2025-04-11", EndDate: "2025-08-31"}
	day := func(s string) time.Time {
		d, err := time.Parse(DateLayout, s)
		require.NoError(t, err)
		return d.Add(15 * time.Hour)
	}
	assert.Equal(t, StatusUpcoming, e.StatusOn(day("2025-04-10")))
	assert.Equal(t, StatusOngoing, e.StatusOn(day("2025-04-11")))
	assert.Equal(t, StatusOngoing, e.StatusOn(day("2025-08-31")))
	assert.Equal(t, StatusEnded, e.StatusOn(day("2025-09-01")))
	assert.Equal(t, StatusUnknown, Exhibition{StartDate: "soon"}.StatusOn(day("2025-01-01")))
}

func TestExhibitionDedupeKey(t *testing.T) {
	a := Exhibition{TitleLocal: "Park Day and Night ", VenueName: "SOMA Museum", StartDate: "2025-04-11"}
	b := Exhibition{TitleEN: "park day and night", VenueName: "soma museum", StartDate: "2025-04-11"}
	assert.Equal(t, a.DedupeKey(), b.DedupeKey())
	b.StartDate = "2025-04-12"
	assert.NotEqual(t, a.DedupeKey(), b.DedupeKey())
}

func TestMigrationSummaryTotals(t *testing.T) {
	s := MigrationSummary{Tables: []TableResult{
		{Read: 10, Written: 8, Skipped: 2},
		{Read: 5, Written: 4},
	}}
	s.Tables[1].AddRowError(RowError{Key: "7", Message: "boom"})
	read, written, skipped, failed := s.Totals()
	assert.Equal(t, []int64{15, 12, 2, 1}, []int64{read, written, skipped, failed})
	assert.True(t, s.Partial())
}

func TestNewProbeReport(t *testing.T) {
	rep := NewProbeReport([]ProbeResult{
		{URL: "a", Result: ProbeFound, Cached: true},
		{URL: "b", Result: ProbeMissing},
		{URL: "c", Result: ProbeError, Error: "timeout"},
	})
	assert.Equal(t, 3, rep.Candidates)
	assert.Equal(t, 1, rep.Found)
	assert.Equal(t, 1, rep.Missing)
	assert.Equal(t, 1, rep.Errors)
	assert.Equal(t, 1, rep.Cached)
	require.Len(t, rep.Hits, 1)
	assert.Equal(t, "a", rep.Hits[0].URL)
}
