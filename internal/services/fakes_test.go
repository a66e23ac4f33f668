package services

import (
	"context"
	"errors"
	"maps"
	"sort"
	"strconv"
	"sync"

	"sayu-ops/internal/models"
	"sayu-ops/internal/repositories"
)

// memSource serves rows keyed by an integer "id" column.
type memSource struct {
	tables []models.Table
	rows   map[string][]models.Row
	reads  int
}

func (s *memSource) Tables(context.Context, string) ([]models.Table, error) {
	return OrderTables(s.tables), nil
}

func (s *memSource) ReadBatch(_ context.Context, q repositories.BatchQuery) ([]models.Row, error) {
	s.reads++
	all := s.rows[q.Table]
	sort.Slice(all, func(i, j int) bool { return toInt(all[i][q.Key]) < toInt(all[j][q.Key]) })

	after := -1 << 62
	if q.After != nil {
		after, _ = strconv.Atoi(*q.After)
	}
	var out []models.Row
	for _, r := range all {
		if toInt(r[q.Key]) <= after {
			continue
		}
		out = append(out, maps.Clone(r))
		if len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case int32:
		return int(n)
	}
	return 0
}

// memSink stores rows by conflict value and keeps checkpoints next to them.
type memSink struct {
	mu          sync.Mutex
	columns     map[string][]string
	data        map[string]map[string]models.Row
	checkpoints map[string]models.Checkpoint
	batches     int
	failAt      int // fail the n-th WriteBatch call, 0 disables
	rejectValue string
}

func newMemSink() *memSink {
	return &memSink{
		columns:     map[string][]string{},
		data:        map[string]map[string]models.Row{},
		checkpoints: map[string]models.Checkpoint{},
	}
}

func (s *memSink) Name() string { return "memory" }

func (s *memSink) TargetColumns(_ context.Context, table string) ([]string, error) {
	return s.columns[table], nil
}

func (s *memSink) Checkpoint(_ context.Context, runKey, table string) (*models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[runKey+"/"+table]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

func (s *memSink) ResetCheckpoints(_ context.Context, runKey string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, cp := range s.checkpoints {
		if cp.RunKey == runKey {
			delete(s.checkpoints, k)
			n++
		}
	}
	return n, nil
}

func (s *memSink) WriteBatch(_ context.Context, b Batch) (BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches++
	if s.failAt > 0 && s.batches == s.failAt {
		return BatchResult{}, errors.New("connection reset")
	}

	if s.data[b.Table] == nil {
		s.data[b.Table] = map[string]models.Row{}
	}
	conflict := "name"
	if len(b.ConflictColumns) > 0 {
		conflict = b.ConflictColumns[0]
	}

	var res BatchResult
	for i, r := range b.Rows {
		v, _ := r[conflict].(string)
		if s.rejectValue != "" && v == s.rejectValue {
			res.Errors = append(res.Errors, models.RowError{Key: b.Keys[i], Code: "23502", Message: "null value"})
			continue
		}
		if _, exists := s.data[b.Table][v]; exists && b.OnConflict != "update" {
			res.Skipped++
			continue
		}
		s.data[b.Table][v] = r
		res.Written++
	}
	s.checkpoints[b.Checkpoint.RunKey+"/"+b.Checkpoint.Table] = b.Checkpoint
	return res, nil
}
