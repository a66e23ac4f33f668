package services

import (
	"context"

	"sayu-ops/internal/models"
)

// Batch is one page of transformed rows plus the checkpoint that records it.
type Batch struct {
	Table           string
	Columns         []string
	Rows            []models.Row
	Keys            []string // source key of each row, for error reports
	ConflictColumns []string
	OnConflict      string
	Checkpoint      models.Checkpoint
}

func (b Batch) values() [][]any {
	out := make([][]any, len(b.Rows))
	for i, r := range b.Rows {
		vals := make([]any, len(b.Columns))
		for j, c := range b.Columns {
			vals[j] = r[c]
		}
		out[i] = vals
	}
	return out
}

type BatchResult struct {
	Written int64
	Skipped int64
	Errors  []models.RowError
}

// Sink is where migrated rows go. WriteBatch must persist b.Checkpoint only once the
// rows it covers are written.
type Sink interface {
	Name() string
	TargetColumns(ctx context.Context, table string) ([]string, error)
	Checkpoint(ctx context.Context, runKey, table string) (*models.Checkpoint, error)
	ResetCheckpoints(ctx context.Context, runKey string) (int64, error)
	WriteBatch(ctx context.Context, b Batch) (BatchResult, error)
}
