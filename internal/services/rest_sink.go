package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"sayu-ops/internal/database"
	"sayu-ops/internal/models"
	"sayu-ops/internal/repositories"
	"sayu-ops/internal/utils"

	"github.com/rs/zerolog"
)

// RESTClient is the part of the Supabase REST API the REST sink and verify use.
type RESTClient interface {
	InsertRows(ctx context.Context, table string, rows []map[string]any, onDuplicate string, onConflict []string) (int64, error)
	Count(ctx context.Context, table string) (int64, error)
}

// CheckpointStore persists checkpoints outside the target database.
type CheckpointStore interface {
	Get(ctx context.Context, runKey, table string) (*models.Checkpoint, error)
	Save(ctx context.Context, cp models.Checkpoint) error
	Delete(ctx context.Context, runKey string) (int64, error)
}

// RESTSink writes through Supabase PostgREST. REST calls cannot join a transaction, so
// the checkpoint is saved to the store after the rows are acknowledged.
type RESTSink struct {
	client      RESTClient
	checkpoints CheckpointStore
	retry       utils.RetryPolicy
	log         zerolog.Logger
}

func NewRESTSink(client RESTClient, checkpoints CheckpointStore, retry utils.RetryPolicy, log zerolog.Logger) *RESTSink {
	return &RESTSink{client: client, checkpoints: checkpoints, retry: retry, log: log}
}

func (s *RESTSink) Name() string { return "rest" }

// TargetColumns is unknown over REST; rows are sent as transformed.
func (s *RESTSink) TargetColumns(context.Context, string) ([]string, error) {
	return nil, nil
}

func (s *RESTSink) Checkpoint(ctx context.Context, runKey, table string) (*models.Checkpoint, error) {
	return s.checkpoints.Get(ctx, runKey, table)
}

func (s *RESTSink) ResetCheckpoints(ctx context.Context, runKey string) (int64, error) {
	return s.checkpoints.Delete(ctx, runKey)
}

// restTransient reports whether a REST failure may succeed on retry: network errors,
// timeouts, and the PostgREST and Postgres codes that come back with a 5xx.
func restTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	switch code := repositories.RESTErrorCode(err); {
	case code == "":
		// a 5xx from the gateway in front of PostgREST has no JSON error body
		return strings.HasPrefix(err.Error(), "error parsing error response")
	case strings.HasPrefix(code, "PGRST"):
		// PGRST000-PGRST003: database unreachable, pool exhausted or timed out (503/504)
		return code >= "PGRST000" && code <= "PGRST003"
	default:
		return code == database.CodeSerialization || code == database.CodeDeadlock ||
			strings.HasPrefix(code, "08") || strings.HasPrefix(code, "53")
	}
}

func (s *RESTSink) insert(ctx context.Context, table string, rows []map[string]any, onDuplicate string, conflictCols []string) (int64, error) {
	var n int64
	err := utils.Retry(ctx, s.retry, func() error {
		var err error
		n, err = s.client.InsertRows(ctx, table, rows, onDuplicate, conflictCols)
		if err != nil && !restTransient(err) {
			return utils.Permanent(err)
		}
		return err
	}, func(err error, wait time.Duration) {
		s.log.Warn().Err(err).Str("table", table).Dur("wait", wait).Msg("rest insert failed, retrying")
	})
	return n, err
}

// WriteBatch sends the batch in one request. With skip, rows that already exist are
// ignored by PostgREST and counted as skipped. A rejected batch is retried row by row.
func (s *RESTSink) WriteBatch(ctx context.Context, b Batch) (BatchResult, error) {
	payload := make([]map[string]any, len(b.Rows))
	for i, r := range b.Rows {
		payload[i] = restRow(r, b.Columns)
	}

	var res BatchResult
	n, err := s.insert(ctx, b.Table, payload, b.OnConflict, b.ConflictColumns)
	switch {
	case err == nil:
		res.Written = n
		res.Skipped = int64(len(payload)) - n
	case restTransient(err):
		return BatchResult{}, err
	default:
		s.log.Warn().Err(err).Str("table", b.Table).Int("rows", len(payload)).Msg("batch insert rejected, writing row by row")
		for i, row := range payload {
			n, err := s.insert(ctx, b.Table, []map[string]any{row}, b.OnConflict, b.ConflictColumns)
			switch {
			case err == nil && n > 0:
				res.Written++
			case err == nil, repositories.RESTErrorCode(err) == database.CodeUniqueViolation:
				res.Skipped++
			case restTransient(err):
				return BatchResult{}, err
			default:
				res.Errors = append(res.Errors, models.RowError{
					Key:     b.Keys[i],
					Code:    repositories.RESTErrorCode(err),
					Message: err.Error(),
				})
				s.log.Warn().Err(err).Str("table", b.Table).Str("key", b.Keys[i]).Msg("row rejected")
			}
		}
	}

	if err := s.checkpoints.Save(ctx, b.Checkpoint); err != nil {
		return res, fmt.Errorf("save checkpoint: %w", err)
	}
	return res, nil
}

// restRow gives every row the same keys, which PostgREST requires for bulk inserts.
func restRow(r models.Row, columns []string) map[string]any {
	out := make(map[string]any, len(columns))
	for _, c := range columns {
		out[c] = r[c]
	}
	return out
}
