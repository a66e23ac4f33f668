package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// QueryResult is a generic read result with rows keyed by column name.
type QueryResult struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// QueryRepository runs caller supplied SQL over database/sql. Every statement runs in
// a READ ONLY transaction that is rolled back afterwards.
type QueryRepository struct {
	db *sql.DB
}

func NewQueryRepository(db *sql.DB) *QueryRepository {
	return &QueryRepository{db: db}
}

func (r *QueryRepository) readOnly(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer tx.Rollback()
	return fn(tx)
}

// Count returns the number of rows query produces.
func (r *QueryRepository) Count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	wrapped := "SELECT COUNT(*) FROM (" + query + ") AS q"
	err := r.readOnly(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, wrapped, args...).Scan(&n)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Sample returns at most limit rows of query.
func (r *QueryRepository) Sample(ctx context.Context, query string, limit int, args ...any) (*QueryResult, error) {
	wrapped := fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", query, limit)
	var res *QueryResult
	err := r.readOnly(ctx, func(tx *sql.Tx) error {
		var err error
		res, err = collectMaps(tx.QueryContext(ctx, wrapped, args...))
		return err
	})
	return res, err
}

// collectMaps converts every row to a map keyed by column name.
func collectMaps(rows *sql.Rows, err error) (*QueryResult, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	resultRows := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			switch v := values[i].(type) {
			case []byte:
				rowMap[col] = string(v)
			case time.Time:
				rowMap[col] = v.Format(time.RFC3339)
			default:
				rowMap[col] = v
			}
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &QueryResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}
