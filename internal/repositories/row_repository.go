package repositories

import (
	"context"
	"fmt"
	"strings"

	"sayu-ops/internal/models"

	"github.com/jackc/pgx/v5"
)

// maxParams is the Postgres limit on bind parameters in one statement.
const maxParams = 65535

// BatchQuery selects the next page of a table in key order.
type BatchQuery struct {
	Schema  string
	Table   string
	Columns []string // empty selects every column
	Key     string
	KeyType string // udt name used to cast After, e.g. int8 or uuid
	After   *string
	Where   string
	Limit   int
}

// RowRepository reads and writes rows of arbitrary tables.
type RowRepository struct {
	db DBTX
}

func NewRowRepository(db DBTX) *RowRepository {
	return &RowRepository{db: db}
}

// ReadBatch returns up to q.Limit rows with a key strictly greater than q.After.
func (r *RowRepository) ReadBatch(ctx context.Context, q BatchQuery) ([]models.Row, error) {
	query, args := buildBatchQuery(q)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", q.Table, err)
	}
	defer rows.Close()

	return collectRows(rows)
}

func buildBatchQuery(q BatchQuery) (string, []any) {
	cols := "*"
	if len(q.Columns) > 0 {
		quoted := make([]string, len(q.Columns))
		for i, c := range q.Columns {
			quoted[i] = pgx.Identifier{c}.Sanitize()
		}
		cols = strings.Join(quoted, ", ")
	}
	key := pgx.Identifier{q.Key}.Sanitize()

	var sb strings.Builder
	var args []any
	var conds []string

	fmt.Fprintf(&sb, "SELECT %s FROM %s", cols, pgx.Identifier{q.Schema, q.Table}.Sanitize())
	if q.After != nil {
		args = append(args, *q.After)
		if q.KeyType != "" {
			conds = append(conds, fmt.Sprintf("%s > CAST($1 AS %s)", key, pgx.Identifier{q.KeyType}.Sanitize()))
		} else {
			conds = append(conds, key+" > $1")
		}
	}
	if strings.TrimSpace(q.Where) != "" {
		conds = append(conds, "("+q.Where+")")
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	fmt.Fprintf(&sb, " ORDER BY %s", key)
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	return sb.String(), args
}

func collectRows(rows pgx.Rows) ([]models.Row, error) {
	fields := rows.FieldDescriptions()

	var out []models.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(models.Row, len(fields))
		for i, f := range fields {
			row[f.Name] = values[i]
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// ExistingKeys returns which of keys are present in schema.table's key column.
func (r *RowRepository) ExistingKeys(ctx context.Context, schema, table, key string, keys []string) (map[string]bool, error) {
	found := make(map[string]bool, len(keys))
	if len(keys) == 0 {
		return found, nil
	}

	col := pgx.Identifier{key}.Sanitize()
	query := fmt.Sprintf("SELECT %s::text FROM %s WHERE %s::text = ANY($1)", col, pgx.Identifier{schema, table}.Sanitize(), col)

	rows, err := r.db.Query(ctx, query, keys)
	if err != nil {
		return nil, fmt.Errorf("lookup keys in %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		found[k] = true
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return found, nil
}

// InsertRows writes rows into schema.table with one multi-row INSERT per chunk.
// With onConflict "skip" existing rows are left alone; with "update" the non-conflict
// columns are overwritten. It returns the number of rows the database reports as affected.
func (r *RowRepository) InsertRows(ctx context.Context, schema, table string, columns []string, rows [][]any, conflictCols []string, onConflict string) (int64, error) {
	if len(rows) == 0 || len(columns) == 0 {
		return 0, nil
	}

	perChunk := maxParams / len(columns)
	if perChunk < 1 {
		return 0, fmt.Errorf("table %s has too many columns", table)
	}

	var affected int64
	for start := 0; start < len(rows); start += perChunk {
		end := min(start+perChunk, len(rows))

		query, args := buildInsert(schema, table, columns, rows[start:end], conflictCols, onConflict)
		tag, err := r.db.Exec(ctx, query, args...)
		if err != nil {
			return affected, err
		}
		affected += tag.RowsAffected()
	}
	return affected, nil
}

func buildInsert(schema, table string, columns []string, rows [][]any, conflictCols []string, onConflict string) (string, []any) {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}

	var sb strings.Builder
	args := make([]any, 0, len(rows)*len(columns))

	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", pgx.Identifier{schema, table}.Sanitize(), strings.Join(quoted, ", "))
	n := 1
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := range columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", n)
			n++
			args = append(args, row[j])
		}
		sb.WriteByte(')')
	}

	sb.WriteString(conflictClause(columns, conflictCols, onConflict))
	return sb.String(), args
}

func conflictClause(columns, conflictCols []string, onConflict string) string {
	if len(conflictCols) == 0 {
		if onConflict == "update" {
			return ""
		}
		return " ON CONFLICT DO NOTHING"
	}

	target := make([]string, len(conflictCols))
	isTarget := make(map[string]bool, len(conflictCols))
	for i, c := range conflictCols {
		target[i] = pgx.Identifier{c}.Sanitize()
		isTarget[c] = true
	}

	var sets []string
	if onConflict == "update" {
		for _, c := range columns {
			if isTarget[c] {
				continue
			}
			q := pgx.Identifier{c}.Sanitize()
			sets = append(sets, q+" = EXCLUDED."+q)
		}
	}
	if len(sets) == 0 {
		return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(target, ", "))
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(target, ", "), strings.Join(sets, ", "))
}

// FirstKeys returns the n smallest values of key in schema.table as text, restricted
// to rows matching where when it is set.
func (r *RowRepository) FirstKeys(ctx context.Context, schema, table, key, where string, n int) ([]string, error) {
	col := pgx.Identifier{key}.Sanitize()
	query := fmt.Sprintf("SELECT %s::text FROM %s%s ORDER BY %s LIMIT %d",
		col, pgx.Identifier{schema, table}.Sanitize(), whereClause(where), col, n)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sample keys of %s: %w", table, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return keys, nil
}

// CountWhere counts the rows of schema.table matching where, capped at limit when
// limit is positive.
func (r *RowRepository) CountWhere(ctx context.Context, schema, table, where string, limit int) (int64, error) {
	inner := "SELECT 1 FROM " + pgx.Identifier{schema, table}.Sanitize() + whereClause(where)
	if limit > 0 {
		inner += fmt.Sprintf(" LIMIT %d", limit)
	}

	var n int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM ("+inner+") AS q").Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func whereClause(where string) string {
	if strings.TrimSpace(where) == "" {
		return ""
	}
	return " WHERE (" + where + ")"
}
