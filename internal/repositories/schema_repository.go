package repositories

import (
	"context"
	"fmt"

	"sayu-ops/internal/models"

	"github.com/jackc/pgx/v5"
)

// SchemaRepository reads table structure from the Postgres catalogs.
type SchemaRepository struct {
	db DBTX
}

func NewSchemaRepository(db DBTX) *SchemaRepository {
	return &SchemaRepository{db: db}
}

// GetTables returns the base tables of schema in name order.
func (r *SchemaRepository) GetTables(ctx context.Context, schema string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`, schema)
	if err != nil {
		return nil, fmt.Errorf("list tables in %s: %w", schema, err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// GetColumns returns the columns of schema.table in ordinal order. UDTName
// carries the underlying type (int4, uuid, _text) that data_type hides behind
// "USER-DEFINED" or "ARRAY".
func (r *SchemaRepository) GetColumns(ctx context.Context, schema, table string) ([]models.Column, error) {
	rows, err := r.db.Query(ctx, `
		SELECT column_name, data_type, udt_name, is_nullable = 'YES', column_default
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[models.Column])
}

func (r *SchemaRepository) GetPrimaryKeys(ctx context.Context, schema, table string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.attname
		FROM pg_index i
		JOIN pg_class c ON c.oid = i.indrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		CROSS JOIN LATERAL unnest(i.indkey::int2[]) WITH ORDINALITY AS k(attnum, ord)
		JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = k.attnum
		WHERE i.indisprimary AND n.nspname = $1 AND c.relname = $2
		ORDER BY k.ord`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("primary key of %s: %w", table, err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// GetForeignKeys returns one entry per column pair of every foreign key on
// schema.table. Composite keys keep their declared column order.
func (r *SchemaRepository) GetForeignKeys(ctx context.Context, schema, table string) ([]models.ForeignKey, error) {
	rows, err := r.db.Query(ctx, `
		SELECT con.conname, child.attname, parent_rel.relname, parent.attname
		FROM pg_constraint con
		JOIN pg_class rel ON rel.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = rel.relnamespace
		JOIN pg_class parent_rel ON parent_rel.oid = con.confrelid
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(child_num, parent_num, ord)
		JOIN pg_attribute child ON child.attrelid = con.conrelid AND child.attnum = k.child_num
		JOIN pg_attribute parent ON parent.attrelid = con.confrelid AND parent.attnum = k.parent_num
		WHERE con.contype = 'f' AND n.nspname = $1 AND rel.relname = $2
		ORDER BY con.conname, k.ord`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("foreign keys of %s: %w", table, err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[models.ForeignKey])
}

// TableColumn names one column of one table.
type TableColumn struct {
	Table  string
	Column string
}

// GetUniqueConstraintsBatch reports which of the given columns carry a
// single-column unique index, keyed "table:column".
func (r *SchemaRepository) GetUniqueConstraintsBatch(ctx context.Context, schema string, tableColumns []TableColumn) (map[string]bool, error) {
	unique := make(map[string]bool)
	if len(tableColumns) == 0 {
		return unique, nil
	}

	wanted := make(map[string]bool, len(tableColumns))
	var tables []string
	for _, tc := range tableColumns {
		if !wanted[tc.Table+":"] {
			wanted[tc.Table+":"] = true
			tables = append(tables, tc.Table)
		}
		wanted[tc.Table+":"+tc.Column] = true
	}

	rows, err := r.db.Query(ctx, `
		SELECT c.relname, a.attname
		FROM pg_index i
		JOIN pg_class c ON c.oid = i.indrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = i.indkey[0]
		WHERE i.indisunique AND NOT i.indisprimary AND i.indnatts = 1
			AND n.nspname = $1 AND c.relname = ANY($2)`, schema, tables)
	if err != nil {
		return nil, fmt.Errorf("failed to query unique constraints: %w", err)
	}

	pairs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[TableColumn])
	if err != nil {
		return nil, fmt.Errorf("failed to scan unique constraints: %w", err)
	}
	for _, p := range pairs {
		key := p.Table + ":" + p.Column
		if wanted[key] {
			unique[key] = true
		}
	}
	return unique, nil
}

// CountRows returns the exact row count of schema.table.
func (r *SchemaRepository) CountRows(ctx context.Context, schema, table string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM "+pgx.Identifier{schema, table}.Sanitize()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
