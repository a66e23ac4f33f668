package repositories

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildBatchQuery(t *testing.T) {
	after := "42"
	query, args := buildBatchQuery(BatchQuery{
		Schema:  "public",
		Table:   "venues",
		Columns: []string{"id", "name"},
		Key:     "id",
		KeyType: "int4",
		After:   &after,
		Where:   "deleted_at IS NULL",
		Limit:   100,
	})

	assert.Equal(t,
		`SELECT "id", "name" FROM "public"."venues" WHERE "id" > CAST($1 AS "int4") AND (deleted_at IS NULL) ORDER BY "id" LIMIT 100`,
		query)
	assert.Equal(t, []any{"42"}, args)
}

func TestBuildBatchQueryFirstPage(t *testing.T) {
	query, args := buildBatchQuery(BatchQuery{Schema: "public", Table: "artists", Key: "id", Limit: 10})

	assert.Equal(t, `SELECT * FROM "public"."artists" ORDER BY "id" LIMIT 10`, query)
	assert.Empty(t, args)
}

func TestBuildInsert(t *testing.T) {
	rows := [][]any{{"Leeum", "Seoul"}, {"MMCA", "Gwacheon"}}

	query, args := buildInsert("public", "venues", []string{"name", "city"}, rows, nil, "skip")
	assert.Equal(t, `INSERT INTO "public"."venues" ("name", "city") VALUES ($1, $2), ($3, $4) ON CONFLICT DO NOTHING`, query)
	assert.Equal(t, []any{"Leeum", "Seoul", "MMCA", "Gwacheon"}, args)

	query, _ = buildInsert("public", "venues", []string{"name", "city"}, rows[:1], []string{"name"}, "update")
	assert.Equal(t, `INSERT INTO "public"."venues" ("name", "city") VALUES ($1, $2) ON CONFLICT ("name") DO UPDATE SET "city" = EXCLUDED."city"`, query)
}

func TestConflictClause(t *testing.T) {
	assert.Equal(t, "", conflictClause([]string{"a"}, nil, "update"))
	assert.Equal(t, ` ON CONFLICT ("a") DO NOTHING`, conflictClause([]string{"a"}, []string{"a"}, "update"))
	assert.Equal(t, ` ON CONFLICT ("a", "b") DO NOTHING`, conflictClause([]string{"a", "b", "c"}, []string{"a", "b"}, "skip"))
}
