package services

import (
	"context"
	"testing"

	"sayu-ops/internal/config"
	"sayu-ops/internal/testutil"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	script := `
-- users first
CREATE TABLE users (id UUID PRIMARY KEY, bio TEXT DEFAULT 'it''s; fine');

/* a block /* nested; */ comment */
CREATE FUNCTION touch() RETURNS trigger AS $body$
BEGIN
  NEW.updated_at = now();
  RETURN NEW;
END;
$body$ LANGUAGE plpgsql;

INSERT INTO notes (body) VALUES (E'back\'slash; still inside');
SELECT "odd;name" FROM t WHERE id = $1;
DO $$ BEGIN PERFORM 1; END $$;
-- trailing comment only;
;
`
	got := SplitStatements(script)
	require.Len(t, got, 5)
	assert.Equal(t, "CREATE TABLE users (id UUID PRIMARY KEY, bio TEXT DEFAULT 'it''s; fine')", got[0])
	assert.Contains(t, got[1], "RETURN NEW;\nEND;\n$body$ LANGUAGE plpgsql")
	assert.Equal(t, `INSERT INTO notes (body) VALUES (E'back\'slash; still inside')`, got[2])
	assert.Equal(t, `SELECT "odd;name" FROM t WHERE id = $1`, got[3])
	assert.Equal(t, "DO $$ BEGIN PERFORM 1; END $$", got[4])

	assert.Empty(t, SplitStatements("-- nothing here\n/* or here */ ;;"))
	assert.Equal(t, []string{"SELECT 1"}, SplitStatements("SELECT 1"))
}

func TestPolicyStatements(t *testing.T) {
	stmts := policyStatements("public", config.PolicyPlan{
		Name:    "own rows",
		Table:   "users",
		Command: "update",
		Using:   "auth.uid() = auth_id",
		Check:   "auth.uid() = auth_id",
	})
	assert.Equal(t, []string{
		`DROP POLICY IF EXISTS "own rows" ON "public"."users"`,
		`CREATE POLICY "own rows" ON "public"."users" FOR UPDATE USING (auth.uid() = auth_id) WITH CHECK (auth.uid() = auth_id)`,
	}, stmts)
}

func TestSchemaApplierRejectsQualifiedSchema(t *testing.T) {
	applier := NewSchemaApplier(nil, "auth.users", zerolog.Nop())
	_, err := applier.Apply(context.Background(), "schema.sql", "SELECT 1", ApplyOptions{})
	assert.ErrorIs(t, err, config.ErrInvalidIdentifier)
}

func TestSchemaApplier(t *testing.T) {
	pool, _ := testutil.Postgres(t)
	ctx := context.Background()
	applier := NewSchemaApplier(pool, "public", zerolog.Nop())

	script := `
CREATE TABLE users (id SERIAL PRIMARY KEY, nickname TEXT NOT NULL);
CREATE TABLE exhibition_likes (user_id INT REFERENCES users(id), exhibition_id INT);
INSERT INTO users (nickname) VALUES ('sayu');
`
	opts := ApplyOptions{
		EnableRLS: true,
		RLS: config.RLSPlan{Policies: []config.PolicyPlan{
			{Name: "public read", Table: "users", Command: "select", Using: "true"},
		}},
	}

	res, err := applier.Apply(ctx, "schema.sql", script, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Statements)
	assert.ElementsMatch(t, []string{"users", "exhibition_likes"}, res.RLSEnabled)
	assert.Equal(t, []string{"users.public read"}, res.Policies)

	var rls bool
	require.NoError(t, pool.QueryRow(ctx, `SELECT relrowsecurity FROM pg_class WHERE relname = 'users'`).Scan(&rls))
	assert.True(t, rls)
	require.NoError(t, pool.QueryRow(ctx, `SELECT relrowsecurity FROM pg_class WHERE relname = 'ops_runs'`).Scan(&rls))
	assert.False(t, rls)

	var cmd string
	require.NoError(t, pool.QueryRow(ctx, `SELECT cmd FROM pg_policies WHERE tablename = 'users' AND policyname = 'public read'`).Scan(&cmd))
	assert.Equal(t, "SELECT", cmd)

	// re-applying the policies converges instead of failing on the existing policy
	_, err = applier.Apply(ctx, "rls.sql", "SELECT 1;", opts)
	require.NoError(t, err)

	// the second statement fails, so the first must not survive
	_, err = applier.Apply(ctx, "broken.sql", `
CREATE TABLE venues (id INT PRIMARY KEY);
ALTER TABLE missing ADD COLUMN x INT;
`, ApplyOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement 2 (ALTER TABLE missing ADD COLUMN x INT)")

	var venues *string
	require.NoError(t, pool.QueryRow(ctx, `SELECT to_regclass('public.venues')::text`).Scan(&venues))
	assert.Nil(t, venues)

	res, err = applier.Apply(ctx, "dry.sql", "CREATE TABLE artists (id INT);", ApplyOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	var artists *string
	require.NoError(t, pool.QueryRow(ctx, `SELECT to_regclass('public.artists')::text`).Scan(&artists))
	assert.Nil(t, artists)

	_, err = applier.Apply(ctx, "empty.sql", "-- nothing", ApplyOptions{})
	assert.ErrorIs(t, err, ErrEmptyScript)
}
