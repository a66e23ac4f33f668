package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// RunMigrations creates the bookkeeping tables sayuctl keeps in the target database.
// Every statement is idempotent.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) error {
	migrations := []string{
		createCheckpointsTable,
		createRunsTable,
		addRunsErrorColumn,
		addArtworksSourceKey,
	}

	for i, migration := range migrations {
		log.Debug().Msgf("Running migration %d/%d", i+1, len(migrations))
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Debug().Msg("ops migrations completed")
	return nil
}

const createCheckpointsTable = `
CREATE TABLE IF NOT EXISTS ops_checkpoints (
  run_key TEXT NOT NULL,
  table_name TEXT NOT NULL,
  last_key TEXT NOT NULL,
  rows_done BIGINT NOT NULL DEFAULT 0,
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  PRIMARY KEY (run_key, table_name)
);
`

const createRunsTable = `
CREATE TABLE IF NOT EXISTS ops_runs (
  id UUID PRIMARY KEY,
  kind TEXT NOT NULL,
  run_key TEXT,
  status TEXT NOT NULL,
  started_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  finished_at TIMESTAMP WITH TIME ZONE,
  summary JSONB
);

CREATE INDEX IF NOT EXISTS idx_ops_runs_kind ON ops_runs(kind);
CREATE INDEX IF NOT EXISTS idx_ops_runs_started_at ON ops_runs(started_at);
`

const addRunsErrorColumn = `
DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM information_schema.columns
    WHERE table_name = 'ops_runs' AND column_name = 'error'
  ) THEN
    ALTER TABLE ops_runs ADD COLUMN error TEXT;
  END IF;
END$$;
`

// addArtworksSourceKey gives the met import upsert its (source, external_id) conflict
// target when the SAYU schema has an artworks table without one.
const addArtworksSourceKey = `
DO $$
BEGIN
  IF (
    SELECT COUNT(*) FROM information_schema.columns
    WHERE table_schema = current_schema() AND table_name = 'artworks'
      AND column_name IN ('source', 'external_id')
  ) = 2 AND NOT EXISTS (
    SELECT 1
    FROM pg_index i
    JOIN pg_class c ON c.oid = i.indrelid
    JOIN pg_namespace n ON n.oid = c.relnamespace
    WHERE c.relname = 'artworks' AND n.nspname = current_schema()
      AND i.indisunique AND i.indnatts = 2
      AND (
        SELECT array_agg(a.attname::text ORDER BY a.attname)
        FROM pg_attribute a
        WHERE a.attrelid = c.oid AND a.attnum = ANY(i.indkey)
      ) = ARRAY['external_id', 'source']
  ) THEN
    CREATE UNIQUE INDEX idx_artworks_source_external_id ON artworks(source, external_id);
  END IF;
EXCEPTION WHEN unique_violation THEN
  RAISE WARNING 'artworks holds duplicate (source, external_id) pairs, met imports will fail until they are merged';
END$$;
`
