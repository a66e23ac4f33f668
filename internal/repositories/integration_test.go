package repositories

import (
	"context"
	"testing"
	"time"

	"sayu-ops/internal/database"
	"sayu-ops/internal/models"
	"sayu-ops/internal/testutil"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const venuesDDL = `
CREATE TABLE venues (
  id SERIAL PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  city TEXT
);
CREATE TABLE exhibitions_stub (
  id SERIAL PRIMARY KEY,
  venue_id INT REFERENCES venues(id)
);
`

func TestPostgresRepositories(t *testing.T) {
	pool, _ := testutil.Postgres(t, venuesDDL)
	ctx := context.Background()

	rowsRepo := NewRowRepository(pool)
	cols := []string{"name", "city"}
	n, err := rowsRepo.InsertRows(ctx, "public", "venues", cols, [][]any{
		{"Leeum", "Seoul"}, {"MMCA", "Gwacheon"}, {"Amorepacific", "Seoul"},
	}, []string{"name"}, "skip")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// duplicates are skipped, not failed
	n, err = rowsRepo.InsertRows(ctx, "public", "venues", cols, [][]any{{"Leeum", "Busan"}}, []string{"name"}, "skip")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	first, err := rowsRepo.ReadBatch(ctx, BatchQuery{Schema: "public", Table: "venues", Key: "id", KeyType: "int4", Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "Leeum", first[0]["name"])

	after := "2"
	rest, err := rowsRepo.ReadBatch(ctx, BatchQuery{Schema: "public", Table: "venues", Key: "id", KeyType: "int4", After: &after, Limit: 2})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "Amorepacific", rest[0]["name"])

	existing, err := rowsRepo.ExistingKeys(ctx, "public", "venues", "id", []string{"1", "3", "99"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"1": true, "3": true}, existing)

	schemaRepo := NewSchemaRepository(pool)
	tables, err := schemaRepo.GetTables(ctx, "public")
	require.NoError(t, err)
	assert.Contains(t, tables, "venues")
	assert.Contains(t, tables, "ops_checkpoints")

	fks, err := schemaRepo.GetForeignKeys(ctx, "public", "exhibitions_stub")
	require.NoError(t, err)
	require.Len(t, fks, 1)
	assert.Equal(t, "venues", fks[0].ToTable)

	count, err := schemaRepo.CountRows(ctx, "public", "venues")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	count, err = rowsRepo.CountWhere(ctx, "public", "venues", "city = 'Seoul'", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	count, err = rowsRepo.CountWhere(ctx, "public", "venues", "", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	keys, err := rowsRepo.FirstKeys(ctx, "public", "venues", "id", "city = 'Seoul'", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, keys)

	venueID, err := NewVenueRepository(pool).FindID(ctx, "nowhere", "")
	require.NoError(t, err)
	assert.Nil(t, venueID)
}

func TestCheckpointRepository(t *testing.T) {
	pool, _ := testutil.Postgres(t)
	ctx := context.Background()
	repo := NewCheckpointRepository(pool)

	cp, err := repo.Get(ctx, "run", "venues")
	require.NoError(t, err)
	assert.Nil(t, cp)

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, tx, models.Checkpoint{RunKey: "run", Table: "venues", LastKey: "7", RowsDone: 7}))
	require.NoError(t, tx.Rollback(ctx))

	// rolled back with its transaction
	cp, err = repo.Get(ctx, "run", "venues")
	require.NoError(t, err)
	assert.Nil(t, cp)

	require.NoError(t, repo.Save(ctx, pool, models.Checkpoint{RunKey: "run", Table: "venues", LastKey: "9", RowsDone: 9}))
	cp, err = repo.Get(ctx, "run", "venues")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "9", cp.LastKey)

	list, err := repo.List(ctx, "run")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	n, err := repo.Delete(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestQueryRepositoryIsReadOnly(t *testing.T) {
	pool, dsn := testutil.Postgres(t, `CREATE SEQUENCE artworks_id_seq; CREATE TABLE notes (id INT PRIMARY KEY, body TEXT)`)
	ctx := context.Background()
	_, err := pool.Exec(ctx, `INSERT INTO notes VALUES (1, 'a'), (2, 'b')`)
	require.NoError(t, err)

	db, err := database.OpenSQL(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()
	repo := NewQueryRepository(db)

	n, err := repo.Count(ctx, "SELECT id FROM notes")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	sample, err := repo.Sample(ctx, "SELECT id, body FROM notes ORDER BY id", 1)
	require.NoError(t, err)
	require.Len(t, sample.Rows, 1)
	assert.Equal(t, "a", sample.Rows[0]["body"])

	_, err = repo.Count(ctx, "SELECT nextval('artworks_id_seq')")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only transaction")

	_, err = repo.Sample(ctx, "SELECT setval('artworks_id_seq', 42)", 5)
	require.Error(t, err)

	var last int64
	require.NoError(t, pool.QueryRow(ctx, "SELECT last_value FROM artworks_id_seq").Scan(&last))
	assert.Equal(t, int64(1), last)
}

const artworksDDL = `
CREATE TABLE artworks (
  id SERIAL PRIMARY KEY,
  source TEXT NOT NULL,
  external_id TEXT NOT NULL,
  title TEXT NOT NULL,
  artist TEXT,
  artist_nationality TEXT,
  date_text TEXT,
  begin_year INT,
  end_year INT,
  medium TEXT,
  department TEXT,
  culture TEXT,
  classification TEXT,
  image_url TEXT,
  thumbnail_url TEXT,
  object_url TEXT,
  public_domain BOOLEAN NOT NULL DEFAULT false,
  tags TEXT[] NOT NULL DEFAULT '{}',
  imported_at TIMESTAMPTZ
);
`

func TestArtworkUpsertKeyFromMigrations(t *testing.T) {
	pool, _ := testutil.Postgres(t, artworksDDL)
	ctx := context.Background()

	// the ops migrations ran before artworks existed; a second run adds the key
	require.NoError(t, database.RunMigrations(ctx, pool, zerolog.Nop()))
	require.NoError(t, database.RunMigrations(ctx, pool, zerolog.Nop()))

	var indexes int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM pg_indexes WHERE tablename = 'artworks' AND indexdef LIKE 'CREATE UNIQUE INDEX%'`).Scan(&indexes))
	assert.Equal(t, 2, indexes, "primary key plus (source, external_id)")

	repo := NewArtworkRepository(pool)
	art := models.Artwork{Source: "met", ExternalID: "436535", Title: "Wheat Field with Cypresses", PublicDomain: true, ImportedAt: time.Now()}
	n, err := repo.Upsert(ctx, []models.Artwork{art})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	art.Title = "Wheat Field with Cypresses (1889)"
	_, err = repo.Upsert(ctx, []models.Artwork{art})
	require.NoError(t, err)

	var count int
	var title string
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*), MAX(title) FROM artworks`).Scan(&count, &title))
	assert.Equal(t, 1, count)
	assert.Equal(t, "Wheat Field with Cypresses (1889)", title)
}
