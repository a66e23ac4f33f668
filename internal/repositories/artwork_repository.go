package repositories

import (
	"context"
	"fmt"

	"sayu-ops/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ArtworkRepository struct {
	pool *pgxpool.Pool
}

func NewArtworkRepository(pool *pgxpool.Pool) *ArtworkRepository {
	return &ArtworkRepository{pool: pool}
}

const upsertArtwork = `
	INSERT INTO artworks (
		source, external_id, title, artist, artist_nationality, date_text, begin_year, end_year,
		medium, department, culture, classification, image_url, thumbnail_url, object_url,
		public_domain, tags, imported_at
	)
	VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8,
		NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''), NULLIF($14, ''), NULLIF($15, ''),
		$16, $17, $18)
	ON CONFLICT (source, external_id) DO UPDATE SET
		title = EXCLUDED.title,
		artist = EXCLUDED.artist,
		artist_nationality = EXCLUDED.artist_nationality,
		date_text = EXCLUDED.date_text,
		begin_year = EXCLUDED.begin_year,
		end_year = EXCLUDED.end_year,
		medium = EXCLUDED.medium,
		department = EXCLUDED.department,
		culture = EXCLUDED.culture,
		classification = EXCLUDED.classification,
		image_url = EXCLUDED.image_url,
		thumbnail_url = EXCLUDED.thumbnail_url,
		object_url = EXCLUDED.object_url,
		public_domain = EXCLUDED.public_domain,
		tags = EXCLUDED.tags,
		imported_at = EXCLUDED.imported_at
`

// Upsert writes artworks in one transaction keyed on (source, external_id).
func (r *ArtworkRepository) Upsert(ctx context.Context, artworks []models.Artwork) (int64, error) {
	if len(artworks) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, a := range artworks {
		tags := a.Tags
		if tags == nil {
			tags = []string{}
		}
		batch.Queue(upsertArtwork,
			a.Source, a.ExternalID, a.Title, a.Artist, a.ArtistNation, a.DateText, a.BeginYear, a.EndYear,
			a.Medium, a.Department, a.Culture, a.Classification, a.ImageURL, a.ThumbnailURL, a.ObjectURL,
			a.PublicDomain, tags, a.ImportedAt,
		)
	}

	results := tx.SendBatch(ctx, batch)
	var stored int64
	for _, a := range artworks {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("upsert artwork %s/%s: %w", a.Source, a.ExternalID, err)
		}
		stored += tag.RowsAffected()
	}
	if err := results.Close(); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return stored, nil
}
