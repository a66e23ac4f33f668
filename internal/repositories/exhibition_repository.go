package repositories

import (
	"context"
	"fmt"

	"sayu-ops/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

type ExhibitionRepository struct {
	pool *pgxpool.Pool
}

func NewExhibitionRepository(pool *pgxpool.Pool) *ExhibitionRepository {
	return &ExhibitionRepository{pool: pool}
}

// ExistingKeys returns the dedupe keys of stored exhibitions starting on any of startDates.
func (r *ExhibitionRepository) ExistingKeys(ctx context.Context, startDates []string) (map[string]bool, error) {
	keys := make(map[string]bool)
	if len(startDates) == 0 {
		return keys, nil
	}

	query := `
		SELECT COALESCE(title_local, ''), COALESCE(title_en, ''), COALESCE(venue_name, ''), start_date::text
		FROM exhibitions
		WHERE start_date = ANY($1::date[])
	`

	rows, err := r.pool.Query(ctx, query, startDates)
	if err != nil {
		return nil, fmt.Errorf("load existing exhibitions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.Exhibition
		if err := rows.Scan(&e.TitleLocal, &e.TitleEN, &e.VenueName, &e.StartDate); err != nil {
			return nil, err
		}
		keys[e.DedupeKey()] = true
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return keys, nil
}

const insertExhibition = `
	INSERT INTO exhibitions (
		id, title_local, title_en, venue_id, venue_name, venue_city, venue_country,
		start_date, end_date, description, artists, exhibition_type, status,
		website_url, venue_address, phone_number, admission_fee, operating_hours,
		source, source_url, created_at, updated_at
	)
	VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7,
		$8::date, $9::date, NULLIF($10, ''), $11, NULLIF($12, ''), $13,
		NULLIF($14, ''), NULLIF($15, ''), NULLIF($16, ''), NULLIF($17, ''), NULLIF($18, ''),
		NULLIF($19, ''), NULLIF($20, ''), NOW(), NOW())
	ON CONFLICT DO NOTHING
`

// InsertAll writes every exhibition in a single transaction and returns how many rows
// were actually inserted.
func (r *ExhibitionRepository) InsertAll(ctx context.Context, exhibitions []models.Exhibition) (int64, error) {
	if len(exhibitions) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var inserted int64
	for i := range exhibitions {
		e := &exhibitions[i]
		e.Prepare()

		artists := e.Artists
		if artists == nil {
			artists = []string{}
		}
		tag, err := tx.Exec(ctx, insertExhibition,
			e.ID, e.TitleLocal, e.TitleEN, e.VenueID, e.VenueName, e.VenueCity, e.VenueCountry,
			e.StartDate, e.EndDate, e.Description, artists, e.ExhibitionType, e.Status,
			e.WebsiteURL, e.VenueAddress, e.PhoneNumber, e.AdmissionFee, e.OperatingHours,
			e.Source, e.SourceURL,
		)
		if err != nil {
			return 0, fmt.Errorf("insert exhibition %q: %w", e.Title(), err)
		}
		inserted += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}
