package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type VenueRepository struct {
	pool *pgxpool.Pool
}

func NewVenueRepository(pool *pgxpool.Pool) *VenueRepository {
	return &VenueRepository{pool: pool}
}

// FindID looks a venue up by case-insensitive name and, when given, city.
// It returns nil when no venue matches.
func (r *VenueRepository) FindID(ctx context.Context, name, city string) (*uuid.UUID, error) {
	query := `
		SELECT id FROM venues
		WHERE lower(name) = lower($1)
			AND ($2 = '' OR lower(city) = lower($2))
		ORDER BY id
		LIMIT 1
	`

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, query, name, city).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &id, nil
}
