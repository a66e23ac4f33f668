package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"sayu-ops/internal/metmuseum"
	"sayu-ops/internal/metrics"
	"sayu-ops/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const metSource = "met"

type MetFetcher interface {
	Object(ctx context.Context, id int) (*metmuseum.Object, error)
}

type ArtworkStore interface {
	Upsert(ctx context.Context, artworks []models.Artwork) (int64, error)
}

type MetImportOptions struct {
	Concurrency         int
	RequireImage        bool
	RequirePublicDomain bool
	// NoStore skips the database write; objects are still fetched and mapped.
	NoStore bool
}

// MetImportResult carries the summary plus the raw objects that passed the filters.
type MetImportResult struct {
	Summary  models.MetImportSummary
	Objects  []metmuseum.Object
	Artworks []models.Artwork
}

type MetImportService struct {
	client MetFetcher
	store  ArtworkStore
	log    zerolog.Logger
	now    func() time.Time
}

func NewMetImportService(client MetFetcher, store ArtworkStore, log zerolog.Logger) *MetImportService {
	return &MetImportService{client: client, store: store, log: log, now: time.Now}
}

// Import fetches ids concurrently, keeps the objects that pass the filters and stores them.
// Per-object failures are counted, not returned; the error is for cancellation and store failures.
func (s *MetImportService) Import(ctx context.Context, ids []int, opts MetImportOptions) (*MetImportResult, error) {
	ids = uniqueInts(ids)
	res := &MetImportResult{Summary: models.MetImportSummary{Requested: len(ids)}}
	if len(ids) == 0 {
		return res, nil
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	objects := make([]*metmuseum.Object, len(ids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, id := range ids {
		i, id := i, id // per-iteration copies (go directive is 1.21)
		g.Go(func() error {
			obj, err := s.client.Object(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				objects[i] = obj
				res.Summary.Fetched++
			case errors.Is(err, metmuseum.ErrNotFound):
				res.Summary.NotFound++
				metrics.MetObjects.WithLabelValues("not_found").Inc()
				s.log.Debug().Int("object_id", id).Msg("met object not found")
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				res.Summary.Failed++
				res.Summary.FailedIDs = append(res.Summary.FailedIDs, id)
				res.Summary.Errors = append(res.Summary.Errors, fmt.Sprintf("%d: %v", id, err))
				metrics.MetObjects.WithLabelValues("failed").Inc()
				s.log.Warn().Int("object_id", id).Err(err).Msg("met fetch failed")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	importedAt := s.now().UTC()
	for _, obj := range objects {
		if obj == nil {
			continue
		}
		if reason := filterReason(*obj, opts); reason != "" {
			res.Summary.Filtered++
			metrics.MetObjects.WithLabelValues("filtered").Inc()
			s.log.Debug().Int("object_id", obj.ObjectID).Str("reason", reason).Msg("met object filtered")
			continue
		}
		res.Summary.Kept++
		metrics.MetObjects.WithLabelValues("kept").Inc()
		res.Objects = append(res.Objects, *obj)
		res.Artworks = append(res.Artworks, ToArtwork(*obj, importedAt))
	}

	if opts.NoStore || s.store == nil || len(res.Artworks) == 0 {
		return res, nil
	}

	stored, err := s.store.Upsert(ctx, res.Artworks)
	if err != nil {
		return res, fmt.Errorf("store artworks: %w", err)
	}
	res.Summary.Stored = stored
	metrics.MetObjects.WithLabelValues("stored").Add(float64(stored))
	s.log.Info().
		Int("kept", res.Summary.Kept).
		Int64("stored", stored).
		Msg("met artworks stored")
	return res, nil
}

func filterReason(obj metmuseum.Object, opts MetImportOptions) string {
	if opts.RequirePublicDomain && !obj.IsPublicDomain {
		return "not public domain"
	}
	if opts.RequireImage && obj.PrimaryImage == "" {
		return "no primary image"
	}
	return ""
}

// ToArtwork maps a Met object onto the artworks table.
func ToArtwork(obj metmuseum.Object, importedAt time.Time) models.Artwork {
	title := strings.TrimSpace(obj.Title)
	if title == "" {
		title = strings.TrimSpace(obj.ObjectName)
	}
	if title == "" {
		title = "Untitled"
	}

	var tags []string
	for _, t := range obj.Tags {
		if term := strings.TrimSpace(t.Term); term != "" {
			tags = append(tags, term)
		}
	}

	return models.Artwork{
		Source:         metSource,
		ExternalID:     strconv.Itoa(obj.ObjectID),
		Title:          title,
		Artist:         strings.TrimSpace(obj.ArtistDisplayName),
		ArtistNation:   strings.TrimSpace(obj.ArtistNationality),
		DateText:       strings.TrimSpace(obj.ObjectDate),
		BeginYear:      obj.ObjectBeginDate,
		EndYear:        obj.ObjectEndDate,
		Medium:         strings.TrimSpace(obj.Medium),
		Department:     obj.Department,
		Culture:        strings.TrimSpace(obj.Culture),
		Classification: obj.Classification,
		ImageURL:       obj.PrimaryImage,
		ThumbnailURL:   obj.PrimaryImageSmall,
		ObjectURL:      obj.ObjectURL,
		PublicDomain:   obj.IsPublicDomain,
		Tags:           tags,
		ImportedAt:     importedAt,
	}
}

func uniqueInts(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
