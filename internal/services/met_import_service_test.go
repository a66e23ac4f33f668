package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sayu-ops/internal/metmuseum"
	"sayu-ops/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMet struct {
	objects map[int]metmuseum.Object
	fail    map[int]error
	mu      sync.Mutex
	calls   int
}

func (f *fakeMet) Object(_ context.Context, id int) (*metmuseum.Object, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err, ok := f.fail[id]; ok {
		return nil, err
	}
	obj, ok := f.objects[id]
	if !ok {
		return nil, metmuseum.ErrNotFound
	}
	return &obj, nil
}

type fakeArtworkStore struct {
	stored []models.Artwork
	err    error
}

func (s *fakeArtworkStore) Upsert(_ context.Context, artworks []models.Artwork) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.stored = append(s.stored, artworks...)
	return int64(len(artworks)), nil
}

func metFixture() *fakeMet {
	return &fakeMet{
		objects: map[int]metmuseum.Object{
			436535: {ObjectID: 436535, Title: "Wheat Field with Cypresses", ArtistDisplayName: "Vincent van Gogh",
				IsPublicDomain: true, PrimaryImage: "https://images.metmuseum.org/436535.jpg",
				ObjectBeginDate: 1889, ObjectEndDate: 1889, Tags: []metmuseum.Tag{{Term: "Landscapes"}, {Term: " "}}},
			11417: {ObjectID: 11417, Title: "Washington Crossing the Delaware", IsPublicDomain: true},
			999:   {ObjectID: 999, Title: "Restricted", IsPublicDomain: false, PrimaryImage: "https://images.metmuseum.org/999.jpg"},
		},
		fail: map[int]error{500: errors.New("status 503")},
	}
}

func TestMetImportFiltersAndStores(t *testing.T) {
	store := &fakeArtworkStore{}
	svc := NewMetImportService(metFixture(), store, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	res, err := svc.Import(context.Background(), []int{436535, 11417, 999, 1, 500, 436535}, MetImportOptions{
		Concurrency:         2,
		RequireImage:        true,
		RequirePublicDomain: true,
	})
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, 5, s.Requested)
	assert.Equal(t, 3, s.Fetched)
	assert.Equal(t, 1, s.Kept)
	assert.Equal(t, 2, s.Filtered)
	assert.Equal(t, 1, s.NotFound)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, []int{500}, s.FailedIDs)
	assert.Equal(t, int64(1), s.Stored)

	require.Len(t, store.stored, 1)
	a := store.stored[0]
	assert.Equal(t, "met", a.Source)
	assert.Equal(t, "436535", a.ExternalID)
	assert.Equal(t, "Vincent van Gogh", a.Artist)
	assert.Equal(t, []string{"Landscapes"}, a.Tags)
	assert.Equal(t, svc.now().UTC(), a.ImportedAt)
	require.Len(t, res.Objects, 1)
}

func TestMetImportWithoutFiltersKeepsAll(t *testing.T) {
	store := &fakeArtworkStore{}
	svc := NewMetImportService(metFixture(), store, zerolog.Nop())

	res, err := svc.Import(context.Background(), []int{436535, 11417, 999}, MetImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Summary.Kept)
	assert.Equal(t, 0, res.Summary.Filtered)

	ids := []string{res.Artworks[0].ExternalID, res.Artworks[1].ExternalID, res.Artworks[2].ExternalID}
	assert.Equal(t, []string{"436535", "11417", "999"}, ids)
}

func TestMetImportNoStore(t *testing.T) {
	store := &fakeArtworkStore{}
	svc := NewMetImportService(metFixture(), store, zerolog.Nop())

	res, err := svc.Import(context.Background(), []int{436535}, MetImportOptions{NoStore: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Kept)
	assert.Zero(t, res.Summary.Stored)
	assert.Empty(t, store.stored)
}

func TestMetImportStoreError(t *testing.T) {
	store := &fakeArtworkStore{err: errors.New("connection refused")}
	svc := NewMetImportService(metFixture(), store, zerolog.Nop())

	_, err := svc.Import(context.Background(), []int{436535}, MetImportOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store artworks")
}

func TestToArtworkFallsBackToObjectName(t *testing.T) {
	a := ToArtwork(metmuseum.Object{ObjectID: 7, ObjectName: "Vase"}, time.Time{})
	assert.Equal(t, "Vase", a.Title)

	a = ToArtwork(metmuseum.Object{ObjectID: 8}, time.Time{})
	assert.Equal(t, "Untitled", a.Title)
}
