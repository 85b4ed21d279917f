package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flavortown/enrich-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "enrich.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteRestaurantLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	r := &model.Restaurant{Slug: "smoke-shack", Name: "Smoke Shack", City: "Austin", State: "TX"}
	require.NoError(t, s.CreateRestaurant(ctx, r))
	require.NotEmpty(t, r.ID)

	got, err := s.GetRestaurantBySlug(ctx, "smoke-shack")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, model.StatusUnknown, got.Status)
	assert.Equal(t, model.EnrichmentPending, got.EnrichmentStatus)

	content := model.RestaurantContent{
		Description: "Texas brisket joint.",
		Cuisines:    []string{"bbq", "southern"},
		PriceTier:   model.PriceModerate,
		GuyQuote:    "That's money.",
		Dishes:      []string{"brisket plate"},
	}
	require.NoError(t, s.UpdateRestaurantContent(ctx, r.ID, content))

	verifiedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateRestaurantStatus(ctx, r.ID, model.StatusOpen, verifiedAt))

	enrichedAt := time.Now().UTC()
	require.NoError(t, s.SetEnrichmentStatus(ctx, r.ID, model.EnrichmentCompleted, &enrichedAt))

	got, err = s.GetRestaurantByID(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Texas brisket joint.", got.Description)
	assert.Equal(t, []string{"bbq", "southern"}, got.Cuisines)
	assert.Equal(t, model.PriceModerate, got.PriceTier)
	assert.Equal(t, model.StatusOpen, got.Status)
	assert.Equal(t, model.EnrichmentCompleted, got.EnrichmentStatus)
	require.NotNil(t, got.LastVerifiedAt)
	require.NotNil(t, got.LastEnrichedAt)
}

func TestSQLiteGetRestaurantMissing(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	got, err := s.GetRestaurantBySlug(context.Background(), "does-not-exist")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteListRestaurantsByCriteria(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	seed := []model.Restaurant{
		{Slug: "a-place", Name: "A Place", City: "Austin", State: "TX"},
		{Slug: "b-place", Name: "B Place", City: "Austin", State: "TX"},
		{Slug: "c-place", Name: "C Place", City: "Tulsa", State: "OK"},
	}
	for i := range seed {
		require.NoError(t, s.CreateRestaurant(ctx, &seed[i]))
	}
	require.NoError(t, s.UpdateRestaurantStatus(ctx, seed[0].ID, model.StatusOpen, time.Now().UTC()))

	austin, err := s.ListRestaurants(ctx, RestaurantCriteria{City: "austin"})
	require.NoError(t, err)
	assert.Len(t, austin, 2)

	open, err := s.ListRestaurants(ctx, RestaurantCriteria{Status: model.StatusOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "a-place", open[0].Slug)

	// seed[0] was just verified; the other two have never been verified.
	stale, err := s.ListRestaurants(ctx, RestaurantCriteria{NotVerifiedInDays: 30})
	require.NoError(t, err)
	assert.Len(t, stale, 2)

	count, err := s.CountRestaurants(ctx, RestaurantCriteria{State: "TX"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	limited, err := s.ListRestaurants(ctx, RestaurantCriteria{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "b-place", limited[0].Slug)
}

func TestSQLiteGetRestaurantsByIDs(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	a := &model.Restaurant{Slug: "a", Name: "A"}
	b := &model.Restaurant{Slug: "b", Name: "B"}
	require.NoError(t, s.CreateRestaurant(ctx, a))
	require.NoError(t, s.CreateRestaurant(ctx, b))

	got, err := s.GetRestaurantsByIDs(ctx, []string{a.ID, b.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	none, err := s.GetRestaurantsByIDs(ctx, nil)
	assert.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteSearchCache(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	fresh := time.Now().UTC().Add(24 * time.Hour)
	stale := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, s.PutCachedSearch(ctx, model.CachedSearch{
		QueryHash:  "hash-fresh",
		Query:      "smoke shack austin",
		EntityType: model.EntityRestaurant,
		Results:    []model.SearchResultItem{{Title: "Smoke Shack", URL: "https://example.com", Score: 0.9}},
		FetchedAt:  time.Now().UTC(),
		ExpiresAt:  &fresh,
	}))
	require.NoError(t, s.PutCachedSearch(ctx, model.CachedSearch{
		QueryHash:  "hash-stale",
		Query:      "old query",
		EntityType: model.EntityStatus,
		Results:    []model.SearchResultItem{},
		FetchedAt:  time.Now().UTC().Add(-8 * 24 * time.Hour),
		ExpiresAt:  &stale,
	}))

	hit, err := s.GetCachedSearch(ctx, "hash-fresh")
	require.NoError(t, err)
	require.NotNil(t, hit)
	require.Len(t, hit.Results, 1)
	assert.Equal(t, "Smoke Shack", hit.Results[0].Title)

	miss, err := s.GetCachedSearch(ctx, "hash-stale")
	require.NoError(t, err)
	assert.Nil(t, miss, "expired rows do not count as hits")

	pruned, err := s.PruneExpiredSearches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	pruned, err = s.PruneExpiredSearches(ctx)
	require.NoError(t, err)
	assert.Zero(t, pruned)
}

func TestSQLiteImportRestaurantsUpsertsOnSlug(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	n, err := s.ImportRestaurants(ctx, []model.Restaurant{
		{Slug: "duke-s-diner-tulsa", Name: "Duke's Diner", City: "Tulsa", State: "OK", Cuisines: []string{"bbq"}},
		{Slug: "pho-haven-boise", Name: "Pho Haven", City: "Boise", State: "ID", Status: model.StatusOpen},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Re-import with a corrected name keeps the same row.
	_, err = s.ImportRestaurants(ctx, []model.Restaurant{
		{Slug: "duke-s-diner-tulsa", Name: "Duke's Diner & Grill", City: "Tulsa", State: "OK"},
	})
	require.NoError(t, err)

	count, err := s.CountRestaurants(ctx, RestaurantCriteria{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	r, err := s.GetRestaurantBySlug(ctx, "duke-s-diner-tulsa")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "Duke's Diner & Grill", r.Name)
	assert.Equal(t, model.StatusUnknown, r.Status)
	assert.Equal(t, model.EnrichmentPending, r.EnrichmentStatus)
}

func TestSQLiteImportEpisodes(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	air := time.Date(2010, 4, 12, 0, 0, 0, 0, time.UTC)
	n, err := s.ImportEpisodes(ctx, []model.Episode{
		{Slug: "s01e01-pilot", Title: "Pilot", Season: 1, EpisodeNumber: 1, AirDate: &air},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	e, err := s.GetEpisodeBySlug(ctx, "s01e01-pilot")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "Pilot", e.Title)
	assert.Equal(t, 1, e.Season)
}
