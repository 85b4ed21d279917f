package search

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flavortown/enrich-cli/internal/model"
	"github.com/flavortown/enrich-cli/internal/ratelimit"
	"github.com/flavortown/enrich-cli/pkg/tavily"
)

type memCache struct {
	mu   sync.Mutex
	rows map[string]model.CachedSearch
}

func newMemCache() *memCache {
	return &memCache{rows: make(map[string]model.CachedSearch)}
}

func (m *memCache) GetCachedSearch(_ context.Context, queryHash string) (*model.CachedSearch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[queryHash]
	if !ok {
		return nil, nil
	}
	if row.ExpiresAt != nil && !row.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return &row, nil
}

func (m *memCache) PutCachedSearch(_ context.Context, row model.CachedSearch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[row.QueryHash] = row
	return nil
}

type fakeProvider struct {
	calls   atomic.Int32
	results []tavily.Result
	err     error
}

func (f *fakeProvider) Search(_ context.Context, req tavily.SearchRequest) (*tavily.SearchResponse, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &tavily.SearchResponse{Query: req.Query, Results: f.results}, nil
}

func looseLimiter() *ratelimit.Limiter {
	return ratelimit.New("test", 1000, time.Second, 10)
}

func TestSearchCachesSecondCall(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{results: []tavily.Result{
		{Title: "Smoke Shack", URL: "https://example.com", Content: "bbq joint", Score: 0.9},
	}}
	client := NewClient(provider, newMemCache(), looseLimiter())
	ctx := context.Background()

	first, err := client.Search(ctx, "smoke shack austin", Options{EntityType: model.EntityRestaurant})
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	require.Len(t, first.Results, 1)

	second, err := client.Search(ctx, "smoke shack austin", Options{EntityType: model.EntityRestaurant})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.NotNil(t, second.CachedAt)
	assert.Equal(t, first.Results, second.Results)

	assert.Equal(t, int32(1), provider.calls.Load(), "cache hit must not call the provider")
}

func TestSearchHashNormalizesQuery(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{results: []tavily.Result{{Title: "t", URL: "u", Content: "c"}}}
	client := NewClient(provider, newMemCache(), looseLimiter())
	ctx := context.Background()

	_, err := client.Search(ctx, "  Duke's Diner Tulsa  ", Options{})
	require.NoError(t, err)

	second, err := client.Search(ctx, "duke's diner tulsa", Options{})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestSearchExpiredRowMisses(t *testing.T) {
	t.Parallel()

	cache := newMemCache()
	past := time.Now().Add(-time.Hour)
	hash := QueryHash("stale query")
	cache.rows[hash] = model.CachedSearch{
		QueryHash: hash,
		Query:     "stale query",
		Results:   []model.SearchResultItem{{Title: "old"}},
		FetchedAt: past.Add(-7 * 24 * time.Hour),
		ExpiresAt: &past,
	}

	provider := &fakeProvider{results: []tavily.Result{{Title: "fresh", URL: "u", Content: "c"}}}
	client := NewClient(provider, cache, looseLimiter())

	resp, err := client.Search(context.Background(), "stale query", Options{EntityType: model.EntityStatus})
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "fresh", resp.Results[0].Title)
	assert.Equal(t, int32(1), provider.calls.Load())

	// Miss repopulated the cache with a status-TTL row.
	row := cache.rows[hash]
	require.NotNil(t, row.ExpiresAt)
	ttl := time.Until(*row.ExpiresAt)
	assert.InDelta(t, (7 * 24 * time.Hour).Hours(), ttl.Hours(), 1)
}

func TestSearchEmptyQuery(t *testing.T) {
	t.Parallel()

	client := NewClient(&fakeProvider{}, newMemCache(), looseLimiter())
	_, err := client.Search(context.Background(), "   ", Options{})
	assert.Error(t, err)
}

func TestQueryHashStable(t *testing.T) {
	t.Parallel()
	assert.Equal(t, QueryHash("Duke's Diner"), QueryHash("  duke's diner "))
	assert.NotEqual(t, QueryHash("a"), QueryHash("b"))
	assert.Len(t, QueryHash("anything"), 64)
}

func TestCombineResultsCompact(t *testing.T) {
	t.Parallel()

	long := func(n int) string { return strings.Repeat("x", n) }

	t.Run("stops before overflowing entry", func(t *testing.T) {
		t.Parallel()
		// Each entry renders to exactly 100 chars: [title(20)]\ncontent(77).
		results := []model.SearchResultItem{
			{Title: long(20), Content: long(77)},
			{Title: long(20), Content: long(77)},
		}
		out := CombineResultsCompact(results, 150)
		assert.Len(t, out, 100, "only the first entry fits a 150 char budget")
	})

	t.Run("joins fitting entries", func(t *testing.T) {
		t.Parallel()
		results := []model.SearchResultItem{
			{Title: "One", Content: "first"},
			{Title: "Two", Content: "second"},
		}
		out := CombineResultsCompact(results, 1000)
		assert.Equal(t, "[One]\nfirst\n\n[Two]\nsecond", out)
	})

	t.Run("empty inputs", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, CombineResultsCompact(nil, 100))
		assert.Empty(t, CombineResultsCompact([]model.SearchResultItem{{Title: "t", Content: "c"}}, 0))
	})

	t.Run("first entry too big yields empty", func(t *testing.T) {
		t.Parallel()
		out := CombineResultsCompact([]model.SearchResultItem{{Title: "t", Content: long(500)}}, 100)
		assert.Empty(t, out)
	})
}
