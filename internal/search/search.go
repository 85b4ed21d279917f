// Package search wraps the web search provider with a persistent
// content-addressed cache and rate limiting. Queries are hashed, cached
// rows carry a TTL keyed by what kind of entity the search was for, and
// provider calls only happen on a miss.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/flavortown/enrich-cli/internal/model"
	"github.com/flavortown/enrich-cli/internal/ratelimit"
	"github.com/flavortown/enrich-cli/pkg/tavily"
)

// Cache is the slice of the store the search client needs.
type Cache interface {
	GetCachedSearch(ctx context.Context, queryHash string) (*model.CachedSearch, error)
	PutCachedSearch(ctx context.Context, row model.CachedSearch) error
}

// Options shapes a single search call. EntityType selects the cache TTL.
type Options struct {
	EntityType model.EntityType
	EntityID   string
	EntityName string
	MaxResults int
	Depth      string
}

// Client performs cached web searches.
type Client struct {
	provider tavily.Client
	cache    Cache
	limiter  *ratelimit.Limiter

	defaultDepth      string
	defaultMaxResults int
}

// NewClient creates a cached search client. A nil limiter defaults to the
// conservative search limiter.
func NewClient(provider tavily.Client, cache Cache, limiter *ratelimit.Limiter) *Client {
	if limiter == nil {
		limiter = ratelimit.ForSearch()
	}
	return &Client{provider: provider, cache: cache, limiter: limiter}
}

// SetDefaults sets the depth and result count applied when a call leaves
// them unset.
func (c *Client) SetDefaults(depth string, maxResults int) {
	c.defaultDepth = depth
	c.defaultMaxResults = maxResults
}

// QueryHash returns the cache key for a query: sha256 of the trimmed,
// lowercased text. Whitespace and case differences hit the same row.
func QueryHash(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:])
}

// Search runs a query through the cache. A fresh cached row is returned
// without touching the provider; a miss goes through the rate limiter,
// persists the results with the entity type's TTL and returns them.
func (c *Client) Search(ctx context.Context, query string, opts Options) (*model.SearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, eris.New("search: empty query")
	}
	if opts.EntityType == "" {
		opts.EntityType = model.EntityRestaurant
	}
	if opts.Depth == "" {
		opts.Depth = c.defaultDepth
	}
	if opts.MaxResults == 0 {
		opts.MaxResults = c.defaultMaxResults
	}

	hash := QueryHash(query)

	cached, err := c.cache.GetCachedSearch(ctx, hash)
	if err != nil {
		return nil, eris.Wrap(err, "search: cache lookup")
	}
	if cached != nil {
		zap.L().Debug("search cache hit",
			zap.String("query", query),
			zap.Time("fetched_at", cached.FetchedAt))
		fetchedAt := cached.FetchedAt
		return &model.SearchResponse{
			Query:     query,
			QueryHash: hash,
			Results:   cached.Results,
			FromCache: true,
			CachedAt:  &fetchedAt,
		}, nil
	}

	resp, err := ratelimit.DoVal(ctx, c.limiter, func(ctx context.Context) (*tavily.SearchResponse, error) {
		return c.provider.Search(ctx, tavily.SearchRequest{
			Query:       query,
			SearchDepth: opts.Depth,
			MaxResults:  opts.MaxResults,
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "search: provider query")
	}

	results := make([]model.SearchResultItem, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, model.SearchResultItem{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
			Score:   r.Score,
		})
	}

	now := time.Now().UTC()
	expires := now.Add(opts.EntityType.CacheTTL())
	if err := c.cache.PutCachedSearch(ctx, model.CachedSearch{
		QueryHash:  hash,
		Query:      query,
		EntityType: opts.EntityType,
		EntityID:   opts.EntityID,
		EntityName: opts.EntityName,
		Results:    results,
		FetchedAt:  now,
		ExpiresAt:  &expires,
	}); err != nil {
		// A write failure degrades to uncached behavior; the results are
		// still good.
		zap.L().Warn("search cache write failed", zap.Error(err))
	}

	return &model.SearchResponse{
		Query:     query,
		QueryHash: hash,
		Results:   results,
		FromCache: false,
	}, nil
}

// CombineResultsCompact renders results as "[title]\ncontent" blocks
// joined by blank lines, keeping the output under maxLen. An entry that
// would push past the budget is dropped along with everything after it;
// entries are never truncated mid-text.
func CombineResultsCompact(results []model.SearchResultItem, maxLen int) string {
	if maxLen <= 0 || len(results) == 0 {
		return ""
	}

	var b strings.Builder
	for _, r := range results {
		entry := "[" + r.Title + "]\n" + r.Content
		add := len(entry)
		if b.Len() > 0 {
			add += 2
		}
		if b.Len()+add > maxLen {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(entry)
	}
	return b.String()
}
