package model

import "time"

// EntityType classifies what a search was issued for. It selects the
// cache TTL and shapes the query.
type EntityType string

const (
	EntityRestaurant EntityType = "restaurant"
	EntityEpisode    EntityType = "episode"
	EntityStatus     EntityType = "status"
	EntityCity       EntityType = "city"
)

// CacheTTL returns how long search results for this entity type stay
// fresh. Status checks decay fast; editorial content barely moves.
func (e EntityType) CacheTTL() time.Duration {
	switch e {
	case EntityEpisode:
		return 180 * 24 * time.Hour
	case EntityStatus:
		return 7 * 24 * time.Hour
	default:
		return 90 * 24 * time.Hour
	}
}

// SearchResultItem is one hit from the web search provider.
type SearchResultItem struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// SearchResponse is the outcome of a cached search call.
type SearchResponse struct {
	Query     string             `json:"query"`
	QueryHash string             `json:"query_hash"`
	Results   []SearchResultItem `json:"results"`
	FromCache bool               `json:"from_cache"`
	CachedAt  *time.Time         `json:"cached_at,omitempty"`
}

// CachedSearch is a persisted search cache row. A row is usable only
// while now < ExpiresAt.
type CachedSearch struct {
	ID         string             `json:"id"`
	QueryHash  string             `json:"query_hash"`
	Query      string             `json:"query"`
	EntityType EntityType         `json:"entity_type"`
	EntityID   string             `json:"entity_id,omitempty"`
	EntityName string             `json:"entity_name,omitempty"`
	Results    []SearchResultItem `json:"results"`
	FetchedAt  time.Time          `json:"fetched_at"`
	ExpiresAt  *time.Time         `json:"expires_at,omitempty"`
}
