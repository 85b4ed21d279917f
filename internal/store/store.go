// Package store provides the persistence layer for the directory:
// restaurants, episodes, cities and the search cache.
package store

import (
	"context"
	"time"

	"github.com/flavortown/enrich-cli/internal/model"
)

// RestaurantCriteria narrows restaurant listings for sweeps and refreshes.
// Zero values mean "no constraint".
type RestaurantCriteria struct {
	Status            model.RestaurantStatus `json:"status,omitempty"`
	City              string                 `json:"city,omitempty"`
	State             string                 `json:"state,omitempty"`
	NotVerifiedInDays int                    `json:"not_verified_in_days,omitempty"`
	NotEnrichedInDays int                    `json:"not_enriched_in_days,omitempty"`
	Limit             int                    `json:"limit,omitempty"`
	Offset            int                    `json:"offset,omitempty"`
}

// Store is the persistence interface consumed by workflows and services.
// Methods return (value, error); a missing row is (nil, nil), never an
// error, so callers can distinguish absence from failure.
type Store interface {
	// Restaurants
	GetRestaurantByID(ctx context.Context, id string) (*model.Restaurant, error)
	GetRestaurantBySlug(ctx context.Context, slug string) (*model.Restaurant, error)
	GetRestaurantsByIDs(ctx context.Context, ids []string) ([]model.Restaurant, error)
	ListRestaurants(ctx context.Context, criteria RestaurantCriteria) ([]model.Restaurant, error)
	CountRestaurants(ctx context.Context, criteria RestaurantCriteria) (int, error)
	CreateRestaurant(ctx context.Context, r *model.Restaurant) error
	UpdateRestaurantContent(ctx context.Context, id string, content model.RestaurantContent) error
	UpdateRestaurantStatus(ctx context.Context, id string, status model.RestaurantStatus, verifiedAt time.Time) error
	UpdateRestaurantContact(ctx context.Context, id string, contact model.ContactInfo) error
	SetEnrichmentStatus(ctx context.Context, id string, status model.EnrichmentStatus, enrichedAt *time.Time) error

	// Bulk import. Rows are upserted on slug, so re-importing the same
	// seed is idempotent. Returns rows affected.
	ImportRestaurants(ctx context.Context, restaurants []model.Restaurant) (int64, error)
	ImportEpisodes(ctx context.Context, episodes []model.Episode) (int64, error)

	// Episodes
	GetEpisodeBySlug(ctx context.Context, slug string) (*model.Episode, error)
	ListEpisodesMissingMeta(ctx context.Context, limit int) ([]model.Episode, error)
	UpdateEpisodeDescriptions(ctx context.Context, id, description, metaDescription string) error

	// Cities
	GetCityBySlug(ctx context.Context, slug string) (*model.City, error)
	UpdateCityDescription(ctx context.Context, id, description string) error

	// Search cache
	GetCachedSearch(ctx context.Context, queryHash string) (*model.CachedSearch, error)
	PutCachedSearch(ctx context.Context, row model.CachedSearch) error
	PruneExpiredSearches(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
