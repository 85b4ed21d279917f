package model

import "time"

// RestaurantStatus represents the operating status of a restaurant.
type RestaurantStatus string

const (
	StatusOpen    RestaurantStatus = "open"
	StatusClosed  RestaurantStatus = "closed"
	StatusUnknown RestaurantStatus = "unknown"
)

// EnrichmentStatus tracks where a restaurant is in the enrichment lifecycle.
type EnrichmentStatus string

const (
	EnrichmentPending    EnrichmentStatus = "pending"
	EnrichmentInProgress EnrichmentStatus = "in_progress"
	EnrichmentCompleted  EnrichmentStatus = "completed"
	EnrichmentFailed     EnrichmentStatus = "failed"
)

// PriceTier buckets a restaurant's typical check size.
type PriceTier string

const (
	PriceBudget   PriceTier = "$"
	PriceModerate PriceTier = "$$"
	PriceUpscale  PriceTier = "$$$"
)

// Restaurant is a directory record as read from and written to the store.
type Restaurant struct {
	ID               string           `json:"id"`
	Slug             string           `json:"slug"`
	Name             string           `json:"name"`
	City             string           `json:"city"`
	State            string           `json:"state"`
	Address          string           `json:"address,omitempty"`
	Status           RestaurantStatus `json:"status"`
	EnrichmentStatus EnrichmentStatus `json:"enrichment_status"`
	LastEnrichedAt   *time.Time       `json:"last_enriched_at,omitempty"`
	LastVerifiedAt   *time.Time       `json:"last_verified_at,omitempty"`

	// Content fields.
	Description string    `json:"description,omitempty"`
	Cuisines    []string  `json:"cuisines,omitempty"`
	PriceTier   PriceTier `json:"price_tier,omitempty"`
	GuyQuote    string    `json:"guy_quote,omitempty"`
	Dishes      []string  `json:"dishes,omitempty"`

	// Contact fields.
	Phone         string  `json:"phone,omitempty"`
	Website       string  `json:"website,omitempty"`
	GooglePlaceID string  `json:"google_place_id,omitempty"`
	Rating        float64 `json:"rating,omitempty"`
	ReviewCount   int     `json:"review_count,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RestaurantContent is the enrichment payload persisted after a successful
// content synthesis.
type RestaurantContent struct {
	Description string    `json:"description"`
	Cuisines    []string  `json:"cuisines"`
	PriceTier   PriceTier `json:"price_tier"`
	GuyQuote    string    `json:"guy_quote,omitempty"`
	Dishes      []string  `json:"dishes,omitempty"`
}

// ContactInfo holds authoritative contact fields sourced from Places.
type ContactInfo struct {
	Phone         string  `json:"phone,omitempty"`
	Website       string  `json:"website,omitempty"`
	GooglePlaceID string  `json:"google_place_id,omitempty"`
	Rating        float64 `json:"rating,omitempty"`
	ReviewCount   int     `json:"review_count,omitempty"`
}

// StatusChange records one persisted status transition from a sweep.
type StatusChange struct {
	RestaurantID string           `json:"restaurant_id"`
	Slug         string           `json:"slug"`
	OldStatus    RestaurantStatus `json:"old_status"`
	NewStatus    RestaurantStatus `json:"new_status"`
	Confidence   float64          `json:"confidence"`
	Source       string           `json:"source"`
}
