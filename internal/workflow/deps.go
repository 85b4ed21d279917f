package workflow

import (
	"context"
	"time"

	"github.com/flavortown/enrich-cli/internal/enrich"
	"github.com/flavortown/enrich-cli/internal/model"
	"github.com/flavortown/enrich-cli/internal/search"
)

// ContentEnricher produces directory content for one restaurant.
type ContentEnricher interface {
	Enrich(ctx context.Context, r *model.Restaurant) enrich.ContentResult
}

// StatusVerifier determines a restaurant's operating status.
type StatusVerifier interface {
	Verify(ctx context.Context, r *model.Restaurant) enrich.StatusResult
}

// Searcher mirrors the search client surface workflows use directly.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) (*model.SearchResponse, error)
}

// Default persistence gates shared by the workflows.
const (
	// DefaultMinConfidence is the minimum status confidence required
	// before a verified status is persisted.
	DefaultMinConfidence = 0.7

	// estTokensPerEnrichment sizes the pre-flight cost estimate for one
	// restaurant's content plus status synthesis.
	estTokensPerEnrichment = 4000

	// estTokensPerStatusCheck sizes the pre-flight cost estimate for one
	// status verification.
	estTokensPerStatusCheck = 1500
)

// Limits overrides a workflow's cost ceiling and deadline. Zero values
// keep the workflow's defaults.
type Limits struct {
	MaxCostUSD float64
	Timeout    time.Duration
}

func (l Limits) orDefaults(maxCost float64, timeout time.Duration) (float64, time.Duration) {
	if l.MaxCostUSD > 0 {
		maxCost = l.MaxCostUSD
	}
	if l.Timeout > 0 {
		timeout = l.Timeout
	}
	return maxCost, timeout
}
