package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/flavortown/enrich-cli/internal/model"
	"github.com/flavortown/enrich-cli/internal/search"
	"github.com/flavortown/enrich-cli/internal/synthesis"
	"github.com/flavortown/enrich-cli/pkg/places"
)

// Status sources, recorded with every persisted status change.
const (
	SourceGooglePlaces = "google_places"
	SourceWebSearch    = "web_search"
)

const placesConfidence = 0.95

// StatusResult is the outcome of a status verification. Success means the
// verification ran to completion; an unknown status with low confidence is
// still a successful verification.
type StatusResult struct {
	Status     model.RestaurantStatus
	Confidence float64
	Source     string
	TokensUsed model.TokenUsage
	Success    bool
	Err        error
}

// StatusService verifies whether a restaurant is still operating. Places
// business status takes precedence; the search+LLM path only runs when
// Places is unavailable or inconclusive.
type StatusService struct {
	places places.Client
	search Searcher
	synth  *synthesis.Synthesizer
}

// NewStatusService creates a StatusService. The places client may be nil,
// in which case every verification takes the search path.
func NewStatusService(pl places.Client, searcher Searcher, synth *synthesis.Synthesizer) *StatusService {
	return &StatusService{places: pl, search: searcher, synth: synth}
}

// Verify determines the restaurant's operating status.
func (s *StatusService) Verify(ctx context.Context, r *model.Restaurant) StatusResult {
	if s.places != nil && r.GooglePlaceID != "" {
		res, ok := s.verifyViaPlaces(ctx, r)
		if ok {
			return res
		}
	}
	return s.verifyViaSearch(ctx, r)
}

// verifyViaPlaces returns (result, true) when Places gave a conclusive
// answer. Transport errors and inconclusive statuses fall through to the
// search path.
func (s *StatusService) verifyViaPlaces(ctx context.Context, r *model.Restaurant) (StatusResult, bool) {
	place, err := s.places.GetPlaceDetails(ctx, r.GooglePlaceID)
	if err != nil {
		zap.L().Warn("places status lookup failed, falling back to search",
			zap.String("slug", r.Slug),
			zap.Error(err))
		return StatusResult{}, false
	}
	if place == nil {
		return StatusResult{}, false
	}

	switch place.BusinessStatus {
	case places.BusinessOperational:
		return StatusResult{
			Status:     model.StatusOpen,
			Confidence: placesConfidence,
			Source:     SourceGooglePlaces,
			Success:    true,
		}, true
	case places.BusinessClosedPermanently, places.BusinessClosedTemporarily:
		return StatusResult{
			Status:     model.StatusClosed,
			Confidence: placesConfidence,
			Source:     SourceGooglePlaces,
			Success:    true,
		}, true
	}
	return StatusResult{}, false
}

type statusPayload struct {
	Status     string  `json:"status" validate:"required,oneof=open closed unknown"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	Reasoning  string  `json:"reasoning"`
}

const statusSystemPrompt = `You determine whether a restaurant is still operating from web search results. Reply with a single JSON object:
{"status": "open" | "closed" | "unknown",
 "confidence": number between 0 and 1,
 "reasoning": one sentence citing the evidence}
Say "unknown" with low confidence when the sources are stale or contradictory. JSON only.`

func (s *StatusService) verifyViaSearch(ctx context.Context, r *model.Restaurant) StatusResult {
	name := Sanitize(r.Name, 120)
	city := Sanitize(r.City, 60)
	state := Sanitize(r.State, 30)

	query := fmt.Sprintf("is %s %s %s still open %d", name, city, state, time.Now().Year())
	resp, err := s.search.Search(ctx, query, search.Options{
		EntityType: model.EntityStatus,
		EntityID:   r.ID,
		EntityName: r.Name,
		MaxResults: 5,
	})
	if err != nil {
		return StatusResult{Err: eris.Wrap(err, "enrich: status search")}
	}

	sources := search.CombineResultsCompact(resp.Results, contextBudget)
	if sources == "" {
		// No web evidence at all is a conclusive "we cannot tell", not an
		// error.
		return StatusResult{
			Status:     model.StatusUnknown,
			Confidence: 0,
			Source:     SourceWebSearch,
			Success:    true,
		}
	}

	prompt := fmt.Sprintf("Restaurant: %s in %s, %s\n\nSearch results:\n%s", name, city, state, sources)
	res := synthesis.Synthesize[statusPayload](ctx, s.synth, synthesis.Request{
		Tier:      synthesis.TierAccuracy,
		System:    statusSystemPrompt,
		Prompt:    prompt,
		MaxTokens: 512,
	})
	if !res.Success {
		return StatusResult{
			TokensUsed: res.Usage,
			Err:        eris.Wrap(res.Err, "enrich: status synthesis"),
		}
	}

	return StatusResult{
		Status:     model.RestaurantStatus(res.Data.Status),
		Confidence: res.Data.Confidence,
		Source:     SourceWebSearch,
		TokensUsed: res.Usage,
		Success:    true,
	}
}
