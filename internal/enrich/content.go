package enrich

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/flavortown/enrich-cli/internal/model"
	"github.com/flavortown/enrich-cli/internal/search"
	"github.com/flavortown/enrich-cli/internal/synthesis"
)

// Searcher is the slice of the search client the services need.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) (*model.SearchResponse, error)
}

// contextBudget caps how much combined search content goes into a prompt.
const contextBudget = 4000

// ContentResult is the outcome of a content enrichment call. TokensUsed is
// populated on every path so callers can aggregate cost regardless of
// outcome.
type ContentResult struct {
	Content    *model.RestaurantContent
	TokensUsed model.TokenUsage
	Success    bool
	Err        error
}

// ContentService synthesizes directory content for one restaurant from web
// search context.
type ContentService struct {
	search Searcher
	synth  *synthesis.Synthesizer
}

// NewContentService creates a ContentService.
func NewContentService(searcher Searcher, synth *synthesis.Synthesizer) *ContentService {
	return &ContentService{search: searcher, synth: synth}
}

type contentPayload struct {
	Description string   `json:"description" validate:"required,min=50,max=600"`
	Cuisines    []string `json:"cuisines" validate:"required,min=1,max=3"`
	PriceTier   string   `json:"price_tier" validate:"required,oneof=$ $$ $$$"`
	GuyQuote    string   `json:"guy_quote"`
	Dishes      []string `json:"dishes" validate:"max=5"`
}

const contentSystemPrompt = `You write restaurant directory entries. Reply with a single JSON object:
{"description": string (50-600 chars, factual, no hype),
 "cuisines": [1-3 lowercase cuisine tags],
 "price_tier": "$" | "$$" | "$$$",
 "guy_quote": string (a short memorable quote if one appears in the sources, else empty),
 "dishes": [up to 5 signature dishes]}
Use only facts present in the provided sources. No markdown, JSON only.`

// Enrich searches the web for a restaurant and synthesizes its directory
// content fields.
func (s *ContentService) Enrich(ctx context.Context, r *model.Restaurant) ContentResult {
	name := Sanitize(r.Name, 120)
	city := Sanitize(r.City, 60)
	state := Sanitize(r.State, 30)

	query := fmt.Sprintf("%s restaurant %s %s menu reviews", name, city, state)
	resp, err := s.search.Search(ctx, query, search.Options{
		EntityType: model.EntityRestaurant,
		EntityID:   r.ID,
		EntityName: r.Name,
		MaxResults: 5,
	})
	if err != nil {
		return ContentResult{Err: eris.Wrap(err, "enrich: content search")}
	}

	sources := search.CombineResultsCompact(resp.Results, contextBudget)
	if sources == "" {
		sources = "(no web sources found)"
	}

	prompt := fmt.Sprintf("Restaurant: %s in %s, %s\n\nSources:\n%s", name, city, state, sources)
	res := synthesis.Synthesize[contentPayload](ctx, s.synth, synthesis.Request{
		Tier:      synthesis.TierAccuracy,
		System:    contentSystemPrompt,
		Prompt:    prompt,
		MaxTokens: 1024,
	})
	if !res.Success {
		return ContentResult{
			TokensUsed: res.Usage,
			Err:        eris.Wrap(res.Err, "enrich: content synthesis"),
		}
	}

	zap.L().Info("content enriched",
		zap.String("slug", r.Slug),
		zap.String("model", res.Model),
		zap.Int("tokens", res.Usage.Total))

	return ContentResult{
		Content: &model.RestaurantContent{
			Description: res.Data.Description,
			Cuisines:    res.Data.Cuisines,
			PriceTier:   model.PriceTier(res.Data.PriceTier),
			GuyQuote:    res.Data.GuyQuote,
			Dishes:      res.Data.Dishes,
		},
		TokensUsed: res.Usage,
		Success:    true,
	}
}
