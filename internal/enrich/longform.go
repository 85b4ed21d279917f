package enrich

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/flavortown/enrich-cli/internal/model"
	"github.com/flavortown/enrich-cli/internal/search"
	"github.com/flavortown/enrich-cli/internal/synthesis"
)

// LongformResult is the outcome of a long-form copy generation call.
type LongformResult struct {
	Title      string
	Body       string
	TokensUsed model.TokenUsage
	IsLocal    bool
	Success    bool
	Err        error
}

// LongformService generates long-form editorial copy for restaurant and
// city pages. It runs on the creative tier, so a reachable local model
// takes the call for free.
type LongformService struct {
	search Searcher
	synth  *synthesis.Synthesizer
}

// NewLongformService creates a LongformService.
func NewLongformService(searcher Searcher, synth *synthesis.Synthesizer) *LongformService {
	return &LongformService{search: searcher, synth: synth}
}

type longformPayload struct {
	Title string `json:"title" validate:"required,max=120"`
	Body  string `json:"body" validate:"required,min=400"`
}

const longformSystemPrompt = `You write long-form editorial copy for a restaurant directory. Reply with a single JSON object:
{"title": string (max 120 chars),
 "body": string (at least 400 chars of flowing prose, no markdown headers)}
Ground every claim in the provided sources. JSON only.`

// Generate writes a long-form piece about one restaurant.
func (s *LongformService) Generate(ctx context.Context, r *model.Restaurant) LongformResult {
	name := Sanitize(r.Name, 120)
	city := Sanitize(r.City, 60)
	state := Sanitize(r.State, 30)

	query := fmt.Sprintf("%s restaurant %s %s history story signature dishes", name, city, state)
	resp, err := s.search.Search(ctx, query, search.Options{
		EntityType: model.EntityRestaurant,
		EntityID:   r.ID,
		EntityName: r.Name,
		MaxResults: 5,
	})
	if err != nil {
		return LongformResult{Err: eris.Wrap(err, "enrich: longform search")}
	}

	sources := search.CombineResultsCompact(resp.Results, contextBudget)
	if sources == "" {
		sources = "(no web sources found)"
	}

	existing := Sanitize(r.Description, 500)
	prompt := fmt.Sprintf("Restaurant: %s in %s, %s\nExisting blurb: %s\n\nSources:\n%s",
		name, city, state, existing, sources)
	res := synthesis.Synthesize[longformPayload](ctx, s.synth, synthesis.Request{
		Tier:      synthesis.TierCreative,
		System:    longformSystemPrompt,
		Prompt:    prompt,
		MaxTokens: 2048,
		Discount:  true,
	})
	if !res.Success {
		return LongformResult{
			TokensUsed: res.Usage,
			Err:        eris.Wrap(res.Err, "enrich: longform synthesis"),
		}
	}

	return LongformResult{
		Title:      res.Data.Title,
		Body:       res.Data.Body,
		TokensUsed: res.Usage,
		IsLocal:    res.IsLocal,
		Success:    true,
	}
}

// GenerateCity writes a long-form piece about a city's restaurant scene.
func (s *LongformService) GenerateCity(ctx context.Context, c *model.City) LongformResult {
	name := Sanitize(c.Name, 60)
	state := Sanitize(c.State, 30)

	query := fmt.Sprintf("%s %s food scene famous restaurants diners", name, state)
	resp, err := s.search.Search(ctx, query, search.Options{
		EntityType: model.EntityCity,
		EntityID:   c.ID,
		EntityName: c.Name,
		MaxResults: 5,
	})
	if err != nil {
		return LongformResult{Err: eris.Wrap(err, "enrich: city search")}
	}

	sources := search.CombineResultsCompact(resp.Results, contextBudget)
	if sources == "" {
		sources = "(no web sources found)"
	}

	prompt := fmt.Sprintf("City: %s, %s\n\nSources:\n%s", name, state, sources)
	res := synthesis.Synthesize[longformPayload](ctx, s.synth, synthesis.Request{
		Tier:      synthesis.TierCreative,
		System:    longformSystemPrompt,
		Prompt:    prompt,
		MaxTokens: 2048,
		Discount:  true,
	})
	if !res.Success {
		return LongformResult{
			TokensUsed: res.Usage,
			Err:        eris.Wrap(res.Err, "enrich: city synthesis"),
		}
	}

	return LongformResult{
		Title:      res.Data.Title,
		Body:       res.Data.Body,
		TokensUsed: res.Usage,
		IsLocal:    res.IsLocal,
		Success:    true,
	}
}
