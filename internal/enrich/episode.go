package enrich

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/flavortown/enrich-cli/internal/model"
	"github.com/flavortown/enrich-cli/internal/search"
	"github.com/flavortown/enrich-cli/internal/synthesis"
)

// EpisodeResult is the outcome of an episode description call.
type EpisodeResult struct {
	Description     string
	MetaDescription string
	TokensUsed      model.TokenUsage
	Success         bool
	Err             error
}

// EpisodeService writes episode descriptions and SEO meta descriptions.
type EpisodeService struct {
	search Searcher
	synth  *synthesis.Synthesizer
}

// NewEpisodeService creates an EpisodeService.
func NewEpisodeService(searcher Searcher, synth *synthesis.Synthesizer) *EpisodeService {
	return &EpisodeService{search: searcher, synth: synth}
}

type episodePayload struct {
	Description     string `json:"description" validate:"required,min=100,max=1000"`
	MetaDescription string `json:"meta_description" validate:"required,min=140,max=160"`
}

const episodeSystemPrompt = `You write TV episode descriptions for a restaurant directory. Reply with a single JSON object:
{"description": string (100-1000 chars, the restaurants visited and what was eaten),
 "meta_description": string (strictly 140-160 chars for search engines)}
The meta_description length limit is hard. JSON only.`

// Describe generates a description and meta description for one episode.
func (s *EpisodeService) Describe(ctx context.Context, ep *model.Episode) EpisodeResult {
	title := Sanitize(ep.Title, 150)

	query := fmt.Sprintf("diners drive-ins dives episode %s season %d restaurants", title, ep.Season)
	resp, err := s.search.Search(ctx, query, search.Options{
		EntityType: model.EntityEpisode,
		EntityID:   ep.ID,
		EntityName: ep.Title,
		MaxResults: 5,
	})
	if err != nil {
		return EpisodeResult{Err: eris.Wrap(err, "enrich: episode search")}
	}

	sources := search.CombineResultsCompact(resp.Results, contextBudget)
	if sources == "" {
		sources = "(no web sources found)"
	}

	prompt := fmt.Sprintf("Episode: %s (season %d, episode %d)\n\nSources:\n%s",
		title, ep.Season, ep.EpisodeNumber, sources)
	res := synthesis.Synthesize[episodePayload](ctx, s.synth, synthesis.Request{
		Tier:      synthesis.TierAccuracy,
		System:    episodeSystemPrompt,
		Prompt:    prompt,
		MaxTokens: 1024,
	})
	if !res.Success {
		return EpisodeResult{
			TokensUsed: res.Usage,
			Err:        eris.Wrap(res.Err, "enrich: episode synthesis"),
		}
	}

	return EpisodeResult{
		Description:     res.Data.Description,
		MetaDescription: res.Data.MetaDescription,
		TokensUsed:      res.Usage,
		Success:         true,
	}
}
