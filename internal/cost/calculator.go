package cost

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/flavortown/enrich-cli/internal/model"
)

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Tavily    TavilyRate           `yaml:"tavily" mapstructure:"tavily"`
	Places    PlacesRate           `yaml:"places" mapstructure:"places"`
}

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// TavilyRate holds web search pricing.
type TavilyRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// PlacesRate holds per-operation Google Places pricing.
type PlacesRate struct {
	TextSearch float64 `yaml:"text_search" mapstructure:"text_search"`
	Details    float64 `yaml:"details" mapstructure:"details"`
	Photo      float64 `yaml:"photo" mapstructure:"photo"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Completion computes the cost of a completion call for a known model.
// Unknown models (including the free local model) cost 0.
func (c *Calculator) Completion(modelID string, usage model.TokenUsage) float64 {
	rate, ok := c.rates.Anthropic[modelID]
	if !ok {
		return 0
	}
	inCost := (float64(usage.Prompt) / 1e6) * rate.Input
	outCost := (float64(usage.Completion) / 1e6) * rate.Output
	return inCost + outCost
}

// CompletionTokens computes the cost of a raw token count against a model,
// splitting tokens between input and output using the model's blended
// average. Used for step-level accounting where only a total is known.
func (c *Calculator) CompletionTokens(modelID string, tokens int) float64 {
	rate, ok := c.rates.Anthropic[modelID]
	if !ok {
		return 0
	}
	blended := (rate.Input + rate.Output) / 2
	return (float64(tokens) / 1e6) * blended
}

// SearchQuery returns the flat cost per web search query.
func (c *Calculator) SearchQuery() float64 {
	return c.rates.Tavily.PerQuery
}

// PlacesOp returns the cost of one Places operation by type.
func (c *Calculator) PlacesOp(op string) float64 {
	switch op {
	case "text_search":
		return c.rates.Places.TextSearch
	case "details":
		return c.rates.Places.Details
	case "photo":
		return c.rates.Places.Photo
	default:
		return 0
	}
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		Tavily: TavilyRate{PerQuery: 0.008},
		Places: PlacesRate{TextSearch: 0.032, Details: 0.017, Photo: 0.007},
	}
}

// LoadRates reads a rates override file, falling back to defaults for any
// provider section the file omits.
func LoadRates(path string) (Rates, error) {
	rates := DefaultRates()

	data, err := os.ReadFile(path)
	if err != nil {
		return rates, eris.Wrap(err, "cost: read rates file")
	}

	var override Rates
	if err := yaml.Unmarshal(data, &override); err != nil {
		return rates, eris.Wrap(err, "cost: parse rates file")
	}

	if len(override.Anthropic) > 0 {
		rates.Anthropic = override.Anthropic
	}
	if override.Tavily.PerQuery > 0 {
		rates.Tavily = override.Tavily
	}
	if override.Places.TextSearch > 0 || override.Places.Details > 0 || override.Places.Photo > 0 {
		rates.Places = override.Places
	}
	return rates, nil
}
