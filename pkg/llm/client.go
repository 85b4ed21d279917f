// Package llm provides completion clients: an Anthropic-backed primary and
// an OpenAI-compatible local secondary behind one interface.
package llm

import "context"

// Client performs a single completion call against one backend.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is a provider-agnostic completion request.
type Request struct {
	Model       string
	System      string
	User        string
	MaxTokens   int64
	Temperature *float64

	// Discount requests the provider's reduced-priority tier when it has
	// one. Ignored by backends without tiered pricing.
	Discount bool
}

// Response is a provider-agnostic completion response.
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}
