package model

// TokenUsage tracks prompt and completion token consumption.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Add accumulates another usage into this one, keeping Total consistent.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Prompt += other.Prompt
	u.Completion += other.Completion
	u.Total = u.Prompt + u.Completion
}

// NewTokenUsage builds a usage with Total derived from its parts.
func NewTokenUsage(prompt, completion int) TokenUsage {
	return TokenUsage{Prompt: prompt, Completion: completion, Total: prompt + completion}
}

// CostEstimate is a pre-flight sizing of a workflow invocation. It is
// derived per run and never persisted.
type CostEstimate struct {
	EstimatedTokens int     `json:"estimated_tokens"`
	EstimatedUSD    float64 `json:"estimated_usd"`
	MaxTokens       int     `json:"max_tokens"`
	MaxUSD          float64 `json:"max_usd"`
}
