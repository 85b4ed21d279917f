package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultLocalBaseURL = "http://localhost:11434/v1"

// LocalClient is an OpenAI-compatible chat client for a locally hosted
// model endpoint. Calls are free, so no cost accounting applies.
type LocalClient struct {
	baseURL string
	model   string
	http    *http.Client
}

// LocalOption configures the local client.
type LocalOption func(*LocalClient)

// WithLocalBaseURL overrides the default endpoint base URL.
func WithLocalBaseURL(url string) LocalOption {
	return func(c *LocalClient) {
		c.baseURL = url
	}
}

// WithLocalHTTPClient overrides the default http.Client.
func WithLocalHTTPClient(hc *http.Client) LocalOption {
	return func(c *LocalClient) {
		c.http = hc
	}
}

// NewLocal creates a client for an OpenAI-compatible local endpoint.
func NewLocal(model string, opts ...LocalOption) *LocalClient {
	c := &LocalClient{
		baseURL: defaultLocalBaseURL,
		model:   model,
		http: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ModelID returns the configured local model identifier.
func (c *LocalClient) ModelID() string {
	return c.model
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   *int64        `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *LocalClient) Complete(ctx context.Context, req Request) (*Response, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}

	body := chatRequest{
		Model:       modelID,
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = &req.MaxTokens
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.User})

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "llm: marshal local request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "llm: create local request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "llm: send local request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "llm: read local response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("llm: local endpoint status %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "llm: unmarshal local response")
	}
	if len(result.Choices) == 0 {
		return nil, eris.New("llm: local response has no choices")
	}

	return &Response{
		Text:  result.Choices[0].Message.Content,
		Model: result.Model,
		Usage: Usage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
		},
	}, nil
}

// Probe checks endpoint liveness with a short timeout. Used to decide
// whether the creative tier can run locally.
func (c *LocalClient) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	return resp.StatusCode == http.StatusOK
}
