// Package synthesis turns completion backends into validated structured
// output. A synthesis call picks a backend by tier, extracts the first JSON
// object from the model's reply, unmarshals it and validates the result
// struct, retrying the whole attempt on any failure.
package synthesis

import (
	"context"
	"encoding/json"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/flavortown/enrich-cli/internal/model"
	"github.com/flavortown/enrich-cli/internal/ratelimit"
	"github.com/flavortown/enrich-cli/internal/resilience"
	"github.com/flavortown/enrich-cli/pkg/llm"
)

// Tier selects a quality/cost tradeoff for a synthesis call.
type Tier string

const (
	// TierAccuracy always uses the primary provider.
	TierAccuracy Tier = "accuracy"

	// TierCreative prefers the local model when its endpoint is alive,
	// falling back to the primary provider otherwise.
	TierCreative Tier = "creative"
)

// Request describes one structured synthesis call.
type Request struct {
	Tier        Tier
	System      string
	Prompt      string
	MaxTokens   int64
	Temperature *float64

	// Discount requests the provider's reduced-priority tier for bulk
	// work that is not latency sensitive.
	Discount bool
}

// Result carries the outcome of a synthesis call. Data is non-nil exactly
// when Success is true; Usage covers every attempt, including failed ones.
// Model names the backend of the last attempt even when the call fails.
type Result[T any] struct {
	Data    *T
	Model   string
	IsLocal bool
	Usage   model.TokenUsage
	Success bool
	Err     error
}

// Synthesizer coordinates backend selection, retries and validation for
// structured completion calls.
type Synthesizer struct {
	primary      llm.Client
	primaryModel string
	local        *llm.LocalClient
	limiter      *ratelimit.Limiter
	policy       resilience.Policy
	validate     *validator.Validate
	slowAfter    time.Duration

	probeMu  sync.Mutex
	probeAt  time.Time
	probeOK  bool
	probeTTL time.Duration
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithLocal attaches a local secondary backend for the creative tier.
func WithLocal(local *llm.LocalClient) Option {
	return func(s *Synthesizer) {
		s.local = local
	}
}

// WithLimiter sets the admission limiter for primary provider calls.
// Local calls are never rate limited.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(s *Synthesizer) {
		s.limiter = l
	}
}

// WithPolicy overrides the retry policy.
func WithPolicy(p resilience.Policy) Option {
	return func(s *Synthesizer) {
		s.policy = p
	}
}

// WithProbeTTL sets how long a liveness probe result is reused.
func WithProbeTTL(ttl time.Duration) Option {
	return func(s *Synthesizer) {
		s.probeTTL = ttl
	}
}

// WithSlowThreshold sets the latency above which a completed call is
// logged as slow.
func WithSlowThreshold(d time.Duration) Option {
	return func(s *Synthesizer) {
		s.slowAfter = d
	}
}

// New creates a Synthesizer over the primary backend. primaryModel names
// the model used for primary calls.
func New(primary llm.Client, primaryModel string, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		primary:      primary,
		primaryModel: primaryModel,
		limiter:      ratelimit.ForCompletion(),
		policy:       resilience.DefaultPolicy(),
		validate:     validator.New(),
		slowAfter:    30 * time.Second,
		probeTTL:     time.Minute,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// localAlive reports whether the local endpoint answered a liveness probe
// recently. The probe result is cached for probeTTL.
func (s *Synthesizer) localAlive(ctx context.Context) bool {
	if s.local == nil {
		return false
	}
	s.probeMu.Lock()
	defer s.probeMu.Unlock()

	if !s.probeAt.IsZero() && time.Since(s.probeAt) < s.probeTTL {
		return s.probeOK
	}
	s.probeOK = s.local.Probe(ctx)
	s.probeAt = time.Now()
	return s.probeOK
}

var (
	fenceRe = regexp.MustCompile("```(?:json)?")
	thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)
)

// cleanJSON extracts the first JSON object from model output: code fences
// are stripped, then everything outside the outermost braces is discarded.
func cleanJSON(s string) (string, error) {
	s = fenceRe.ReplaceAllString(s, "")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", eris.New("synthesis: no JSON object in output")
	}
	return s[start : end+1], nil
}

// stripReasoning removes <think> blocks that local reasoning models emit
// before their answer.
func stripReasoning(s string) string {
	return thinkRe.ReplaceAllString(s, "")
}

// Synthesize runs one structured synthesis call and parses the reply into
// T. The creative tier tries the local model first when alive; if every
// local attempt fails, one final attempt runs on the primary provider.
func Synthesize[T any](ctx context.Context, s *Synthesizer, req Request) Result[T] {
	var res Result[T]

	useLocal := req.Tier == TierCreative && s.localAlive(ctx)

	pol := s.policy
	pol.ShouldRetry = func(error) bool { return ctx.Err() == nil }
	pol.OnRetry = resilience.RetryLogger("synthesis", "complete")

	data, err := resilience.DoVal(ctx, pol, func(ctx context.Context) (*T, error) {
		d, m, attemptErr := attempt[T](ctx, s, useLocal, req, &res.Usage)
		res.Model = m
		if attemptErr != nil {
			return nil, attemptErr
		}
		return d, nil
	})
	if err != nil && useLocal {
		zap.L().Warn("local synthesis exhausted, retrying on primary",
			zap.Error(err))
		var m string
		data, m, err = attempt[T](ctx, s, false, req, &res.Usage)
		res.Model = m
		useLocal = false
	}

	if err != nil {
		res.Err = err
		return res
	}
	res.Data = data
	res.IsLocal = useLocal
	res.Success = true
	return res
}

// attempt performs one complete-parse-validate cycle against one backend.
// Token usage is accumulated even when the attempt fails downstream of the
// completion call.
func attempt[T any](ctx context.Context, s *Synthesizer, useLocal bool, req Request, usage *model.TokenUsage) (*T, string, error) {
	attempted := s.primaryModel
	if useLocal {
		attempted = s.local.ModelID()
	}

	llmReq := llm.Request{
		System:      req.System,
		User:        req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Discount:    req.Discount,
	}

	var resp *llm.Response
	var err error
	start := time.Now()
	if useLocal {
		resp, err = s.local.Complete(ctx, llmReq)
	} else {
		llmReq.Model = s.primaryModel
		resp, err = ratelimit.DoVal(ctx, s.limiter, func(ctx context.Context) (*llm.Response, error) {
			return s.primary.Complete(ctx, llmReq)
		})
	}
	elapsed := time.Since(start)
	if elapsed > s.slowAfter {
		zap.L().Warn("slow completion call",
			zap.Duration("elapsed", elapsed),
			zap.Bool("local", useLocal))
	}
	if err != nil {
		return nil, attempted, eris.Wrap(err, "synthesis: complete")
	}

	usage.Add(model.NewTokenUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens))

	text := resp.Text
	if useLocal {
		text = stripReasoning(text)
	}
	raw, err := cleanJSON(text)
	if err != nil {
		return nil, resp.Model, err
	}

	out := new(T)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return nil, resp.Model, eris.Wrap(err, "synthesis: unmarshal output")
	}
	if isStruct(out) {
		if err := s.validate.Struct(out); err != nil {
			return nil, resp.Model, eris.Wrap(err, "synthesis: validate output")
		}
	}
	return out, resp.Model, nil
}

func isStruct(v any) bool {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t != nil && t.Kind() == reflect.Struct
}
