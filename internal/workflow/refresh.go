package workflow

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/flavortown/enrich-cli/internal/cost"
	"github.com/flavortown/enrich-cli/internal/model"
	"github.com/flavortown/enrich-cli/internal/store"
)

// Defaults for the refresh workflow.
const (
	refreshMaxCostUSD = 5.0
	refreshTimeout    = 10 * time.Minute
)

// RefreshScope selects which parts of a restaurant a refresh touches.
type RefreshScope struct {
	Content bool
	Status  bool
}

// RefreshRestaurantInput identifies a restaurant and the refresh scope.
type RefreshRestaurantInput struct {
	Slug   string
	Scope  RefreshScope
	DryRun bool
}

// RefreshRestaurantOutput is the output payload of a completed refresh.
type RefreshRestaurantOutput struct {
	RestaurantID     string                   `json:"restaurant_id"`
	Slug             string                   `json:"slug"`
	Content          *model.RestaurantContent `json:"content,omitempty"`
	Status           model.RestaurantStatus   `json:"status,omitempty"`
	StatusConfidence float64                  `json:"status_confidence,omitempty"`
	StatusPersisted  bool                     `json:"status_persisted"`
	DryRun           bool                     `json:"dry_run"`
}

// RefreshRestaurant re-runs enrichment and/or status verification for one
// existing restaurant.
type RefreshRestaurant struct {
	base          Base
	store         store.Store
	content       ContentEnricher
	status        StatusVerifier
	minConfidence float64
}

// NewRefreshRestaurant creates the refresh workflow.
func NewRefreshRestaurant(st store.Store, content ContentEnricher, status StatusVerifier, calc *cost.Calculator, defaultModel string, limits Limits) *RefreshRestaurant {
	maxCost, timeout := limits.orDefaults(refreshMaxCostUSD, refreshTimeout)
	return &RefreshRestaurant{
		base:          NewBase("refresh-restaurant", maxCost, timeout, calc, defaultModel),
		store:         st,
		content:       content,
		status:        status,
		minConfidence: DefaultMinConfidence,
	}
}

func (w *RefreshRestaurant) validate(input RefreshRestaurantInput) error {
	if input.Slug == "" {
		return eris.New("slug is required")
	}
	if !input.Scope.Content && !input.Scope.Status {
		return eris.New("at least one of content or status scope is required")
	}
	return nil
}

func (w *RefreshRestaurant) estimate(_ context.Context, input RefreshRestaurantInput) (model.CostEstimate, error) {
	tokens := 0
	usd := 0.0
	if input.Scope.Content {
		tokens += estTokensPerEnrichment
		usd += w.base.calc.SearchQuery()
	}
	if input.Scope.Status {
		tokens += estTokensPerStatusCheck
		usd += w.base.calc.SearchQuery() + w.base.calc.PlacesOp("details")
	}
	usd += w.base.calc.CompletionTokens(w.base.defaultModel, tokens)
	return model.CostEstimate{
		EstimatedTokens: tokens,
		EstimatedUSD:    usd,
		MaxUSD:          w.base.maxCostUSD,
	}, nil
}

// Execute runs the workflow once.
func (w *RefreshRestaurant) Execute(ctx context.Context, input RefreshRestaurantInput) *model.WorkflowResult {
	return w.base.execute(ctx,
		func() error { return w.validate(input) },
		func(ctx context.Context) (model.CostEstimate, error) { return w.estimate(ctx, input) },
		func(ctx context.Context, r *Run) (any, error) { return w.run(ctx, r, input) },
		nil,
	)
}

func (w *RefreshRestaurant) run(ctx context.Context, r *Run, input RefreshRestaurantInput) (any, error) {
	step := r.StartStep("load_restaurant")
	rec, err := w.store.GetRestaurantBySlug(ctx, input.Slug)
	if err != nil {
		r.FailStep(step, err)
		return nil, eris.Wrap(err, "load restaurant")
	}
	if rec == nil {
		err := eris.Errorf("restaurant %q not found", input.Slug)
		r.FailStep(step, err)
		return nil, err
	}
	r.CompleteStep(step, model.TokenUsage{}, map[string]any{"restaurant_id": rec.ID})

	out := &RefreshRestaurantOutput{RestaurantID: rec.ID, Slug: rec.Slug, DryRun: input.DryRun}

	if input.Scope.Content {
		step = r.StartStep("refresh_content")
		contentRes := w.content.Enrich(ctx, rec)
		if !contentRes.Success {
			r.FailStep(step, contentRes.Err)
			return nil, eris.Wrap(contentRes.Err, "refresh content")
		}
		r.CompleteStep(step, contentRes.TokensUsed, nil)
		out.Content = contentRes.Content
		if !input.DryRun {
			if err := w.store.UpdateRestaurantContent(ctx, rec.ID, *contentRes.Content); err != nil {
				return nil, eris.Wrap(err, "persist content")
			}
		}
	}

	if input.Scope.Status {
		step = r.StartStep("refresh_status")
		statusRes := w.status.Verify(ctx, rec)
		if !statusRes.Success {
			// Status verification is best-effort on a refresh.
			r.FailStep(step, statusRes.Err)
			r.AddError("refresh_status", model.CodeExecutionFailed, statusRes.Err.Error(), false)
		} else {
			r.CompleteStep(step, statusRes.TokensUsed, map[string]any{
				"status":     string(statusRes.Status),
				"confidence": statusRes.Confidence,
				"source":     statusRes.Source,
			})
			out.Status = statusRes.Status
			out.StatusConfidence = statusRes.Confidence
			if statusRes.Confidence >= w.minConfidence && statusRes.Status != model.StatusUnknown && !input.DryRun {
				if err := w.store.UpdateRestaurantStatus(ctx, rec.ID, statusRes.Status, time.Now().UTC()); err != nil {
					r.AddError("refresh_status", model.CodeExecutionFailed, err.Error(), false)
				} else {
					out.StatusPersisted = true
				}
			}
		}
	}

	if input.Scope.Content && !input.DryRun {
		step = r.StartStep("stamp_enrichment")
		now := time.Now().UTC()
		if err := w.store.SetEnrichmentStatus(ctx, rec.ID, model.EnrichmentCompleted, &now); err != nil {
			r.FailStep(step, err)
			return nil, eris.Wrap(err, "stamp enrichment")
		}
		r.CompleteStep(step, model.TokenUsage{}, nil)
	}

	return out, nil
}
