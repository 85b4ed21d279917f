package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/flavortown/enrich-cli/internal/cost"
	"github.com/flavortown/enrich-cli/internal/model"
	"github.com/flavortown/enrich-cli/internal/search"
	"github.com/flavortown/enrich-cli/internal/store"
)

// Defaults for the onboarding workflow.
const (
	addMaxCostUSD = 5.0
	addTimeout    = 10 * time.Minute
)

// AddRestaurantInput describes one restaurant to onboard.
type AddRestaurantInput struct {
	Name    string
	City    string
	State   string
	Address string

	// Slug overrides the derived slug when set.
	Slug string

	// DryRun computes everything but writes nothing.
	DryRun bool
}

// AddRestaurantOutput is the output payload of a completed onboarding run.
type AddRestaurantOutput struct {
	RestaurantID     string                   `json:"restaurant_id,omitempty"`
	Slug             string                   `json:"slug"`
	Content          *model.RestaurantContent `json:"content,omitempty"`
	Status           model.RestaurantStatus   `json:"status,omitempty"`
	StatusConfidence float64                  `json:"status_confidence,omitempty"`
	StatusPersisted  bool                     `json:"status_persisted"`
	DryRun           bool                     `json:"dry_run"`
}

// AddRestaurant onboards one restaurant: confirm it exists on the web,
// synthesize its content, verify its status and stamp the enrichment.
type AddRestaurant struct {
	base          Base
	store         store.Store
	search        Searcher
	content       ContentEnricher
	status        StatusVerifier
	minConfidence float64
}

// NewAddRestaurant creates the onboarding workflow.
func NewAddRestaurant(st store.Store, searcher Searcher, content ContentEnricher, status StatusVerifier, calc *cost.Calculator, defaultModel string, limits Limits) *AddRestaurant {
	maxCost, timeout := limits.orDefaults(addMaxCostUSD, addTimeout)
	return &AddRestaurant{
		base:          NewBase("add-restaurant", maxCost, timeout, calc, defaultModel),
		store:         st,
		search:        searcher,
		content:       content,
		status:        status,
		minConfidence: DefaultMinConfidence,
	}
}

func (w *AddRestaurant) validate(input AddRestaurantInput) error {
	if input.Name == "" {
		return eris.New("name is required")
	}
	if input.City == "" || input.State == "" {
		return eris.New("city and state are required")
	}
	return nil
}

func (w *AddRestaurant) estimate(_ context.Context, _ AddRestaurantInput) (model.CostEstimate, error) {
	tokens := estTokensPerEnrichment + estTokensPerStatusCheck
	usd := w.base.calc.CompletionTokens(w.base.defaultModel, tokens) +
		2*w.base.calc.SearchQuery() +
		w.base.calc.PlacesOp("details")
	return model.CostEstimate{
		EstimatedTokens: tokens,
		EstimatedUSD:    usd,
		MaxUSD:          w.base.maxCostUSD,
	}, nil
}

// Execute runs the workflow once.
func (w *AddRestaurant) Execute(ctx context.Context, input AddRestaurantInput) *model.WorkflowResult {
	return w.base.execute(ctx,
		func() error { return w.validate(input) },
		func(ctx context.Context) (model.CostEstimate, error) { return w.estimate(ctx, input) },
		func(ctx context.Context, r *Run) (any, error) { return w.run(ctx, r, input) },
		nil,
	)
}

func (w *AddRestaurant) run(ctx context.Context, r *Run, input AddRestaurantInput) (any, error) {
	slug := input.Slug
	if slug == "" {
		slug = model.Slugify(input.Name, input.City)
	}
	out := &AddRestaurantOutput{Slug: slug, DryRun: input.DryRun}

	// Step 1: confirm the restaurant shows up on the web at all.
	step := r.StartStep("verify_existence")
	query := fmt.Sprintf("%s restaurant %s %s", input.Name, input.City, input.State)
	resp, err := w.search.Search(ctx, query, search.Options{
		EntityType: model.EntityRestaurant,
		EntityName: input.Name,
		MaxResults: 5,
	})
	if err != nil {
		r.FailStep(step, err)
		return nil, eris.Wrap(err, "verify existence")
	}
	if len(resp.Results) == 0 {
		r.AddError("verify_existence", model.CodeExecutionFailed,
			"no web results found; onboarding anyway", false)
	}
	r.CompleteStep(step, model.TokenUsage{}, map[string]any{
		"results":    len(resp.Results),
		"from_cache": resp.FromCache,
	})

	// Step 2: create or reuse the record.
	step = r.StartStep("create_record")
	rec, err := w.store.GetRestaurantBySlug(ctx, slug)
	if err != nil {
		r.FailStep(step, err)
		return nil, eris.Wrap(err, "load restaurant")
	}
	if rec == nil {
		rec = &model.Restaurant{
			Slug:    slug,
			Name:    input.Name,
			City:    input.City,
			State:   input.State,
			Address: input.Address,
		}
		if input.DryRun {
			r.SkipStep(step, "dry run")
		} else {
			if err := w.store.CreateRestaurant(ctx, rec); err != nil {
				r.FailStep(step, err)
				return nil, eris.Wrap(err, "create restaurant")
			}
			r.CompleteStep(step, model.TokenUsage{}, map[string]any{"restaurant_id": rec.ID})
		}
	} else {
		r.CompleteStep(step, model.TokenUsage{}, map[string]any{
			"restaurant_id": rec.ID,
			"existing":      true,
		})
	}
	out.RestaurantID = rec.ID

	// Step 3: content enrichment. A failure here aborts onboarding.
	step = r.StartStep("enrich_content")
	contentRes := w.content.Enrich(ctx, rec)
	if !contentRes.Success {
		r.FailStep(step, contentRes.Err)
		return nil, eris.Wrap(contentRes.Err, "enrich content")
	}
	r.CompleteStep(step, contentRes.TokensUsed, nil)
	out.Content = contentRes.Content
	if !input.DryRun && rec.ID != "" {
		if err := w.store.UpdateRestaurantContent(ctx, rec.ID, *contentRes.Content); err != nil {
			return nil, eris.Wrap(err, "persist content")
		}
	}

	// Step 4: status verification. Non-fatal; a failed check records an
	// error and moves on.
	step = r.StartStep("verify_status")
	statusRes := w.status.Verify(ctx, rec)
	if !statusRes.Success {
		r.FailStep(step, statusRes.Err)
		r.AddError("verify_status", model.CodeExecutionFailed, statusRes.Err.Error(), false)
	} else {
		r.CompleteStep(step, statusRes.TokensUsed, map[string]any{
			"status":     string(statusRes.Status),
			"confidence": statusRes.Confidence,
			"source":     statusRes.Source,
		})
		out.Status = statusRes.Status
		out.StatusConfidence = statusRes.Confidence
		if statusRes.Confidence >= w.minConfidence && statusRes.Status != model.StatusUnknown &&
			!input.DryRun && rec.ID != "" {
			if err := w.store.UpdateRestaurantStatus(ctx, rec.ID, statusRes.Status, time.Now().UTC()); err != nil {
				r.AddError("verify_status", model.CodeExecutionFailed, err.Error(), false)
			} else {
				out.StatusPersisted = true
			}
		}
	}

	// Step 5: stamp the enrichment.
	step = r.StartStep("stamp_enrichment")
	if input.DryRun || rec.ID == "" {
		r.SkipStep(step, "dry run")
	} else {
		now := time.Now().UTC()
		if err := w.store.SetEnrichmentStatus(ctx, rec.ID, model.EnrichmentCompleted, &now); err != nil {
			r.FailStep(step, err)
			return nil, eris.Wrap(err, "stamp enrichment")
		}
		r.CompleteStep(step, model.TokenUsage{}, nil)
	}

	zap.L().Info("restaurant onboarded",
		zap.String("slug", slug),
		zap.Bool("dry_run", input.DryRun))
	return out, nil
}
