package workflow

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/flavortown/enrich-cli/internal/cost"
	"github.com/flavortown/enrich-cli/internal/model"
	"github.com/flavortown/enrich-cli/internal/store"
)

// Defaults for the sweep workflow.
const (
	sweepMaxCostUSD       = 10.0
	sweepTimeout          = 30 * time.Minute
	sweepDefaultBatchSize = 10
)

// SweepCriteria selects restaurants for a sweep when no explicit ID list
// is given.
type SweepCriteria struct {
	Status            model.RestaurantStatus
	City              string
	NotVerifiedInDays int
}

// StatusSweepInput configures one sweep run.
type StatusSweepInput struct {
	// IDs lists restaurants explicitly. When empty, Criteria selects them.
	IDs      []string
	Criteria SweepCriteria

	// Limit caps how many restaurants a criteria-driven sweep touches.
	// Zero means no cap.
	Limit int

	BatchSize     int
	MinConfidence float64
	DryRun        bool
}

// StatusSweepOutput aggregates a sweep run.
type StatusSweepOutput struct {
	TotalProcessed int                  `json:"total_processed"`
	TotalUpdated   int                  `json:"total_updated"`
	TotalSkipped   int                  `json:"total_skipped"`
	TotalFailed    int                  `json:"total_failed"`
	Updates        []model.StatusChange `json:"updates,omitempty"`
	DryRun         bool                 `json:"dry_run"`
}

// StatusSweep bulk-verifies restaurant statuses in bounded-concurrency
// batches. One item's failure never aborts its siblings.
type StatusSweep struct {
	base   Base
	store  store.Store
	status StatusVerifier
}

// NewStatusSweep creates the sweep workflow.
func NewStatusSweep(st store.Store, status StatusVerifier, calc *cost.Calculator, defaultModel string, limits Limits) *StatusSweep {
	maxCost, timeout := limits.orDefaults(sweepMaxCostUSD, sweepTimeout)
	return &StatusSweep{
		base:   NewBase("status-sweep", maxCost, timeout, calc, defaultModel),
		store:  st,
		status: status,
	}
}

func (w *StatusSweep) validate(input StatusSweepInput) error {
	if len(input.IDs) == 0 &&
		input.Criteria.Status == "" && input.Criteria.City == "" && input.Criteria.NotVerifiedInDays == 0 {
		return eris.New("either ids or criteria are required")
	}
	if input.BatchSize < 0 || input.Limit < 0 {
		return eris.New("batch size and limit must be non-negative")
	}
	if input.MinConfidence < 0 || input.MinConfidence > 1 {
		return eris.New("min confidence must be between 0 and 1")
	}
	return nil
}

func (w *StatusSweep) criteria(input StatusSweepInput) store.RestaurantCriteria {
	return store.RestaurantCriteria{
		Status:            input.Criteria.Status,
		City:              input.Criteria.City,
		NotVerifiedInDays: input.Criteria.NotVerifiedInDays,
		Limit:             input.Limit,
	}
}

// estimate sizes the run by counting how many restaurants the sweep would
// touch. This is the only workflow whose estimate queries the store.
func (w *StatusSweep) estimate(ctx context.Context, input StatusSweepInput) (model.CostEstimate, error) {
	n := len(input.IDs)
	if n == 0 {
		count, err := w.store.CountRestaurants(ctx, w.criteria(input))
		if err != nil {
			return model.CostEstimate{}, eris.Wrap(err, "count restaurants")
		}
		if input.Limit > 0 && count > input.Limit {
			count = input.Limit
		}
		n = count
	}

	tokens := n * estTokensPerStatusCheck
	usd := w.base.calc.CompletionTokens(w.base.defaultModel, tokens) +
		float64(n)*(w.base.calc.SearchQuery()+w.base.calc.PlacesOp("details"))
	return model.CostEstimate{
		EstimatedTokens: tokens,
		EstimatedUSD:    usd,
		MaxUSD:          w.base.maxCostUSD,
	}, nil
}

// Execute runs the workflow once.
func (w *StatusSweep) Execute(ctx context.Context, input StatusSweepInput) *model.WorkflowResult {
	return w.base.execute(ctx,
		func() error { return w.validate(input) },
		func(ctx context.Context) (model.CostEstimate, error) { return w.estimate(ctx, input) },
		func(ctx context.Context, r *Run) (any, error) { return w.run(ctx, r, input) },
		nil,
	)
}

// itemOutcome is the settled result of one restaurant's verification.
type itemOutcome struct {
	change *model.StatusChange
	usage  model.TokenUsage
	err    error
}

func (w *StatusSweep) run(ctx context.Context, r *Run, input StatusSweepInput) (any, error) {
	batchSize := input.BatchSize
	if batchSize <= 0 {
		batchSize = sweepDefaultBatchSize
	}
	minConfidence := input.MinConfidence
	if minConfidence == 0 {
		minConfidence = DefaultMinConfidence
	}

	step := r.StartStep("select_restaurants")
	var restaurants []model.Restaurant
	var err error
	if len(input.IDs) > 0 {
		restaurants, err = w.store.GetRestaurantsByIDs(ctx, input.IDs)
	} else {
		restaurants, err = w.store.ListRestaurants(ctx, w.criteria(input))
	}
	if err != nil {
		r.FailStep(step, err)
		return nil, eris.Wrap(err, "select restaurants")
	}
	r.CompleteStep(step, model.TokenUsage{}, map[string]any{"selected": len(restaurants)})

	out := &StatusSweepOutput{DryRun: input.DryRun}
	if len(restaurants) == 0 {
		return out, nil
	}

	step = r.StartStep("verify_batches")
	outcomes := make([]itemOutcome, len(restaurants))

	// Batches run with bounded concurrency; workers record outcomes
	// instead of returning errors so one rejection never cancels the rest.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchSize)
	for i := range restaurants {
		g.Go(func() error {
			rec := restaurants[i]
			res := w.status.Verify(gctx, &rec)
			if !res.Success {
				outcomes[i] = itemOutcome{usage: res.TokensUsed, err: res.Err}
				return nil
			}
			oc := itemOutcome{usage: res.TokensUsed}
			if res.Status != model.StatusUnknown && res.Status != rec.Status && res.Confidence >= minConfidence {
				oc.change = &model.StatusChange{
					RestaurantID: rec.ID,
					Slug:         rec.Slug,
					OldStatus:    rec.Status,
					NewStatus:    res.Status,
					Confidence:   res.Confidence,
					Source:       res.Source,
				}
			}
			outcomes[i] = oc
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors

	var usage model.TokenUsage
	for i, oc := range outcomes {
		usage.Add(oc.usage)
		out.TotalProcessed++
		switch {
		case oc.err != nil:
			out.TotalFailed++
			r.AddError("verify_batches", model.CodeExecutionFailed,
				restaurants[i].Slug+": "+oc.err.Error(), false)
		case oc.change != nil:
			out.Updates = append(out.Updates, *oc.change)
			out.TotalUpdated++
		default:
			out.TotalSkipped++
		}
	}
	r.CompleteStep(step, usage, map[string]any{
		"processed": out.TotalProcessed,
		"updated":   out.TotalUpdated,
		"skipped":   out.TotalSkipped,
		"failed":    out.TotalFailed,
	})

	// Writes happen after all verifications settle; a dry run computes the
	// identical update list with zero writes.
	step = r.StartStep("persist_changes")
	if input.DryRun {
		r.SkipStep(step, "dry run")
		return out, nil
	}
	persisted := 0
	for _, change := range out.Updates {
		if err := w.store.UpdateRestaurantStatus(ctx, change.RestaurantID, change.NewStatus, time.Now().UTC()); err != nil {
			r.AddError("persist_changes", model.CodeExecutionFailed,
				change.Slug+": "+err.Error(), false)
			continue
		}
		persisted++
	}
	r.CompleteStep(step, model.TokenUsage{}, map[string]any{"persisted": persisted})

	zap.L().Info("status sweep finished",
		zap.Int("processed", out.TotalProcessed),
		zap.Int("updated", out.TotalUpdated),
		zap.Int("skipped", out.TotalSkipped),
		zap.Int("failed", out.TotalFailed),
		zap.Bool("dry_run", input.DryRun))
	return out, nil
}
