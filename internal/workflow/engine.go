// Package workflow implements the cost-bounded multi-step state machine
// behind every enrichment operation. A workflow run validates its input,
// gates on a pre-flight cost estimate, executes its steps under a deadline
// and always returns a fully populated result envelope.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/flavortown/enrich-cli/internal/cost"
	"github.com/flavortown/enrich-cli/internal/model"
)

// NewWorkflowID builds a run identifier from the workflow name, a UTC
// timestamp and a short random suffix.
func NewWorkflowID(name string) string {
	return fmt.Sprintf("%s-%s-%s",
		name,
		time.Now().UTC().Format("20060102T150405"),
		uuid.NewString()[:8])
}

// Run tracks per-execution state: steps, errors and the token accumulator.
// One Run exists per Execute call; nothing is shared across runs.
type Run struct {
	result       *model.WorkflowResult
	tokens       model.TokenUsage
	calc         *cost.Calculator
	defaultModel string
}

// StartStep appends a running step and returns its 1-based number.
func (r *Run) StartStep(name string) int {
	r.result.Steps = append(r.result.Steps, model.WorkflowStep{
		Number:    len(r.result.Steps) + 1,
		Name:      name,
		Status:    model.StepRunning,
		StartedAt: time.Now().UTC(),
	})
	zap.L().Debug("step started",
		zap.String("workflow", r.result.WorkflowID),
		zap.String("step", name))
	return len(r.result.Steps)
}

func (r *Run) step(number int) *model.WorkflowStep {
	if number < 1 || number > len(r.result.Steps) {
		return nil
	}
	return &r.result.Steps[number-1]
}

// CompleteStep marks a step completed, accumulates its token usage and
// derives the step cost from the default model's pricing.
func (r *Run) CompleteStep(number int, usage model.TokenUsage, metadata map[string]any) {
	s := r.step(number)
	if s == nil {
		return
	}
	now := time.Now().UTC()
	s.Status = model.StepCompleted
	s.CompletedAt = &now
	s.TokensUsed = usage.Total
	s.CostUSD = r.calc.CompletionTokens(r.defaultModel, usage.Total)
	s.Metadata = metadata
	r.tokens.Add(usage)
}

// FailStep marks a step failed with the error message.
func (r *Run) FailStep(number int, err error) {
	s := r.step(number)
	if s == nil {
		return
	}
	now := time.Now().UTC()
	s.Status = model.StepFailed
	s.CompletedAt = &now
	if err != nil {
		s.Error = err.Error()
	}
}

// SkipStep marks a step skipped with a reason.
func (r *Run) SkipStep(number int, reason string) {
	s := r.step(number)
	if s == nil {
		return
	}
	now := time.Now().UTC()
	s.Status = model.StepSkipped
	s.CompletedAt = &now
	if reason != "" {
		s.Metadata = map[string]any{"reason": reason}
	}
}

// AddError records a diagnostic. Non-fatal errors never abort the run.
func (r *Run) AddError(step, code, message string, fatal bool) {
	r.result.Errors = append(r.result.Errors, model.WorkflowError{
		Step:    step,
		Code:    code,
		Message: message,
		Fatal:   fatal,
	})
}

// Tokens returns the usage accumulated so far in this run.
func (r *Run) Tokens() model.TokenUsage {
	return r.tokens
}

// Base carries the configuration and shared dependencies every workflow
// embeds: name, cost ceiling, deadline, rollback policy and the pricing
// calculator for step accounting.
type Base struct {
	name          string
	maxCostUSD    float64
	timeout       time.Duration
	allowRollback bool
	calc          *cost.Calculator
	defaultModel  string
}

// NewBase creates the embedded workflow core.
func NewBase(name string, maxCostUSD float64, timeout time.Duration, calc *cost.Calculator, defaultModel string) Base {
	return Base{
		name:         name,
		maxCostUSD:   maxCostUSD,
		timeout:      timeout,
		calc:         calc,
		defaultModel: defaultModel,
	}
}

// WithRollback enables the rollback path for non-timeout failures.
func (b Base) WithRollback() Base {
	b.allowRollback = true
	return b
}

// execute drives one run through the state machine. It never panics
// outward and never returns a partial envelope.
func (b *Base) execute(
	ctx context.Context,
	validate func() error,
	estimate func(ctx context.Context) (model.CostEstimate, error),
	run func(ctx context.Context, r *Run) (any, error),
	rollback func(ctx context.Context) error,
) *model.WorkflowResult {
	result := &model.WorkflowResult{
		WorkflowID: NewWorkflowID(b.name),
		Name:       b.name,
		Status:     model.WorkflowRunning,
		StartedAt:  time.Now().UTC(),
	}
	r := &Run{result: result, calc: b.calc, defaultModel: b.defaultModel}

	finish := func(status model.WorkflowStatus) *model.WorkflowResult {
		result.Status = status
		result.Success = status == model.WorkflowCompleted
		result.CompletedAt = time.Now().UTC()
		result.Duration = result.CompletedAt.Sub(result.StartedAt)
		result.TotalCost = model.WorkflowCost{
			Tokens:       r.tokens.Total,
			EstimatedUSD: b.calc.CompletionTokens(b.defaultModel, r.tokens.Total),
		}
		zap.L().Info("workflow finished",
			zap.String("workflow", result.WorkflowID),
			zap.String("status", string(status)),
			zap.Int("tokens", result.TotalCost.Tokens),
			zap.Duration("duration", result.Duration))
		return result
	}

	if err := validate(); err != nil {
		r.AddError("", model.CodeValidationFailed, err.Error(), true)
		return finish(model.WorkflowFailed)
	}

	if estimate != nil {
		est, err := estimate(ctx)
		if err != nil {
			r.AddError("", model.CodeExecutionFailed, eris.Wrap(err, "estimate cost").Error(), true)
			return finish(model.WorkflowFailed)
		}
		if b.maxCostUSD > 0 && est.EstimatedUSD > b.maxCostUSD {
			r.AddError("", model.CodeCostLimitExceeded,
				fmt.Sprintf("estimated cost $%.2f exceeds ceiling $%.2f", est.EstimatedUSD, b.maxCostUSD),
				true)
			return finish(model.WorkflowFailed)
		}
	}

	runCtx := ctx
	cancel := func() {}
	if b.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, b.timeout)
	}
	defer cancel()

	output, err := b.runSteps(runCtx, r, run)
	if err != nil {
		timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded)
		if timedOut {
			r.AddError("", model.CodeTimeout, err.Error(), true)
			return finish(model.WorkflowFailed)
		}
		if b.allowRollback && rollback != nil {
			if rbErr := rollback(ctx); rbErr != nil {
				zap.L().Error("rollback failed",
					zap.String("workflow", result.WorkflowID),
					zap.Error(rbErr))
			}
			r.AddError("", model.CodeExecutionFailed, err.Error(), true)
			return finish(model.WorkflowRolledBack)
		}
		r.AddError("", model.CodeExecutionFailed, err.Error(), true)
		return finish(model.WorkflowFailed)
	}

	result.Output = output
	return finish(model.WorkflowCompleted)
}

// runSteps invokes the step sequence, converting a panic into an error so
// execute can keep its no-throw contract.
func (b *Base) runSteps(ctx context.Context, r *Run, run func(ctx context.Context, r *Run) (any, error)) (output any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = eris.Errorf("workflow panic: %v", rec)
		}
	}()
	return run(ctx, r)
}
