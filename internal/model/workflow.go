package model

import "time"

// WorkflowStatus represents the lifecycle state of a workflow run.
type WorkflowStatus string

const (
	WorkflowPending    WorkflowStatus = "pending"
	WorkflowRunning    WorkflowStatus = "running"
	WorkflowCompleted  WorkflowStatus = "completed"
	WorkflowFailed     WorkflowStatus = "failed"
	WorkflowRolledBack WorkflowStatus = "rolled_back"
)

// StepStatus represents the state of a single workflow step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Error codes attached to terminal workflow results.
const (
	CodeValidationFailed  = "validation_failed"
	CodeCostLimitExceeded = "cost_limit_exceeded"
	CodeTimeout           = "timeout"
	CodeExecutionFailed   = "execution_failed"
)

// WorkflowStep is one tracked unit of work inside a workflow run.
// Steps are numbered 1-based in execution order and move from running to
// exactly one terminal status.
type WorkflowStep struct {
	Number      int            `json:"step_number"`
	Name        string         `json:"name"`
	Status      StepStatus     `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	TokensUsed  int            `json:"tokens_used,omitempty"`
	CostUSD     float64        `json:"cost_usd,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// WorkflowError is a diagnostic recorded during a run. Non-fatal errors do
// not abort the workflow; fatal ones do.
type WorkflowError struct {
	Step    string         `json:"step,omitempty"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Fatal   bool           `json:"fatal"`
	Details map[string]any `json:"details,omitempty"`
}

// WorkflowCost summarizes actual spend accumulated across a run.
type WorkflowCost struct {
	Tokens       int     `json:"tokens"`
	EstimatedUSD float64 `json:"estimated_usd"`
}

// WorkflowResult is the uniform envelope returned by every workflow
// execution. It is fully populated on every path and immutable once
// returned.
type WorkflowResult struct {
	Success     bool            `json:"success"`
	WorkflowID  string          `json:"workflow_id"`
	Name        string          `json:"workflow_name"`
	Status      WorkflowStatus  `json:"status"`
	Steps       []WorkflowStep  `json:"steps"`
	Output      any             `json:"output,omitempty"`
	TotalCost   WorkflowCost    `json:"total_cost"`
	Errors      []WorkflowError `json:"errors,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Duration    time.Duration   `json:"duration_ms"`
}

// FirstErrorCode returns the code of the first fatal error, or "" when the
// run recorded none.
func (r *WorkflowResult) FirstErrorCode() string {
	for _, e := range r.Errors {
		if e.Fatal {
			return e.Code
		}
	}
	return ""
}
