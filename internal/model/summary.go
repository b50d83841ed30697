package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SummaryThresholds controls when a step inside an execution summary is
// flagged as slow or token-hungry.
type SummaryThresholds struct {
	// SlowStepMS flags steps slower than this many milliseconds.
	SlowStepMS int64

	// HighTokenStep flags steps that consumed more than this many tokens.
	HighTokenStep int
}

// DefaultSummaryThresholds flags steps slower than 30 seconds or using
// more than 2000 tokens.
var DefaultSummaryThresholds = SummaryThresholds{SlowStepMS: 30_000, HighTokenStep: 2000}

// approvalKeywords mark steps that look like manual approval gates.
var approvalKeywords = []string{"approv", "review", "confirm", "sign-off", "sign off"}

// StepSummary is the per-step slice of an ExecutionSummary.
type StepSummary struct {
	StepID             string     `json:"step_id"`
	StepName           string     `json:"step_name"`
	Plugin             string     `json:"plugin"`
	Status             StepStatus `json:"status"`
	ItemCount          int        `json:"item_count"`
	TokensUsed         int        `json:"tokens_used"`
	DurationMS         int64      `json:"duration_ms"`
	FallbackConfigured bool       `json:"fallback_configured"`
	RequiresApproval   bool       `json:"requires_approval"`
}

// ExecutionSummary is the derived per-execution view the pattern
// detectors consume. It carries structural facts only: statuses,
// durations, token totals, and lists of step ids exhibiting a problem.
type ExecutionSummary struct {
	ExecutionID uuid.UUID       `json:"execution_id"`
	AgentID     uuid.UUID       `json:"agent_id"`
	Status      ExecutionStatus `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	DurationMS  int64           `json:"duration_ms"`
	TotalTokens int             `json:"total_tokens"`

	Steps []StepSummary `json:"steps"`

	// HasFieldNames is true when any step reported at least one output
	// field name. A successful execution without any is usually a broken
	// extraction, not an empty dataset.
	HasFieldNames bool `json:"has_field_names"`

	EmptyResultSteps      []string `json:"empty_result_steps"`
	SlowSteps             []string `json:"slow_steps"`
	HighTokenSteps        []string `json:"high_token_steps"`
	FailedNoFallbackSteps []string `json:"failed_no_fallback_steps"`
	ApprovalSteps         []string `json:"approval_steps"`
}

// IsFailed reports whether the execution terminated unsuccessfully.
func (s ExecutionSummary) IsFailed() bool {
	return s.Status == ExecutionStatusFailed || s.Status == ExecutionStatusTimeout
}

// SummarizeExecution derives an ExecutionSummary from the step records of
// a single execution. Records must all share the same execution id;
// system-plugin steps are skipped.
func SummarizeExecution(executionID, agentID uuid.UUID, status ExecutionStatus, startedAt time.Time, records []StepExecutionRecord, t SummaryThresholds) ExecutionSummary {
	if t.SlowStepMS <= 0 {
		t.SlowStepMS = DefaultSummaryThresholds.SlowStepMS
	}
	if t.HighTokenStep <= 0 {
		t.HighTokenStep = DefaultSummaryThresholds.HighTokenStep
	}

	sum := ExecutionSummary{
		ExecutionID: executionID,
		AgentID:     agentID,
		Status:      status,
		StartedAt:   startedAt,
	}

	for _, r := range records {
		if r.IsSystemStep() {
			continue
		}

		step := StepSummary{
			StepID:             r.StepID,
			StepName:           r.StepName,
			Plugin:             r.Plugin,
			Status:             r.Status,
			ItemCount:          r.ItemCount,
			TokensUsed:         r.Metadata.TokensUsed,
			DurationMS:         r.Metadata.DurationMS,
			FallbackConfigured: r.Metadata.FallbackConfigured,
			RequiresApproval:   r.Metadata.RequiresApproval,
		}
		sum.Steps = append(sum.Steps, step)

		sum.TotalTokens += step.TokensUsed
		sum.DurationMS += step.DurationMS

		if step.Status == StepStatusSuccess && step.ItemCount == 0 {
			sum.EmptyResultSteps = append(sum.EmptyResultSteps, step.StepID)
		}
		if step.DurationMS > t.SlowStepMS {
			sum.SlowSteps = append(sum.SlowSteps, step.StepID)
		}
		if step.TokensUsed > t.HighTokenStep {
			sum.HighTokenSteps = append(sum.HighTokenSteps, step.StepID)
		}
		if step.Status == StepStatusFailed && !step.FallbackConfigured {
			sum.FailedNoFallbackSteps = append(sum.FailedNoFallbackSteps, step.StepID)
		}
		if isApprovalStep(r) {
			sum.ApprovalSteps = append(sum.ApprovalSteps, step.StepID)
		}
		if len(r.Metadata.FieldNames) > 0 {
			sum.HasFieldNames = true
		}
	}

	return sum
}

// isApprovalStep reports whether a step looks like a manual approval gate,
// either declared via metadata or inferred from its name.
func isApprovalStep(r StepExecutionRecord) bool {
	if r.Metadata.RequiresApproval {
		return true
	}
	name := strings.ToLower(r.StepName)
	for _, kw := range approvalKeywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}
