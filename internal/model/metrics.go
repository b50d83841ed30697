package model

import (
	"time"

	"github.com/google/uuid"
)

// FieldCountKey is the items_by_field key for a field name.
// Keys are prefixed so they can never collide with reserved columns.
func FieldCountKey(field string) string { return "has_" + field }

// ExecutionMetrics is the privacy-safe aggregate of one workflow
// execution: one row per execution, upserted by execution id.
//
// Invariants:
//   - Every value is a count, a boolean, a duration, or a field name.
//   - TotalItems == 0 implies HasEmptyResults.
//   - Each ItemsByField value is at most TotalItems.
type ExecutionMetrics struct {
	ExecutionID uuid.UUID `json:"execution_id"`
	AgentID     uuid.UUID `json:"agent_id"`

	// TotalItems is the sum of item counts across non-system steps.
	TotalItems int `json:"total_items"`

	// ItemsByField maps FieldCountKey(name) to the cumulative item count
	// across steps whose output carried that field.
	ItemsByField map[string]int `json:"items_by_field"`

	// FieldNames is the deduplicated list of field names seen across steps.
	FieldNames []string `json:"field_names"`

	// HasEmptyResults is true if any non-system step reported zero items.
	HasEmptyResults bool `json:"has_empty_results"`

	// FailedStepCount is the number of non-system steps with failed status.
	FailedStepCount int `json:"failed_step_count"`

	// DurationMS is wall-clock execution time. Nil when neither timestamps
	// nor a tracked total were available.
	DurationMS *int64 `json:"duration_ms,omitempty"`

	StepMetrics []StepMetric `json:"step_metrics"`

	CollectedAt time.Time `json:"collected_at"`
}
