package model

import "github.com/google/uuid"

// PatternCategory groups findings by the detector family that produced them.
type PatternCategory string

const (
	CategoryDataQuality PatternCategory = "data_quality"
	CategoryReliability PatternCategory = "reliability"
	CategoryCost        PatternCategory = "cost"
	CategoryAutomation  PatternCategory = "automation"
)

// InsightType names the specific finding within a category.
type InsightType string

const (
	InsightEmptyResults           InsightType = "empty_results"
	InsightMissingFields          InsightType = "missing_fields"
	InsightTypeMismatch           InsightType = "type_mismatch"
	InsightExecutionFailure       InsightType = "execution_failure"
	InsightFailureWithoutFallback InsightType = "failure_without_fallback"
	InsightPerformanceDegradation InsightType = "performance_degradation"
	InsightHighTokenUsage         InsightType = "high_token_usage"
	InsightScheduleConcentration  InsightType = "schedule_concentration"
	InsightManualApproval         InsightType = "manual_approval"
)

// Severity ranks how urgently a finding deserves attention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for sorting; higher is more urgent.
var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the sort weight of a severity. Unknown severities rank lowest.
func (s Severity) Rank() int { return severityRank[s] }

// DetectedPattern is a structural finding about execution history. It
// never carries raw record data: PatternData holds only counts, step-id
// lists, and frequency percentages.
type DetectedPattern struct {
	InsightType     InsightType        `json:"insight_type"`
	Category        PatternCategory    `json:"category"`
	Severity        Severity           `json:"severity"`
	ConfidenceScore float64            `json:"confidence_score"`
	ExecutionIDs    []uuid.UUID        `json:"execution_ids"`
	PatternData     map[string]any     `json:"pattern_data"`
	Metrics         map[string]float64 `json:"metrics"`
}
