package flowlens

import (
	"time"

	"github.com/google/uuid"
)

// StepStatus is the terminal state of a single workflow step.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// ExecutionStatus is the terminal state of a whole workflow execution.
type ExecutionStatus string

const (
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionTimeout   ExecutionStatus = "timeout"
)

// StepMetadata is the structural metadata attached to a step record.
// FieldNames lists the names of output fields, never their values.
type StepMetadata struct {
	FieldNames         []string
	FallbackConfigured bool
	RequiresApproval   bool
	TokensUsed         int
	DurationMS         int64
	TotalExecutionMS   *int64
}

// StepRecord is one step's telemetry as reported by the workflow engine.
type StepRecord struct {
	ID          uuid.UUID
	ExecutionID uuid.UUID
	AgentID     uuid.UUID
	StepID      string
	StepName    string
	Plugin      string
	Action      string
	ItemCount   int
	Status      StepStatus
	Metadata    StepMetadata
	CreatedAt   time.Time
}

// ExecutionRecord registers a workflow execution and its outcome.
type ExecutionRecord struct {
	ExecutionID uuid.UUID
	AgentID     uuid.UUID
	Status      ExecutionStatus
	StartedAt   time.Time
	CompletedAt *time.Time
}

// CollectRequest asks the engine to aggregate an execution's step
// records into metrics. TrackedTotalMS is the engine-reported duration,
// used when CompletedAt is not available.
type CollectRequest struct {
	ExecutionID    uuid.UUID
	AgentID        uuid.UUID
	StartedAt      time.Time
	CompletedAt    *time.Time
	TrackedTotalMS *int64
}

// ExecutionMetrics is the privacy-safe aggregate of one execution:
// counts, booleans, durations, and field names only.
type ExecutionMetrics struct {
	ExecutionID     uuid.UUID
	AgentID         uuid.UUID
	TotalItems      int
	ItemsByField    map[string]int
	FieldNames      []string
	HasEmptyResults bool
	FailedStepCount int
	DurationMS      *int64
	CollectedAt     time.Time
}

// DetectedMetric identifies the workflow step chosen as the business
// metric, how it was chosen, and with what confidence.
type DetectedMetric struct {
	StepName        string
	StepIndex       int
	Confidence      float64
	DetectionMethod string
	Reasoning       string
}

// TrendReport is the statistical trend picture for one agent's detected
// business metric. Volume changes are fractional: 0.5 means +50%.
type TrendReport struct {
	AgentID              uuid.UUID
	VolumeChange7D       float64
	VolumeChange30D      float64
	IsVolumeSpike        bool
	IsVolumeDrop         bool
	CategoryDistribution map[string]float64
	DistributionShift    map[string]float64
	DurationTrend        float64
	EmptyResultRate      float64

	// FailureRate is sum of failed steps over executions and can exceed
	// 1 when executions fail multiple steps.
	FailureRate float64

	BaselineAvg    float64
	BaselineStdDev float64
	DetectedMetric DetectedMetric
	DataPointCount int

	// Confidence is the data-volume tier: low, medium, or high.
	Confidence string
}

// Pattern is a structural finding about an agent's execution history.
// PatternData carries only counts, step ids, and percentages.
type Pattern struct {
	InsightType     string
	Category        string
	Severity        string
	ConfidenceScore float64
	ExecutionIDs    []uuid.UUID
	PatternData     map[string]any
	Metrics         map[string]float64
}

// AgentInsights bundles one agent's full analysis: trends (nil when the
// history is too short), patterns ordered most severe first, and the
// confidence mode the insight language must honor.
type AgentInsights struct {
	AgentID        uuid.UUID
	Trends         *TrendReport
	Patterns       []Pattern
	ConfidenceMode ConfidenceMode
	RunCount       int
}

// ConfidenceMode is a language-strength tier keyed to sample size.
type ConfidenceMode string

const (
	ModeObservation      ConfidenceMode = "observation"
	ModeEarlySignals     ConfidenceMode = "early_signals"
	ModeEmergingPatterns ConfidenceMode = "emerging_patterns"
	ModeConfirmed        ConfidenceMode = "confirmed"
)

// Rule is a stored, user-approved policy for auto-resolving a recurring
// data anomaly. A nil AgentID makes the rule global to the user;
// agent-specific rules win during matching.
type Rule struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	AgentID       *uuid.UUID
	TriggerField  string
	TriggerOp     string
	ActionType    string
	ActionParams  map[string]string
	AppliedCount  int
	LastAppliedAt *time.Time
	CreatedAt     time.Time
}
