// Package model defines the core domain types for FlowLens.
//
// All types correspond directly to database tables or derived analytic
// views. Types use strong typing (UUIDs, time.Time, enums) and avoid
// interface{} wherever possible. The central privacy invariant lives here:
// no type in this package ever carries a record field *value*, only
// counts, booleans, durations, and field *names*.
package model

import (
	"time"

	"github.com/google/uuid"
)

// StepStatus is the terminal state of a single workflow step.
type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
)

// ExecutionStatus is the terminal state of a whole workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusTimeout   ExecutionStatus = "timeout"
)

// SystemPlugins are plugin identifiers whose steps carry no business
// signal (scheduling, control flow, bookkeeping). The collector and the
// metric detector skip them.
var SystemPlugins = map[string]bool{
	"system":   true,
	"core":     true,
	"internal": true,
}

// StepRecordMetadata is the structural metadata the execution engine
// attaches to each step record. FieldNames lists the names of fields
// present in the step's output, never their values.
type StepRecordMetadata struct {
	FieldNames         []string `json:"field_names,omitempty"`
	FallbackConfigured bool     `json:"fallback_configured,omitempty"`
	RequiresApproval   bool     `json:"requires_approval,omitempty"`
	TokensUsed         int      `json:"tokens_used,omitempty"`
	DurationMS         int64    `json:"duration_ms,omitempty"`
	TotalExecutionMS   *int64   `json:"total_execution_ms,omitempty"`
}

// StepExecutionRecord is one step's telemetry, written by the upstream
// execution engine and immutable once written. It is the only input the
// collector reads.
type StepExecutionRecord struct {
	ID          uuid.UUID          `json:"id"`
	ExecutionID uuid.UUID          `json:"execution_id"`
	AgentID     uuid.UUID          `json:"agent_id"`
	StepID      string             `json:"step_id"`
	StepName    string             `json:"step_name"`
	Plugin      string             `json:"plugin"`
	Action      string             `json:"action"`
	ItemCount   int                `json:"item_count"`
	Status      StepStatus         `json:"status"`
	Metadata    StepRecordMetadata `json:"metadata"`
	CreatedAt   time.Time          `json:"created_at"`
}

// IsSystemStep reports whether the record belongs to a system plugin.
func (r StepExecutionRecord) IsSystemStep() bool {
	return SystemPlugins[r.Plugin]
}

// StepMetric is the projection of a StepExecutionRecord used for metric
// detection and trend math. Zero counts are preserved: "0 open
// complaints" can itself be the business signal.
type StepMetric struct {
	Plugin   string   `json:"plugin"`
	Action   string   `json:"action"`
	StepName string   `json:"step_name"`
	Count    int      `json:"count"`
	Fields   []string `json:"fields,omitempty"`
}
