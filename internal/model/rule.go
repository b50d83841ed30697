package model

import (
	"time"

	"github.com/google/uuid"
)

// RuleStatus is the lifecycle state of a behavior rule. Rules are
// soft-deactivated, never hard-deleted by normal flow.
type RuleStatus string

const (
	RuleStatusActive   RuleStatus = "active"
	RuleStatusInactive RuleStatus = "inactive"
)

// DataPattern describes the data anomaly a rule triggers on: a field
// name and a condition operator (e.g. "empty", "missing", "duplicate").
// Matching is exact on both, no wildcards in this version.
type DataPattern struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
}

// TriggerCondition wraps the data pattern a rule fires on.
type TriggerCondition struct {
	DataPattern DataPattern `json:"data_pattern"`
}

// Matches reports whether the condition fires for the given anomaly.
func (c TriggerCondition) Matches(field, operator string) bool {
	return c.DataPattern.Field == field && c.DataPattern.Operator == operator
}

// RuleAction is the resolution the user approved for the trigger,
// e.g. {"skip_step", nil} or {"use_default", {"value_source": "previous_run"}}.
// Params carry configuration names, never record data.
type RuleAction struct {
	Type   string            `json:"type"`
	Params map[string]string `json:"params,omitempty"`
}

// BehaviorRule is a stored, user-approved policy for auto-resolving a
// recurring data anomaly without re-prompting the user. A nil AgentID
// makes the rule global to the user; agent-specific rules take
// precedence during matching.
type BehaviorRule struct {
	ID            uuid.UUID        `json:"id"`
	UserID        uuid.UUID        `json:"user_id"`
	AgentID       *uuid.UUID       `json:"agent_id,omitempty"`
	Trigger       TriggerCondition `json:"trigger_condition"`
	Action        RuleAction       `json:"action"`
	Status        RuleStatus       `json:"status"`
	AppliedCount  int              `json:"applied_count"`
	LastAppliedAt *time.Time       `json:"last_applied_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// IsGlobal reports whether the rule applies to all of the user's agents.
func (r BehaviorRule) IsGlobal() bool { return r.AgentID == nil }
