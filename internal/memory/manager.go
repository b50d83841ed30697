// Package memory manages behavior rules: user-approved policies that
// resolve recurring data anomalies without re-prompting. It sits between
// the public API and storage, owning candidate matching and application
// bookkeeping.
package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/flowlens-ai/flowlens/internal/model"
)

// candidateLimit caps how many rules one match attempt considers.
const candidateLimit = 10

// RuleStore is the slice of the storage layer the manager needs.
// *storage.DB satisfies it.
type RuleStore interface {
	CreateRule(ctx context.Context, rule model.BehaviorRule) (model.BehaviorRule, error)
	DeactivateRule(ctx context.Context, userID, ruleID uuid.UUID) error
	FindCandidateRules(ctx context.Context, userID, agentID uuid.UUID, limit int) ([]model.BehaviorRule, error)
	ListRules(ctx context.Context, userID uuid.UUID, agentID *uuid.UUID) ([]model.BehaviorRule, error)
	IncrementRuleApplication(ctx context.Context, ruleID uuid.UUID) error
}

// Manager owns the behavior rule lifecycle.
type Manager struct {
	store  RuleStore
	logger *slog.Logger
}

func New(store RuleStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger}
}

// FindMatchingRule returns the first active rule whose trigger condition
// exactly matches the anomaly's field and operator, or nil when nothing
// matches. Candidates arrive agent-specific first, so an agent-scoped
// rule always beats a global rule covering the same anomaly.
func (m *Manager) FindMatchingRule(ctx context.Context, userID, agentID uuid.UUID, field, operator string) (*model.BehaviorRule, error) {
	candidates, err := m.store.FindCandidateRules(ctx, userID, agentID, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("memory: find matching rule: %w", err)
	}
	for i := range candidates {
		if candidates[i].Trigger.Matches(field, operator) {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

// CreateRule validates and persists a new rule.
func (m *Manager) CreateRule(ctx context.Context, rule model.BehaviorRule) (model.BehaviorRule, error) {
	if rule.UserID == uuid.Nil {
		return model.BehaviorRule{}, fmt.Errorf("memory: create rule: user id is required")
	}
	if rule.Trigger.DataPattern.Field == "" || rule.Trigger.DataPattern.Operator == "" {
		return model.BehaviorRule{}, fmt.Errorf("memory: create rule: trigger field and operator are required")
	}
	if rule.Action.Type == "" {
		return model.BehaviorRule{}, fmt.Errorf("memory: create rule: action type is required")
	}

	created, err := m.store.CreateRule(ctx, rule)
	if err != nil {
		return model.BehaviorRule{}, err
	}
	m.logger.Info("behavior rule created",
		"rule_id", created.ID,
		"field", created.Trigger.DataPattern.Field,
		"operator", created.Trigger.DataPattern.Operator,
		"global", created.IsGlobal(),
	)
	return created, nil
}

// DeactivateRule soft-deletes a rule. storage.ErrNotFound propagates
// when the rule does not exist, is inactive, or belongs to someone else.
func (m *Manager) DeactivateRule(ctx context.Context, userID, ruleID uuid.UUID) error {
	if err := m.store.DeactivateRule(ctx, userID, ruleID); err != nil {
		return err
	}
	m.logger.Info("behavior rule deactivated", "rule_id", ruleID)
	return nil
}

// RecordRuleApplication bumps the rule's usage counters. Bookkeeping
// must never fail the execution that applied the rule, so errors are
// logged and swallowed.
func (m *Manager) RecordRuleApplication(ctx context.Context, ruleID uuid.UUID) {
	if err := m.store.IncrementRuleApplication(ctx, ruleID); err != nil {
		m.logger.Warn("failed to record rule application", "rule_id", ruleID, "error", err)
	}
}

// GetRules returns the user's active rules, optionally narrowed to an
// agent (agent-specific plus global).
func (m *Manager) GetRules(ctx context.Context, userID uuid.UUID, agentID *uuid.UUID) ([]model.BehaviorRule, error) {
	return m.store.ListRules(ctx, userID, agentID)
}
