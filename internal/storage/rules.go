package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flowlens-ai/flowlens/internal/model"
)

const ruleColumns = `id, user_id, agent_id, trigger_condition, action, status, applied_count, last_applied_at, created_at`

// CreateRule inserts a new behavior rule and returns it.
func (db *DB) CreateRule(ctx context.Context, rule model.BehaviorRule) (model.BehaviorRule, error) {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.Status == "" {
		rule.Status = model.RuleStatusActive
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO behavior_rules (id, user_id, agent_id, trigger_condition, action, status, applied_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rule.ID, rule.UserID, rule.AgentID, rule.Trigger, rule.Action,
		string(rule.Status), rule.AppliedCount, rule.CreatedAt,
	)
	if err != nil {
		return model.BehaviorRule{}, fmt.Errorf("storage: create rule: %w", err)
	}
	return rule, nil
}

// DeactivateRule soft-deletes a rule by flipping its status. Returns
// ErrNotFound when no active rule with that id belongs to the user.
func (db *DB) DeactivateRule(ctx context.Context, userID, ruleID uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE behavior_rules SET status = $1
		 WHERE id = $2 AND user_id = $3 AND status = $4`,
		string(model.RuleStatusInactive), ruleID, userID, string(model.RuleStatusActive),
	)
	if err != nil {
		return fmt.Errorf("storage: deactivate rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindCandidateRules returns up to limit active rules for the user that
// are either specific to agentID or global (agent_id IS NULL), with
// agent-specific rules first so they win exact-match ties.
func (db *DB) FindCandidateRules(ctx context.Context, userID, agentID uuid.UUID, limit int) ([]model.BehaviorRule, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+ruleColumns+`
		 FROM behavior_rules
		 WHERE user_id = $1 AND status = $2 AND (agent_id = $3 OR agent_id IS NULL)
		 ORDER BY (agent_id IS NULL) ASC, created_at DESC
		 LIMIT $4`,
		userID, string(model.RuleStatusActive), agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: find candidate rules: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

// ListRules returns all active rules visible to the user for display:
// agent-specific rules for agentID plus the user's global rules.
func (db *DB) ListRules(ctx context.Context, userID uuid.UUID, agentID *uuid.UUID) ([]model.BehaviorRule, error) {
	query := `SELECT ` + ruleColumns + `
		 FROM behavior_rules
		 WHERE user_id = $1 AND status = $2`
	args := []any{userID, string(model.RuleStatusActive)}
	if agentID != nil {
		query += ` AND (agent_id = $3 OR agent_id IS NULL)`
		args = append(args, *agentID)
	}
	query += ` ORDER BY (agent_id IS NULL) ASC, created_at DESC`

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list rules: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

// IncrementRuleApplication bumps applied_count and stamps last_applied_at
// in a single UPDATE. The increment happens in SQL, not read-modify-write,
// so concurrent executions applying the same rule never lose updates.
func (db *DB) IncrementRuleApplication(ctx context.Context, ruleID uuid.UUID) error {
	var affected int64
	err := WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		tag, err := db.pool.Exec(ctx,
			`UPDATE behavior_rules
			 SET applied_count = applied_count + 1, last_applied_at = now()
			 WHERE id = $1`, ruleID,
		)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage: increment rule application: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRules(rows pgx.Rows) ([]model.BehaviorRule, error) {
	var rules []model.BehaviorRule
	for rows.Next() {
		var r model.BehaviorRule
		var status string
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.AgentID, &r.Trigger, &r.Action,
			&status, &r.AppliedCount, &r.LastAppliedAt, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan rule: %w", err)
		}
		r.Status = model.RuleStatus(status)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
