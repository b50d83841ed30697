package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlens-ai/flowlens/internal/model"
	"github.com/flowlens-ai/flowlens/internal/storage"
)

type fakeRuleStore struct {
	rules      []model.BehaviorRule
	createErr  error
	applyErr   error
	applied    []uuid.UUID
	lastLimit  int
	lastListed *uuid.UUID
}

func (f *fakeRuleStore) CreateRule(_ context.Context, rule model.BehaviorRule) (model.BehaviorRule, error) {
	if f.createErr != nil {
		return model.BehaviorRule{}, f.createErr
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	rule.Status = model.RuleStatusActive
	f.rules = append(f.rules, rule)
	return rule, nil
}

func (f *fakeRuleStore) DeactivateRule(_ context.Context, userID, ruleID uuid.UUID) error {
	for i := range f.rules {
		r := &f.rules[i]
		if r.ID == ruleID && r.UserID == userID && r.Status == model.RuleStatusActive {
			r.Status = model.RuleStatusInactive
			return nil
		}
	}
	return storage.ErrNotFound
}

// FindCandidateRules mirrors the SQL ordering: agent-specific rules
// before global ones.
func (f *fakeRuleStore) FindCandidateRules(_ context.Context, userID, agentID uuid.UUID, limit int) ([]model.BehaviorRule, error) {
	f.lastLimit = limit
	var specific, global []model.BehaviorRule
	for _, r := range f.rules {
		if r.UserID != userID || r.Status != model.RuleStatusActive {
			continue
		}
		switch {
		case r.AgentID != nil && *r.AgentID == agentID:
			specific = append(specific, r)
		case r.AgentID == nil:
			global = append(global, r)
		}
	}
	out := append(specific, global...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRuleStore) ListRules(_ context.Context, userID uuid.UUID, agentID *uuid.UUID) ([]model.BehaviorRule, error) {
	f.lastListed = agentID
	var out []model.BehaviorRule
	for _, r := range f.rules {
		if r.UserID != userID || r.Status != model.RuleStatusActive {
			continue
		}
		if agentID != nil && r.AgentID != nil && *r.AgentID != *agentID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRuleStore) IncrementRuleApplication(_ context.Context, ruleID uuid.UUID) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, ruleID)
	return nil
}

func rule(userID uuid.UUID, agentID *uuid.UUID, field, operator, action string) model.BehaviorRule {
	return model.BehaviorRule{
		ID:     uuid.New(),
		UserID: userID,
		AgentID: agentID,
		Trigger: model.TriggerCondition{
			DataPattern: model.DataPattern{Field: field, Operator: operator},
		},
		Action:    model.RuleAction{Type: action},
		Status:    model.RuleStatusActive,
		CreatedAt: time.Now().UTC(),
	}
}

func TestFindMatchingRuleAgentSpecificWins(t *testing.T) {
	userID := uuid.New()
	agentID := uuid.New()

	global := rule(userID, nil, "email", "empty", "skip_step")
	specific := rule(userID, &agentID, "email", "empty", "use_default")

	store := &fakeRuleStore{rules: []model.BehaviorRule{global, specific}}
	m := New(store, nil)

	got, err := m.FindMatchingRule(context.Background(), userID, agentID, "email", "empty")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, specific.ID, got.ID)
	assert.Equal(t, "use_default", got.Action.Type)
	assert.Equal(t, candidateLimit, store.lastLimit)
}

func TestFindMatchingRuleExactMatchOnly(t *testing.T) {
	userID := uuid.New()
	agentID := uuid.New()
	store := &fakeRuleStore{rules: []model.BehaviorRule{
		rule(userID, nil, "email", "empty", "skip_step"),
	}}
	m := New(store, nil)

	tests := []struct {
		name     string
		field    string
		operator string
		match    bool
	}{
		{"exact match", "email", "empty", true},
		{"different field", "phone", "empty", false},
		{"different operator", "email", "missing", false},
		{"case differs", "Email", "empty", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.FindMatchingRule(context.Background(), userID, agentID, tt.field, tt.operator)
			require.NoError(t, err)
			assert.Equal(t, tt.match, got != nil)
		})
	}
}

func TestFindMatchingRuleNoCandidates(t *testing.T) {
	m := New(&fakeRuleStore{}, nil)
	got, err := m.FindMatchingRule(context.Background(), uuid.New(), uuid.New(), "email", "empty")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateRuleValidation(t *testing.T) {
	store := &fakeRuleStore{}
	m := New(store, nil)
	userID := uuid.New()

	tests := []struct {
		name string
		rule model.BehaviorRule
	}{
		{"missing user", rule(uuid.Nil, nil, "email", "empty", "skip_step")},
		{"missing field", rule(userID, nil, "", "empty", "skip_step")},
		{"missing operator", rule(userID, nil, "email", "", "skip_step")},
		{"missing action", rule(userID, nil, "email", "empty", "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.CreateRule(context.Background(), tt.rule)
			assert.Error(t, err)
		})
	}
	assert.Empty(t, store.rules)

	created, err := m.CreateRule(context.Background(), rule(userID, nil, "email", "empty", "skip_step"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, model.RuleStatusActive, created.Status)
}

func TestDeactivateRulePropagatesNotFound(t *testing.T) {
	userID := uuid.New()
	r := rule(userID, nil, "email", "empty", "skip_step")
	store := &fakeRuleStore{rules: []model.BehaviorRule{r}}
	m := New(store, nil)

	require.NoError(t, m.DeactivateRule(context.Background(), userID, r.ID))

	// Already inactive.
	err := m.DeactivateRule(context.Background(), userID, r.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Wrong user.
	err = m.DeactivateRule(context.Background(), uuid.New(), r.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecordRuleApplicationSwallowsErrors(t *testing.T) {
	store := &fakeRuleStore{applyErr: errors.New("connection reset")}
	m := New(store, nil)

	// Must not panic or surface the error.
	m.RecordRuleApplication(context.Background(), uuid.New())

	store.applyErr = nil
	id := uuid.New()
	m.RecordRuleApplication(context.Background(), id)
	assert.Equal(t, []uuid.UUID{id}, store.applied)
}

func TestGetRulesScoping(t *testing.T) {
	userID := uuid.New()
	agentA := uuid.New()
	agentB := uuid.New()
	store := &fakeRuleStore{rules: []model.BehaviorRule{
		rule(userID, &agentA, "email", "empty", "skip_step"),
		rule(userID, &agentB, "phone", "empty", "skip_step"),
		rule(userID, nil, "name", "missing", "notify"),
	}}
	m := New(store, nil)

	all, err := m.GetRules(context.Background(), userID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	scoped, err := m.GetRules(context.Background(), userID, &agentA)
	require.NoError(t, err)
	assert.Len(t, scoped, 2)
}
