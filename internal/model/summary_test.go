package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func step(name, plugin string, status StepStatus, count int, md StepRecordMetadata) StepExecutionRecord {
	return StepExecutionRecord{
		ID:        uuid.New(),
		StepID:    "step-" + name,
		StepName:  name,
		Plugin:    plugin,
		Action:    "run",
		ItemCount: count,
		Status:    status,
		Metadata:  md,
	}
}

func TestSummarizeExecution(t *testing.T) {
	execID := uuid.New()
	agentID := uuid.New()
	started := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	records := []StepExecutionRecord{
		step("Fetch Orders", "shopify", StepStatusSuccess, 120, StepRecordMetadata{DurationMS: 2_000, TokensUsed: 100}),
		step("Filter New Orders", "transform", StepStatusSuccess, 0, StepRecordMetadata{DurationMS: 500}),
		step("Summarize Orders", "llm", StepStatusSuccess, 30, StepRecordMetadata{DurationMS: 45_000, TokensUsed: 3_500}),
		step("Send Report", "email", StepStatusFailed, 0, StepRecordMetadata{DurationMS: 1_000}),
		step("Schedule Next", "system", StepStatusSuccess, 1, StepRecordMetadata{}),
	}

	sum := SummarizeExecution(execID, agentID, ExecutionStatusFailed, started, records, DefaultSummaryThresholds)

	require.Len(t, sum.Steps, 4, "system steps must be skipped")
	assert.Equal(t, execID, sum.ExecutionID)
	assert.Equal(t, 3_600, sum.TotalTokens)
	assert.Equal(t, int64(48_500), sum.DurationMS)
	assert.True(t, sum.IsFailed())

	// Only the successful zero-count step is an empty result; the failed
	// step's zero is a failure, not an empty result.
	assert.Equal(t, []string{"step-Filter New Orders"}, sum.EmptyResultSteps)
	assert.Equal(t, []string{"step-Summarize Orders"}, sum.SlowSteps)
	assert.Equal(t, []string{"step-Summarize Orders"}, sum.HighTokenSteps)
	assert.Equal(t, []string{"step-Send Report"}, sum.FailedNoFallbackSteps)
}

func TestSummarizeExecutionFallbackSuppressesFlag(t *testing.T) {
	rec := step("Send Report", "email", StepStatusFailed, 0, StepRecordMetadata{FallbackConfigured: true})
	sum := SummarizeExecution(uuid.New(), uuid.New(), ExecutionStatusCompleted, time.Now(), []StepExecutionRecord{rec}, DefaultSummaryThresholds)
	assert.Empty(t, sum.FailedNoFallbackSteps)
}

func TestSummarizeExecutionCustomThresholds(t *testing.T) {
	records := []StepExecutionRecord{
		step("Fetch Orders", "shopify", StepStatusSuccess, 120, StepRecordMetadata{DurationMS: 2_000, TokensUsed: 100}),
		step("Summarize Orders", "llm", StepStatusSuccess, 30, StepRecordMetadata{DurationMS: 8_000, TokensUsed: 900}),
	}

	// Under the defaults neither step is flagged.
	sum := SummarizeExecution(uuid.New(), uuid.New(), ExecutionStatusCompleted, time.Now(), records, DefaultSummaryThresholds)
	assert.Empty(t, sum.SlowSteps)
	assert.Empty(t, sum.HighTokenSteps)

	// Tighter thresholds flag the LLM step.
	sum = SummarizeExecution(uuid.New(), uuid.New(), ExecutionStatusCompleted, time.Now(), records,
		SummaryThresholds{SlowStepMS: 5_000, HighTokenStep: 500})
	assert.Equal(t, []string{"step-Summarize Orders"}, sum.SlowSteps)
	assert.Equal(t, []string{"step-Summarize Orders"}, sum.HighTokenSteps)

	// A zero value falls back to the defaults instead of flagging everything.
	sum = SummarizeExecution(uuid.New(), uuid.New(), ExecutionStatusCompleted, time.Now(), records, SummaryThresholds{})
	assert.Empty(t, sum.SlowSteps)
	assert.Empty(t, sum.HighTokenSteps)
}

func TestApprovalStepDetection(t *testing.T) {
	tests := []struct {
		name     string
		record   StepExecutionRecord
		approval bool
	}{
		{"metadata flag", step("Do Thing", "hubspot", StepStatusSuccess, 1, StepRecordMetadata{RequiresApproval: true}), true},
		{"name contains approval", step("Wait For Approval", "flow", StepStatusSuccess, 1, StepRecordMetadata{}), true},
		{"name contains review", step("Manager Review", "flow", StepStatusSuccess, 1, StepRecordMetadata{}), true},
		{"plain step", step("Fetch Tickets", "zendesk", StepStatusSuccess, 9, StepRecordMetadata{}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum := SummarizeExecution(uuid.New(), uuid.New(), ExecutionStatusCompleted, time.Now(), []StepExecutionRecord{tt.record}, DefaultSummaryThresholds)
			if tt.approval {
				assert.Len(t, sum.ApprovalSteps, 1)
			} else {
				assert.Empty(t, sum.ApprovalSteps)
			}
		})
	}
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
}
