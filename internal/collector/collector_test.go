package collector

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlens-ai/flowlens/internal/model"
)

type fakeSource struct {
	records []model.StepExecutionRecord
	err     error
}

func (f *fakeSource) ListStepRecords(context.Context, uuid.UUID) ([]model.StepExecutionRecord, error) {
	return f.records, f.err
}

type fakeSink struct {
	stored []model.ExecutionMetrics
	err    error
}

func (f *fakeSink) UpsertExecutionMetrics(_ context.Context, m model.ExecutionMetrics) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, m)
	return nil
}

func record(plugin, stepName string, count int, status model.StepStatus, fields ...string) model.StepExecutionRecord {
	return model.StepExecutionRecord{
		ID:       uuid.New(),
		StepID:   stepName,
		StepName: stepName,
		Plugin:   plugin,
		Action:   "run",
		ItemCount: count,
		Status:    status,
		Metadata:  model.StepRecordMetadata{FieldNames: fields},
	}
}

func TestCollectAggregates(t *testing.T) {
	source := &fakeSource{records: []model.StepExecutionRecord{
		record("system", "Schedule Trigger", 1, model.StepStatusSuccess),
		record("sheets", "Fetch Rows", 100, model.StepStatusSuccess, "email", "name"),
		record("transform", "Filter New", 40, model.StepStatusSuccess, "email"),
		record("mailer", "Send Digest", 0, model.StepStatusFailed),
	}}
	sink := &fakeSink{}
	c := New(source, sink, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	started := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	completed := started.Add(48500 * time.Millisecond)
	got, err := c.Collect(context.Background(), CollectRequest{
		ExecutionID: uuid.New(),
		AgentID:     uuid.New(),
		StartedAt:   started,
		CompletedAt: &completed,
	})
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, 140, got.TotalItems)
	assert.Equal(t, map[string]int{"has_email": 140, "has_name": 100}, got.ItemsByField)
	assert.Equal(t, []string{"email", "name"}, got.FieldNames)
	assert.True(t, got.HasEmptyResults)
	assert.Equal(t, 1, got.FailedStepCount)
	require.NotNil(t, got.DurationMS)
	assert.Equal(t, int64(48500), *got.DurationMS)

	// System step excluded, zero-count step kept.
	require.Len(t, got.StepMetrics, 3)
	assert.Equal(t, "Send Digest", got.StepMetrics[2].StepName)
	assert.Equal(t, 0, got.StepMetrics[2].Count)

	require.Len(t, sink.stored, 1)
}

func TestCollectEmptyExecution(t *testing.T) {
	// Only system steps: nothing to aggregate, but the invariant
	// total_items == 0 implies has_empty_results still holds.
	source := &fakeSource{records: []model.StepExecutionRecord{
		record("core", "Init", 1, model.StepStatusSuccess),
	}}
	sink := &fakeSink{}
	c := New(source, sink, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	got, err := c.Collect(context.Background(), CollectRequest{
		ExecutionID: uuid.New(),
		AgentID:     uuid.New(),
		StartedAt:   time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, got.TotalItems)
	assert.True(t, got.HasEmptyResults)
	assert.Empty(t, got.StepMetrics)
}

func TestCollectDurationFallbacks(t *testing.T) {
	started := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	tracked := int64(12_000)
	metaTotal := int64(7_500)

	tests := []struct {
		name    string
		req     CollectRequest
		records []model.StepExecutionRecord
		want    *int64
	}{
		{
			name: "tracked total when no completion timestamp",
			req:  CollectRequest{StartedAt: started, TrackedTotalMS: &tracked},
			want: &tracked,
		},
		{
			name: "step metadata total as last resort",
			req:  CollectRequest{StartedAt: started},
			records: []model.StepExecutionRecord{{
				Plugin: "sheets", StepName: "Fetch", ItemCount: 1,
				Status:   model.StepStatusSuccess,
				Metadata: model.StepRecordMetadata{TotalExecutionMS: &metaTotal},
			}},
			want: &metaTotal,
		},
		{
			name: "nil when nothing is available",
			req:  CollectRequest{StartedAt: started},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(&fakeSource{records: tt.records}, &fakeSink{},
				slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
			tt.req.ExecutionID = uuid.New()
			got, err := c.Collect(context.Background(), tt.req)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, got.DurationMS)
			} else {
				require.NotNil(t, got.DurationMS)
				assert.Equal(t, *tt.want, *got.DurationMS)
			}
		})
	}
}

func TestCollectPersistFailureIsSoft(t *testing.T) {
	source := &fakeSource{records: []model.StepExecutionRecord{
		record("sheets", "Fetch", 5, model.StepStatusSuccess),
	}}
	sink := &fakeSink{err: errors.New("connection refused")}

	var buf bytes.Buffer
	c := New(source, sink, slog.New(slog.NewTextHandler(&buf, nil)))

	got, err := c.Collect(context.Background(), CollectRequest{
		ExecutionID: uuid.New(), AgentID: uuid.New(), StartedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Contains(t, buf.String(), "failed to persist execution metrics")
}

func TestCollectSourceErrorSurfaces(t *testing.T) {
	c := New(&fakeSource{err: errors.New("boom")}, &fakeSink{},
		slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	_, err := c.Collect(context.Background(), CollectRequest{ExecutionID: uuid.New()})
	assert.Error(t, err)
}

func TestAuditWarnsOnSensitiveFieldNames(t *testing.T) {
	source := &fakeSource{records: []model.StepExecutionRecord{
		record("crm", "Sync Users", 3, model.StepStatusSuccess, "user_password", "email"),
	}}
	var buf bytes.Buffer
	c := New(source, &fakeSink{}, slog.New(slog.NewTextHandler(&buf, nil)))

	_, err := c.Collect(context.Background(), CollectRequest{
		ExecutionID: uuid.New(), AgentID: uuid.New(), StartedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "sensitive pattern")
	assert.Contains(t, buf.String(), "user_password")
}

func TestAuditWarnsOnOversizedFieldName(t *testing.T) {
	long := make([]byte, 120)
	for i := range long {
		long[i] = 'x'
	}
	source := &fakeSource{records: []model.StepExecutionRecord{
		record("crm", "Sync", 3, model.StepStatusSuccess, string(long)),
	}}
	var buf bytes.Buffer
	c := New(source, &fakeSink{}, slog.New(slog.NewTextHandler(&buf, nil)))

	_, err := c.Collect(context.Background(), CollectRequest{
		ExecutionID: uuid.New(), AgentID: uuid.New(), StartedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "suspiciously long")
}

func TestAuditNeverBlocksCollection(t *testing.T) {
	source := &fakeSource{records: []model.StepExecutionRecord{
		record("crm", "Sync", 3, model.StepStatusSuccess, "api_key_name"),
	}}
	sink := &fakeSink{}
	c := New(source, sink, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	got, err := c.Collect(context.Background(), CollectRequest{
		ExecutionID: uuid.New(), AgentID: uuid.New(), StartedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"api_key_name"}, got.FieldNames)
	require.Len(t, sink.stored, 1)
}
