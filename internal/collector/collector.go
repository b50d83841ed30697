// Package collector aggregates raw step execution records into
// privacy-safe per-execution metrics. It reads structural telemetry
// (counts, statuses, field names, durations) and never record values.
package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/flowlens-ai/flowlens/internal/model"
	"github.com/flowlens-ai/flowlens/internal/telemetry"
)

// RecordSource is the slice of the storage layer that yields step
// records for an execution. *storage.DB satisfies it.
type RecordSource interface {
	ListStepRecords(ctx context.Context, executionID uuid.UUID) ([]model.StepExecutionRecord, error)
}

// MetricsSink persists the aggregated metrics. *storage.DB satisfies it.
type MetricsSink interface {
	UpsertExecutionMetrics(ctx context.Context, m model.ExecutionMetrics) error
}

// CollectRequest identifies the execution to aggregate. CompletedAt and
// TrackedTotalMS are optional duration sources, tried in that order.
type CollectRequest struct {
	ExecutionID uuid.UUID
	AgentID     uuid.UUID
	StartedAt   time.Time
	CompletedAt *time.Time

	// TrackedTotalMS is the engine-reported total, used when timestamps
	// are incomplete.
	TrackedTotalMS *int64
}

// Collector turns step records into ExecutionMetrics rows.
type Collector struct {
	source RecordSource
	sink   MetricsSink
	logger *slog.Logger

	collected metric.Int64Counter
}

func New(source RecordSource, sink MetricsSink, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	counter, err := telemetry.Meter("flowlens/collector").Int64Counter("flowlens.collector.executions",
		metric.WithDescription("Executions aggregated into metrics"),
	)
	if err != nil {
		logger.Warn("failed to create collector counter", "error", err)
	}
	return &Collector{source: source, sink: sink, logger: logger, collected: counter}
}

// Collect aggregates the execution's step records and upserts one
// ExecutionMetrics row. Collection is best-effort: a persist failure is
// logged and swallowed so it can never fail the workflow that triggered
// it. Errors reading the records do surface, since there is nothing to
// aggregate without them.
func (c *Collector) Collect(ctx context.Context, req CollectRequest) (*model.ExecutionMetrics, error) {
	records, err := c.source.ListStepRecords(ctx, req.ExecutionID)
	if err != nil {
		return nil, err
	}

	m := c.aggregate(req, records)
	c.auditFieldNames(req.ExecutionID, m.FieldNames)

	if err := c.sink.UpsertExecutionMetrics(ctx, m); err != nil {
		c.logger.Error("failed to persist execution metrics",
			"execution_id", req.ExecutionID, "error", err)
		return &m, nil
	}

	if c.collected != nil {
		c.collected.Add(ctx, 1, metric.WithAttributes(
			attribute.String("agent_id", req.AgentID.String()),
		))
	}
	c.logger.Debug("execution metrics collected",
		"execution_id", req.ExecutionID,
		"total_items", m.TotalItems,
		"steps", len(m.StepMetrics),
		"failed_steps", m.FailedStepCount,
	)
	return &m, nil
}

func (c *Collector) aggregate(req CollectRequest, records []model.StepExecutionRecord) model.ExecutionMetrics {
	m := model.ExecutionMetrics{
		ExecutionID:  req.ExecutionID,
		AgentID:      req.AgentID,
		ItemsByField: map[string]int{},
		FieldNames:   []string{},
		StepMetrics:  []model.StepMetric{},
		CollectedAt:  time.Now().UTC(),
	}

	seenFields := map[string]bool{}
	for _, r := range records {
		if r.IsSystemStep() {
			continue
		}

		m.TotalItems += r.ItemCount
		if r.ItemCount == 0 {
			m.HasEmptyResults = true
		}
		if r.Status == model.StepStatusFailed {
			m.FailedStepCount++
		}

		for _, field := range r.Metadata.FieldNames {
			m.ItemsByField[model.FieldCountKey(field)] += r.ItemCount
			if !seenFields[field] {
				seenFields[field] = true
				m.FieldNames = append(m.FieldNames, field)
			}
		}

		// Zero counts are kept on purpose: a step that found nothing is
		// still a data point.
		m.StepMetrics = append(m.StepMetrics, model.StepMetric{
			Plugin:   r.Plugin,
			Action:   r.Action,
			StepName: r.StepName,
			Count:    r.ItemCount,
			Fields:   r.Metadata.FieldNames,
		})
	}

	if len(m.StepMetrics) == 0 {
		m.HasEmptyResults = true
	}

	m.DurationMS = executionDuration(req, records)
	return m
}

// executionDuration prefers wall-clock timestamps, falls back to the
// engine-tracked total from the request or any step's metadata.
func executionDuration(req CollectRequest, records []model.StepExecutionRecord) *int64 {
	if req.CompletedAt != nil && !req.StartedAt.IsZero() && !req.CompletedAt.Before(req.StartedAt) {
		d := req.CompletedAt.Sub(req.StartedAt).Milliseconds()
		return &d
	}
	if req.TrackedTotalMS != nil {
		return req.TrackedTotalMS
	}
	for _, r := range records {
		if r.Metadata.TotalExecutionMS != nil {
			return r.Metadata.TotalExecutionMS
		}
	}
	return nil
}
