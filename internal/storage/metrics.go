package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowlens-ai/flowlens/internal/model"
)

// UpsertExecutionMetrics writes the aggregate row for an execution.
// Keyed by execution id, so at-least-once delivery from the execution
// pipeline is safe: re-collecting an execution overwrites the same row.
func (db *DB) UpsertExecutionMetrics(ctx context.Context, m model.ExecutionMetrics) error {
	if m.CollectedAt.IsZero() {
		m.CollectedAt = time.Now().UTC()
	}
	if m.ItemsByField == nil {
		m.ItemsByField = map[string]int{}
	}
	if m.FieldNames == nil {
		m.FieldNames = []string{}
	}
	if m.StepMetrics == nil {
		m.StepMetrics = []model.StepMetric{}
	}

	err := WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		_, err := db.pool.Exec(ctx,
			`INSERT INTO execution_metrics
			 (execution_id, agent_id, total_items, items_by_field, field_names,
			  has_empty_results, failed_step_count, duration_ms, step_metrics, collected_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (execution_id) DO UPDATE SET
			   agent_id          = EXCLUDED.agent_id,
			   total_items       = EXCLUDED.total_items,
			   items_by_field    = EXCLUDED.items_by_field,
			   field_names       = EXCLUDED.field_names,
			   has_empty_results = EXCLUDED.has_empty_results,
			   failed_step_count = EXCLUDED.failed_step_count,
			   duration_ms       = EXCLUDED.duration_ms,
			   step_metrics      = EXCLUDED.step_metrics,
			   collected_at      = EXCLUDED.collected_at`,
			m.ExecutionID, m.AgentID, m.TotalItems, m.ItemsByField, m.FieldNames,
			m.HasEmptyResults, m.FailedStepCount, m.DurationMS, m.StepMetrics, m.CollectedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: upsert execution metrics: %w", err)
	}
	return nil
}

// GetExecutionMetrics fetches the aggregate row for one execution.
func (db *DB) GetExecutionMetrics(ctx context.Context, executionID uuid.UUID) (model.ExecutionMetrics, error) {
	var m model.ExecutionMetrics
	err := db.pool.QueryRow(ctx,
		`SELECT execution_id, agent_id, total_items, items_by_field, field_names,
		        has_empty_results, failed_step_count, duration_ms, step_metrics, collected_at
		 FROM execution_metrics WHERE execution_id = $1`, executionID,
	).Scan(
		&m.ExecutionID, &m.AgentID, &m.TotalItems, &m.ItemsByField, &m.FieldNames,
		&m.HasEmptyResults, &m.FailedStepCount, &m.DurationMS, &m.StepMetrics, &m.CollectedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return model.ExecutionMetrics{}, ErrNotFound
		}
		return model.ExecutionMetrics{}, fmt.Errorf("storage: get execution metrics: %w", err)
	}
	return m, nil
}

// ListExecutionMetrics returns aggregate rows for an agent collected at or
// after since, newest first, capped at limit.
func (db *DB) ListExecutionMetrics(ctx context.Context, agentID uuid.UUID, since time.Time, limit int) ([]model.ExecutionMetrics, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT execution_id, agent_id, total_items, items_by_field, field_names,
		        has_empty_results, failed_step_count, duration_ms, step_metrics, collected_at
		 FROM execution_metrics
		 WHERE agent_id = $1 AND collected_at >= $2
		 ORDER BY collected_at DESC
		 LIMIT $3`, agentID, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list execution metrics: %w", err)
	}
	defer rows.Close()

	var out []model.ExecutionMetrics
	for rows.Next() {
		var m model.ExecutionMetrics
		if err := rows.Scan(
			&m.ExecutionID, &m.AgentID, &m.TotalItems, &m.ItemsByField, &m.FieldNames,
			&m.HasEmptyResults, &m.FailedStepCount, &m.DurationMS, &m.StepMetrics, &m.CollectedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan execution metrics: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
