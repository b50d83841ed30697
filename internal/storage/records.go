package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowlens-ai/flowlens/internal/model"
)

// InsertExecution records a workflow execution. Normally written by the
// upstream execution engine; exposed here for ingestion adapters and tests.
func (db *DB) InsertExecution(ctx context.Context, id, agentID uuid.UUID, status model.ExecutionStatus, startedAt time.Time, completedAt *time.Time) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO executions (id, agent_id, status, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, completed_at = EXCLUDED.completed_at`,
		id, agentID, string(status), startedAt, completedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert execution: %w", err)
	}
	return nil
}

// InsertStepRecord persists one step's telemetry.
func (db *DB) InsertStepRecord(ctx context.Context, rec model.StepExecutionRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO step_execution_records
		 (id, execution_id, agent_id, step_id, step_name, plugin, action, item_count, status, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.ExecutionID, rec.AgentID, rec.StepID, rec.StepName,
		rec.Plugin, rec.Action, rec.ItemCount, string(rec.Status), rec.Metadata, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert step record: %w", err)
	}
	return nil
}

// ListStepRecords returns all step records for an execution in creation
// order, the order steps ran in.
func (db *DB) ListStepRecords(ctx context.Context, executionID uuid.UUID) ([]model.StepExecutionRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, execution_id, agent_id, step_id, step_name, plugin, action, item_count, status, metadata, created_at
		 FROM step_execution_records
		 WHERE execution_id = $1
		 ORDER BY created_at ASC`, executionID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list step records: %w", err)
	}
	defer rows.Close()

	var records []model.StepExecutionRecord
	for rows.Next() {
		var rec model.StepExecutionRecord
		var status string
		if err := rows.Scan(
			&rec.ID, &rec.ExecutionID, &rec.AgentID, &rec.StepID, &rec.StepName,
			&rec.Plugin, &rec.Action, &rec.ItemCount, &status, &rec.Metadata, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan step record: %w", err)
		}
		rec.Status = model.StepStatus(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}
