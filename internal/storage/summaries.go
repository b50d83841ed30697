package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowlens-ai/flowlens/internal/model"
)

// ListExecutionSummaries derives pattern-detector input for an agent:
// executions started at or after since, newest first, each summarized
// from its step records. Capped at limit executions.
func (db *DB) ListExecutionSummaries(ctx context.Context, agentID uuid.UUID, since time.Time, limit int) ([]model.ExecutionSummary, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, status, started_at
		 FROM executions
		 WHERE agent_id = $1 AND started_at >= $2
		 ORDER BY started_at DESC
		 LIMIT $3`, agentID, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list executions: %w", err)
	}
	defer rows.Close()

	type execHead struct {
		id        uuid.UUID
		status    model.ExecutionStatus
		startedAt time.Time
	}
	var heads []execHead
	var ids []uuid.UUID
	for rows.Next() {
		var h execHead
		var status string
		if err := rows.Scan(&h.id, &status, &h.startedAt); err != nil {
			return nil, fmt.Errorf("storage: scan execution: %w", err)
		}
		h.status = model.ExecutionStatus(status)
		heads = append(heads, h)
		ids = append(ids, h.id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(heads) == 0 {
		return nil, nil
	}

	recRows, err := db.pool.Query(ctx,
		`SELECT id, execution_id, agent_id, step_id, step_name, plugin, action, item_count, status, metadata, created_at
		 FROM step_execution_records
		 WHERE execution_id = ANY($1)
		 ORDER BY execution_id, created_at ASC`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list step records for summaries: %w", err)
	}
	defer recRows.Close()

	byExecution := make(map[uuid.UUID][]model.StepExecutionRecord, len(heads))
	for recRows.Next() {
		var rec model.StepExecutionRecord
		var status string
		if err := recRows.Scan(
			&rec.ID, &rec.ExecutionID, &rec.AgentID, &rec.StepID, &rec.StepName,
			&rec.Plugin, &rec.Action, &rec.ItemCount, &status, &rec.Metadata, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan step record: %w", err)
		}
		rec.Status = model.StepStatus(status)
		byExecution[rec.ExecutionID] = append(byExecution[rec.ExecutionID], rec)
	}
	if err := recRows.Err(); err != nil {
		return nil, err
	}

	summaries := make([]model.ExecutionSummary, 0, len(heads))
	for _, h := range heads {
		summaries = append(summaries, model.SummarizeExecution(
			h.id, agentID, h.status, h.startedAt, byExecution[h.id], db.thresholds,
		))
	}
	return summaries, nil
}
