// Package storage provides the PostgreSQL storage layer for FlowLens.
//
// It manages connection pooling via pgxpool and exposes query methods for
// the three collections this engine touches: step execution records
// (written upstream, read here), per-execution aggregate metrics
// (upserted by the collector), and behavior rules.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowlens-ai/flowlens/internal/model"
)

// DB wraps a pgxpool.Pool for all queries.
type DB struct {
	pool       *pgxpool.Pool
	logger     *slog.Logger
	thresholds model.SummaryThresholds
}

// New creates a new DB with a connection pool and verifies connectivity.
// dsn may point at PgBouncer or directly at Postgres.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	return &DB{pool: pool, logger: logger, thresholds: model.DefaultSummaryThresholds}, nil
}

// WithSummaryThresholds overrides the slow-step and high-token thresholds
// applied when deriving execution summaries. Returns db for chaining.
func (db *DB) WithSummaryThresholds(t model.SummaryThresholds) *DB {
	db.thresholds = t
	return db
}

// Pool returns the underlying connection pool for use by other packages.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Close releases all pooled connections.
func (db *DB) Close() {
	db.pool.Close()
}
