// Package trend computes volume, anomaly, distribution, and duration
// trends for an agent's detected business metric over a bounded
// historical window.
package trend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowlens-ai/flowlens/internal/detect"
	"github.com/flowlens-ai/flowlens/internal/model"
)

// MetricsHistory supplies persisted aggregate rows, newest first.
// Implemented by *storage.DB.
type MetricsHistory interface {
	ListExecutionMetrics(ctx context.Context, agentID uuid.UUID, since time.Time, limit int) ([]model.ExecutionMetrics, error)
}

// MetricDetector selects the business metric for an agent's workflow.
// Implemented by *detect.Detector; callers may wrap it with caching.
type MetricDetector interface {
	Detect(ctx context.Context, agentID uuid.UUID, steps []model.StepMetric) (model.DetectedMetric, error)
}

const (
	// DefaultLookback bounds how far back trend analysis reads.
	DefaultLookback = 30 * 24 * time.Hour

	// MinDataPoints is the fewest executions a trend may be computed
	// from. Below it, analysis reports insufficient data rather than a
	// partial result.
	MinDataPoints = 7

	// fetchLimit caps the window materialized per analysis.
	fetchLimit = 100

	// anomalyBand is the spike/drop threshold in population standard
	// deviations from the historical mean.
	anomalyBand = 2.0
)

// Analyzer computes TrendMetrics for one agent at a time.
type Analyzer struct {
	store    MetricsHistory
	detector MetricDetector
	logger   *slog.Logger
	lookback time.Duration
}

// New creates an Analyzer with the default lookback window.
func New(store MetricsHistory, detector MetricDetector, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{store: store, detector: detector, logger: logger, lookback: DefaultLookback}
}

// WithLookback overrides the lookback window. Zero or negative keeps the default.
func (a *Analyzer) WithLookback(d time.Duration) *Analyzer {
	if d > 0 {
		a.lookback = d
	}
	return a
}

// Analyze computes the trend picture for an agent. A nil result with a
// nil error means insufficient data (fewer than MinDataPoints
// executions in the window) and is the expected outcome for new agents,
// not a failure.
func (a *Analyzer) Analyze(ctx context.Context, agentID uuid.UUID) (*model.TrendMetrics, error) {
	since := time.Now().UTC().Add(-a.lookback)
	rows, err := a.store.ListExecutionMetrics(ctx, agentID, since, fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("trend: fetch history: %w", err)
	}
	if len(rows) < MinDataPoints {
		a.logger.Debug("trend: insufficient data", "agent_id", agentID, "rows", len(rows))
		return nil, nil
	}

	// Detect the business metric once, against the most recent execution.
	detected, err := a.detector.Detect(ctx, agentID, rows[0].StepMetrics)
	if err != nil {
		if errors.Is(err, detect.ErrNoQualifyingSteps) {
			a.logger.Debug("trend: no detectable metric", "agent_id", agentID)
			return nil, nil
		}
		return nil, fmt.Errorf("trend: detect metric: %w", err)
	}

	// Metric value per execution, newest first, matching row order.
	n := len(rows)
	values := make([]float64, n)
	for i, row := range rows {
		values[i] = float64(detect.ExtractMetricValue(row, detected))
	}

	// Recent half is the ceil(n/2) newest rows; historical half is the
	// floor(n/2) oldest.
	recentCount := (n + 1) / 2
	recent := rows[:recentCount]
	historical := rows[recentCount:]
	recentValues := values[:recentCount]
	historicalValues := values[recentCount:]

	recentAvg := mean(recentValues)
	historicalAvg := mean(historicalValues)
	oldest7Avg := mean(values[n-MinDataPoints:])
	sigma := populationStdDev(values)

	currentDist := categoryDistribution(recent)
	baselineDist := categoryDistribution(historical)

	tm := &model.TrendMetrics{
		AgentID:              agentID.String(),
		VolumeChange7D:       PercentChange(recentAvg, historicalAvg),
		VolumeChange30D:      PercentChange(recentAvg, oldest7Avg),
		IsVolumeSpike:        recentAvg > historicalAvg+anomalyBand*sigma,
		IsVolumeDrop:         recentAvg < historicalAvg-anomalyBand*sigma,
		CategoryDistribution: currentDist,
		DistributionShift:    distributionShift(currentDist, baselineDist),
		DurationTrend:        PercentChange(avgDuration(recent), avgDuration(historical)),
		EmptyResultRate:      emptyResultRate(recent),
		FailureRate:          failureRate(rows),
		Baseline: model.TrendBaseline{
			MetricAvg:    historicalAvg,
			MetricStdDev: sigma,
			DurationAvg:  avgDuration(historical),
			Executions:   len(historical),
		},
		DetectedMetric: detected,
		DataPointCount: n,
		Confidence:     confidenceTier(n),
	}
	return tm, nil
}

func confidenceTier(n int) model.TrendConfidence {
	switch {
	case n >= 20:
		return model.TrendConfidenceHigh
	case n >= 10:
		return model.TrendConfidenceMedium
	default:
		return model.TrendConfidenceLow
	}
}

// categoryDistribution averages each field's share of total items across
// executions. Executions with zero total items carry no share
// information and are skipped.
func categoryDistribution(rows []model.ExecutionMetrics) map[string]float64 {
	sums := map[string]float64{}
	contributing := 0
	for _, row := range rows {
		if row.TotalItems == 0 {
			continue
		}
		contributing++
		for field, count := range row.ItemsByField {
			sums[field] += float64(count) / float64(row.TotalItems)
		}
	}
	if contributing == 0 {
		return map[string]float64{}
	}
	dist := make(map[string]float64, len(sums))
	for field, sum := range sums {
		dist[field] = sum / float64(contributing)
	}
	return dist
}

// distributionShift is current share minus baseline share over the union
// of fields seen in either period.
func distributionShift(current, baseline map[string]float64) map[string]float64 {
	shift := map[string]float64{}
	for field, share := range current {
		shift[field] = share - baseline[field]
	}
	for field, share := range baseline {
		if _, seen := current[field]; !seen {
			shift[field] = -share
		}
	}
	return shift
}

func avgDuration(rows []model.ExecutionMetrics) float64 {
	var sum float64
	count := 0
	for _, row := range rows {
		if row.DurationMS == nil {
			continue
		}
		sum += float64(*row.DurationMS)
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func emptyResultRate(rows []model.ExecutionMetrics) float64 {
	if len(rows) == 0 {
		return 0
	}
	empty := 0
	for _, row := range rows {
		if row.HasEmptyResults {
			empty++
		}
	}
	return float64(empty) / float64(len(rows))
}

// failureRate is sum(failed_step_count)/executions. An execution can
// fail more than one step, so this is an approximation that may exceed
// 1. Kept as-is deliberately; downstream consumers treat it as a
// relative signal, not a probability.
func failureRate(rows []model.ExecutionMetrics) float64 {
	if len(rows) == 0 {
		return 0
	}
	failed := 0
	for _, row := range rows {
		failed += row.FailedStepCount
	}
	return float64(failed) / float64(len(rows))
}
