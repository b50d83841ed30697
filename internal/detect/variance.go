package detect

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/flowlens-ai/flowlens/internal/model"
)

// varianceStrategy identifies the business metric by how much a step's
// count moves across executions: stable plumbing steps have a low
// coefficient of variation, the interesting step swings with the data.
// Requires at least varianceMinHistory historical executions and inspects
// at most the varianceWindow most recent.
type varianceStrategy struct {
	history HistorySource
	logger  *slog.Logger
}

func (v *varianceStrategy) method() model.DetectionMethod { return model.DetectionVariance }

const varianceFloor = 0.2

func (v *varianceStrategy) detect(ctx context.Context, agentID uuid.UUID, steps []model.StepMetric) (model.DetectedMetric, bool) {
	if v.history == nil || len(steps) == 0 {
		return model.DetectedMetric{}, false
	}

	since := time.Now().UTC().Add(-varianceLookback)
	rows, err := v.history.ListExecutionMetrics(ctx, agentID, since, varianceWindow)
	if err != nil {
		v.logger.Warn("variance strategy: history fetch failed", "agent_id", agentID, "error", err)
		return model.DetectedMetric{}, false
	}
	if len(rows) < varianceMinHistory {
		return model.DetectedMetric{}, false
	}

	bestIdx := -1
	bestCV := 0.0
	for i, step := range steps {
		counts := countsAcrossHistory(rows, step.StepName)
		if len(counts) < varianceMinHistory {
			continue
		}
		cv := coefficientOfVariation(counts)
		if cv > bestCV {
			bestIdx, bestCV = i, cv
		}
	}

	if bestIdx < 0 || bestCV <= varianceFloor {
		return model.DetectedMetric{}, false
	}

	return model.DetectedMetric{
		Step:            steps[bestIdx],
		StepIndex:       bestIdx,
		Confidence:      0.6,
		DetectionMethod: model.DetectionVariance,
		Reasoning: fmt.Sprintf("count of %q varies most across %d executions (cv %.2f)",
			steps[bestIdx].StepName, len(rows), bestCV),
	}, true
}

// countsAcrossHistory collects the step's count from every historical
// row that ran a step with the same name.
func countsAcrossHistory(rows []model.ExecutionMetrics, stepName string) []float64 {
	var counts []float64
	for _, row := range rows {
		for _, s := range row.StepMetrics {
			if s.StepName == stepName {
				counts = append(counts, float64(s.Count))
				break
			}
		}
	}
	return counts
}

// coefficientOfVariation is population stddev divided by mean. Returns 0
// for a zero mean: a flat-zero step carries no variance signal.
func coefficientOfVariation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return 0
	}

	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	stddev := math.Sqrt(ss / float64(len(values)))
	return stddev / mean
}
