// Package detect identifies which workflow step represents the business
// metric, the step whose item count is the headline trend number, with
// no user configuration.
//
// Four ordered strategies are tried in sequence, first success wins:
// semantic step-name scoring, funnel-narrowing analysis, cross-execution
// variance analysis, and a last-step fallback. The fallback always
// succeeds given at least one non-system step with a positive count, so
// detection never comes back empty for a real workflow.
package detect

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowlens-ai/flowlens/internal/model"
)

// ErrNoQualifyingSteps is returned when an execution has no non-system
// step with a positive item count.
var ErrNoQualifyingSteps = errors.New("detect: no qualifying steps")

// HistorySource supplies historical aggregate rows for the variance
// strategy. Implemented by *storage.DB.
type HistorySource interface {
	ListExecutionMetrics(ctx context.Context, agentID uuid.UUID, since time.Time, limit int) ([]model.ExecutionMetrics, error)
}

const (
	// varianceMinHistory is the minimum execution count before the
	// variance strategy may run.
	varianceMinHistory = 7

	// varianceWindow caps how many recent executions variance inspects.
	varianceWindow = 30

	// varianceLookback bounds how far back history is fetched.
	varianceLookback = 30 * 24 * time.Hour
)

// strategy is one detection approach. ok=false means the strategy could
// not produce a result and the chain moves on.
type strategy interface {
	method() model.DetectionMethod
	detect(ctx context.Context, agentID uuid.UUID, steps []model.StepMetric) (model.DetectedMetric, bool)
}

// Detector runs the strategy chain.
type Detector struct {
	logger     *slog.Logger
	strategies []strategy
}

// New creates a Detector. history may be nil, in which case the variance
// strategy is skipped and the chain falls straight through to fallback.
func New(history HistorySource, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		logger: logger,
		strategies: []strategy{
			&semanticStrategy{},
			&funnelStrategy{},
			&varianceStrategy{history: history, logger: logger},
			&fallbackStrategy{},
		},
	}
}

// Detect picks the business-metric step from one execution's step
// metrics. System-plugin steps are excluded before scoring. Returns
// ErrNoQualifyingSteps only when no non-system step has a positive count.
func (d *Detector) Detect(ctx context.Context, agentID uuid.UUID, steps []model.StepMetric) (model.DetectedMetric, error) {
	business := make([]model.StepMetric, 0, len(steps))
	for _, s := range steps {
		if model.SystemPlugins[s.Plugin] {
			continue
		}
		business = append(business, s)
	}

	for _, strat := range d.strategies {
		if dm, ok := strat.detect(ctx, agentID, business); ok {
			d.logger.Debug("business metric detected",
				"agent_id", agentID,
				"method", dm.DetectionMethod,
				"step", dm.Step.StepName,
				"confidence", dm.Confidence,
			)
			return dm, nil
		}
	}

	return model.DetectedMetric{}, ErrNoQualifyingSteps
}

// ExtractMetricValue returns the count of the step in metrics matching
// the detected step by name, or 0 when the execution had no such step.
func ExtractMetricValue(metrics model.ExecutionMetrics, detected model.DetectedMetric) int {
	for _, s := range metrics.StepMetrics {
		if s.StepName == detected.Step.StepName {
			return s.Count
		}
	}
	return 0
}

// fallbackStrategy picks the last non-system step with a positive count,
// scanning from the end. Low confidence, but it keeps downstream trend
// analysis alive for workflows nothing else understands.
type fallbackStrategy struct{}

func (f *fallbackStrategy) method() model.DetectionMethod { return model.DetectionFallback }

func (f *fallbackStrategy) detect(_ context.Context, _ uuid.UUID, steps []model.StepMetric) (model.DetectedMetric, bool) {
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Count > 0 {
			return model.DetectedMetric{
				Step:            steps[i],
				StepIndex:       i,
				Confidence:      0.4,
				DetectionMethod: model.DetectionFallback,
				Reasoning:       "last step with a positive item count",
			}, true
		}
	}
	return model.DetectedMetric{}, false
}
