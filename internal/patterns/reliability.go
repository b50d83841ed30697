package patterns

import (
	"github.com/flowlens-ai/flowlens/internal/model"
)

// ReliabilityDetector finds failure-prone behavior: outright execution
// failures, steps failing with no fallback configured, and performance
// degradation over the observed window.
type ReliabilityDetector struct{}

func (d *ReliabilityDetector) Category() model.PatternCategory { return model.CategoryReliability }

const (
	failureMinOccurrences    = 1
	noFallbackMinOccurrences = 2
	degradationMinDataPoints = 10
)

var failureBands = []severityBand{
	{0.15, model.SeverityMedium},
	{0.30, model.SeverityHigh},
	{0.50, model.SeverityCritical},
}

var noFallbackBands = []severityBand{
	{0.05, model.SeverityMedium},
	{0.15, model.SeverityHigh},
	{0.30, model.SeverityCritical},
}

// Degradation is banded on the duration ratio, not a frequency.
var degradationBands = []severityBand{
	{1.50, model.SeverityLow},
	{1.75, model.SeverityMedium},
	{2.00, model.SeverityHigh},
}

func (d *ReliabilityDetector) Detect(execs []model.ExecutionSummary) []model.DetectedPattern {
	var out []model.DetectedPattern
	if p, ok := d.detectFailures(execs); ok {
		out = append(out, p)
	}
	if p, ok := d.detectFailedWithoutFallback(execs); ok {
		out = append(out, p)
	}
	if p, ok := d.detectDegradation(execs); ok {
		out = append(out, p)
	}
	return out
}

func (d *ReliabilityDetector) detectFailures(execs []model.ExecutionSummary) (model.DetectedPattern, bool) {
	var affected []int
	for i, e := range execs {
		if e.IsFailed() {
			affected = append(affected, i)
		}
	}
	if len(affected) < failureMinOccurrences {
		return model.DetectedPattern{}, false
	}

	freq := float64(len(affected)) / float64(len(execs))
	return model.DetectedPattern{
		InsightType:     model.InsightExecutionFailure,
		Category:        model.CategoryReliability,
		Severity:        frequencySeverity(freq, failureBands, model.SeverityLow),
		ConfidenceScore: freq,
		ExecutionIDs:    collectIDs(execs, affected),
		PatternData: map[string]any{
			"failed_executions": len(affected),
			"frequency_pct":     pct(freq),
		},
		Metrics: map[string]float64{
			"frequency": freq,
		},
	}, true
}

func (d *ReliabilityDetector) detectFailedWithoutFallback(execs []model.ExecutionSummary) (model.DetectedPattern, bool) {
	var affected []int
	stepHits := map[string]int{}
	for i, e := range execs {
		if len(e.FailedNoFallbackSteps) == 0 {
			continue
		}
		affected = append(affected, i)
		for _, stepID := range e.FailedNoFallbackSteps {
			stepHits[stepID]++
		}
	}
	if len(affected) < noFallbackMinOccurrences {
		return model.DetectedPattern{}, false
	}

	freq := float64(len(affected)) / float64(len(execs))
	return model.DetectedPattern{
		InsightType:     model.InsightFailureWithoutFallback,
		Category:        model.CategoryReliability,
		Severity:        frequencySeverity(freq, noFallbackBands, model.SeverityLow),
		ConfidenceScore: freq,
		ExecutionIDs:    collectIDs(execs, affected),
		PatternData: map[string]any{
			"affected_executions": len(affected),
			"step_occurrences":    stepHits,
			"frequency_pct":       pct(freq),
		},
		Metrics: map[string]float64{
			"frequency": freq,
		},
	}, true
}

// detectDegradation compares average duration of the recent half of the
// window (execs are newest first) against the early half. Only emitted
// when the recent half is at least 1.5x slower.
func (d *ReliabilityDetector) detectDegradation(execs []model.ExecutionSummary) (model.DetectedPattern, bool) {
	if len(execs) < degradationMinDataPoints {
		return model.DetectedPattern{}, false
	}

	half := len(execs) / 2
	recent := execs[:half]
	early := execs[len(execs)-half:]

	recentAvg := avgExecDuration(recent)
	earlyAvg := avgExecDuration(early)
	if earlyAvg == 0 || recentAvg == 0 {
		return model.DetectedPattern{}, false
	}

	ratio := recentAvg / earlyAvg
	if ratio < degradationBands[0].threshold {
		return model.DetectedPattern{}, false
	}

	// Confidence is still a frequency: how many recent executions ran
	// slower than the early average.
	slower := 0
	var affected []int
	for i, e := range recent {
		if float64(e.DurationMS) > earlyAvg {
			slower++
			affected = append(affected, i)
		}
	}
	freq := float64(slower) / float64(len(recent))

	return model.DetectedPattern{
		InsightType:     model.InsightPerformanceDegradation,
		Category:        model.CategoryReliability,
		Severity:        frequencySeverity(ratio, degradationBands, model.SeverityLow),
		ConfidenceScore: freq,
		ExecutionIDs:    collectIDs(execs, affected),
		PatternData: map[string]any{
			"duration_ratio":     ratio,
			"recent_avg_ms":      recentAvg,
			"early_avg_ms":       earlyAvg,
			"slower_recent_runs": slower,
		},
		Metrics: map[string]float64{
			"duration_ratio": ratio,
			"frequency":      freq,
		},
	}, true
}

func avgExecDuration(execs []model.ExecutionSummary) float64 {
	if len(execs) == 0 {
		return 0
	}
	var sum float64
	for _, e := range execs {
		sum += float64(e.DurationMS)
	}
	return sum / float64(len(execs))
}
