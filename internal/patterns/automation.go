package patterns

import (
	"github.com/flowlens-ai/flowlens/internal/model"
)

// AutomationDetector finds manual approval gates that recur often enough
// to be worth automating away with a behavior rule.
type AutomationDetector struct{}

func (d *AutomationDetector) Category() model.PatternCategory { return model.CategoryAutomation }

const (
	approvalMinOccurrences = 5
	approvalMinFrequency   = 0.50
)

var approvalBands = []severityBand{
	{0.60, model.SeverityMedium},
	{0.80, model.SeverityHigh},
}

func (d *AutomationDetector) Detect(execs []model.ExecutionSummary) []model.DetectedPattern {
	var affected []int
	stepHits := map[string]int{}
	for i, e := range execs {
		if len(e.ApprovalSteps) == 0 {
			continue
		}
		affected = append(affected, i)
		for _, stepID := range e.ApprovalSteps {
			stepHits[stepID]++
		}
	}
	if len(affected) < approvalMinOccurrences {
		return nil
	}

	freq := float64(len(affected)) / float64(len(execs))
	if freq < approvalMinFrequency {
		return nil
	}

	return []model.DetectedPattern{{
		InsightType:     model.InsightManualApproval,
		Category:        model.CategoryAutomation,
		Severity:        frequencySeverity(freq, approvalBands, model.SeverityLow),
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
	}}
}
