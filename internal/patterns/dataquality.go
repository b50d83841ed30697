package patterns

import (
	"github.com/flowlens-ai/flowlens/internal/model"
)

// DataQualityDetector finds executions whose data looks broken: steps
// that keep coming back empty, and successful runs that never produced a
// single field name.
type DataQualityDetector struct{}

func (d *DataQualityDetector) Category() model.PatternCategory { return model.CategoryDataQuality }

const (
	emptyResultsMinOccurrences  = 2
	missingFieldsMinOccurrences = 2
)

var emptyResultsBands = []severityBand{
	{0.30, model.SeverityMedium},
	{0.50, model.SeverityHigh},
	{0.80, model.SeverityCritical},
}

var missingFieldsBands = []severityBand{
	{0.40, model.SeverityMedium},
	{0.70, model.SeverityHigh},
}

func (d *DataQualityDetector) Detect(execs []model.ExecutionSummary) []model.DetectedPattern {
	var out []model.DetectedPattern
	if p, ok := d.detectEmptyResults(execs); ok {
		out = append(out, p)
	}
	if p, ok := d.detectMissingFields(execs); ok {
		out = append(out, p)
	}
	if p, ok := d.detectTypeMismatch(execs); ok {
		out = append(out, p)
	}
	return out
}

func (d *DataQualityDetector) detectEmptyResults(execs []model.ExecutionSummary) (model.DetectedPattern, bool) {
	var affected []int
	stepHits := map[string]int{}
	for i, e := range execs {
		if len(e.EmptyResultSteps) == 0 {
			continue
		}
		affected = append(affected, i)
		for _, stepID := range e.EmptyResultSteps {
			stepHits[stepID]++
		}
	}
	if len(affected) < emptyResultsMinOccurrences {
		return model.DetectedPattern{}, false
	}

	freq := float64(len(affected)) / float64(len(execs))
	return model.DetectedPattern{
		InsightType:     model.InsightEmptyResults,
		Category:        model.CategoryDataQuality,
		Severity:        frequencySeverity(freq, emptyResultsBands, model.SeverityLow),
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

// detectMissingFields flags successful executions that produced no field
// names at all, a sign the extraction upstream silently broke.
func (d *DataQualityDetector) detectMissingFields(execs []model.ExecutionSummary) (model.DetectedPattern, bool) {
	var affected []int
	for i, e := range execs {
		if e.Status == model.ExecutionStatusCompleted && !e.HasFieldNames {
			affected = append(affected, i)
		}
	}
	if len(affected) < missingFieldsMinOccurrences {
		return model.DetectedPattern{}, false
	}

	freq := float64(len(affected)) / float64(len(execs))
	return model.DetectedPattern{
		InsightType:     model.InsightMissingFields,
		Category:        model.CategoryDataQuality,
		Severity:        frequencySeverity(freq, missingFieldsBands, model.SeverityLow),
		ConfidenceScore: freq,
		ExecutionIDs:    collectIDs(execs, affected),
		PatternData: map[string]any{
			"affected_executions": len(affected),
			"frequency_pct":       pct(freq),
		},
		Metrics: map[string]float64{
			"frequency": freq,
		},
	}, true
}

// detectTypeMismatch is a capability stub: type information never
// reaches the summaries in this version, so the detector exists but
// always reports nothing. Kept explicit rather than omitted so the gap
// is visible to tests and future implementers.
func (d *DataQualityDetector) detectTypeMismatch(_ []model.ExecutionSummary) (model.DetectedPattern, bool) {
	return model.DetectedPattern{}, false
}
