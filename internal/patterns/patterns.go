// Package patterns detects recurring structural problems and
// opportunities in execution history: data-quality issues, reliability
// risks, cost hotspots, and automation candidates.
//
// Detectors are pure functions over a read-only []ExecutionSummary.
// They signal "no pattern" by omitting the entry from the returned
// slice, never by returning a placeholder. Findings carry only
// structural facts: counts, step-id lists, and frequency percentages.
package patterns

import (
	"github.com/google/uuid"

	"github.com/flowlens-ai/flowlens/internal/model"
)

// Detector is the common contract for all pattern detectors.
type Detector interface {
	Category() model.PatternCategory
	Detect(execs []model.ExecutionSummary) []model.DetectedPattern
}

// All returns one instance of every detector, in a stable order.
func All() []Detector {
	return []Detector{
		&DataQualityDetector{},
		&ReliabilityDetector{},
		&CostDetector{},
		&AutomationDetector{},
	}
}

// maxExecutionIDs caps how many affected execution ids a finding lists.
const maxExecutionIDs = 10

func collectIDs(execs []model.ExecutionSummary, affected []int) []uuid.UUID {
	ids := make([]uuid.UUID, 0, min(len(affected), maxExecutionIDs))
	for _, idx := range affected {
		if len(ids) == maxExecutionIDs {
			break
		}
		ids = append(ids, execs[idx].ExecutionID)
	}
	return ids
}

// frequencySeverity maps an observed frequency onto an ascending
// threshold ladder. bands holds (threshold, severity) pairs from lowest
// to highest; frequencies below the first band get fallback.
type severityBand struct {
	threshold float64
	severity  model.Severity
}

func frequencySeverity(freq float64, bands []severityBand, fallback model.Severity) model.Severity {
	sev := fallback
	for _, b := range bands {
		if freq >= b.threshold {
			sev = b.severity
		}
	}
	return sev
}

func pct(f float64) float64 { return f * 100 }
