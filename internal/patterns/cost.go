package patterns

import (
	"sort"

	"github.com/flowlens-ai/flowlens/internal/model"
)

// CostDetector finds spend hotspots: executions burning unusual token
// volumes, and schedule concentration that could be smoothed or batched.
type CostDetector struct{}

func (d *CostDetector) Category() model.PatternCategory { return model.CategoryCost }

const (
	highTokenThreshold      = 5000
	highTokenMinOccurrences = 3

	scheduleMinDataPoints   = 10
	scheduleTopHours        = 3
	scheduleConcentrationAt = 0.60

	// topStepMinAppearances is how many executions a step must appear in
	// before its token average is trustworthy enough to report.
	topStepMinAppearances = 2
)

var highTokenAvgBands = []severityBand{
	{7500, model.SeverityMedium},
	{10000, model.SeverityHigh},
}

func (d *CostDetector) Detect(execs []model.ExecutionSummary) []model.DetectedPattern {
	var out []model.DetectedPattern
	if p, ok := d.detectHighTokenUsage(execs); ok {
		out = append(out, p)
	}
	if p, ok := d.detectScheduleConcentration(execs); ok {
		out = append(out, p)
	}
	return out
}

func (d *CostDetector) detectHighTokenUsage(execs []model.ExecutionSummary) (model.DetectedPattern, bool) {
	var affected []int
	var totalTokens int
	for i, e := range execs {
		if e.TotalTokens > highTokenThreshold {
			affected = append(affected, i)
			totalTokens += e.TotalTokens
		}
	}
	if len(affected) < highTokenMinOccurrences {
		return model.DetectedPattern{}, false
	}

	avgUsage := float64(totalTokens) / float64(len(affected))
	freq := float64(len(affected)) / float64(len(execs))

	return model.DetectedPattern{
		InsightType:     model.InsightHighTokenUsage,
		Category:        model.CategoryCost,
		Severity:        frequencySeverity(avgUsage, highTokenAvgBands, model.SeverityLow),
		ConfidenceScore: freq,
		ExecutionIDs:    collectIDs(execs, affected),
		PatternData: map[string]any{
			"high_usage_executions": len(affected),
			"avg_tokens":            avgUsage,
			"frequency_pct":         pct(freq),
			"top_steps":             topStepsByTokens(execs),
		},
		Metrics: map[string]float64{
			"frequency":  freq,
			"avg_tokens": avgUsage,
		},
	}, true
}

// stepTokenStat is a reportable per-step token average.
type stepTokenStat struct {
	StepID      string  `json:"step_id"`
	AvgTokens   float64 `json:"avg_tokens"`
	Appearances int     `json:"appearances"`
}

// topStepsByTokens ranks steps by average token usage across executions,
// keeping the top three among steps seen in at least two executions.
func topStepsByTokens(execs []model.ExecutionSummary) []stepTokenStat {
	type acc struct {
		total int
		runs  int
	}
	byStep := map[string]*acc{}
	for _, e := range execs {
		for _, s := range e.Steps {
			a := byStep[s.StepID]
			if a == nil {
				a = &acc{}
				byStep[s.StepID] = a
			}
			a.total += s.TokensUsed
			a.runs++
		}
	}

	var stats []stepTokenStat
	for stepID, a := range byStep {
		if a.runs < topStepMinAppearances {
			continue
		}
		stats = append(stats, stepTokenStat{
			StepID:      stepID,
			AvgTokens:   float64(a.total) / float64(a.runs),
			Appearances: a.runs,
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].AvgTokens != stats[j].AvgTokens {
			return stats[i].AvgTokens > stats[j].AvgTokens
		}
		return stats[i].StepID < stats[j].StepID
	})
	if len(stats) > 3 {
		stats = stats[:3]
	}
	return stats
}

// detectScheduleConcentration reports when most runs land in a narrow
// daily window. Always low severity: it is an optimization opportunity
// (batching, off-peak pricing), not a problem.
func (d *CostDetector) detectScheduleConcentration(execs []model.ExecutionSummary) (model.DetectedPattern, bool) {
	if len(execs) < scheduleMinDataPoints {
		return model.DetectedPattern{}, false
	}

	var hourCounts [24]int
	for _, e := range execs {
		hourCounts[e.StartedAt.UTC().Hour()]++
	}

	type hourCount struct {
		hour  int
		count int
	}
	ranked := make([]hourCount, 0, 24)
	for h, c := range hourCounts {
		if c > 0 {
			ranked = append(ranked, hourCount{h, c})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].hour < ranked[j].hour
	})

	topTotal := 0
	topHours := []int{}
	for i := 0; i < len(ranked) && i < scheduleTopHours; i++ {
		topTotal += ranked[i].count
		topHours = append(topHours, ranked[i].hour)
	}

	share := float64(topTotal) / float64(len(execs))
	if share < scheduleConcentrationAt {
		return model.DetectedPattern{}, false
	}

	var affected []int
	for i, e := range execs {
		for _, h := range topHours {
			if e.StartedAt.UTC().Hour() == h {
				affected = append(affected, i)
				break
			}
		}
	}

	return model.DetectedPattern{
		InsightType:     model.InsightScheduleConcentration,
		Category:        model.CategoryCost,
		Severity:        model.SeverityLow,
		ConfidenceScore: share,
		ExecutionIDs:    collectIDs(execs, affected),
		PatternData: map[string]any{
			"top_hours_utc":   topHours,
			"top_hours_share": pct(share),
			"executions":      len(execs),
		},
		Metrics: map[string]float64{
			"top_hours_share": share,
		},
	}, true
}
