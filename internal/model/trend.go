package model

// DetectionMethod identifies which strategy selected the business metric.
type DetectionMethod string

const (
	DetectionSemantic DetectionMethod = "semantic"
	DetectionFunnel   DetectionMethod = "funnel"
	DetectionVariance DetectionMethod = "variance"
	DetectionFallback DetectionMethod = "fallback"
)

// DetectedMetric is the step chosen as the workflow's business metric:
// which step, how it was chosen, how sure we are, and why.
type DetectedMetric struct {
	Step            StepMetric      `json:"step"`
	StepIndex       int             `json:"step_index"`
	Confidence      float64         `json:"confidence"`
	DetectionMethod DetectionMethod `json:"detection_method"`
	Reasoning       string          `json:"reasoning"`
}

// TrendConfidence is the data-volume tier backing a trend result.
type TrendConfidence string

const (
	TrendConfidenceLow    TrendConfidence = "low"    // < 10 data points
	TrendConfidenceMedium TrendConfidence = "medium" // < 20 data points
	TrendConfidenceHigh   TrendConfidence = "high"   // >= 20 data points
)

// TrendBaseline is a snapshot of the comparison window the trend
// deltas were computed against.
type TrendBaseline struct {
	MetricAvg    float64 `json:"metric_avg"`
	MetricStdDev float64 `json:"metric_std_dev"`
	DurationAvg  float64 `json:"duration_avg_ms"`
	Executions   int     `json:"executions"`
}

// TrendMetrics is the full statistical trend picture for one agent's
// detected business metric over the lookback window.
type TrendMetrics struct {
	AgentID string `json:"agent_id"`

	// VolumeChange7D and VolumeChange30D are fractional changes
	// (0.5 == +50%) of the recent average vs. the comparison baseline.
	VolumeChange7D  float64 `json:"volume_change_7d"`
	VolumeChange30D float64 `json:"volume_change_30d"`

	// Spike/drop flags fire when the recent average leaves the
	// historical mean by more than two population standard deviations.
	IsVolumeSpike bool `json:"is_volume_spike"`
	IsVolumeDrop  bool `json:"is_volume_drop"`

	// CategoryDistribution is the average share of total items carried
	// by each field across recent executions.
	CategoryDistribution map[string]float64 `json:"category_distribution"`

	// DistributionShift is current share minus baseline share, over the
	// union of fields seen in either period.
	DistributionShift map[string]float64 `json:"distribution_shift"`

	// DurationTrend is the fractional change in average execution
	// duration, mirroring the volume formula.
	DurationTrend float64 `json:"duration_trend"`

	// EmptyResultRate is the fraction of recent executions that had at
	// least one empty step result.
	EmptyResultRate float64 `json:"empty_result_rate"`

	// FailureRate is sum(failed_step_count)/executions. This is a
	// documented approximation: an execution can fail more than one
	// step, so the value can exceed 1.
	FailureRate float64 `json:"failure_rate"`

	Baseline       TrendBaseline   `json:"baseline"`
	DetectedMetric DetectedMetric  `json:"detected_metric"`
	DataPointCount int             `json:"data_point_count"`
	Confidence     TrendConfidence `json:"confidence"`
}
