package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/flowlens-ai/flowlens/internal/model"
)

type fakeHistory struct {
	rows []model.ExecutionMetrics
	err  error
}

func (f *fakeHistory) ListExecutionMetrics(_ context.Context, _ uuid.UUID, _ time.Time, _ int) ([]model.ExecutionMetrics, error) {
	return f.rows, f.err
}

func sm(name string, count int) model.StepMetric {
	return model.StepMetric{Plugin: "generic", Action: "run", StepName: name, Count: count}
}

// A business filter step mid-workflow must win on semantic scoring alone
// with capped confidence.
func TestSemanticSelectsBusinessFilter(t *testing.T) {
	steps := []model.StepMetric{
		sm("Fetch All Items", 100),
		sm("Validate Schema", 80),
		sm("Filter New Items Only", 42),
		sm("Update Statuses", 40),
		sm("Send Summary Email", 38),
	}

	d := New(nil, nil)
	got, err := d.Detect(context.Background(), uuid.New(), steps)
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}

	if got.DetectionMethod != model.DetectionSemantic {
		t.Fatalf("method = %s, want semantic (reasoning: %s)", got.DetectionMethod, got.Reasoning)
	}
	if got.StepIndex != 2 {
		t.Fatalf("step index = %d, want 2 (%s)", got.StepIndex, got.Reasoning)
	}
	if got.Confidence != 0.9 {
		t.Errorf("confidence = %v, want capped 0.9", got.Confidence)
	}
}

func TestSemanticScoreComponents(t *testing.T) {
	steps := []model.StepMetric{
		sm("Fetch All Items", 100),
		sm("Validate Schema", 80),
		sm("Filter New Items Only", 42),
		sm("Update Statuses", 40),
		sm("Send Summary Email", 38),
	}

	sc := stepContext{
		name:      "filter new items only",
		words:     splitWords("Filter New Items Only"),
		index:     2,
		stepCount: len(steps),
		count:     42,
		maxCount:  100,
		avgCount:  60,
	}

	score, labels := scoreStep(sc)
	// Filtering keyword (3) + new+only combination (3) + mid-position (1),
	// so the step scores at least 7.
	if score < 7 {
		t.Fatalf("score = %v (labels %v), want >= 7", score, labels)
	}

	wantLabels := []string{"filtering keyword", `combination "new+only"`, "mid-workflow position"}
	for _, want := range wantLabels {
		found := false
		for _, l := range labels {
			if l == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("labels %v missing %q", labels, want)
		}
	}
}

// A zero item count is ambiguous business-wise and must contribute no
// count-shape signal in either direction.
func TestZeroCountIsNeutral(t *testing.T) {
	base := stepContext{
		name:      "quiet step",
		words:     splitWords("Quiet Step"),
		index:     0,
		stepCount: 1,
		maxCount:  100,
		avgCount:  50,
	}

	zero := base
	zero.count = 0
	zeroScore, _ := scoreStep(zero)

	if zeroScore != 0 {
		t.Errorf("zero-count score = %v, want 0", zeroScore)
	}

	one := base
	one.count = 1
	oneScore, _ := scoreStep(one)
	if oneScore >= zeroScore {
		t.Errorf("singleton count should score below neutral zero: %v >= %v", oneScore, zeroScore)
	}
}

func TestFunnelFindsNarrowingBeforeOutput(t *testing.T) {
	steps := []model.StepMetric{
		sm("Row Source", 100),
		sm("Remaining Entries", 10),
		sm("Entry Batch", 10),
		sm("Send Email", 1),
	}

	d := New(nil, nil)
	got, err := d.Detect(context.Background(), uuid.New(), steps)
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}

	if got.DetectionMethod != model.DetectionFunnel {
		t.Fatalf("method = %s, want funnel (reasoning: %s)", got.DetectionMethod, got.Reasoning)
	}
	if got.StepIndex != 1 {
		t.Errorf("step index = %d, want 1", got.StepIndex)
	}
	if got.Confidence != 0.7 {
		t.Errorf("confidence = %v, want 0.7", got.Confidence)
	}
}

func TestFunnelLargestSwingFallback(t *testing.T) {
	steps := []model.StepMetric{
		sm("Seed List", 50),
		sm("Expanded Pool", 200),
		sm("Final Pool", 180),
	}

	d := New(nil, nil)
	got, err := d.Detect(context.Background(), uuid.New(), steps)
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}

	if got.DetectionMethod != model.DetectionFunnel {
		t.Fatalf("method = %s, want funnel (reasoning: %s)", got.DetectionMethod, got.Reasoning)
	}
	if got.StepIndex != 1 {
		t.Errorf("step index = %d, want 1 (largest swing)", got.StepIndex)
	}
	if got.Confidence != 0.6 {
		t.Errorf("confidence = %v, want 0.6", got.Confidence)
	}
}

func TestVarianceAcrossExecutions(t *testing.T) {
	steps := []model.StepMetric{
		sm("Daily Batch", 100),
		sm("Core Window", 95),
		sm("Tail Window", 90),
	}

	varying := []int{10, 200, 15, 180, 20, 160, 25, 140}
	rows := make([]model.ExecutionMetrics, len(varying))
	for i, c := range varying {
		rows[i] = model.ExecutionMetrics{
			StepMetrics: []model.StepMetric{
				sm("Daily Batch", 100),
				sm("Core Window", c),
				sm("Tail Window", 90),
			},
		}
	}

	d := New(&fakeHistory{rows: rows}, nil)
	got, err := d.Detect(context.Background(), uuid.New(), steps)
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}

	if got.DetectionMethod != model.DetectionVariance {
		t.Fatalf("method = %s, want variance (reasoning: %s)", got.DetectionMethod, got.Reasoning)
	}
	if got.Step.StepName != "Core Window" {
		t.Errorf("step = %q, want Core Window", got.Step.StepName)
	}
	if got.Confidence != 0.6 {
		t.Errorf("confidence = %v, want 0.6", got.Confidence)
	}
}

func TestVarianceRequiresSevenExecutions(t *testing.T) {
	rows := make([]model.ExecutionMetrics, 6)
	for i := range rows {
		rows[i] = model.ExecutionMetrics{StepMetrics: []model.StepMetric{sm("Core Window", i*40)}}
	}

	steps := []model.StepMetric{
		sm("Daily Batch", 100),
		sm("Core Window", 95),
		sm("Tail Window", 90),
	}

	d := New(&fakeHistory{rows: rows}, nil)
	got, err := d.Detect(context.Background(), uuid.New(), steps)
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if got.DetectionMethod != model.DetectionFallback {
		t.Errorf("method = %s, want fallback with thin history", got.DetectionMethod)
	}
}

// Detection never returns empty-handed when at least one non-system step
// has a positive count.
func TestFallbackAlwaysSucceeds(t *testing.T) {
	d := New(nil, nil)

	got, err := d.Detect(context.Background(), uuid.New(), []model.StepMetric{sm("Zlorp", 3)})
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if got.DetectionMethod != model.DetectionFallback {
		t.Errorf("method = %s, want fallback", got.DetectionMethod)
	}
	if got.Confidence != 0.4 {
		t.Errorf("confidence = %v, want 0.4", got.Confidence)
	}
}

func TestNoQualifyingSteps(t *testing.T) {
	d := New(nil, nil)

	_, err := d.Detect(context.Background(), uuid.New(), []model.StepMetric{
		{Plugin: "system", StepName: "Schedule", Count: 5},
		sm("Empty Step", 0),
	})
	if !errors.Is(err, ErrNoQualifyingSteps) {
		t.Fatalf("err = %v, want ErrNoQualifyingSteps", err)
	}
}

func TestExtractMetricValue(t *testing.T) {
	metrics := model.ExecutionMetrics{
		StepMetrics: []model.StepMetric{
			sm("Fetch All Items", 100),
			sm("Filter New Items Only", 42),
		},
	}
	detected := model.DetectedMetric{Step: sm("Filter New Items Only", 55)}

	if got := ExtractMetricValue(metrics, detected); got != 42 {
		t.Errorf("ExtractMetricValue = %d, want 42", got)
	}

	missing := model.DetectedMetric{Step: sm("Renamed Step", 55)}
	if got := ExtractMetricValue(metrics, missing); got != 0 {
		t.Errorf("ExtractMetricValue for absent step = %d, want 0", got)
	}
}

func TestStepChangeBoundary(t *testing.T) {
	if got := stepChange(5, 0); got != 1.0 {
		t.Errorf("stepChange(5, 0) = %v, want 1.0", got)
	}
	if got := stepChange(0, 0); got != 0 {
		t.Errorf("stepChange(0, 0) = %v, want 0", got)
	}
	if got := stepChange(50, 100); got != -0.5 {
		t.Errorf("stepChange(50, 100) = %v, want -0.5", got)
	}
}
