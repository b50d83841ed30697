package detect

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/flowlens-ai/flowlens/internal/model"
)

// funnelStrategy looks for the narrowing step that feeds the workflow's
// output: walk backward from the first output-like step and take the most
// recent step whose count dropped at least 20% from its predecessor.
// When no such step exists, it settles for the single mid-workflow step
// with the largest absolute swing, if the swing exceeds 30%.
type funnelStrategy struct{}

func (f *funnelStrategy) method() model.DetectionMethod { return model.DetectionFunnel }

const (
	narrowingThreshold = -0.20
	largestSwingFloor  = 0.30
)

// stepChange is the fractional change of a step's count vs. the previous
// step, with the zero-baseline boundary rule: growth from zero is +100%,
// zero to zero is flat.
func stepChange(current, previous int) float64 {
	if previous == 0 {
		if current > 0 {
			return 1.0
		}
		return 0
	}
	return float64(current-previous) / float64(previous)
}

// isOutputLike reports whether a step looks like delivery or storage
// rather than business logic: output verbs in the name, or a count of
// exactly 1 (one email sent, one file written).
func isOutputLike(s model.StepMetric) bool {
	if s.Count == 1 {
		return true
	}
	sc := stepContext{words: splitWords(s.StepName)}
	return anyWordPrefix(outputVerbs)(sc)
}

func (f *funnelStrategy) detect(_ context.Context, _ uuid.UUID, steps []model.StepMetric) (model.DetectedMetric, bool) {
	if len(steps) < 2 {
		return model.DetectedMetric{}, false
	}

	changes := make([]float64, len(steps))
	for i := 1; i < len(steps); i++ {
		changes[i] = stepChange(steps[i].Count, steps[i-1].Count)
	}

	// Find the first output-like step, then walk backward for the most
	// recent narrowing step before it.
	firstOutput := -1
	for i, s := range steps {
		if isOutputLike(s) {
			firstOutput = i
			break
		}
	}
	if firstOutput > 0 {
		for i := firstOutput - 1; i >= 1; i-- {
			if changes[i] <= narrowingThreshold {
				return model.DetectedMetric{
					Step:            steps[i],
					StepIndex:       i,
					Confidence:      0.7,
					DetectionMethod: model.DetectionFunnel,
					Reasoning: fmt.Sprintf("funnel narrows %.0f%% at %q before output step %q",
						-changes[i]*100, steps[i].StepName, steps[firstOutput].StepName),
				}, true
			}
		}
	}

	// Fallback within the strategy: biggest absolute swing, first and
	// last steps excluded.
	bestIdx := -1
	bestSwing := 0.0
	for i := 1; i < len(steps)-1; i++ {
		swing := changes[i]
		if swing < 0 {
			swing = -swing
		}
		if swing > bestSwing {
			bestIdx, bestSwing = i, swing
		}
	}
	if bestIdx >= 0 && bestSwing > largestSwingFloor {
		return model.DetectedMetric{
			Step:            steps[bestIdx],
			StepIndex:       bestIdx,
			Confidence:      0.6,
			DetectionMethod: model.DetectionFunnel,
			Reasoning: fmt.Sprintf("largest count swing (%.0f%%) at %q",
				bestSwing*100, steps[bestIdx].StepName),
		}, true
	}

	return model.DetectedMetric{}, false
}
