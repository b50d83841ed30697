package confidence

import (
	"strings"
	"testing"
)

func TestModeThresholds(t *testing.T) {
	c := New(DefaultThresholds)

	tests := []struct {
		runs int
		want Mode
	}{
		{0, ModeObservation},
		{1, ModeObservation},
		{2, ModeEarlySignals},
		{3, ModeEarlySignals},
		{4, ModeEmergingPatterns},
		{9, ModeEmergingPatterns},
		{10, ModeConfirmed},
		{500, ModeConfirmed},
	}

	for _, tt := range tests {
		if got := c.Mode(tt.runs); got != tt.want {
			t.Errorf("Mode(%d) = %s, want %s", tt.runs, got, tt.want)
		}
	}
}

// Mode severity and score must never decrease as run count grows.
func TestMonotonicity(t *testing.T) {
	c := New(DefaultThresholds)

	rank := map[Mode]int{
		ModeObservation:      0,
		ModeEarlySignals:     1,
		ModeEmergingPatterns: 2,
		ModeConfirmed:        3,
	}

	prevRank := -1
	prevScore := -1.0
	for n := 0; n <= 50; n++ {
		r := rank[c.Mode(n)]
		if r < prevRank {
			t.Fatalf("Mode rank decreased at n=%d", n)
		}
		s := c.Score(n)
		if s < prevScore {
			t.Fatalf("Score decreased at n=%d: %v < %v", n, s, prevScore)
		}
		prevRank, prevScore = r, s
	}
}

func TestScoreBounds(t *testing.T) {
	c := New(DefaultThresholds)

	tests := []struct {
		runs     int
		min, max float64
	}{
		{0, 0.1, 0.2},
		{1, 0.1, 0.2},
		{2, 0.3, 0.3},
		{6, 0.3, 0.6},
		{9, 0.3, 0.6},
		{10, 1.0, 1.0},
		{100, 1.0, 1.0},
	}

	for _, tt := range tests {
		s := c.Score(tt.runs)
		if s < tt.min || s > tt.max {
			t.Errorf("Score(%d) = %v, want in [%v, %v]", tt.runs, s, tt.min, tt.max)
		}
	}
}

func TestValidateLanguage(t *testing.T) {
	c := New(DefaultThresholds)

	tests := []struct {
		name string
		text string
		mode Mode
		want []string
	}{
		{
			name: "observation flags trend talk",
			text: "There is a clear Trend: volume ALWAYS spikes on Monday",
			mode: ModeObservation,
			want: []string{"trend", "always"},
		},
		{
			name: "observation passes plain description",
			text: "This run processed 42 new items.",
			mode: ModeObservation,
			want: nil,
		},
		{
			name: "early signals flags established",
			text: "An established behavior across runs",
			mode: ModeEarlySignals,
			want: []string{"established"},
		},
		{
			name: "confirmed never flags",
			text: "This always happens, never fails, proven and guaranteed",
			mode: ModeConfirmed,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.ValidateLanguage(tt.text, tt.mode)
			if len(got) != len(tt.want) {
				t.Fatalf("ValidateLanguage() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("violation[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPromptConstraints(t *testing.T) {
	c := New(DefaultThresholds)

	out := c.PromptConstraints(ModeEarlySignals)
	for _, want := range []string{"early_signals", "Never use:", "Example:"} {
		if !strings.Contains(out, want) {
			t.Errorf("PromptConstraints missing %q in:\n%s", want, out)
		}
	}

	// Confirmed has no forbidden vocabulary to render.
	out = c.PromptConstraints(ModeConfirmed)
	if strings.Contains(out, "Never use:") {
		t.Errorf("confirmed constraints should not list forbidden words:\n%s", out)
	}
}

func TestNewFallsBackOnBadThresholds(t *testing.T) {
	c := New(Thresholds{EarlySignals: 5, EmergingPatterns: 3, Confirmed: 1})
	if got := c.Mode(10); got != ModeConfirmed {
		t.Errorf("Mode(10) with fallback thresholds = %s, want confirmed", got)
	}
}
