// Package confidence gates the language strength of generated insights by
// execution sample size. Each mode carries an allowed vocabulary
// (advisory), a forbidden vocabulary (enforced), and guidance text, so
// stated certainty never outruns the data behind it.
package confidence

import (
	"fmt"
	"strings"
)

// Mode is a language-strength tier keyed to execution sample size.
type Mode string

const (
	ModeObservation      Mode = "observation"
	ModeEarlySignals     Mode = "early_signals"
	ModeEmergingPatterns Mode = "emerging_patterns"
	ModeConfirmed        Mode = "confirmed"
)

// Thresholds are the run-count boundaries between modes.
type Thresholds struct {
	EarlySignals     int // below this: observation
	EmergingPatterns int
	Confirmed        int
}

// DefaultThresholds are the standard mode boundaries: <2 observation,
// [2,4) early signals, [4,10) emerging patterns, >=10 confirmed.
var DefaultThresholds = Thresholds{
	EarlySignals:     2,
	EmergingPatterns: 4,
	Confirmed:        10,
}

// Profile is the full language constraint attached to a mode.
type Profile struct {
	Mode      Mode
	Allowed   []string // advisory vocabulary
	Forbidden []string // enforced vocabulary
	Guidance  string
	Examples  []string
}

var profiles = map[Mode]Profile{
	ModeObservation: {
		Mode:    ModeObservation,
		Allowed: []string{"observed", "recorded", "in this run", "this time", "so far"},
		Forbidden: []string{
			"trend", "pattern", "always", "never", "typically",
			"consistently", "usually", "proven", "definitely",
		},
		Guidance: "Describe only what was directly observed in the available runs. " +
			"Do not generalize beyond the data or imply any recurring behavior.",
		Examples: []string{
			"This run processed 42 new items.",
			"No empty results were observed in this run.",
		},
	},
	ModeEarlySignals: {
		Mode:    ModeEarlySignals,
		Allowed: []string{"early signs", "beginning to", "may indicate", "initial", "suggests"},
		Forbidden: []string{
			"always", "never", "consistently", "usually", "proven",
			"definitely", "established", "reliably",
		},
		Guidance: "A small sample exists. Describe tentative signals and clearly " +
			"mark them as early; avoid any claim of an established behavior.",
		Examples: []string{
			"Early signs suggest item volume may be increasing.",
			"The last two runs both reported empty email lists, which may indicate a data issue.",
		},
	},
	ModeEmergingPatterns: {
		Mode:    ModeEmergingPatterns,
		Allowed: []string{"emerging", "appears to", "tends to", "often", "a developing pattern"},
		Forbidden: []string{
			"always", "never", "proven", "guaranteed", "certainly",
		},
		Guidance: "Several runs support the finding. Describe it as an emerging " +
			"pattern, not a certainty; quantify where possible.",
		Examples: []string{
			"A developing pattern: roughly 40% of recent runs contained empty results.",
			"Volume appears to dip on weekends.",
		},
	},
	ModeConfirmed: {
		Mode:      ModeConfirmed,
		Allowed:   []string{"consistently", "established", "confirmed", "reliable"},
		Forbidden: nil,
		Guidance: "The sample is large enough to state findings plainly. " +
			"Still quantify claims and cite the observed rates.",
		Examples: []string{
			"Item volume has consistently grown about 12% week over week.",
			"Empty results occur in 3% of runs, well within normal bounds.",
		},
	},
}

// Calculator maps run counts to modes and scores. Zero value is not
// usable; construct with New.
type Calculator struct {
	t Thresholds
}

// New creates a Calculator. Zero or negative threshold fields fall back
// to DefaultThresholds.
func New(t Thresholds) *Calculator {
	if t.EarlySignals <= 0 || t.EmergingPatterns <= t.EarlySignals || t.Confirmed <= t.EmergingPatterns {
		t = DefaultThresholds
	}
	return &Calculator{t: t}
}

// Mode returns the language mode for a run count. Pure and monotone:
// more runs never yield a weaker tier.
func (c *Calculator) Mode(runCount int) Mode {
	switch {
	case runCount >= c.t.Confirmed:
		return ModeConfirmed
	case runCount >= c.t.EmergingPatterns:
		return ModeEmergingPatterns
	case runCount >= c.t.EarlySignals:
		return ModeEarlySignals
	default:
		return ModeObservation
	}
}

// ProfileFor returns the language constraint profile for a mode.
func (c *Calculator) ProfileFor(mode Mode) Profile {
	return profiles[mode]
}

// Score maps a run count to a 0.0-1.0 confidence value via a monotone
// piecewise-linear function: 0.1-0.2 within observation, scaling 0.3-0.6
// across early_signals and emerging_patterns, 1.0 at and beyond the
// confirmed threshold.
func (c *Calculator) Score(runCount int) float64 {
	if runCount < 0 {
		runCount = 0
	}
	switch {
	case runCount >= c.t.Confirmed:
		return 1.0
	case runCount >= c.t.EarlySignals:
		span := float64(c.t.Confirmed - c.t.EarlySignals)
		return 0.3 + 0.3*float64(runCount-c.t.EarlySignals)/span
	default:
		score := 0.1 + 0.1*float64(runCount)/float64(c.t.EarlySignals)
		if score > 0.2 {
			score = 0.2
		}
		return score
	}
}

// ValidateLanguage scans text (case-insensitive substring match) against
// the mode's forbidden vocabulary and returns every violation found.
// Confirmed mode has no forbidden vocabulary, so it always passes.
func (c *Calculator) ValidateLanguage(text string, mode Mode) []string {
	p := profiles[mode]
	if len(p.Forbidden) == 0 {
		return nil
	}
	lower := strings.ToLower(text)
	var violations []string
	for _, word := range p.Forbidden {
		if strings.Contains(lower, word) {
			violations = append(violations, word)
		}
	}
	return violations
}

// PromptConstraints renders the mode's constraint block for inclusion in
// a downstream generation prompt.
func (c *Calculator) PromptConstraints(mode Mode) string {
	p := profiles[mode]
	var b strings.Builder
	fmt.Fprintf(&b, "Language mode: %s\n", p.Mode)
	fmt.Fprintf(&b, "%s\n", p.Guidance)
	if len(p.Allowed) > 0 {
		fmt.Fprintf(&b, "Preferred phrasing: %s\n", strings.Join(p.Allowed, ", "))
	}
	if len(p.Forbidden) > 0 {
		fmt.Fprintf(&b, "Never use: %s\n", strings.Join(p.Forbidden, ", "))
	}
	for _, ex := range p.Examples {
		fmt.Fprintf(&b, "Example: %s\n", ex)
	}
	return b.String()
}
