package detect

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/flowlens-ai/flowlens/internal/model"
)

// semanticStrategy scores every step name against a declarative rule
// table and picks the highest scorer. The table, not control flow,
// carries the heuristics: each entry is a matcher, a weight, and a label
// that ends up in the detection reasoning.
type semanticStrategy struct{}

func (s *semanticStrategy) method() model.DetectionMethod { return model.DetectionSemantic }

// stepContext is everything a scoring rule may look at for one step.
type stepContext struct {
	name      string // lowercased step name
	words     []string
	index     int
	stepCount int
	count     int
	maxCount  int
	avgCount  float64
}

// Rule groups where only the first matching entry scores. Keeps a step
// from double-dipping on overlapping vocabulary within one signal family.
const (
	groupKeyword     = "keyword"
	groupCombination = "combination"
	groupDomain      = "domain"
)

type scoreRule struct {
	label  string
	group  string // empty means additive; otherwise first match in group wins
	weight float64
	match  func(sc stepContext) bool
}

// Business-keyword categories. Filtering-family words carry the most
// signal: a step that narrows data is usually the one the user cares about.
var (
	filteringWords  = []string{"filter", "new", "recent", "unique", "distinct", "qualified", "eligible", "valid", "verified", "exclude", "excluded", "without"}
	statusWords     = []string{"open", "closed", "pending", "active", "resolved", "urgent", "priority", "critical", "categorized", "tagged", "grouped", "classified", "clean", "cleaned", "complete", "completed"}
	comparisonWords = []string{"compare", "compared", "matched", "top", "limit", "max", "min"}

	transformVerbs  = []string{"transform", "convert", "extract", "merge", "combine", "enrich"}
	outputVerbs     = []string{"send", "sent", "append", "write", "save", "email", "notify", "notification", "summary", "summarize", "upload", "post", "publish", "export", "store"}
	technicalNames  = []string{"deduplicate", "dedupe", "precompute", "pre-compute", "normalize", "sanitize", "preprocess", "pre-process"}
	initialFetchers = []string{"fetch", "get", "load", "read", "retrieve", "query", "pull", "import"}
)

// combinationPatterns are multi-word phrasings that signal a business
// filter. First match only.
var combinationPatterns = []struct {
	words  []string
	weight float64
}{
	{[]string{"new", "only"}, 3},
	{[]string{"not", "yet"}, 2},
	{[]string{"where", "is"}, 1.5},
	{[]string{"ready", "to"}, 1.5},
}

// domainPatterns are two-word vocabularies from common automation
// domains. First domain match only, 2 points each.
var domainPatterns = []struct {
	domain string
	words  []string
}{
	{"e-commerce", []string{"abandoned", "cart"}},
	{"e-commerce", []string{"new", "order"}},
	{"e-commerce", []string{"out", "stock"}},
	{"support", []string{"open", "ticket"}},
	{"support", []string{"unresolved", "ticket"}},
	{"support", []string{"escalated", "ticket"}},
	{"support", []string{"new", "complaint"}},
	{"sales", []string{"qualified", "lead"}},
	{"sales", []string{"new", "lead"}},
	{"sales", []string{"closed", "deal"}},
	{"hr", []string{"new", "hire"}},
	{"hr", []string{"pending", "application"}},
	{"hr", []string{"open", "position"}},
	{"finance", []string{"overdue", "invoice"}},
	{"finance", []string{"unpaid", "invoice"}},
	{"finance", []string{"pending", "payment"}},
}

// scoringRules is the full table, evaluated top to bottom by one loop.
var scoringRules = buildScoringRules()

func buildScoringRules() []scoreRule {
	rules := []scoreRule{
		// Keyword categories, strongest first; one credit per step.
		{label: "filtering keyword", group: groupKeyword, weight: 3, match: anyWordPrefix(filteringWords)},
		{label: "status keyword", group: groupKeyword, weight: 2, match: anyWordPrefix(statusWords)},
		{label: "comparison keyword", group: groupKeyword, weight: 1, match: anyWordPrefix(comparisonWords)},
	}

	for _, cp := range combinationPatterns {
		rules = append(rules, scoreRule{
			label:  fmt.Sprintf("combination %q", strings.Join(cp.words, "+")),
			group:  groupCombination,
			weight: cp.weight,
			match:  allWordPrefixes(cp.words),
		})
	}

	for _, dp := range domainPatterns {
		rules = append(rules, scoreRule{
			label:  fmt.Sprintf("%s pattern %q", dp.domain, strings.Join(dp.words, "+")),
			group:  groupDomain,
			weight: 2,
			match:  allWordPrefixes(dp.words),
		})
	}

	rules = append(rules,
		// Business filters outrank generic technical filters: a filtering
		// word together with any other business vocabulary is a strong vote.
		scoreRule{label: "business filter group", weight: 5, match: func(sc stepContext) bool {
			if !anyWordPrefix([]string{"filter", "exclude", "only"})(sc) {
				return false
			}
			return anyWordPrefix(filteringWords[1:])(sc) || anyWordPrefix(statusWords)(sc)
		}},

		// Middle-of-workflow steps are likelier to be the business step
		// than setup or delivery steps.
		scoreRule{label: "mid-workflow position", weight: 1, match: func(sc stepContext) bool {
			if sc.stepCount == 0 {
				return false
			}
			pos := float64(sc.index) / float64(sc.stepCount)
			return pos > 0.3 && pos < 0.8
		}},

		// Count shape. A zero count is explicitly neutral: it is
		// ambiguous business-wise and must not bias the score.
		scoreRule{label: "count between extremes", weight: 1, match: func(sc stepContext) bool {
			if sc.count == 0 || sc.maxCount == 0 {
				return false
			}
			lo := 0.1 * float64(sc.maxCount)
			hi := 0.9 * float64(sc.maxCount)
			c := float64(sc.count)
			return c > lo && c < hi
		}},
		scoreRule{label: "singleton count", weight: -0.5, match: func(sc stepContext) bool {
			return sc.count == 1
		}},
		scoreRule{label: "count near average", weight: 0.5, match: func(sc stepContext) bool {
			if sc.count == 0 || sc.avgCount == 0 {
				return false
			}
			diff := float64(sc.count) - sc.avgCount
			if diff < 0 {
				diff = -diff
			}
			return diff <= 0.3*sc.avgCount
		}},

		scoreRule{label: "transform verb", weight: 0.5, match: anyWordPrefix(transformVerbs)},
		scoreRule{label: "output/storage verb", weight: -2, match: anyWordPrefix(outputVerbs)},
		scoreRule{label: "technical filter name", weight: -1, match: anyWordPrefix(technicalNames)},
		scoreRule{label: "initial fetch step", weight: -1, match: func(sc stepContext) bool {
			return sc.index < 3 && anyWordPrefix(initialFetchers)(sc)
		}},
	)

	return rules
}

// anyWordPrefix matches when any word of the step name starts with any
// of the keywords. Prefix matching lets "filter" cover "filtered" and
// "filtering" without a stemmer.
func anyWordPrefix(keywords []string) func(stepContext) bool {
	return func(sc stepContext) bool {
		for _, w := range sc.words {
			for _, kw := range keywords {
				if strings.HasPrefix(w, kw) {
					return true
				}
			}
		}
		return false
	}
}

// allWordPrefixes matches when every keyword is covered by some word.
func allWordPrefixes(keywords []string) func(stepContext) bool {
	return func(sc stepContext) bool {
		for _, kw := range keywords {
			found := false
			for _, w := range sc.words {
				if strings.HasPrefix(w, kw) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
}

func splitWords(name string) []string {
	return strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '-'
	})
}

// scoreStep evaluates the rule table for one step, honoring
// first-match-only groups. Returns the score and the matched labels.
func scoreStep(sc stepContext) (float64, []string) {
	var total float64
	var labels []string
	seenGroup := map[string]bool{}

	for _, rule := range scoringRules {
		if rule.group != "" && seenGroup[rule.group] {
			continue
		}
		if !rule.match(sc) {
			continue
		}
		total += rule.weight
		labels = append(labels, rule.label)
		if rule.group != "" {
			seenGroup[rule.group] = true
		}
	}
	return total, labels
}

// minScore is the bar a semantic winner must clear; below it the chain
// moves on to funnel analysis.
const minSemanticScore = 2.0

func (s *semanticStrategy) detect(_ context.Context, _ uuid.UUID, steps []model.StepMetric) (model.DetectedMetric, bool) {
	if len(steps) == 0 {
		return model.DetectedMetric{}, false
	}

	maxCount := 0
	sum := 0
	for _, st := range steps {
		if st.Count > maxCount {
			maxCount = st.Count
		}
		sum += st.Count
	}
	avg := float64(sum) / float64(len(steps))

	bestIdx := -1
	bestScore := 0.0
	var bestLabels []string
	for i, st := range steps {
		sc := stepContext{
			name:      strings.ToLower(st.StepName),
			words:     splitWords(st.StepName),
			index:     i,
			stepCount: len(steps),
			count:     st.Count,
			maxCount:  maxCount,
			avgCount:  avg,
		}
		score, labels := scoreStep(sc)
		if bestIdx == -1 || score > bestScore {
			bestIdx, bestScore, bestLabels = i, score, labels
		}
	}

	if bestScore <= minSemanticScore {
		return model.DetectedMetric{}, false
	}

	confidence := 0.5 + bestScore/10
	if confidence > 0.9 {
		confidence = 0.9
	}

	return model.DetectedMetric{
		Step:            steps[bestIdx],
		StepIndex:       bestIdx,
		Confidence:      confidence,
		DetectionMethod: model.DetectionSemantic,
		Reasoning:       fmt.Sprintf("step name scored %.1f: %s", bestScore, strings.Join(bestLabels, ", ")),
	}, true
}
