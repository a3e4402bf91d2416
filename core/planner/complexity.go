package planner

import "strings"

// Complexity is the planner's qualitative estimate of how demanding a goal is.
// It feeds subgoal priorities and time estimates.
type Complexity int

const (
	ComplexityLow Complexity = iota
	ComplexityMedium
	ComplexityHigh
	// ComplexityAdaptive marks goals that combine high structural complexity
	// with elevated risk and should run under an adaptive strategy.
	ComplexityAdaptive
)

var complexityNames = map[Complexity]string{
	ComplexityLow:      "low",
	ComplexityMedium:   "medium",
	ComplexityHigh:     "high",
	ComplexityAdaptive: "adaptive",
}

// String returns the string representation of the complexity level.
func (c Complexity) String() string {
	if name, ok := complexityNames[c]; ok {
		return name
	}
	return "unknown"
}

// RiskLevel is the planner's assessed risk for a goal.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
)

var riskNames = map[RiskLevel]string{
	RiskLow:    "low",
	RiskMedium: "medium",
	RiskHigh:   "high",
}

// String returns the string representation of the risk level.
func (r RiskLevel) String() string {
	if name, ok := riskNames[r]; ok {
		return name
	}
	return "unknown"
}

// complexityKeywords raise the structural complexity score when present.
var complexityKeywords = []string{
	"multiple",
	"complex",
	"comprehensive",
	"integrate",
	"coordinate",
	"workflow",
	"end to end",
	"across",
	"then",
	"compare",
	"combine",
}

// riskKeywords raise the risk score when present.
var riskKeywords = []string{
	"sensitive",
	"external",
	"payment",
	"credential",
	"password",
	"personal",
	"production",
	"delete",
	"financial",
	"account",
}

// Analysis is the outcome of analyzing a goal description.
type Analysis struct {
	Complexity Complexity
	Risk       RiskLevel

	// WordCount and keyword hit counts are retained for strategy triggers
	// and logging.
	WordCount      int
	ComplexityHits int
	RiskHits       int
}

// Analyze estimates complexity and risk from the description text. The
// estimate is a pure function of the text.
func Analyze(description string) Analysis {
	normalized := strings.ToLower(description)
	words := len(strings.Fields(normalized))

	complexityHits := countHits(normalized, complexityKeywords)
	riskHits := countHits(normalized, riskKeywords)

	analysis := Analysis{
		WordCount:      words,
		ComplexityHits: complexityHits,
		RiskHits:       riskHits,
		Risk:           riskFromHits(riskHits),
	}

	// Structural score from length plus complexity keywords.
	score := complexityHits
	switch {
	case words > 40:
		score += 2
	case words > 15:
		score++
	}

	switch {
	case score >= 3 && analysis.Risk >= RiskMedium:
		analysis.Complexity = ComplexityAdaptive
	case score >= 3:
		analysis.Complexity = ComplexityHigh
	case score >= 1:
		analysis.Complexity = ComplexityMedium
	default:
		analysis.Complexity = ComplexityLow
	}
	return analysis
}

func countHits(text string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	return hits
}

func riskFromHits(hits int) RiskLevel {
	switch {
	case hits >= 2:
		return RiskHigh
	case hits == 1:
		return RiskMedium
	default:
		return RiskLow
	}
}

// priority maps complexity to a base subgoal priority (higher runs first).
func (c Complexity) priority() int {
	switch c {
	case ComplexityAdaptive:
		return 8
	case ComplexityHigh:
		return 7
	case ComplexityMedium:
		return 5
	default:
		return 3
	}
}

// durationMultiplier scales template base durations by complexity.
func (c Complexity) durationMultiplier() float64 {
	switch c {
	case ComplexityAdaptive:
		return 2.5
	case ComplexityHigh:
		return 2.0
	case ComplexityMedium:
		return 1.5
	default:
		return 1.0
	}
}
