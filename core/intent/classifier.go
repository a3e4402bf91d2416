package intent

import (
	"sort"
	"strings"

	"github.com/kairoai/engine/core/errors"
)

// tieEpsilon is the fraction of the leading score within which the runner-up
// is treated as an equally plausible candidate.
const tieEpsilon = 0.10

// Candidate is one ranked capability with its raw score and normalized
// confidence. Confidence is always in [0, 1].
type Candidate struct {
	Capability Capability `json:"capability"`
	Score      float64    `json:"score"`
	Confidence float64    `json:"confidence"`
}

// Classification is the ranked outcome of classifying one piece of text.
type Classification struct {
	// Ranked lists candidates by descending score. Only capabilities with a
	// non-zero score appear.
	Ranked []Candidate `json:"ranked"`

	// MultiCapability indicates the top two candidates scored within
	// tieEpsilon of each other and the goal needs multi-capability
	// coordination.
	MultiCapability bool `json:"multi_capability"`
}

// Top returns the highest-ranked candidate, or false when nothing matched.
func (c *Classification) Top() (Candidate, bool) {
	if len(c.Ranked) == 0 {
		return Candidate{}, false
	}
	return c.Ranked[0], true
}

// Classifier scores free text against a static capability pattern table.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	table map[Capability][]Pattern
	// maxScore caches the theoretical maximum per capability for
	// confidence normalization.
	maxScore map[Capability]float64
}

// NewClassifier creates a classifier over the default pattern table.
func NewClassifier() *Classifier {
	return NewClassifierWithTable(DefaultPatternTable())
}

// NewClassifierWithTable creates a classifier over a custom pattern table.
func NewClassifierWithTable(table map[Capability][]Pattern) *Classifier {
	maxScore := make(map[Capability]float64, len(table))
	for capability, pats := range table {
		total := 0.0
		for _, p := range pats {
			total += float64(p.Weight)
		}
		maxScore[capability] = total
	}
	return &Classifier{table: table, maxScore: maxScore}
}

// Classify scores the text against every capability's pattern set and
// returns candidates ranked by descending score. Empty or whitespace-only
// text fails with a ValidationError.
func (c *Classifier) Classify(text string) (*Classification, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return nil, errors.NewValidationError("text", "must not be empty")
	}

	ranked := c.scoreAll(normalized)
	return &Classification{
		Ranked:          ranked,
		MultiCapability: isTie(ranked),
	}, nil
}

func (c *Classifier) scoreAll(text string) []Candidate {
	ranked := make([]Candidate, 0, len(c.table))
	for capability, pats := range c.table {
		score := scorePatterns(text, pats)
		if score == 0 {
			continue
		}
		ranked = append(ranked, Candidate{
			Capability: capability,
			Score:      score,
			Confidence: c.confidence(capability, score),
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		// Stable order among exact ties keeps classification deterministic.
		return ranked[i].Capability < ranked[j].Capability
	})
	return ranked
}

// scorePatterns sums weighted occurrences of every pattern in the text.
func scorePatterns(text string, pats []Pattern) float64 {
	score := 0.0
	for _, p := range pats {
		score += float64(strings.Count(text, p.Text) * p.Weight)
	}
	return score
}

// confidence normalizes a raw score against the capability's theoretical
// maximum, clamped to [0, 1].
func (c *Classifier) confidence(capability Capability, score float64) float64 {
	max := c.maxScore[capability]
	if max <= 0 {
		return 0
	}
	confidence := score / max
	if confidence > 1 {
		return 1
	}
	return confidence
}

func isTie(ranked []Candidate) bool {
	if len(ranked) < 2 {
		return false
	}
	lead := ranked[0].Score
	return lead-ranked[1].Score <= lead*tieEpsilon
}
