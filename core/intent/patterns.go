package intent

import "strings"

// Pattern is one weighted keyword or phrase for a capability.
type Pattern struct {
	// Text is the lowercased keyword or phrase to match.
	Text string

	// Weight is the score contributed per occurrence.
	Weight int
}

// phraseWeightThreshold is the pattern length above which multi-word phrases
// score double. A phrase carries more signal than a lone token: "find best"
// implies shopping while "find" alone leans research.
const phraseWeightThreshold = 6

// weightFor derives the default weight for a pattern.
func weightFor(text string) int {
	if strings.Contains(text, " ") && len(text) > phraseWeightThreshold {
		return 2
	}
	return 1
}

// patterns builds a weighted pattern list from raw texts.
func patterns(texts ...string) []Pattern {
	result := make([]Pattern, 0, len(texts))
	for _, text := range texts {
		result = append(result, Pattern{Text: text, Weight: weightFor(text)})
	}
	return result
}

// DefaultPatternTable returns the built-in capability pattern table. New
// capabilities are additive: add an entry here, no new branches anywhere.
func DefaultPatternTable() map[Capability][]Pattern {
	return map[Capability][]Pattern{
		CapabilityResearch: patterns(
			"research", "investigate", "study", "find", "search",
			"latest developments", "what is", "how to", "learn about", "sources",
		),
		CapabilityNavigation: patterns(
			"navigate", "go to", "visit", "open", "website", "url", "tabs",
		),
		CapabilityShopping: patterns(
			"buy", "shop", "price", "deal", "product", "purchase", "laptop",
			"find best", "compare prices", "best deals",
		),
		CapabilityCommunication: patterns(
			"email", "compose", "write", "message", "letter",
			"professional email", "reach out",
		),
		CapabilityAutomation: patterns(
			"automate", "schedule", "workflow", "recurring",
			"every day", "background task",
		),
		CapabilityAnalysis: patterns(
			"analyze", "analysis", "review", "examine", "summarize",
			"page content", "insights",
		),
		CapabilityMonitoring: patterns(
			"monitor", "watch", "track", "alert",
			"keep an eye", "notify me",
		),
		CapabilitySecurity: patterns(
			"security", "scan", "vulnerability", "threat", "protect",
			"is it safe", "phishing",
		),
	}
}
