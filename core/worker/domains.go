package worker

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// DomainGuard matches external domains against a subgoal's allowed-domain
// glob patterns. An empty pattern set allows everything.
type DomainGuard struct {
	patterns []glob.Glob
}

// NewDomainGuard compiles the allowed-domain patterns.
func NewDomainGuard(patterns []string) (*DomainGuard, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p), '.')
		if err != nil {
			return nil, fmt.Errorf("compile domain pattern %q: %w", p, err)
		}
		compiled = append(compiled, g)
	}
	return &DomainGuard{patterns: compiled}, nil
}

// Allow reports whether the domain is permitted.
func (g *DomainGuard) Allow(domain string) bool {
	if len(g.patterns) == 0 {
		return true
	}

	lower := strings.ToLower(domain)
	for _, p := range g.patterns {
		if p.Match(lower) {
			return true
		}
	}
	return false
}
