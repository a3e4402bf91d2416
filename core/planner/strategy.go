package planner

import (
	"sync"

	"github.com/kairoai/engine/core/intent"
)

// PlanAttributes are the derived goal attributes strategy triggers match on.
type PlanAttributes struct {
	Type            intent.Capability
	Complexity      Complexity
	Risk            RiskLevel
	MultiCapability bool
}

// Trigger is one condition a strategy declares. A strategy matches when every
// one of its triggers holds.
type Trigger func(attrs PlanAttributes) bool

// Strategy is a named execution policy selected per plan by matching trigger
// conditions against derived goal attributes. Strategies are read-mostly
// shared configuration; the performance monitor updates the rolling success
// rate, nothing else mutates them after construction.
type Strategy struct {
	Name       string
	Confidence float64
	Fallbacks  []string

	triggers []Trigger

	mu        sync.Mutex
	successes int
	attempts  int
}

// Matches reports whether every trigger condition holds for the attributes.
func (s *Strategy) Matches(attrs PlanAttributes) bool {
	for _, trigger := range s.triggers {
		if !trigger(attrs) {
			return false
		}
	}
	return true
}

// RecordOutcome folds one execution outcome into the rolling success rate.
func (s *Strategy) RecordOutcome(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if success {
		s.successes++
	}
}

// SuccessRate returns the rolling success rate, or 1.0 before any outcome.
func (s *Strategy) SuccessRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempts == 0 {
		return 1.0
	}
	return float64(s.successes) / float64(s.attempts)
}

// Catalog is the fixed set of strategies matched during planning.
type Catalog struct {
	strategies []*Strategy
}

// DefaultCatalog builds the built-in strategy catalog.
func DefaultCatalog() *Catalog {
	return &Catalog{strategies: []*Strategy{
		{
			Name:       "security_first",
			Confidence: 0.9,
			Fallbacks:  []string{"conservative_retry"},
			triggers: []Trigger{
				func(a PlanAttributes) bool {
					return a.Risk == RiskHigh || a.Type == intent.CapabilitySecurity
				},
			},
		},
		{
			Name:       "adaptive_execution",
			Confidence: 0.75,
			Fallbacks:  []string{"conservative_retry", "fast_path"},
			triggers: []Trigger{
				func(a PlanAttributes) bool { return a.Complexity == ComplexityAdaptive },
			},
		},
		{
			Name:       "multi_capability_coordination",
			Confidence: 0.7,
			Fallbacks:  []string{"adaptive_execution"},
			triggers: []Trigger{
				func(a PlanAttributes) bool { return a.MultiCapability },
			},
		},
		{
			Name:       "conservative_retry",
			Confidence: 0.8,
			Fallbacks:  []string{"fast_path"},
			triggers: []Trigger{
				func(a PlanAttributes) bool { return a.Complexity >= ComplexityHigh },
				func(a PlanAttributes) bool { return a.Risk >= RiskMedium },
			},
		},
		{
			Name:       "fast_path",
			Confidence: 0.95,
			Fallbacks:  nil,
			triggers: []Trigger{
				func(a PlanAttributes) bool { return a.Complexity == ComplexityLow },
				func(a PlanAttributes) bool { return a.Risk == RiskLow },
			},
		},
	}}
}

// Select returns every strategy whose triggers all match, in catalog order.
func (c *Catalog) Select(attrs PlanAttributes) []*Strategy {
	var matched []*Strategy
	for _, s := range c.strategies {
		if s.Matches(attrs) {
			matched = append(matched, s)
		}
	}
	return matched
}

// Get returns a strategy by name.
func (c *Catalog) Get(name string) (*Strategy, bool) {
	for _, s := range c.strategies {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}
