// Package planner expands a goal description and its classified intent into
// an ordered, dependency-linked subgoal graph with attached execution
// strategies and a completion estimate.
package planner

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kairoai/engine/core/errors"
	"github.com/kairoai/engine/core/goal"
	"github.com/kairoai/engine/core/intent"
)

// Plan is the planner's decomposition of one goal.
type Plan struct {
	SubGoals          []*goal.SubGoal
	Strategies        []*Strategy
	EstimatedDuration time.Duration
	Analysis          Analysis
}

// History summarizes stored outcomes of earlier goals with the same
// capability, folded from the knowledge store by the caller.
type History struct {
	Total     int
	Successes int
}

// SuccessRate returns the fraction of successful past outcomes, 1 when no
// history exists.
func (h History) SuccessRate() float64 {
	if h.Total == 0 {
		return 1
	}
	return float64(h.Successes) / float64(h.Total)
}

// historyMinSamples is the smallest history worth acting on.
const historyMinSamples = 3

// historyWidenFactor stretches the completion estimate for capabilities that
// have mostly failed recently.
const historyWidenFactor = 1.5

// Planner builds plans from descriptions and classifications. It holds no
// per-goal state and is safe for concurrent use.
type Planner struct {
	catalog *Catalog
	logger  *slog.Logger
}

// NewPlanner creates a planner over the default strategy catalog.
func NewPlanner(logger *slog.Logger) *Planner {
	return NewPlannerWithCatalog(DefaultCatalog(), logger)
}

// NewPlannerWithCatalog creates a planner over a custom strategy catalog.
func NewPlannerWithCatalog(catalog *Catalog, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{catalog: catalog, logger: logger}
}

// Catalog returns the planner's strategy catalog.
func (p *Planner) Catalog() *Catalog {
	return p.catalog
}

// Plan decomposes a goal description into subgoals using the template for
// the classified type, falling back to a single generic subgoal when no
// template matches. The returned subgoal set is always a validated DAG.
func (p *Planner) Plan(description string, classification *intent.Classification) (*Plan, error) {
	return p.PlanWithHistory(description, classification, History{})
}

// PlanWithHistory plans like Plan but additionally weighs stored outcomes of
// past goals with the same capability: a capability that failed more often
// than it succeeded gets a widened completion estimate.
func (p *Planner) PlanWithHistory(description string, classification *intent.Classification, history History) (*Plan, error) {
	if description == "" {
		return nil, errors.NewValidationError("description", "must not be empty")
	}
	top, ok := classification.Top()
	if !ok {
		return nil, errors.NewValidationError("classification", "no capability matched the description")
	}

	analysis := Analyze(description)
	attrs := PlanAttributes{
		Type:            top.Capability,
		Complexity:      analysis.Complexity,
		Risk:            analysis.Risk,
		MultiCapability: classification.MultiCapability,
	}

	subGoals := p.expand(description, top, analysis)
	if err := goal.ValidateSubGoals(subGoals); err != nil {
		return nil, err
	}

	plan := &Plan{
		SubGoals:          subGoals,
		Strategies:        p.catalog.Select(attrs),
		EstimatedDuration: totalDuration(subGoals),
		Analysis:          analysis,
	}
	if history.Total >= historyMinSamples && history.SuccessRate() < 0.5 {
		plan.EstimatedDuration = scaleDuration(plan.EstimatedDuration, historyWidenFactor)
	}

	p.logger.Debug("plan built",
		"type", string(top.Capability),
		"complexity", analysis.Complexity.String(),
		"risk", analysis.Risk.String(),
		"sub_goals", len(subGoals),
		"strategies", len(plan.Strategies),
		"history_success_rate", history.SuccessRate(),
		"estimated_duration", plan.EstimatedDuration)
	return plan, nil
}

// expand instantiates the capability's template steps, chaining each step
// behind the previous one unless the step is marked parallel.
func (p *Planner) expand(description string, top intent.Candidate, analysis Analysis) []*goal.SubGoal {
	templates, ok := templateTable[top.Capability]
	if !ok {
		return []*goal.SubGoal{p.genericSubGoal(description, top, analysis)}
	}

	multiplier := analysis.Complexity.durationMultiplier()
	priority := analysis.Complexity.priority()

	subGoals := make([]*goal.SubGoal, 0, len(templates))
	var prevID, prevDependency string
	for _, tmpl := range templates {
		sg := &goal.SubGoal{
			ID:                uuid.New().String(),
			Description:       fmt.Sprintf(tmpl.description, description),
			Capability:        top.Capability,
			Status:            goal.StatusPending,
			Priority:          priority,
			EstimatedDuration: scaleDuration(tmpl.baseDuration, multiplier),
			Security:          securityContext(tmpl, analysis.Risk),
		}
		if tmpl.parallel {
			if prevDependency != "" {
				sg.DependsOn = []string{prevDependency}
			}
		} else if prevID != "" {
			sg.DependsOn = []string{prevID}
			prevDependency = prevID
		}
		prevID = sg.ID
		subGoals = append(subGoals, sg)
	}
	return subGoals
}

// genericSubGoal is the fallback for unclassified types: one subgoal assigned
// to the top-ranked capability, with the time estimate widened as confidence
// drops.
func (p *Planner) genericSubGoal(description string, top intent.Candidate, analysis Analysis) *goal.SubGoal {
	base := scaleDuration(5*time.Minute, analysis.Complexity.durationMultiplier())
	confidence := top.Confidence
	if confidence < 0.2 {
		confidence = 0.2
	}
	return &goal.SubGoal{
		ID:                uuid.New().String(),
		Description:       fmt.Sprintf("Complete the requested task: %s", description),
		Capability:        top.Capability,
		Status:            goal.StatusPending,
		Priority:          analysis.Complexity.priority(),
		EstimatedDuration: scaleDuration(base, 1/confidence),
		Security: goal.SecurityContext{
			Permissions:  []string{"read_page"},
			Restrictions: append([]string(nil), highRiskRestrictions...),
			RiskLevel:    analysis.Risk.String(),
		},
	}
}

func scaleDuration(d time.Duration, multiplier float64) time.Duration {
	return time.Duration(float64(d) * multiplier)
}

// totalDuration sums estimates along the longest dependency chain.
func totalDuration(subGoals []*goal.SubGoal) time.Duration {
	byID := make(map[string]*goal.SubGoal, len(subGoals))
	for _, sg := range subGoals {
		byID[sg.ID] = sg
	}

	memo := make(map[string]time.Duration, len(subGoals))
	var chain func(sg *goal.SubGoal) time.Duration
	chain = func(sg *goal.SubGoal) time.Duration {
		if d, ok := memo[sg.ID]; ok {
			return d
		}
		longest := time.Duration(0)
		for _, depID := range sg.DependsOn {
			if dep, ok := byID[depID]; ok {
				if d := chain(dep); d > longest {
					longest = d
				}
			}
		}
		total := longest + sg.EstimatedDuration
		memo[sg.ID] = total
		return total
	}

	max := time.Duration(0)
	for _, sg := range subGoals {
		if d := chain(sg); d > max {
			max = d
		}
	}
	return max
}
