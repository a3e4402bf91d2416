package planner

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/kairoai/engine/core/goal"
	"github.com/kairoai/engine/core/intent"
)

func classify(t *testing.T, text string) *intent.Classification {
	t.Helper()
	classification, err := intent.NewClassifier().Classify(text)
	if err != nil {
		t.Fatal(err)
	}
	return classification
}

// =============================================================================
// Complexity Analysis
// =============================================================================

func TestAnalyze_ShortSimpleTextIsLow(t *testing.T) {
	analysis := Analyze("open the docs page")
	if analysis.Complexity != ComplexityLow {
		t.Errorf("expected low complexity, got %s", analysis.Complexity)
	}
	if analysis.Risk != RiskLow {
		t.Errorf("expected low risk, got %s", analysis.Risk)
	}
}

func TestAnalyze_KeywordsRaiseComplexity(t *testing.T) {
	analysis := Analyze("integrate multiple complex data sources across a workflow")
	if analysis.Complexity < ComplexityHigh {
		t.Errorf("expected high complexity, got %s", analysis.Complexity)
	}
}

func TestAnalyze_RiskKeywordsRaiseRisk(t *testing.T) {
	analysis := Analyze("update payment details on the external account")
	if analysis.Risk != RiskHigh {
		t.Errorf("expected high risk, got %s", analysis.Risk)
	}
}

func TestAnalyze_HighComplexityWithRiskIsAdaptive(t *testing.T) {
	analysis := Analyze("coordinate multiple complex workflows that integrate sensitive external systems")
	if analysis.Complexity != ComplexityAdaptive {
		t.Errorf("expected adaptive complexity, got %s", analysis.Complexity)
	}
}

// =============================================================================
// Planning
// =============================================================================

func TestPlan_ResearchTemplateChains(t *testing.T) {
	p := NewPlanner(nil)
	plan, err := p.Plan("research quantum error correction", classify(t, "research quantum error correction"))
	if err != nil {
		t.Fatal(err)
	}

	if len(plan.SubGoals) != 3 {
		t.Fatalf("expected 3 research subgoals, got %d", len(plan.SubGoals))
	}

	// plan → gather → synthesize, linear chain.
	if len(plan.SubGoals[0].DependsOn) != 0 {
		t.Error("expected first subgoal to have no dependencies")
	}
	for i := 1; i < 3; i++ {
		deps := plan.SubGoals[i].DependsOn
		if len(deps) != 1 || deps[0] != plan.SubGoals[i-1].ID {
			t.Errorf("expected subgoal %d to depend on its predecessor", i)
		}
	}
}

func TestPlan_SecurityStepsRunInParallel(t *testing.T) {
	p := NewPlanner(nil)
	classification := &intent.Classification{
		Ranked: []intent.Candidate{{Capability: intent.CapabilitySecurity, Score: 2, Confidence: 0.5}},
	}
	plan, err := p.Plan("audit the login flow", classification)
	if err != nil {
		t.Fatal(err)
	}

	if len(plan.SubGoals) != 2 {
		t.Fatalf("expected 2 security subgoals, got %d", len(plan.SubGoals))
	}
	for _, sg := range plan.SubGoals {
		if len(sg.DependsOn) != 0 {
			t.Errorf("expected independent security steps, %s depends on %v", sg.Description, sg.DependsOn)
		}
	}
}

func TestPlan_HighRiskTightensRestrictions(t *testing.T) {
	p := NewPlanner(nil)
	text := "buy a laptop using the saved payment card on the external account"
	plan, err := p.Plan(text, classify(t, text))
	if err != nil {
		t.Fatal(err)
	}

	for _, sg := range plan.SubGoals {
		if sg.Security.RiskLevel != "high" {
			t.Errorf("expected high risk level, got %s", sg.Security.RiskLevel)
		}
		for _, required := range highRiskRestrictions {
			if !slices.Contains(sg.Security.Restrictions, required) {
				t.Errorf("expected restriction %q on %s", required, sg.Description)
			}
		}
	}
}

func TestPlan_DescriptionEmbeddedInSubGoals(t *testing.T) {
	p := NewPlanner(nil)
	text := "research battery chemistry"
	plan, err := p.Plan(text, classify(t, text))
	if err != nil {
		t.Fatal(err)
	}

	for _, sg := range plan.SubGoals {
		if !strings.Contains(sg.Description, text) {
			t.Errorf("expected subgoal description to embed the goal text, got %q", sg.Description)
		}
	}
}

func TestPlan_EstimatedDurationCoversChain(t *testing.T) {
	p := NewPlanner(nil)
	text := "research battery chemistry"
	plan, err := p.Plan(text, classify(t, text))
	if err != nil {
		t.Fatal(err)
	}

	var sum time.Duration
	for _, sg := range plan.SubGoals {
		sum += sg.EstimatedDuration
	}
	// The research template is a linear chain: the critical path equals
	// the sum of the estimates.
	if plan.EstimatedDuration != sum {
		t.Errorf("expected chain duration %v, got %v", sum, plan.EstimatedDuration)
	}
}

func TestPlanWithHistory_PoorHistoryWidensEstimate(t *testing.T) {
	p := NewPlanner(nil)
	text := "research battery chemistry"

	baseline, err := p.Plan(text, classify(t, text))
	if err != nil {
		t.Fatal(err)
	}
	biased, err := p.PlanWithHistory(text, classify(t, text), History{Total: 4, Successes: 1})
	if err != nil {
		t.Fatal(err)
	}

	want := time.Duration(float64(baseline.EstimatedDuration) * historyWidenFactor)
	if biased.EstimatedDuration != want {
		t.Errorf("expected widened estimate %v, got %v", want, biased.EstimatedDuration)
	}
}

func TestPlanWithHistory_ThinOrGoodHistoryLeavesEstimate(t *testing.T) {
	p := NewPlanner(nil)
	text := "research battery chemistry"

	baseline, err := p.Plan(text, classify(t, text))
	if err != nil {
		t.Fatal(err)
	}

	for _, history := range []History{
		{Total: 2, Successes: 0},  // too few samples
		{Total: 10, Successes: 8}, // mostly succeeding
	} {
		plan, err := p.PlanWithHistory(text, classify(t, text), history)
		if err != nil {
			t.Fatal(err)
		}
		if plan.EstimatedDuration != baseline.EstimatedDuration {
			t.Errorf("history %+v must not change the estimate, got %v want %v",
				history, plan.EstimatedDuration, baseline.EstimatedDuration)
		}
	}
}

func TestPlan_UnknownTypeFallsBackToGenericSubGoal(t *testing.T) {
	p := NewPlanner(nil)
	classification := &intent.Classification{
		Ranked: []intent.Candidate{{Capability: intent.Capability("telepathy"), Score: 1, Confidence: 0.1}},
	}
	plan, err := p.Plan("do something unusual", classification)
	if err != nil {
		t.Fatal(err)
	}

	if len(plan.SubGoals) != 1 {
		t.Fatalf("expected single generic subgoal, got %d", len(plan.SubGoals))
	}
	if plan.SubGoals[0].Status != goal.StatusPending {
		t.Error("expected generic subgoal pending")
	}
}

func TestPlan_EmptyClassificationFails(t *testing.T) {
	p := NewPlanner(nil)
	if _, err := p.Plan("text", &intent.Classification{}); err == nil {
		t.Error("expected error when nothing matched")
	}
}

// =============================================================================
// Strategy Selection
// =============================================================================

func TestCatalog_SecurityFirstOnHighRisk(t *testing.T) {
	catalog := DefaultCatalog()
	matched := catalog.Select(PlanAttributes{Type: intent.CapabilityAutomation, Risk: RiskHigh})

	if len(matched) == 0 || matched[0].Name != "security_first" {
		t.Errorf("expected security_first first, got %v", strategyNames(matched))
	}
}

func TestCatalog_FastPathOnlyForLowEverything(t *testing.T) {
	catalog := DefaultCatalog()

	matched := catalog.Select(PlanAttributes{Complexity: ComplexityLow, Risk: RiskLow})
	if !containsStrategy(matched, "fast_path") {
		t.Error("expected fast_path for low complexity low risk")
	}

	matched = catalog.Select(PlanAttributes{Complexity: ComplexityLow, Risk: RiskMedium})
	if containsStrategy(matched, "fast_path") {
		t.Error("expected no fast_path under elevated risk")
	}
}

func TestStrategy_SuccessRateRolls(t *testing.T) {
	catalog := DefaultCatalog()
	s, ok := catalog.Get("adaptive_execution")
	if !ok {
		t.Fatal("missing adaptive_execution strategy")
	}

	if s.SuccessRate() != 1.0 {
		t.Errorf("expected initial success rate 1.0, got %f", s.SuccessRate())
	}
	s.RecordOutcome(true)
	s.RecordOutcome(false)
	if s.SuccessRate() != 0.5 {
		t.Errorf("expected 0.5 after one success one failure, got %f", s.SuccessRate())
	}
}

func strategyNames(strategies []*Strategy) []string {
	names := make([]string, len(strategies))
	for i, s := range strategies {
		names[i] = s.Name
	}
	return names
}

func containsStrategy(strategies []*Strategy, name string) bool {
	for _, s := range strategies {
		if s.Name == name {
			return true
		}
	}
	return false
}
