package monitor

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	engerrors "github.com/kairoai/engine/core/errors"
	"github.com/kairoai/engine/core/planner"
	"github.com/kairoai/engine/core/store"
)

func metric(workerID string, success bool, latency time.Duration) *store.PerformanceMetric {
	started := time.Now().Add(-latency)
	return &store.PerformanceMetric{
		ID:        fmt.Sprintf("m-%d", time.Now().UnixNano()),
		WorkerID:  workerID,
		TaskType:  "subgoal",
		StartedAt: started,
		EndedAt:   started.Add(latency),
		Success:   success,
	}
}

func testMonitor() *Monitor {
	return New(Config{
		WindowSize:         20,
		LatencyThreshold:   time.Second,
		ErrorRateThreshold: 0.2,
		EvaluationInterval: time.Hour,
		Breaker:            engerrors.CircuitBreakerConfig{ConsecutiveFailures: 3, CooldownDuration: 50 * time.Millisecond, SuccessThreshold: 1},
	}, nil, nil, nil)
}

// =============================================================================
// Health Classification
// =============================================================================

func TestHealth_NoMetricsIsHealthy(t *testing.T) {
	m := testMonitor()
	if got := m.Health("w1"); got != HealthHealthy {
		t.Errorf("expected healthy with empty window, got %s", got)
	}
}

func TestHealth_MajorityFailuresIsFailing(t *testing.T) {
	m := testMonitor()
	// 6 failures, 4 successes: 60% error rate.
	for i := 0; i < 6; i++ {
		m.Record(metric("w1", false, 10*time.Millisecond))
		m.ResetCircuit("w1")
	}
	for i := 0; i < 4; i++ {
		m.Record(metric("w1", true, 10*time.Millisecond))
	}

	if got := m.Health("w1"); got != HealthFailing {
		t.Errorf("expected failing at 60%% error rate, got %s", got)
	}
}

func TestHealth_DoubleLatencyThresholdIsFailing(t *testing.T) {
	m := testMonitor()
	for i := 0; i < 5; i++ {
		m.Record(metric("w1", true, 3*time.Second))
	}

	if got := m.Health("w1"); got != HealthFailing {
		t.Errorf("expected failing above 2x latency threshold, got %s", got)
	}
}

func TestHealth_ModerateErrorRateIsDegraded(t *testing.T) {
	m := testMonitor()
	// 3 failures in 10: 30% error rate, above the 20% degraded bound.
	for i := 0; i < 7; i++ {
		m.Record(metric("w1", true, 10*time.Millisecond))
	}
	for i := 0; i < 3; i++ {
		m.Record(metric("w1", false, 10*time.Millisecond))
	}
	m.ResetCircuit("w1")

	if got := m.Health("w1"); got != HealthDegraded {
		t.Errorf("expected degraded at 30%% error rate, got %s", got)
	}
}

func TestHealth_OpenCircuitIsCrashed(t *testing.T) {
	m := testMonitor()
	for i := 0; i < 3; i++ {
		m.Record(metric("w1", false, 10*time.Millisecond))
	}

	if got := m.Health("w1"); got != HealthCrashed {
		t.Errorf("expected crashed with open circuit, got %s", got)
	}
}

// =============================================================================
// Trend
// =============================================================================

func TestStats_TrendDegradingWhenLatencyGrows(t *testing.T) {
	m := testMonitor()
	for i := 0; i < 5; i++ {
		m.Record(metric("w1", true, 100*time.Millisecond))
	}
	for i := 0; i < 5; i++ {
		m.Record(metric("w1", true, 300*time.Millisecond))
	}

	if got := m.Stats("w1", 0).Trend; got != TrendDegrading {
		t.Errorf("expected degrading trend, got %s", got)
	}
}

func TestStats_TrendImprovingWhenLatencyDrops(t *testing.T) {
	m := testMonitor()
	for i := 0; i < 5; i++ {
		m.Record(metric("w1", true, 300*time.Millisecond))
	}
	for i := 0; i < 5; i++ {
		m.Record(metric("w1", true, 100*time.Millisecond))
	}

	if got := m.Stats("w1", 0).Trend; got != TrendImproving {
		t.Errorf("expected improving trend, got %s", got)
	}
}

func TestStats_TrendStableInsideDeadZone(t *testing.T) {
	m := testMonitor()
	for i := 0; i < 5; i++ {
		m.Record(metric("w1", true, 100*time.Millisecond))
	}
	// 5% slower: inside the 10% dead zone.
	for i := 0; i < 5; i++ {
		m.Record(metric("w1", true, 105*time.Millisecond))
	}

	if got := m.Stats("w1", 0).Trend; got != TrendStable {
		t.Errorf("expected stable trend inside dead zone, got %s", got)
	}
}

func TestStats_WindowTrimsToConfiguredSize(t *testing.T) {
	m := testMonitor()
	for i := 0; i < 30; i++ {
		m.Record(metric("w1", true, time.Millisecond))
	}

	if got := m.Stats("w1", 0).Samples; got != 20 {
		t.Errorf("expected window trimmed to 20, got %d", got)
	}
}

// =============================================================================
// Circuit Breaker
// =============================================================================

func TestAllow_OpensAfterConsecutiveFailures(t *testing.T) {
	m := testMonitor()
	for i := 0; i < 3; i++ {
		m.Record(metric("w1", false, time.Millisecond))
	}

	err := m.Allow("w1")
	var coe *engerrors.CircuitOpenError
	if !stderrors.As(err, &coe) {
		t.Fatalf("expected CircuitOpenError, got %v", err)
	}
	if coe.WorkerID != "w1" {
		t.Errorf("expected w1 in error, got %s", coe.WorkerID)
	}
}

func TestAllow_SuccessfulProbeCloses(t *testing.T) {
	m := testMonitor()
	for i := 0; i < 3; i++ {
		m.Record(metric("w1", false, time.Millisecond))
	}

	// After cooldown the breaker admits one probe; its success closes.
	time.Sleep(60 * time.Millisecond)
	if err := m.Allow("w1"); err != nil {
		t.Fatalf("expected probe admitted after cooldown, got %v", err)
	}
	m.Record(metric("w1", true, time.Millisecond))

	if err := m.Allow("w1"); err != nil {
		t.Errorf("expected circuit closed after successful probe, got %v", err)
	}
}

func TestResetCircuit_ManualReset(t *testing.T) {
	m := testMonitor()
	for i := 0; i < 3; i++ {
		m.Record(metric("w1", false, time.Millisecond))
	}

	m.ResetCircuit("w1")
	if err := m.Allow("w1"); err != nil {
		t.Errorf("expected admission after manual reset, got %v", err)
	}
}

// =============================================================================
// Optimization Strategies
// =============================================================================

func TestEvaluateOnce_IsolatesFailingWorker(t *testing.T) {
	m := testMonitor()
	// Alternate failures with successes so the breaker never trips on its
	// own, while the window error rate stays above 50%.
	for i := 0; i < 6; i++ {
		m.Record(metric("w1", false, time.Millisecond))
		m.ResetCircuit("w1")
	}
	for i := 0; i < 3; i++ {
		m.Record(metric("w1", true, time.Millisecond))
	}

	if got := m.Health("w1"); got != HealthFailing {
		t.Fatalf("precondition: expected failing, got %s", got)
	}

	m.EvaluateOnce()

	if got := m.CircuitStates()["w1"]; got != engerrors.CircuitOpen {
		t.Errorf("expected circuit forced open, got %s", got)
	}
}

func TestEvaluateOnce_AppliesOnlyFirstMatch(t *testing.T) {
	m := testMonitor()
	applied := make([]string, 0)
	m.strategies = []*OptimizationStrategy{
		{
			Name:     "first",
			Priority: 1,
			Trigger:  func(*Monitor, string, HealthStatus, WorkerStats) bool { return true },
			Apply:    func(*Monitor, string) { applied = append(applied, "first") },
		},
		{
			Name:     "second",
			Priority: 2,
			Trigger:  func(*Monitor, string, HealthStatus, WorkerStats) bool { return true },
			Apply:    func(*Monitor, string) { applied = append(applied, "second") },
		},
	}

	m.Record(metric("w1", true, time.Millisecond))
	m.EvaluateOnce()

	if len(applied) != 1 || applied[0] != "first" {
		t.Errorf("expected only the first matching strategy applied, got %v", applied)
	}
}

// =============================================================================
// Strategy Feedback
// =============================================================================

func TestRecordStrategyOutcome_UpdatesCatalog(t *testing.T) {
	catalog := planner.DefaultCatalog()
	m := New(DefaultConfig(), catalog, nil, nil)

	m.RecordStrategyOutcome("security_first", true)
	m.RecordStrategyOutcome("security_first", false)

	s, _ := catalog.Get("security_first")
	if got := s.SuccessRate(); got != 0.5 {
		t.Errorf("expected success rate 0.5, got %f", got)
	}
}
