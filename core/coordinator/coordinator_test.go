package coordinator

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	engerrors "github.com/kairoai/engine/core/errors"
	"github.com/kairoai/engine/core/events"
	"github.com/kairoai/engine/core/goal"
	"github.com/kairoai/engine/core/intent"
	"github.com/kairoai/engine/core/scheduler"
	"github.com/kairoai/engine/core/store"
	"github.com/kairoai/engine/core/worker"
)

type goalMap struct {
	mu    sync.Mutex
	goals map[string]*goal.Goal
}

func newGoalMap(goals ...*goal.Goal) *goalMap {
	m := &goalMap{goals: make(map[string]*goal.Goal)}
	for _, g := range goals {
		m.goals[g.ID()] = g
	}
	return m
}

func (m *goalMap) Goal(id string) (*goal.Goal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[id]
	return g, ok
}

// countingWorker fails a fixed number of times before succeeding, recording
// call times and descriptions.
type countingWorker struct {
	mu           sync.Mutex
	id           string
	failures     int
	failWith     error
	calls        int
	callTimes    []time.Time
	descriptions []string
}

func (w *countingWorker) ID() string { return w.id }

func (w *countingWorker) Capabilities() []intent.Capability {
	return []intent.Capability{intent.CapabilityResearch}
}

func (w *countingWorker) Execute(_ context.Context, req worker.Request) (*worker.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	w.callTimes = append(w.callTimes, time.Now())
	w.descriptions = append(w.descriptions, req.Description)
	if w.calls <= w.failures {
		return nil, w.failWith
	}
	return &worker.Result{Output: "done", QualityScore: 1}, nil
}

func (w *countingWorker) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func fastConfig() Config {
	return Config{
		MaxAttempts:            3,
		InvocationTimeout:      time.Second,
		DependencyTimeout:      200 * time.Millisecond,
		DependencyPollInterval: 10 * time.Millisecond,
		Backoff:                engerrors.BackoffPolicy{BaseDelay: 30 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0},
	}
}

func subGoalTask(g *goal.Goal, sg *goal.SubGoal) scheduler.Task {
	return scheduler.Task{
		ID:         "task-" + sg.ID,
		Type:       "subgoal",
		GoalID:     g.ID(),
		SubGoalID:  sg.ID,
		Capability: sg.Capability,
	}
}

func singleSubGoalGoal(t *testing.T) (*goal.Goal, *goal.SubGoal) {
	t.Helper()
	g := goal.New("research something", intent.CapabilityResearch, goal.AutonomyFull)
	sg := &goal.SubGoal{
		ID:          "sg-1",
		Description: "research something specific",
		Capability:  intent.CapabilityResearch,
		Status:      goal.StatusPending,
	}
	g.SetSubGoals([]*goal.SubGoal{sg})
	return g, sg
}

// =============================================================================
// Retry & Backoff
// =============================================================================

func TestRun_RetriesWithExponentialBackoff(t *testing.T) {
	w := &countingWorker{id: "w1", failures: 2, failWith: stderrors.New("temporarily unavailable")}
	registry := worker.NewRegistry()
	registry.Register(w)

	g, sg := singleSubGoalGoal(t)
	c := New(fastConfig(), registry, newGoalMap(g), nil, nil, nil)

	if err := c.Run(context.Background(), subGoalTask(g, sg)); err != nil {
		t.Fatal(err)
	}

	if w.callCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d", w.callCount())
	}

	// With base delay d: 2nd attempt waits >= d, 3rd waits >= 2d.
	base := fastConfig().Backoff.BaseDelay
	if gap := w.callTimes[1].Sub(w.callTimes[0]); gap < base {
		t.Errorf("second attempt waited %v, want >= %v", gap, base)
	}
	if gap := w.callTimes[2].Sub(w.callTimes[1]); gap < 2*base {
		t.Errorf("third attempt waited %v, want >= %v", gap, 2*base)
	}

	snapshot, _ := g.SubGoal(sg.ID)
	if snapshot.Status != goal.StatusCompleted || snapshot.Attempts != 3 {
		t.Errorf("expected completed after 3 attempts, got %s/%d", snapshot.Status, snapshot.Attempts)
	}
}

func TestRun_NonRetryableFailsFast(t *testing.T) {
	w := &countingWorker{id: "w1", failures: 10, failWith: engerrors.MarkPermanent(stderrors.New("broken request"))}
	registry := worker.NewRegistry()
	registry.Register(w)

	g, sg := singleSubGoalGoal(t)
	c := New(fastConfig(), registry, newGoalMap(g), nil, nil, nil)

	err := c.Run(context.Background(), subGoalTask(g, sg))
	if err == nil {
		t.Fatal("expected terminal failure")
	}

	// One real attempt plus the single recovery restatement.
	if w.callCount() != 2 {
		t.Errorf("expected 2 calls (attempt + recovery), got %d", w.callCount())
	}
}

// =============================================================================
// Recovery
// =============================================================================

func TestRun_AlternateWorkerMarksAdapted(t *testing.T) {
	failing := &countingWorker{id: "primary", failures: 10, failWith: stderrors.New("service unavailable")}
	backup := &countingWorker{id: "backup"}
	registry := worker.NewRegistry()
	registry.Register(failing)
	registry.Register(backup)

	g, sg := singleSubGoalGoal(t)
	c := New(fastConfig(), registry, newGoalMap(g), nil, nil, nil)

	if err := c.Run(context.Background(), subGoalTask(g, sg)); err != nil {
		t.Fatal(err)
	}

	snapshot, _ := g.SubGoal(sg.ID)
	if snapshot.Status != goal.StatusAdapted {
		t.Fatalf("expected adapted, got %s", snapshot.Status)
	}
	if len(snapshot.Adaptations) != 1 {
		t.Fatalf("expected one adaptation record, got %d", len(snapshot.Adaptations))
	}
	if backup.callCount() != 1 {
		t.Errorf("expected single recovery call on backup, got %d", backup.callCount())
	}
}

func TestRun_SimplifiedRestatementWhenNoAlternate(t *testing.T) {
	w := &countingWorker{id: "only", failures: 3, failWith: stderrors.New("request timed out")}
	registry := worker.NewRegistry()
	registry.Register(w)

	g, sg := singleSubGoalGoal(t)
	c := New(fastConfig(), registry, newGoalMap(g), nil, nil, nil)

	if err := c.Run(context.Background(), subGoalTask(g, sg)); err != nil {
		t.Fatal(err)
	}

	if w.callCount() != 4 {
		t.Fatalf("expected 3 attempts + 1 recovery call, got %d", w.callCount())
	}

	w.mu.Lock()
	lastDescription := w.descriptions[len(w.descriptions)-1]
	w.mu.Unlock()
	if lastDescription == sg.Description {
		t.Error("expected recovery call to use a simplified restatement")
	}

	snapshot, _ := g.SubGoal(sg.ID)
	if snapshot.Status != goal.StatusAdapted {
		t.Errorf("expected adapted, got %s", snapshot.Status)
	}
}

// =============================================================================
// Dependency Wait
// =============================================================================

func TestRun_DependencyTimeoutNeverInvokesWorker(t *testing.T) {
	w := &countingWorker{id: "w1"}
	registry := worker.NewRegistry()
	registry.Register(w)

	g := goal.New("two step goal", intent.CapabilityResearch, goal.AutonomyFull)
	first := &goal.SubGoal{ID: "sg-1", Description: "first", Capability: intent.CapabilityResearch}
	second := &goal.SubGoal{ID: "sg-2", Description: "second", Capability: intent.CapabilityResearch, DependsOn: []string{"sg-1"}}
	g.SetSubGoals([]*goal.SubGoal{first, second})

	c := New(fastConfig(), registry, newGoalMap(g), nil, nil, nil)

	err := c.Run(context.Background(), subGoalTask(g, second))
	var dte *engerrors.DependencyTimeoutError
	if !stderrors.As(err, &dte) {
		t.Fatalf("expected DependencyTimeoutError, got %v", err)
	}
	if len(dte.Unresolved) != 1 || dte.Unresolved[0] != "sg-1" {
		t.Errorf("expected sg-1 unresolved, got %v", dte.Unresolved)
	}
	if w.callCount() != 0 {
		t.Error("worker must not be invoked on dependency timeout")
	}

	snapshot, _ := g.SubGoal("sg-2")
	if snapshot.Status != goal.StatusFailed {
		t.Errorf("expected dependent subgoal failed, got %s", snapshot.Status)
	}
}

func TestRun_DependencyCompletionWakesWaiter(t *testing.T) {
	w := &countingWorker{id: "w1"}
	registry := worker.NewRegistry()
	registry.Register(w)

	g := goal.New("two step goal", intent.CapabilityResearch, goal.AutonomyFull)
	first := &goal.SubGoal{ID: "sg-1", Description: "first", Capability: intent.CapabilityResearch}
	second := &goal.SubGoal{ID: "sg-2", Description: "second", Capability: intent.CapabilityResearch, DependsOn: []string{"sg-1"}}
	g.SetSubGoals([]*goal.SubGoal{first, second})

	bus := events.NewBus(16)
	bus.Start()
	defer bus.Close()

	cfg := fastConfig()
	cfg.DependencyTimeout = 2 * time.Second
	c := New(cfg, registry, newGoalMap(g), nil, bus, nil)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), subGoalTask(g, second)) }()

	time.Sleep(30 * time.Millisecond)
	if err := c.Run(context.Background(), subGoalTask(g, first)); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("dependent subgoal never ran after dependency completed")
	}

	status, _ := g.Settle()
	if got := g.Status(); !got.IsTerminal() {
		t.Errorf("expected goal settled, got %s (settle said %s)", got, status)
	}
}

// =============================================================================
// Metrics & Settlement
// =============================================================================

func TestRun_RecordsMetricPerAttempt(t *testing.T) {
	w := &countingWorker{id: "w1", failures: 1, failWith: stderrors.New("connection reset")}
	registry := worker.NewRegistry()
	registry.Register(w)

	st := store.NewMemoryStore()
	g, sg := singleSubGoalGoal(t)
	c := New(fastConfig(), registry, newGoalMap(g), st, nil, nil)

	if err := c.Run(context.Background(), subGoalTask(g, sg)); err != nil {
		t.Fatal(err)
	}

	metrics, err := st.QueryMetrics(context.Background(), "w1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 2 {
		t.Fatalf("expected one metric per attempt, got %d", len(metrics))
	}

	failures, successes := 0, 0
	for _, m := range metrics {
		if m.Success {
			successes++
		} else {
			failures++
		}
	}
	if failures != 1 || successes != 1 {
		t.Errorf("expected 1 failure + 1 success metric, got %d/%d", failures, successes)
	}
}

func TestRun_GoalSettlesCompletedWhenAllSubGoalsSucceed(t *testing.T) {
	w := &countingWorker{id: "w1"}
	registry := worker.NewRegistry()
	registry.Register(w)

	g, sg := singleSubGoalGoal(t)
	c := New(fastConfig(), registry, newGoalMap(g), nil, nil, nil)

	if err := c.Run(context.Background(), subGoalTask(g, sg)); err != nil {
		t.Fatal(err)
	}

	if g.Status() != goal.StatusCompleted {
		t.Errorf("expected goal completed, got %s", g.Status())
	}
	if g.Progress() != 100 {
		t.Errorf("expected progress 100, got %f", g.Progress())
	}
}

func TestRun_PartialFailureKeepsCompletedResults(t *testing.T) {
	flaky := &countingWorker{id: "w1", failures: 1000, failWith: engerrors.MarkPermanent(stderrors.New("cannot do it"))}
	registry := worker.NewRegistry()
	registry.Register(flaky)

	g := goal.New("two step goal", intent.CapabilityResearch, goal.AutonomyFull)
	first := &goal.SubGoal{ID: "sg-1", Description: "first", Capability: intent.CapabilityResearch}
	second := &goal.SubGoal{ID: "sg-2", Description: "second", Capability: intent.CapabilityResearch}
	g.SetSubGoals([]*goal.SubGoal{first, second})

	c := New(fastConfig(), registry, newGoalMap(g), nil, nil, nil)

	// First subgoal succeeds before the worker turns permanent-failing.
	flaky.mu.Lock()
	flaky.failures = 0
	flaky.mu.Unlock()
	if err := c.Run(context.Background(), subGoalTask(g, first)); err != nil {
		t.Fatal(err)
	}

	flaky.mu.Lock()
	flaky.failures = 1000
	flaky.calls = 0
	flaky.mu.Unlock()
	if err := c.Run(context.Background(), subGoalTask(g, second)); err == nil {
		t.Fatal("expected second subgoal to fail")
	}

	if g.Status() != goal.StatusFailed {
		t.Fatalf("expected goal failed, got %s", g.Status())
	}

	snapshot := g.Snapshot()
	if snapshot.SubGoals[0].Result == "" {
		t.Error("expected completed subgoal result preserved after partial failure")
	}
	if snapshot.SubGoals[1].FailureReason == "" || snapshot.SubGoals[1].Attempts == 0 {
		t.Error("expected failure reason and attempt count on failed subgoal")
	}
}

func TestRun_FailedSubGoalFailsDependentsAndSettles(t *testing.T) {
	w := &countingWorker{id: "w1", failures: 1000, failWith: engerrors.MarkPermanent(stderrors.New("cannot do it"))}
	registry := worker.NewRegistry()
	registry.Register(w)

	g := goal.New("chained goal", intent.CapabilityResearch, goal.AutonomyFull)
	first := &goal.SubGoal{ID: "sg-1", Description: "first", Capability: intent.CapabilityResearch}
	second := &goal.SubGoal{ID: "sg-2", Description: "second", Capability: intent.CapabilityResearch, DependsOn: []string{"sg-1"}}
	third := &goal.SubGoal{ID: "sg-3", Description: "third", Capability: intent.CapabilityResearch, DependsOn: []string{"sg-2"}}
	g.SetSubGoals([]*goal.SubGoal{first, second, third})

	c := New(fastConfig(), registry, newGoalMap(g), nil, nil, nil)

	if err := c.Run(context.Background(), subGoalTask(g, first)); err == nil {
		t.Fatal("expected first subgoal to fail")
	}

	// The whole chain is unreachable, so the goal settles right away.
	if g.Status() != goal.StatusFailed {
		t.Fatalf("expected goal failed immediately, got %s", g.Status())
	}
	for _, id := range []string{"sg-2", "sg-3"} {
		sg, _ := g.SubGoal(id)
		if sg.Status != goal.StatusFailed {
			t.Errorf("expected %s failed, got %s", id, sg.Status)
		}
		if !strings.Contains(sg.FailureReason, "dependency failed") {
			t.Errorf("expected dependency reason on %s, got %q", id, sg.FailureReason)
		}
	}

	// One attempt plus the recovery restatement, all for sg-1.
	if w.callCount() != 2 {
		t.Errorf("dependents must never reach the worker, got %d calls", w.callCount())
	}
}

func TestRun_IndependentSiblingSurvivesFailedSubGoal(t *testing.T) {
	w := &countingWorker{id: "w1", failures: 2, failWith: engerrors.MarkPermanent(stderrors.New("cannot do it"))}
	registry := worker.NewRegistry()
	registry.Register(w)

	g := goal.New("forked goal", intent.CapabilityResearch, goal.AutonomyFull)
	doomed := &goal.SubGoal{ID: "sg-1", Description: "doomed", Capability: intent.CapabilityResearch}
	sibling := &goal.SubGoal{ID: "sg-2", Description: "independent", Capability: intent.CapabilityResearch}
	g.SetSubGoals([]*goal.SubGoal{doomed, sibling})

	c := New(fastConfig(), registry, newGoalMap(g), nil, nil, nil)

	if err := c.Run(context.Background(), subGoalTask(g, doomed)); err == nil {
		t.Fatal("expected doomed subgoal to fail")
	}

	snapshot, _ := g.SubGoal("sg-2")
	if snapshot.Status != goal.StatusPending {
		t.Fatalf("independent sibling must keep running, got %s", snapshot.Status)
	}
	if g.Status().IsTerminal() {
		t.Fatal("goal must not settle while an independent subgoal is live")
	}

	if err := c.Run(context.Background(), subGoalTask(g, sibling)); err != nil {
		t.Fatal(err)
	}
	if g.Status() != goal.StatusFailed {
		t.Errorf("expected partial failure to settle the goal failed, got %s", g.Status())
	}
}

func TestRun_CompiledDomainGuardReachesWorker(t *testing.T) {
	var mu sync.Mutex
	var got *worker.DomainGuard
	w := &worker.Func{
		WorkerID: "w1",
		Caps:     []intent.Capability{intent.CapabilityResearch},
		Run: func(_ context.Context, req worker.Request) (*worker.Result, error) {
			mu.Lock()
			got = req.Domains
			mu.Unlock()
			return &worker.Result{Output: "done"}, nil
		},
	}
	registry := worker.NewRegistry()
	registry.Register(w)

	g, sg := singleSubGoalGoal(t)
	limits := g.Limits()
	limits.AllowedDomains = []string{"*.example.com"}
	g.SetLimits(limits)

	c := New(fastConfig(), registry, newGoalMap(g), nil, nil, nil)
	if err := c.Run(context.Background(), subGoalTask(g, sg)); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got == nil {
		t.Fatal("expected the compiled domain guard on the request")
	}
	if !got.Allow("api.example.com") {
		t.Error("expected api.example.com allowed")
	}
	if got.Allow("evil.com") {
		t.Error("expected evil.com blocked")
	}
}

func TestRun_InvalidDomainPatternFailsBeforeInvocation(t *testing.T) {
	w := &countingWorker{id: "w1"}
	registry := worker.NewRegistry()
	registry.Register(w)

	g, sg := singleSubGoalGoal(t)
	limits := g.Limits()
	limits.AllowedDomains = []string{"[unclosed"}
	g.SetLimits(limits)

	c := New(fastConfig(), registry, newGoalMap(g), nil, nil, nil)

	err := c.Run(context.Background(), subGoalTask(g, sg))
	var vErr *engerrors.ValidationError
	if !stderrors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if w.callCount() != 0 {
		t.Error("worker must not be invoked when the domain policy cannot compile")
	}

	snapshot, _ := g.SubGoal(sg.ID)
	if snapshot.Status != goal.StatusFailed {
		t.Errorf("expected subgoal failed, got %s", snapshot.Status)
	}
}

func TestRun_StandaloneTaskRunsWorker(t *testing.T) {
	w := &countingWorker{id: "w1"}
	registry := worker.NewRegistry()
	registry.Register(w)

	c := New(fastConfig(), registry, newGoalMap(), nil, nil, nil)
	task := scheduler.Task{ID: "bg-1", Type: "maintenance", Payload: "sweep", Capability: intent.CapabilityResearch}

	if err := c.Run(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	if w.callCount() != 1 {
		t.Errorf("expected one call, got %d", w.callCount())
	}
}
