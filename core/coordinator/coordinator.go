// Package coordinator drives a single admitted task through its worker:
// dependency wait, invocation with deadline, retry with exponential backoff,
// one recovery strategy after exhaustion, and outcome recording.
package coordinator

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	engerrors "github.com/kairoai/engine/core/errors"
	"github.com/kairoai/engine/core/events"
	"github.com/kairoai/engine/core/goal"
	"github.com/kairoai/engine/core/scheduler"
	"github.com/kairoai/engine/core/store"
	"github.com/kairoai/engine/core/worker"
)

// GoalResolver looks up live goals by ID. The engine implements it.
type GoalResolver interface {
	Goal(id string) (*goal.Goal, bool)
}

// Config holds the coordinator's tunables.
type Config struct {
	// MaxAttempts bounds invocation attempts before recovery.
	MaxAttempts int `yaml:"max_attempts"`

	// InvocationTimeout is the per-worker-call deadline.
	InvocationTimeout time.Duration `yaml:"invocation_timeout"`

	// DependencyTimeout bounds the wait for dependency completion.
	DependencyTimeout time.Duration `yaml:"dependency_timeout"`

	// DependencyPollInterval is the fallback re-check interval while
	// waiting; the wait is primarily woken by completion events.
	DependencyPollInterval time.Duration `yaml:"dependency_poll_interval"`

	// Backoff shapes the delay between retry attempts.
	Backoff engerrors.BackoffPolicy `yaml:"backoff"`
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:            3,
		InvocationTimeout:      2 * time.Minute,
		DependencyTimeout:      5 * time.Minute,
		DependencyPollInterval: 200 * time.Millisecond,
		Backoff:                engerrors.DefaultBackoffPolicy(),
	}
}

// Coordinator implements scheduler.Runner. It is stateless per task; all
// per-unit state lives on the goal and in the store.
type Coordinator struct {
	cfg      Config
	registry *worker.Registry
	goals    GoalResolver
	store    store.Store
	bus      *events.Bus
	logger   *slog.Logger
}

// New creates a coordinator. The bus and store may be nil in tests.
func New(cfg Config, registry *worker.Registry, goals GoalResolver, st store.Store, bus *events.Bus, logger *slog.Logger) *Coordinator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.InvocationTimeout <= 0 {
		cfg.InvocationTimeout = DefaultConfig().InvocationTimeout
	}
	if cfg.DependencyTimeout <= 0 {
		cfg.DependencyTimeout = DefaultConfig().DependencyTimeout
	}
	if cfg.DependencyPollInterval <= 0 {
		cfg.DependencyPollInterval = DefaultConfig().DependencyPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:      cfg,
		registry: registry,
		goals:    goals,
		store:    st,
		bus:      bus,
		logger:   logger,
	}
}

// Run executes one admitted task. Tasks derived from a subgoal drive the
// subgoal state machine on their goal; standalone tasks just invoke their
// worker.
func (c *Coordinator) Run(ctx context.Context, task scheduler.Task) error {
	if task.GoalID == "" || task.SubGoalID == "" {
		return c.runStandalone(ctx, task)
	}
	return c.runSubGoal(ctx, task)
}

func (c *Coordinator) runSubGoal(ctx context.Context, task scheduler.Task) error {
	g, ok := c.goals.Goal(task.GoalID)
	if !ok {
		return engerrors.NewValidationError("goal_id", fmt.Sprintf("unknown goal %q", task.GoalID))
	}
	sg, ok := g.SubGoal(task.SubGoalID)
	if !ok {
		return engerrors.NewValidationError("sub_goal_id", fmt.Sprintf("unknown subgoal %q", task.SubGoalID))
	}

	g.SetStatus(goal.StatusInProgress)

	if err := c.waitForDependencies(ctx, g, sg); err != nil {
		g.FailSubGoal(sg.ID, err.Error(), 0, 0)
		c.publish(&events.Event{Type: events.EventSubGoalFailed, TaskID: task.ID, GoalID: g.ID(), SubGoalID: sg.ID, Reason: err.Error()})
		c.failDependents(task, g, sg.ID)
		c.settleGoal(g)
		return err
	}

	if !g.TransitionSubGoal(sg.ID, goal.StatusInProgress) {
		return engerrors.NewValidationError("sub_goal", fmt.Sprintf("subgoal %q cannot start from %s", sg.ID, sg.Status))
	}

	started := time.Now()
	req := requestForSubGoal(task, g, sg)
	guard, err := worker.NewDomainGuard(req.AllowedDomains)
	if err != nil {
		vErr := engerrors.NewValidationError("allowed_domains", err.Error())
		g.FailSubGoal(sg.ID, vErr.Error(), 0, time.Since(started))
		c.publish(&events.Event{Type: events.EventSubGoalFailed, TaskID: task.ID, GoalID: g.ID(), SubGoalID: sg.ID, Reason: vErr.Error()})
		c.failDependents(task, g, sg.ID)
		c.settleGoal(g)
		return vErr
	}
	req.Domains = guard
	outcome := c.attempt(ctx, task, req)

	if outcome.err == nil {
		g.CompleteSubGoal(sg.ID, outcome.result.Output, outcome.attempts, time.Since(started), outcome.adapted)
		if outcome.adapted {
			g.RecordAdaptation(sg.ID, goal.AdaptationRecord{
				At:           time.Now(),
				FromStrategy: outcome.fromStrategy,
				ToStrategy:   outcome.toStrategy,
				Reason:       outcome.adaptReason,
			})
		}
		c.publish(&events.Event{Type: events.EventSubGoalCompleted, TaskID: task.ID, GoalID: g.ID(), SubGoalID: sg.ID, WorkerID: outcome.workerID})
		c.settleGoal(g)
		return nil
	}

	g.FailSubGoal(sg.ID, outcome.err.Error(), outcome.attempts, time.Since(started))
	c.publish(&events.Event{Type: events.EventSubGoalFailed, TaskID: task.ID, GoalID: g.ID(), SubGoalID: sg.ID, WorkerID: outcome.workerID, Reason: outcome.err.Error()})
	c.failDependents(task, g, sg.ID)
	c.settleGoal(g)
	return outcome.err
}

// failDependents marks every subgoal that can no longer run because of the
// failed one, so the goal settles without waiting on tasks the scheduler
// will never admit.
func (c *Coordinator) failDependents(task scheduler.Task, g *goal.Goal, failedID string) {
	reason := "dependency failed: " + failedID
	for _, depID := range g.FailDependents(failedID, reason) {
		c.publish(&events.Event{Type: events.EventSubGoalFailed, TaskID: task.ID, GoalID: g.ID(), SubGoalID: depID, Reason: reason})
	}
}

func (c *Coordinator) runStandalone(ctx context.Context, task scheduler.Task) error {
	outcome := c.attempt(ctx, task, worker.Request{
		TaskID:      task.ID,
		Description: task.Payload,
		Capability:  task.Capability,
	})
	return outcome.err
}

// requestForSubGoal builds the worker request from the subgoal's security
// context and the goal's resource limits.
func requestForSubGoal(task scheduler.Task, g *goal.Goal, sg *goal.SubGoal) worker.Request {
	return worker.Request{
		TaskID:         task.ID,
		Description:    sg.Description,
		Capability:     sg.Capability,
		Permissions:    sg.Security.Permissions,
		Restrictions:   sg.Security.Restrictions,
		AllowedDomains: g.Limits().AllowedDomains,
	}
}

// settleGoal derives and announces the goal's terminal status once every
// subgoal is terminal.
func (c *Coordinator) settleGoal(g *goal.Goal) {
	status, settled := g.Settle()
	if !settled {
		return
	}

	eventType := events.EventGoalCompleted
	if status != goal.StatusCompleted {
		eventType = events.EventGoalFailed
	}
	c.publish(&events.Event{Type: eventType, GoalID: g.ID()})
	c.logger.Info("goal settled", "goal_id", g.ID(), "status", status.String(), "progress", g.Progress())
}

// =============================================================================
// Dependency Wait
// =============================================================================

// waitForDependencies blocks until every declared dependency of the subgoal
// completes. The wait is event-driven: subgoal completion events on the same
// goal wake it, with a polling fallback. On timeout the subgoal fails with a
// DependencyTimeoutError and its worker is never invoked.
func (c *Coordinator) waitForDependencies(ctx context.Context, g *goal.Goal, sg *goal.SubGoal) error {
	if g.DependenciesSatisfied(sg.ID) {
		return nil
	}

	wake := make(chan struct{}, 1)
	if c.bus != nil {
		unsubscribe := c.bus.Subscribe(func(e *events.Event) {
			if e.GoalID == g.ID() {
				select {
				case wake <- struct{}{}:
				default:
				}
			}
		}, events.EventSubGoalCompleted)
		defer unsubscribe()
	}

	started := time.Now()
	timeout := time.NewTimer(c.cfg.DependencyTimeout)
	defer timeout.Stop()
	poll := time.NewTicker(c.cfg.DependencyPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-wake:
		case <-poll.C:
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return &engerrors.DependencyTimeoutError{
				UnitID:     sg.ID,
				Waited:     time.Since(started),
				Unresolved: unresolvedDependencies(g, sg),
			}
		}

		if g.DependenciesSatisfied(sg.ID) {
			return nil
		}
	}
}

func unresolvedDependencies(g *goal.Goal, sg *goal.SubGoal) []string {
	var unresolved []string
	for _, depID := range sg.DependsOn {
		dep, ok := g.SubGoal(depID)
		if !ok || !dep.Status.IsSuccess() {
			unresolved = append(unresolved, depID)
		}
	}
	return unresolved
}

// =============================================================================
// Invocation & Retry
// =============================================================================

// outcome is the terminal result of the attempt/recovery pipeline.
type outcome struct {
	result   *worker.Result
	err      error
	attempts int
	workerID string

	adapted      bool
	fromStrategy string
	toStrategy   string
	adaptReason  string
}

// attempt runs the retry loop against the assigned worker and, after
// exhausting retries, tries exactly one recovery strategy.
func (c *Coordinator) attempt(ctx context.Context, task scheduler.Task, req worker.Request) outcome {
	w, err := c.resolveWorker(task)
	if err != nil {
		return outcome{err: err}
	}

	attempts := 0
	var lastErr error
	for attemptNo := 1; attemptNo <= c.cfg.MaxAttempts; attemptNo++ {
		if attemptNo > 1 {
			delay := c.cfg.Backoff.DelayWithJitter(attemptNo)
			c.logger.Debug("retrying after backoff", "task_id", task.ID, "attempt", attemptNo, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return outcome{err: ctx.Err(), attempts: attempts, workerID: w.ID()}
			}
		}

		attempts = attemptNo
		result, invokeErr := c.invoke(ctx, w, req, task)
		if invokeErr == nil {
			return outcome{result: result, attempts: attempts, workerID: w.ID()}
		}
		lastErr = invokeErr
		if !engerrors.IsRetryable(invokeErr) {
			break
		}
	}

	return c.recover(ctx, task, req, w, lastErr, attempts)
}

// invoke calls the worker under the invocation deadline and records the
// attempt as a PerformanceMetric regardless of outcome.
func (c *Coordinator) invoke(ctx context.Context, w worker.Worker, req worker.Request, task scheduler.Task) (*worker.Result, error) {
	invokeCtx, cancel := context.WithTimeout(ctx, c.cfg.InvocationTimeout)
	defer cancel()

	started := time.Now()
	result, err := w.Execute(invokeCtx, req)
	ended := time.Now()

	if stderrors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		// The worker overran its deadline; the overall task is still live.
		err = &engerrors.WorkerExecutionError{
			WorkerID:  w.ID(),
			TaskID:    task.ID,
			Retryable: true,
			Err:       fmt.Errorf("invocation exceeded %s deadline", c.cfg.InvocationTimeout),
		}
	}

	c.recordMetric(task, w.ID(), started, ended, result, err)
	return result, err
}

func (c *Coordinator) resolveWorker(task scheduler.Task) (worker.Worker, error) {
	if task.WorkerID != "" {
		if w, ok := c.registry.Get(task.WorkerID); ok {
			return w, nil
		}
		return nil, engerrors.NewValidationError("worker_id", fmt.Sprintf("unknown worker %q", task.WorkerID))
	}
	if w, ok := c.registry.Primary(task.Capability); ok {
		return w, nil
	}
	return nil, engerrors.NewValidationError("capability", fmt.Sprintf("no worker registered for %q", task.Capability))
}

// recordMetric persists one execution attempt. Store failures are logged and
// swallowed; the engine degrades rather than failing the task over telemetry.
func (c *Coordinator) recordMetric(task scheduler.Task, workerID string, started, ended time.Time, result *worker.Result, execErr error) {
	metric := &store.PerformanceMetric{
		ID:        uuid.New().String(),
		WorkerID:  workerID,
		TaskID:    task.ID,
		TaskType:  task.Type,
		StartedAt: started,
		EndedAt:   ended,
		Success:   execErr == nil,
	}
	if execErr != nil {
		metric.Error = execErr.Error()
	}
	if result != nil {
		metric.QualityScore = result.QualityScore
		metric.NetworkCalls = result.NetworkCalls
	}

	if c.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.store.SaveMetric(ctx, metric); err != nil {
			c.logger.Warn("metric save failed", "task_id", task.ID, "error", err)
		}
	}

	c.publish(&events.Event{
		Type:     events.EventMetricRecorded,
		TaskID:   task.ID,
		GoalID:   task.GoalID,
		WorkerID: workerID,
		Metric:   metric,
	})
}

func (c *Coordinator) publish(event *events.Event) {
	if c.bus != nil {
		c.bus.Publish(event)
	}
}
