// Package engine wires the classifier, planner, scheduler, coordinator, and
// monitor into one explicitly constructed facade. Nothing here is a
// singleton: callers build an Engine, inject collaborators, and pass it
// around.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kairoai/engine/core/config"
	"github.com/kairoai/engine/core/coordinator"
	"github.com/kairoai/engine/core/events"
	"github.com/kairoai/engine/core/goal"
	"github.com/kairoai/engine/core/intent"
	"github.com/kairoai/engine/core/monitor"
	"github.com/kairoai/engine/core/planner"
	"github.com/kairoai/engine/core/scheduler"
	"github.com/kairoai/engine/core/store"
	"github.com/kairoai/engine/core/worker"
)

// Engine is the public scheduling surface consumed by the surrounding
// application. All calls are synchronous handles over asynchronous work;
// status stays pollable by identifier at any time after creation.
type Engine struct {
	cfg    config.EngineConfig
	logger *slog.Logger

	classifier  *intent.Classifier
	planner     *planner.Planner
	scheduler   *scheduler.Scheduler
	coordinator *coordinator.Coordinator
	monitor     *monitor.Monitor
	registry    *worker.Registry
	store       store.Store
	bus         *events.Bus

	mu    sync.RWMutex
	goals map[string]*goal.Goal
	// goalTasks maps goal ID to the task IDs scheduled for its subgoals.
	goalTasks map[string][]string
	// goalStrategies remembers the plan's strategy names for outcome
	// feedback on settlement.
	goalStrategies map[string][]string
	// archived tracks task IDs already written to the store.
	archived map[string]bool

	// inflight deduplicates concurrently running goals by description hash
	// when dedup is enabled.
	inflight *lru.Cache[string, string]

	unsubscribe []func()
	done        chan struct{}
	wg          sync.WaitGroup
	started     bool
	stopped     bool
}

// New builds an engine from its collaborators. The store may be nil, in
// which case outcomes are not persisted.
func New(cfg *config.Config, registry *worker.Registry, st store.Store, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	inflight, err := lru.New[string, string](max(cfg.Engine.DedupCacheSize, 1))
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(cfg.Engine.EventBufferSize)
	plnr := planner.NewPlanner(logger.With("component", "planner"))
	mon := monitor.New(cfg.Monitor, plnr.Catalog(), bus, logger.With("component", "monitor"))

	e := &Engine{
		cfg:            cfg.Engine,
		logger:         logger,
		classifier:     intent.NewClassifier(),
		planner:        plnr,
		monitor:        mon,
		registry:       registry,
		store:          st,
		bus:            bus,
		goals:          make(map[string]*goal.Goal),
		goalTasks:      make(map[string][]string),
		goalStrategies: make(map[string][]string),
		archived:       make(map[string]bool),
		inflight:       inflight,
		done:           make(chan struct{}),
	}

	e.coordinator = coordinator.New(cfg.Coordinator, registry, e, st, bus, logger.With("component", "coordinator"))
	e.scheduler = scheduler.New(cfg.Scheduler, e.coordinator, mon, registry, bus, logger.With("component", "scheduler"))
	return e, nil
}

// Start launches the bus, scheduler, monitor, and maintenance loop.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started || e.stopped {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.subscribe()
	e.bus.Start()
	e.scheduler.Start()
	e.monitor.Start()

	e.wg.Add(1)
	go e.maintenanceLoop()

	e.logger.Info("engine started")
}

// Stop shuts everything down in dependency order and waits.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	started := e.started
	e.mu.Unlock()

	if started {
		close(e.done)
		e.wg.Wait()
	}

	e.scheduler.Stop()
	e.monitor.Stop()
	for _, unsub := range e.unsubscribe {
		unsub()
	}
	e.bus.Close()
	e.logger.Info("engine stopped")
}

// subscribe wires the bus into the monitor and the settlement bookkeeping.
func (e *Engine) subscribe() {
	e.unsubscribe = append(e.unsubscribe,
		e.bus.Subscribe(func(event *events.Event) {
			e.monitor.Record(event.Metric)
		}, events.EventMetricRecorded),

		e.bus.Subscribe(func(event *events.Event) {
			e.onGoalSettled(event.GoalID, event.Type == events.EventGoalCompleted)
		}, events.EventGoalCompleted, events.EventGoalFailed),
	)
}

// onGoalSettled records strategy feedback, writes the outcome to agent
// memory, and releases the dedup slot.
func (e *Engine) onGoalSettled(goalID string, success bool) {
	e.mu.RLock()
	g := e.goals[goalID]
	strategies := e.goalStrategies[goalID]
	e.mu.RUnlock()
	if g == nil {
		return
	}

	for _, name := range strategies {
		e.monitor.RecordStrategyOutcome(name, success)
	}
	e.releaseInflight(g.Description())
	e.saveGoalMemory(g)
}

// saveGoalMemory writes the goal outcome so future planning can consult
// past results for the same capability.
func (e *Engine) saveGoalMemory(g *goal.Goal) {
	if e.store == nil {
		return
	}

	snapshot := g.Snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := e.store.SaveMemory(ctx, &store.MemoryEntry{
		ID:        snapshot.ID + ":outcome",
		AgentID:   string(snapshot.Type),
		GoalID:    snapshot.ID,
		Kind:      "goal_outcome",
		Content:   snapshot.Status + ": " + snapshot.Description,
		CreatedAt: time.Now(),
	})
	if err != nil {
		e.logger.Warn("goal memory save failed", "goal_id", snapshot.ID, "error", err)
	}
}

// RecentOutcomes returns stored outcomes for a capability, newest first.
func (e *Engine) RecentOutcomes(ctx context.Context, capability intent.Capability, limit int) ([]*store.MemoryEntry, error) {
	if e.store == nil {
		return nil, nil
	}
	return e.store.QueryMemory(ctx, string(capability), store.MemoryFilter{Kind: "goal_outcome", Limit: limit})
}

// outcomeHistoryLimit bounds how many stored outcomes planning consults.
const outcomeHistoryLimit = 20

// outcomeHistory folds stored goal outcomes for the capability into the
// planner's history summary. Store failures degrade to an empty history.
func (e *Engine) outcomeHistory(capability intent.Capability) planner.History {
	var history planner.History
	if e.store == nil {
		return history
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	entries, err := e.RecentOutcomes(ctx, capability, outcomeHistoryLimit)
	if err != nil {
		e.logger.Warn("outcome history query failed", "capability", string(capability), "error", err)
		return history
	}
	for _, entry := range entries {
		history.Total++
		if strings.HasPrefix(entry.Content, goal.StatusCompleted.String()) {
			history.Successes++
		}
	}
	return history
}

// Classify exposes the intent classifier for callers that want the ranking
// without creating a goal.
func (e *Engine) Classify(text string) (*intent.Classification, error) {
	return e.classifier.Classify(text)
}

// Goal implements the coordinator's goal resolver.
func (e *Engine) Goal(id string) (*goal.Goal, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	g, ok := e.goals[id]
	return g, ok
}

// =============================================================================
// Task Surface
// =============================================================================

// ScheduleTask enqueues a standalone task and returns its ID.
func (e *Engine) ScheduleTask(taskType, payload string, opts scheduler.Options) (string, error) {
	return e.scheduler.Schedule(taskType, payload, opts)
}

// TaskStatus returns a snapshot of a scheduled task.
func (e *Engine) TaskStatus(taskID string) (scheduler.Task, bool) {
	return e.scheduler.Status(taskID)
}

// CancelTask cancels a task by ID.
func (e *Engine) CancelTask(taskID string) bool {
	return e.scheduler.Cancel(taskID)
}

// PauseTask suspends a pending task's admission.
func (e *Engine) PauseTask(taskID string) bool {
	return e.scheduler.Pause(taskID)
}

// ResumeTask requeues a paused task.
func (e *Engine) ResumeTask(taskID string) bool {
	return e.scheduler.Resume(taskID)
}

// WorkerHealth pairs a worker's derived health with its window stats.
type WorkerHealth struct {
	Health string              `json:"health"`
	Stats  monitor.WorkerStats `json:"stats"`
}

// EngineStats is the aggregate surface returned by TaskStats.
type EngineStats struct {
	Queue         scheduler.Stats         `json:"queue"`
	Workers       map[string]WorkerHealth `json:"workers"`
	ActiveGoals   int                     `json:"active_goals"`
	DroppedEvents int64                   `json:"dropped_events"`
}

// TaskStats aggregates the queue census, per-worker health, and goal count.
func (e *Engine) TaskStats() EngineStats {
	stats := EngineStats{
		Queue:         e.scheduler.Stats(),
		Workers:       make(map[string]WorkerHealth),
		DroppedEvents: e.bus.Dropped(),
	}

	for _, workerID := range e.registry.IDs() {
		stats.Workers[workerID] = WorkerHealth{
			Health: e.monitor.Health(workerID).String(),
			Stats:  e.monitor.Stats(workerID, 0),
		}
	}

	e.mu.RLock()
	for _, g := range e.goals {
		if !g.Status().IsTerminal() {
			stats.ActiveGoals++
		}
	}
	e.mu.RUnlock()
	return stats
}

// ResetWorkerCircuit manually closes a worker's breaker.
func (e *Engine) ResetWorkerCircuit(workerID string) {
	e.monitor.ResetCircuit(workerID)
}
