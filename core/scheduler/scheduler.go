package scheduler

import (
	"context"
	stderrors "errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	engerrors "github.com/kairoai/engine/core/errors"
	"github.com/kairoai/engine/core/events"
	"github.com/kairoai/engine/core/intent"
)

// Runner executes one admitted task. The execution coordinator implements
// this; tests substitute fakes. The task is a snapshot: runners report
// outcome through the returned error, not by mutating the task.
type Runner interface {
	Run(ctx context.Context, task Task) error
}

// AdmissionGate vetoes admission per worker. The performance monitor's
// circuit registry implements this, returning a CircuitOpenError while a
// worker's breaker is open.
type AdmissionGate interface {
	Allow(workerID string) error
}

// WorkerResolver maps a capability to the worker that will serve it, so the
// gate can be consulted for tasks scheduled by capability rather than pinned
// to a worker. The worker registry implements this.
type WorkerResolver interface {
	PrimaryID(capability intent.Capability) (string, bool)
}

// Config holds the scheduler's tunables.
type Config struct {
	// MaxConcurrency bounds simultaneously running tasks.
	MaxConcurrency int `yaml:"max_concurrency"`

	// PollInterval is the admission loop's fallback wake interval used when
	// no dependency-completion signal arrives.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 3,
		PollInterval:   time.Second,
	}
}

// admission deferral reasons, distinguished from hard errors for logging.
var (
	errNotDue              = stderrors.New("scheduled time not reached")
	errDependenciesPending = stderrors.New("dependencies not completed")
)

// Scheduler owns the task queue and the single admission loop. All queue and
// task-state mutation happens under its lock; executions run as goroutines
// bounded by MaxConcurrency.
type Scheduler struct {
	mu     sync.RWMutex
	queue  *taskQueue
	tasks  map[string]*Task
	paused map[string]*Task

	seq     uint64
	running int

	cfg      Config
	runner   Runner
	gate     AdmissionGate
	resolver WorkerResolver
	bus      *events.Bus
	logger   *slog.Logger

	wake    chan struct{}
	done    chan struct{}
	loopWG  sync.WaitGroup
	execWG  sync.WaitGroup
	started bool
	stopped bool
}

// New creates a scheduler. The gate, resolver, and bus may be nil.
func New(cfg Config, runner Runner, gate AdmissionGate, resolver WorkerResolver, bus *events.Bus, logger *slog.Logger) *Scheduler {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		queue:    newTaskQueue(),
		tasks:    make(map[string]*Task),
		paused:   make(map[string]*Task),
		cfg:      cfg,
		runner:   runner,
		gate:     gate,
		resolver: resolver,
		bus:      bus,
		logger:   logger,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start launches the admission loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	s.loopWG.Add(1)
	go s.admissionLoop()
}

// Stop halts admission, cancels in-flight executions, and waits for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	for _, task := range s.tasks {
		if task.Status == StatusRunning && task.cancel != nil {
			task.cancel()
		}
	}
	s.mu.Unlock()

	close(s.done)
	if started {
		s.loopWG.Wait()
	}
	s.execWG.Wait()
}

// Schedule enqueues a task and returns its ID. The task stays pending until
// the admission loop dispatches it.
func (s *Scheduler) Schedule(taskType, payload string, opts Options) (string, error) {
	if taskType == "" {
		return "", engerrors.NewValidationError("type", "must not be empty")
	}
	if opts.Priority < 0 || opts.Priority > 10 {
		return "", engerrors.NewValidationError("priority", "must be between 0 and 10")
	}

	scheduledFor := opts.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = time.Now()
	}

	s.mu.Lock()
	task := &Task{
		ID:           uuid.New().String(),
		Type:         taskType,
		Payload:      payload,
		GoalID:       opts.GoalID,
		SubGoalID:    opts.SubGoalID,
		Capability:   opts.Capability,
		WorkerID:     opts.WorkerID,
		Priority:     opts.Priority,
		ScheduledFor: scheduledFor,
		DependsOn:    append([]string(nil), opts.DependsOn...),
		Status:       StatusPending,
		CreatedAt:    time.Now(),
		seq:          s.seq,
	}
	s.seq++
	s.tasks[task.ID] = task
	s.queue.push(task)
	s.mu.Unlock()

	s.publish(&events.Event{Type: events.EventTaskScheduled, TaskID: task.ID, GoalID: task.GoalID, SubGoalID: task.SubGoalID})
	s.signalWake()
	return task.ID, nil
}

// Cancel aborts a task. Before dispatch the entry is removed and marked
// failed with reason "cancelled"; after dispatch the execution context is
// cancelled and the runner decides how quickly to stop.
func (s *Scheduler) Cancel(taskID string) bool {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	if !ok || task.Status.IsTerminal() {
		s.mu.Unlock()
		return false
	}

	var cascaded []*Task
	switch task.Status {
	case StatusPending:
		s.queue.remove(taskID)
		s.markCancelledLocked(task)
		cascaded = s.failDependentsLocked(taskID)
	case StatusPaused:
		delete(s.paused, taskID)
		s.markCancelledLocked(task)
		cascaded = s.failDependentsLocked(taskID)
	case StatusRunning:
		if task.cancel != nil {
			task.cancel()
		}
	}
	s.mu.Unlock()

	s.publish(&events.Event{Type: events.EventTaskCancelled, TaskID: taskID, GoalID: task.GoalID, SubGoalID: task.SubGoalID})
	s.publishFailures(cascaded)
	return true
}

// markCancelledLocked records pre-dispatch cancellation. Caller holds lock.
func (s *Scheduler) markCancelledLocked(task *Task) {
	task.Status = StatusFailed
	task.FailureReason = "cancelled"
	task.CompletedAt = time.Now()
}

// Pause suspends a pending task's admission.
func (s *Scheduler) Pause(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok || task.Status != StatusPending {
		return false
	}

	s.queue.remove(taskID)
	task.Status = StatusPaused
	s.paused[taskID] = task
	return true
}

// Resume requeues a paused task.
func (s *Scheduler) Resume(taskID string) bool {
	s.mu.Lock()
	task, ok := s.paused[taskID]
	if !ok {
		s.mu.Unlock()
		return false
	}

	delete(s.paused, taskID)
	task.Status = StatusPending
	s.queue.push(task)
	s.mu.Unlock()

	s.signalWake()
	return true
}

// Status returns a snapshot of the task by ID.
func (s *Scheduler) Status(taskID string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// Snapshot returns a copy of every task the scheduler has seen.
func (s *Scheduler) Snapshot() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		copied := *task
		copied.cancel = nil
		result = append(result, copied)
	}
	return result
}

// Stats returns a census of every task the scheduler has seen.
func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{TotalScheduled: len(s.tasks)}
	for _, task := range s.tasks {
		switch task.Status {
		case StatusPending:
			stats.Pending++
		case StatusRunning:
			stats.Running++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			if task.FailureReason == "cancelled" {
				stats.Cancelled++
			} else {
				stats.Failed++
			}
		case StatusPaused:
			stats.Paused++
		}
	}
	return stats
}

// =============================================================================
// Admission Loop
// =============================================================================

// admissionLoop is the single goroutine that moves tasks from the queue into
// execution. It wakes on dependency-completion signals and falls back to
// polling so future scheduled times are honored.
func (s *Scheduler) admissionLoop() {
	defer s.loopWG.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		s.admitReady()

		select {
		case <-s.wake:
		case <-ticker.C:
		case <-s.done:
			return
		}
	}
}

// admitReady dispatches every currently admissible task up to the
// concurrency bound. Tasks skipped for unmet gates keep their queue position.
func (s *Scheduler) admitReady() {
	for {
		s.mu.Lock()
		if s.stopped || s.running >= s.cfg.MaxConcurrency {
			if s.running >= s.cfg.MaxConcurrency && s.queue.Len() > 0 {
				s.logger.Debug("admission deferred",
					"reason", (&engerrors.ResourceExhaustionError{Resource: "concurrency", Limit: s.cfg.MaxConcurrency}).Error())
			}
			s.mu.Unlock()
			return
		}

		task := s.nextAdmissibleLocked()
		if task == nil {
			s.mu.Unlock()
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		task.Status = StatusRunning
		task.StartedAt = time.Now()
		task.cancel = cancel
		s.running++
		s.execWG.Add(1)
		s.mu.Unlock()

		s.publish(&events.Event{Type: events.EventTaskStarted, TaskID: task.ID, GoalID: task.GoalID, SubGoalID: task.SubGoalID, WorkerID: task.WorkerID})
		go s.execute(ctx, task)
	}
}

// nextAdmissibleLocked scans the queue in priority order for the first task
// whose time, dependency, and circuit gates all pass. Skipped tasks are
// pushed back unchanged. Caller holds lock.
func (s *Scheduler) nextAdmissibleLocked() *Task {
	var skipped []*Task
	var admitted *Task

	for {
		task := s.queue.pop()
		if task == nil {
			break
		}
		if err := s.admissibleLocked(task); err != nil {
			s.logger.Debug("task not admissible", "task_id", task.ID, "reason", err)
			skipped = append(skipped, task)
			continue
		}
		admitted = task
		break
	}

	for _, task := range skipped {
		s.queue.push(task)
	}
	return admitted
}

// admissibleLocked checks the per-task admission gates. Caller holds lock.
func (s *Scheduler) admissibleLocked(task *Task) error {
	if time.Now().Before(task.ScheduledFor) {
		return errNotDue
	}
	for _, depID := range task.DependsOn {
		dep, ok := s.tasks[depID]
		if !ok || dep.Status != StatusCompleted {
			return errDependenciesPending
		}
	}
	if s.gate != nil {
		if workerID := s.targetWorker(task); workerID != "" {
			if err := s.gate.Allow(workerID); err != nil {
				return err
			}
		}
	}
	return nil
}

// targetWorker is the worker the executor would dispatch to: the pinned one,
// or the capability's primary when the task is scheduled by capability.
func (s *Scheduler) targetWorker(task *Task) string {
	if task.WorkerID != "" {
		return task.WorkerID
	}
	if s.resolver != nil {
		if workerID, ok := s.resolver.PrimaryID(task.Capability); ok {
			return workerID
		}
	}
	return ""
}

// execute runs one task to completion and records the terminal outcome.
func (s *Scheduler) execute(ctx context.Context, task *Task) {
	defer s.execWG.Done()

	s.mu.RLock()
	snapshot := *task
	s.mu.RUnlock()
	snapshot.cancel = nil

	err := s.runner.Run(ctx, snapshot)

	s.mu.Lock()
	s.running--
	task.CompletedAt = time.Now()
	if task.cancel != nil {
		task.cancel()
		task.cancel = nil
	}

	eventType := events.EventTaskCompleted
	var cascaded []*Task
	if err != nil {
		task.Status = StatusFailed
		task.FailureReason = err.Error()
		if stderrors.Is(err, context.Canceled) {
			task.FailureReason = "cancelled"
		}
		var wee *engerrors.WorkerExecutionError
		if stderrors.As(err, &wee) {
			task.RetryCount = wee.Attempts
		}
		eventType = events.EventTaskFailed
		cascaded = s.failDependentsLocked(task.ID)
	} else {
		task.Status = StatusCompleted
	}
	reason := task.FailureReason
	s.mu.Unlock()

	s.publish(&events.Event{
		Type:      eventType,
		TaskID:    task.ID,
		GoalID:    task.GoalID,
		SubGoalID: task.SubGoalID,
		WorkerID:  task.WorkerID,
		Reason:    reason,
	})
	s.publishFailures(cascaded)

	// Completion may satisfy another task's dependency.
	s.signalWake()
}

// failDependentsLocked terminally fails every pending or paused task whose
// dependency chain includes a task that can no longer complete. Dependents
// would otherwise sit in the queue forever, since admission requires every
// dependency to report completed. Caller holds lock.
func (s *Scheduler) failDependentsLocked(failedID string) []*Task {
	var failed []*Task
	frontier := []string{failedID}
	for len(frontier) > 0 {
		depID := frontier[0]
		frontier = frontier[1:]
		for _, task := range s.tasks {
			if task.Status != StatusPending && task.Status != StatusPaused {
				continue
			}
			if !slices.Contains(task.DependsOn, depID) {
				continue
			}
			if task.Status == StatusPaused {
				delete(s.paused, task.ID)
			} else {
				s.queue.remove(task.ID)
			}
			task.Status = StatusFailed
			task.FailureReason = "dependency failed: " + depID
			task.CompletedAt = time.Now()
			failed = append(failed, task)
			frontier = append(frontier, task.ID)
		}
	}
	return failed
}

func (s *Scheduler) publishFailures(tasks []*Task) {
	for _, task := range tasks {
		s.publish(&events.Event{
			Type:      events.EventTaskFailed,
			TaskID:    task.ID,
			GoalID:    task.GoalID,
			SubGoalID: task.SubGoalID,
			Reason:    task.FailureReason,
		})
	}
}

// signalWake nudges the admission loop without blocking.
func (s *Scheduler) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) publish(event *events.Event) {
	if s.bus != nil {
		s.bus.Publish(event)
	}
}
