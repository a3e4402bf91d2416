package goal

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kairoai/engine/core/intent"
)

// Goal is a top-level user-requested unit of work, possibly decomposed into
// dependency-linked subgoals. All mutation is serialized by the goal's lock.
type Goal struct {
	mu sync.RWMutex

	id          string
	description string
	goalType    intent.Capability
	status      Status
	priority    int
	autonomy    AutonomyLevel

	createdAt time.Time
	updatedAt time.Time

	estimatedCompletion time.Time
	actualCompletion    time.Time

	progress float64

	subGoals []*SubGoal
	limits   ResourceLimits

	// multiCapability marks goals whose intent classification was a tie.
	multiCapability bool
}

// New creates a pending goal.
func New(description string, goalType intent.Capability, autonomy AutonomyLevel) *Goal {
	now := time.Now()
	return &Goal{
		id:          uuid.New().String(),
		description: description,
		goalType:    goalType,
		status:      StatusPending,
		autonomy:    autonomy,
		createdAt:   now,
		updatedAt:   now,
		limits:      DefaultResourceLimits(),
	}
}

// ID returns the goal identifier.
func (g *Goal) ID() string {
	return g.id
}

// Description returns the goal description.
func (g *Goal) Description() string {
	return g.description
}

// Type returns the classified goal type.
func (g *Goal) Type() intent.Capability {
	return g.goalType
}

// Autonomy returns the goal's autonomy level.
func (g *Goal) Autonomy() AutonomyLevel {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.autonomy
}

// Status returns the current goal status.
func (g *Goal) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

// SetStatus transitions the goal, enforcing the state machine. Illegal
// transitions are ignored and reported as false.
func (g *Goal) SetStatus(next Status) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status == next {
		return true
	}
	if !g.status.CanTransitionTo(next) {
		return false
	}

	g.status = next
	g.updatedAt = time.Now()
	if next.IsTerminal() {
		g.actualCompletion = g.updatedAt
	}
	return true
}

// Priority returns the goal priority.
func (g *Goal) Priority() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.priority
}

// SetPriority sets the goal priority.
func (g *Goal) SetPriority(priority int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.priority = priority
	g.updatedAt = time.Now()
}

// Limits returns the goal's resource limits.
func (g *Goal) Limits() ResourceLimits {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.limits
}

// SetLimits replaces the goal's resource limits.
func (g *Goal) SetLimits(limits ResourceLimits) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limits = limits
}

// SetEstimatedCompletion records the planner's completion estimate.
func (g *Goal) SetEstimatedCompletion(at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.estimatedCompletion = at
}

// EstimatedCompletion returns the planner's completion estimate.
func (g *Goal) EstimatedCompletion() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.estimatedCompletion
}

// SetMultiCapability flags the goal as needing multi-capability coordination.
func (g *Goal) SetMultiCapability(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.multiCapability = v
}

// MultiCapability reports whether classification was an epsilon tie.
func (g *Goal) MultiCapability() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.multiCapability
}

// =============================================================================
// SubGoal Management
// =============================================================================

// SetSubGoals installs the planner's decomposition. The subgoals must have
// been validated (sibling-only acyclic dependencies) beforehand.
func (g *Goal) SetSubGoals(subGoals []*SubGoal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, sg := range subGoals {
		sg.GoalID = g.id
	}
	g.subGoals = subGoals
	g.recomputeProgress()
}

// SubGoals returns the subgoals in planner order.
func (g *Goal) SubGoals() []*SubGoal {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]*SubGoal, len(g.subGoals))
	copy(result, g.subGoals)
	return result
}

// SubGoal returns a subgoal by ID.
func (g *Goal) SubGoal(id string) (*SubGoal, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.findSubGoal(id)
}

func (g *Goal) findSubGoal(id string) (*SubGoal, bool) {
	for _, sg := range g.subGoals {
		if sg.ID == id {
			return sg, true
		}
	}
	return nil, false
}

// TransitionSubGoal moves a subgoal through its state machine. A move to
// in_progress is refused while any declared dependency is not completed.
func (g *Goal) TransitionSubGoal(id string, next Status) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	sg, ok := g.findSubGoal(id)
	if !ok {
		return false
	}
	if !sg.Status.CanTransitionTo(next) {
		return false
	}
	if next == StatusInProgress && !g.dependenciesSatisfied(sg) {
		return false
	}

	sg.Status = next
	g.updatedAt = time.Now()
	g.recomputeProgress()
	return true
}

// DependenciesSatisfied reports whether every dependency of the subgoal has
// completed successfully.
func (g *Goal) DependenciesSatisfied(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	sg, ok := g.findSubGoal(id)
	if !ok {
		return false
	}
	return g.dependenciesSatisfied(sg)
}

func (g *Goal) dependenciesSatisfied(sg *SubGoal) bool {
	for _, depID := range sg.DependsOn {
		dep, ok := g.findSubGoal(depID)
		if !ok || !dep.Status.IsSuccess() {
			return false
		}
	}
	return true
}

// CompleteSubGoal records a successful subgoal outcome. Adapted marks
// success reached through a recovery strategy.
func (g *Goal) CompleteSubGoal(id, result string, attempts int, duration time.Duration, adapted bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	sg, ok := g.findSubGoal(id)
	if !ok {
		return false
	}
	next := StatusCompleted
	if adapted {
		next = StatusAdapted
	}
	if !sg.Status.CanTransitionTo(next) {
		return false
	}

	sg.Status = next
	sg.Result = result
	sg.Attempts = attempts
	sg.ActualDuration = duration
	g.updatedAt = time.Now()
	g.recomputeProgress()
	return true
}

// FailSubGoal records a terminal subgoal failure with its reason and the
// attempt count, so callers can see what was tried.
func (g *Goal) FailSubGoal(id, reason string, attempts int, duration time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	sg, ok := g.findSubGoal(id)
	if !ok || !sg.Status.CanTransitionTo(StatusFailed) {
		return false
	}

	sg.Status = StatusFailed
	sg.FailureReason = reason
	sg.Attempts = attempts
	sg.ActualDuration = duration
	g.updatedAt = time.Now()
	g.recomputeProgress()
	return true
}

// FailDependents transitively fails every pending subgoal whose dependency
// chain includes the given subgoal and returns the failed IDs. Subgoals not
// reachable from the failed one keep running.
func (g *Goal) FailDependents(id, reason string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var failed []string
	frontier := []string{id}
	for len(frontier) > 0 {
		depID := frontier[0]
		frontier = frontier[1:]
		for _, sg := range g.subGoals {
			if sg.Status != StatusPending || !slices.Contains(sg.DependsOn, depID) {
				continue
			}
			sg.Status = StatusFailed
			sg.FailureReason = reason
			failed = append(failed, sg.ID)
			frontier = append(frontier, sg.ID)
		}
	}

	if len(failed) > 0 {
		g.updatedAt = time.Now()
		g.recomputeProgress()
	}
	return failed
}

// Settle derives the goal's terminal status once every subgoal is terminal.
// It reports the new status and whether settlement happened on this call.
// Completed subgoal results survive a failed settlement so callers can
// recover partial results.
func (g *Goal) Settle() (Status, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status != StatusInProgress || len(g.subGoals) == 0 {
		return g.status, false
	}

	failed := false
	for _, sg := range g.subGoals {
		if !sg.Status.IsTerminal() {
			return g.status, false
		}
		if !sg.Status.IsSuccess() {
			failed = true
		}
	}

	if failed {
		g.status = StatusFailed
	} else {
		g.status = StatusCompleted
	}
	g.updatedAt = time.Now()
	g.actualCompletion = g.updatedAt
	g.recomputeProgress()
	return g.status, true
}

// RecordAdaptation appends a strategy swap to a subgoal's history.
func (g *Goal) RecordAdaptation(id string, record AdaptationRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if sg, ok := g.findSubGoal(id); ok {
		sg.Adaptations = append(sg.Adaptations, record)
	}
}

// CancelRemaining transitions every non-terminal subgoal to cancelled and
// returns the IDs that were cancelled.
func (g *Goal) CancelRemaining() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	cancelled := make([]string, 0)
	for _, sg := range g.subGoals {
		if sg.Status.IsTerminal() {
			continue
		}
		sg.Status = StatusCancelled
		cancelled = append(cancelled, sg.ID)
	}
	g.updatedAt = time.Now()
	g.recomputeProgress()
	return cancelled
}

// =============================================================================
// Progress
// =============================================================================

// Progress returns the completion percentage, 0-100. It is a deterministic
// function of completed vs total subgoals, monotonic while the goal is
// active, and never exceeds 100.
func (g *Goal) Progress() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.progress
}

// recomputeProgress derives progress from subgoal states. Caller holds lock.
func (g *Goal) recomputeProgress() {
	if len(g.subGoals) == 0 {
		if g.status.IsSuccess() {
			g.progress = 100
		}
		return
	}

	completed := 0
	for _, sg := range g.subGoals {
		if sg.Status.IsSuccess() {
			completed++
		}
	}

	next := math.Min(100, float64(completed)/float64(len(g.subGoals))*100)
	// Monotonic while active: cancellation of remaining subgoals must not
	// roll back progress already reported.
	if next > g.progress {
		g.progress = next
	}
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is a point-in-time immutable view of a goal for status polling.
type Snapshot struct {
	ID                  string            `json:"id"`
	Description         string            `json:"description"`
	Type                intent.Capability `json:"type"`
	Status              string            `json:"status"`
	Priority            int               `json:"priority"`
	Autonomy            string            `json:"autonomy"`
	Progress            float64           `json:"progress"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
	EstimatedCompletion time.Time         `json:"estimated_completion,omitempty"`
	ActualCompletion    time.Time         `json:"actual_completion,omitempty"`
	MultiCapability     bool              `json:"multi_capability"`
	SubGoals            []SubGoal         `json:"sub_goals"`
}

// Snapshot captures the goal state, including completed partial results so a
// caller can recover them after a partial failure.
func (g *Goal) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	subGoals := make([]SubGoal, len(g.subGoals))
	for i, sg := range g.subGoals {
		subGoals[i] = *sg
	}

	return Snapshot{
		ID:                  g.id,
		Description:         g.description,
		Type:                g.goalType,
		Status:              g.status.String(),
		Priority:            g.priority,
		Autonomy:            g.autonomy.String(),
		Progress:            g.progress,
		CreatedAt:           g.createdAt,
		UpdatedAt:           g.updatedAt,
		EstimatedCompletion: g.estimatedCompletion,
		ActualCompletion:    g.actualCompletion,
		MultiCapability:     g.multiCapability,
		SubGoals:            subGoals,
	}
}
