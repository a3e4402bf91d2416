// Package goal models autonomous goals and their dependency-linked subgoals.
// A goal owns its subgoals exclusively; subgoal dependencies reference
// siblings only and always form a DAG.
package goal

import (
	"time"

	"github.com/kairoai/engine/core/intent"
)

// =============================================================================
// Status
// =============================================================================

// Status represents the lifecycle state of a goal or subgoal.
type Status int

const (
	// StatusPending indicates the unit is waiting to start.
	StatusPending Status = iota
	// StatusInProgress indicates the unit is executing.
	StatusInProgress
	// StatusCompleted indicates the unit finished successfully.
	StatusCompleted
	// StatusFailed indicates the unit failed terminally.
	StatusFailed
	// StatusAdapted indicates the unit completed through a recovery strategy.
	StatusAdapted
	// StatusCancelled indicates the unit was cancelled before completion.
	StatusCancelled
	// StatusPaused indicates the unit is suspended pending a resume.
	StatusPaused
)

var statusNames = map[Status]string{
	StatusPending:    "pending",
	StatusInProgress: "in_progress",
	StatusCompleted:  "completed",
	StatusFailed:     "failed",
	StatusAdapted:    "adapted",
	StatusCancelled:  "cancelled",
	StatusPaused:     "paused",
}

// String returns the string representation of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether this is a terminal status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusAdapted, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsSuccess reports whether the status counts as a successful completion.
// Adapted units completed through a recovery strategy count as success.
func (s Status) IsSuccess() bool {
	return s == StatusCompleted || s == StatusAdapted
}

// validTransitions maps each status to its allowed successors.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusCancelled, StatusFailed, StatusPaused},
	StatusPaused:     {StatusPending, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusAdapted, StatusCancelled},
}

// CanTransitionTo reports whether the transition is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// =============================================================================
// Autonomy
// =============================================================================

// AutonomyLevel controls how much independent action a goal is granted.
type AutonomyLevel int

const (
	// AutonomySupervised requires caller confirmation for every subgoal.
	AutonomySupervised AutonomyLevel = iota
	// AutonomySemiAutonomous executes freely but reports each subgoal outcome.
	AutonomySemiAutonomous
	// AutonomyFull executes and recovers without intervention.
	AutonomyFull
)

var autonomyNames = map[AutonomyLevel]string{
	AutonomySupervised:     "supervised",
	AutonomySemiAutonomous: "semi_autonomous",
	AutonomyFull:           "fully_autonomous",
}

// String returns the string representation of the autonomy level.
func (a AutonomyLevel) String() string {
	if name, ok := autonomyNames[a]; ok {
		return name
	}
	return "unknown"
}

// ParseAutonomy maps a string to an autonomy level, defaulting to supervised.
func ParseAutonomy(s string) AutonomyLevel {
	for level, name := range autonomyNames {
		if name == s {
			return level
		}
	}
	return AutonomySupervised
}

// =============================================================================
// Resource Limits & Security
// =============================================================================

// ResourceLimits bounds a goal's execution footprint.
type ResourceLimits struct {
	// MaxExecutionTime force-fails the goal when exceeded plus grace.
	MaxExecutionTime time.Duration `json:"max_execution_time"`

	// MaxConcurrentChildren caps simultaneously running subgoals.
	MaxConcurrentChildren int `json:"max_concurrent_children"`

	// AllowedDomains are glob patterns for permitted external domains.
	AllowedDomains []string `json:"allowed_domains,omitempty"`

	// RatePerMinute caps external calls per minute (0 = unlimited).
	RatePerMinute int `json:"rate_per_minute"`
}

// DefaultResourceLimits returns conservative defaults.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		MaxExecutionTime:      30 * time.Minute,
		MaxConcurrentChildren: 3,
	}
}

// SecurityContext scopes what a subgoal's worker is allowed to do.
type SecurityContext struct {
	// Permissions grants capability-scoped actions (e.g. "read_page").
	Permissions []string `json:"permissions,omitempty"`

	// Restrictions lists forbidden actions (e.g. "submit_forms").
	Restrictions []string `json:"restrictions,omitempty"`

	// RiskLevel is the planner's assessed risk: low, medium, or high.
	RiskLevel string `json:"risk_level"`
}

// =============================================================================
// Adaptation History
// =============================================================================

// AdaptationRecord is one entry in a subgoal's strategy-swap log.
type AdaptationRecord struct {
	// At is when the adaptation happened.
	At time.Time `json:"at"`

	// FromStrategy and ToStrategy name the swap.
	FromStrategy string `json:"from_strategy"`
	ToStrategy   string `json:"to_strategy"`

	// Reason explains why the swap was made.
	Reason string `json:"reason"`
}

// =============================================================================
// SubGoal
// =============================================================================

// SubGoal is one decomposition unit owned exclusively by its parent goal.
// Mutation goes through the parent Goal's methods, which serialize access.
type SubGoal struct {
	// ID is the unique subgoal identifier.
	ID string `json:"id"`

	// GoalID references the owning goal.
	GoalID string `json:"goal_id"`

	// Description is the work to perform.
	Description string `json:"description"`

	// Capability tags the worker class assigned to this subgoal.
	Capability intent.Capability `json:"capability"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// Priority orders this subgoal among ready siblings (higher first).
	Priority int `json:"priority"`

	// DependsOn lists sibling subgoal IDs that must complete first.
	DependsOn []string `json:"depends_on,omitempty"`

	// EstimatedDuration is the planner's time estimate.
	EstimatedDuration time.Duration `json:"estimated_duration"`

	// ActualDuration is filled on terminal completion.
	ActualDuration time.Duration `json:"actual_duration"`

	// Security scopes the executing worker.
	Security SecurityContext `json:"security"`

	// Adaptations is the ordered log of strategy swaps.
	Adaptations []AdaptationRecord `json:"adaptations,omitempty"`

	// Result holds the worker output on success.
	Result string `json:"result,omitempty"`

	// FailureReason is the human-readable reason on terminal failure.
	FailureReason string `json:"failure_reason,omitempty"`

	// Attempts is the number of execution attempts made.
	Attempts int `json:"attempts"`
}
