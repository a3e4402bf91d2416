// Package scheduler queues tasks in a priority heap and admits them to an
// executor under bounded concurrency, honoring scheduled times, declared
// dependencies, and per-worker circuit state.
package scheduler

import (
	"context"
	"time"

	"github.com/kairoai/engine/core/intent"
)

// Status is the lifecycle state of a scheduled task.
type Status int

const (
	// StatusPending means the task is queued and not yet admitted.
	StatusPending Status = iota
	// StatusRunning means the task has been handed to the executor.
	StatusRunning
	// StatusCompleted means the executor reported success.
	StatusCompleted
	// StatusFailed means the executor reported failure or the task was
	// cancelled before completion.
	StatusFailed
	// StatusPaused means admission is suspended until a resume.
	StatusPaused
)

var statusNames = map[Status]string{
	StatusPending:   "pending",
	StatusRunning:   "running",
	StatusCompleted: "completed",
	StatusFailed:    "failed",
	StatusPaused:    "paused",
}

// String returns the string representation of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether the status is terminal.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is one queue entry wrapping either a subgoal or a standalone
// background job. Mutation after creation goes through the scheduler, which
// serializes access.
type Task struct {
	// ID is the unique task identifier.
	ID string

	// Type names the kind of work ("subgoal", "maintenance", ...).
	Type string

	// Payload is the free-form work description handed to the executor.
	Payload string

	// GoalID and SubGoalID link the task back to its goal, when derived
	// from one.
	GoalID    string
	SubGoalID string

	// Capability tags the worker class for this task.
	Capability intent.Capability

	// WorkerID is the worker assigned at schedule time, if pinned.
	WorkerID string

	// Priority orders admission (higher first).
	Priority int

	// ScheduledFor delays admission until the given time.
	ScheduledFor time.Time

	// DependsOn lists task IDs that must complete before admission.
	DependsOn []string

	// Status is the current lifecycle state.
	Status Status

	// FailureReason is set on terminal failure.
	FailureReason string

	// RetryCount mirrors the executor's attempt count for stats.
	RetryCount int

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	// seq is the insertion sequence number, the final FIFO tie-break.
	seq uint64

	// cancel aborts the in-flight execution after dispatch.
	cancel context.CancelFunc
}

// Options configure one Schedule call.
type Options struct {
	// Priority orders admission, higher first. Valid range 0-10.
	Priority int

	// ScheduledFor delays admission until the given time. Zero means now.
	ScheduledFor time.Time

	// DependsOn lists task IDs that must report completed before admission.
	// A dependency that fails terminally fails this task as well.
	DependsOn []string

	// Capability tags the worker class; used for circuit checks and
	// executor routing.
	Capability intent.Capability

	// WorkerID pins the task to a specific worker. Empty lets the executor
	// pick the capability's primary.
	WorkerID string

	// GoalID and SubGoalID link the task to its goal.
	GoalID    string
	SubGoalID string
}

// Stats is a point-in-time queue census.
type Stats struct {
	TotalScheduled int `json:"total_scheduled"`
	Pending        int `json:"pending"`
	Running        int `json:"running"`
	Completed      int `json:"completed"`
	Failed         int `json:"failed"`
	Paused         int `json:"paused"`
	Cancelled      int `json:"cancelled"`
}
