// Package events carries typed notifications between engine components
// (scheduler→consumers, coordinator→monitor) over an explicit bus, replacing
// cross-component signaling through shared mutable state.
package events

import (
	"time"

	"github.com/kairoai/engine/core/store"
)

// Type identifies an engine event.
type Type int

const (
	EventTaskScheduled Type = iota
	EventTaskStarted
	EventTaskCompleted
	EventTaskFailed
	EventTaskCancelled
	EventGoalCreated
	EventGoalCompleted
	EventGoalFailed
	EventGoalCancelled
	EventSubGoalCompleted
	EventSubGoalFailed
	EventCircuitOpened
	EventCircuitClosed
	EventMetricRecorded
)

var typeNames = map[Type]string{
	EventTaskScheduled:    "task_scheduled",
	EventTaskStarted:      "task_started",
	EventTaskCompleted:    "task_completed",
	EventTaskFailed:       "task_failed",
	EventTaskCancelled:    "task_cancelled",
	EventGoalCreated:      "goal_created",
	EventGoalCompleted:    "goal_completed",
	EventGoalFailed:       "goal_failed",
	EventGoalCancelled:    "goal_cancelled",
	EventSubGoalCompleted: "subgoal_completed",
	EventSubGoalFailed:    "subgoal_failed",
	EventCircuitOpened:    "circuit_opened",
	EventCircuitClosed:    "circuit_closed",
	EventMetricRecorded:   "metric_recorded",
}

// String returns the string representation of the event type.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Event is one engine notification.
type Event struct {
	Type      Type
	TaskID    string
	GoalID    string
	SubGoalID string
	WorkerID  string
	Timestamp time.Time

	// Metric is attached to task completion and failure events.
	Metric *store.PerformanceMetric

	// Reason carries the human-readable failure reason, if any.
	Reason string
}

// Handler consumes events. Handlers run on the bus dispatch goroutine and
// must not block.
type Handler func(event *Event)
