package engine

import (
	"context"
	"time"

	"github.com/kairoai/engine/core/goal"
	"github.com/kairoai/engine/core/scheduler"
	"github.com/kairoai/engine/core/store"
)

// maintenanceLoop periodically archives terminal tasks to the store and
// force-fails goals that overran their estimated completion plus grace.
func (e *Engine) maintenanceLoop() {
	defer e.wg.Done()

	interval := e.cfg.MaintenanceInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.runMaintenance()
		case <-e.done:
			return
		}
	}
}

// runMaintenance executes one maintenance pass.
func (e *Engine) runMaintenance() {
	e.forceFailOverdueGoals()
	e.archiveTerminalTasks()
}

// forceFailOverdueGoals fails any active goal that exceeded its estimated
// completion by the grace period, cancelling its outstanding tasks.
func (e *Engine) forceFailOverdueGoals() {
	grace := e.cfg.GoalGracePeriod
	if grace <= 0 {
		return
	}

	e.mu.RLock()
	overdue := make([]*goal.Goal, 0)
	for _, g := range e.goals {
		if g.Status().IsTerminal() {
			continue
		}
		deadline := g.EstimatedCompletion()
		if !deadline.IsZero() && time.Now().After(deadline.Add(grace)) {
			overdue = append(overdue, g)
		}
	}
	e.mu.RUnlock()

	for _, g := range overdue {
		e.mu.RLock()
		taskIDs := append([]string(nil), e.goalTasks[g.ID()]...)
		e.mu.RUnlock()

		for _, taskID := range taskIDs {
			e.scheduler.Cancel(taskID)
		}
		g.CancelRemaining()
		g.SetStatus(goal.StatusFailed)
		e.releaseInflight(g.Description())
		e.logger.Warn("goal force-failed by maintenance",
			"goal_id", g.ID(), "deadline", g.EstimatedCompletion(), "grace", grace)
	}
}

// archiveTerminalTasks copies terminal task records to the store once each.
func (e *Engine) archiveTerminalTasks() {
	if e.store == nil {
		return
	}

	for _, task := range e.scheduler.Snapshot() {
		if !task.Status.IsTerminal() {
			continue
		}
		e.mu.RLock()
		done := e.archived[task.ID]
		e.mu.RUnlock()
		if done {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := e.store.SaveScheduledTask(ctx, taskRecord(task))
		cancel()
		if err != nil {
			e.logger.Warn("task archive failed", "task_id", task.ID, "error", err)
			continue
		}

		e.mu.Lock()
		e.archived[task.ID] = true
		e.mu.Unlock()
	}
}

func taskRecord(task scheduler.Task) *store.TaskRecord {
	return &store.TaskRecord{
		ID:           task.ID,
		Type:         task.Type,
		Payload:      task.Payload,
		Priority:     task.Priority,
		ScheduledFor: task.ScheduledFor,
		Status:       task.Status.String(),
		WorkerID:     task.WorkerID,
		RetryCount:   task.RetryCount,
		CreatedAt:    task.CreatedAt,
		CompletedAt:  task.CompletedAt,
	}
}
