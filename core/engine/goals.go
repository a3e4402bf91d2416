package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/kairoai/engine/core/events"
	"github.com/kairoai/engine/core/goal"
	"github.com/kairoai/engine/core/intent"
	"github.com/kairoai/engine/core/scheduler"
)

// CreateAutonomousGoal classifies the description, plans a subgoal graph,
// and schedules one task per subgoal. It returns the goal ID immediately;
// execution proceeds asynchronously and is pollable via GoalStatus.
//
// goalType may be empty, in which case the top-ranked classified capability
// is used. With dedup enabled, an identical in-flight description returns
// the existing goal's ID instead of scheduling again.
func (e *Engine) CreateAutonomousGoal(description, goalType string, autonomy goal.AutonomyLevel) (string, error) {
	classification, err := e.classifier.Classify(description)
	if err != nil {
		return "", err
	}

	if e.cfg.DedupEnabled {
		if existingID, ok := e.inflight.Get(descriptionKey(description)); ok {
			if g, live := e.Goal(existingID); live && !g.Status().IsTerminal() {
				e.logger.Debug("dedup hit", "goal_id", existingID)
				return existingID, nil
			}
		}
	}

	capability := intent.Capability(goalType)
	if !capability.Valid() {
		if top, ok := classification.Top(); ok {
			capability = top.Capability
		}
	}

	plan, err := e.planner.PlanWithHistory(description, classification, e.outcomeHistory(capability))
	if err != nil {
		return "", err
	}

	g := goal.New(description, capability, autonomy)
	g.SetMultiCapability(classification.MultiCapability)
	g.SetSubGoals(plan.SubGoals)
	if len(plan.SubGoals) > 0 {
		g.SetPriority(plan.SubGoals[0].Priority)
	}
	g.SetEstimatedCompletion(time.Now().Add(plan.EstimatedDuration))

	strategyNames := make([]string, len(plan.Strategies))
	for i, s := range plan.Strategies {
		strategyNames[i] = s.Name
	}

	e.mu.Lock()
	e.goals[g.ID()] = g
	e.goalStrategies[g.ID()] = strategyNames
	e.mu.Unlock()

	taskIDs, err := e.scheduleSubGoals(g, plan.SubGoals)
	if err != nil {
		e.mu.Lock()
		delete(e.goals, g.ID())
		delete(e.goalStrategies, g.ID())
		e.mu.Unlock()
		return "", err
	}

	e.mu.Lock()
	e.goalTasks[g.ID()] = taskIDs
	e.mu.Unlock()

	if e.cfg.DedupEnabled {
		e.inflight.Add(descriptionKey(description), g.ID())
	}

	e.bus.Publish(&events.Event{Type: events.EventGoalCreated, GoalID: g.ID()})
	e.logger.Info("goal created",
		"goal_id", g.ID(),
		"type", string(capability),
		"sub_goals", len(plan.SubGoals),
		"estimated_duration", plan.EstimatedDuration)
	return g.ID(), nil
}

// scheduleSubGoals enqueues one task per subgoal, translating sibling
// dependencies into task dependencies. Planner output is topologically
// ordered, so every dependency's task exists before its dependent is
// scheduled.
func (e *Engine) scheduleSubGoals(g *goal.Goal, subGoals []*goal.SubGoal) ([]string, error) {
	taskBySubGoal := make(map[string]string, len(subGoals))
	taskIDs := make([]string, 0, len(subGoals))

	for _, sg := range subGoals {
		dependsOn := make([]string, 0, len(sg.DependsOn))
		for _, depID := range sg.DependsOn {
			if taskID, ok := taskBySubGoal[depID]; ok {
				dependsOn = append(dependsOn, taskID)
			}
		}

		taskID, err := e.scheduler.Schedule("subgoal", sg.Description, scheduler.Options{
			Priority:   sg.Priority,
			DependsOn:  dependsOn,
			Capability: sg.Capability,
			GoalID:     g.ID(),
			SubGoalID:  sg.ID,
		})
		if err != nil {
			return nil, err
		}
		taskBySubGoal[sg.ID] = taskID
		taskIDs = append(taskIDs, taskID)
	}
	return taskIDs, nil
}

// GoalStatus returns a point-in-time snapshot of the goal, including
// completed partial results.
func (e *Engine) GoalStatus(goalID string) (goal.Snapshot, bool) {
	g, ok := e.Goal(goalID)
	if !ok {
		return goal.Snapshot{}, false
	}
	return g.Snapshot(), true
}

// CancelGoal cancels a goal: every non-terminal subgoal is cancelled and
// every not-yet-dispatched task derived from it is removed.
func (e *Engine) CancelGoal(goalID string) bool {
	g, ok := e.Goal(goalID)
	if !ok || g.Status().IsTerminal() {
		return false
	}

	e.mu.RLock()
	taskIDs := append([]string(nil), e.goalTasks[goalID]...)
	e.mu.RUnlock()

	for _, taskID := range taskIDs {
		e.scheduler.Cancel(taskID)
	}
	g.CancelRemaining()
	g.SetStatus(goal.StatusCancelled)
	e.releaseInflight(g.Description())

	e.bus.Publish(&events.Event{Type: events.EventGoalCancelled, GoalID: goalID})
	e.logger.Info("goal cancelled", "goal_id", goalID)
	return true
}

// descriptionKey normalizes a description for dedup lookup.
func descriptionKey(description string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(description))))
	return hex.EncodeToString(sum[:])
}

func (e *Engine) releaseInflight(description string) {
	if e.cfg.DedupEnabled {
		e.inflight.Remove(descriptionKey(description))
	}
}
