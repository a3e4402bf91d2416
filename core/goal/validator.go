package goal

import (
	"fmt"

	"github.com/kairoai/engine/core/errors"
)

// ValidateSubGoals checks a planned decomposition before it is installed on a
// goal: IDs unique, dependencies sibling-only, and the dependency relation a
// DAG. Violations fail with a ValidationError, never retried.
func ValidateSubGoals(subGoals []*SubGoal) error {
	if len(subGoals) == 0 {
		return errors.NewValidationError("sub_goals", "decomposition must contain at least one subgoal")
	}

	byID, err := indexSubGoals(subGoals)
	if err != nil {
		return err
	}
	if err := validateDependencies(subGoals, byID); err != nil {
		return err
	}
	return validateAcyclic(subGoals)
}

func indexSubGoals(subGoals []*SubGoal) (map[string]*SubGoal, error) {
	byID := make(map[string]*SubGoal, len(subGoals))
	for _, sg := range subGoals {
		if sg.ID == "" {
			return nil, errors.NewValidationError("sub_goal.id", "must not be empty")
		}
		if sg.Description == "" {
			return nil, errors.NewValidationError("sub_goal.description", "must not be empty")
		}
		if _, exists := byID[sg.ID]; exists {
			return nil, errors.NewValidationError("sub_goal.id", fmt.Sprintf("duplicate subgoal ID %q", sg.ID))
		}
		byID[sg.ID] = sg
	}
	return byID, nil
}

// validateDependencies ensures every dependency references a sibling.
func validateDependencies(subGoals []*SubGoal, byID map[string]*SubGoal) error {
	for _, sg := range subGoals {
		for _, depID := range sg.DependsOn {
			if depID == sg.ID {
				return errors.NewValidationError("sub_goal.depends_on",
					fmt.Sprintf("subgoal %q depends on itself", sg.ID))
			}
			if _, exists := byID[depID]; !exists {
				return errors.NewValidationError("sub_goal.depends_on",
					fmt.Sprintf("subgoal %q depends on unknown sibling %q", sg.ID, depID))
			}
		}
	}
	return nil
}

// validateAcyclic runs Kahn's algorithm; a leftover node means a cycle.
func validateAcyclic(subGoals []*SubGoal) error {
	inDegree := make(map[string]int, len(subGoals))
	dependents := make(map[string][]string, len(subGoals))

	for _, sg := range subGoals {
		inDegree[sg.ID] = len(sg.DependsOn)
		for _, depID := range sg.DependsOn {
			dependents[depID] = append(dependents[depID], sg.ID)
		}
	}

	queue := make([]string, 0, len(subGoals))
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++

		for _, depID := range dependents[id] {
			inDegree[depID]--
			if inDegree[depID] == 0 {
				queue = append(queue, depID)
			}
		}
	}

	if visited != len(subGoals) {
		return errors.NewValidationError("sub_goal.depends_on", "cyclic dependency detected")
	}
	return nil
}
