package coordinator

import (
	"errors"
	"fmt"

	"flowweaver/pkg/models"
)

// ErrCycle indicates the dependency map contains a cycle.
var ErrCycle = errors.New("dependency cycle detected")

// GroupByDependencyLevel groups task IDs by dependency level: a task
// with no dependencies sits at level 0, otherwise its level is one
// more than the highest level among its dependencies. Levels are
// returned in ascending order; every task appears in exactly one
// level. A cyclic dependency map fails with ErrCycle instead of
// recursing forever.
func GroupByDependencyLevel(tasks []models.WorkflowTask, deps map[string][]string) ([][]string, error) {
	memo := make(map[string]int, len(tasks))
	inProgress := make(map[string]bool)

	var levelOf func(id string) (int, error)
	levelOf = func(id string) (int, error) {
		if lvl, ok := memo[id]; ok {
			return lvl, nil
		}
		if inProgress[id] {
			return 0, fmt.Errorf("%w: involving task %q", ErrCycle, id)
		}
		inProgress[id] = true
		defer delete(inProgress, id)

		highest := -1
		for _, dep := range deps[id] {
			depLevel, err := levelOf(dep)
			if err != nil {
				return 0, err
			}
			if depLevel > highest {
				highest = depLevel
			}
		}

		lvl := highest + 1
		memo[id] = lvl
		return lvl, nil
	}

	maxLevel := 0
	for _, task := range tasks {
		lvl, err := levelOf(task.TaskID)
		if err != nil {
			return nil, err
		}
		if lvl > maxLevel {
			maxLevel = lvl
		}
	}

	groups := make([][]string, maxLevel+1)
	for _, task := range tasks {
		lvl := memo[task.TaskID]
		groups[lvl] = append(groups[lvl], task.TaskID)
	}
	return groups, nil
}
