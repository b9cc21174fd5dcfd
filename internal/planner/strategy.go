package planner

import (
	"errors"
	"fmt"

	"flowweaver/pkg/models"
)

// ErrCycleDetected indicates the dependency map contains a cycle. The
// sort surfaces it instead of silently returning an unordered list.
var ErrCycleDetected = errors.New("dependency cycle detected in task graph")

// ChooseStrategy picks the execution strategy for a batch and computes
// the order hint: sequential for zero or one task, parallel when more
// than one task and no dependency edges, hybrid when any dependency
// exists.
func ChooseStrategy(tasks []models.WorkflowTask, deps map[string][]string) (models.Strategy, []string, error) {
	if len(tasks) == 0 {
		return models.StrategySequential, nil, nil
	}

	hasDeps := false
	for _, d := range deps {
		if len(d) > 0 {
			hasDeps = true
			break
		}
	}

	var strategy models.Strategy
	switch {
	case hasDeps:
		strategy = models.StrategyHybrid
	case len(tasks) > 1:
		strategy = models.StrategyParallel
	default:
		strategy = models.StrategySequential
	}

	order, err := TopologicalSort(tasks, deps)
	if err != nil {
		return "", nil, err
	}
	return strategy, order, nil
}

// TopologicalSort orders task IDs so every task follows its
// dependencies (Kahn's algorithm). Ties resolve in input order, so the
// result is deterministic. A cycle fails with ErrCycleDetected.
func TopologicalSort(tasks []models.WorkflowTask, deps map[string][]string) ([]string, error) {
	ids := make([]string, 0, len(tasks))
	inDegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))

	for _, task := range tasks {
		ids = append(ids, task.TaskID)
		inDegree[task.TaskID] = len(deps[task.TaskID])
	}
	for _, task := range tasks {
		for _, dep := range deps[task.TaskID] {
			dependents[dep] = append(dependents[dep], task.TaskID)
		}
	}

	var queue []string
	for _, id := range ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(ids))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, next := range dependents[current] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(ids) {
		return nil, fmt.Errorf("%w: %d of %d tasks unsortable", ErrCycleDetected, len(ids)-len(order), len(ids))
	}
	return order, nil
}
