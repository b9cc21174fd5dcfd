// Package coordinator executes a planned batch of workflow tasks via
// the invoker, using one of three strategies: sequential, parallel, or
// hybrid (dependency levels in order, tasks within a level
// concurrently). Execution is fail-soft: one task's failure never
// cancels its siblings, and the result map always covers every task.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"flowweaver/internal/invoker"
	"flowweaver/internal/registry"
	"flowweaver/pkg/models"
)

// Coordinator schedules task batches against the registry and invoker.
type Coordinator struct {
	registry *registry.Registry
	invoker  *invoker.Invoker
	// timeout bounds a whole batch execution. Zero means no bound.
	timeout time.Duration
}

// New creates a Coordinator. A non-positive timeout disables the
// batch-wide deadline; per-attempt deadlines are the invoker's job.
func New(reg *registry.Registry, inv *invoker.Invoker, timeout time.Duration) *Coordinator {
	return &Coordinator{registry: reg, invoker: inv, timeout: timeout}
}

// Execute runs the batch under the given strategy and returns a result
// per task ID. It never returns an error: unknown workflows, cycles,
// and batch-wide timeouts are all converted into failure-shaped
// results so the caller always gets a complete per-task breakdown.
func (c *Coordinator) Execute(ctx context.Context, tasks []models.WorkflowTask, strategy models.Strategy, orderHint []string, deps map[string][]string, sharedState map[string]any) map[string]models.WorkflowExecutionResult {
	results := make(map[string]models.WorkflowExecutionResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	// Planner-built batches satisfy this by construction; the check
	// covers externally supplied batches.
	if err := models.ValidateBatch(tasks); err != nil {
		log.Printf("[coordinator] rejecting batch: %v", err)
		for _, task := range tasks {
			results[task.TaskID] = taskFailure(task, "ValidationError", err.Error())
		}
		return results
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	switch strategy {
	case models.StrategySequential:
		c.runSequential(runCtx, tasks, orderHint, sharedState, results)
	case models.StrategyParallel:
		c.runParallel(runCtx, tasks, sharedState, results)
	case models.StrategyHybrid:
		c.runHybrid(runCtx, tasks, deps, sharedState, results)
	default:
		log.Printf("[coordinator] unknown strategy %q, defaulting to sequential", strategy)
		c.runSequential(runCtx, tasks, orderHint, sharedState, results)
	}

	// Any task without a result was skipped by a batch-wide timeout.
	for _, task := range tasks {
		if _, ok := results[task.TaskID]; !ok {
			results[task.TaskID] = taskFailure(task, "TimeoutError",
				fmt.Sprintf("batch deadline exceeded before task %q was dispatched", task.TaskID))
		}
	}
	return results
}

// runSequential dispatches one task at a time, following the order
// hint when present and the input order otherwise.
func (c *Coordinator) runSequential(ctx context.Context, tasks []models.WorkflowTask, orderHint []string, sharedState map[string]any, results map[string]models.WorkflowExecutionResult) {
	for _, task := range orderTasks(tasks, orderHint) {
		if ctx.Err() != nil {
			return
		}
		results[task.TaskID] = c.executeSingle(ctx, task, sharedState)
	}
}

// runParallel fans out every task concurrently and joins at the end.
// A per-task panic is caught at the fan-in point and converted into a
// failure result for that task only.
func (c *Coordinator) runParallel(ctx context.Context, tasks []models.WorkflowTask, sharedState map[string]any, results map[string]models.WorkflowExecutionResult) {
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, task := range tasks {
		wg.Add(1)
		go func(task models.WorkflowTask) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[coordinator] task %q panicked: %v", task.TaskID, r)
					mu.Lock()
					results[task.TaskID] = taskFailure(task, "BackendError",
						fmt.Sprintf("task execution panicked: %v", r))
					mu.Unlock()
				}
			}()

			result := c.executeSingle(ctx, task, sharedState)
			mu.Lock()
			results[task.TaskID] = result
			mu.Unlock()
		}(task)
	}
	wg.Wait()
}

// runHybrid groups tasks by dependency level and processes levels in
// order, fanning out within each level. A level fully resolves before
// the next starts; a failed dependency does not stop downstream tasks
// from attempting execution.
func (c *Coordinator) runHybrid(ctx context.Context, tasks []models.WorkflowTask, deps map[string][]string, sharedState map[string]any, results map[string]models.WorkflowExecutionResult) {
	levels, err := GroupByDependencyLevel(tasks, deps)
	if err != nil {
		log.Printf("[coordinator] cannot level task batch: %v", err)
		for _, task := range tasks {
			results[task.TaskID] = taskFailure(task, "CycleError", err.Error())
		}
		return
	}

	byID := make(map[string]models.WorkflowTask, len(tasks))
	for _, task := range tasks {
		byID[task.TaskID] = task
	}

	for i, level := range levels {
		if ctx.Err() != nil {
			return
		}
		log.Printf("[coordinator] executing level %d/%d with %d tasks", i+1, len(levels), len(level))

		group := make([]models.WorkflowTask, 0, len(level))
		for _, id := range level {
			group = append(group, byID[id])
		}
		c.runParallel(ctx, group, sharedState, results)
	}
}

// executeSingle resolves the task's workflow in the registry and
// dispatches it. Resolution failure becomes a NotFoundError result.
func (c *Coordinator) executeSingle(ctx context.Context, task models.WorkflowTask, sharedState map[string]any) models.WorkflowExecutionResult {
	meta, err := c.registry.GetOrFail(task.WorkflowName)
	if err != nil {
		log.Printf("[coordinator] task %q references unregistered workflow %q", task.TaskID, task.WorkflowName)
		return taskFailure(task, "NotFoundError", err.Error())
	}

	return c.invoker.Invoke(ctx, meta, taskState(task, sharedState))
}

// taskState builds the per-task state passed to the backend: the
// shared state overlaid with the task's own parameters and identity.
// The shared map is copied so concurrent tasks never alias it.
func taskState(task models.WorkflowTask, sharedState map[string]any) map[string]any {
	state := make(map[string]any, len(sharedState)+3)
	for k, v := range sharedState {
		state[k] = v
	}
	for k, v := range task.Parameters {
		state[k] = v
	}
	state["task_id"] = task.TaskID
	if task.Responsibilities != "" {
		state["responsibilities"] = task.Responsibilities
	}
	return state
}

// orderTasks reorders the batch by the order hint. Unknown IDs in the
// hint are ignored; tasks missing from the hint run last in input
// order, so a stale hint never drops work.
func orderTasks(tasks []models.WorkflowTask, orderHint []string) []models.WorkflowTask {
	if len(orderHint) == 0 {
		return tasks
	}

	byID := make(map[string]models.WorkflowTask, len(tasks))
	for _, task := range tasks {
		byID[task.TaskID] = task
	}

	ordered := make([]models.WorkflowTask, 0, len(tasks))
	placed := make(map[string]bool, len(tasks))
	for _, id := range orderHint {
		task, ok := byID[id]
		if !ok || placed[id] {
			continue
		}
		ordered = append(ordered, task)
		placed[id] = true
	}
	for _, task := range tasks {
		if !placed[task.TaskID] {
			ordered = append(ordered, task)
		}
	}
	return ordered
}

// taskFailure synthesizes a failure result for a task the invoker
// never saw (unregistered workflow, cycle, batch timeout).
func taskFailure(task models.WorkflowTask, errorType, message string) models.WorkflowExecutionResult {
	return models.WorkflowExecutionResult{
		WorkflowName: task.WorkflowName,
		Status:       models.ResultFailure,
		Output:       map[string]any{},
		Artifacts:    []string{},
		Error:        message,
		ErrorType:    errorType,
	}
}
