package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"flowweaver/internal/invoker"
	"flowweaver/internal/registry"
	"flowweaver/pkg/models"
)

// scriptedHandler records its invocation and returns success or a
// fixed error.
type scriptedHandler struct {
	mu    *sync.Mutex
	trace *[]string
	name  string
	fail  bool
}

func (h *scriptedHandler) Execute(ctx context.Context, state map[string]any) (map[string]any, error) {
	if h.trace != nil {
		h.mu.Lock()
		*h.trace = append(*h.trace, h.name)
		h.mu.Unlock()
	}
	if h.fail {
		return nil, errors.New("simulated backend failure")
	}
	return map[string]any{
		"status":                 "success",
		"output":                 map[string]any{"handled_by": h.name},
		"artifacts":              []any{},
		"execution_time_seconds": 0.1,
	}, nil
}

// fixture wires a registry, handler registry, and coordinator for the
// given workflow names. Failing names get a handler that always errors.
type fixture struct {
	coord *Coordinator
	mu    sync.Mutex
	trace []string
}

func newFixture(t *testing.T, workflows []string, failing map[string]bool) *fixture {
	t.Helper()

	f := &fixture{}
	reg := registry.New()
	handlers := invoker.NewHandlerRegistry()

	for _, name := range workflows {
		name := name
		meta := models.WorkflowMetadata{
			Name:        name,
			BackendKind: models.BackendEmbedded,
			ModulePath:  "workflows/" + name,
			IsActive:    true,
		}
		if err := reg.Register(meta); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
		handlers.Register(meta.ModulePath, name, func() invoker.Handler {
			return &scriptedHandler{mu: &f.mu, trace: &f.trace, name: name, fail: failing[name]}
		})
	}

	inv := invoker.New(handlers, invoker.Config{
		Timeout: time.Second,
		Retry:   invoker.RetryPolicy{MaxAttempts: 1, Delay: time.Millisecond},
	})
	f.coord = New(reg, inv, 10*time.Second)
	return f
}

func task(id, workflow string, deps ...string) models.WorkflowTask {
	return models.WorkflowTask{
		TaskID:       id,
		WorkflowName: workflow,
		Dependencies: deps,
		Status:       models.TaskStatusPending,
	}
}

func TestParallelIndependentTasks(t *testing.T) {
	f := newFixture(t, []string{"flow_a", "flow_b"}, nil)
	tasks := []models.WorkflowTask{task("task_1", "flow_a"), task("task_2", "flow_b")}

	results := f.coord.Execute(context.Background(), tasks, models.StrategyParallel, nil, nil, nil)

	summary := Summarize(results)
	if summary.OverallStatus != models.ResultSuccess {
		t.Errorf("expected overall success, got %s", summary.OverallStatus)
	}
	if summary.TotalTasks != 2 || summary.Successful != 2 || summary.Failed != 0 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if summary.SuccessRate != 100.0 {
		t.Errorf("expected success rate 100, got %v", summary.SuccessRate)
	}
}

func TestHybridFailSoftDependency(t *testing.T) {
	f := newFixture(t, []string{"flow_a", "flow_b"}, map[string]bool{"flow_a": true})
	tasks := []models.WorkflowTask{
		task("task_1", "flow_a"),
		task("task_2", "flow_b", "task_1"),
	}
	deps := map[string][]string{"task_2": {"task_1"}}

	results := f.coord.Execute(context.Background(), tasks, models.StrategyHybrid, nil, deps, nil)

	if !results["task_1"].Failed() {
		t.Errorf("expected task_1 to fail, got %s", results["task_1"].Status)
	}
	if !results["task_2"].Succeeded() {
		t.Errorf("expected task_2 to still run and succeed, got %s (%s)",
			results["task_2"].Status, results["task_2"].Error)
	}
	if got := OverallStatus(results); got != models.ResultPartial {
		t.Errorf("expected partial overall status, got %s", got)
	}

	// Level ordering: the dependency ran before the dependent.
	if len(f.trace) != 2 || f.trace[0] != "flow_a" || f.trace[1] != "flow_b" {
		t.Errorf("expected flow_a before flow_b, got %v", f.trace)
	}
}

func TestSequentialHonorsOrderHint(t *testing.T) {
	f := newFixture(t, []string{"flow_a", "flow_b", "flow_c"}, nil)
	tasks := []models.WorkflowTask{
		task("task_1", "flow_a"),
		task("task_2", "flow_b"),
		task("task_3", "flow_c"),
	}

	f.coord.Execute(context.Background(), tasks, models.StrategySequential,
		[]string{"task_3", "task_1", "task_2"}, nil, nil)

	want := []string{"flow_c", "flow_a", "flow_b"}
	for i, name := range want {
		if f.trace[i] != name {
			t.Fatalf("expected execution order %v, got %v", want, f.trace)
		}
	}
}

func TestSequentialFallsBackToInputOrder(t *testing.T) {
	f := newFixture(t, []string{"flow_a", "flow_b"}, nil)
	tasks := []models.WorkflowTask{task("task_1", "flow_a"), task("task_2", "flow_b")}

	f.coord.Execute(context.Background(), tasks, models.StrategySequential, nil, nil, nil)

	if len(f.trace) != 2 || f.trace[0] != "flow_a" || f.trace[1] != "flow_b" {
		t.Errorf("expected input order, got %v", f.trace)
	}
}

func TestUnknownStrategyDefaultsToSequential(t *testing.T) {
	f := newFixture(t, []string{"flow_a"}, nil)
	tasks := []models.WorkflowTask{task("task_1", "flow_a")}

	results := f.coord.Execute(context.Background(), tasks, models.Strategy("zigzag"), nil, nil, nil)
	if !results["task_1"].Succeeded() {
		t.Errorf("expected task to run under fallback strategy, got %+v", results["task_1"])
	}
}

func TestUnregisteredWorkflowBecomesNotFoundResult(t *testing.T) {
	f := newFixture(t, []string{"flow_a"}, nil)
	tasks := []models.WorkflowTask{task("task_1", "ghost_flow")}

	results := f.coord.Execute(context.Background(), tasks, models.StrategySequential, nil, nil, nil)

	result := results["task_1"]
	if !result.Failed() {
		t.Fatalf("expected failure, got %s", result.Status)
	}
	if result.ErrorType != "NotFoundError" {
		t.Errorf("expected NotFoundError, got %q", result.ErrorType)
	}
}

func TestHybridCycleFailsEveryTask(t *testing.T) {
	f := newFixture(t, []string{"flow_a", "flow_b"}, nil)
	tasks := []models.WorkflowTask{
		task("task_1", "flow_a", "task_2"),
		task("task_2", "flow_b", "task_1"),
	}
	deps := map[string][]string{
		"task_1": {"task_2"},
		"task_2": {"task_1"},
	}

	results := f.coord.Execute(context.Background(), tasks, models.StrategyHybrid, nil, deps, nil)

	for id, result := range results {
		if result.ErrorType != "CycleError" {
			t.Errorf("task %s: expected CycleError, got %q", id, result.ErrorType)
		}
	}
	if len(f.trace) != 0 {
		t.Errorf("no task should execute on a cyclic batch, got %v", f.trace)
	}
}

func TestGroupByDependencyLevel(t *testing.T) {
	tasks := []models.WorkflowTask{
		task("a", "flow_a"),
		task("b", "flow_b"),
		task("c", "flow_c", "a"),
		task("d", "flow_d", "b", "c"),
	}
	deps := map[string][]string{
		"c": {"a"},
		"d": {"b", "c"},
	}

	levels, err := GroupByDependencyLevel(tasks, deps)
	if err != nil {
		t.Fatalf("leveling failed: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d: %v", len(levels), levels)
	}

	levelOf := make(map[string]int)
	total := 0
	for i, level := range levels {
		for _, id := range level {
			if _, dup := levelOf[id]; dup {
				t.Errorf("task %s appears in more than one level", id)
			}
			levelOf[id] = i
			total++
		}
	}
	if total != len(tasks) {
		t.Errorf("levels cover %d tasks, expected %d", total, len(tasks))
	}

	// Every task sits strictly above all of its dependencies.
	for id, depIDs := range deps {
		for _, dep := range depIDs {
			if levelOf[id] <= levelOf[dep] {
				t.Errorf("task %s (level %d) must be above dependency %s (level %d)",
					id, levelOf[id], dep, levelOf[dep])
			}
		}
	}
}

func TestGroupByDependencyLevelCycle(t *testing.T) {
	tasks := []models.WorkflowTask{task("a", "flow_a"), task("b", "flow_b")}
	deps := map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}

	if _, err := GroupByDependencyLevel(tasks, deps); !errors.Is(err, ErrCycle) {
		t.Errorf("expected ErrCycle, got %v", err)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(map[string]models.WorkflowExecutionResult{})
	if summary.OverallStatus != models.ResultFailure {
		t.Errorf("expected failure for empty result map, got %s", summary.OverallStatus)
	}
	if summary.SuccessRate != 0 {
		t.Errorf("expected success rate 0 for empty map, got %v", summary.SuccessRate)
	}
}

func TestOverallStatusRules(t *testing.T) {
	success := models.WorkflowExecutionResult{Status: models.ResultSuccess}
	failure := models.WorkflowExecutionResult{Status: models.ResultFailure}

	cases := []struct {
		name    string
		results map[string]models.WorkflowExecutionResult
		want    models.ResultStatus
	}{
		{"all success", map[string]models.WorkflowExecutionResult{"a": success, "b": success}, models.ResultSuccess},
		{"all failure", map[string]models.WorkflowExecutionResult{"a": failure, "b": failure}, models.ResultFailure},
		{"mixed", map[string]models.WorkflowExecutionResult{"a": success, "b": failure}, models.ResultPartial},
		{"empty", map[string]models.WorkflowExecutionResult{}, models.ResultFailure},
	}

	for _, tc := range cases {
		if got := OverallStatus(tc.results); got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

// slowHandler sleeps past any test deadline before answering, so the
// dispatch deadline always expires first.
type slowHandler struct {
	mu    *sync.Mutex
	trace *[]string
	name  string
	delay time.Duration
}

func (h *slowHandler) Execute(ctx context.Context, state map[string]any) (map[string]any, error) {
	h.mu.Lock()
	*h.trace = append(*h.trace, h.name)
	h.mu.Unlock()

	time.Sleep(h.delay)
	return map[string]any{
		"status":                 "success",
		"output":                 map[string]any{},
		"artifacts":              []any{},
		"execution_time_seconds": h.delay.Seconds(),
	}, nil
}

func TestBatchTimeoutSynthesizesTimeoutResults(t *testing.T) {
	reg := registry.New()
	handlers := invoker.NewHandlerRegistry()

	var mu sync.Mutex
	var trace []string
	for _, name := range []string{"flow_a", "flow_b"} {
		name := name
		meta := models.WorkflowMetadata{
			Name:        name,
			BackendKind: models.BackendEmbedded,
			ModulePath:  "workflows/" + name,
			IsActive:    true,
		}
		if err := reg.Register(meta); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
		handlers.Register(meta.ModulePath, name, func() invoker.Handler {
			return &slowHandler{mu: &mu, trace: &trace, name: name, delay: 2 * time.Second}
		})
	}

	inv := invoker.New(handlers, invoker.Config{
		Timeout: time.Second,
		Retry:   invoker.RetryPolicy{MaxAttempts: 1, Delay: time.Millisecond},
	})
	coord := New(reg, inv, 100*time.Millisecond)

	tasks := []models.WorkflowTask{task("task_1", "flow_a"), task("task_2", "flow_b")}
	results := coord.Execute(context.Background(), tasks, models.StrategySequential, nil, nil, nil)

	if len(results) != 2 {
		t.Fatalf("expected a result for every task, got %d: %v", len(results), results)
	}
	for id, result := range results {
		if !result.Failed() {
			t.Errorf("task %s: expected failure, got %s", id, result.Status)
		}
		if result.ErrorType != "TimeoutError" {
			t.Errorf("task %s: expected TimeoutError, got %q (%s)", id, result.ErrorType, result.Error)
		}
	}

	// Only the in-flight task was dispatched before the deadline; the
	// second result was synthesized.
	mu.Lock()
	dispatched := len(trace)
	mu.Unlock()
	if dispatched != 1 {
		t.Errorf("expected only the first task to dispatch, got %v", trace)
	}
}

func TestInvalidBatchFailsEveryTask(t *testing.T) {
	f := newFixture(t, []string{"flow_a"}, nil)
	tasks := []models.WorkflowTask{
		task("task_1", "flow_a"),
		task("task_1", "flow_a"),
	}

	results := f.coord.Execute(context.Background(), tasks, models.StrategyParallel, nil, nil, nil)

	if len(results) == 0 {
		t.Fatal("expected failure results for the invalid batch")
	}
	for id, result := range results {
		if result.ErrorType != "ValidationError" {
			t.Errorf("task %s: expected ValidationError, got %q", id, result.ErrorType)
		}
	}
	if len(f.trace) != 0 {
		t.Errorf("no task should execute in an invalid batch, got %v", f.trace)
	}
}

func TestExecuteEmptyBatch(t *testing.T) {
	f := newFixture(t, nil, nil)
	results := f.coord.Execute(context.Background(), nil, models.StrategyParallel, nil, nil, nil)
	if len(results) != 0 {
		t.Errorf("expected empty result map, got %v", results)
	}
}
