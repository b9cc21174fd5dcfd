package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"flowweaver/internal/coordinator"
	"flowweaver/internal/planner"
	"flowweaver/internal/preprocessor"
	"flowweaver/pkg/models"
)

// Checkpointer persists a JSON snapshot of the state after each stage.
// Checkpoint failures are logged, never fatal to the run.
type Checkpointer interface {
	Save(ctx context.Context, runID, stage string, snapshot []byte) error
}

// Report is the final aggregated output of one pipeline run: the only
// object a driver program needs to persist or print.
type Report struct {
	RunID           string                                    `json:"run_id"`
	Status          models.ResultStatus                       `json:"status"`
	Summary         coordinator.ExecutionSummary              `json:"summary"`
	Results         map[string]models.WorkflowExecutionResult `json:"results"`
	Artifacts       []string                                  `json:"artifacts"`
	Error           *StageError                               `json:"error,omitempty"`
	Log             []LogEntry                                `json:"execution_log"`
	StartTime       time.Time                                 `json:"start_time"`
	EndTime         time.Time                                 `json:"end_time"`
	DurationSeconds float64                                   `json:"duration_seconds"`
}

// Pipeline wires the three stage collaborators together.
type Pipeline struct {
	pre         *preprocessor.Preprocessor
	planner     *planner.Planner
	coordinator *coordinator.Coordinator
	checkpoints Checkpointer
}

// New creates a Pipeline. The checkpointer may be nil to disable
// per-stage snapshots.
func New(pre *preprocessor.Preprocessor, pl *planner.Planner, coord *coordinator.Coordinator, checkpoints Checkpointer) *Pipeline {
	return &Pipeline{pre: pre, planner: pl, coordinator: coord, checkpoints: checkpoints}
}

// Run executes the full pipeline on a raw story. Prepare and plan are
// fail-fast: the first error short-circuits straight to aggregation.
// Aggregation always runs, so the caller always receives a report with
// a well-defined status.
func (p *Pipeline) Run(ctx context.Context, rawInput string) Report {
	state := NewState(rawInput)
	log.Printf("[pipeline] run %s started", state.RunID)

	state = p.runPrepare(state)
	p.checkpoint(ctx, state, StagePrepare)

	if state.Err == nil {
		state = p.runPlan(state)
		p.checkpoint(ctx, state, StagePlan)
	}

	if state.Err == nil {
		state = p.runExecute(ctx, state)
		p.checkpoint(ctx, state, StageExecute)
	}

	report := p.runAggregate(state)
	return report
}

// runPrepare parses and validates the raw story. A structurally
// invalid story is fatal to the run.
func (p *Pipeline) runPrepare(state State) State {
	state.Log.Append(StagePrepare, "started", "parsing input story", nil)

	out := p.pre.Process(state.RawInput)
	state.Preprocessed = &out

	if !out.StructureValid {
		msg := "story structure validation failed: " + strings.Join(out.ParsingErrors, "; ")
		state.Log.Append(StagePrepare, "error", msg, nil)
		return state.WithError(StagePrepare, msg)
	}

	state.Log.Append(StagePrepare, "completed", "story parsed", map[string]any{
		"sections":   out.Metadata.SectionCount,
		"story_type": out.DetectedStoryType,
	})
	return state
}

// runPlan builds the execution plan. A cyclic dependency map or an
// empty plan is fatal to the run.
func (p *Pipeline) runPlan(state State) State {
	state.Log.Append(StagePlan, "started", "building execution plan", nil)

	out, err := p.planner.Plan(*state.Preprocessed)
	if err != nil {
		state.Log.Append(StagePlan, "error", err.Error(), nil)
		return state.WithError(StagePlan, err.Error())
	}
	state.Plan = &out

	if len(out.Tasks) == 0 {
		msg := "planning produced no executable tasks"
		if len(out.Errors) > 0 {
			msg += ": " + strings.Join(out.Errors, "; ")
		}
		state.Log.Append(StagePlan, "error", msg, nil)
		return state.WithError(StagePlan, msg)
	}

	state.Log.Append(StagePlan, "completed", "plan ready", map[string]any{
		"tasks":    len(out.Tasks),
		"strategy": string(out.Strategy),
	})
	return state
}

// runExecute dispatches the planned tasks through the coordinator.
// Per-task failures are captured in the result map, never here.
func (p *Pipeline) runExecute(ctx context.Context, state State) State {
	state.Log.Append(StageExecute, "started", "executing task batch", map[string]any{
		"strategy": string(state.Plan.Strategy),
	})

	shared := map[string]any{
		"run_id":     state.RunID,
		"story_type": state.Preprocessed.DetectedStoryType,
		"title":      state.Preprocessed.ExtractedData.Title,
	}

	results := p.coordinator.Execute(ctx, state.Plan.Tasks, state.Plan.Strategy,
		state.Plan.Order, state.Plan.Dependencies, shared)
	summary := coordinator.Summarize(results)

	state.Results = results
	state.Summary = &summary
	state.ExecuteCompleted = true

	state.Log.Append(StageExecute, "completed", "task batch resolved", map[string]any{
		"total":      summary.TotalTasks,
		"successful": summary.Successful,
		"failed":     summary.Failed,
	})
	return state
}

// runAggregate merges everything into the final report. It has no
// precondition gate: when the execute stage did not complete it logs a
// warning and still produces a best-effort report.
func (p *Pipeline) runAggregate(state State) Report {
	state.Log.Append(StageAggregate, "started", "aggregating results", nil)

	if !state.ExecuteCompleted {
		log.Printf("[pipeline] run %s: aggregating without completed execution", state.RunID)
		state.Log.Append(StageAggregate, "started", "upstream stages incomplete, producing partial report", nil)
	}

	results := state.Results
	if results == nil {
		results = map[string]models.WorkflowExecutionResult{}
	}

	var summary coordinator.ExecutionSummary
	if state.Summary != nil {
		summary = *state.Summary
	} else {
		summary = coordinator.Summarize(results)
	}

	state.EndTime = time.Now()
	state.Log.Append(StageAggregate, "completed", "final report ready", map[string]any{
		"status": string(summary.OverallStatus),
	})

	report := Report{
		RunID:           state.RunID,
		Status:          summary.OverallStatus,
		Summary:         summary,
		Results:         results,
		Artifacts:       collectArtifacts(results),
		Error:           state.Err,
		Log:             state.Log.Entries(),
		StartTime:       state.StartTime,
		EndTime:         state.EndTime,
		DurationSeconds: state.EndTime.Sub(state.StartTime).Seconds(),
	}

	log.Printf("[pipeline] run %s finished: status=%s, tasks=%d, duration=%.2fs",
		report.RunID, report.Status, summary.TotalTasks, report.DurationSeconds)
	return report
}

// collectArtifacts merges per-task artifacts, de-duplicated, in a
// stable order by task ID.
func collectArtifacts(results map[string]models.WorkflowExecutionResult) []string {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	seen := make(map[string]bool)
	var artifacts []string
	for _, id := range ids {
		for _, artifact := range results[id].Artifacts {
			if !seen[artifact] {
				seen[artifact] = true
				artifacts = append(artifacts, artifact)
			}
		}
	}
	return artifacts
}

// checkpoint saves a JSON snapshot of the state after a stage.
func (p *Pipeline) checkpoint(ctx context.Context, state State, stage string) {
	if p.checkpoints == nil {
		return
	}
	snapshot, err := json.Marshal(state)
	if err != nil {
		log.Printf("[pipeline] run %s: cannot snapshot state after %s: %v", state.RunID, stage, err)
		return
	}
	if err := p.checkpoints.Save(ctx, state.RunID, stage, snapshot); err != nil {
		log.Printf("[pipeline] run %s: checkpoint after %s failed: %v", state.RunID, stage, err)
	}
}

// Describe returns a short human-readable summary of a report.
func Describe(report Report) string {
	return fmt.Sprintf("run %s: %s (%d/%d tasks succeeded, %.1f%%)",
		report.RunID, report.Status, report.Summary.Successful,
		report.Summary.TotalTasks, report.Summary.SuccessRate)
}
