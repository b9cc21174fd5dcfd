// Package pipeline runs the four-stage orchestration sequence:
// prepare, plan, execute, aggregate. The first two stages are
// fail-fast; aggregation always runs and produces a best-effort report
// even when upstream stages failed.
package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"flowweaver/internal/coordinator"
	"flowweaver/internal/planner"
	"flowweaver/internal/preprocessor"
	"flowweaver/pkg/models"
)

// Stage component names used in log entries and stage errors.
const (
	StagePrepare   = "preprocessor"
	StagePlan      = "planner"
	StageExecute   = "coordinator"
	StageAggregate = "aggregator"
)

// LogEntry is one append-only audit record of a stage transition.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Component string         `json:"component"`
	EventType string         `json:"event_type"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// ExecutionLog is an append-only, concurrency-safe list of log
// entries. Entries are never reordered or pruned. The log is shared by
// pointer across state copies so fanned-out tasks append to one list.
type ExecutionLog struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewExecutionLog creates an empty log.
func NewExecutionLog() *ExecutionLog {
	return &ExecutionLog{}
}

// Append adds an entry stamped with the current time.
func (l *ExecutionLog) Append(component, eventType, message string, details map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{
		Timestamp: time.Now(),
		Component: component,
		EventType: eventType,
		Message:   message,
		Details:   details,
	})
}

// Entries returns a snapshot copy of the log.
func (l *ExecutionLog) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *ExecutionLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// StageError records the first stage failure of a run.
type StageError struct {
	Component string    `json:"component"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the record threaded through the pipeline stages. Stages
// receive a copy and return a new value rather than mutating a shared
// reference. Only the execution log is shared, so concurrent task
// executions append to a single audit trail.
type State struct {
	// RunID uniquely identifies this pipeline run.
	RunID string `json:"run_id"`
	// RawInput is the unmodified story text.
	RawInput string `json:"raw_input"`
	// Preprocessed is the prepare stage output.
	Preprocessed *preprocessor.Output `json:"preprocessed,omitempty"`
	// Plan is the plan stage output.
	Plan *planner.Output `json:"plan,omitempty"`
	// Results maps task IDs to their execution results.
	Results map[string]models.WorkflowExecutionResult `json:"results,omitempty"`
	// Summary aggregates the per-task results.
	Summary *coordinator.ExecutionSummary `json:"summary,omitempty"`
	// ExecuteCompleted reports whether the execute stage ran to the end.
	ExecuteCompleted bool `json:"execute_completed"`
	// Err is set at most once, by the first failing stage.
	Err *StageError `json:"error,omitempty"`
	// StartTime is when the run was created.
	StartTime time.Time `json:"start_time"`
	// EndTime is set by the aggregate stage.
	EndTime time.Time `json:"end_time"`

	// Log is the shared append-only execution log.
	Log *ExecutionLog `json:"-"`
}

// NewState creates the state for one pipeline run.
func NewState(rawInput string) State {
	return State{
		RunID:     uuid.NewString(),
		RawInput:  rawInput,
		StartTime: time.Now(),
		Log:       NewExecutionLog(),
	}
}

// WithError returns a copy of the state with the error slot set. If an
// error is already recorded, the state is returned unchanged: only the
// first failure wins.
func (s State) WithError(component, message string) State {
	if s.Err != nil {
		return s
	}
	s.Err = &StageError{
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	}
	return s
}
