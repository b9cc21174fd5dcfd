// Package models defines the core data types shared across the engine:
// workflow tasks, execution results, and registry metadata.
package models

import (
	"errors"
	"fmt"
)

// TaskStatus represents the current state of a workflow task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates the task is being executed.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the task completed successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// ErrInvalidTaskBatch indicates a task batch violates its invariants.
var ErrInvalidTaskBatch = errors.New("invalid task batch")

// WorkflowTask is a unit of work to be executed by the coordinator.
// Tasks are created by the planner and are read-only afterwards; executors
// attach a WorkflowExecutionResult keyed by TaskID rather than mutating
// the task.
type WorkflowTask struct {
	// TaskID is the unique identifier for this task within a batch.
	TaskID string `json:"task_id"`
	// WorkflowName maps to a registry entry describing how to run the task.
	WorkflowName string `json:"workflow_name"`
	// WorkflowType is the task category (e.g. "api-development").
	WorkflowType string `json:"workflow_type"`
	// Responsibilities describes what this task should accomplish.
	Responsibilities string `json:"responsibilities,omitempty"`
	// Dependencies lists task IDs that must complete before this task.
	Dependencies []string `json:"dependencies,omitempty"`
	// Parameters are input parameters passed to the workflow backend.
	Parameters map[string]any `json:"parameters,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Priority orders tasks when everything else is equal (higher first).
	Priority int `json:"priority,omitempty"`
	// EstimatedEffortHours is the planner's effort estimate.
	EstimatedEffortHours float64 `json:"estimated_effort_hours,omitempty"`
}

// ValidateBatch checks the batch-level invariants for a set of tasks:
// task IDs are unique and every declared dependency references a task ID
// present in the same batch. Cycles are not validated here; the ordering
// and leveling algorithms detect them.
func ValidateBatch(tasks []WorkflowTask) error {
	seen := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		if task.TaskID == "" {
			return fmt.Errorf("%w: task with empty task_id", ErrInvalidTaskBatch)
		}
		if seen[task.TaskID] {
			return fmt.Errorf("%w: duplicate task_id %q", ErrInvalidTaskBatch, task.TaskID)
		}
		seen[task.TaskID] = true
	}

	for _, task := range tasks {
		for _, dep := range task.Dependencies {
			if !seen[dep] {
				return fmt.Errorf("%w: task %q depends on unknown task %q", ErrInvalidTaskBatch, task.TaskID, dep)
			}
		}
	}

	return nil
}
