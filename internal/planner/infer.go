// Package planner turns preprocessed story requirements into an
// executable plan: a task batch, an inferred dependency map, an
// execution strategy, and a suggested order.
package planner

import (
	"strings"

	"flowweaver/pkg/models"
)

// DependencyInferencer derives a dependency map for a task batch. It
// is pluggable so the convention below can be swapped for an explicit
// declaration mechanism.
type DependencyInferencer interface {
	Infer(tasks []models.WorkflowTask) map[string][]string
}

// ConventionInferencer applies the naming convention: a task whose
// type is "<x>-enhancement" depends on every task in the batch whose
// type is "<x>-development". Hyphens and underscores are
// interchangeable in type names.
type ConventionInferencer struct{}

// Infer returns the dependency map for the batch. Every task gets an
// entry, possibly empty.
func (ConventionInferencer) Infer(tasks []models.WorkflowTask) map[string][]string {
	deps := make(map[string][]string, len(tasks))

	for _, task := range tasks {
		taskDeps := []string{}
		if base, ok := strings.CutSuffix(normalizeKind(task.WorkflowType), "_enhancement"); ok {
			for _, other := range tasks {
				otherBase, isDev := strings.CutSuffix(normalizeKind(other.WorkflowType), "_development")
				if isDev && otherBase == base {
					taskDeps = append(taskDeps, other.TaskID)
				}
			}
		}
		deps[task.TaskID] = taskDeps
	}
	return deps
}

// normalizeKind lowercases a workflow type and unifies separators so
// "api-development" and "API_Development" compare equal.
func normalizeKind(kind string) string {
	return strings.ReplaceAll(strings.ToLower(kind), "-", "_")
}
