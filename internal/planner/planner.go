package planner

import (
	"fmt"
	"log"
	"strings"

	"flowweaver/internal/preprocessor"
	"flowweaver/internal/registry"
	"flowweaver/pkg/models"
)

// RiskFactor flags a potential problem with the plan.
type RiskFactor struct {
	Factor     string `json:"factor"`
	Severity   string `json:"severity"`
	Mitigation string `json:"mitigation"`
}

// Output is the complete execution plan consumed by the execute stage.
type Output struct {
	StoryScope                string                `json:"story_scope"`
	RequiredWorkflows         []string              `json:"required_workflows"`
	Tasks                     []models.WorkflowTask `json:"workflow_tasks"`
	Dependencies              map[string][]string   `json:"task_dependencies"`
	Strategy                  models.Strategy       `json:"execution_strategy"`
	Order                     []string              `json:"execution_order"`
	RiskFactors               []RiskFactor          `json:"risk_factors"`
	EstimatedTotalEffortHours float64               `json:"estimated_total_effort_hours"`
	Rationale                 string                `json:"planning_rationale"`
	Errors                    []string              `json:"planning_errors"`
}

// Planner builds execution plans by matching story requirements
// against the workflows available in the registry.
type Planner struct {
	registry   *registry.Registry
	inferencer DependencyInferencer
}

// New creates a Planner. A nil inferencer falls back to the
// enhancement-depends-on-development convention.
func New(reg *registry.Registry, inferencer DependencyInferencer) *Planner {
	if inferencer == nil {
		inferencer = ConventionInferencer{}
	}
	return &Planner{registry: reg, inferencer: inferencer}
}

// Plan builds the execution plan for a preprocessed story. Planning
// problems that leave a usable plan (e.g. no matching workflows) are
// reported in Output.Errors; a cyclic dependency map is a hard error.
func (p *Planner) Plan(pre preprocessor.Output) (Output, error) {
	var planErrors []string

	scope := p.analyzeScope(pre)

	required := p.identifyWorkflows(pre)
	if len(required) == 0 {
		planErrors = append(planErrors, "no workflows identified for this story")
	}

	tasks := p.buildTasks(required, pre)
	deps := p.inferencer.Infer(tasks)
	for i := range tasks {
		tasks[i].Dependencies = deps[tasks[i].TaskID]
	}

	strategy, order, err := ChooseStrategy(tasks, deps)
	if err != nil {
		return Output{}, err
	}

	totalEffort := 0.0
	for _, task := range tasks {
		totalEffort += task.EstimatedEffortHours
	}

	out := Output{
		StoryScope:                scope,
		RequiredWorkflows:         required,
		Tasks:                     tasks,
		Dependencies:              deps,
		Strategy:                  strategy,
		Order:                     order,
		RiskFactors:               p.assessRisks(pre),
		EstimatedTotalEffortHours: totalEffort,
		Rationale: fmt.Sprintf("Selected %d workflows (%s) using %s execution strategy.",
			len(required), strings.Join(required, ", "), strategy),
		Errors: planErrors,
	}

	log.Printf("[planner] planning complete: %d workflows, strategy=%s, effort=%.1fh, errors=%d",
		len(required), strategy, totalEffort, len(planErrors))
	return out, nil
}

// analyzeScope summarizes the story for the final report.
func (p *Planner) analyzeScope(pre preprocessor.Output) string {
	scope := fmt.Sprintf("Story Type: %s. Title: %s. Identified %d requirements.",
		pre.DetectedStoryType, pre.ExtractedData.Title, len(pre.ExtractedData.Requirements))
	if len(pre.ExtractedData.Requirements) > 0 {
		key := pre.ExtractedData.Requirements
		if len(key) > 3 {
			key = key[:3]
		}
		scope += " Key requirements: " + strings.Join(key, ", ")
	}
	return scope
}

// identifyWorkflows matches the detected story type against the active
// registry entries by workflow type. With no match it falls back to a
// workflow named exactly after the story type, if registered.
func (p *Planner) identifyWorkflows(pre preprocessor.Output) []string {
	storyType := normalizeKind(pre.DetectedStoryType)

	var matching []string
	for _, meta := range p.registry.ListActive() {
		if strings.Contains(normalizeKind(meta.WorkflowType), storyType) {
			matching = append(matching, meta.Name)
		}
	}
	if len(matching) > 0 {
		log.Printf("[planner] identified %d workflows by type match: %v", len(matching), matching)
		return matching
	}

	if p.registry.Contains(pre.DetectedStoryType) {
		return []string{pre.DetectedStoryType}
	}
	return nil
}

// buildTasks creates one task per required workflow, numbered in
// order, with heuristic responsibilities and effort estimates.
func (p *Planner) buildTasks(required []string, pre preprocessor.Output) []models.WorkflowTask {
	effort := estimateEffort(pre.Metadata.EstimatedComplexity)

	tasks := make([]models.WorkflowTask, 0, len(required))
	for i, name := range required {
		workflowType := "unknown"
		if meta, ok := p.registry.Get(name); ok {
			workflowType = meta.WorkflowType
		}

		tasks = append(tasks, models.WorkflowTask{
			TaskID:           fmt.Sprintf("task_%d", i+1),
			WorkflowName:     name,
			WorkflowType:     workflowType,
			Responsibilities: responsibilitiesFor(name),
			Parameters: map[string]any{
				"story_type":   pre.DetectedStoryType,
				"title":        pre.ExtractedData.Title,
				"requirements": pre.ExtractedData.Requirements,
			},
			Status:               models.TaskStatusPending,
			Priority:             i + 1,
			EstimatedEffortHours: effort,
		})
	}
	return tasks
}

// assessRisks flags plan-level risks from story metrics.
func (p *Planner) assessRisks(pre preprocessor.Output) []RiskFactor {
	var risks []RiskFactor

	if pre.Metadata.EstimatedComplexity == "high" {
		risks = append(risks, RiskFactor{
			Factor:     "High story complexity",
			Severity:   "high",
			Mitigation: "Break into smaller sub-tasks, allocate extra time",
		})
	}
	if len(pre.ExtractedData.Requirements) > 10 {
		risks = append(risks, RiskFactor{
			Factor:     "Large number of requirements",
			Severity:   "medium",
			Mitigation: "Prioritize requirements, consider phased delivery",
		})
	}
	return risks
}

// responsibilitiesFor derives a task description from the workflow name.
func responsibilitiesFor(workflowName string) string {
	lower := strings.ToLower(workflowName)
	switch {
	case strings.Contains(lower, "api"):
		return "Design and implement API endpoints, handle authentication, and create tests"
	case strings.Contains(lower, "ui"):
		return "Design UI components, implement responsive layouts, and ensure accessibility"
	default:
		return fmt.Sprintf("Execute %s workflow", workflowName)
	}
}

// estimateEffort scales a 4-hour base by story complexity.
func estimateEffort(complexity string) float64 {
	base := 4.0
	switch complexity {
	case "medium":
		base *= 1.5
	case "high":
		base *= 2.5
	}
	return base
}
