package coordinator

import "flowweaver/pkg/models"

// ExecutionSummary aggregates per-task results into batch statistics.
type ExecutionSummary struct {
	// TotalTasks is the number of tasks in the result map.
	TotalTasks int `json:"total_tasks"`
	// Successful is the number of tasks with status success.
	Successful int `json:"successful"`
	// Failed is the number of tasks with status failure.
	Failed int `json:"failed"`
	// SuccessRate is successful/total as a percentage, 0 when total is 0.
	SuccessRate float64 `json:"success_rate"`
	// TotalExecutionTimeSeconds is the sum of per-task execution times.
	TotalExecutionTimeSeconds float64 `json:"total_execution_time_seconds"`
	// OverallStatus is the aggregated batch status.
	OverallStatus models.ResultStatus `json:"overall_status"`
}

// OverallStatus aggregates per-task statuses: success iff every task
// succeeded, failure iff the map is empty or every task failed,
// partial otherwise.
func OverallStatus(results map[string]models.WorkflowExecutionResult) models.ResultStatus {
	if len(results) == 0 {
		return models.ResultFailure
	}

	allSuccess := true
	allFailure := true
	for _, result := range results {
		if !result.Succeeded() {
			allSuccess = false
		}
		if !result.Failed() {
			allFailure = false
		}
	}

	switch {
	case allSuccess:
		return models.ResultSuccess
	case allFailure:
		return models.ResultFailure
	default:
		return models.ResultPartial
	}
}

// Summarize computes the execution summary for a batch result map.
func Summarize(results map[string]models.WorkflowExecutionResult) ExecutionSummary {
	summary := ExecutionSummary{
		TotalTasks:    len(results),
		OverallStatus: OverallStatus(results),
	}

	for _, result := range results {
		switch {
		case result.Succeeded():
			summary.Successful++
		case result.Failed():
			summary.Failed++
		}
		summary.TotalExecutionTimeSeconds += result.ExecutionTimeSeconds
	}

	if summary.TotalTasks > 0 {
		summary.SuccessRate = float64(summary.Successful) / float64(summary.TotalTasks) * 100
	}
	return summary
}
