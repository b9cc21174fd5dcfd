package models

// ResultStatus represents the outcome of a single workflow execution.
type ResultStatus string

const (
	// ResultSuccess indicates the workflow completed successfully.
	ResultSuccess ResultStatus = "success"
	// ResultFailure indicates the workflow failed.
	ResultFailure ResultStatus = "failure"
	// ResultPartial indicates the workflow completed with partial results.
	ResultPartial ResultStatus = "partial"
)

// WorkflowExecutionResult is the canonical outcome of running one task.
// Every backend's output is normalized into this shape before the engine
// accepts it; see invoker result validation for the required fields.
type WorkflowExecutionResult struct {
	// WorkflowName is the name of the executed workflow, stamped from the
	// registry metadata rather than trusted from the backend's echo.
	WorkflowName string `json:"workflow_name"`
	// Status is the execution status (success, failure, partial).
	Status ResultStatus `json:"status"`
	// Output is the output data from the workflow.
	Output map[string]any `json:"output"`
	// Artifacts lists generated artifacts (file paths, specs, etc.).
	Artifacts []string `json:"artifacts"`
	// ExecutionTimeSeconds is the time taken to execute.
	ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
	// Error is the error message if execution failed.
	Error string `json:"error,omitempty"`
	// ErrorType classifies the failure (TimeoutError, BackendError, ...).
	ErrorType string `json:"error_type,omitempty"`
	// Metadata holds additional execution metadata (attempt counts, etc.).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Succeeded returns true if the result status is success.
func (r WorkflowExecutionResult) Succeeded() bool {
	return r.Status == ResultSuccess
}

// Failed returns true if the result status is failure.
func (r WorkflowExecutionResult) Failed() bool {
	return r.Status == ResultFailure
}
