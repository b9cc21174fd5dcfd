package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"flowweaver/pkg/models"
)

// ErrBackend indicates a backend call failed (remote non-2xx response
// or an embedded handler error).
var ErrBackend = errors.New("backend execution failed")

// ErrMalformedResult indicates a backend returned a result missing one
// of the required fields or with a wrong type.
var ErrMalformedResult = errors.New("malformed execution result")

// RetryPolicy is the single retry policy applied per dispatch. The
// scheduler does not layer its own retries on top of this one.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int
	// Delay is the fixed pause between failed attempts.
	Delay time.Duration
}

// Config holds invoker tunables. Zero values fall back to defaults.
type Config struct {
	// Timeout bounds each individual dispatch attempt.
	Timeout time.Duration
	// Retry is the per-dispatch retry policy.
	Retry RetryPolicy
	// HTTPClient performs remote dispatches. Defaults to a fresh client.
	HTTPClient *http.Client
}

// Invoker dispatches tasks to embedded or remote backends with a
// per-attempt timeout and a fixed-delay retry loop. It is safe for
// concurrent use.
type Invoker struct {
	handlers *HandlerRegistry
	client   *http.Client
	timeout  time.Duration
	retry    RetryPolicy

	// mu guards instances: handlers are constructed lazily on first
	// dispatch and cached by (module_path, workflow_name).
	mu        sync.Mutex
	instances map[handlerKey]Handler
}

// New creates an Invoker over the given handler registry.
func New(handlers *HandlerRegistry, cfg Config) *Invoker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.Delay <= 0 {
		cfg.Retry.Delay = time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Invoker{
		handlers:  handlers,
		client:    cfg.HTTPClient,
		timeout:   cfg.Timeout,
		retry:     cfg.Retry,
		instances: make(map[handlerKey]Handler),
	}
}

// Invoke runs one workflow against its backend and returns the
// canonical result. It never returns an error: timeouts, resolution
// failures, backend errors, and malformed results all become
// failure-shaped results. The attempt count is recorded in the result
// metadata on both success and failure.
func (inv *Invoker) Invoke(ctx context.Context, meta models.WorkflowMetadata, parentState map[string]any) models.WorkflowExecutionResult {
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= inv.retry.MaxAttempts; attempt++ {
		attempts = attempt

		attemptCtx, cancel := context.WithTimeout(ctx, inv.timeout)
		raw, err := inv.dispatch(attemptCtx, meta, parentState)
		cancel()

		if err == nil {
			result, verr := normalizeResult(raw)
			if verr != nil {
				log.Printf("[invoker] workflow %q returned malformed result: %v", meta.Name, verr)
				return inv.errorResult(meta, "ValidationError", verr.Error(), attempt)
			}
			result.WorkflowName = meta.Name
			if result.Metadata == nil {
				result.Metadata = make(map[string]any)
			}
			result.Metadata["attempts"] = attempt
			return result
		}

		lastErr = err
		log.Printf("[invoker] workflow %q attempt %d/%d failed: %v",
			meta.Name, attempt, inv.retry.MaxAttempts, err)

		// Resolution failures are deterministic; retrying cannot fix a
		// missing wiring.
		if errors.Is(err, ErrResolution) || errors.Is(err, models.ErrInvalidMetadata) {
			break
		}
		if attempt == inv.retry.MaxAttempts {
			break
		}

		select {
		case <-time.After(inv.retry.Delay):
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = inv.retry.MaxAttempts
		}
	}

	return inv.errorResult(meta, classify(lastErr), lastErr.Error(), attempts)
}

// dispatch performs a single attempt against the metadata's backend.
func (inv *Invoker) dispatch(ctx context.Context, meta models.WorkflowMetadata, state map[string]any) (map[string]any, error) {
	switch meta.BackendKind {
	case models.BackendEmbedded:
		return inv.invokeEmbedded(ctx, meta, state)
	case models.BackendRemote:
		return inv.invokeRemote(ctx, meta, state)
	default:
		return nil, fmt.Errorf("%w: workflow %q has unknown backend kind %q",
			models.ErrInvalidMetadata, meta.Name, meta.BackendKind)
	}
}

// invokeEmbedded resolves the handler for the metadata and runs it.
// The handler runs in its own goroutine so a handler that ignores
// context cancellation still respects the attempt deadline.
func (inv *Invoker) invokeEmbedded(ctx context.Context, meta models.WorkflowMetadata, state map[string]any) (map[string]any, error) {
	handler, err := inv.handlerFor(meta)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		raw map[string]any
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		raw, err := handler.Execute(ctx, state)
		done <- outcome{raw, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackend, out.err)
		}
		return out.raw, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handlerFor returns the cached handler instance for the metadata,
// constructing it on first use.
func (inv *Invoker) handlerFor(meta models.WorkflowMetadata) (Handler, error) {
	key := handlerKey{meta.ModulePath, meta.Name}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	if handler, ok := inv.instances[key]; ok {
		return handler, nil
	}

	factory, err := inv.handlers.Resolve(meta.ModulePath, meta.Name)
	if err != nil {
		return nil, err
	}

	handler := factory()
	inv.instances[key] = handler
	log.Printf("[invoker] instantiated handler for module %q workflow %q", meta.ModulePath, meta.Name)
	return handler, nil
}

// ClearCache drops all cached handler instances. Intended for tests.
func (inv *Invoker) ClearCache() {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.instances = make(map[handlerKey]Handler)
}

// remoteRequest is the JSON body posted to a remote backend.
type remoteRequest struct {
	WorkflowName string         `json:"workflow_name"`
	ParentState  map[string]any `json:"parent_state"`
}

// invokeRemote posts the task to {service_url}[:port]/execute and
// decodes the JSON response. A non-2xx status is a backend failure.
func (inv *Invoker) invokeRemote(ctx context.Context, meta models.WorkflowMetadata, state map[string]any) (map[string]any, error) {
	endpoint := strings.TrimRight(meta.ServiceURL, "/")
	if meta.ServicePort > 0 {
		endpoint = fmt.Sprintf("%s:%d", endpoint, meta.ServicePort)
	}
	endpoint += "/execute"

	body, err := json.Marshal(remoteRequest{WorkflowName: meta.Name, ParentState: state})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrBackend, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrBackend, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := inv.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s returned status %d: %s",
			ErrBackend, endpoint, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrBackend, err)
	}
	return raw, nil
}

// errorResult builds a failure-shaped result for the given failure.
func (inv *Invoker) errorResult(meta models.WorkflowMetadata, errorType, message string, attempts int) models.WorkflowExecutionResult {
	return models.WorkflowExecutionResult{
		WorkflowName: meta.Name,
		Status:       models.ResultFailure,
		Output:       map[string]any{},
		Artifacts:    []string{},
		Error:        message,
		ErrorType:    errorType,
		Metadata:     map[string]any{"attempts": attempts},
	}
}

// classify maps a dispatch error to its error_type string.
func classify(err error) string {
	switch {
	case errors.Is(err, ErrResolution):
		return "ResolutionError"
	case errors.Is(err, models.ErrInvalidMetadata):
		return "ValidationError"
	case errors.Is(err, context.DeadlineExceeded):
		return "TimeoutError"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "TimeoutError"
	}
	return "BackendError"
}

// normalizeResult converts a raw backend map into the canonical result.
// The map must contain status, output, artifacts, and
// execution_time_seconds with correct types. Normalizing an
// already-canonical result map is idempotent.
func normalizeResult(raw map[string]any) (models.WorkflowExecutionResult, error) {
	var result models.WorkflowExecutionResult

	if raw == nil {
		return result, fmt.Errorf("%w: backend returned no result", ErrMalformedResult)
	}

	statusValue, ok := raw["status"]
	if !ok {
		return result, fmt.Errorf("%w: missing required field %q", ErrMalformedResult, "status")
	}
	status, err := resultStatus(statusValue)
	if err != nil {
		return result, err
	}
	result.Status = status

	outputValue, ok := raw["output"]
	if !ok {
		return result, fmt.Errorf("%w: missing required field %q", ErrMalformedResult, "output")
	}
	output, ok := outputValue.(map[string]any)
	if !ok {
		return result, fmt.Errorf("%w: field %q must be an object, got %T", ErrMalformedResult, "output", outputValue)
	}
	result.Output = output

	artifactsValue, ok := raw["artifacts"]
	if !ok {
		return result, fmt.Errorf("%w: missing required field %q", ErrMalformedResult, "artifacts")
	}
	artifacts, err := stringSlice(artifactsValue)
	if err != nil {
		return result, err
	}
	result.Artifacts = artifacts

	secondsValue, ok := raw["execution_time_seconds"]
	if !ok {
		return result, fmt.Errorf("%w: missing required field %q", ErrMalformedResult, "execution_time_seconds")
	}
	seconds, err := floatValue(secondsValue)
	if err != nil {
		return result, err
	}
	if seconds < 0 {
		return result, fmt.Errorf("%w: execution_time_seconds must be non-negative", ErrMalformedResult)
	}
	result.ExecutionTimeSeconds = seconds

	if v, ok := raw["error"].(string); ok {
		result.Error = v
	}
	if v, ok := raw["error_type"].(string); ok {
		result.ErrorType = v
	}
	if v, ok := raw["metadata"].(map[string]any); ok {
		result.Metadata = v
	}
	if v, ok := raw["workflow_name"].(string); ok {
		// Kept for idempotence; Invoke overwrites it from the registry
		// metadata rather than trusting the backend's echo.
		result.WorkflowName = v
	}

	return result, nil
}

func resultStatus(value any) (models.ResultStatus, error) {
	s, ok := value.(string)
	if !ok {
		if rs, ok := value.(models.ResultStatus); ok {
			s = string(rs)
		} else {
			return "", fmt.Errorf("%w: field %q must be a string, got %T", ErrMalformedResult, "status", value)
		}
	}
	switch status := models.ResultStatus(s); status {
	case models.ResultSuccess, models.ResultFailure, models.ResultPartial:
		return status, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrMalformedResult, s)
	}
}

func stringSlice(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: artifacts must be strings, got %T", ErrMalformedResult, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: field %q must be a list, got %T", ErrMalformedResult, "artifacts", value)
	}
}

func floatValue(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	default:
		return 0, fmt.Errorf("%w: field %q must be a number, got %T", ErrMalformedResult, "execution_time_seconds", value)
	}
}
