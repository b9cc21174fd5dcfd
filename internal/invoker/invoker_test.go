package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"flowweaver/pkg/models"
)

// stubHandler returns a fixed raw result or error.
type stubHandler struct {
	raw   map[string]any
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (h *stubHandler) Execute(ctx context.Context, state map[string]any) (map[string]any, error) {
	h.calls.Add(1)
	if h.delay > 0 {
		select {
		case <-time.After(h.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if h.err != nil {
		return nil, h.err
	}
	return h.raw, nil
}

func validRaw() map[string]any {
	return map[string]any{
		"status":                 "success",
		"output":                 map[string]any{"endpoint": "/api/users"},
		"artifacts":              []any{"openapi.yaml"},
		"execution_time_seconds": 1.5,
	}
}

func testConfig() Config {
	return Config{
		Timeout: 2 * time.Second,
		Retry:   RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond},
	}
}

func embeddedMeta(name, modulePath string) models.WorkflowMetadata {
	return models.WorkflowMetadata{
		Name:        name,
		BackendKind: models.BackendEmbedded,
		ModulePath:  modulePath,
		IsActive:    true,
	}
}

func TestInvokeEmbeddedSuccess(t *testing.T) {
	handlers := NewHandlerRegistry()
	handler := &stubHandler{raw: validRaw()}
	handlers.Register("workflows/api", "api_development", func() Handler { return handler })

	inv := New(handlers, testConfig())
	result := inv.Invoke(context.Background(), embeddedMeta("api_development", "workflows/api"), map[string]any{"story": "x"})

	if !result.Succeeded() {
		t.Fatalf("expected success, got %s (%s: %s)", result.Status, result.ErrorType, result.Error)
	}
	if result.WorkflowName != "api_development" {
		t.Errorf("expected workflow name stamped from metadata, got %q", result.WorkflowName)
	}
	if got := result.Metadata["attempts"]; got != 1 {
		t.Errorf("expected 1 attempt, got %v", got)
	}
	if len(result.Artifacts) != 1 || result.Artifacts[0] != "openapi.yaml" {
		t.Errorf("unexpected artifacts %v", result.Artifacts)
	}
}

func TestInvokeEmbeddedResolutionFailure(t *testing.T) {
	inv := New(NewHandlerRegistry(), testConfig())
	result := inv.Invoke(context.Background(), embeddedMeta("missing", "workflows/none"), nil)

	if !result.Failed() {
		t.Fatalf("expected failure, got %s", result.Status)
	}
	if result.ErrorType != "ResolutionError" {
		t.Errorf("expected ResolutionError, got %q", result.ErrorType)
	}
	if got := result.Metadata["attempts"]; got != 1 {
		t.Errorf("expected resolution failure after 1 attempt, got %v", got)
	}
}

func TestInvokeEmbeddedHandlerError(t *testing.T) {
	handlers := NewHandlerRegistry()
	handler := &stubHandler{err: errors.New("boom")}
	handlers.Register("workflows/api", "api_development", func() Handler { return handler })

	inv := New(handlers, testConfig())
	result := inv.Invoke(context.Background(), embeddedMeta("api_development", "workflows/api"), nil)

	if result.ErrorType != "BackendError" {
		t.Errorf("expected BackendError, got %q", result.ErrorType)
	}
	if got := handler.calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if got := result.Metadata["attempts"]; got != 3 {
		t.Errorf("expected attempts=3 in metadata, got %v", got)
	}
}

func TestInvokeEmbeddedTimeout(t *testing.T) {
	handlers := NewHandlerRegistry()
	handler := &stubHandler{raw: validRaw(), delay: 200 * time.Millisecond}
	handlers.Register("workflows/slow", "slow_flow", func() Handler { return handler })

	cfg := testConfig()
	cfg.Timeout = 10 * time.Millisecond
	inv := New(handlers, cfg)

	result := inv.Invoke(context.Background(), embeddedMeta("slow_flow", "workflows/slow"), nil)
	if result.ErrorType != "TimeoutError" {
		t.Errorf("expected TimeoutError, got %q (%s)", result.ErrorType, result.Error)
	}
}

func TestInvokeEmbeddedMalformedResult(t *testing.T) {
	handlers := NewHandlerRegistry()
	handler := &stubHandler{raw: map[string]any{"status": "success"}}
	handlers.Register("workflows/bad", "bad_flow", func() Handler { return handler })

	inv := New(handlers, testConfig())
	result := inv.Invoke(context.Background(), embeddedMeta("bad_flow", "workflows/bad"), nil)

	if result.ErrorType != "ValidationError" {
		t.Errorf("expected ValidationError, got %q", result.ErrorType)
	}
	if got := handler.calls.Load(); got != 1 {
		t.Errorf("malformed result should not be retried, got %d calls", got)
	}
}

func TestHandlerCacheCompoundKey(t *testing.T) {
	handlers := NewHandlerRegistry()
	var aCount, bCount atomic.Int32
	handlers.Register("workflows/shared", "flow_a", func() Handler {
		aCount.Add(1)
		return &stubHandler{raw: validRaw()}
	})
	handlers.Register("workflows/shared", "flow_b", func() Handler {
		bCount.Add(1)
		return &stubHandler{raw: validRaw()}
	})

	inv := New(handlers, testConfig())
	for i := 0; i < 2; i++ {
		inv.Invoke(context.Background(), embeddedMeta("flow_a", "workflows/shared"), nil)
		inv.Invoke(context.Background(), embeddedMeta("flow_b", "workflows/shared"), nil)
	}

	if aCount.Load() != 1 || bCount.Load() != 1 {
		t.Errorf("expected one instance per (module, name) pair, got a=%d b=%d",
			aCount.Load(), bCount.Load())
	}
}

func TestHandlerRegistryFallback(t *testing.T) {
	handlers := NewHandlerRegistry()
	handlers.Register("workflows/api", "api_development", func() Handler { return &stubHandler{raw: validRaw()} })

	// Sole wiring under the module path serves unlisted names.
	if _, err := handlers.Resolve("workflows/api", "other_name"); err != nil {
		t.Errorf("expected single-wiring fallback to resolve, got %v", err)
	}

	handlers.Register("workflows/api", "api_enhancement", func() Handler { return &stubHandler{raw: validRaw()} })
	if _, err := handlers.Resolve("workflows/api", "other_name"); !errors.Is(err, ErrResolution) {
		t.Errorf("expected ambiguous fallback to fail, got %v", err)
	}
}

func TestInvokeRemoteRetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			http.Error(w, "transient", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","output":{},"artifacts":[],"execution_time_seconds":0.2}`))
	}))
	defer server.Close()

	inv := New(NewHandlerRegistry(), testConfig())
	meta := models.WorkflowMetadata{
		Name:        "ui_enhancement",
		BackendKind: models.BackendRemote,
		ServiceURL:  server.URL,
		IsActive:    true,
	}

	result := inv.Invoke(context.Background(), meta, map[string]any{"k": "v"})
	if !result.Succeeded() {
		t.Fatalf("expected success after retries, got %s (%s)", result.Status, result.Error)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("expected exactly 3 dispatch attempts, got %d", got)
	}
	if got := result.Metadata["attempts"]; got != 3 {
		t.Errorf("expected attempts=3 in metadata, got %v", got)
	}
}

func TestInvokeRemoteExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Retry.MaxAttempts = 2
	inv := New(NewHandlerRegistry(), cfg)
	meta := models.WorkflowMetadata{
		Name:        "ui_enhancement",
		BackendKind: models.BackendRemote,
		ServiceURL:  server.URL,
	}

	result := inv.Invoke(context.Background(), meta, nil)
	if result.ErrorType != "BackendError" {
		t.Errorf("expected BackendError, got %q", result.ErrorType)
	}
	if got := result.Metadata["attempts"]; got != 2 {
		t.Errorf("expected attempts=2, got %v", got)
	}
}

func TestInvokeRemoteRequestBody(t *testing.T) {
	var gotBody remoteRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/execute" {
			t.Errorf("expected path /execute, got %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %q", ct)
		}
		if err := jsonDecode(r, &gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"status":"success","output":{},"artifacts":[],"execution_time_seconds":0}`))
	}))
	defer server.Close()

	inv := New(NewHandlerRegistry(), testConfig())
	meta := models.WorkflowMetadata{
		Name:        "api_development",
		BackendKind: models.BackendRemote,
		ServiceURL:  server.URL,
	}

	inv.Invoke(context.Background(), meta, map[string]any{"story": "as a user"})
	if gotBody.WorkflowName != "api_development" {
		t.Errorf("expected workflow_name in request body, got %q", gotBody.WorkflowName)
	}
	if gotBody.ParentState["story"] != "as a user" {
		t.Errorf("expected parent_state passed through, got %v", gotBody.ParentState)
	}
}

func TestInvokeUnknownBackend(t *testing.T) {
	inv := New(NewHandlerRegistry(), testConfig())
	meta := models.WorkflowMetadata{Name: "x", BackendKind: models.BackendKind("grpc")}

	result := inv.Invoke(context.Background(), meta, nil)
	if result.ErrorType != "ValidationError" {
		t.Errorf("expected ValidationError for unknown backend, got %q", result.ErrorType)
	}
}

func TestNormalizeResultIdempotent(t *testing.T) {
	first, err := normalizeResult(validRaw())
	if err != nil {
		t.Fatalf("first normalize failed: %v", err)
	}

	// Re-encode the canonical result as a raw map and normalize again.
	again := map[string]any{
		"workflow_name":          first.WorkflowName,
		"status":                 string(first.Status),
		"output":                 first.Output,
		"artifacts":              first.Artifacts,
		"execution_time_seconds": first.ExecutionTimeSeconds,
	}
	second, err := normalizeResult(again)
	if err != nil {
		t.Fatalf("second normalize failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("normalization not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestNormalizeResultRejections(t *testing.T) {
	cases := []struct {
		name string
		raw  map[string]any
	}{
		{"nil", nil},
		{"missing status", map[string]any{"output": map[string]any{}, "artifacts": []any{}, "execution_time_seconds": 0.0}},
		{"unknown status", map[string]any{"status": "done", "output": map[string]any{}, "artifacts": []any{}, "execution_time_seconds": 0.0}},
		{"missing output", map[string]any{"status": "success", "artifacts": []any{}, "execution_time_seconds": 0.0}},
		{"wrong output type", map[string]any{"status": "success", "output": "text", "artifacts": []any{}, "execution_time_seconds": 0.0}},
		{"missing artifacts", map[string]any{"status": "success", "output": map[string]any{}, "execution_time_seconds": 0.0}},
		{"non-string artifact", map[string]any{"status": "success", "output": map[string]any{}, "artifacts": []any{42}, "execution_time_seconds": 0.0}},
		{"missing time", map[string]any{"status": "success", "output": map[string]any{}, "artifacts": []any{}}},
		{"negative time", map[string]any{"status": "success", "output": map[string]any{}, "artifacts": []any{}, "execution_time_seconds": -1.0}},
	}

	for _, tc := range cases {
		if _, err := normalizeResult(tc.raw); !errors.Is(err, ErrMalformedResult) {
			t.Errorf("%s: expected ErrMalformedResult, got %v", tc.name, err)
		}
	}
}

// jsonDecode reads a JSON request body into v.
func jsonDecode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
