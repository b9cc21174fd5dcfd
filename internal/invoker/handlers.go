// Package invoker dispatches a single workflow task to its backend:
// an in-process handler for embedded workflows, or an HTTP call for
// remote ones. All failure modes are normalized into failure-shaped
// results; Invoke never returns an error to the caller.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrResolution indicates an embedded handler could not be resolved.
var ErrResolution = errors.New("embedded handler resolution failed")

// Handler is the contract for an embedded workflow backend. Execute
// receives the shared parent state and returns a result-shaped map
// containing at least status, output, artifacts, and
// execution_time_seconds.
type Handler interface {
	Execute(ctx context.Context, state map[string]any) (map[string]any, error)
}

// HandlerFactory constructs a Handler. Factories are registered at
// startup; instances are created lazily on first dispatch and reused.
type HandlerFactory func() Handler

// handlerKey identifies a handler by both module path and workflow
// name. Two workflow names sharing one module path must not share a
// cached instance.
type handlerKey struct {
	modulePath   string
	workflowName string
}

// HandlerRegistry maps (module_path, workflow_name) pairs to handler
// factories. It replaces convention-based runtime lookup with explicit
// registration, so a missing wiring fails visibly at dispatch instead
// of resolving to the wrong type.
type HandlerRegistry struct {
	mu        sync.RWMutex
	factories map[handlerKey]HandlerFactory
}

// NewHandlerRegistry creates an empty HandlerRegistry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{factories: make(map[handlerKey]HandlerFactory)}
}

// Register wires a factory to a (module_path, workflow_name) pair.
// Re-registering the same pair replaces the previous factory.
func (h *HandlerRegistry) Register(modulePath, workflowName string, factory HandlerFactory) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.factories[handlerKey{modulePath, workflowName}] = factory
}

// Resolve returns the factory for a (module_path, workflow_name) pair.
// If no exact wiring exists, it falls back to any factory registered
// under the same module path, but only when that module path has
// exactly one wiring; an ambiguous fallback is a resolution failure.
func (h *HandlerRegistry) Resolve(modulePath, workflowName string) (HandlerFactory, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if factory, ok := h.factories[handlerKey{modulePath, workflowName}]; ok {
		return factory, nil
	}

	var fallback HandlerFactory
	matches := 0
	for key, factory := range h.factories {
		if key.modulePath == modulePath {
			fallback = factory
			matches++
		}
	}
	switch matches {
	case 1:
		return fallback, nil
	case 0:
		return nil, fmt.Errorf("%w: no handler registered for module %q workflow %q",
			ErrResolution, modulePath, workflowName)
	default:
		return nil, fmt.Errorf("%w: %d handlers registered under module %q, none named %q",
			ErrResolution, matches, modulePath, workflowName)
	}
}

// Len returns the number of registered factories.
func (h *HandlerRegistry) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.factories)
}
