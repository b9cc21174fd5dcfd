// Package registry provides the central registry of workflow metadata.
// It holds declarative information about each executable workflow and is
// read concurrently by in-flight task executions; writes happen only
// during setup or explicit reloads.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"flowweaver/pkg/models"
)

// ErrDuplicateName indicates a workflow name is already registered.
var ErrDuplicateName = errors.New("workflow already registered")

// ErrNotFound indicates a workflow name is not in the registry.
var ErrNotFound = errors.New("workflow not found in registry")

// Registry is an in-memory index of workflow metadata by name and by type.
// It is safe for concurrent use.
type Registry struct {
	mu sync.RWMutex
	// workflows maps workflow name to its metadata.
	workflows map[string]models.WorkflowMetadata
	// byType maps workflow type to the names registered under it.
	byType map[string][]string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		workflows: make(map[string]models.WorkflowMetadata),
		byType:    make(map[string][]string),
	}
}

// Register adds a workflow to the registry. It fails with ErrDuplicateName
// if the name is already present, or with a validation error if the
// backend-specific required field is missing. Validation happens here so
// misconfigured workflows fail fast instead of at dispatch time.
func (r *Registry) Register(meta models.WorkflowMetadata) error {
	if err := meta.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workflows[meta.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, meta.Name)
	}

	r.registerLocked(meta)
	return nil
}

// registerLocked inserts metadata without validation. Caller must hold r.mu.
func (r *Registry) registerLocked(meta models.WorkflowMetadata) {
	r.workflows[meta.Name] = meta
	r.byType[meta.WorkflowType] = append(r.byType[meta.WorkflowType], meta.Name)
}

// Get returns the metadata for a workflow name, and whether it was found.
func (r *Registry) Get(name string) (models.WorkflowMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.workflows[name]
	return meta, ok
}

// GetOrFail returns the metadata for a workflow name, failing with
// ErrNotFound if it is not registered.
func (r *Registry) GetOrFail(name string) (models.WorkflowMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.workflows[name]
	if !ok {
		return models.WorkflowMetadata{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return meta, nil
}

// ListAll returns all registered workflows.
func (r *Registry) ListAll() []models.WorkflowMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]models.WorkflowMetadata, 0, len(r.workflows))
	for _, meta := range r.workflows {
		list = append(list, meta)
	}
	return list
}

// ListActive returns all workflows marked active.
func (r *Registry) ListActive() []models.WorkflowMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var list []models.WorkflowMetadata
	for _, meta := range r.workflows {
		if meta.IsActive {
			list = append(list, meta)
		}
	}
	return list
}

// ListByType returns all workflows of the given type.
func (r *Registry) ListByType(workflowType string) []models.WorkflowMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.byType[workflowType]
	list := make([]models.WorkflowMetadata, 0, len(names))
	for _, name := range names {
		list = append(list, r.workflows[name])
	}
	return list
}

// ListByBackend returns all workflows with the given backend kind.
func (r *Registry) ListByBackend(kind models.BackendKind) []models.WorkflowMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var list []models.WorkflowMetadata
	for _, meta := range r.workflows {
		if meta.BackendKind == kind {
			list = append(list, meta)
		}
	}
	return list
}

// ListTypes returns all unique workflow types.
func (r *Registry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	return types
}

// Deregister removes a workflow by name. Returns true if it was present.
func (r *Registry) Deregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, ok := r.workflows[name]
	if !ok {
		return false
	}

	delete(r.workflows, name)

	names := r.byType[meta.WorkflowType]
	for i, n := range names {
		if n == name {
			r.byType[meta.WorkflowType] = append(names[:i], names[i+1:]...)
			break
		}
	}
	if len(r.byType[meta.WorkflowType]) == 0 {
		delete(r.byType, meta.WorkflowType)
	}

	return true
}

// Replace atomically swaps the registry contents for the given metadata
// set. Entries that fail validation are skipped and returned as errors.
// Used by configuration hot reload.
func (r *Registry) Replace(metas []models.WorkflowMetadata) []error {
	var errs []error

	valid := make([]models.WorkflowMetadata, 0, len(metas))
	seen := make(map[string]bool, len(metas))
	for _, meta := range metas {
		if err := meta.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[meta.Name] {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateName, meta.Name))
			continue
		}
		seen[meta.Name] = true
		valid = append(valid, meta)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.workflows = make(map[string]models.WorkflowMetadata, len(valid))
	r.byType = make(map[string][]string)
	for _, meta := range valid {
		r.registerLocked(meta)
	}

	return errs
}

// Clear removes all registered workflows. Intended for tests.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows = make(map[string]models.WorkflowMetadata)
	r.byType = make(map[string][]string)
}

// Len returns the number of registered workflows.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workflows)
}

// Contains reports whether a workflow name is registered.
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.workflows[name]
	return ok
}
