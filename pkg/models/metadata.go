package models

import (
	"errors"
	"fmt"
)

// BackendKind describes how a registered workflow is executed.
type BackendKind string

const (
	// BackendEmbedded runs the workflow via an in-process handler.
	BackendEmbedded BackendKind = "embedded"
	// BackendRemote runs the workflow via an HTTP call to an external service.
	BackendRemote BackendKind = "remote"
)

// Valid returns true if the backend kind is a known value.
func (k BackendKind) Valid() bool {
	return k == BackendEmbedded || k == BackendRemote
}

// ErrInvalidMetadata indicates workflow metadata violates its invariants.
var ErrInvalidMetadata = errors.New("invalid workflow metadata")

// WorkflowMetadata describes how to run a named workflow.
// Entries are created once at startup (or via explicit registration) and
// live for the process lifetime.
type WorkflowMetadata struct {
	// Name is the unique registry key for this workflow.
	Name string `json:"name" yaml:"name"`
	// WorkflowType is the workflow category (e.g. "api-development").
	WorkflowType string `json:"workflow_type" yaml:"workflow_type"`
	// Description is a human-readable summary of the workflow.
	Description string `json:"description" yaml:"description"`
	// Version is the semantic version of the workflow.
	Version string `json:"version" yaml:"version"`
	// BackendKind selects the execution backend (embedded or remote).
	BackendKind BackendKind `json:"backend_kind" yaml:"backend_kind"`
	// ModulePath locates the embedded handler. Required for embedded backends.
	ModulePath string `json:"module_path,omitempty" yaml:"module_path"`
	// ServiceURL is the base URL of the remote service. Required for remote backends.
	ServiceURL string `json:"service_url,omitempty" yaml:"service_url"`
	// ServicePort is the optional port of the remote service.
	ServicePort int `json:"service_port,omitempty" yaml:"service_port"`
	// Tags categorize the workflow for search and listing.
	Tags []string `json:"tags,omitempty" yaml:"tags"`
	// IsActive marks whether the workflow is available for use.
	IsActive bool `json:"is_active" yaml:"is_active"`
}

// Validate checks the backend-specific required fields. It is called at
// registration time so misconfiguration fails fast rather than at dispatch.
func (m WorkflowMetadata) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidMetadata)
	}
	if !m.BackendKind.Valid() {
		return fmt.Errorf("%w: workflow %q has unknown backend kind %q", ErrInvalidMetadata, m.Name, m.BackendKind)
	}
	switch m.BackendKind {
	case BackendEmbedded:
		if m.ModulePath == "" {
			return fmt.Errorf("%w: embedded workflow %q requires module_path", ErrInvalidMetadata, m.Name)
		}
	case BackendRemote:
		if m.ServiceURL == "" {
			return fmt.Errorf("%w: remote workflow %q requires service_url", ErrInvalidMetadata, m.Name)
		}
	}
	return nil
}
