// Package workflows provides the built-in embedded workflow handlers
// and their registry metadata. Each handler produces a heuristic
// result describing the work it would carry out for the story.
package workflows

import (
	"context"
	"fmt"
	"time"

	"flowweaver/internal/invoker"
	"flowweaver/pkg/models"
)

// builtin is a deterministic embedded handler. It reports the
// requirements it addressed and a fixed artifact set.
type builtin struct {
	name      string
	summary   string
	artifacts []string
}

// Execute returns a success result shaped for the invoker's
// normalization: status, output, artifacts, execution_time_seconds.
func (b *builtin) Execute(ctx context.Context, state map[string]any) (map[string]any, error) {
	start := time.Now()

	requirements := requirementsFrom(state)
	output := map[string]any{
		"workflow":     b.name,
		"summary":      b.summary,
		"requirements": requirements,
	}
	if title, ok := state["title"].(string); ok && title != "" {
		output["title"] = title
	}

	artifacts := make([]any, len(b.artifacts))
	for i, a := range b.artifacts {
		artifacts[i] = a
	}

	return map[string]any{
		"status":                 "success",
		"output":                 output,
		"artifacts":              artifacts,
		"execution_time_seconds": time.Since(start).Seconds(),
	}, nil
}

// requirementsFrom tolerates both typed and JSON-decoded requirement
// lists in the shared state.
func requirementsFrom(state map[string]any) []string {
	switch v := state["requirements"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// definitions pairs each built-in handler with its metadata.
var definitions = []struct {
	meta    models.WorkflowMetadata
	summary string
	files   []string
}{
	{
		meta: models.WorkflowMetadata{
			Name:         "api_development",
			WorkflowType: "api_development",
			Description:  "Designs and implements API endpoints for a story",
			Version:      "1.0.0",
			BackendKind:  models.BackendEmbedded,
			ModulePath:   "workflows/api_development",
			Tags:         []string{"api", "backend"},
			IsActive:     true,
		},
		summary: "Designed API endpoints, data model, and integration tests",
		files:   []string{"openapi.yaml", "api/handlers.md", "api/tests.md"},
	},
	{
		meta: models.WorkflowMetadata{
			Name:         "api_enhancement",
			WorkflowType: "api_enhancement",
			Description:  "Extends existing API endpoints with new behavior",
			Version:      "1.0.0",
			BackendKind:  models.BackendEmbedded,
			ModulePath:   "workflows/api_enhancement",
			Tags:         []string{"api", "backend"},
			IsActive:     true,
		},
		summary: "Planned incremental API changes and migration notes",
		files:   []string{"api/changes.md", "api/migration.md"},
	},
	{
		meta: models.WorkflowMetadata{
			Name:         "ui_development",
			WorkflowType: "ui_development",
			Description:  "Designs and implements UI components for a story",
			Version:      "1.0.0",
			BackendKind:  models.BackendEmbedded,
			ModulePath:   "workflows/ui_development",
			Tags:         []string{"ui", "frontend"},
			IsActive:     true,
		},
		summary: "Designed UI components, layouts, and accessibility checks",
		files:   []string{"ui/components.md", "ui/layout.md"},
	},
	{
		meta: models.WorkflowMetadata{
			Name:         "ui_enhancement",
			WorkflowType: "ui_enhancement",
			Description:  "Improves existing UI components and layouts",
			Version:      "1.0.0",
			BackendKind:  models.BackendEmbedded,
			ModulePath:   "workflows/ui_enhancement",
			Tags:         []string{"ui", "frontend"},
			IsActive:     true,
		},
		summary: "Planned UI improvements and visual regression checks",
		files:   []string{"ui/improvements.md"},
	},
}

// RegisterBuiltins wires the built-in handlers into the handler
// registry and returns their metadata for registry registration.
func RegisterBuiltins(handlers *invoker.HandlerRegistry) []models.WorkflowMetadata {
	metas := make([]models.WorkflowMetadata, 0, len(definitions))
	for _, def := range definitions {
		def := def
		handlers.Register(def.meta.ModulePath, def.meta.Name, func() invoker.Handler {
			return &builtin{name: def.meta.Name, summary: def.summary, artifacts: def.files}
		})
		metas = append(metas, def.meta)
	}
	return metas
}

// Registrar accepts workflow metadata registrations.
type Registrar interface {
	Register(meta models.WorkflowMetadata) error
}

// RegisterAll wires the built-in handlers and registers their metadata
// into reg, failing on the first registration error.
func RegisterAll(handlers *invoker.HandlerRegistry, reg Registrar) error {
	for _, meta := range RegisterBuiltins(handlers) {
		if err := reg.Register(meta); err != nil {
			return fmt.Errorf("register builtin workflow %q: %w", meta.Name, err)
		}
	}
	return nil
}
