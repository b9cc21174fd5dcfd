package main

import (
	"os"
	"path/filepath"
	"testing"

	"flowweaver/internal/config"
)

func TestReadStoryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "story.md")
	if err := os.WriteFile(path, []byte("# Story\nAs a user"), 0644); err != nil {
		t.Fatalf("write story: %v", err)
	}

	story, err := readStory([]string{path})
	if err != nil {
		t.Fatalf("readStory failed: %v", err)
	}
	if story != "# Story\nAs a user" {
		t.Errorf("unexpected story content %q", story)
	}
}

func TestReadStoryMissingFile(t *testing.T) {
	if _, err := readStory([]string{"/nonexistent/story.md"}); err == nil {
		t.Error("expected error for missing story file")
	}
}

func TestBuildRegistryIncludesBuiltins(t *testing.T) {
	cfg := config.Default()
	cfg.Registry.ConfigPath = filepath.Join(t.TempDir(), "absent.yaml")

	reg, inv, err := buildRegistry(cfg)
	if err != nil {
		t.Fatalf("buildRegistry failed: %v", err)
	}
	if inv == nil {
		t.Fatal("expected an invoker")
	}
	if reg.Len() != 4 {
		t.Errorf("expected 4 builtin workflows, got %d", reg.Len())
	}
}

func TestBuildRegistryLoadsDefinitionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflows.yaml")
	content := `workflows:
  - name: security_review
    workflow_type: security_review
    version: 1.0.0
    backend_kind: remote
    service_url: http://localhost
    service_port: 8081
    is_active: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write definitions: %v", err)
	}

	cfg := config.Default()
	cfg.Registry.ConfigPath = path

	reg, _, err := buildRegistry(cfg)
	if err != nil {
		t.Fatalf("buildRegistry failed: %v", err)
	}
	if reg.Len() != 5 {
		t.Errorf("expected 4 builtins plus 1 from file, got %d", reg.Len())
	}
	if _, ok := reg.Get("security_review"); !ok {
		t.Error("expected security_review registered from file")
	}
}
