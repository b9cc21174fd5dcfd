package registry

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"flowweaver/pkg/models"
)

// configFile is the on-disk shape of a workflow definitions file.
type configFile struct {
	Workflows []models.WorkflowMetadata `yaml:"workflows"`
}

// LoadFile reads workflow definitions from a YAML file.
// The file contains a top-level "workflows" list mapping directly onto
// WorkflowMetadata fields.
func LoadFile(path string) ([]models.WorkflowMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow config: %w", err)
	}

	var cfg configFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse workflow config %s: %w", path, err)
	}

	log.Printf("[registry] loaded %d workflow definitions from %s", len(cfg.Workflows), path)
	return cfg.Workflows, nil
}

// LoadInto loads definitions from a YAML file and registers each into the
// registry. Invalid or duplicate definitions are skipped and collected;
// the registry keeps every definition that passed validation.
func LoadInto(path string, reg *Registry) (registered int, errs []error) {
	metas, err := LoadFile(path)
	if err != nil {
		return 0, []error{err}
	}

	for _, meta := range metas {
		if err := reg.Register(meta); err != nil {
			log.Printf("[registry] failed to register workflow %q: %v", meta.Name, err)
			errs = append(errs, err)
			continue
		}
		registered++
	}

	log.Printf("[registry] loading complete: %d registered, %d failed", registered, len(errs))
	return registered, errs
}

// ValidationReport summarizes a registry consistency check.
type ValidationReport struct {
	Valid             bool
	TotalWorkflows    int
	EmbeddedWorkflows int
	RemoteWorkflows   int
	WorkflowTypes     []string
	Errors            []string
}

// Validate checks the registry for consistency and completeness.
func Validate(reg *Registry) ValidationReport {
	report := ValidationReport{
		Valid:             true,
		TotalWorkflows:    reg.Len(),
		EmbeddedWorkflows: len(reg.ListByBackend(models.BackendEmbedded)),
		RemoteWorkflows:   len(reg.ListByBackend(models.BackendRemote)),
		WorkflowTypes:     reg.ListTypes(),
	}

	for _, meta := range reg.ListAll() {
		if err := meta.Validate(); err != nil {
			report.Valid = false
			report.Errors = append(report.Errors, err.Error())
		}
	}

	return report
}

// Watch reloads the registry whenever the workflow definitions file
// changes. The swap is atomic via Registry.Replace, so concurrent readers
// see either the old or the new contents. The watcher stops when the
// returned function is called.
func Watch(path string, reg *Registry) (stop func() error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory rather than the file so editors that replace
	// the file (rename + create) don't break the watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	target := filepath.Clean(path)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}

				metas, err := LoadFile(path)
				if err != nil {
					log.Printf("[registry] reload failed, keeping previous contents: %v", err)
					continue
				}
				if errs := reg.Replace(metas); len(errs) > 0 {
					for _, e := range errs {
						log.Printf("[registry] reload skipped definition: %v", e)
					}
				}
				log.Printf("[registry] reloaded %d workflows from %s", reg.Len(), path)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[registry] watch error: %v", err)
			}
		}
	}()

	return watcher.Close, nil
}
