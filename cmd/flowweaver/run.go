package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"flowweaver/internal/checkpoint"
	"flowweaver/internal/config"
	"flowweaver/internal/coordinator"
	"flowweaver/internal/invoker"
	"flowweaver/internal/pipeline"
	"flowweaver/internal/planner"
	"flowweaver/internal/preprocessor"
	"flowweaver/internal/registry"
	"flowweaver/internal/workflows"
	"flowweaver/pkg/models"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	runRegistryPath string
	runRulesPath    string
	runCheckpoint   bool
	runJSONOutput   bool
	runOutputPath   string
)

var runCmd = &cobra.Command{
	Use:   "run [story-file]",
	Short: "Execute a user story through the pipeline",
	Long: `Run a markdown user story through the full pipeline: parse the
story, plan workflow tasks, execute them, and print the aggregated
report.

The story is read from the given file, or from stdin when no file is
given. Workflow definitions come from the registry config file plus the
built-in embedded workflows.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStory,
}

func init() {
	runCmd.Flags().StringVar(&runRegistryPath, "registry", "", "Workflow definitions file (overrides config)")
	runCmd.Flags().StringVar(&runRulesPath, "rules", "", "Story validation rules file (overrides config)")
	runCmd.Flags().BoolVar(&runCheckpoint, "checkpoint", false, "Save per-stage state snapshots")
	runCmd.Flags().BoolVar(&runJSONOutput, "json", false, "Print the full report as JSON")
	runCmd.Flags().StringVar(&runOutputPath, "output", "", "Also write the report JSON to a file")
}

func runStory(cmd *cobra.Command, args []string) error {
	story, err := readStory(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if runRegistryPath != "" {
		cfg.Registry.ConfigPath = runRegistryPath
	}
	if runRulesPath != "" {
		cfg.Registry.ValidationRulesPath = runRulesPath
	}
	if runCheckpoint {
		cfg.Checkpoint.Enabled = true
	}

	reg, inv, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	rules, err := preprocessor.LoadRules(cfg.Registry.ValidationRulesPath)
	if err != nil {
		return fmt.Errorf("loading validation rules: %w", err)
	}

	var checkpoints pipeline.Checkpointer
	if cfg.Checkpoint.Enabled {
		path := cfg.Checkpoint.Path
		if path == "" {
			path = checkpoint.DefaultPath()
		}
		store, err := checkpoint.Open(path)
		if err != nil {
			return fmt.Errorf("opening checkpoint store: %w", err)
		}
		defer store.Close()
		checkpoints = store
	}

	pipe := pipeline.New(
		preprocessor.New(rules),
		planner.New(reg, nil),
		coordinator.New(reg, inv, cfg.Coordinator.Timeout),
		checkpoints,
	)

	report := pipe.Run(context.Background(), story)

	if runJSONOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
	} else {
		printReport(report)
	}

	if runOutputPath != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		if err := os.WriteFile(runOutputPath, data, 0644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	}

	if report.Status == models.ResultFailure {
		return fmt.Errorf("run %s failed", report.RunID)
	}
	return nil
}

// readStory reads the story from the file argument, or stdin when no
// argument is given.
func readStory(args []string) (string, error) {
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("reading story file: %w", err)
		}
		return string(data), nil
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading story from stdin: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("no story given: pass a file or pipe one to stdin")
	}
	return string(data), nil
}

// buildRegistry assembles the workflow registry and invoker: built-in
// embedded workflows first, then definitions from the config file.
func buildRegistry(cfg *config.Config) (*registry.Registry, *invoker.Invoker, error) {
	reg := registry.New()
	handlers := invoker.NewHandlerRegistry()

	if err := workflows.RegisterAll(handlers, reg); err != nil {
		return nil, nil, err
	}

	if _, err := os.Stat(cfg.Registry.ConfigPath); err == nil {
		registered, errs := registry.LoadInto(cfg.Registry.ConfigPath, reg)
		for _, e := range errs {
			printStatus("⚠", e.Error(), color.FgYellow)
		}
		if registered > 0 {
			printStatus("✓", fmt.Sprintf("Loaded %d workflows from %s", registered, cfg.Registry.ConfigPath), color.FgGreen)
		}
	}

	inv := invoker.New(handlers, invoker.Config{
		Timeout: cfg.Invoker.Timeout,
		Retry: invoker.RetryPolicy{
			MaxAttempts: cfg.Invoker.MaxRetries,
			Delay:       cfg.Invoker.RetryDelay,
		},
	})
	return reg, inv, nil
}

// printReport renders the aggregated report for a terminal.
func printReport(report pipeline.Report) {
	fmt.Println()
	switch report.Status {
	case models.ResultSuccess:
		printStatus("✓", pipeline.Describe(report), color.FgGreen)
	case models.ResultPartial:
		printStatus("⚠", pipeline.Describe(report), color.FgYellow)
	default:
		printStatus("✗", pipeline.Describe(report), color.FgRed)
	}

	if report.Error != nil {
		fmt.Printf("\n%s stage error: %s\n", report.Error.Component, report.Error.Message)
	}

	if len(report.Results) > 0 {
		fmt.Println("\nTasks:")
		ids := make([]string, 0, len(report.Results))
		for id := range report.Results {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			result := report.Results[id]
			if result.Succeeded() {
				printStatus("✓", fmt.Sprintf("%s (%s) %.2fs", id, result.WorkflowName, result.ExecutionTimeSeconds), color.FgGreen)
			} else {
				printStatus("✗", fmt.Sprintf("%s (%s): %s", id, result.WorkflowName, result.Error), color.FgRed)
			}
		}
	}

	if len(report.Artifacts) > 0 {
		fmt.Println("\nArtifacts:")
		for _, artifact := range report.Artifacts {
			fmt.Printf("  %s\n", artifact)
		}
	}

	fmt.Printf("\nCompleted in %.2fs\n", report.DurationSeconds)
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
