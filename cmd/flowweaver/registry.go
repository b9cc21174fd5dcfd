package main

import (
	"fmt"
	"strings"

	"flowweaver/internal/config"
	"flowweaver/internal/registry"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect the workflow registry",
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistryForInspection()
		if err != nil {
			return err
		}

		metas := reg.ListAll()
		if len(metas) == 0 {
			fmt.Println("No workflows registered")
			return nil
		}

		fmt.Printf("%-20s %-20s %-10s %-8s %s\n", "NAME", "TYPE", "BACKEND", "ACTIVE", "VERSION")
		for _, meta := range metas {
			active := color.GreenString("yes")
			if !meta.IsActive {
				active = color.RedString("no")
			}
			fmt.Printf("%-20s %-20s %-10s %-8s %s\n",
				meta.Name, meta.WorkflowType, meta.BackendKind, active, meta.Version)
		}
		return nil
	},
}

var registryValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the registry for consistency",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistryForInspection()
		if err != nil {
			return err
		}

		report := registry.Validate(reg)
		fmt.Printf("Workflows: %d (%d embedded, %d remote)\n",
			report.TotalWorkflows, report.EmbeddedWorkflows, report.RemoteWorkflows)
		fmt.Printf("Types: %s\n", strings.Join(report.WorkflowTypes, ", "))

		if !report.Valid {
			for _, e := range report.Errors {
				printStatus("✗", e, color.FgRed)
			}
			return fmt.Errorf("registry validation failed with %d errors", len(report.Errors))
		}
		printStatus("✓", "Registry is valid", color.FgGreen)
		return nil
	},
}

func init() {
	registryCmd.AddCommand(registryListCmd)
	registryCmd.AddCommand(registryValidateCmd)
	registryCmd.PersistentFlags().StringVar(&runRegistryPath, "registry", "", "Workflow definitions file (overrides config)")
}

// loadRegistryForInspection builds the same registry the run and serve
// commands use, without the invoker.
func loadRegistryForInspection() (*registry.Registry, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if runRegistryPath != "" {
		cfg.Registry.ConfigPath = runRegistryPath
	}

	reg, _, err := buildRegistry(cfg)
	return reg, err
}
