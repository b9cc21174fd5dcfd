package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flowweaver",
	Short: "Workflow task orchestration engine",
	Long: `Flowweaver turns a markdown user story into an executed batch of
workflow tasks.

A run flows through four stages:
- preprocessor: parses and validates the story structure
- planner: identifies workflows, infers dependencies, picks a strategy
- coordinator: dispatches tasks sequentially, in parallel, or by
  dependency level
- aggregator: merges results, artifacts, and the execution log into a
  final report

Workflows are either embedded handlers or remote HTTP services, defined
in a YAML registry file. Run 'flowweaver run story.md' to execute a
story, or 'flowweaver serve' to expose registered workflows over HTTP.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(registryCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
