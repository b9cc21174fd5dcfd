package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"flowweaver/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify flowweaver configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/flowweaver/config.yaml
Project-specific overrides can be placed in .flowweaver.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("invoker.timeout: %s\n", cfg.Invoker.Timeout)
	fmt.Printf("invoker.max_retries: %d\n", cfg.Invoker.MaxRetries)
	fmt.Printf("invoker.retry_delay: %s\n", cfg.Invoker.RetryDelay)
	fmt.Printf("coordinator.timeout: %s\n", cfg.Coordinator.Timeout)
	fmt.Printf("registry.config_path: %s\n", cfg.Registry.ConfigPath)
	fmt.Printf("registry.watch: %t\n", cfg.Registry.Watch)
	fmt.Printf("registry.validation_rules_path: %s\n", cfg.Registry.ValidationRulesPath)
	fmt.Printf("checkpoint.enabled: %t\n", cfg.Checkpoint.Enabled)
	fmt.Printf("checkpoint.path: %s\n", cfg.Checkpoint.Path)
	fmt.Printf("service.port: %d\n", cfg.Service.Port)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "invoker.timeout":
		return cfg.Invoker.Timeout.String(), nil
	case "invoker.max_retries":
		return strconv.Itoa(cfg.Invoker.MaxRetries), nil
	case "invoker.retry_delay":
		return cfg.Invoker.RetryDelay.String(), nil
	case "coordinator.timeout":
		return cfg.Coordinator.Timeout.String(), nil
	case "registry.config_path":
		return cfg.Registry.ConfigPath, nil
	case "registry.watch":
		return strconv.FormatBool(cfg.Registry.Watch), nil
	case "registry.validation_rules_path":
		return cfg.Registry.ValidationRulesPath, nil
	case "checkpoint.enabled":
		return strconv.FormatBool(cfg.Checkpoint.Enabled), nil
	case "checkpoint.path":
		return cfg.Checkpoint.Path, nil
	case "service.port":
		return strconv.Itoa(cfg.Service.Port), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "invoker.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for invoker.timeout: %w", err)
		}
		cfg.Invoker.Timeout = d
	case "invoker.max_retries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for invoker.max_retries: %w", err)
		}
		cfg.Invoker.MaxRetries = n
	case "invoker.retry_delay":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for invoker.retry_delay: %w", err)
		}
		cfg.Invoker.RetryDelay = d
	case "coordinator.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for coordinator.timeout: %w", err)
		}
		cfg.Coordinator.Timeout = d
	case "registry.config_path":
		cfg.Registry.ConfigPath = value
	case "registry.watch":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for registry.watch: %w", err)
		}
		cfg.Registry.Watch = b
	case "registry.validation_rules_path":
		cfg.Registry.ValidationRulesPath = value
	case "checkpoint.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for checkpoint.enabled: %w", err)
		}
		cfg.Checkpoint.Enabled = b
	case "checkpoint.path":
		cfg.Checkpoint.Path = value
	case "service.port":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for service.port: %w", err)
		}
		cfg.Service.Port = n
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
