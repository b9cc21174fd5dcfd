// Package config handles configuration loading for flowweaver.
// It supports XDG config paths, project-level overrides, and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the engine.
type Config struct {
	Invoker     InvokerConfig     `mapstructure:"invoker"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Registry    RegistryConfig    `mapstructure:"registry"`
	Checkpoint  CheckpointConfig  `mapstructure:"checkpoint"`
	Service     ServiceConfig     `mapstructure:"service"`
}

// InvokerConfig holds dispatch and retry settings.
type InvokerConfig struct {
	// Timeout bounds each dispatch attempt.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the total attempts per dispatch, including the first.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the fixed pause between failed attempts.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// CoordinatorConfig holds batch execution settings.
type CoordinatorConfig struct {
	// Timeout bounds a whole batch execution.
	Timeout time.Duration `mapstructure:"timeout"`
}

// RegistryConfig locates workflow definitions.
type RegistryConfig struct {
	// ConfigPath is the YAML file of workflow definitions.
	ConfigPath string `mapstructure:"config_path"`
	// Watch reloads the registry when the definitions file changes.
	Watch bool `mapstructure:"watch"`
	// ValidationRulesPath is the story validation rules file.
	ValidationRulesPath string `mapstructure:"validation_rules_path"`
}

// CheckpointConfig holds state snapshot settings.
type CheckpointConfig struct {
	// Enabled turns per-stage checkpointing on.
	Enabled bool `mapstructure:"enabled"`
	// Path is the SQLite database file. Empty means the XDG default.
	Path string `mapstructure:"path"`
}

// ServiceConfig holds HTTP service settings.
type ServiceConfig struct {
	// Port is the listen port for the workflow service.
	Port int `mapstructure:"port"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables. Precedence (highest to lowest):
// 1. Environment variables (FLOWWEAVER_* prefix)
// 2. Project config (.flowweaver.yaml in current directory or parent)
// 3. User config (~/.config/flowweaver/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Project config overrides the user config.
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("FLOWWEAVER")
	v.AutomaticEnv()
	v.BindEnv("registry.config_path", "FLOWWEAVER_REGISTRY_CONFIG")
	v.BindEnv("service.port", "FLOWWEAVER_SERVICE_PORT")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Registry.ConfigPath = os.ExpandEnv(cfg.Registry.ConfigPath)
	cfg.Checkpoint.Path = os.ExpandEnv(cfg.Checkpoint.Path)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("invoker.timeout", cfg.Invoker.Timeout.String())
	v.Set("invoker.max_retries", cfg.Invoker.MaxRetries)
	v.Set("invoker.retry_delay", cfg.Invoker.RetryDelay.String())
	v.Set("coordinator.timeout", cfg.Coordinator.Timeout.String())
	v.Set("registry.config_path", cfg.Registry.ConfigPath)
	v.Set("registry.watch", cfg.Registry.Watch)
	v.Set("registry.validation_rules_path", cfg.Registry.ValidationRulesPath)
	v.Set("checkpoint.enabled", cfg.Checkpoint.Enabled)
	v.Set("checkpoint.path", cfg.Checkpoint.Path)
	v.Set("service.port", cfg.Service.Port)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("invoker.timeout", "300s")
	v.SetDefault("invoker.max_retries", 3)
	v.SetDefault("invoker.retry_delay", "1s")

	v.SetDefault("coordinator.timeout", "3600s")

	v.SetDefault("registry.config_path", "config/workflows.yaml")
	v.SetDefault("registry.watch", false)
	v.SetDefault("registry.validation_rules_path", "config/validation_rules.yaml")

	v.SetDefault("checkpoint.enabled", false)
	v.SetDefault("checkpoint.path", "")

	v.SetDefault("service.port", 8080)
}

// getUserConfigDir returns the XDG config directory for flowweaver.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "flowweaver")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "flowweaver")
	}
	return filepath.Join(home, ".config", "flowweaver")
}

// findProjectConfig searches for .flowweaver.yaml in the current
// directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".flowweaver.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Invoker: InvokerConfig{
			Timeout:    300 * time.Second,
			MaxRetries: 3,
			RetryDelay: time.Second,
		},
		Coordinator: CoordinatorConfig{
			Timeout: 3600 * time.Second,
		},
		Registry: RegistryConfig{
			ConfigPath:          "config/workflows.yaml",
			ValidationRulesPath: "config/validation_rules.yaml",
		},
		Checkpoint: CheckpointConfig{},
		Service: ServiceConfig{
			Port: 8080,
		},
	}
}
