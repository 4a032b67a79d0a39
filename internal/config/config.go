// Package config defines the maquette configuration, loaded through viper
// from config files, environment variables, and flags.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete maquette configuration
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Tools    ToolsConfig    `mapstructure:"tools"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// StorageConfig controls where session data lives
type StorageConfig struct {
	// BaseDir is the project directory under which .maquette/sessions is
	// created. Defaults to the current working directory.
	BaseDir string `mapstructure:"base_dir"`
}

// EngineConfig controls the connection to the 3D engine's command socket
type EngineConfig struct {
	// Addr is the host:port of the engine command socket (default: "localhost:9876")
	Addr string `mapstructure:"addr"`
}

// PipelineConfig tunes the run loop
type PipelineConfig struct {
	// RetryBudget is the maximum number of attempts per stage task (default: 3)
	RetryBudget int `mapstructure:"retry_budget"`
	// RetryDelaySeconds seeds the exponential backoff for transient failures (default: 2)
	RetryDelaySeconds int `mapstructure:"retry_delay_seconds"`
	// InvokeTimeoutSeconds bounds one capability invocation attempt (default: 120)
	InvokeTimeoutSeconds int `mapstructure:"invoke_timeout_seconds"`
	// ProgressionWorkers bounds concurrency across progression sub-stages (default: 3)
	ProgressionWorkers int `mapstructure:"progression_workers"`
}

// ToolsConfig points at the external tool backends
type ToolsConfig struct {
	// CapabilityEndpoint is the base URL of the specialist backend. Each
	// capability is invoked at {endpoint}/invoke/{name}. Empty disables
	// remote capabilities.
	CapabilityEndpoint string `mapstructure:"capability_endpoint"`
	// ImageEndpoint is the URL of the concept image backend. Empty disables
	// concept image generation.
	ImageEndpoint string `mapstructure:"image_endpoint"`
}

// LoggingConfig controls the session debug log
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			BaseDir: ".",
		},
		Engine: EngineConfig{
			Addr: "localhost:9876",
		},
		Pipeline: PipelineConfig{
			RetryBudget:          3,
			RetryDelaySeconds:    2,
			InvokeTimeoutSeconds: 120,
			ProgressionWorkers:   3,
		},
		Tools:   ToolsConfig{},
		Logging: LoggingConfig{Level: "info"},
	}
}

// SetDefaults registers all default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("storage.base_dir", defaults.Storage.BaseDir)

	viper.SetDefault("engine.addr", defaults.Engine.Addr)

	viper.SetDefault("pipeline.retry_budget", defaults.Pipeline.RetryBudget)
	viper.SetDefault("pipeline.retry_delay_seconds", defaults.Pipeline.RetryDelaySeconds)
	viper.SetDefault("pipeline.invoke_timeout_seconds", defaults.Pipeline.InvokeTimeoutSeconds)
	viper.SetDefault("pipeline.progression_workers", defaults.Pipeline.ProgressionWorkers)

	viper.SetDefault("tools.capability_endpoint", defaults.Tools.CapabilityEndpoint)
	viper.SetDefault("tools.image_endpoint", defaults.Tools.ImageEndpoint)

	viper.SetDefault("logging.level", defaults.Logging.Level)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// RetryDelay returns the configured backoff seed as a duration.
func (p *PipelineConfig) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelaySeconds) * time.Second
}

// InvokeTimeout returns the configured invocation bound as a duration.
func (p *PipelineConfig) InvokeTimeout() time.Duration {
	return time.Duration(p.InvokeTimeoutSeconds) * time.Second
}
