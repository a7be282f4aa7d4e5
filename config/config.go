// Package config provides configuration loading and management for the
// nova pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete nova configuration
type Config struct {
	Input    InputConfig    `yaml:"input"`
	Output   OutputConfig   `yaml:"output"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	NATS     NATSConfig     `yaml:"nats"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Watch    WatchConfig    `yaml:"watch"`
}

// InputConfig configures the document source tree
type InputConfig struct {
	// Root is the input directory (default: current directory)
	Root string `yaml:"root"`
	// Include is the list of doublestar glob patterns to pick up
	// (empty = every file)
	Include []string `yaml:"include"`
	// Exclude is the list of doublestar glob patterns to skip
	Exclude []string `yaml:"exclude"`
}

// OutputConfig configures where derived artifacts are written
type OutputConfig struct {
	// Dir is the root for phase outputs and metadata (default: .nova)
	Dir string `yaml:"dir"`
}

// PipelineConfig configures run behavior
type PipelineConfig struct {
	// Workers is the worker pool size (default: 4)
	Workers int `yaml:"workers"`
	// PhaseTimeout bounds one file in one phase (0 = no timeout)
	PhaseTimeout time.Duration `yaml:"phase_timeout"`
}

// NATSConfig configures optional event publishing
type NATSConfig struct {
	// URL is the NATS server URL (empty = eventing disabled)
	URL string `yaml:"url"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	// Enabled turns on metric collection
	Enabled bool `yaml:"enabled"`
	// Listen is the metrics HTTP listen address
	Listen string `yaml:"listen"`
}

// WatchConfig configures watch mode
type WatchConfig struct {
	// Debounce is how long to wait after the last filesystem event
	// before re-running (default: 2s)
	Debounce time.Duration `yaml:"debounce"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Input: InputConfig{
			Root:    ".",
			Exclude: []string{"**/.*"},
		},
		Output: OutputConfig{
			Dir: ".nova",
		},
		Pipeline: PipelineConfig{
			Workers:      4,
			PhaseTimeout: 2 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":9190",
		},
		Watch: WatchConfig{
			Debounce: 2 * time.Second,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Input.Root == "" {
		return fmt.Errorf("input.root is required")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be positive")
	}
	if c.Pipeline.PhaseTimeout < 0 {
		return fmt.Errorf("pipeline.phase_timeout must not be negative")
	}
	if c.Watch.Debounce <= 0 {
		return fmt.Errorf("watch.debounce must be positive")
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics are enabled")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Input
	if other.Input.Root != "" {
		c.Input.Root = other.Input.Root
	}
	if len(other.Input.Include) > 0 {
		c.Input.Include = other.Input.Include
	}
	if len(other.Input.Exclude) > 0 {
		c.Input.Exclude = other.Input.Exclude
	}

	// Output
	if other.Output.Dir != "" {
		c.Output.Dir = other.Output.Dir
	}

	// Pipeline
	if other.Pipeline.Workers != 0 {
		c.Pipeline.Workers = other.Pipeline.Workers
	}
	if other.Pipeline.PhaseTimeout != 0 {
		c.Pipeline.PhaseTimeout = other.Pipeline.PhaseTimeout
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}

	// Metrics
	if other.Metrics.Enabled {
		c.Metrics.Enabled = true
	}
	if other.Metrics.Listen != "" {
		c.Metrics.Listen = other.Metrics.Listen
	}

	// Watch
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
}
