// Package config provides configuration loading and management for semlogic.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete semlogic configuration.
type Config struct {
	Model   ModelConfig   `yaml:"model"`
	Budgets BudgetConfig  `yaml:"budgets"`
	Storage StorageConfig `yaml:"storage"`
	NATS    NATSConfig    `yaml:"nats"`
	Metrics MetricsConfig `yaml:"metrics"`
	Watch   WatchConfig   `yaml:"watch"`
	Eval    EvalConfig    `yaml:"eval"`
}

// ModelConfig configures model selection.
type ModelConfig struct {
	// Default is the model token used when --model is not given
	// (an endpoint name or alias from the registry, e.g. "qwen").
	Default string `yaml:"default"`
	// Endpoint overrides the URL of the default model's endpoint.
	Endpoint string `yaml:"endpoint,omitempty"`
	// Temperature controls randomness (0.0-1.0, default: 0).
	Temperature float64 `yaml:"temperature"`
	// Timeout bounds one whole compile call.
	Timeout time.Duration `yaml:"timeout"`
	// RegistryFile optionally points to a JSON model registry.
	RegistryFile string `yaml:"registry_file,omitempty"`
}

// BudgetConfig holds the output token budget of each completion stage.
type BudgetConfig struct {
	Reasoning  int `yaml:"reasoning"`
	Pseudocode int `yaml:"pseudocode"`
	Code       int `yaml:"code"`
}

// StorageConfig configures the SQLite audit store.
type StorageConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// NATSConfig configures the compile service connection.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Queue   string `yaml:"queue"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables it.
	Addr string `yaml:"addr"`
}

// WatchConfig configures the instruction-file watcher.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	// Patterns are doublestar globs, relative to the watched directory.
	Patterns []string `yaml:"patterns"`
}

// EvalConfig configures the evaluation harness.
type EvalConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Default:     "qwen",
			Temperature: 0,
			Timeout:     5 * time.Minute,
		},
		Budgets: BudgetConfig{
			Reasoning:  512,
			Pseudocode: 500,
			Code:       700,
		},
		Storage: StorageConfig{
			Enabled: false,
			Path:    "semlogic.db",
		},
		NATS: NATSConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "semlogic.compile.request",
			Queue:   "semlogic-compilers",
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
			Patterns: []string{"**/*.txt", "**/*.rule"},
		},
		Eval: EvalConfig{
			Concurrency: 4,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Model.Default == "" {
		return fmt.Errorf("model.default is required")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return fmt.Errorf("model.temperature must be between 0 and 1")
	}
	if c.Model.Timeout < 0 {
		return fmt.Errorf("model.timeout must not be negative")
	}
	if c.Budgets.Reasoning <= 0 || c.Budgets.Pseudocode <= 0 || c.Budgets.Code <= 0 {
		return fmt.Errorf("budgets must be positive")
	}
	if c.Storage.Enabled && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required when storage is enabled")
	}
	if c.NATS.Subject == "" {
		return fmt.Errorf("nats.subject is required")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	if c.Eval.Concurrency < 1 {
		return fmt.Errorf("eval.concurrency must be at least 1")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	return config, nil
}

// loadOverlay parses a YAML file into a zero Config, so only the keys the
// file sets are non-zero and Merge can layer it.
func loadOverlay(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &overlay, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one; non-zero values in other win.
// Booleans can only be switched on by an overlay.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Model.Default != "" {
		c.Model.Default = other.Model.Default
	}
	if other.Model.Endpoint != "" {
		c.Model.Endpoint = other.Model.Endpoint
	}
	if other.Model.Temperature != 0 {
		c.Model.Temperature = other.Model.Temperature
	}
	if other.Model.Timeout != 0 {
		c.Model.Timeout = other.Model.Timeout
	}
	if other.Model.RegistryFile != "" {
		c.Model.RegistryFile = other.Model.RegistryFile
	}

	if other.Budgets.Reasoning != 0 {
		c.Budgets.Reasoning = other.Budgets.Reasoning
	}
	if other.Budgets.Pseudocode != 0 {
		c.Budgets.Pseudocode = other.Budgets.Pseudocode
	}
	if other.Budgets.Code != 0 {
		c.Budgets.Code = other.Budgets.Code
	}

	if other.Storage.Enabled {
		c.Storage.Enabled = true
	}
	if other.Storage.Path != "" {
		c.Storage.Path = other.Storage.Path
	}

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.Subject != "" {
		c.NATS.Subject = other.NATS.Subject
	}
	if other.NATS.Queue != "" {
		c.NATS.Queue = other.NATS.Queue
	}

	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}

	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if len(other.Watch.Patterns) > 0 {
		c.Watch.Patterns = slices.Clone(other.Watch.Patterns)
	}

	if other.Eval.Concurrency != 0 {
		c.Eval.Concurrency = other.Eval.Concurrency
	}
}
