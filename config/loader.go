package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	// ProjectConfigFile is the name of the project-level config file.
	ProjectConfigFile = "semlogic.yaml"
	// UserConfigDir is the directory for user-level config, relative to home.
	UserConfigDir = ".config/semlogic"
	// UserConfigFile is the name of the user-level config file.
	UserConfigFile = "config.yaml"
	// DotEnvFile is loaded from the working directory before env overrides.
	DotEnvFile = ".env"
)

// Environment variables that override file configuration.
const (
	EnvModel       = "SEMLOGIC_MODEL"
	EnvNATSURL     = "SEMLOGIC_NATS_URL"
	EnvStoragePath = "SEMLOGIC_STORAGE_PATH"
	EnvMetricsAddr = "SEMLOGIC_METRICS_ADDR"
	EnvTemperature = "SEMLOGIC_TEMPERATURE"
)

// Loader handles configuration loading with layered precedence.
type Loader struct {
	logger  *slog.Logger
	homeDir string
	workDir string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithHomeDir overrides the home directory used to find the user config.
func WithHomeDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.homeDir = dir
	}
}

// WithWorkDir overrides the directory the project config search and .env
// loading start from.
func WithWorkDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.workDir = dir
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	if l.homeDir == "" {
		l.homeDir, _ = os.UserHomeDir()
	}
	if l.workDir == "" {
		l.workDir, _ = os.Getwd()
	}
	return l
}

// Load loads configuration with layered precedence:
//  1. Defaults
//  2. User config (~/.config/semlogic/config.yaml)
//  3. Project config (semlogic.yaml in the work directory or a parent)
//  4. Environment variables, after loading .env from the work directory
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	if path := l.userConfigPath(); path != "" {
		overlay, err := loadOverlay(path)
		switch {
		case err == nil:
			l.logger.Debug("Loaded user config", slog.String("path", path))
			config.Merge(overlay)
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	if path := l.findProjectConfig(); path != "" {
		overlay, err := loadOverlay(path)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded project config", slog.String("path", path))
		config.Merge(overlay)
	} else {
		l.logger.Debug("No project config found")
	}

	if err := l.loadDotEnv(); err != nil {
		return nil, err
	}
	if err := applyEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist.
func (l *Loader) EnsureUserConfig() error {
	path := l.userConfigPath()
	if path == "" {
		return fmt.Errorf("no home directory")
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := DefaultConfig().SaveToFile(path); err != nil {
		return err
	}

	l.logger.Info("Created default user config", slog.String("path", path))
	return nil
}

func (l *Loader) userConfigPath() string {
	if l.homeDir == "" {
		return ""
	}
	return filepath.Join(l.homeDir, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for semlogic.yaml in the work directory and its
// parents.
func (l *Loader) findProjectConfig() string {
	if l.workDir == "" {
		return ""
	}

	dir := l.workDir
	for {
		path := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadDotEnv loads .env into the process environment. Variables already set
// take precedence over the file.
func (l *Loader) loadDotEnv() error {
	if l.workDir == "" {
		return nil
	}
	path := filepath.Join(l.workDir, DotEnvFile)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	l.logger.Debug("Loaded environment file", slog.String("path", path))
	return nil
}

func applyEnv(c *Config) error {
	if v := os.Getenv(EnvModel); v != "" {
		c.Model.Default = v
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv(EnvStoragePath); v != "" {
		c.Storage.Path = v
		c.Storage.Enabled = true
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv(EnvTemperature); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTemperature, err)
		}
		c.Model.Temperature = t
	}
	return nil
}
