package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment overrides.
const (
	EnvLogLevel    = "AUTOWATCH_LOG_LEVEL"
	EnvLogDir      = "AUTOWATCH_LOG_DIR"
	EnvHistoryPath = "AUTOWATCH_HISTORY_DB"
)

// Loader provides methods for loading configuration from various sources.
type Loader interface {
	// Load loads configuration with the following precedence:
	// 1. Environment variables
	// 2. Configuration file, if present
	// 3. Default values
	//
	// Returns the merged configuration or an error if validation fails.
	Load() (*Config, error)

	// LoadFromFile loads configuration from a specific file.
	// A missing file is an error.
	LoadFromFile(path string) (*Config, error)
}

// loader implements the Loader interface.
type loader struct {
	configPath string
}

// NewLoader creates a new configuration loader for configPath.
func NewLoader(configPath string) Loader {
	return &loader{
		configPath: configPath,
	}
}

// Load implements Loader.Load.
func (l *loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		fileCfg, err := l.LoadFromFile(l.configPath)
		switch {
		case errors.Is(err, ErrConfigNotFound):
			// Fall back to defaults.
		case err != nil:
			return nil, fmt.Errorf("failed to load config from %s: %w", l.configPath, err)
		default:
			cfg = fileCfg
		}
	}

	cfg = applyEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFromFile implements Loader.LoadFromFile.
//
// Fields absent from the file keep their default values.
func (l *loader) LoadFromFile(path string) (*Config, error) {
	// #nosec G304: path comes from the caller's project layout
	data, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSyntax, err)
	}

	return cfg, nil
}

// applyEnvVars applies environment variable overrides to the configuration.
func applyEnvVars(cfg *Config) *Config {
	result := *cfg

	if level := os.Getenv(EnvLogLevel); level != "" {
		result.Logging.Level = strings.ToLower(level)
	}
	if dir := os.Getenv(EnvLogDir); dir != "" {
		result.Logging.Dir = dir
	}
	if db := os.Getenv(EnvHistoryPath); db != "" {
		result.Storage.HistoryPath = db
	}

	return &result
}

// Load is a convenience function that creates a loader and loads configuration.
//
// Equivalent to:
//
//	return NewLoader(path).Load()
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Save writes the configuration to path, as YAML for .yaml/.yml and JSON
// otherwise.
//
// Creates parent directories if they don't exist.
// File is created with 0600 permissions (read/write for owner only).
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
