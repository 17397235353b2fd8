package config

import "path/filepath"

// Project-relative locations.
const (
	// DirName is the per-project state directory.
	DirName = ".autowatch"

	// FileName is the default configuration file inside DirName.
	FileName = "config.json"
)

// DefaultPath returns the configuration path for a project root.
func DefaultPath(root string) string {
	return filepath.Join(root, DirName, FileName)
}

// Default returns the built-in configuration: watch markdown files, no
// actions, 2s debounce.
func Default() *Config {
	return &Config{
		Enabled:  true,
		Patterns: []string{"**/*.md"},
		Ignored: []string{
			"**/node_modules/**",
			"**/.git/**",
			DirName + "/**",
		},
		Actions: Actions{},
		Debounce: DebounceConfig{
			Default: 2000,
		},
		Logging: LoggingConfig{
			Enabled:   true,
			Level:     "info",
			MaxSize:   "10MB",
			Rotation:  true,
			Dir:       filepath.Join(DirName, "logs"),
			Retention: 5,
		},
		Retry: RetryConfig{
			Enabled:     true,
			MaxAttempts: 3,
			Backoff:     BackoffExponential,
			BaseDelay:   1000,
			MaxDelay:    30000,
		},
		Monitor: MonitorConfig{
			StabilityWindow: 200,
			ReadyTimeout:    10000,
			MaxRetries:      3,
			RetryDelay:      1000,
		},
		Storage: StorageConfig{
			HistoryPath: filepath.Join(DirName, "history.db"),
		},
		Metrics: MetricsConfig{
			ManualActionCost: 30000,
		},
		Diagnostics: DiagnosticsConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}
