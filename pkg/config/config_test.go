package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if diff := cmp.Diff([]string{"**/*.md"}, cfg.Patterns); diff != "" {
		t.Errorf("default patterns mismatch (-want +got):\n%s", diff)
	}
	if len(cfg.Actions) != 0 {
		t.Errorf("default actions = %d, want 0", len(cfg.Actions))
	}
	if cfg.Debounce.Default.Duration() != 2*time.Second {
		t.Errorf("default debounce = %v, want 2s", cfg.Debounce.Default.Duration())
	}
}

func TestConfigValidate(t *testing.T) {
	withAction := func(rule ActionRule) *Config {
		cfg := Default()
		cfg.Actions = Actions{{Pattern: "**/*.md", Rule: rule}}
		return cfg
	}

	tests := []struct {
		name    string
		config  *Config
		wantErr error
	}{
		{
			name:   "valid default config",
			config: Default(),
		},
		{
			name: "no patterns",
			config: func() *Config {
				cfg := Default()
				cfg.Patterns = nil
				return cfg
			}(),
			wantErr: ErrNoPatterns,
		},
		{
			name:    "empty command",
			config:  withAction(ActionRule{Command: "   "}),
			wantErr: ErrEmptyCommand,
		},
		{
			name:    "unknown placeholder",
			config:  withAction(ActionRule{Command: "lint ${path}"}),
			wantErr: ErrUnknownPlaceholder,
		},
		{
			name:   "known placeholders",
			config: withAction(ActionRule{Command: "echo ${file} ${spec} ${dir} ${name} ${ext} ${event} ${root}"}),
		},
		{
			name:    "unknown condition",
			config:  withAction(ActionRule{Command: "echo", Condition: "sometimes"}),
			wantErr: ErrUnknownCondition,
		},
		{
			name:    "debounce and throttle",
			config:  withAction(ActionRule{Command: "echo", Debounce: 100, Throttle: 100}),
			wantErr: ErrDebounceAndThrottle,
		},
		{
			name:    "negative timeout",
			config:  withAction(ActionRule{Command: "echo", Timeout: -1}),
			wantErr: ErrNegativeDelay,
		},
		{
			name: "bad max size",
			config: func() *Config {
				cfg := Default()
				cfg.Logging.MaxSize = "lots"
				return cfg
			}(),
			wantErr: ErrInvalidMaxSize,
		},
		{
			name: "invalid log level",
			config: func() *Config {
				cfg := Default()
				cfg.Logging.Level = "verbose"
				return cfg
			}(),
			wantErr: ErrInvalidLogLevel,
		},
		{
			name: "zero attempts with retry enabled",
			config: func() *Config {
				cfg := Default()
				cfg.Retry.MaxAttempts = 0
				return cfg
			}(),
			wantErr: ErrInvalidMaxAttempts,
		},
		{
			name: "unknown backoff",
			config: func() *Config {
				cfg := Default()
				cfg.Retry.Backoff = "fibonacci"
				return cfg
			}(),
			wantErr: ErrInvalidBackoff,
		},
		{
			name: "malformed ignore glob",
			config: func() *Config {
				cfg := Default()
				cfg.Ignored = []string{"[a-"}
				return cfg
			}(),
			wantErr: ErrInvalidPattern,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadJSONKeepsActionOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
  "enabled": true,
  "patterns": ["**/*.md", "**/*.go"],
  "ignored": ["vendor/**"],
  "actions": {
    "**/*_test.go": {"command": "go test ./${dir}", "retry": true},
    "**/*.go": {"command": "go build ./...", "throttle": 5000},
    "**/*.md": {"command": "echo ${file}", "debounce": 100, "condition": "not-deleted", "description": "echo docs"}
  },
  "debounce": {"default": 500, "perPattern": {"**/*.go": 1500}},
  "logging": {"enabled": true, "level": "warn", "maxSize": "1KB", "rotation": true},
  "retry": {"enabled": true, "maxAttempts": 5, "backoff": "exponential"}
}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	gotOrder := make([]string, 0, len(cfg.Actions))
	for _, a := range cfg.Actions {
		gotOrder = append(gotOrder, a.Pattern)
	}
	wantOrder := []string{"**/*_test.go", "**/*.go", "**/*.md"}
	if diff := cmp.Diff(wantOrder, gotOrder); diff != "" {
		t.Errorf("action order mismatch (-want +got):\n%s", diff)
	}

	md, ok := cfg.Actions.Get("**/*.md")
	if !ok {
		t.Fatal("markdown action missing")
	}
	if diff := cmp.Diff(ActionRule{
		Command:     "echo ${file}",
		Debounce:    100,
		Condition:   ConditionNotDeleted,
		Description: "echo docs",
	}, md); diff != "" {
		t.Errorf("markdown rule mismatch (-want +got):\n%s", diff)
	}

	// Fields absent from the file keep defaults.
	if cfg.Logging.Retention != 5 {
		t.Errorf("Retention = %d, want default 5", cfg.Logging.Retention)
	}
	if size, _ := cfg.Logging.MaxSizeBytes(); size != 1024 {
		t.Errorf("MaxSizeBytes = %d, want 1024", size)
	}

	if d := cfg.DelayFor(cfg.Actions[0]); d != 500*time.Millisecond {
		t.Errorf("DelayFor(test rule) = %v, want default 500ms", d)
	}
	if d := cfg.DelayFor(cfg.Actions[1]); d != 1500*time.Millisecond {
		t.Errorf("DelayFor(go rule) = %v, want per-pattern 1.5s", d)
	}
	if d := cfg.DelayFor(cfg.Actions[2]); d != 100*time.Millisecond {
		t.Errorf("DelayFor(md rule) = %v, want rule override 100ms", d)
	}
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(Default().Patterns, cfg.Patterns); diff != "" {
		t.Errorf("fallback patterns mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewLoader("").LoadFromFile(filepath.Join(dir, "absent.json"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("missing file error = %v, want ErrConfigNotFound", err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"actions": [1, 2]}`), 0600); err != nil {
		t.Fatal(err)
	}
	_, err = NewLoader("").LoadFromFile(bad)
	if !errors.Is(err, ErrInvalidSyntax) {
		t.Errorf("bad file error = %v, want ErrInvalidSyntax", err)
	}

	invalid := filepath.Join(dir, "invalid.json")
	if err := os.WriteFile(invalid, []byte(`{"patterns": []}`), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(invalid); !errors.Is(err, ErrNoPatterns) {
		t.Errorf("empty patterns error = %v, want ErrNoPatterns", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)

			cfg := Default()
			cfg.Actions = Actions{
				{Pattern: "**/*.md", Rule: ActionRule{Command: "echo ${file}", Debounce: 100}},
				{Pattern: "**/*", Rule: ActionRule{Command: "true", Retry: true}},
			}
			cfg.Logging.Level = "debug"

			if err := Save(cfg, path); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			loaded, err := NewLoader(path).LoadFromFile(path)
			if err != nil {
				t.Fatalf("LoadFromFile() error = %v", err)
			}
			if diff := cmp.Diff(cfg, loaded); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	cfg := Default()
	cfg.Patterns = nil

	if err := Save(cfg, filepath.Join(t.TempDir(), "config.json")); !errors.Is(err, ErrNoPatterns) {
		t.Errorf("Save() error = %v, want ErrNoPatterns", err)
	}
}

func TestEnvVarOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "ERROR")
	t.Setenv(EnvLogDir, "/tmp/autowatch-logs")
	t.Setenv(EnvHistoryPath, "/tmp/autowatch.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %s, want error", cfg.Logging.Level)
	}
	if cfg.Logging.Dir != "/tmp/autowatch-logs" {
		t.Errorf("Logging.Dir = %s", cfg.Logging.Dir)
	}
	if cfg.Storage.HistoryPath != "/tmp/autowatch.db" {
		t.Errorf("Storage.HistoryPath = %s", cfg.Storage.HistoryPath)
	}
}

func TestTemplateVars(t *testing.T) {
	got := TemplateVars("run ${spec} --file=${file} ${spec}")
	if diff := cmp.Diff([]string{"spec", "file", "spec"}, got); diff != "" {
		t.Errorf("TemplateVars mismatch (-want +got):\n%s", diff)
	}
}

func BenchmarkValidate(b *testing.B) {
	cfg := Default()
	cfg.Actions = Actions{{Pattern: "**/*.md", Rule: ActionRule{Command: "echo ${file}"}}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := cfg.Validate(); err != nil {
			b.Fatal(err)
		}
	}
}

func TestExpandTemplate(t *testing.T) {
	vars := map[string]string{"file": "docs/a.md", "spec": "login"}
	lookup := func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}

	got, err := ExpandTemplate("gen ${spec} < ${file} && echo ${file}", lookup)
	if err != nil {
		t.Fatalf("ExpandTemplate() error = %v", err)
	}
	if want := "gen login < docs/a.md && echo docs/a.md"; got != want {
		t.Errorf("ExpandTemplate() = %q, want %q", got, want)
	}

	if _, err := ExpandTemplate("echo ${nope}", lookup); !errors.Is(err, ErrUnknownPlaceholder) {
		t.Errorf("ExpandTemplate() error = %v, want ErrUnknownPlaceholder", err)
	}
}
