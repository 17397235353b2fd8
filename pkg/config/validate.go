package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/0xmhha/autowatch/pkg/pattern"
)

// placeholderRe finds ${name} references in a command template.
var placeholderRe = regexp.MustCompile(`\$\{([^}]*)\}`)

// TemplateVars returns the placeholder names referenced by command, in order.
func TemplateVars(command string) []string {
	matches := placeholderRe.FindAllStringSubmatch(command, -1)
	vars := make([]string, 0, len(matches))
	for _, m := range matches {
		vars = append(vars, m[1])
	}
	return vars
}

// ExpandTemplate replaces every ${name} in command with lookup(name).
// A name lookup does not know is an ErrUnknownPlaceholder.
func ExpandTemplate(command string, lookup func(name string) (string, bool)) (string, error) {
	var missing string
	out := placeholderRe.ReplaceAllStringFunc(command, func(ref string) string {
		name := ref[2 : len(ref)-1]
		v, ok := lookup(name)
		if !ok {
			if missing == "" {
				missing = name
			}
			return ref
		}
		return v
	})
	if missing != "" {
		return "", fmt.Errorf("%w: ${%s}", ErrUnknownPlaceholder, missing)
	}
	return out, nil
}

// Validate checks if the configuration satisfies all invariants.
//
// The first violation is returned, wrapped with the offending key.
//
// Thread-safety: This method is read-only and thread-safe.
func (c *Config) Validate() error {
	if len(c.Patterns) == 0 {
		return ErrNoPatterns
	}
	for _, p := range append(append([]string{}, c.Patterns...), c.Ignored...) {
		if _, err := pattern.NewGlob(p); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidPattern, p, err)
		}
	}

	for _, act := range c.Actions {
		if err := validateAction(act); err != nil {
			return fmt.Errorf("action %q: %w", act.Pattern, err)
		}
	}

	if c.Debounce.Default < 0 {
		return fmt.Errorf("debounce.default: %w", ErrNegativeDelay)
	}
	for p, d := range c.Debounce.PerPattern {
		if d < 0 {
			return fmt.Errorf("debounce.perPattern %q: %w", p, ErrNegativeDelay)
		}
	}

	if err := c.Logging.validate(); err != nil {
		return err
	}
	if err := c.Retry.validate(); err != nil {
		return err
	}

	if c.Monitor.MaxRetries < 0 {
		return ErrInvalidMonitorRetries
	}
	if c.Monitor.StabilityWindow < 0 || c.Monitor.ReadyTimeout < 0 || c.Monitor.RetryDelay < 0 {
		return fmt.Errorf("monitor: %w", ErrNegativeDelay)
	}

	if !validLevel(c.Diagnostics.Level) {
		return fmt.Errorf("diagnostics: %w", ErrInvalidLogLevel)
	}
	if f := c.Diagnostics.Format; f != "" && f != "text" && f != "json" {
		return ErrInvalidLogFormat
	}

	return nil
}

func validateAction(act Action) error {
	if _, err := pattern.NewGlob(act.Pattern); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}

	rule := act.Rule
	if strings.TrimSpace(rule.Command) == "" {
		return ErrEmptyCommand
	}
	for _, v := range TemplateVars(rule.Command) {
		if !slices.Contains(Placeholders, v) {
			return fmt.Errorf("%w: ${%s}", ErrUnknownPlaceholder, v)
		}
	}

	if rule.Condition != "" && !slices.Contains(Conditions, rule.Condition) {
		return fmt.Errorf("%w: %q", ErrUnknownCondition, rule.Condition)
	}

	if rule.Debounce < 0 || rule.Throttle < 0 || rule.Timeout < 0 {
		return ErrNegativeDelay
	}
	if rule.Debounce > 0 && rule.Throttle > 0 {
		return ErrDebounceAndThrottle
	}
	return nil
}

func (l LoggingConfig) validate() error {
	if !validLevel(l.Level) {
		return fmt.Errorf("logging: %w", ErrInvalidLogLevel)
	}
	size, err := l.MaxSizeBytes()
	if err != nil || size <= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidMaxSize, l.MaxSize)
	}
	if l.Retention < 0 {
		return ErrInvalidRetention
	}
	return nil
}

func (r RetryConfig) validate() error {
	if r.Enabled && r.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}
	switch r.Backoff {
	case "", BackoffExponential, BackoffFixed:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackoff, r.Backoff)
	}
	if r.BaseDelay < 0 || r.MaxDelay < 0 {
		return fmt.Errorf("retry: %w", ErrNegativeDelay)
	}
	return nil
}

func validLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
