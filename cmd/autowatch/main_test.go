package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/0xmhha/autowatch/pkg/config"
	"github.com/0xmhha/autowatch/pkg/dashboard"
	"github.com/0xmhha/autowatch/pkg/display"
	"github.com/0xmhha/autowatch/pkg/session"
)

var testGlobal = globalOptions{configPath: "/test/config.json", root: "/test"}

// TestNewLogsCommand tests logs command flag parsing.
func TestNewLogsCommand(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantCmd   logsCommand
		wantError bool
	}{
		{
			name:    "default flags",
			args:    []string{},
			wantCmd: logsCommand{global: testGlobal, n: 20, format: display.FormatTable},
		},
		{
			name:    "count and follow",
			args:    []string{"-n", "5", "-f"},
			wantCmd: logsCommand{global: testGlobal, n: 5, follow: true, format: display.FormatTable},
		},
		{
			name:    "json format",
			args:    []string{"-format", "json"},
			wantCmd: logsCommand{global: testGlobal, n: 20, format: display.FormatJSON},
		},
		{
			name:      "negative count",
			args:      []string{"-n", "-1"},
			wantError: true,
		},
		{
			name:      "unknown format",
			args:      []string{"-format", "xml"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := newLogsCommand(testGlobal, tt.args)
			if (err != nil) != tt.wantError {
				t.Fatalf("newLogsCommand() error = %v, wantError %v", err, tt.wantError)
			}
			if tt.wantError {
				return
			}
			if *cmd != tt.wantCmd {
				t.Errorf("newLogsCommand() = %+v, want %+v", *cmd, tt.wantCmd)
			}
		})
	}
}

// TestNewRunCommand tests run command flag parsing.
func TestNewRunCommand(t *testing.T) {
	cmd, err := newRunCommand(testGlobal, []string{"-events"})
	if err != nil {
		t.Fatalf("newRunCommand() error = %v", err)
	}
	if !cmd.events {
		t.Error("events = false, want true")
	}

	cmd, err = newRunCommand(testGlobal, nil)
	if err != nil {
		t.Fatalf("newRunCommand() error = %v", err)
	}
	if cmd.events {
		t.Error("events = true by default")
	}
	if cmd.live || cmd.refresh != dashboard.DefaultRefreshInterval {
		t.Errorf("live = %v, refresh = %s; want false, %s", cmd.live, cmd.refresh, dashboard.DefaultRefreshInterval)
	}

	cmd, err = newRunCommand(testGlobal, []string{"-live", "-refresh", "250ms"})
	if err != nil {
		t.Fatalf("newRunCommand() error = %v", err)
	}
	if !cmd.live || cmd.refresh != 250*time.Millisecond {
		t.Errorf("live = %v, refresh = %s; want true, 250ms", cmd.live, cmd.refresh)
	}

	for _, args := range [][]string{
		{"-refresh", "0s"},
		{"-live", "-events"},
	} {
		if _, err := newRunCommand(testGlobal, args); err == nil {
			t.Errorf("newRunCommand(%v) expected error", args)
		}
	}
}

// TestRenderUpdate tests the dashboard frame.
func TestRenderUpdate(t *testing.T) {
	u := dashboard.Update{
		Timestamp: time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC),
		Status:    session.Status{State: "running", Root: "/work", EventsProcessed: 7},
		Delta:     dashboard.Delta{Events: 2, Actions: 1},
	}

	var buf bytes.Buffer
	if err := renderUpdate(&buf, u, false); err != nil {
		t.Fatalf("renderUpdate() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"15:04:05", "running", "/work", "+2 events, +1 actions, +0 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[2J") {
		t.Error("screen cleared with clearScreen=false")
	}
}

// TestNewExportCommand tests export command flag parsing.
func TestNewExportCommand(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantFormat string
		wantError  bool
	}{
		{name: "default format", args: []string{"-out", "m.json"}, wantFormat: "json"},
		{name: "csv", args: []string{"-format", "csv", "-out", "m.csv"}, wantFormat: "csv"},
		{name: "missing out", args: []string{"-format", "csv"}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := newExportCommand(testGlobal, tt.args)
			if (err != nil) != tt.wantError {
				t.Fatalf("newExportCommand() error = %v, wantError %v", err, tt.wantError)
			}
			if tt.wantError {
				return
			}
			if cmd.format != tt.wantFormat {
				t.Errorf("format = %q, want %q", cmd.format, tt.wantFormat)
			}
		})
	}
}

// TestNewHistoryCommand tests history command flag parsing.
func TestNewHistoryCommand(t *testing.T) {
	cmd, err := newHistoryCommand(testGlobal, []string{"-n", "3", "-format", "simple"})
	if err != nil {
		t.Fatalf("newHistoryCommand() error = %v", err)
	}
	if cmd.n != 3 || cmd.format != display.FormatSimple {
		t.Errorf("newHistoryCommand() = %+v", *cmd)
	}
}

// TestCommandRouting tests that unknown commands are rejected.
func TestCommandRouting(t *testing.T) {
	err := run([]string{"unknown"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("run(unknown) error = %v", err)
	}

	err = run([]string{"metrics", "-format", "xml"})
	if err == nil {
		t.Error("run(metrics -format xml) should fail")
	}
}

// TestVersionFlag tests version flag handling.
func TestVersionFlag(t *testing.T) {
	if err := run([]string{"-version"}); err != nil {
		t.Errorf("run(-version) error = %v", err)
	}
}

func TestShowUsage(t *testing.T) {
	var buf bytes.Buffer
	if err := showUsage(&buf); err != nil {
		t.Fatalf("showUsage() error = %v", err)
	}
	for _, cmd := range []string{"run", "status", "logs", "metrics", "export", "history", "config"} {
		if !strings.Contains(buf.String(), "  "+cmd) {
			t.Errorf("usage does not mention %q", cmd)
		}
	}
}

func TestResolvedConfigPath(t *testing.T) {
	g := globalOptions{root: "/work"}
	if got := g.resolvedConfigPath(); got != filepath.Join("/work", ".autowatch", "config.json") {
		t.Errorf("resolvedConfigPath() = %q", got)
	}

	g.configPath = "custom.yaml"
	if got := g.resolvedConfigPath(); got != "custom.yaml" {
		t.Errorf("resolvedConfigPath() = %q, want custom.yaml", got)
	}
}

func newTestConfigCommand(t *testing.T, input string) (*configCommand, *bytes.Buffer) {
	t.Helper()

	var out bytes.Buffer
	return &configCommand{
		global: globalOptions{root: t.TempDir()},
		in:     strings.NewReader(input),
		out:    &out,
	}, &out
}

func TestConfigInitAndValidate(t *testing.T) {
	cmd, out := newTestConfigCommand(t, "")

	if err := cmd.Execute([]string{"validate"}); err == nil {
		t.Error("validate without a file should fail")
	}

	if err := cmd.Execute([]string{"init"}); err != nil {
		t.Fatalf("init error = %v", err)
	}
	path := cmd.global.resolvedConfigPath()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	out.Reset()
	if err := cmd.Execute([]string{"validate"}); err != nil {
		t.Fatalf("validate error = %v", err)
	}
	if !strings.Contains(out.String(), "is valid") {
		t.Errorf("validate output = %q", out.String())
	}
}

func TestConfigInitDeclinesOverwrite(t *testing.T) {
	cmd, out := newTestConfigCommand(t, "n\n")

	path := cmd.global.resolvedConfigPath()
	cfg := config.Default()
	cfg.Patterns = []string{"**/*.go"}
	if err := config.Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := cmd.Execute([]string{"init"}); err != nil {
		t.Fatalf("init error = %v", err)
	}
	if !strings.Contains(out.String(), "cancelled") {
		t.Errorf("init output = %q", out.String())
	}

	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Patterns[0] != "**/*.go" {
		t.Errorf("config was overwritten: patterns = %v", loaded.Patterns)
	}
}

func TestConfigShow(t *testing.T) {
	cmd, out := newTestConfigCommand(t, "")

	if err := cmd.Execute([]string{"show"}); err != nil {
		t.Fatalf("show error = %v", err)
	}
	if !strings.Contains(out.String(), "defaults (no config file found)") {
		t.Errorf("show output missing source: %q", out.String())
	}
	if !strings.Contains(out.String(), "**/*.md") {
		t.Errorf("show output missing default pattern: %q", out.String())
	}

	out.Reset()
	if err := cmd.Execute([]string{"show", "-format", "json"}); err != nil {
		t.Fatalf("show -format json error = %v", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(out.String()), "{") {
		t.Errorf("json output = %q", out.String())
	}
}

func TestConfigUnknownSubcommand(t *testing.T) {
	cmd, _ := newTestConfigCommand(t, "")
	if err := cmd.Execute([]string{"reset"}); err == nil {
		t.Error("unknown subcommand should fail")
	}
}
