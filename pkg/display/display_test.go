package display

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/0xmhha/autowatch/pkg/execlog"
	"github.com/0xmhha/autowatch/pkg/history"
	"github.com/0xmhha/autowatch/pkg/metrics"
	"github.com/0xmhha/autowatch/pkg/session"
)

func testSnapshot() metrics.Snapshot {
	return metrics.Snapshot{
		Total:         1200,
		Succeeded:     1100,
		Failed:        100,
		SuccessRate:   91.6666,
		AvgDurationMs: 1500,
		MinDurationMs: 20,
		MaxDurationMs: 9000,
		P50DurationMs: 1200,
		P95DurationMs: 8000,
		TimeSavedMs:   33000000,
		ByAction: map[string]metrics.ActionStats{
			"**/*.md": {Count: 1200, Succeeded: 1100, Failed: 100, AvgDurationMs: 1500},
		},
		ByErrorType: map[string]int{"exit": 90, "timeout": 10},
		FirstSeen:   time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		LastSeen:    time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testRecords() []execlog.Record {
	return []execlog.Record{
		{
			Timestamp:  time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
			EventKind:  "changed",
			FilePath:   "docs/a.md",
			Action:     "**/*.md",
			DurationMs: 230,
			Outcome:    execlog.OutcomeSuccess,
			Attempts:   1,
		},
		{
			Timestamp:  time.Date(2024, 1, 1, 10, 1, 0, 0, time.UTC),
			EventKind:  "added",
			FilePath:   "docs/b.md",
			Action:     "**/*.md",
			DurationMs: 4100,
			Outcome:    execlog.OutcomeError,
			Attempts:   3,
		},
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config Config
		want   string // Type name
	}{
		{name: "default format (table)", config: Config{}, want: "*display.tableFormatter"},
		{name: "table format", config: Config{Format: FormatTable}, want: "*display.tableFormatter"},
		{name: "json format", config: Config{Format: FormatJSON}, want: "*display.jsonFormatter"},
		{name: "simple format", config: Config{Format: FormatSimple}, want: "*display.simpleFormatter"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			formatter := New(tt.config)
			if formatter == nil {
				t.Fatal("New() returned nil")
			}

			got := fmt.Sprintf("%T", formatter)
			if got != tt.want {
				t.Errorf("New() type = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatTable},
		{in: "table", want: FormatTable},
		{in: "JSON", want: FormatJSON},
		{in: "simple", want: FormatSimple},
		{in: "xml", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTableFormatter_FormatMetrics(t *testing.T) {
	t.Parallel()

	formatter := New(Config{
		Format:          FormatTable,
		ShowPercentiles: true,
		ShowTimestamps:  true,
	})

	var buf bytes.Buffer
	if err := formatter.FormatMetrics(&buf, testSnapshot()); err != nil {
		t.Fatalf("FormatMetrics() error = %v", err)
	}

	output := buf.String()
	for _, want := range []string{"1,200", "91.67%", "1.5s", "P95 Duration", "2024-01-01", "**/*.md", "timeout"} {
		if !strings.Contains(output, want) {
			t.Errorf("Output missing %q:\n%s", want, output)
		}
	}
}

func TestTableFormatter_FormatLogs(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatTable})

	var buf bytes.Buffer
	if err := formatter.FormatLogs(&buf, testRecords()); err != nil {
		t.Fatalf("FormatLogs() error = %v", err)
	}

	output := buf.String()
	for _, want := range []string{"docs/a.md", "docs/b.md", "230ms", "4.1s", "success", "error"} {
		if !strings.Contains(output, want) {
			t.Errorf("Output missing %q:\n%s", want, output)
		}
	}
	if strings.Contains(output, "\x1b[") {
		t.Error("Output contains colour codes with Color disabled")
	}
}

func TestTableFormatter_ColorsOutcomes(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatTable, Color: true})

	var buf bytes.Buffer
	if err := formatter.FormatLogs(&buf, testRecords()); err != nil {
		t.Fatalf("FormatLogs() error = %v", err)
	}
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Error("Output has no colour codes with Color enabled")
	}
}

func TestTableFormatter_Empty(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatTable, Compact: true})

	var buf bytes.Buffer
	if err := formatter.FormatLogs(&buf, nil); err != nil {
		t.Fatalf("FormatLogs() error = %v", err)
	}
	if !strings.Contains(buf.String(), "No data") {
		t.Errorf("Output = %q, want No data", buf.String())
	}
}

func TestTableFormatter_FormatStatus(t *testing.T) {
	t.Parallel()

	st := session.Status{
		State:           "running",
		Root:            "/work",
		ConfigPath:      "/work/.autowatch/config.json",
		StartedAt:       time.Now().Add(-3 * time.Minute),
		RunID:           "run-1",
		Patterns:        []string{"**/*.md"},
		EventsProcessed: 42,
		ActionsExecuted: 7,
		Rules: []session.RuleInfo{
			{Pattern: "**/*.md", Command: "echo ${file}", Mode: "debounce", DelayMs: 2000},
		},
		Metrics: testSnapshot(),
	}

	formatter := New(Config{Format: FormatTable})

	var buf bytes.Buffer
	if err := formatter.FormatStatus(&buf, st); err != nil {
		t.Fatalf("FormatStatus() error = %v", err)
	}

	output := buf.String()
	for _, want := range []string{"running", "/work", "3 minutes", "42", "echo ${file}", "debounce 2s", "Execution Metrics"} {
		if !strings.Contains(output, want) {
			t.Errorf("Output missing %q:\n%s", want, output)
		}
	}
}

func TestTableFormatter_FormatHistory(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	runs := []*history.Run{
		{ID: "run-2", StartedAt: start.Add(time.Hour)},
		{
			ID:              "run-1",
			StartedAt:       start,
			StoppedAt:       start.Add(90 * time.Second),
			StopReason:      "stopped",
			EventsProcessed: 12,
		},
	}

	formatter := New(Config{Format: FormatTable})

	var buf bytes.Buffer
	if err := formatter.FormatHistory(&buf, runs); err != nil {
		t.Fatalf("FormatHistory() error = %v", err)
	}

	output := buf.String()
	for _, want := range []string{"run-1", "run-2", "active", "stopped", "About a minute"} {
		if !strings.Contains(output, want) {
			t.Errorf("Output missing %q:\n%s", want, output)
		}
	}
}

func TestJSONFormatter_FormatMetrics(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatJSON})

	var buf bytes.Buffer
	if err := formatter.FormatMetrics(&buf, testSnapshot()); err != nil {
		t.Fatalf("FormatMetrics() error = %v", err)
	}

	var decoded metrics.Snapshot
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if decoded.Total != 1200 {
		t.Errorf("Total = %d, want 1200", decoded.Total)
	}
}

func TestJSONFormatter_EmptyLogsIsArray(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatJSON, Compact: true})

	var buf bytes.Buffer
	if err := formatter.FormatLogs(&buf, nil); err != nil {
		t.Fatalf("FormatLogs() error = %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("FormatLogs(nil) = %q, want []", got)
	}
}

func TestSimpleFormatter(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatSimple})

	var buf bytes.Buffer
	if err := formatter.FormatMetrics(&buf, testSnapshot()); err != nil {
		t.Fatalf("FormatMetrics() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Executions: 1200") {
		t.Errorf("FormatMetrics() = %q", buf.String())
	}

	buf.Reset()
	if err := formatter.FormatLogs(&buf, testRecords()); err != nil {
		t.Fatalf("FormatLogs() error = %v", err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 2 {
		t.Errorf("FormatLogs() wrote %d lines, want 2", lines)
	}

	buf.Reset()
	if err := formatter.FormatStatus(&buf, session.Status{State: "idle", Root: "/work"}); err != nil {
		t.Fatalf("FormatStatus() error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), "idle | root: /work") {
		t.Errorf("FormatStatus() = %q", buf.String())
	}
}

func TestFormatNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input int
		want  string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
	}

	for _, tt := range tests {
		if got := formatNumber(tt.input); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFormatMs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input float64
		want  string
	}{
		{0, "0ms"},
		{230, "230ms"},
		{1500, "1.5s"},
		{65000, "1m5s"},
	}

	for _, tt := range tests {
		if got := formatMs(tt.input); got != tt.want {
			t.Errorf("formatMs(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
