package execlog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/0xmhha/autowatch/pkg/metrics"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ExportMetrics writes the current metrics snapshot to path as a JSON
// document or a two-column Metric,Value CSV.
func (s *Store) ExportMetrics(format, path string) error {
	return ExportSnapshot(s.Metrics(), format, path)
}

// ExportSnapshot writes snap to path in format.
func ExportSnapshot(snap metrics.Snapshot, format, path string) error {
	var data []byte

	switch strings.ToLower(format) {
	case FormatJSON:
		out, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal metrics: %w", err)
		}
		data = append(out, '\n')
	case FormatCSV:
		var b strings.Builder
		w := csv.NewWriter(&b)
		if err := w.WriteAll(CSVRows(snap)); err != nil {
			return fmt.Errorf("failed to encode metrics: %w", err)
		}
		data = []byte(b.String())
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metrics export: %w", err)
	}
	return nil
}

// CSVRows flattens snap into Metric,Value rows, header first. Per-action and
// per-error rows follow the totals in key order.
func CSVRows(snap metrics.Snapshot) [][]string {
	rows := [][]string{
		{"Metric", "Value"},
		{"Total Executions", strconv.Itoa(snap.Total)},
		{"Successful", strconv.Itoa(snap.Succeeded)},
		{"Failed", strconv.Itoa(snap.Failed)},
		{"Success Rate (%)", strconv.FormatFloat(snap.SuccessRate, 'f', 2, 64)},
		{"Average Duration (ms)", strconv.FormatFloat(snap.AvgDurationMs, 'f', 2, 64)},
		{"Min Duration (ms)", strconv.FormatInt(snap.MinDurationMs, 10)},
		{"Max Duration (ms)", strconv.FormatInt(snap.MaxDurationMs, 10)},
		{"P50 Duration (ms)", strconv.FormatInt(snap.P50DurationMs, 10)},
		{"P95 Duration (ms)", strconv.FormatInt(snap.P95DurationMs, 10)},
		{"Time Saved (ms)", strconv.FormatInt(snap.TimeSavedMs, 10)},
		{"First Seen", formatTime(snap.FirstSeen)},
		{"Last Seen", formatTime(snap.LastSeen)},
	}

	actions := make([]string, 0, len(snap.ByAction))
	for k := range snap.ByAction {
		actions = append(actions, k)
	}
	sort.Strings(actions)
	for _, k := range actions {
		a := snap.ByAction[k]
		rows = append(rows,
			[]string{"Action " + k + " Count", strconv.Itoa(a.Count)},
			[]string{"Action " + k + " Failed", strconv.Itoa(a.Failed)},
		)
	}

	errTypes := make([]string, 0, len(snap.ByErrorType))
	for k := range snap.ByErrorType {
		errTypes = append(errTypes, k)
	}
	sort.Strings(errTypes)
	for _, k := range errTypes {
		rows = append(rows, []string{"Error " + k, strconv.Itoa(snap.ByErrorType[k])})
	}

	return rows
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
