package display

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/docker/go-units"

	"github.com/0xmhha/autowatch/pkg/execlog"
	"github.com/0xmhha/autowatch/pkg/history"
	"github.com/0xmhha/autowatch/pkg/metrics"
	"github.com/0xmhha/autowatch/pkg/session"
)

// tableFormatter formats output as tables.
type tableFormatter struct {
	config  Config
	palette palette
}

// painter colours a padded cell. Widths are computed on the plain text.
type painter func(row, col int, cell string) string

// FormatStatus implements Formatter.FormatStatus.
func (f *tableFormatter) FormatStatus(w io.Writer, st session.Status) error {
	if err := writeHeader(w, "Watch Session", f.config.Compact); err != nil {
		return err
	}

	rows := [][]string{
		{"State", st.State},
		{"Root", st.Root},
		{"Config", st.ConfigPath},
		{"Patterns", strings.Join(st.Patterns, ", ")},
	}
	if !st.StartedAt.IsZero() {
		rows = append(rows,
			[]string{"Uptime", humanSince(st.StartedAt)},
			[]string{"Run ID", st.RunID},
			[]string{"Files Tracked", formatNumber(st.Monitor.FilesTracked)},
			[]string{"Monitor State", st.Monitor.State},
			[]string{"Monitor Errors", formatNumber(st.Monitor.ErrorCount)},
			[]string{"Events Processed", formatNumber(st.EventsProcessed)},
			[]string{"Pending Debounces", formatNumber(st.Coalesce.PendingDebounces)},
			[]string{"Queued Events", fmt.Sprintf("%d/%d", st.Coalesce.QueueLength, st.Coalesce.QueueCapacity)},
			[]string{"Actions Running", formatNumber(st.Actions.Running)},
			[]string{"Actions Executed", formatNumber(st.ActionsExecuted)},
			[]string{"Actions Failed", formatNumber(st.ActionsFailed)},
		)
	}
	if st.LastError != "" {
		rows = append(rows, []string{"Last Error", st.LastError})
	}

	paint := func(row, col int, cell string) string {
		if col == 1 && row == 0 {
			return f.palette.state(cell)
		}
		return cell
	}
	if err := f.writeTable(w, []string{"Field", "Value"}, rows, paint); err != nil {
		return err
	}

	if len(st.Rules) > 0 {
		if err := writeHeader(w, "Actions", f.config.Compact); err != nil {
			return err
		}

		ruleRows := make([][]string, len(st.Rules))
		for i, r := range st.Rules {
			ruleRows[i] = []string{
				r.Pattern,
				r.Command,
				fmt.Sprintf("%s %s", r.Mode, formatMs(float64(r.DelayMs))),
				r.Description,
			}
		}
		if err := f.writeTable(w, []string{"Pattern", "Command", "Coalescing", "Description"}, ruleRows, nil); err != nil {
			return err
		}
	}

	return f.FormatMetrics(w, st.Metrics)
}

// FormatMetrics implements Formatter.FormatMetrics.
func (f *tableFormatter) FormatMetrics(w io.Writer, snap metrics.Snapshot) error {
	if err := writeHeader(w, "Execution Metrics", f.config.Compact); err != nil {
		return err
	}

	rows := [][]string{
		{"Executions", formatNumber(snap.Total)},
		{"Succeeded", formatNumber(snap.Succeeded)},
		{"Failed", formatNumber(snap.Failed)},
		{"Success Rate", formatFloat(snap.SuccessRate, 2) + "%"},
		{"Average Duration", formatMs(snap.AvgDurationMs)},
		{"Min Duration", formatMs(float64(snap.MinDurationMs))},
		{"Max Duration", formatMs(float64(snap.MaxDurationMs))},
		{"Time Saved", formatMs(float64(snap.TimeSavedMs))},
	}

	if f.config.ShowPercentiles {
		rows = append(rows,
			[]string{"P50 Duration", formatMs(float64(snap.P50DurationMs))},
			[]string{"P95 Duration", formatMs(float64(snap.P95DurationMs))},
		)
	}

	if f.config.ShowTimestamps && !snap.FirstSeen.IsZero() {
		rows = append(rows,
			[]string{"First Seen", formatTime(snap.FirstSeen)},
			[]string{"Last Seen", formatTime(snap.LastSeen)},
		)
	}

	if err := f.writeTable(w, []string{"Metric", "Value"}, rows, nil); err != nil {
		return err
	}

	if len(snap.ByAction) > 0 {
		names := make([]string, 0, len(snap.ByAction))
		for name := range snap.ByAction {
			names = append(names, name)
		}
		sort.Strings(names)

		actionRows := make([][]string, len(names))
		for i, name := range names {
			a := snap.ByAction[name]
			actionRows[i] = []string{
				name,
				formatNumber(a.Count),
				formatNumber(a.Succeeded),
				formatNumber(a.Failed),
				formatMs(a.AvgDurationMs),
			}
		}
		if err := f.writeTable(w, []string{"Action", "Runs", "OK", "Failed", "Avg"}, actionRows, nil); err != nil {
			return err
		}
	}

	if len(snap.ByErrorType) > 0 {
		types := make([]string, 0, len(snap.ByErrorType))
		for t := range snap.ByErrorType {
			types = append(types, t)
		}
		sort.Strings(types)

		errRows := make([][]string, len(types))
		for i, t := range types {
			errRows[i] = []string{t, formatNumber(snap.ByErrorType[t])}
		}
		return f.writeTable(w, []string{"Error Type", "Count"}, errRows, nil)
	}

	return nil
}

// FormatLogs implements Formatter.FormatLogs.
func (f *tableFormatter) FormatLogs(w io.Writer, records []execlog.Record) error {
	if err := writeHeader(w, "Execution Log", f.config.Compact); err != nil {
		return err
	}

	header := []string{"Time", "Event", "File", "Action", "Duration", "Attempts", "Outcome"}
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{
			formatTime(r.Timestamp),
			r.EventKind,
			r.FilePath,
			r.Action,
			formatMs(float64(r.DurationMs)),
			fmt.Sprintf("%d", r.Attempts),
			r.Outcome,
		}
	}

	paint := func(row, col int, cell string) string {
		if col == len(header)-1 {
			return f.palette.outcome(strings.TrimRight(cell, " "))
		}
		return cell
	}
	return f.writeTable(w, header, rows, paint)
}

// FormatHistory implements Formatter.FormatHistory.
func (f *tableFormatter) FormatHistory(w io.Writer, runs []*history.Run) error {
	if err := writeHeader(w, "Run History", f.config.Compact); err != nil {
		return err
	}

	header := []string{"Run ID", "Started", "Duration", "Events", "Actions", "Failed", "Stop Reason"}
	rows := make([][]string, len(runs))
	for i, r := range runs {
		reason := r.StopReason
		if r.Active() {
			reason = "active"
		}
		rows[i] = []string{
			r.ID,
			formatTime(r.StartedAt),
			units.HumanDuration(r.Duration()),
			formatNumber(r.EventsProcessed),
			formatNumber(r.ActionsExecuted),
			formatNumber(r.ActionsFailed),
			reason,
		}
	}

	return f.writeTable(w, header, rows, nil)
}

// writeTable writes a formatted table.
func (f *tableFormatter) writeTable(w io.Writer, header []string, rows [][]string, paint painter) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No data")
		return err
	}

	// Calculate column widths.
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	if err := f.writeRow(w, -1, header, widths, nil); err != nil {
		return err
	}

	if !f.config.Compact {
		separator := make([]string, len(header))
		for i, width := range widths {
			separator[i] = strings.Repeat("-", width)
		}
		if err := f.writeRow(w, -1, separator, widths, nil); err != nil {
			return err
		}
	}

	for i, row := range rows {
		if err := f.writeRow(w, i, row, widths, paint); err != nil {
			return err
		}
	}

	if !f.config.Compact {
		_, err := fmt.Fprintln(w)
		return err
	}

	return nil
}

// writeRow writes a single table row.
func (f *tableFormatter) writeRow(w io.Writer, row int, cells []string, widths []int, paint painter) error {
	gap := "  "
	if f.config.Compact {
		gap = " "
	}

	var b strings.Builder
	for i, cell := range cells {
		if i > 0 {
			b.WriteString(gap)
		}

		padded := fmt.Sprintf("%-*s", widths[i], cell)
		if paint != nil {
			padded = paint(row, i, padded)
		}
		b.WriteString(padded)
	}

	_, err := fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
	return err
}
