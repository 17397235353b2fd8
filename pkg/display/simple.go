package display

import (
	"fmt"
	"io"

	"github.com/0xmhha/autowatch/pkg/execlog"
	"github.com/0xmhha/autowatch/pkg/history"
	"github.com/0xmhha/autowatch/pkg/metrics"
	"github.com/0xmhha/autowatch/pkg/session"
)

// simpleFormatter formats output as simple text.
type simpleFormatter struct {
	config  Config
	palette palette
}

// FormatStatus implements Formatter.FormatStatus.
func (f *simpleFormatter) FormatStatus(w io.Writer, st session.Status) error {
	if st.StartedAt.IsZero() {
		_, err := fmt.Fprintf(w, "%s | root: %s | actions: %d | executions: %d\n",
			f.palette.state(st.State),
			st.Root,
			len(st.Rules),
			st.Metrics.Total)
		return err
	}

	_, err := fmt.Fprintf(w, "%s %s | files: %d | events: %d | actions: %d (%d failed) | pending: %d\n",
		f.palette.state(st.State),
		humanSince(st.StartedAt),
		st.Monitor.FilesTracked,
		st.EventsProcessed,
		st.ActionsExecuted,
		st.ActionsFailed,
		st.Coalesce.PendingDebounces)
	return err
}

// FormatMetrics implements Formatter.FormatMetrics.
func (f *simpleFormatter) FormatMetrics(w io.Writer, snap metrics.Snapshot) error {
	_, err := fmt.Fprintf(w, "Executions: %d | OK: %d | Failed: %d | Rate: %s%% | Avg: %s | Saved: %s\n",
		snap.Total,
		snap.Succeeded,
		snap.Failed,
		formatFloat(snap.SuccessRate, 1),
		formatMs(snap.AvgDurationMs),
		formatMs(float64(snap.TimeSavedMs)))
	return err
}

// FormatLogs implements Formatter.FormatLogs.
func (f *simpleFormatter) FormatLogs(w io.Writer, records []execlog.Record) error {
	for _, r := range records {
		if _, err := fmt.Fprintf(w, "%s %s %s %s (%s)\n",
			r.Timestamp.Local().Format("15:04:05"),
			f.palette.outcome(r.Outcome),
			r.FilePath,
			r.Action,
			formatMs(float64(r.DurationMs))); err != nil {
			return err
		}
	}

	return nil
}

// FormatHistory implements Formatter.FormatHistory.
func (f *simpleFormatter) FormatHistory(w io.Writer, runs []*history.Run) error {
	for _, r := range runs {
		reason := r.StopReason
		if r.Active() {
			reason = "active"
		}
		if _, err := fmt.Fprintf(w, "%s %s - %d events, %d actions (%s)\n",
			r.ID,
			formatTime(r.StartedAt),
			r.EventsProcessed,
			r.ActionsExecuted,
			reason); err != nil {
			return err
		}
	}

	return nil
}
