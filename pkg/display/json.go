package display

import (
	"encoding/json"
	"io"

	"github.com/0xmhha/autowatch/pkg/execlog"
	"github.com/0xmhha/autowatch/pkg/history"
	"github.com/0xmhha/autowatch/pkg/metrics"
	"github.com/0xmhha/autowatch/pkg/session"
)

// jsonFormatter formats output as JSON.
type jsonFormatter struct {
	config Config
}

// FormatStatus implements Formatter.FormatStatus.
func (f *jsonFormatter) FormatStatus(w io.Writer, st session.Status) error {
	return f.encode(w, st)
}

// FormatMetrics implements Formatter.FormatMetrics.
func (f *jsonFormatter) FormatMetrics(w io.Writer, snap metrics.Snapshot) error {
	return f.encode(w, snap)
}

// FormatLogs implements Formatter.FormatLogs.
func (f *jsonFormatter) FormatLogs(w io.Writer, records []execlog.Record) error {
	if records == nil {
		records = []execlog.Record{}
	}
	return f.encode(w, records)
}

// FormatHistory implements Formatter.FormatHistory.
func (f *jsonFormatter) FormatHistory(w io.Writer, runs []*history.Run) error {
	if runs == nil {
		runs = []*history.Run{}
	}
	return f.encode(w, runs)
}

func (f *jsonFormatter) encode(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	if !f.config.Compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(v)
}
