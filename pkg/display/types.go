// Package display renders session status, metrics, execution logs and
// run history for the CLI.
//
// It supports multiple output formats (table, JSON, simple text). The
// table and simple formats colour outcomes when Config.Color is set.
package display

import (
	"io"

	"github.com/0xmhha/autowatch/pkg/execlog"
	"github.com/0xmhha/autowatch/pkg/history"
	"github.com/0xmhha/autowatch/pkg/metrics"
	"github.com/0xmhha/autowatch/pkg/session"
)

// Format represents an output format.
type Format string

const (
	// FormatTable displays output in aligned tables.
	FormatTable Format = "table"

	// FormatJSON displays output as JSON.
	FormatJSON Format = "json"

	// FormatSimple displays output as one line per item.
	FormatSimple Format = "simple"
)

// Formatter renders pipeline state.
type Formatter interface {
	// FormatStatus formats a session status.
	FormatStatus(w io.Writer, st session.Status) error

	// FormatMetrics formats a metrics snapshot.
	FormatMetrics(w io.Writer, snap metrics.Snapshot) error

	// FormatLogs formats execution records, oldest first.
	FormatLogs(w io.Writer, records []execlog.Record) error

	// FormatHistory formats recorded runs.
	FormatHistory(w io.Writer, runs []*history.Run) error
}

// Config contains formatter configuration.
type Config struct {
	// Format specifies the output format.
	// Default: FormatTable.
	Format Format

	// Color enables ANSI colours for outcomes and states.
	Color bool

	// ShowPercentiles enables percentile display.
	ShowPercentiles bool

	// ShowTimestamps enables timestamp display.
	ShowTimestamps bool

	// Compact enables compact output (less whitespace).
	Compact bool
}
