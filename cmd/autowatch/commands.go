package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/0xmhha/autowatch/pkg/dashboard"
	"github.com/0xmhha/autowatch/pkg/display"
	"github.com/0xmhha/autowatch/pkg/execlog"
	"github.com/0xmhha/autowatch/pkg/session"
	"github.com/0xmhha/autowatch/pkg/watcher"
)

// eventPollInterval is how often run -events drains the event queue.
const eventPollInterval = 200 * time.Millisecond

// runCommand watches the project in the foreground.
type runCommand struct {
	global  globalOptions
	events  bool
	live    bool
	refresh time.Duration
}

func newRunCommand(g globalOptions, args []string) (*runCommand, error) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	events := fs.Bool("events", false, "print every surfaced file change")
	live := fs.Bool("live", false, "redraw a status dashboard in place")
	refresh := fs.Duration("refresh", dashboard.DefaultRefreshInterval, "dashboard refresh interval")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *refresh <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %s", *refresh)
	}
	if *live && *events {
		return nil, errors.New("-live and -events cannot be combined")
	}

	return &runCommand{global: g, events: *events, live: *live, refresh: *refresh}, nil
}

// Execute runs the run command.
func (c *runCommand) Execute() error {
	s, log := openSession(c.global)

	ctx := context.Background()
	if err := s.Start(ctx, nil); err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Error("failed to stop session", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	f := display.New(display.Config{Format: display.FormatSimple, Color: display.ColorEnabled(os.Stdout)})
	if err := f.FormatStatus(os.Stdout, s.Status()); err != nil {
		return err
	}
	fmt.Println("Watching for changes - press Ctrl+C to stop")

	var updates <-chan dashboard.Update
	var clearScreen bool
	if c.live {
		dash, err := dashboard.New(s, dashboard.Config{RefreshInterval: c.refresh, ClearScreen: true}, log)
		if err != nil {
			return err
		}
		if err := dash.Start(ctx); err != nil {
			return err
		}
		defer dash.Close()
		updates = dash.Updates()
		clearScreen = dash.Config().ClearScreen
	}

	var poll <-chan time.Time
	if c.events {
		ticker := time.NewTicker(eventPollInterval)
		defer ticker.Stop()
		poll = ticker.C
	}

	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				fmt.Println("Reloading configuration...")
				if err := s.Restart(ctx); err != nil {
					return fmt.Errorf("restart failed: %w", err)
				}
				if !c.live {
					if err := f.FormatStatus(os.Stdout, s.Status()); err != nil {
						return err
					}
				}
				continue
			}

			fmt.Println("\nStopping...")
			return nil

		case err := <-s.Errors():
			fmt.Fprintln(os.Stderr, color.YellowString("[!] ")+err.Error())
			if errors.Is(err, watcher.ErrRecoveryFailed) {
				return fmt.Errorf("watch stopped: %w", err)
			}

		case u, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if err := renderUpdate(os.Stdout, u, clearScreen); err != nil {
				return err
			}

		case <-poll:
			for {
				ev, ok := s.NextEvent()
				if !ok {
					break
				}
				fmt.Printf("%s %s\n", color.CyanString("%-8s", ev.Kind), ev.Key)
			}
		}
	}
}

// renderUpdate draws one dashboard frame.
func renderUpdate(w io.Writer, u dashboard.Update, clearScreen bool) error {
	if clearScreen {
		fmt.Fprint(w, "\033[2J\033[H")
	}
	fmt.Fprintf(w, "autowatch - %s (Ctrl+C to stop)\n\n", u.Timestamp.Format("15:04:05"))

	f := display.New(display.Config{Format: display.FormatTable, Color: display.ColorEnabled(os.Stdout), ShowPercentiles: true})
	if err := f.FormatStatus(w, u.Status); err != nil {
		return err
	}

	if !u.Delta.Empty() {
		fmt.Fprintf(w, "\nSince last refresh: +%d events, +%d actions, +%d failed\n",
			u.Delta.Events, u.Delta.Actions, u.Delta.Failed)
	}
	return nil
}

// statusCommand shows the session status.
type statusCommand struct {
	global globalOptions
	format display.Format
}

func newStatusCommand(g globalOptions, args []string) (*statusCommand, error) {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	format := fs.String("format", "table", "output format (table, json, simple)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	f, err := display.ParseFormat(*format)
	if err != nil {
		return nil, err
	}

	return &statusCommand{global: g, format: f}, nil
}

// Execute runs the status command.
func (c *statusCommand) Execute() error {
	s, _ := openSession(c.global)
	return newFormatter(c.format).FormatStatus(os.Stdout, s.Status())
}

// logsCommand shows recent execution records.
type logsCommand struct {
	global globalOptions
	n      int
	follow bool
	format display.Format
}

func newLogsCommand(g globalOptions, args []string) (*logsCommand, error) {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	n := fs.Int("n", 20, "number of records")
	follow := fs.Bool("f", false, "follow the log as records are appended")
	format := fs.String("format", "table", "output format (table, json, simple)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *n < 0 {
		return nil, fmt.Errorf("-n must be >= 0")
	}
	f, err := display.ParseFormat(*format)
	if err != nil {
		return nil, err
	}

	return &logsCommand{global: g, n: *n, follow: *follow, format: f}, nil
}

// Execute runs the logs command.
func (c *logsCommand) Execute() error {
	s, _ := openSession(c.global)

	records, err := s.Logs(c.n)
	if err != nil {
		return fmt.Errorf("failed to read execution log: %w", err)
	}

	formatter := newFormatter(c.format)
	if !c.follow {
		return formatter.FormatLogs(os.Stdout, records)
	}

	// Following always streams one line per record.
	simple := newFormatter(display.FormatSimple)
	if err := simple.FormatLogs(os.Stdout, records); err != nil {
		return err
	}

	path, err := s.LogPath()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return execlog.FollowFile(ctx, path, func(r execlog.Record) {
		_ = simple.FormatLogs(os.Stdout, []execlog.Record{r}) // nolint:errcheck
	})
}

// metricsCommand shows execution metrics.
type metricsCommand struct {
	global globalOptions
	format display.Format
}

func newMetricsCommand(g globalOptions, args []string) (*metricsCommand, error) {
	fs := flag.NewFlagSet("metrics", flag.ContinueOnError)
	format := fs.String("format", "table", "output format (table, json, simple)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	f, err := display.ParseFormat(*format)
	if err != nil {
		return nil, err
	}

	return &metricsCommand{global: g, format: f}, nil
}

// Execute runs the metrics command.
func (c *metricsCommand) Execute() error {
	s, _ := openSession(c.global)

	snap, err := s.Metrics()
	if err != nil {
		return fmt.Errorf("failed to compute metrics: %w", err)
	}
	return newFormatter(c.format).FormatMetrics(os.Stdout, snap)
}

// exportCommand writes metrics to a file.
type exportCommand struct {
	global globalOptions
	format string
	out    string
}

func newExportCommand(g globalOptions, args []string) (*exportCommand, error) {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	format := fs.String("format", execlog.FormatJSON, "export format (json, csv)")
	out := fs.String("out", "", "output file path")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *out == "" {
		return nil, fmt.Errorf("-out is required")
	}

	return &exportCommand{global: g, format: *format, out: *out}, nil
}

// Execute runs the export command.
func (c *exportCommand) Execute() error {
	s, _ := openSession(c.global)

	if err := s.ExportMetrics(c.format, c.out); err != nil {
		return fmt.Errorf("failed to export metrics: %w", err)
	}

	fmt.Printf("Metrics exported to %s\n", c.out)
	return nil
}

// historyCommand lists recorded runs.
type historyCommand struct {
	global globalOptions
	n      int
	format display.Format
}

func newHistoryCommand(g globalOptions, args []string) (*historyCommand, error) {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	n := fs.Int("n", 10, "number of runs (0 for all)")
	format := fs.String("format", "table", "output format (table, json, simple)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	f, err := display.ParseFormat(*format)
	if err != nil {
		return nil, err
	}

	return &historyCommand{global: g, n: *n, format: f}, nil
}

// Execute runs the history command.
func (c *historyCommand) Execute() error {
	s, _ := openSession(c.global)

	runs, err := s.History(c.n)
	if err != nil {
		if errors.Is(err, session.ErrHistoryDisabled) {
			fmt.Println("Run history is disabled (storage.historyPath is empty)")
			return nil
		}
		return fmt.Errorf("failed to read run history: %w", err)
	}
	return newFormatter(c.format).FormatHistory(os.Stdout, runs)
}

func newFormatter(format display.Format) display.Formatter {
	return display.New(display.Config{
		Format:          format,
		Color:           display.ColorEnabled(os.Stdout),
		ShowPercentiles: true,
		ShowTimestamps:  true,
	})
}
