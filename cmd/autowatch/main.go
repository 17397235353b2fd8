// Package main provides the autowatch CLI application.
//
// Autowatch watches a project tree and runs configured commands when
// matching files change, keeping an execution log with metrics.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/0xmhha/autowatch/pkg/config"
	"github.com/0xmhha/autowatch/pkg/logger"
	"github.com/0xmhha/autowatch/pkg/session"
)

// version is set during build time.
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are the flags shared by every command.
type globalOptions struct {
	configPath string
	root       string
}

// run executes the main application logic.
func run(args []string) error {
	fs := flag.NewFlagSet("autowatch", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to configuration file (default: <root>/.autowatch/config.json)")
	root := fs.String("root", ".", "project root to watch")
	showVersion := fs.Bool("version", false, "show version information")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Printf("autowatch %s\n", version)
		return nil
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return showUsage(os.Stdout)
	}

	g := globalOptions{configPath: *configPath, root: *root}
	command, cmdArgs := rest[0], rest[1:]

	switch command {
	case "run":
		cmd, err := newRunCommand(g, cmdArgs)
		if err != nil {
			return err
		}
		return cmd.Execute()
	case "status":
		cmd, err := newStatusCommand(g, cmdArgs)
		if err != nil {
			return err
		}
		return cmd.Execute()
	case "logs":
		cmd, err := newLogsCommand(g, cmdArgs)
		if err != nil {
			return err
		}
		return cmd.Execute()
	case "metrics":
		cmd, err := newMetricsCommand(g, cmdArgs)
		if err != nil {
			return err
		}
		return cmd.Execute()
	case "export":
		cmd, err := newExportCommand(g, cmdArgs)
		if err != nil {
			return err
		}
		return cmd.Execute()
	case "history":
		cmd, err := newHistoryCommand(g, cmdArgs)
		if err != nil {
			return err
		}
		return cmd.Execute()
	case "config":
		cmd := &configCommand{global: g}
		return cmd.Execute(cmdArgs)
	case "help":
		return showUsage(os.Stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// openSession builds a session for g, with a diagnostic logger configured
// from the project's configuration when it loads.
func openSession(g globalOptions) (*session.Session, logger.Logger) {
	log := logger.Default()
	if cfg, err := config.Load(g.resolvedConfigPath()); err == nil {
		log = logger.New(logger.Config{
			Level:  cfg.Diagnostics.Level,
			Format: cfg.Diagnostics.Format,
			Output: cfg.Diagnostics.Output,
		})
	}

	opts := session.Options{Root: g.root, ConfigPath: g.configPath}
	return session.New(opts, log), log
}

// resolvedConfigPath returns -config, or the default path under -root.
func (g globalOptions) resolvedConfigPath() string {
	if g.configPath != "" {
		return g.configPath
	}
	return config.DefaultPath(g.root)
}

// showUsage displays usage information.
func showUsage(w io.Writer) error {
	usage := `Autowatch - run commands when project files change

Usage:
  autowatch [flags] <command> [command flags]

Commands:
  run         Watch the project in the foreground
  status      Show session configuration and metrics
  logs        Show recent execution records
  metrics     Show execution metrics
  export      Export metrics to a file
  history     List recorded watch runs
  config      Configuration management (show, init, validate, path)
  help        Show this help message

Global Flags:
  -config     Path to configuration file
  -root       Project root to watch (default: .)
  -version    Show version information

Run Command Flags:
  -events     Print every surfaced file change
  -live       Redraw a status dashboard in place
  -refresh    Dashboard refresh interval (default: 1s)

Logs Command Flags:
  -n          Number of records (default: 20)
  -f          Follow the log as records are appended
  -format     Output format (table, json, simple)

Metrics/Status/History Flags:
  -format     Output format (table, json, simple)
  -n          Number of runs (history only, default: 10)

Export Command Flags:
  -format     Export format (json, csv)
  -out        Output file path

Signals (run):
  SIGINT/SIGTERM stop the session, SIGHUP reloads configuration and restarts.

Examples:
  # Create a default configuration
  autowatch config init

  # Watch the current project
  autowatch run

  # Follow the execution log
  autowatch logs -f

  # Export metrics as CSV
  autowatch export -format csv -out metrics.csv

Version: %s
`

	_, err := fmt.Fprintf(w, usage, version)
	return err
}
