package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/0xmhha/autowatch/pkg/config"
)

// configCommand handles configuration management subcommands.
type configCommand struct {
	global globalOptions

	// in answers the overwrite prompt. Default: os.Stdin.
	in io.Reader
	// out receives command output. Default: os.Stdout.
	out io.Writer
}

// Execute runs the config command with given arguments.
func (c *configCommand) Execute(args []string) error {
	if c.in == nil {
		c.in = os.Stdin
	}
	if c.out == nil {
		c.out = os.Stdout
	}

	if len(args) == 0 {
		return c.showHelp()
	}

	subcommand := args[0]
	subargs := args[1:]

	switch subcommand {
	case "show":
		return c.runShow(subargs)
	case "init":
		return c.runInit(subargs)
	case "validate":
		return c.runValidate()
	case "path":
		return c.runPath()
	case "help":
		return c.showHelp()
	default:
		return fmt.Errorf("unknown config subcommand: %s", subcommand)
	}
}

// runShow displays the effective configuration.
func (c *configCommand) runShow(args []string) error {
	fs := flag.NewFlagSet("config show", flag.ContinueOnError)
	format := fs.String("format", "yaml", "output format (yaml, json)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(c.global.resolvedConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch *format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		_, err = fmt.Fprintln(c.out, string(data))
		return err
	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Fprintln(c.out, "# Effective configuration")
		fmt.Fprintln(c.out, "# Source:", c.source())
		fmt.Fprintln(c.out)
		_, err = c.out.Write(data)
		return err
	default:
		return fmt.Errorf("unknown format %q (yaml, json)", *format)
	}
}

// runInit writes the default configuration.
func (c *configCommand) runInit(args []string) error {
	fs := flag.NewFlagSet("config init", flag.ContinueOnError)
	force := fs.Bool("force", false, "overwrite without asking")

	if err := fs.Parse(args); err != nil {
		return err
	}

	path := c.global.resolvedConfigPath()

	if _, err := os.Stat(path); err == nil && !*force {
		fmt.Fprintf(c.out, "Configuration file already exists at: %s\n", path)
		fmt.Fprint(c.out, "Overwrite? [y/N]: ")

		response, err := bufio.NewReader(c.in).ReadString('\n')
		if err != nil && response == "" {
			fmt.Fprintln(c.out, "\nInit cancelled.")
			return nil
		}
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(c.out, "Init cancelled.")
			return nil
		}
	}

	if err := config.Save(config.Default(), path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(c.out, "Default configuration written to: %s\n", path)
	return nil
}

// runValidate loads and validates the configuration file.
func (c *configCommand) runValidate() error {
	path := c.global.resolvedConfigPath()

	cfg, err := config.NewLoader(path).LoadFromFile(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	fmt.Fprintf(c.out, "%s is valid: %d pattern(s), %d action(s)\n",
		path, len(cfg.Patterns), len(cfg.Actions))
	return nil
}

// runPath shows the configuration file path.
func (c *configCommand) runPath() error {
	path := c.global.resolvedConfigPath()

	exists := "not found, using defaults"
	if _, err := os.Stat(path); err == nil {
		exists = "found"
	}

	_, err := fmt.Fprintf(c.out, "%s [%s]\n", path, exists)
	return err
}

// source describes where the effective configuration comes from.
func (c *configCommand) source() string {
	path := c.global.resolvedConfigPath()
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return "defaults (no config file found)"
}

// showHelp displays help for config command.
func (c *configCommand) showHelp() error {
	help := `Config - Configuration management

Usage:
  autowatch config <subcommand> [flags]

Subcommands:
  show      Display the effective configuration
  init      Write the default configuration file
  validate  Check the configuration file
  path      Show the configuration file path

Show Flags:
  -format   Output format (yaml, json) (default: yaml)

Init Flags:
  -force    Overwrite an existing file without asking

The file format follows the extension: .yaml/.yml is YAML, anything else JSON.
`
	_, err := fmt.Fprint(c.out, help)
	return err
}
