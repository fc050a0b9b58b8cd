// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/pagestore/cmd/pagestore/cli"
	"github.com/bureau-foundation/pagestore/lib/config"
	"github.com/bureau-foundation/pagestore/lib/version"
)

// app carries the process streams so commands can be run in tests.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func (a *app) rootCommand() *cli.Command {
	var showVersion bool
	root := &cli.Command{
		Name:        "pagestore",
		Summary:     "Region-based page store files",
		Description: "Create, inspect, and maintain page store files, and scan sources for forbidden patterns.",
		Output:      a.stderr,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("pagestore", pflag.ContinueOnError)
			flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
			return flagSet
		},
		Subcommands: []*cli.Command{
			a.layoutCommand(),
			a.createCommand(),
			a.infoCommand(),
			a.allocCommand(),
			a.freeCommand(),
			a.snapshotCommand(),
			a.restoreCommand(),
			a.lintCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Create a store and allocate a block of four pages",
				Command:     "pagestore create --store data.pgs && pagestore alloc --store data.pgs --order 2",
			},
		},
	}
	root.Run = func(args []string) error {
		if showVersion {
			fmt.Fprintln(a.stdout, "pagestore", version.Full())
			return nil
		}
		root.PrintHelp(a.stderr)
		return fmt.Errorf("subcommand required")
	}
	return root
}

// commonFlags are accepted by every command that reads configuration.
type commonFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func (c *commonFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.configPath, "config", "", "config file (default $"+config.EnvVar+", else built-in defaults)")
	flagSet.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.StringVar(&c.logFormat, "log-format", "", "log format: auto, text, json")
}

// load returns the validated configuration with flag overrides applied.
func (c *commonFlags) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case c.configPath != "":
		cfg, err = config.LoadFile(c.configPath)
	case os.Getenv(config.EnvVar) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Log.Format = c.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// logger builds the command logger on stderr.
func (a *app) logger(cfg *config.Config, command string) (*slog.Logger, error) {
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return nil, err
	}
	logger, err := cli.NewCommandLogger(a.stderr, cli.LoggerOptions{Level: level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}
	return logger.With("command", command), nil
}

// setup loads configuration and builds the logger in one step, which
// is how every command begins.
func (a *app) setup(common *commonFlags, command string) (*config.Config, *slog.Logger, error) {
	cfg, err := common.load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := a.logger(cfg, command)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func storePath(flagValue string, cfg *config.Config) string {
	if flagValue != "" {
		return flagValue
	}
	return cfg.Store.Path
}
