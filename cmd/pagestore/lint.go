// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/pagestore/cmd/pagestore/cli"
	"github.com/bureau-foundation/pagestore/lib/patternscan"
)

func (a *app) lintCommand() *cli.Command {
	var (
		common    commonFlags
		rulesFile string
		workers   int
		jsonOut   bool
	)
	return &cli.Command{
		Name:    "lint",
		Summary: "Scan sources for forbidden patterns",
		Description: "Scan the tree under ROOT (default lint.root from config) for forbidden substrings. " +
			"Exits 1 if anything is found and 2 if the scan could not run. A line containing " +
			"nolint:<rule> is exempt from that rule.",
		Usage: "pagestore lint [flags] [ROOT]",
		Examples: []cli.Example{
			{
				Description: "Run the built-in rules over the repository",
				Command:     "pagestore lint .",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("lint", pflag.ContinueOnError)
			common.register(flagSet)
			flagSet.StringVar(&rulesFile, "rules", "", "YAML rule file (default lint.rules_file from config, else built-in rules)")
			flagSet.IntVarP(&workers, "workers", "j", 0, "files scanned concurrently (default lint.workers from config)")
			flagSet.BoolVar(&jsonOut, "json", false, "output findings as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			findings, err := a.lint(args, &common, rulesFile, workers)
			if err != nil {
				fmt.Fprintf(a.stderr, "error: %v\n", err)
				return &cli.ExitError{Code: 2}
			}
			if jsonOut {
				if err := cli.WriteJSON(a.stdout, findings); err != nil {
					return err
				}
			} else {
				for _, finding := range findings {
					fmt.Fprintln(a.stdout, finding.String())
				}
			}
			if len(findings) > 0 {
				fmt.Fprintf(a.stderr, "%d forbidden pattern(s) found\n", len(findings))
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func (a *app) lint(args []string, common *commonFlags, rulesFile string, workers int) ([]patternscan.Finding, error) {
	if len(args) > 1 {
		return nil, fmt.Errorf("at most one root directory may be given")
	}
	cfg, logger, err := a.setup(common, "lint")
	if err != nil {
		return nil, err
	}
	root := cfg.Lint.Root
	if len(args) == 1 {
		root = args[0]
	}
	if rulesFile == "" {
		rulesFile = cfg.Lint.RulesFile
	}
	if workers == 0 {
		workers = cfg.Lint.Workers
	}

	rules := patternscan.DefaultRules()
	if rulesFile != "" {
		rules, err = patternscan.LoadRules(rulesFile)
		if err != nil {
			return nil, err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return patternscan.Scan(ctx, root, rules, patternscan.Options{Workers: workers, Logger: logger})
}
