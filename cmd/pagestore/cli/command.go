// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// Command is one node of the command tree. A command either dispatches
// to Subcommands by its first positional argument or handles the
// arguments itself in Run. The root may have both: Run then handles
// invocations whose first argument is a flag (such as --version).
type Command struct {
	Name string

	// Summary is the one-line description in the parent's listing.
	Summary string

	// Description replaces Summary at the top of the command's own help.
	Description string

	// Usage overrides the synthesized usage line, for commands that take
	// positional arguments (e.g. "pagestore free [flags] PAGE...").
	Usage string

	Examples []Example

	// Flags builds the command's flag set. It is called once per parse,
	// so it must return a fresh set bound to the command's variables.
	Flags func() *pflag.FlagSet

	Subcommands []*Command

	// Run receives the positional arguments left after flag parsing.
	Run func(args []string) error

	// Output receives help text. Unset commands use their parent's,
	// and the root falls back to os.Stderr.
	Output io.Writer

	parent *Command
}

// Example is a command line shown in help, with an optional comment.
type Example struct {
	Description string
	Command     string
}

// UsageError reports a command line that could not be dispatched or
// parsed. Its message points at the command's --help. The process
// exits with code 2, as for any other invocation error.
type UsageError struct {
	// Command is the full path of the command that rejected the input.
	Command string

	Message string

	// Suggestion is the closest valid spelling, already formatted for
	// display. Empty when nothing was close enough.
	Suggestion string
}

func (e *UsageError) Error() string {
	var message strings.Builder
	message.WriteString(e.Message)
	if e.Suggestion != "" {
		fmt.Fprintf(&message, " (did you mean %s?)", e.Suggestion)
	}
	fmt.Fprintf(&message, "\n\nRun '%s --help' for usage.", e.Command)
	return message.String()
}

// ExitCode returns 2.
func (e *UsageError) ExitCode() int {
	return 2
}

// Execute dispatches args through the tree and runs the selected
// command.
func (c *Command) Execute(args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(c.output())
		return nil
	}

	if len(c.Subcommands) > 0 && len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub, err := c.subcommand(args[0])
		if err != nil {
			return err
		}
		return sub.Execute(args[1:])
	}

	if c.Run == nil {
		c.PrintHelp(c.output())
		switch {
		case len(c.Subcommands) == 0:
			return fmt.Errorf("no action defined for %q", c.fullName())
		case len(args) == 0:
			return errors.New("subcommand required")
		default:
			return fmt.Errorf("subcommand required (got flag %q)", args[0])
		}
	}

	positional, err := c.parseFlags(args)
	if errors.Is(err, pflag.ErrHelp) {
		c.PrintHelp(c.output())
		return nil
	}
	if err != nil {
		return err
	}
	return c.Run(positional)
}

func (c *Command) subcommand(name string) (*Command, error) {
	for _, sub := range c.Subcommands {
		if sub.Name == name {
			sub.parent = c
			return sub, nil
		}
	}
	usage := &UsageError{Command: c.fullName(), Message: fmt.Sprintf("unknown command %q", name)}
	if suggestion := suggestCommand(name, c.Subcommands); suggestion != "" {
		usage.Suggestion = fmt.Sprintf("%q", suggestion)
	}
	return nil, usage
}

// parseFlags returns the positional arguments. pflag.ErrHelp is
// returned unwrapped so Execute can print help instead of failing.
func (c *Command) parseFlags(args []string) ([]string, error) {
	if c.Flags == nil {
		return args, nil
	}
	flagSet := c.Flags()
	flagSet.SetOutput(io.Discard)
	err := flagSet.Parse(args)
	if err == nil {
		return flagSet.Args(), nil
	}
	if errors.Is(err, pflag.ErrHelp) {
		return nil, err
	}
	usage := &UsageError{Command: c.fullName(), Message: err.Error()}
	if strings.Contains(usage.Message, "unknown flag") || strings.Contains(usage.Message, "unknown shorthand flag") {
		// The failed parse leaves the set half-populated; suggest from a
		// fresh one.
		usage.Suggestion = suggestFlag(args, c.Flags())
	}
	return nil, usage
}

// PrintHelp writes the command's help to w.
func (c *Command) PrintHelp(w io.Writer) {
	if text := cmp.Or(c.Description, c.Summary); text != "" {
		fmt.Fprintf(w, "%s\n\n", text)
	}
	fmt.Fprintf(w, "Usage:\n  %s\n", c.usageLine())

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		table := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(table, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		table.Flush()
	}

	if c.Flags != nil {
		if usage := c.Flags().FlagUsages(); usage != "" {
			fmt.Fprintf(w, "\nFlags:\n%s", usage)
		}
	}

	if len(c.Examples) > 0 {
		fmt.Fprintf(w, "\nExamples:\n")
		for i, example := range c.Examples {
			if i > 0 {
				fmt.Fprintln(w)
			}
			if example.Description != "" {
				fmt.Fprintf(w, "  # %s\n", example.Description)
			}
			fmt.Fprintf(w, "  %s\n", example.Command)
		}
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", c.fullName())
	}
}

func (c *Command) usageLine() string {
	switch {
	case c.Usage != "":
		return c.Usage
	case len(c.Subcommands) > 0:
		return c.fullName() + " <command> [flags]"
	default:
		return c.fullName() + " [flags]"
	}
}

// fullName is the command path from the root, e.g. "pagestore create".
func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

func (c *Command) output() io.Writer {
	for command := c; command != nil; command = command.parent {
		if command.Output != nil {
			return command.Output
		}
	}
	return os.Stderr
}

func isHelpFlag(arg string) bool {
	switch arg {
	case "-h", "--help", "help":
		return true
	}
	return false
}
