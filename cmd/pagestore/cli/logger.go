// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/term"
)

// LoggerOptions configures NewCommandLogger.
type LoggerOptions struct {
	Level slog.Level

	// Format is "auto", "text", or "json". Empty means auto.
	Format string
}

// NewCommandLogger creates a structured logger for CLI command
// operations writing to w. In auto format, a terminal gets
// slog.TextHandler for human-readable output and anything else (CI,
// scripts, pipes) gets slog.JSONHandler for machine-parseable output.
//
// Callers scope the logger with command-specific context via With():
//
//	logger = logger.With("command", "snapshot", "store", path)
func NewCommandLogger(w io.Writer, options LoggerOptions) (*slog.Logger, error) {
	handlerOptions := &slog.HandlerOptions{Level: options.Level}
	format := options.Format
	if format == "" || format == "auto" {
		format = "json"
		if isTerminal(w) {
			format = "text"
		}
	}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, handlerOptions)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOptions)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want auto, text, or json)", options.Format)
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(file.Fd()))
}
