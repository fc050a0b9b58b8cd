// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the pagestore
// binary: a [Command] tree dispatched by the first positional
// argument, pflag flag sets parsed at the leaf, help output, and
// "did you mean" suggestions for mistyped commands and flags.
//
// Handlers return errors. A returned [ExitError] sets the process exit
// code without an extra error line, for commands whose non-zero exit
// is an answer rather than a failure (lint with findings).
//
// [NewCommandLogger] builds the slog logger commands share, [ByteSize]
// is a pflag value for human-readable sizes, and [WriteJSON] backs
// every --json flag.
package cli
