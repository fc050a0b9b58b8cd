// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the pagestore
// command.
//
// Configuration is loaded from a single file specified by either the
// PAGESTORE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search. Commands run without either use [Default].
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No environment
// variable overrides any other value.
//
// Byte sizes are written the way people write them ("4KiB", "1 GiB")
// and parsed with go-humanize; [Config.Validate] reports every
// unparseable or out-of-range field at once.
//
// This package depends on no other pagestore packages.
package config
