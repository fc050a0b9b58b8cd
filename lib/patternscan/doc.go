// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package patternscan finds forbidden substrings in source trees.
//
// A [Rule] names a set of substrings that must not appear in the files
// it applies to. Include and exclude globs select the files: a glob
// containing a slash is matched against the slash-separated path
// relative to the scan root, any other glob against the base name, and
// a trailing "/**" matches everything under a directory. A line that
// carries the rule's escape marker (by default "nolint:<rule name>")
// is exempt from that rule, the same convention the Go linters use:
//
//	time.Sleep(10 * time.Millisecond) //nolint:realclock
//
// Rules are usually loaded from YAML with [LoadRules]:
//
//	rules:
//	  - name: realclock
//	    message: use an injected clock in tests
//	    patterns: ["time.Sleep("]
//	    include: ["*_test.go"]
//
// [Scan] walks a tree and checks files in a bounded worker pool.
// Directories whose names start with "." or "_", and vendor
// directories, are never entered. Files containing a NUL byte in their
// first block are treated as binary and skipped. Findings are returned
// sorted by path, line, and column, so output is stable across runs.
//
// The pagestore lint command runs this package over the repository as
// part of CI and exits non-zero when anything is found.
package patternscan
