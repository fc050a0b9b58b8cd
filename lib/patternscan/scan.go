// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package patternscan

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// binaryProbeSize is how much of a file is checked for a NUL byte.
const binaryProbeSize = 8000

// Finding is one forbidden substring on one line.
type Finding struct {
	// Path is slash-separated and relative to the scan root.
	Path string `json:"path"`

	// Line and Column are 1-based. Column counts bytes.
	Line   int `json:"line"`
	Column int `json:"column"`

	Rule    string `json:"rule"`
	Pattern string `json:"pattern"`
	Message string `json:"message,omitempty"`

	// Text is the offending line with surrounding whitespace trimmed.
	Text string `json:"text"`
}

// String formats the finding the way compilers report errors, so
// editors can jump to it.
func (f Finding) String() string {
	text := fmt.Sprintf("%s:%d:%d: %s: found %q", f.Path, f.Line, f.Column, f.Rule, f.Pattern)
	if f.Message != "" {
		text += " (" + f.Message + ")"
	}
	return text
}

// Options configures Scan.
type Options struct {
	// Workers bounds the number of files read at once. Zero means
	// GOMAXPROCS.
	Workers int

	// Logger receives per-scan summary and skipped-file events. Nil
	// discards them.
	Logger *slog.Logger
}

// Scan checks every file under root against rules.
func Scan(ctx context.Context, root string, rules []Rule, options Options) ([]Finding, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("no rules to scan with")
	}
	if err := validateRules(rules); err != nil {
		return nil, err
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	workers := options.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var (
		mu       sync.Mutex
		findings []Finding
		files    int
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	walkErr := filepath.WalkDir(root, func(filePath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := groupCtx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			if filePath != root && skipDirectory(entry.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		relative, err := filepath.Rel(root, filePath)
		if err != nil {
			return err
		}
		relative = filepath.ToSlash(relative)

		applicable := applicableRules(rules, relative)
		if len(applicable) == 0 {
			return nil
		}
		group.Go(func() error {
			found, scanned, err := scanFile(filePath, relative, applicable)
			if err != nil {
				return err
			}
			if !scanned {
				logger.Debug("skipped binary file", "path", relative)
				return nil
			}
			mu.Lock()
			findings = append(findings, found...)
			files++
			mu.Unlock()
			return nil
		})
		return nil
	})
	// A failed worker cancels groupCtx, which also stops the walk;
	// report the worker's error rather than the cancellation.
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, fmt.Errorf("walking %s: %w", root, walkErr)
	}

	slices.SortFunc(findings, compareFindings)
	logger.Info("pattern scan finished",
		"root", root,
		"rules", len(rules),
		"files", files,
		"findings", len(findings),
	)
	return findings, nil
}

func skipDirectory(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor"
}

func applicableRules(rules []Rule, relativePath string) []Rule {
	var applicable []Rule
	for _, rule := range rules {
		if rule.AppliesTo(relativePath) {
			applicable = append(applicable, rule)
		}
	}
	return applicable
}

// scanFile reports whether the file was scanned; binary files are not.
func scanFile(filePath, relativePath string, rules []Rule) ([]Finding, bool, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", relativePath, err)
	}
	if bytes.IndexByte(data[:min(len(data), binaryProbeSize)], 0) >= 0 {
		return nil, false, nil
	}
	return scanContent(relativePath, data, rules), true, nil
}

func scanContent(relativePath string, data []byte, rules []Rule) []Finding {
	var findings []Finding
	lineNumber := 0
	for len(data) > 0 {
		lineNumber++
		line := data
		if index := bytes.IndexByte(data, '\n'); index >= 0 {
			line, data = data[:index], data[index+1:]
		} else {
			data = nil
		}
		for _, rule := range rules {
			if bytes.Contains(line, []byte(rule.EscapeMarker())) {
				continue
			}
			for _, pattern := range rule.Patterns {
				column := bytes.Index(line, []byte(pattern))
				if column < 0 {
					continue
				}
				findings = append(findings, Finding{
					Path:    relativePath,
					Line:    lineNumber,
					Column:  column + 1,
					Rule:    rule.Name,
					Pattern: pattern,
					Message: rule.Message,
					Text:    strings.TrimSpace(string(line)),
				})
			}
		}
	}
	return findings
}

func compareFindings(a, b Finding) int {
	return cmp.Or(
		cmp.Compare(a.Path, b.Path),
		cmp.Compare(a.Line, b.Line),
		cmp.Compare(a.Column, b.Column),
		cmp.Compare(a.Rule, b.Rule),
		cmp.Compare(a.Pattern, b.Pattern),
	)
}
