// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package patternscan

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule forbids a set of substrings in the files it applies to.
type Rule struct {
	// Name identifies the rule in findings and forms the default
	// escape marker.
	Name string `yaml:"name"`

	// Message is shown with each finding, typically the alternative
	// to use instead.
	Message string `yaml:"message,omitempty"`

	// Patterns are the forbidden substrings, matched literally.
	Patterns []string `yaml:"patterns"`

	// Include selects the files the rule applies to. Empty means
	// every file.
	Include []string `yaml:"include,omitempty"`

	// Exclude removes files selected by Include.
	Exclude []string `yaml:"exclude,omitempty"`

	// Marker exempts a line from the rule when it appears anywhere on
	// that line. Defaults to "nolint:" followed by Name.
	Marker string `yaml:"marker,omitempty"`
}

// EscapeMarker returns the marker that exempts a line from the rule.
func (r Rule) EscapeMarker() string {
	if r.Marker != "" {
		return r.Marker
	}
	return "nolint:" + r.Name
}

// Validate reports every problem with the rule.
func (r Rule) Validate() error {
	var errs []error
	if r.Name == "" {
		errs = append(errs, fmt.Errorf("rule name is required"))
	}
	if len(r.Patterns) == 0 {
		errs = append(errs, fmt.Errorf("rule %q: at least one pattern is required", r.Name))
	}
	for _, pattern := range r.Patterns {
		if pattern == "" {
			errs = append(errs, fmt.Errorf("rule %q: empty pattern", r.Name))
		}
	}
	for _, glob := range append(append([]string(nil), r.Include...), r.Exclude...) {
		if err := checkGlob(glob); err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", r.Name, err))
		}
	}
	return errors.Join(errs...)
}

// AppliesTo reports whether the rule checks the file at relativePath,
// a slash-separated path relative to the scan root.
func (r Rule) AppliesTo(relativePath string) bool {
	if len(r.Include) > 0 && !matchAny(r.Include, relativePath) {
		return false
	}
	return !matchAny(r.Exclude, relativePath)
}

func matchAny(globs []string, relativePath string) bool {
	for _, glob := range globs {
		if matchGlob(glob, relativePath) {
			return true
		}
	}
	return false
}

func matchGlob(glob, relativePath string) bool {
	if directory, ok := strings.CutSuffix(glob, "/**"); ok {
		return relativePath == directory || strings.HasPrefix(relativePath, directory+"/")
	}
	target := relativePath
	if !strings.Contains(glob, "/") {
		target = path.Base(relativePath)
	}
	matched, _ := path.Match(glob, target)
	return matched
}

func checkGlob(glob string) error {
	if glob == "" {
		return fmt.Errorf("empty glob")
	}
	glob = strings.TrimSuffix(glob, "/**")
	if _, err := path.Match(glob, ""); err != nil {
		return fmt.Errorf("glob %q: %w", glob, err)
	}
	return nil
}

// ruleFile is the YAML document read by ParseRules.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// ParseRules decodes and validates a YAML rule document.
func ParseRules(data []byte) ([]Rule, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("rule file defines no rules")
	}
	if err := validateRules(file.Rules); err != nil {
		return nil, err
	}
	return file.Rules, nil
}

// LoadRules reads a YAML rule file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules: %w", err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

func validateRules(rules []Rule) error {
	var errs []error
	seen := make(map[string]bool, len(rules))
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			errs = append(errs, err)
		}
		if rule.Name != "" && seen[rule.Name] {
			errs = append(errs, fmt.Errorf("rule %q defined twice", rule.Name))
		}
		seen[rule.Name] = true
	}
	return errors.Join(errs...)
}

// DefaultRules returns the checks run when no rule file is given.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "realclock",
			Message:  "tests must not wait on the wall clock; poll a condition or inject a clock",
			Patterns: []string{"time.Sleep(", "time.After("},
			Include:  []string{"*_test.go"},
		},
		{
			Name:     "debugprint",
			Message:  "libraries log through *slog.Logger, they do not print",
			Patterns: []string{"fmt.Print", "println("}, //nolint:debugprint
			Include:  []string{"lib/**"},
			Exclude:  []string{"*_test.go"},
		},
	}
}
