// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package patternscan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAppliesTo(t *testing.T) {
	rule := Rule{
		Name:     "example",
		Patterns: []string{"x"},
		Include:  []string{"lib/**", "*.go"},
		Exclude:  []string{"*_test.go", "lib/generated/*.go"},
	}
	tests := []struct {
		path string
		want bool
	}{
		{"main.go", true},
		{"cmd/tool/main.go", true},
		{"lib/store/notes.txt", true},
		{"lib/store/store_test.go", false},
		{"cmd/tool/main_test.go", false},
		{"lib/generated/types.go", false},
		{"lib/generated/deeper/types.go", true},
		{"README.md", false},
		{"library/file.txt", false},
	}
	for _, test := range tests {
		if got := rule.AppliesTo(test.path); got != test.want {
			t.Errorf("AppliesTo(%q) = %v, want %v", test.path, got, test.want)
		}
	}

	everything := Rule{Name: "all", Patterns: []string{"x"}}
	if !everything.AppliesTo("any/file/at/all") {
		t.Error("a rule without Include should apply to every file")
	}
}

func TestEscapeMarker(t *testing.T) {
	if got := (Rule{Name: "realclock"}).EscapeMarker(); got != "nolint:realclock" {
		t.Errorf("default marker = %q", got)
	}
	if got := (Rule{Name: "realclock", Marker: "allow-clock"}).EscapeMarker(); got != "allow-clock" {
		t.Errorf("custom marker = %q", got)
	}
}

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]byte(`
rules:
  - name: nopanic
    message: return an error
    patterns: ["panic("]
    include: ["lib/**"]
    exclude: ["*_test.go"]
  - name: noexit
    patterns: ["os.Exit("]
    marker: "exit-ok"
`))
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(rules))
	}
	if rules[0].Name != "nopanic" || rules[0].Message != "return an error" ||
		len(rules[0].Include) != 1 || rules[0].Exclude[0] != "*_test.go" {
		t.Errorf("first rule = %+v", rules[0])
	}
	if rules[1].EscapeMarker() != "exit-ok" {
		t.Errorf("second rule marker = %q", rules[1].EscapeMarker())
	}
}

func TestParseRulesErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "not yaml",
			input: "rules: [",
			want:  []string{"parsing rules"},
		},
		{
			name:  "empty",
			input: "rules: []",
			want:  []string{"defines no rules"},
		},
		{
			name: "several problems",
			input: `
rules:
  - patterns: ["a"]
  - name: nopatterns
  - name: badglob
    patterns: ["b"]
    include: ["[oops"]
  - name: twice
    patterns: ["c"]
  - name: twice
    patterns: ["d"]
`,
			want: []string{
				"rule name is required",
				`rule "nopatterns": at least one pattern is required`,
				`rule "badglob": glob "[oops"`,
				`rule "twice" defined twice`,
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ParseRules([]byte(test.input))
			if err == nil {
				t.Fatal("ParseRules should fail")
			}
			for _, want := range test.want {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := "rules:\n  - name: todo\n    patterns: [\"XXX\"]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(rules) != 1 || rules[0].Name != "todo" {
		t.Errorf("rules = %+v", rules)
	}

	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadRules of a missing file should fail")
	}
}

func TestDefaultRulesValidate(t *testing.T) {
	if err := validateRules(DefaultRules()); err != nil {
		t.Fatalf("default rules are invalid: %v", err)
	}
}
