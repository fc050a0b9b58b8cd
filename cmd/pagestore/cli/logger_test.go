// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewCommandLogger_AutoIsJSONWhenNotTerminal(t *testing.T) {
	var buffer bytes.Buffer
	logger, err := NewCommandLogger(&buffer, LoggerOptions{})
	if err != nil {
		t.Fatalf("NewCommandLogger: %v", err)
	}
	logger.Info("page store created", "regions", 3)

	var record map[string]any
	if err := json.Unmarshal(buffer.Bytes(), &record); err != nil {
		t.Fatalf("log output is not JSON: %q", buffer.String())
	}
	if record["msg"] != "page store created" || record["regions"] != float64(3) {
		t.Errorf("record = %v", record)
	}
}

func TestNewCommandLogger_Text(t *testing.T) {
	var buffer bytes.Buffer
	logger, err := NewCommandLogger(&buffer, LoggerOptions{Format: "text"})
	if err != nil {
		t.Fatalf("NewCommandLogger: %v", err)
	}
	logger.Info("snapshot written", "compression", "zstd")
	if !strings.Contains(buffer.String(), `msg="snapshot written" compression=zstd`) {
		t.Errorf("text output = %q", buffer.String())
	}
}

func TestNewCommandLogger_Level(t *testing.T) {
	var buffer bytes.Buffer
	logger, err := NewCommandLogger(&buffer, LoggerOptions{Level: slog.LevelWarn, Format: "json"})
	if err != nil {
		t.Fatalf("NewCommandLogger: %v", err)
	}
	logger.Info("hidden")
	if buffer.Len() != 0 {
		t.Errorf("info record written at warn level: %q", buffer.String())
	}
	logger.Warn("shown")
	if !strings.Contains(buffer.String(), "shown") {
		t.Errorf("warn record missing: %q", buffer.String())
	}
}

func TestNewCommandLogger_UnknownFormat(t *testing.T) {
	if _, err := NewCommandLogger(&bytes.Buffer{}, LoggerOptions{Format: "xml"}); err == nil {
		t.Error("NewCommandLogger with format xml should fail")
	}
}

func TestWriteJSON(t *testing.T) {
	var buffer bytes.Buffer
	var empty []string
	if err := WriteJSON(&buffer, empty); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if got := strings.TrimSpace(buffer.String()); got != "[]" {
		t.Errorf("nil slice written as %q, want []", got)
	}

	buffer.Reset()
	if err := WriteJSON(&buffer, map[string]int{"regions": 2}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if got := buffer.String(); got != "{\n  \"regions\": 2\n}\n" {
		t.Errorf("WriteJSON = %q", got)
	}
}
