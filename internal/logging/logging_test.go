package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func captureOutput(t *testing.T, format string, level Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(level)
	SetFormat(format)
	t.Cleanup(func() {
		SetFormat("text")
		SetLevel(LevelInfo)
		SetOutput(nil)
	})
	return &buf
}

func decodeLine(t *testing.T, raw string) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &entry); err != nil {
		t.Fatalf("invalid JSON log line: %v\nline: %s", err, raw)
	}
	return entry
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t, "json", LevelInfo)

	Info("migrated %d rows", 42)

	entry := decodeLine(t, buf.String())
	if _, ok := entry["ts"]; !ok {
		t.Error("JSON log line missing ts")
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["msg"] != "migrated 42 rows" {
		t.Errorf("msg = %v", entry["msg"])
	}
}

func TestTextFormat(t *testing.T) {
	buf := captureOutput(t, "text", LevelInfo)

	Info("migrated %d rows", 42)

	out := buf.String()
	if !strings.Contains(out, "[INFO]") {
		t.Errorf("text line missing level tag: %s", out)
	}
	if !strings.Contains(out, "migrated 42 rows") {
		t.Errorf("text line missing message: %s", out)
	}
}

func TestJSONLevelNames(t *testing.T) {
	cases := []struct {
		name string
		log  func(string, ...interface{})
		want string
	}{
		{"debug", Debug, "debug"},
		{"info", Info, "info"},
		{"warn", Warn, "warn"},
		{"error", Error, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := captureOutput(t, "json", LevelDebug)
			tc.log("x")
			entry := decodeLine(t, buf.String())
			if entry["level"] != tc.want {
				t.Errorf("level = %v, want %s", entry["level"], tc.want)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t, "text", LevelWarn)

	Debug("hidden")
	Info("hidden")
	Warn("shown")
	Error("shown too")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("messages below the level must be dropped: %s", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "shown too") {
		t.Errorf("warn and error must pass: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if tc.wantErr != (err != nil) {
			t.Errorf("ParseLevel(%q) error = %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
