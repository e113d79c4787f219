package progress

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestJSONReporterWritesOneLinePerUpdate(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONReporter(&buf, 0)
	defer r.Close()

	r.ReportImmediate(Update{
		Phase:        "starting",
		TablesTotal:  3,
		RowsTotal:    150,
		RowsMigrated: 0,
	})

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected a JSON line")
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\nline: %s", err, line)
	}
	if decoded["phase"] != "starting" {
		t.Errorf("phase = %v, want starting", decoded["phase"])
	}
	if decoded["tables_total"] != float64(3) {
		t.Errorf("tables_total = %v, want 3", decoded["tables_total"])
	}
	if _, ok := decoded["timestamp"]; !ok {
		t.Error("missing timestamp field")
	}
}

func TestJSONReporterThrottles(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONReporter(&buf, time.Hour)
	defer r.Close()

	r.Report(Update{Phase: "migrating", RowsMigrated: 10})
	r.Report(Update{Phase: "migrating", RowsMigrated: 20})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected the second update to be throttled, got %d lines", len(lines))
	}

	// Phase transitions bypass the throttle.
	r.ReportImmediate(Update{Phase: "completed", RowsMigrated: 20})
	lines = strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("immediate update must bypass throttling, got %d lines", len(lines))
	}
}

func TestJSONReporterClosedDiscards(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONReporter(&buf, 0)
	r.Close()

	r.Report(Update{Phase: "migrating"})
	r.ReportImmediate(Update{Phase: "completed"})

	if buf.Len() != 0 {
		t.Errorf("closed reporter must not write, got %q", buf.String())
	}
}

func TestTrackerCountsManualFixes(t *testing.T) {
	tracker := New()
	if tracker.ManualFixes() != 0 {
		t.Fatalf("new tracker fixes = %d, want 0", tracker.ManualFixes())
	}
	tracker.AddManualFix()
	tracker.AddManualFix()
	if tracker.ManualFixes() != 2 {
		t.Errorf("fixes = %d, want 2", tracker.ManualFixes())
	}
}
