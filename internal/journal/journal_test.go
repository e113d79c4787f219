package journal

import (
	"testing"
	"time"
)

func TestRunLifecycle(t *testing.T) {
	j, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer j.Close()

	if err := j.CreateRun("run-1", "ERP.FDB", "ERP_DEST"); err != nil {
		t.Fatalf("CreateRun error: %v", err)
	}

	runs, err := j.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if runs[0].Status != StatusRunning {
		t.Errorf("status = %q, want %q", runs[0].Status, StatusRunning)
	}
	if runs[0].CompletedAt != nil {
		t.Error("completed_at should be nil while running")
	}

	if err := j.CompleteRun("run-1", StatusCompleted); err != nil {
		t.Fatalf("CompleteRun error: %v", err)
	}

	runs, err = j.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns error: %v", err)
	}
	if runs[0].Status != StatusCompleted {
		t.Errorf("status = %q, want %q", runs[0].Status, StatusCompleted)
	}
	if runs[0].CompletedAt == nil {
		t.Error("completed_at missing after completion")
	}
}

func TestRecordTableUpsert(t *testing.T) {
	j, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer j.Close()

	if err := j.CreateRun("run-1", "ERP.FDB", "ERP_DEST"); err != nil {
		t.Fatalf("CreateRun error: %v", err)
	}

	first := TableRecord{
		RunID:  "run-1",
		Table:  "CLIENTES",
		Status: StatusFailed,
		Rows:   100,
		Error:  "boom",
	}
	if err := j.RecordTable(first); err != nil {
		t.Fatalf("RecordTable error: %v", err)
	}

	second := first
	second.Status = StatusCompleted
	second.Rows = 12500
	second.ManualFixes = 2
	second.Duration = 3 * time.Second
	second.Error = ""
	if err := j.RecordTable(second); err != nil {
		t.Fatalf("RecordTable upsert error: %v", err)
	}

	records, err := j.RunTables("run-1")
	if err != nil {
		t.Fatalf("RunTables error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1 after upsert", len(records))
	}
	got := records[0]
	if got.Status != StatusCompleted || got.Rows != 12500 || got.ManualFixes != 2 {
		t.Errorf("upserted record = %+v", got)
	}
	if got.Duration != 3*time.Second {
		t.Errorf("duration = %v, want 3s", got.Duration)
	}
	if got.Error != "" {
		t.Errorf("error should be cleared, got %q", got.Error)
	}
}

func TestRecentRunsOrderAndLimit(t *testing.T) {
	j, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer j.Close()

	for _, id := range []string{"a", "b", "c"} {
		if err := j.CreateRun(id, "src", "dst"); err != nil {
			t.Fatalf("CreateRun(%s) error: %v", id, err)
		}
	}
	// Spread started_at so the ordering is deterministic.
	for i, id := range []string{"a", "b", "c"} {
		ts := time.Now().Add(time.Duration(i-3) * time.Hour).UTC().Format("2006-01-02 15:04:05")
		if _, err := j.db.Exec(`UPDATE runs SET started_at = ? WHERE id = ?`, ts, id); err != nil {
			t.Fatalf("update started_at error: %v", err)
		}
	}

	runs, err := j.RecentRuns(2)
	if err != nil {
		t.Fatalf("RecentRuns error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("order = [%s %s], want [c b]", runs[0].ID, runs[1].ID)
	}
}
