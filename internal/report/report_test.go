package report

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/andresilva/fb-mssql-migrate/internal/adapter"
	"github.com/andresilva/fb-mssql-migrate/internal/compare"
)

func TestFinalizeRendersReport(t *testing.T) {
	dir := t.TempDir()
	w := New("ERP_DEST", dir)

	w.Log("table CLIENTES done: 12500 records in 3.20s")
	w.Log("[ERROR] table PEDIDOS failed: connection lost")
	w.Log("[WARN] 3 undecodable values replaced")
	w.SetSourceSize(2 * 1024 * 1024 * 1024)
	w.SetDestinationSize(1536 * 1024 * 1024)
	w.SetTotalDuration(95 * time.Second)
	w.MergeComparison(compare.Comparison{
		adapter.CategoryConstraints: {MissingInDestination: []string{"FK_PED_CLI"}},
	})

	path, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize error: %v", err)
	}
	if !strings.HasPrefix(path, dir) {
		t.Errorf("report written outside dir: %s", path)
	}
	if !strings.HasSuffix(path, ".html") {
		t.Errorf("report file name: %s", path)
	}
	if !strings.Contains(path, "ERP_DEST_") {
		t.Errorf("file name should carry the database name: %s", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	body := string(raw)

	for _, want := range []string{
		"Migration Report - ERP_DEST",
		"2.00 GB",
		"1.50 GB",
		"1m 35.00s",
		"log-entry error",
		"log-entry warning",
		"FK_PED_CLI",
		"Constraints",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestFinalizeEmptyComparison(t *testing.T) {
	w := New("ERP_DEST", t.TempDir())
	path, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize error: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), "No differences found") {
		t.Error("empty comparison should render the placeholder message")
	}
	if !strings.Contains(string(raw), "unavailable") {
		t.Error("missing sizes should render as unavailable")
	}
}

func TestFinalizeListsPendingConstraints(t *testing.T) {
	w := New("ERP_DEST", t.TempDir())
	w.SetPendingConstraints([]adapter.TableConstraint{
		{Table: "PEDIDOS", Constraint: "FK_PED_CLI"},
		{Table: "ITENS", Constraint: "FK_ITE_PED"},
	})

	path, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize error: %v", err)
	}
	raw, _ := os.ReadFile(path)
	body := string(raw)

	for _, want := range []string{"Constraints pending restoration", "FK_PED_CLI", "FK_ITE_PED", "PEDIDOS"} {
		if !strings.Contains(body, want) {
			t.Errorf("report missing %q", want)
		}
	}
	if strings.Contains(body, "All constraints were restored") {
		t.Error("placeholder must not render when constraints are pending")
	}
}

func TestFinalizeNoPendingConstraints(t *testing.T) {
	w := New("ERP_DEST", t.TempDir())
	path, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize error: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), "All constraints were restored") {
		t.Error("empty pending list should render the placeholder message")
	}
}

func TestLogEscapesHTML(t *testing.T) {
	w := New("DB", t.TempDir())
	w.Log("value <script>alert(1)</script>\nsecond line")
	path, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize error: %v", err)
	}
	raw, _ := os.ReadFile(path)
	body := string(raw)
	if strings.Contains(body, "<script>alert") {
		t.Error("log message not escaped")
	}
	if !strings.Contains(body, "<br/>") {
		t.Error("newlines should become <br/>")
	}
}

func TestWrapForwards(t *testing.T) {
	w := New("DB", t.TempDir())
	var forwarded []string
	logf := w.Wrap(func(format string, args ...any) {
		forwarded = append(forwarded, format)
	})
	logf("hello %s", "world")

	if len(forwarded) != 1 {
		t.Fatalf("expected forwarding, got %d calls", len(forwarded))
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.entries) != 1 || w.entries[0].Message != "hello world" {
		t.Errorf("entry not recorded: %+v", w.entries)
	}
}

func TestFormatSize(t *testing.T) {
	cases := []struct {
		bytes int64
		want  string
	}{
		{0, "unavailable"},
		{512, "512.00 bytes"},
		{1024, "1.00 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
	}
	for _, tc := range cases {
		if got := formatSize(tc.bytes); got != tc.want {
			t.Errorf("formatSize(%d) = %q, want %q", tc.bytes, got, tc.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30.00s"},
		{95 * time.Second, "1m 35.00s"},
		{3700 * time.Second, "1h 1m 40.00s"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.d); got != tc.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	if got := sanitizeName("ERP/PROD 2024"); got != "ERP_PROD_2024" {
		t.Errorf("sanitizeName = %q", got)
	}
	if got := sanitizeName("  "); got != "database" {
		t.Errorf("empty name should fall back, got %q", got)
	}
}
