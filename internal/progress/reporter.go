package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/andresilva/fb-mssql-migrate/internal/logging"
)

// Update is a JSON progress line for automation watching the run.
type Update struct {
	Timestamp      string   `json:"timestamp"`
	Phase          string   `json:"phase"`
	TablesComplete int      `json:"tables_complete"`
	TablesTotal    int      `json:"tables_total"`
	TablesRunning  int      `json:"tables_running"`
	RowsMigrated   int64    `json:"rows_migrated"`
	RowsTotal      int64    `json:"rows_total,omitempty"`
	ProgressPct    float64  `json:"progress_pct"`
	ManualFixes    int64    `json:"manual_fixes,omitempty"`
	CurrentTables  []string `json:"current_tables,omitempty"`
	ErrorCount     int      `json:"error_count,omitempty"`
}

// Reporter emits progress updates.
type Reporter interface {
	// Report emits an update, possibly throttled.
	Report(update Update)
	// ReportImmediate emits an update bypassing throttling. Use for phase
	// transitions.
	ReportImmediate(update Update)
	Close()
}

// JSONReporter writes one JSON object per line, typically to stderr.
type JSONReporter struct {
	writer     io.Writer
	mu         sync.Mutex
	interval   time.Duration
	lastReport time.Time
	closed     bool
}

// NewJSONReporter creates a reporter that throttles updates to at most one
// per interval.
func NewJSONReporter(writer io.Writer, interval time.Duration) *JSONReporter {
	if writer == nil {
		writer = os.Stderr
	}
	return &JSONReporter{
		writer:   writer,
		interval: interval,
	}
}

func (r *JSONReporter) Report(update Update) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	now := time.Now()
	if r.interval > 0 && now.Sub(r.lastReport) < r.interval {
		return
	}
	r.lastReport = now
	r.write(update, now)
}

func (r *JSONReporter) ReportImmediate(update Update) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.write(update, time.Now())
	r.lastReport = time.Now()
}

func (r *JSONReporter) write(update Update, now time.Time) {
	if update.Timestamp == "" {
		update.Timestamp = now.Format(time.RFC3339)
	}
	data, err := json.Marshal(update)
	if err != nil {
		logging.Warn("Failed to marshal progress update: %v", err)
		return
	}
	fmt.Fprintln(r.writer, string(data))
}

// Close marks the reporter as closed.
func (r *JSONReporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// NullReporter discards all updates.
type NullReporter struct{}

func (r *NullReporter) Report(update Update)          {}
func (r *NullReporter) ReportImmediate(update Update) {}
func (r *NullReporter) Close()                        {}
