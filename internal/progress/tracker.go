// Package progress renders a terminal progress bar and emits machine-readable
// progress updates while tables are migrating.
package progress

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresilva/fb-mssql-migrate/internal/logging"
	"github.com/schollz/progressbar/v3"
)

// Tracker aggregates row progress across concurrent table workers into a
// single bar.
type Tracker struct {
	bar       *progressbar.ProgressBar
	total     int64
	current   atomic.Int64
	fixes     atomic.Int64
	startTime time.Time

	mu           sync.Mutex
	activeTables map[string]int
}

// New creates an idle tracker. Call SetTotal once row counts are known.
func New() *Tracker {
	return &Tracker{
		startTime:    time.Now(),
		activeTables: make(map[string]int),
	}
}

// SetTotal sets the total number of rows expected and renders the bar.
func (t *Tracker) SetTotal(total int64) {
	t.total = total
	t.bar = progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription("Migrating"),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Add increments the migrated row counter.
func (t *Tracker) Add(n int64) {
	t.current.Add(n)
	if t.bar != nil {
		t.bar.Add64(n)
	}
}

// AddManualFix counts one record that needed manual intervention.
func (t *Tracker) AddManualFix() {
	t.fixes.Add(1)
}

// StartTable marks a table as actively migrating.
func (t *Tracker) StartTable(table string) {
	t.mu.Lock()
	t.activeTables[table]++
	tableCount := len(t.activeTables)
	t.mu.Unlock()

	if t.bar != nil {
		if tableCount == 1 {
			t.bar.Describe(fmt.Sprintf("Migrating %s", table))
		} else {
			t.bar.Describe(fmt.Sprintf("Migrating (%d tables)", tableCount))
		}
		t.bar.RenderBlank()
	}
}

// EndTable marks a table as done.
func (t *Tracker) EndTable(table string) {
	t.mu.Lock()
	t.activeTables[table]--
	if t.activeTables[table] <= 0 {
		delete(t.activeTables, table)
	}
	tableCount := len(t.activeTables)
	var remaining string
	for name := range t.activeTables {
		remaining = name
		break
	}
	t.mu.Unlock()

	if t.bar != nil && tableCount > 0 {
		if tableCount == 1 {
			t.bar.Describe(fmt.Sprintf("Migrating %s", remaining))
		} else {
			t.bar.Describe(fmt.Sprintf("Migrating (%d tables)", tableCount))
		}
	}
}

// ActiveTables returns the names of tables currently in flight.
func (t *Tracker) ActiveTables() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.activeTables))
	for name := range t.activeTables {
		names = append(names, name)
	}
	return names
}

// Current returns the migrated row count so far.
func (t *Tracker) Current() int64 {
	return t.current.Load()
}

// ManualFixes returns how many records needed manual intervention so far.
func (t *Tracker) ManualFixes() int64 {
	return t.fixes.Load()
}

// Finish completes the bar and logs a throughput summary.
func (t *Tracker) Finish() {
	if t.bar != nil {
		t.bar.Finish()
	}

	elapsed := time.Since(t.startTime)
	rowsPerSec := float64(t.current.Load()) / elapsed.Seconds()

	fmt.Println()
	logging.Info("Migration complete: %d rows in %s (%.0f rows/sec, %d manual fixes)",
		t.current.Load(), elapsed.Round(time.Second), rowsPerSec, t.fixes.Load())
}
