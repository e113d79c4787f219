// Package report collects log messages and run statistics during a migration
// and renders them as a standalone HTML file.
package report

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/andresilva/fb-mssql-migrate/internal/adapter"
	"github.com/andresilva/fb-mssql-migrate/internal/compare"
)

type entry struct {
	At      time.Time
	Level   string
	Message string
}

// Writer accumulates entries and statistics and writes the report on Finalize.
// Safe for concurrent use by the table workers.
type Writer struct {
	mu          sync.Mutex
	dbName      string
	dir         string
	generatedAt time.Time
	entries     []entry
	srcSize     int64
	destSize    int64
	duration    time.Duration
	hasDuration bool
	comparison  compare.Comparison
	pending     []adapter.TableConstraint
}

// New prepares a writer that will render into dir. The file name combines the
// destination database name with the generation timestamp.
func New(dbName, dir string) *Writer {
	if strings.TrimSpace(dbName) == "" {
		dbName = "database"
	}
	return &Writer{
		dbName:      dbName,
		dir:         dir,
		generatedAt: time.Now(),
	}
}

// Path returns where Finalize will write the report.
func (w *Writer) Path() string {
	stamp := w.generatedAt.Format("02012006-1504")
	return filepath.Join(w.dir, fmt.Sprintf("%s_%s.html", sanitizeName(w.dbName), stamp))
}

// Log records one message, inferring its level from the text.
func (w *Writer) Log(message string) {
	w.LogLevel(inferLevel(message), message)
}

// LogLevel records one message with an explicit level.
func (w *Writer) LogLevel(level, message string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, entry{At: time.Now(), Level: level, Message: message})
}

// Wrap returns a log function that records into the report and then forwards
// to next.
func (w *Writer) Wrap(next func(format string, args ...any)) func(format string, args ...any) {
	return func(format string, args ...any) {
		w.Log(fmt.Sprintf(format, args...))
		if next != nil {
			next(format, args...)
		}
	}
}

// SetSourceSize records the source database file size in bytes.
func (w *Writer) SetSourceSize(bytes int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.srcSize = bytes
}

// SetDestinationSize records the destination database size in bytes.
func (w *Writer) SetDestinationSize(bytes int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.destSize = bytes
}

// SetTotalDuration records the wall time of the whole run.
func (w *Writer) SetTotalDuration(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.duration = d
	w.hasDuration = true
}

// SetPendingConstraints records the constraints that stayed disabled after
// restoration.
func (w *Writer) SetPendingConstraints(pending []adapter.TableConstraint) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = pending
}

// MergeComparison folds per-table drift results into the report.
func (w *Writer) MergeComparison(c compare.Comparison) {
	if len(c) == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.comparison = w.comparison.Merge(c)
}

type entryView struct {
	Time    string
	Level   string
	Message template.HTML
}

type comparisonRow struct {
	Category string
	Missing  string
	Extra    string
}

type pendingRow struct {
	Table      string
	Constraint string
}

type reportData struct {
	Database    string
	GeneratedAt string
	SourceSize  string
	DestSize    string
	Duration    string
	Entries     []entryView
	Comparison  []comparisonRow
	Pending     []pendingRow
}

// Finalize renders the report and returns the file path.
func (w *Writer) Finalize() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("creating report dir: %w", err)
	}

	data := reportData{
		Database:    w.dbName,
		GeneratedAt: w.generatedAt.Format("02/01/2006 15:04"),
		SourceSize:  formatSize(w.srcSize),
		DestSize:    formatSize(w.destSize),
		Duration:    "unavailable",
	}
	if w.hasDuration && w.duration >= 0 {
		data.Duration = formatDuration(w.duration)
	}
	for _, e := range w.entries {
		data.Entries = append(data.Entries, entryView{
			Time:    e.At.Format("15:04:05"),
			Level:   e.Level,
			Message: escapeMessage(e.Message),
		})
	}
	data.Comparison = comparisonRows(w.comparison)
	for _, tc := range w.pending {
		data.Pending = append(data.Pending, pendingRow{Table: tc.Table, Constraint: tc.Constraint})
	}

	path := w.Path()
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating report file: %w", err)
	}
	defer f.Close()

	if err := reportTemplate.Execute(f, data); err != nil {
		return "", fmt.Errorf("rendering report: %w", err)
	}
	return path, nil
}

func comparisonRows(c compare.Comparison) []comparisonRow {
	categories := make([]adapter.ObjectCategory, 0, len(c))
	for category := range c {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	var rows []comparisonRow
	for _, category := range categories {
		diff := c[category]
		if len(diff.MissingInDestination) == 0 && len(diff.ExtraInDestination) == 0 {
			continue
		}
		rows = append(rows, comparisonRow{
			Category: titleCase(string(category)),
			Missing:  joinOrNone(diff.MissingInDestination),
			Extra:    joinOrNone(diff.ExtraInDestination),
		})
	}
	return rows
}

func titleCase(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

var nameCleaner = regexp.MustCompile(`[^0-9A-Za-z_-]+`)

func sanitizeName(name string) string {
	cleaned := nameCleaner.ReplaceAllString(strings.TrimSpace(name), "_")
	if cleaned == "" {
		return "database"
	}
	return cleaned
}

// formatSize renders bytes in the largest unit below 1024.
func formatSize(bytes int64) string {
	if bytes <= 0 {
		return "unavailable"
	}
	units := []string{"bytes", "KB", "MB", "GB", "TB"}
	size := float64(bytes)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", size, units[i])
}

func formatDuration(d time.Duration) string {
	seconds := d.Seconds()
	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	rest := seconds - float64(hours*3600) - float64(minutes*60)
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %.2fs", hours, minutes, rest)
	case minutes > 0:
		return fmt.Sprintf("%dm %.2fs", minutes, rest)
	default:
		return fmt.Sprintf("%.2fs", rest)
	}
}

func inferLevel(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "[error]") || strings.Contains(lower, "error:") || strings.Contains(lower, "failed"):
		return "error"
	case strings.Contains(lower, "[warn") || strings.Contains(lower, "warning"):
		return "warning"
	default:
		return "info"
	}
}

// escapeMessage escapes HTML and preserves line breaks.
func escapeMessage(message string) template.HTML {
	escaped := template.HTMLEscapeString(message)
	return template.HTML(strings.ReplaceAll(escaped, "\n", "<br/>"))
}
