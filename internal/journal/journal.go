// Package journal persists run history in a local SQLite database. It is a
// log of what happened, not a checkpoint: runs are never resumed from it.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Journal manages run history in SQLite.
type Journal struct {
	db *sql.DB
}

// Run is one recorded migration run.
type Run struct {
	ID          string
	StartedAt   time.Time
	CompletedAt *time.Time
	Status      string
	Source      string
	Destination string
}

// TableRecord is the outcome of one table within a run.
type TableRecord struct {
	RunID       string
	Table       string
	Status      string
	Rows        int64
	ManualFixes int64
	Duration    time.Duration
	Error       string
}

// New opens (and if needed creates) the journal database under dataDir.
func New(dataDir string) (*Journal, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "journal.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating journal schema: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		status TEXT NOT NULL DEFAULT 'running',
		source TEXT NOT NULL,
		destination TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_tables (
		run_id TEXT REFERENCES runs(id),
		table_name TEXT NOT NULL,
		status TEXT NOT NULL,
		rows INTEGER DEFAULT 0,
		manual_fixes INTEGER DEFAULT 0,
		duration_ms INTEGER DEFAULT 0,
		error_message TEXT,
		PRIMARY KEY (run_id, table_name)
	);

	CREATE INDEX IF NOT EXISTS idx_run_tables_run ON run_tables(run_id);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// CreateRun records the start of a run.
func (j *Journal) CreateRun(id, source, destination string) error {
	_, err := j.db.Exec(`
		INSERT INTO runs (id, started_at, status, source, destination)
		VALUES (?, datetime('now'), 'running', ?, ?)
	`, id, source, destination)
	if err != nil {
		return fmt.Errorf("journal: recording run start: %w", err)
	}
	return nil
}

// CompleteRun records the final status of a run.
func (j *Journal) CompleteRun(id, status string) error {
	_, err := j.db.Exec(`
		UPDATE runs SET status = ?, completed_at = datetime('now')
		WHERE id = ?
	`, status, id)
	if err != nil {
		return fmt.Errorf("journal: recording run completion: %w", err)
	}
	return nil
}

// RecordTable upserts the outcome of one table in a run.
func (j *Journal) RecordTable(rec TableRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO run_tables (run_id, table_name, status, rows, manual_fixes, duration_ms, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, table_name) DO UPDATE SET
			status = excluded.status,
			rows = excluded.rows,
			manual_fixes = excluded.manual_fixes,
			duration_ms = excluded.duration_ms,
			error_message = excluded.error_message
	`, rec.RunID, rec.Table, rec.Status, rec.Rows, rec.ManualFixes, rec.Duration.Milliseconds(), rec.Error)
	if err != nil {
		return fmt.Errorf("journal: recording table %s: %w", rec.Table, err)
	}
	return nil
}

// RecentRuns returns the latest runs, newest first.
func (j *Journal) RecentRuns(limit int) ([]Run, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := j.db.Query(`
		SELECT id, started_at, completed_at, status, source, destination
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedAt string
		var completedAt sql.NullString
		if err := rows.Scan(&r.ID, &startedAt, &completedAt, &r.Status, &r.Source, &r.Destination); err != nil {
			return nil, fmt.Errorf("journal: scanning run: %w", err)
		}
		r.StartedAt, _ = time.Parse("2006-01-02 15:04:05", startedAt)
		if completedAt.Valid {
			t, _ := time.Parse("2006-01-02 15:04:05", completedAt.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunTables returns the per-table outcomes of one run.
func (j *Journal) RunTables(runID string) ([]TableRecord, error) {
	rows, err := j.db.Query(`
		SELECT run_id, table_name, status, rows, manual_fixes, duration_ms, error_message
		FROM run_tables WHERE run_id = ? ORDER BY table_name
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("journal: listing tables of run %s: %w", runID, err)
	}
	defer rows.Close()

	var records []TableRecord
	for rows.Next() {
		var rec TableRecord
		var durationMS int64
		var errMsg sql.NullString
		if err := rows.Scan(&rec.RunID, &rec.Table, &rec.Status, &rec.Rows, &rec.ManualFixes, &durationMS, &errMsg); err != nil {
			return nil, fmt.Errorf("journal: scanning table record: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.Error = errMsg.String
		records = append(records, rec)
	}
	return records, rows.Err()
}
