package notify

import "time"

// Provider is the notification contract for migration events. It allows other
// backends besides Slack and makes the orchestrator testable with fakes.
type Provider interface {
	// MigrationStarted fires when a run begins.
	MigrationStarted(runID, sourceDB, destDB string, tableCount int) error

	// MigrationCompleted fires when every table finished cleanly.
	MigrationCompleted(runID string, startTime time.Time, duration time.Duration, tableCount int, rowCount, manualFixes int64) error

	// MigrationFailed fires when the run aborts.
	MigrationFailed(runID string, err error, duration time.Duration) error

	// MigrationCompletedWithErrors fires when some tables failed but the run
	// ran to the end.
	MigrationCompletedWithErrors(runID string, startTime time.Time, duration time.Duration, successTables, failedTables int, rowCount int64, failures []string) error

	// TableMigrationFailed fires for each individual table failure.
	TableMigrationFailed(runID, table string, err error) error
}

var _ Provider = (*Notifier)(nil)
