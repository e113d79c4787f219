package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/andresilva/fb-mssql-migrate/internal/adapter"
	"github.com/andresilva/fb-mssql-migrate/internal/guard"
	"github.com/andresilva/fb-mssql-migrate/internal/journal"
	"github.com/andresilva/fb-mssql-migrate/internal/progress"
)

// runProgress is the live state behind the machine-readable update stream.
type runProgress struct {
	tablesTotal    int
	rowsTotal      int64
	rowsMigrated   atomic.Int64
	manualFixes    atomic.Int64
	tablesComplete atomic.Int32
	errorCount     atomic.Int32
}

func (p *runProgress) snapshot(phase string, active []string) progress.Update {
	update := progress.Update{
		Phase:          phase,
		TablesComplete: int(p.tablesComplete.Load()),
		TablesTotal:    p.tablesTotal,
		TablesRunning:  len(active),
		RowsMigrated:   p.rowsMigrated.Load(),
		RowsTotal:      p.rowsTotal,
		ManualFixes:    p.manualFixes.Load(),
		CurrentTables:  active,
		ErrorCount:     int(p.errorCount.Load()),
	}
	if p.rowsTotal > 0 {
		update.ProgressPct = float64(update.RowsMigrated) / float64(p.rowsTotal) * 100
	}
	return update
}

// Run migrates the given tables with the configured number of workers. An
// empty table list means every source table after filtering.
//
// The guard is held once for the whole run: disabled before the pool starts
// and restored after it drains, whatever happened in between. Individual
// table failures are collected, not fatal to sibling tables. Cancellation
// stops scheduling and surfaces as ErrCancelled.
func (o *Orchestrator) Run(ctx context.Context, tables []string) (*RunSummary, error) {
	if len(tables) == 0 {
		var err error
		tables, err = o.Tables(ctx)
		if err != nil {
			return nil, err
		}
	}
	if len(tables) == 0 {
		return nil, errors.New("no tables to migrate after applying filters")
	}

	runID := uuid.New().String()[:8]
	summary := &RunSummary{
		RunID:    runID,
		Started:  time.Now(),
		Failures: make(map[string]error),
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.mu.Lock()
	o.cancelRun = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.cancelRun = nil
		o.mu.Unlock()
	}()

	// Migration messages also feed the HTML report.
	runLogf := o.logf
	if o.report != nil {
		runLogf = o.report.Wrap(o.logf)
		o.report.SetSourceSize(o.sourceFileSize())
	}
	prevLogf := o.logf
	o.logf = runLogf
	defer func() { o.logf = prevLogf }()

	o.log("starting migration run %s: %d table(s), %d worker(s)",
		runID, len(tables), o.cfg.Settings.Workers)

	if o.journal != nil {
		if err := o.journal.CreateRun(runID, o.cfg.Source.Database, o.cfg.Destination.Database); err != nil {
			o.log("[WARN] %v", err)
		}
	}
	if err := o.notifier.MigrationStarted(runID, o.cfg.Source.Database, o.cfg.Destination.Database, len(tables)); err != nil {
		o.log("[WARN] start notification failed: %v", err)
	}

	var rowsTotal int64
	if o.tracker != nil || o.progressEnabled() {
		for _, table := range tables {
			n, err := o.src.CountRows(runCtx, table)
			if err != nil {
				o.log("[WARN] counting %s for progress: %v", table, err)
				continue
			}
			rowsTotal += n
		}
		if o.tracker != nil {
			o.tracker.SetTotal(rowsTotal)
		}
	}

	prog := &runProgress{tablesTotal: len(tables), rowsTotal: rowsTotal}
	o.prog = prog
	defer func() { o.prog = nil }()
	o.reportProgress(prog.snapshot("starting", nil), true)

	// Run-level guard. Tables run with per-table guard management off.
	var g *guard.Guard
	if o.cfg.Settings.ManageGuard {
		o.log("disabling destination constraints, triggers and indexes for the run")
		g = guard.New(o.dest, o.logf)
		if err := g.Disable(runCtx); err != nil {
			o.finishRun(summary, journal.StatusFailed)
			return summary, fmt.Errorf("disabling destination objects: %w", err)
		}
	}

	workers := o.cfg.Settings.Workers
	if workers < 1 {
		workers = 1
	}

	var (
		wg  sync.WaitGroup
		sem = make(chan struct{}, workers)
		mu  sync.Mutex
	)

	for _, table := range tables {
		table := table
		sem <- struct{}{}
		if runCtx.Err() != nil {
			<-sem
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if o.tracker != nil {
				o.tracker.StartTable(table)
				defer o.tracker.EndTable(table)
			}

			o.log("migrating table %s", table)
			start := time.Now()
			tableSummary, err := o.migrateTable(runCtx, table, false)

			mu.Lock()
			defer mu.Unlock()
			summary.Tables = append(summary.Tables, tableSummary)
			prog.tablesComplete.Add(1)
			if err != nil && !errors.Is(err, ErrCancelled) {
				prog.errorCount.Add(1)
			}
			o.reportProgress(prog.snapshot("migrating", o.activeTableNames()), true)

			record := journal.TableRecord{
				RunID:    runID,
				Table:    table,
				Duration: time.Since(start),
			}
			if err != nil {
				summary.Failures[table] = err
				record.Status = journal.StatusFailed
				record.Error = err.Error()
				if errors.Is(err, ErrCancelled) {
					record.Status = journal.StatusCancelled
					cancel()
				} else {
					o.log("[ERROR] migrating table %s: %v", table, err)
					if nerr := o.notifier.TableMigrationFailed(runID, table, err); nerr != nil {
						o.log("[WARN] table failure notification: %v", nerr)
					}
				}
			} else {
				record.Status = journal.StatusCompleted
				record.Rows = tableSummary.Result.Inserted
				record.ManualFixes = tableSummary.Result.ManualFixes
				summary.TotalRows += tableSummary.Result.Inserted
				summary.ManualFixes += tableSummary.Result.ManualFixes
				summary.Comparison = summary.Comparison.Merge(tableSummary.Comparison)
				o.log("table %s migrated: %d records in %.2fs",
					table, tableSummary.Result.Inserted, tableSummary.Result.Duration.Seconds())
			}
			if o.journal != nil {
				if jerr := o.journal.RecordTable(record); jerr != nil {
					o.log("[WARN] %v", jerr)
				}
			}
		}()
	}
	wg.Wait()

	summary.Cancelled = runCtx.Err() != nil
	summary.Duration = time.Since(summary.Started)

	if g != nil {
		o.log("restoring destination constraints, triggers and indexes")
		cleanupCtx := context.WithoutCancel(ctx)
		if err := g.Enable(cleanupCtx); err != nil {
			o.log("[ERROR] restoring destination objects: %v", err)
		}
		remaining, err := g.ResolvePending(cleanupCtx, o.constraintResolver)
		if err != nil {
			o.log("[ERROR] checking pending constraints: %v", err)
		}
		summary.PendingConstraints = remaining
		for _, tc := range remaining {
			o.log("[WARN] constraint %s on table %s stayed disabled", tc.Constraint, tc.Table)
		}
	}
	for _, tableSummary := range summary.Tables {
		summary.PendingConstraints = append(summary.PendingConstraints, tableSummary.PendingConstraints...)
	}

	if o.tracker != nil {
		o.tracker.Finish()
	}

	status := journal.StatusCompleted
	switch {
	case summary.Cancelled:
		status = journal.StatusCancelled
		o.log("migration run %s cancelled", runID)
	case len(summary.Failures) > 0:
		status = journal.StatusFailed
		o.log("migration run %s finished with %d failed table(s)", runID, len(summary.Failures))
	default:
		o.log("migration run %s finished: %d rows across %d table(s)",
			runID, summary.TotalRows, len(tables))
	}
	o.finishRun(summary, status)
	o.notifyOutcome(summary, len(tables))
	o.finalizeReport(ctx, summary)

	finalPhase := "completed"
	switch {
	case summary.Cancelled:
		finalPhase = "cancelled"
	case len(summary.Failures) > 0:
		finalPhase = "failed"
	}
	o.reportProgress(prog.snapshot(finalPhase, nil), true)

	switch {
	case summary.Cancelled:
		return summary, ErrCancelled
	case len(summary.Failures) > 0:
		return summary, fmt.Errorf("%d of %d tables failed to migrate", len(summary.Failures), len(tables))
	default:
		return summary, nil
	}
}

func (o *Orchestrator) finishRun(summary *RunSummary, status string) {
	if o.journal == nil {
		return
	}
	if err := o.journal.CompleteRun(summary.RunID, status); err != nil {
		o.log("[WARN] %v", err)
	}
}

func (o *Orchestrator) notifyOutcome(summary *RunSummary, tableCount int) {
	var err error
	switch {
	case summary.Cancelled:
		err = o.notifier.MigrationFailed(summary.RunID, ErrCancelled, summary.Duration)
	case len(summary.Failures) > 0:
		failures := make([]string, 0, len(summary.Failures))
		for table := range summary.Failures {
			failures = append(failures, table)
		}
		err = o.notifier.MigrationCompletedWithErrors(summary.RunID, summary.Started, summary.Duration,
			tableCount-len(failures), len(failures), summary.TotalRows, failures)
	default:
		err = o.notifier.MigrationCompleted(summary.RunID, summary.Started, summary.Duration,
			tableCount, summary.TotalRows, summary.ManualFixes)
	}
	if err != nil {
		o.log("[WARN] outcome notification failed: %v", err)
	}
}

func (o *Orchestrator) finalizeReport(ctx context.Context, summary *RunSummary) {
	if o.report == nil {
		return
	}
	if sizer, ok := o.dest.(adapter.Sizer); ok {
		if size, err := sizer.SizeBytes(context.WithoutCancel(ctx)); err == nil {
			o.report.SetDestinationSize(size)
		}
	}
	o.report.SetTotalDuration(summary.Duration)
	o.report.MergeComparison(summary.Comparison)
	o.report.SetPendingConstraints(summary.PendingConstraints)

	path, err := o.report.Finalize()
	if err != nil {
		o.log("[ERROR] writing run report: %v", err)
		return
	}
	summary.ReportPath = path
	o.log("report saved to %s", path)
}
