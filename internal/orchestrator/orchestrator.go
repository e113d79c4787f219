// Package orchestrator drives table migrations: guard handling, clearing,
// transfer, restoration, model comparison, and the bounded worker pool that
// runs tables concurrently.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/andresilva/fb-mssql-migrate/internal/adapter"
	"github.com/andresilva/fb-mssql-migrate/internal/compare"
	"github.com/andresilva/fb-mssql-migrate/internal/config"
	"github.com/andresilva/fb-mssql-migrate/internal/guard"
	"github.com/andresilva/fb-mssql-migrate/internal/journal"
	"github.com/andresilva/fb-mssql-migrate/internal/logging"
	"github.com/andresilva/fb-mssql-migrate/internal/notify"
	"github.com/andresilva/fb-mssql-migrate/internal/pool"
	"github.com/andresilva/fb-mssql-migrate/internal/progress"
	"github.com/andresilva/fb-mssql-migrate/internal/report"
	"github.com/andresilva/fb-mssql-migrate/internal/sanitize"
	"github.com/andresilva/fb-mssql-migrate/internal/transfer"
)

// ErrCancelled marks a run stopped by explicit cancellation rather than
// failure.
var ErrCancelled = errors.New("migration cancelled")

// Orchestrator owns the connections and collaborators of one migration run.
type Orchestrator struct {
	cfg      *config.Config
	src      adapter.Source
	dest     adapter.Destination
	notifier notify.Provider
	journal  *journal.Journal
	tracker  *progress.Tracker
	reporter progress.Reporter
	report   *report.Writer
	logf     func(format string, args ...any)

	// prog is the live state behind the reporter, set for the duration of
	// one Run.
	prog *runProgress

	recordResolver     transfer.RecordResolver
	constraintResolver guard.ConstraintResolver

	// openModel is swappable in tests.
	openModel func(ctx context.Context) (pool.MetadataHandle, error)

	mu        sync.Mutex
	cancelRun context.CancelFunc
}

// New connects to the configured databases and prepares an orchestrator.
func New(ctx context.Context, cfg *config.Config, sqlLog adapter.SQLLogger) (*Orchestrator, error) {
	src, err := pool.OpenSource(ctx, &cfg.Source, sqlLog)
	if err != nil {
		return nil, fmt.Errorf("connecting to source: %w", err)
	}

	dest, err := pool.OpenDestination(ctx, &cfg.Destination, sqlLog)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("connecting to destination: %w", err)
	}

	jnl, err := journal.New(cfg.Settings.DataDir)
	if err != nil {
		src.Close()
		dest.Close()
		return nil, fmt.Errorf("opening run journal: %w", err)
	}

	o := &Orchestrator{
		cfg:      cfg,
		src:      src,
		dest:     dest,
		notifier: notify.New(&cfg.Slack),
		journal:  jnl,
		reporter: &progress.NullReporter{},
		report:   report.New(cfg.Destination.Database, cfg.Settings.ReportDir),
		logf:     logging.Info,
	}
	if cfg.Settings.Progress {
		o.tracker = progress.New()
	}
	o.openModel = func(ctx context.Context) (pool.MetadataHandle, error) {
		return pool.OpenMetadata(ctx, o.cfg.Model, sqlLog)
	}
	return o, nil
}

// Close releases database handles and the journal.
func (o *Orchestrator) Close() {
	o.src.Close()
	o.dest.Close()
	if o.journal != nil {
		o.journal.Close()
	}
}

// SetRecordResolver installs the callback used to fix records that fail to
// insert.
func (o *Orchestrator) SetRecordResolver(r transfer.RecordResolver) {
	o.recordResolver = r
}

// SetConstraintResolver installs the callback used to repair constraints that
// stay disabled after restoration.
func (o *Orchestrator) SetConstraintResolver(r guard.ConstraintResolver) {
	o.constraintResolver = r
}

// SetReporter installs the machine-readable progress stream. nil restores
// the discarding default.
func (o *Orchestrator) SetReporter(r progress.Reporter) {
	if r == nil {
		r = &progress.NullReporter{}
	}
	o.reporter = r
}

// Journal exposes the run journal for the history command.
func (o *Orchestrator) Journal() *journal.Journal {
	return o.journal
}

// Cancel stops the run in flight, if any. Workers observe it between pages.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancelRun != nil {
		o.cancelRun()
	}
}

func (o *Orchestrator) log(format string, args ...any) {
	if o.logf != nil {
		o.logf(format, args...)
	}
}

// MigrateTable migrates a single table, managing the guard per configuration.
func (o *Orchestrator) MigrateTable(ctx context.Context, table string) (*TableSummary, error) {
	return o.migrateTable(ctx, table, o.cfg.Settings.ManageGuard)
}

// migrateTable runs the per-table state machine. Guard restoration and
// identity untoggling happen on every exit path, including cancellation.
func (o *Orchestrator) migrateTable(ctx context.Context, table string, manageGuard bool) (*TableSummary, error) {
	summary := &TableSummary{Table: table, State: StateIdle}

	var g *guard.Guard
	restored := false
	restore := func() {
		if g == nil || g.Active() == guard.StrategyNone {
			return
		}
		summary.State = StateGuardRestoring
		// Restoration must run even after the run context is cancelled.
		cleanupCtx := context.WithoutCancel(ctx)
		if err := g.Enable(cleanupCtx); err != nil {
			o.log("[ERROR] restoring destination objects after %s: %v", table, err)
		}
		remaining, err := g.ResolvePending(cleanupCtx, o.constraintResolver)
		if err != nil {
			o.log("[ERROR] checking pending constraints after %s: %v", table, err)
			return
		}
		summary.PendingConstraints = remaining
		for _, tc := range remaining {
			o.log("[WARN] constraint %s on table %s stayed disabled", tc.Constraint, tc.Table)
		}
	}
	defer func() {
		if !restored {
			restore()
		}
	}()

	if manageGuard {
		summary.State = StateGuardDisabling
		g = guard.New(o.dest, o.logf)
		if err := g.Disable(ctx); err != nil {
			return summary, fmt.Errorf("disabling destination objects: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("table %s: %w", table, ErrCancelled)
	}

	if o.cfg.Settings.ClearDestination {
		summary.State = StateClearing
		o.log("clearing destination table %s", table)
		if err := o.dest.ClearTable(ctx, table); err != nil {
			return summary, fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	if err := o.dest.BeginTable(ctx, table); err != nil {
		o.log("[WARN] preparing destination table %s: %v", table, err)
	}
	defer func() {
		if err := o.dest.EndTable(context.WithoutCancel(ctx), table); err != nil {
			o.log("[WARN] finishing destination table %s: %v", table, err)
		}
	}()

	summary.State = StateTransferring
	result, err := transfer.Copy(ctx, o.src, o.dest, table, transfer.Options{
		PageSize:   o.cfg.Settings.PageSize,
		RepairMode: o.cfg.Settings.RepairMode,
		Resolver:   o.recordResolver,
		Sanitize: sanitize.Options{
			Fallback: o.cfg.Settings.ByteFallback,
			Logf:     o.logf,
		},
		Logf:        o.logf,
		OnPage:      o.pageCallback(table),
		OnManualFix: o.fixCallback(),
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return summary, fmt.Errorf("table %s: %w", table, ErrCancelled)
		}
		return summary, err
	}
	summary.Result = result

	restore()
	restored = true

	if o.cfg.Model != nil {
		summary.State = StateComparing
		comparison, err := o.compareWithModel(ctx)
		if err != nil {
			o.log("[WARN] model comparison after %s failed: %v", table, err)
		} else {
			summary.Comparison = comparison
			o.logComparison(table, comparison)
		}
	}

	summary.State = StateDone
	return summary, nil
}

func (o *Orchestrator) pageCallback(table string) func(page, totalPages int, written int64) {
	if o.tracker == nil && o.prog == nil {
		return nil
	}
	var last int64
	return func(page, totalPages int, written int64) {
		delta := written - last
		last = written
		if o.tracker != nil {
			o.tracker.Add(delta)
		}
		if o.prog != nil {
			o.prog.rowsMigrated.Add(delta)
			o.reportProgress(o.prog.snapshot("migrating", o.activeTableNames()), false)
		}
	}
}

func (o *Orchestrator) fixCallback() func() {
	if o.tracker == nil && o.prog == nil {
		return nil
	}
	return func() {
		if o.tracker != nil {
			o.tracker.AddManualFix()
		}
		if o.prog != nil {
			o.prog.manualFixes.Add(1)
		}
	}
}

func (o *Orchestrator) reportProgress(update progress.Update, immediate bool) {
	if o.reporter == nil {
		return
	}
	if immediate {
		o.reporter.ReportImmediate(update)
		return
	}
	o.reporter.Report(update)
}

// progressEnabled reports whether anyone consumes the update stream.
func (o *Orchestrator) progressEnabled() bool {
	if o.reporter == nil {
		return false
	}
	_, discard := o.reporter.(*progress.NullReporter)
	return !discard
}

func (o *Orchestrator) activeTableNames() []string {
	if o.tracker == nil {
		return nil
	}
	return o.tracker.ActiveTables()
}

// compareWithModel diffs the destination's metadata against the model
// database. The model connection lives only for the duration of the call.
func (o *Orchestrator) compareWithModel(ctx context.Context) (compare.Comparison, error) {
	model, err := o.openModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to model database: %w", err)
	}
	defer model.Close()

	modelMeta, err := model.Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading model metadata: %w", err)
	}
	destMeta, err := o.dest.Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading destination metadata: %w", err)
	}
	return compare.Diff(modelMeta, destMeta), nil
}

func (o *Orchestrator) logComparison(table string, comparison compare.Comparison) {
	o.log("model comparison after migrating %s:", table)
	if comparison.Empty() {
		o.log("  no differences against the model database")
		return
	}
	for category, diff := range comparison {
		if len(diff.MissingInDestination) > 0 {
			o.log("  %s missing in destination: %v", category, diff.MissingInDestination)
		}
		if len(diff.ExtraInDestination) > 0 {
			o.log("  %s only in destination: %v", category, diff.ExtraInDestination)
		}
	}
}

// Tables lists the source tables after applying include/exclude patterns.
func (o *Orchestrator) Tables(ctx context.Context) ([]string, error) {
	tables, err := o.src.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing source tables: %w", err)
	}
	return o.filterTables(tables), nil
}

// filterTables applies the configured include/exclude glob patterns.
func (o *Orchestrator) filterTables(tables []string) []string {
	include := o.cfg.Settings.IncludeTables
	exclude := o.cfg.Settings.ExcludeTables
	if len(include) == 0 && len(exclude) == 0 {
		return tables
	}

	var out []string
	for _, table := range tables {
		if len(include) > 0 && !matchesAny(include, table) {
			continue
		}
		if matchesAny(exclude, table) {
			continue
		}
		out = append(out, table)
	}
	return out
}

func matchesAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// ClearDestination deletes the rows of every destination table under guard
// protection.
func (o *Orchestrator) ClearDestination(ctx context.Context) error {
	tables, err := o.dest.ListTables(ctx)
	if err != nil {
		return fmt.Errorf("listing destination tables: %w", err)
	}
	if len(tables) == 0 {
		o.log("no destination tables to clear")
		return nil
	}

	o.log("clearing %d destination table(s)", len(tables))

	g := guard.New(o.dest, o.logf)
	if err := g.Disable(ctx); err != nil {
		return fmt.Errorf("disabling destination objects: %w", err)
	}
	defer func() {
		if err := g.Enable(context.WithoutCancel(ctx)); err != nil {
			o.log("[ERROR] restoring destination objects after clear: %v", err)
		}
	}()

	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("clear interrupted: %w", ErrCancelled)
		}
		o.log("  clearing %s", table)
		if err := o.dest.ClearTable(ctx, table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}

// CountRecords reports source and destination row counts for the given
// tables, or for all source tables when none are given.
func (o *Orchestrator) CountRecords(ctx context.Context, tables []string) ([]TableCount, error) {
	if len(tables) == 0 {
		var err error
		tables, err = o.Tables(ctx)
		if err != nil {
			return nil, err
		}
	}

	counts := make([]TableCount, 0, len(tables))
	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return counts, err
		}
		srcCount, err := o.src.CountRows(ctx, table)
		if err != nil {
			return counts, fmt.Errorf("counting %s on source: %w", table, err)
		}
		destCount, err := o.dest.CountRows(ctx, table)
		if err != nil {
			return counts, fmt.Errorf("counting %s on destination: %w", table, err)
		}
		counts = append(counts, TableCount{Table: table, Source: srcCount, Destination: destCount})
	}
	return counts, nil
}

// sourceFileSize returns the size of a local Firebird database file, or 0.
func (o *Orchestrator) sourceFileSize() int64 {
	if o.cfg.Source.Type != config.EngineFirebird {
		return 0
	}
	info, err := os.Stat(o.cfg.Source.Database)
	if err != nil {
		return 0
	}
	return info.Size()
}
