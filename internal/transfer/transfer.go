// Package transfer copies one table from source to destination in pages,
// sanitizing each batch and falling back to per-record insertion with manual
// intervention when a batch fails.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andresilva/fb-mssql-migrate/internal/adapter"
	"github.com/andresilva/fb-mssql-migrate/internal/sanitize"
)

// Repair modes for batches that fail without a resolver attached.
const (
	RepairFailFast = "fail-fast"
	RepairWait     = "wait"
)

// ErrRecordAborted is returned when a resolver declines to fix a record.
var ErrRecordAborted = errors.New("record aborted during manual intervention")

// RecordContext carries everything a resolver needs to correct one record.
type RecordContext struct {
	Table   string
	Columns []string
	// Current is the row as last attempted, Original the row before
	// sanitization.
	Current  adapter.Row
	Original adapter.Row
	// Err is the insert error that triggered intervention.
	Err error
	// FlaggedColumns are the primary key columns when Err looks like a
	// duplicate key violation; Suggestions maps those columns to proposed
	// unused values.
	FlaggedColumns []string
	Suggestions    map[string]any
}

// RecordResolver returns a corrected row to retry. ok=false abandons the
// record, which aborts the table.
type RecordResolver func(rc RecordContext) (adapter.Row, bool)

// Options configures one table copy.
type Options struct {
	PageSize int
	// RepairMode decides what happens when a batch fails and no resolver is
	// set: RepairFailFast (default) fails the table, RepairWait demands a
	// resolver up front.
	RepairMode string
	Resolver   RecordResolver
	Sanitize   sanitize.Options
	Logf       func(format string, args ...any)
	// OnPage is called after each page is written, for progress display.
	OnPage func(page, totalPages int, rowsWritten int64)
	// OnManualFix is called once per record that inserts after manual
	// correction.
	OnManualFix func()
}

func (o Options) logf(format string, args ...any) {
	if o.Logf != nil {
		o.Logf(format, args...)
	}
}

// Result summarizes one completed table copy.
type Result struct {
	Table       string        `json:"table"`
	TotalRows   int64         `json:"total_rows"`
	Inserted    int64         `json:"inserted"`
	ManualFixes int64         `json:"manual_fixes"`
	Pages       int           `json:"pages"`
	Duration    time.Duration `json:"duration"`
}

// Copy migrates all rows of one table. The destination table is expected to
// be cleared and guarded by the caller; identity bracketing via BeginTable
// and EndTable is also the caller's job. Cancellation is observed between
// pages and surfaces as ctx.Err().
func Copy(ctx context.Context, src adapter.Source, dest adapter.Destination, table string, opts Options) (*Result, error) {
	if opts.PageSize < 1 {
		return nil, fmt.Errorf("page size must be positive, got %d", opts.PageSize)
	}
	if opts.RepairMode == RepairWait && opts.Resolver == nil {
		return nil, fmt.Errorf("repair mode %q requires a record resolver", RepairWait)
	}

	columns, err := src.Columns(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}

	total, err := src.CountRows(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("counting %s: %w", table, err)
	}
	totalPages := int(total / int64(opts.PageSize))
	if total%int64(opts.PageSize) > 0 {
		totalPages++
	}

	opts.logf("table %s: %d rows to migrate in %d page(s)", table, total, totalPages)

	result := &Result{Table: table, TotalRows: total}
	start := time.Now()
	offset := 0

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := src.FetchPage(ctx, table, opts.PageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("fetching page %d of %s: %w", page, table, err)
		}
		if len(raw) == 0 {
			break
		}
		// Advance by what was actually read so a short page cannot skip rows.
		offset += len(raw)

		batch, stats := sanitize.SanitizeBatch(raw, columns, opts.Sanitize)
		stats.LogSummary(opts.Logf)

		if err := dest.InsertBatch(ctx, table, columns, batch); err != nil {
			opts.logf("page %d/%d of %s failed as a batch: %v, retrying record by record",
				page, totalPages, table, err)
			inserted, fixes, repairErr := insertWithIntervention(ctx, dest, table, columns, batch, raw, opts)
			result.Inserted += inserted
			result.ManualFixes += fixes
			if repairErr != nil {
				return nil, fmt.Errorf("page %d of %s: %w", page, table, repairErr)
			}
			opts.logf("page %d/%d of %s completed with manual intervention (%d records)",
				page, totalPages, table, inserted)
		} else {
			result.Inserted += int64(len(batch))
			opts.logf("page %d/%d of %s written (%d records)", page, totalPages, table, len(batch))
		}

		result.Pages++
		if opts.OnPage != nil {
			opts.OnPage(page, totalPages, result.Inserted)
		}
	}

	result.Duration = time.Since(start)
	opts.logf("table %s done: %d records in %.2fs", table, result.Inserted, result.Duration.Seconds())
	return result, nil
}

// insertWithIntervention retries a failed batch one record at a time. Each
// failing record loops through diagnose, await correction, retry until the
// insert succeeds or the resolver gives up.
func insertWithIntervention(ctx context.Context, dest adapter.Destination, table string, columns []string, batch, original []adapter.Row, opts Options) (inserted, fixes int64, err error) {
	for i, record := range batch {
		current := record
		orig := current
		if i < len(original) {
			orig = original[i]
		}

		attempted := false
		for {
			if err := ctx.Err(); err != nil {
				return inserted, fixes, err
			}

			insertErr := dest.InsertBatch(ctx, table, columns, []adapter.Row{current})
			if insertErr == nil {
				inserted++
				if attempted {
					fixes++
					if opts.OnManualFix != nil {
						opts.OnManualFix()
					}
					opts.logf("record %d of the failed page inserted after manual intervention", i+1)
				}
				break
			}

			if opts.Resolver == nil {
				// Fail-fast: no one can correct the record.
				return inserted, fixes, fmt.Errorf("inserting record %d: %w", i+1, insertErr)
			}

			rc := RecordContext{
				Table:    table,
				Columns:  columns,
				Current:  current,
				Original: orig,
				Err:      insertErr,
			}
			if looksLikeDuplicateKey(insertErr) {
				diagnoseDuplicate(ctx, dest, table, &rc, opts)
			}

			corrected, ok := opts.Resolver(rc)
			if !ok {
				return inserted, fixes, fmt.Errorf("record %d: %w", i+1, ErrRecordAborted)
			}
			current = corrected
			attempted = true
		}
	}
	return inserted, fixes, nil
}

// diagnoseDuplicate flags the primary key columns and collects suggested
// replacement values. Lookup failures leave the context unflagged.
func diagnoseDuplicate(ctx context.Context, dest adapter.Destination, table string, rc *RecordContext, opts Options) {
	pkCols, err := dest.PrimaryKeyColumns(ctx, table)
	if err != nil || len(pkCols) == 0 {
		return
	}
	opts.logf("duplicate key detected on %s, primary key columns flagged for correction", table)
	rc.FlaggedColumns = pkCols
	rc.Suggestions = make(map[string]any, len(pkCols))
	for _, col := range pkCols {
		suggestion, err := dest.SuggestPrimaryKeyValue(ctx, table, col)
		if err == nil && suggestion != nil {
			rc.Suggestions[col] = suggestion
		}
	}
}

func looksLikeDuplicateKey(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplic") || strings.Contains(msg, "primary key")
}
