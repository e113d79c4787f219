package orchestrator

import (
	"time"

	"github.com/andresilva/fb-mssql-migrate/internal/adapter"
	"github.com/andresilva/fb-mssql-migrate/internal/compare"
	"github.com/andresilva/fb-mssql-migrate/internal/transfer"
)

// State is where a table migration currently stands.
type State int

const (
	StateIdle State = iota
	StateGuardDisabling
	StateClearing
	StateTransferring
	StateGuardRestoring
	StateComparing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateGuardDisabling:
		return "guard-disabling"
	case StateClearing:
		return "clearing"
	case StateTransferring:
		return "transferring"
	case StateGuardRestoring:
		return "guard-restoring"
	case StateComparing:
		return "comparing"
	case StateDone:
		return "done"
	default:
		return "idle"
	}
}

// TableSummary is the outcome of one table migration. On failure State holds
// the phase that failed. PendingConstraints lists what stayed disabled after
// restoration, in the order the destination reported them.
type TableSummary struct {
	Table              string
	State              State
	Result             *transfer.Result
	Comparison         compare.Comparison
	PendingConstraints []adapter.TableConstraint
}

// RunSummary aggregates a whole migration run.
type RunSummary struct {
	RunID              string
	Started            time.Time
	Duration           time.Duration
	Tables             []*TableSummary
	Failures           map[string]error
	Cancelled          bool
	Comparison         compare.Comparison
	PendingConstraints []adapter.TableConstraint
	ReportPath         string
	TotalRows          int64
	ManualFixes        int64
}

// TableCount pairs source and destination row counts for one table.
type TableCount struct {
	Table       string
	Source      int64
	Destination int64
}
