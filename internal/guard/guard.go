// Package guard suspends destination schema enforcement for the duration of
// a bulk load and restores it afterwards. The strategy is picked from the
// destination's capabilities: disable everything (constraints, triggers,
// indexes), fall back to constraints only, or do nothing.
//
// Disable failures are logged and demoted, never fatal: a migration proceeds
// with whatever the destination allowed. Restoration reverses exactly what
// this guard disabled.
package guard

import (
	"context"
	"fmt"
	"sync"

	"github.com/andresilva/fb-mssql-migrate/internal/adapter"
)

// Strategy is what the guard managed to disable.
type Strategy int

const (
	// StrategyNone means nothing was disabled.
	StrategyNone Strategy = iota
	// StrategyConstraints means constraint checking alone was suspended.
	StrategyConstraints
	// StrategyGlobal means constraints, triggers and indexes were suspended.
	StrategyGlobal
)

func (s Strategy) String() string {
	switch s {
	case StrategyConstraints:
		return "constraints"
	case StrategyGlobal:
		return "global"
	default:
		return "none"
	}
}

// ConstraintResolver supplies corrective SQL for a constraint that stayed
// disabled after restoration. Returning ok=false gives up on the constraint.
type ConstraintResolver func(tc adapter.TableConstraint) (stmt string, ok bool)

// Guard wraps one destination for one run.
type Guard struct {
	dest adapter.Destination
	logf func(format string, args ...any)

	mu     sync.Mutex
	active Strategy
}

// New returns an idle guard. logf may be nil.
func New(dest adapter.Destination, logf func(format string, args ...any)) *Guard {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Guard{dest: dest, logf: logf}
}

// Active returns the strategy currently holding objects disabled.
func (g *Guard) Active() Strategy {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Disable suspends schema enforcement. Calling it while already disabled is
// a no-op. A failing global disable falls back to constraints only; a
// failing constraint disable leaves the guard idle. Neither is an error.
func (g *Guard) Disable(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active != StrategyNone {
		return nil
	}

	caps := g.dest.Capabilities()
	if caps.GlobalObjectDisable {
		if err := g.dest.DisableAllObjects(ctx); err != nil {
			g.logf("global object disable failed: %v, falling back to constraints", err)
		} else {
			g.active = StrategyGlobal
			return nil
		}
	}
	if caps.ConstraintToggle {
		if err := g.dest.DisableConstraints(ctx); err != nil {
			g.logf("constraint disable failed: %v, proceeding without guard", err)
			return nil
		}
		g.active = StrategyConstraints
	}
	return nil
}

// Enable reverses what Disable achieved and returns the guard to idle. Safe
// to call when nothing is disabled.
func (g *Guard) Enable(ctx context.Context) error {
	g.mu.Lock()
	active := g.active
	g.active = StrategyNone
	g.mu.Unlock()

	switch active {
	case StrategyGlobal:
		if err := g.dest.EnableAllObjects(ctx); err != nil {
			return fmt.Errorf("restoring destination objects: %w", err)
		}
	case StrategyConstraints:
		if err := g.dest.EnableConstraints(ctx); err != nil {
			return fmt.Errorf("restoring destination constraints: %w", err)
		}
	}
	return nil
}

// Pending returns constraints the destination still reports disabled.
func (g *Guard) Pending(ctx context.Context) ([]adapter.TableConstraint, error) {
	return g.dest.ListDisabledConstraints(ctx)
}

// ResolvePending walks the constraints that stayed disabled after Enable and
// drives the repair loop for each: run the resolver's corrective SQL, retry
// the single constraint, re-check the disabled list. A nil resolver skips
// repair. The returned slice is what remains disabled afterwards.
func (g *Guard) ResolvePending(ctx context.Context, resolver ConstraintResolver) ([]adapter.TableConstraint, error) {
	pending, err := g.dest.ListDisabledConstraints(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing pending constraints: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}
	if resolver == nil {
		return pending, nil
	}

	for _, tc := range pending {
		if err := ctx.Err(); err != nil {
			return pending, err
		}
		resolved := false
		for {
			stmt, ok := resolver(tc)
			if !ok {
				break
			}
			if err := g.dest.ExecuteRaw(ctx, stmt); err != nil {
				g.logf("manual statement failed: %v", err)
				continue
			}
			if err := g.dest.EnableConstraint(ctx, tc.Table, tc.Constraint); err != nil {
				g.logf("re-enabling constraint %s on %s failed: %v", tc.Constraint, tc.Table, err)
				continue
			}
			still, err := g.dest.ListDisabledConstraints(ctx)
			if err != nil {
				return nil, fmt.Errorf("re-checking pending constraints: %w", err)
			}
			if !contains(still, tc) {
				g.logf("constraint %s on %s re-enabled after manual fix", tc.Constraint, tc.Table)
				resolved = true
				break
			}
		}
		if !resolved {
			g.logf("constraint %s on %s stayed disabled after manual attempts", tc.Constraint, tc.Table)
		}
	}

	return g.dest.ListDisabledConstraints(ctx)
}

func contains(list []adapter.TableConstraint, tc adapter.TableConstraint) bool {
	for _, item := range list {
		if item == tc {
			return true
		}
	}
	return false
}
