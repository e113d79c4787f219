package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/andresilva/fb-mssql-migrate/internal/adapter"
)

// fakeDest implements just enough of adapter.Destination for guard tests.
type fakeDest struct {
	caps adapter.Capabilities

	disableAllErr     error
	disableConstrErr  error
	disableAllCalls   int
	enableAllCalls    int
	disableConstCalls int
	enableConstCalls  int

	disabledConstraints []adapter.TableConstraint
	executedSQL         []string
	enabledOne          []adapter.TableConstraint
	// enableOneFixes maps repair: when EnableConstraint runs for a
	// constraint present here, it is removed from disabledConstraints.
	enableOneFixes map[adapter.TableConstraint]bool
}

func (f *fakeDest) Capabilities() adapter.Capabilities { return f.caps }

func (f *fakeDest) DisableAllObjects(ctx context.Context) error {
	f.disableAllCalls++
	return f.disableAllErr
}

func (f *fakeDest) EnableAllObjects(ctx context.Context) error {
	f.enableAllCalls++
	return nil
}

func (f *fakeDest) DisableConstraints(ctx context.Context) error {
	f.disableConstCalls++
	return f.disableConstrErr
}

func (f *fakeDest) EnableConstraints(ctx context.Context) error {
	f.enableConstCalls++
	return nil
}

func (f *fakeDest) ListDisabledConstraints(ctx context.Context) ([]adapter.TableConstraint, error) {
	return append([]adapter.TableConstraint(nil), f.disabledConstraints...), nil
}

func (f *fakeDest) EnableConstraint(ctx context.Context, table, constraint string) error {
	tc := adapter.TableConstraint{Table: table, Constraint: constraint}
	f.enabledOne = append(f.enabledOne, tc)
	if f.enableOneFixes[tc] {
		kept := f.disabledConstraints[:0]
		for _, item := range f.disabledConstraints {
			if item != tc {
				kept = append(kept, item)
			}
		}
		f.disabledConstraints = kept
	}
	return nil
}

func (f *fakeDest) ExecuteRaw(ctx context.Context, stmt string) error {
	f.executedSQL = append(f.executedSQL, stmt)
	return nil
}

// Unused Destination surface.
func (f *fakeDest) ListTables(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeDest) ClearTable(ctx context.Context, table string) error {
	return nil
}
func (f *fakeDest) InsertBatch(ctx context.Context, table string, columns []string, rows []adapter.Row) error {
	return nil
}
func (f *fakeDest) BeginTable(ctx context.Context, table string) error { return nil }
func (f *fakeDest) EndTable(ctx context.Context, table string) error   { return nil }
func (f *fakeDest) PrimaryKeyColumns(ctx context.Context, table string) ([]string, error) {
	return nil, nil
}
func (f *fakeDest) SuggestPrimaryKeyValue(ctx context.Context, table, column string) (any, error) {
	return nil, nil
}
func (f *fakeDest) CountRows(ctx context.Context, table string) (int64, error) { return 0, nil }
func (f *fakeDest) Version(ctx context.Context) (string, error)                { return "", nil }
func (f *fakeDest) Query(ctx context.Context, query string) ([]adapter.Row, error) {
	return nil, nil
}
func (f *fakeDest) Metadata(ctx context.Context) (adapter.Metadata, error) { return nil, nil }
func (f *fakeDest) Close() error                                           { return nil }

func TestDisableSelectsGlobalStrategy(t *testing.T) {
	dest := &fakeDest{caps: adapter.Capabilities{GlobalObjectDisable: true, ConstraintToggle: true}}
	g := New(dest, nil)

	if err := g.Disable(context.Background()); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if g.Active() != StrategyGlobal {
		t.Errorf("expected global strategy, got %v", g.Active())
	}
	if dest.disableAllCalls != 1 || dest.disableConstCalls != 0 {
		t.Errorf("unexpected calls: global=%d constraints=%d", dest.disableAllCalls, dest.disableConstCalls)
	}
}

func TestDisableFallsBackToConstraints(t *testing.T) {
	dest := &fakeDest{
		caps:          adapter.Capabilities{GlobalObjectDisable: true, ConstraintToggle: true},
		disableAllErr: errors.New("permission denied"),
	}
	g := New(dest, nil)

	if err := g.Disable(context.Background()); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if g.Active() != StrategyConstraints {
		t.Errorf("expected constraints strategy after fallback, got %v", g.Active())
	}
	if dest.disableConstCalls != 1 {
		t.Errorf("expected one constraint disable, got %d", dest.disableConstCalls)
	}
}

func TestDisableNoCapabilitiesIsNoop(t *testing.T) {
	dest := &fakeDest{}
	g := New(dest, nil)

	if err := g.Disable(context.Background()); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if g.Active() != StrategyNone {
		t.Errorf("expected no strategy, got %v", g.Active())
	}
	if err := g.Enable(context.Background()); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if dest.enableAllCalls != 0 || dest.enableConstCalls != 0 {
		t.Error("no-op guard must not touch the destination on restore")
	}
}

func TestDisableIsIdempotent(t *testing.T) {
	// disable();disable();enable() must equal disable();enable()
	dest := &fakeDest{caps: adapter.Capabilities{GlobalObjectDisable: true}}
	g := New(dest, nil)
	ctx := context.Background()

	g.Disable(ctx)
	g.Disable(ctx)
	if dest.disableAllCalls != 1 {
		t.Errorf("second Disable must be a no-op, got %d calls", dest.disableAllCalls)
	}
	g.Enable(ctx)
	if dest.enableAllCalls != 1 {
		t.Errorf("expected one restore, got %d", dest.enableAllCalls)
	}
	if g.Active() != StrategyNone {
		t.Errorf("guard not idle after Enable: %v", g.Active())
	}

	// A fresh cycle disables again.
	g.Disable(ctx)
	if dest.disableAllCalls != 2 {
		t.Errorf("expected re-arm after Enable, got %d disable calls", dest.disableAllCalls)
	}
}

func TestEnableMatchesStrategy(t *testing.T) {
	dest := &fakeDest{
		caps:          adapter.Capabilities{GlobalObjectDisable: true, ConstraintToggle: true},
		disableAllErr: errors.New("nope"),
	}
	g := New(dest, nil)
	ctx := context.Background()

	g.Disable(ctx)
	g.Enable(ctx)
	if dest.enableAllCalls != 0 {
		t.Error("constraints-only guard must not run global restore")
	}
	if dest.enableConstCalls != 1 {
		t.Errorf("expected constraint restore, got %d", dest.enableConstCalls)
	}
}

func TestResolvePendingRepairLoop(t *testing.T) {
	fk := adapter.TableConstraint{Table: "PEDIDOS", Constraint: "FK_PED_CLI"}
	stuck := adapter.TableConstraint{Table: "ITENS", Constraint: "FK_ITEM_PED"}
	dest := &fakeDest{
		caps:                adapter.Capabilities{ConstraintToggle: true},
		disabledConstraints: []adapter.TableConstraint{fk, stuck},
		enableOneFixes:      map[adapter.TableConstraint]bool{fk: true},
	}
	g := New(dest, nil)

	attempts := map[adapter.TableConstraint]int{}
	resolver := func(tc adapter.TableConstraint) (string, bool) {
		attempts[tc]++
		if tc == stuck {
			// Give up on the second prompt for the unfixable constraint.
			if attempts[tc] > 1 {
				return "", false
			}
		}
		return "DELETE FROM [" + tc.Table + "] WHERE orphaned = 1", true
	}

	remaining, err := g.ResolvePending(context.Background(), resolver)
	if err != nil {
		t.Fatalf("ResolvePending failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0] != stuck {
		t.Errorf("expected only the stuck constraint to remain, got %v", remaining)
	}
	if len(dest.executedSQL) != 2 {
		t.Errorf("expected two manual statements, got %v", dest.executedSQL)
	}
	if attempts[fk] != 1 {
		t.Errorf("fixable constraint should resolve on first attempt, got %d", attempts[fk])
	}
}

func TestResolvePendingWithoutResolver(t *testing.T) {
	fk := adapter.TableConstraint{Table: "PEDIDOS", Constraint: "FK_PED_CLI"}
	dest := &fakeDest{disabledConstraints: []adapter.TableConstraint{fk}}
	g := New(dest, nil)

	remaining, err := g.ResolvePending(context.Background(), nil)
	if err != nil {
		t.Fatalf("ResolvePending failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0] != fk {
		t.Errorf("expected pending list unchanged, got %v", remaining)
	}
	if len(dest.enabledOne) != 0 {
		t.Error("no repair attempts expected without a resolver")
	}
}
