package compare

import (
	"reflect"
	"testing"

	"github.com/andresilva/fb-mssql-migrate/internal/adapter"
)

func set(names ...string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, name := range names {
		out[name] = true
	}
	return out
}

func TestDiff(t *testing.T) {
	model := adapter.Metadata{
		adapter.CategoryConstraints: set("PK_CLIENTES", "FK_PED_CLI"),
		adapter.CategoryTriggers:    set("TRG_AUDIT"),
	}
	dest := adapter.Metadata{
		adapter.CategoryConstraints: set("PK_CLIENTES", "CK_LEGACY"),
		adapter.CategoryIndexes:     set("IX_NOME"),
	}

	got := Diff(model, dest)

	constraints := got[adapter.CategoryConstraints]
	if !reflect.DeepEqual(constraints.MissingInDestination, []string{"FK_PED_CLI"}) {
		t.Errorf("missing constraints: %v", constraints.MissingInDestination)
	}
	if !reflect.DeepEqual(constraints.ExtraInDestination, []string{"CK_LEGACY"}) {
		t.Errorf("extra constraints: %v", constraints.ExtraInDestination)
	}

	triggers := got[adapter.CategoryTriggers]
	if !reflect.DeepEqual(triggers.MissingInDestination, []string{"TRG_AUDIT"}) {
		t.Errorf("missing triggers: %v", triggers.MissingInDestination)
	}

	indexes := got[adapter.CategoryIndexes]
	if !reflect.DeepEqual(indexes.ExtraInDestination, []string{"IX_NOME"}) {
		t.Errorf("extra indexes: %v", indexes.ExtraInDestination)
	}

	// Categories from both sides appear.
	if _, ok := got[adapter.CategoryIndexes]; !ok {
		t.Error("destination-only category missing from comparison")
	}
}

func TestDiffSelfIsEmpty(t *testing.T) {
	meta := adapter.Metadata{
		adapter.CategoryConstraints: set("PK_A", "FK_B"),
		adapter.CategoryIndexes:     set("IX_A"),
		adapter.CategoryProcedures:  set("SP_TOTAL"),
		adapter.CategoryTriggers:    set("TRG_A"),
	}

	got := Diff(meta, meta)
	if !got.Empty() {
		t.Errorf("self comparison must be empty, got %+v", got)
	}
	if len(got) != 4 {
		t.Errorf("expected all 4 categories present, got %d", len(got))
	}
}

func TestDiffSymmetry(t *testing.T) {
	a := adapter.Metadata{adapter.CategoryConstraints: set("X", "Y")}
	b := adapter.Metadata{adapter.CategoryConstraints: set("Y", "Z")}

	ab := Diff(a, b)
	ba := Diff(b, a)

	if !reflect.DeepEqual(ab[adapter.CategoryConstraints].MissingInDestination,
		ba[adapter.CategoryConstraints].ExtraInDestination) {
		t.Error("missing(a,b) must equal extra(b,a)")
	}
	if !reflect.DeepEqual(ab[adapter.CategoryConstraints].ExtraInDestination,
		ba[adapter.CategoryConstraints].MissingInDestination) {
		t.Error("extra(a,b) must equal missing(b,a)")
	}
}

func TestMerge(t *testing.T) {
	first := Comparison{
		adapter.CategoryConstraints: {MissingInDestination: []string{"FK_A"}},
	}
	second := Comparison{
		adapter.CategoryConstraints: {MissingInDestination: []string{"FK_A", "FK_B"}},
		adapter.CategoryTriggers:    {ExtraInDestination: []string{"TRG_X"}},
	}

	merged := first.Merge(second)

	constraints := merged[adapter.CategoryConstraints]
	if !reflect.DeepEqual(constraints.MissingInDestination, []string{"FK_A", "FK_B"}) {
		t.Errorf("merged constraints: %v", constraints.MissingInDestination)
	}
	if !reflect.DeepEqual(merged[adapter.CategoryTriggers].ExtraInDestination, []string{"TRG_X"}) {
		t.Errorf("merged triggers: %v", merged[adapter.CategoryTriggers].ExtraInDestination)
	}

	var nilComparison Comparison
	merged = nilComparison.Merge(second)
	if merged.Empty() {
		t.Error("merging into nil comparison must keep entries")
	}
}
