// Package compare reports schema drift between the destination database and
// a model database after migration. Names only, per object category; no
// definitions are compared.
package compare

import (
	"sort"

	"github.com/andresilva/fb-mssql-migrate/internal/adapter"
)

// CategoryDiff lists the names present on one side and absent on the other.
type CategoryDiff struct {
	// MissingInDestination are objects the model has and the destination
	// lacks.
	MissingInDestination []string `json:"missing_in_destination"`
	// ExtraInDestination are objects the destination has and the model
	// lacks.
	ExtraInDestination []string `json:"extra_in_destination"`
}

// Comparison maps object categories to their drift. Every category present
// in either metadata set appears, even when its diff is empty.
type Comparison map[adapter.ObjectCategory]CategoryDiff

// Empty reports whether no drift was found in any category.
func (c Comparison) Empty() bool {
	for _, diff := range c {
		if len(diff.MissingInDestination) > 0 || len(diff.ExtraInDestination) > 0 {
			return false
		}
	}
	return true
}

// Diff computes the drift between a model and a destination metadata set.
// Both slices in every CategoryDiff come back sorted.
func Diff(model, dest adapter.Metadata) Comparison {
	categories := make(map[adapter.ObjectCategory]bool)
	for category := range model {
		categories[category] = true
	}
	for category := range dest {
		categories[category] = true
	}

	out := make(Comparison, len(categories))
	for category := range categories {
		out[category] = CategoryDiff{
			MissingInDestination: difference(model[category], dest[category]),
			ExtraInDestination:   difference(dest[category], model[category]),
		}
	}
	return out
}

// difference returns the sorted names in a that are not in b.
func difference(a, b map[string]bool) []string {
	var out []string
	for name := range a {
		if !b[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Merge folds another comparison into this one, deduplicating names. Used to
// aggregate per-table comparisons into the run report.
func (c Comparison) Merge(other Comparison) Comparison {
	if c == nil {
		c = make(Comparison)
	}
	for category, diff := range other {
		existing := c[category]
		c[category] = CategoryDiff{
			MissingInDestination: union(existing.MissingInDestination, diff.MissingInDestination),
			ExtraInDestination:   union(existing.ExtraInDestination, diff.ExtraInDestination),
		}
	}
	return c
}

func union(a, b []string) []string {
	set := make(map[string]bool, len(a)+len(b))
	for _, name := range a {
		set[name] = true
	}
	for _, name := range b {
		set[name] = true
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
