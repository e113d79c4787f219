// Package adapter defines the narrow interfaces the migration core uses to
// talk to concrete database engines. One implementation exists per engine
// (Firebird, SQL Server); everything above this package is engine-agnostic.
package adapter

import "context"

// Row is one record as read from the source, values in column order.
type Row []any

// Blob is a deferred large-object handle surfaced by a driver. The sanitizer
// reads it eagerly; a failed read becomes a NULL value rather than an error.
type Blob interface {
	ReadAll() ([]byte, error)
}

// SQLLogger receives every statement an adapter executes. Used to feed the
// SQL history shown at debug level and in the run report.
type SQLLogger func(stmt string)

// Capabilities describes which schema-guard operations a destination variant
// supports. The guard selects its strategy from these once per run.
type Capabilities struct {
	ConstraintToggle     bool
	IdentityInsertToggle bool
	GlobalObjectDisable  bool
}

// ObjectCategory is a class of schema objects tracked by the drift comparator.
type ObjectCategory string

const (
	CategoryConstraints ObjectCategory = "constraints"
	CategoryIndexes     ObjectCategory = "indexes"
	CategoryProcedures  ObjectCategory = "procedures"
	CategoryTriggers    ObjectCategory = "triggers"
)

// Categories returns all object categories in a stable order.
func Categories() []ObjectCategory {
	return []ObjectCategory{
		CategoryConstraints,
		CategoryIndexes,
		CategoryProcedures,
		CategoryTriggers,
	}
}

// Metadata maps an object category to the set of object names present.
type Metadata map[ObjectCategory]map[string]bool

// TableConstraint identifies a constraint by its owning table.
type TableConstraint struct {
	Table      string `json:"table"`
	Constraint string `json:"constraint"`
}

// MetadataReader is the narrow surface the drift comparator needs. The model
// database connection implements only this plus Close.
type MetadataReader interface {
	Metadata(ctx context.Context) (Metadata, error)
}

// Source reads tables from the origin database.
type Source interface {
	ListTables(ctx context.Context) ([]string, error)
	Columns(ctx context.Context, table string) ([]string, error)
	CountRows(ctx context.Context, table string) (int64, error)

	// FetchPage returns up to pageSize rows starting at offset, in the
	// engine's native order. No ORDER BY is applied; reproducibility across
	// runs is not guaranteed.
	FetchPage(ctx context.Context, table string, pageSize, offset int) ([]Row, error)

	Version(ctx context.Context) (string, error)
	Query(ctx context.Context, query string) ([]Row, error)
	MetadataReader
	Close() error
}

// Destination writes rows into the target database and exposes the
// capability-gated guard operations. Variants that lack a capability
// implement the corresponding methods as no-ops.
type Destination interface {
	Capabilities() Capabilities

	ListTables(ctx context.Context) ([]string, error)
	ClearTable(ctx context.Context, table string) error
	InsertBatch(ctx context.Context, table string, columns []string, rows []Row) error

	// BeginTable and EndTable bracket all inserts into one table. The SQL
	// Server implementation toggles IDENTITY_INSERT here; EndTable must be
	// safe to call even when BeginTable failed.
	BeginTable(ctx context.Context, table string) error
	EndTable(ctx context.Context, table string) error

	DisableConstraints(ctx context.Context) error
	EnableConstraints(ctx context.Context) error
	DisableAllObjects(ctx context.Context) error
	EnableAllObjects(ctx context.Context) error
	ListDisabledConstraints(ctx context.Context) ([]TableConstraint, error)
	EnableConstraint(ctx context.Context, table, constraint string) error
	ExecuteRaw(ctx context.Context, stmt string) error

	PrimaryKeyColumns(ctx context.Context, table string) ([]string, error)
	// SuggestPrimaryKeyValue proposes an unused value for a key column,
	// typically max(existing)+1. A nil suggestion means none is available.
	SuggestPrimaryKeyValue(ctx context.Context, table, column string) (any, error)

	CountRows(ctx context.Context, table string) (int64, error)
	Version(ctx context.Context) (string, error)
	Query(ctx context.Context, query string) ([]Row, error)
	MetadataReader
	Close() error
}

// Sizer is implemented by adapters that can report the database's physical
// size. Used only by the run report.
type Sizer interface {
	SizeBytes(ctx context.Context) (int64, error)
}
