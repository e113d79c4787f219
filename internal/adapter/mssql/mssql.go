// Package mssql implements the destination and model adapter for SQL Server
// using github.com/microsoft/go-mssqldb.
//
// The handler tracks which triggers, indexes and identity toggles it disabled
// so restoration touches exactly those objects and nothing else.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/andresilva/fb-mssql-migrate/internal/adapter"
)

// Handler wraps a SQL Server connection. It satisfies adapter.Destination.
type Handler struct {
	db     *sql.DB
	sqlLog adapter.SQLLogger

	mu               sync.Mutex
	identityOn       map[string]bool
	disabledTriggers map[string][]string
	disabledIndexes  map[string][]string
	globalDisabled   bool
}

// Open connects to a SQL Server database and verifies the connection.
func Open(ctx context.Context, dsn string, sqlLog adapter.SQLLogger) (*Handler, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening mssql connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to mssql: %w", err)
	}
	return &Handler{
		db:               db,
		sqlLog:           sqlLog,
		identityOn:       make(map[string]bool),
		disabledTriggers: make(map[string][]string),
		disabledIndexes:  make(map[string][]string),
	}, nil
}

// Close closes the underlying connection pool.
func (h *Handler) Close() error {
	return h.db.Close()
}

func (h *Handler) logSQL(stmt string) {
	if h.sqlLog != nil {
		h.sqlLog(stmt)
	}
}

func (h *Handler) exec(ctx context.Context, stmt string) error {
	h.logSQL(stmt)
	_, err := h.db.ExecContext(ctx, stmt)
	return err
}

// Capabilities reports full guard support.
func (h *Handler) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		ConstraintToggle:     true,
		IdentityInsertToggle: true,
		GlobalObjectDisable:  true,
	}
}

// ListTables returns user table names.
func (h *Handler) ListTables(ctx context.Context) ([]string, error) {
	rows, err := h.db.QueryContext(ctx, "SELECT name FROM sys.tables ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing mssql tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// ClearTable removes every row from a table. DELETE rather than TRUNCATE so
// tables referenced by foreign keys can be cleared while constraints exist.
func (h *Handler) ClearTable(ctx context.Context, table string) error {
	if err := h.exec(ctx, fmt.Sprintf("DELETE FROM [%s]", table)); err != nil {
		return fmt.Errorf("clearing %s: %w", table, err)
	}
	return nil
}

// InsertBatch inserts rows inside a single transaction, one commit per batch.
// Any failure rolls the whole batch back.
func (h *Handler) InsertBatch(ctx context.Context, table string, columns []string, batch []adapter.Row) error {
	if len(batch) == 0 {
		return nil
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = "[" + col + "]"
		placeholders[i] = fmt.Sprintf("@p%d", i+1)
	}
	stmt := fmt.Sprintf("INSERT INTO [%s] (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	h.logSQL(stmt)

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert transaction on %s: %w", table, err)
	}
	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing insert into %s: %w", table, err)
	}
	for _, row := range batch {
		if _, err := prepared.ExecContext(ctx, row...); err != nil {
			prepared.Close()
			tx.Rollback()
			return fmt.Errorf("inserting into %s: %w", table, err)
		}
	}
	prepared.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing insert into %s: %w", table, err)
	}
	return nil
}

// BeginTable turns IDENTITY_INSERT on when the table has an identity column,
// remembering the toggle for EndTable.
func (h *Handler) BeginTable(ctx context.Context, table string) error {
	hasIdentity, err := h.hasIdentityColumn(ctx, table)
	if err != nil {
		return err
	}
	if !hasIdentity {
		return nil
	}
	if err := h.exec(ctx, fmt.Sprintf("SET IDENTITY_INSERT [%s] ON", table)); err != nil {
		return fmt.Errorf("enabling identity insert on %s: %w", table, err)
	}
	h.mu.Lock()
	h.identityOn[table] = true
	h.mu.Unlock()
	return nil
}

// EndTable turns IDENTITY_INSERT back off if BeginTable turned it on. Safe to
// call when BeginTable failed or never ran.
func (h *Handler) EndTable(ctx context.Context, table string) error {
	h.mu.Lock()
	on := h.identityOn[table]
	delete(h.identityOn, table)
	h.mu.Unlock()
	if !on {
		return nil
	}
	if err := h.exec(ctx, fmt.Sprintf("SET IDENTITY_INSERT [%s] OFF", table)); err != nil {
		return fmt.Errorf("disabling identity insert on %s: %w", table, err)
	}
	return nil
}

func (h *Handler) hasIdentityColumn(ctx context.Context, table string) (bool, error) {
	const query = `
		SELECT 1
		FROM sys.columns
		WHERE object_id = OBJECT_ID(@p1)
		  AND COLUMNPROPERTY(OBJECT_ID(@p1), name, 'IsIdentity') = 1`

	var one int
	err := h.db.QueryRowContext(ctx, query, table).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking identity column of %s: %w", table, err)
	}
	return true, nil
}

// DisableConstraints suspends constraint checking on every user table.
func (h *Handler) DisableConstraints(ctx context.Context) error {
	return h.constraintAction(ctx, "NOCHECK")
}

// EnableConstraints resumes constraint checking on every user table.
func (h *Handler) EnableConstraints(ctx context.Context) error {
	return h.constraintAction(ctx, "CHECK")
}

func (h *Handler) constraintAction(ctx context.Context, action string) error {
	tables, err := h.ListTables(ctx)
	if err != nil {
		return err
	}
	for _, table := range tables {
		stmt := fmt.Sprintf("ALTER TABLE [%s] %s CONSTRAINT ALL", table, action)
		if err := h.exec(ctx, stmt); err != nil {
			return fmt.Errorf("%s constraints on %s: %w", strings.ToLower(action), table, err)
		}
	}
	return nil
}

// DisableAllObjects suspends constraints, active triggers and active
// nonclustered indexes, recording triggers and indexes for restoration.
// Calling it again while disabled is a no-op.
func (h *Handler) DisableAllObjects(ctx context.Context) error {
	h.mu.Lock()
	if h.globalDisabled {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	if err := h.DisableConstraints(ctx); err != nil {
		return err
	}

	triggers, err := h.listActiveTriggers(ctx)
	if err != nil {
		return err
	}
	disabledTriggers := make(map[string][]string)
	for _, tc := range triggers {
		stmt := fmt.Sprintf("DISABLE TRIGGER [%s] ON [%s]", tc.Constraint, tc.Table)
		if err := h.exec(ctx, stmt); err != nil {
			return fmt.Errorf("disabling trigger %s on %s: %w", tc.Constraint, tc.Table, err)
		}
		disabledTriggers[tc.Table] = append(disabledTriggers[tc.Table], tc.Constraint)
	}

	indexes, err := h.listActiveIndexes(ctx)
	if err != nil {
		return err
	}
	disabledIndexes := make(map[string][]string)
	for _, ic := range indexes {
		stmt := fmt.Sprintf("ALTER INDEX [%s] ON [%s] DISABLE", ic.Constraint, ic.Table)
		if err := h.exec(ctx, stmt); err != nil {
			return fmt.Errorf("disabling index %s on %s: %w", ic.Constraint, ic.Table, err)
		}
		disabledIndexes[ic.Table] = append(disabledIndexes[ic.Table], ic.Constraint)
	}

	h.mu.Lock()
	h.disabledTriggers = disabledTriggers
	h.disabledIndexes = disabledIndexes
	h.globalDisabled = true
	h.mu.Unlock()
	return nil
}

// EnableAllObjects restores constraints and exactly the triggers and indexes
// DisableAllObjects turned off. A no-op when nothing is disabled.
func (h *Handler) EnableAllObjects(ctx context.Context) error {
	h.mu.Lock()
	if !h.globalDisabled {
		h.mu.Unlock()
		return nil
	}
	triggers := h.disabledTriggers
	indexes := h.disabledIndexes
	h.mu.Unlock()

	if err := h.EnableConstraints(ctx); err != nil {
		return err
	}

	for table, names := range indexes {
		for _, index := range names {
			stmt := fmt.Sprintf("ALTER INDEX [%s] ON [%s] REBUILD", index, table)
			if err := h.exec(ctx, stmt); err != nil {
				return fmt.Errorf("rebuilding index %s on %s: %w", index, table, err)
			}
		}
	}
	for table, names := range triggers {
		for _, trigger := range names {
			stmt := fmt.Sprintf("ENABLE TRIGGER [%s] ON [%s]", trigger, table)
			if err := h.exec(ctx, stmt); err != nil {
				return fmt.Errorf("enabling trigger %s on %s: %w", trigger, table, err)
			}
		}
	}

	h.mu.Lock()
	h.disabledTriggers = make(map[string][]string)
	h.disabledIndexes = make(map[string][]string)
	h.globalDisabled = false
	h.mu.Unlock()
	return nil
}

func (h *Handler) listActiveTriggers(ctx context.Context) ([]adapter.TableConstraint, error) {
	const query = `
		SELECT OBJECT_NAME(parent_id) AS table_name, name
		FROM sys.triggers
		WHERE is_disabled = 0
		  AND is_ms_shipped = 0
		  AND parent_class = 1`
	return h.scanPairs(ctx, query, "listing active triggers")
}

// listActiveIndexes returns enabled nonclustered indexes that are not backing
// a primary key or unique constraint. Those can be disabled and rebuilt
// without blocking inserts.
func (h *Handler) listActiveIndexes(ctx context.Context) ([]adapter.TableConstraint, error) {
	const query = `
		SELECT OBJECT_NAME(i.object_id) AS table_name, i.name
		FROM sys.indexes i
		INNER JOIN sys.tables t ON t.object_id = i.object_id
		WHERE i.is_disabled = 0
		  AND i.name IS NOT NULL
		  AND i.is_primary_key = 0
		  AND i.is_unique_constraint = 0
		  AND i.type_desc = 'NONCLUSTERED'`
	return h.scanPairs(ctx, query, "listing active indexes")
}

// ListDisabledConstraints returns check and foreign key constraints the
// engine still reports as disabled.
func (h *Handler) ListDisabledConstraints(ctx context.Context) ([]adapter.TableConstraint, error) {
	const query = `
		SELECT OBJECT_NAME(parent_object_id) AS table_name, name
		FROM sys.check_constraints
		WHERE is_disabled = 1
		UNION
		SELECT OBJECT_NAME(parent_object_id) AS table_name, name
		FROM sys.foreign_keys
		WHERE is_disabled = 1`
	return h.scanPairs(ctx, query, "listing disabled constraints")
}

func (h *Handler) scanPairs(ctx context.Context, query, what string) ([]adapter.TableConstraint, error) {
	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()

	var out []adapter.TableConstraint
	for rows.Next() {
		var tc adapter.TableConstraint
		if err := rows.Scan(&tc.Table, &tc.Constraint); err != nil {
			return nil, fmt.Errorf("%s: %w", what, err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// EnableConstraint re-enables one constraint with validation of existing rows.
func (h *Handler) EnableConstraint(ctx context.Context, table, constraint string) error {
	stmt := fmt.Sprintf("ALTER TABLE [%s] WITH CHECK CHECK CONSTRAINT [%s]", table, constraint)
	if err := h.exec(ctx, stmt); err != nil {
		return fmt.Errorf("enabling constraint %s on %s: %w", constraint, table, err)
	}
	return nil
}

// ExecuteRaw runs an arbitrary statement, discarding any result set.
func (h *Handler) ExecuteRaw(ctx context.Context, stmt string) error {
	_, err := h.Query(ctx, stmt)
	return err
}

// Query runs a statement and returns any result rows.
func (h *Handler) Query(ctx context.Context, query string) ([]adapter.Row, error) {
	h.logSQL(query)
	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading result columns: %w", err)
	}
	var out []adapter.Row
	for rows.Next() {
		values := make(adapter.Row, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, values)
	}
	return out, rows.Err()
}

// PrimaryKeyColumns returns the table's primary key columns in ordinal order.
func (h *Handler) PrimaryKeyColumns(ctx context.Context, table string) ([]string, error) {
	const query = `
		SELECT KU.COLUMN_NAME
		FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS AS TC
		INNER JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE AS KU
			ON TC.CONSTRAINT_NAME = KU.CONSTRAINT_NAME
			AND TC.TABLE_NAME = KU.TABLE_NAME
		WHERE TC.CONSTRAINT_TYPE = 'PRIMARY KEY'
		  AND TC.TABLE_NAME = @p1
		ORDER BY KU.ORDINAL_POSITION`

	rows, err := h.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("reading primary key of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("reading primary key of %s: %w", table, err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// SuggestPrimaryKeyValue proposes max(column)+1 for integer keys. Returns nil
// when the table is empty or the maximum is not an integer.
func (h *Handler) SuggestPrimaryKeyValue(ctx context.Context, table, column string) (any, error) {
	query := fmt.Sprintf("SELECT MAX([%s]) FROM [%s]", column, table)
	var max any
	if err := h.db.QueryRowContext(ctx, query).Scan(&max); err != nil {
		return nil, fmt.Errorf("suggesting key value for %s.%s: %w", table, column, err)
	}
	switch v := max.(type) {
	case int64:
		return v + 1, nil
	case int32:
		return int64(v) + 1, nil
	default:
		return nil, nil
	}
}

// CountRows returns the total row count of a table.
func (h *Handler) CountRows(ctx context.Context, table string) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM [%s]", table)
	if err := h.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting rows of %s: %w", table, err)
	}
	return count, nil
}

// Version returns the engine version string.
func (h *Handler) Version(ctx context.Context) (string, error) {
	var version string
	if err := h.db.QueryRowContext(ctx, "SELECT @@VERSION").Scan(&version); err != nil {
		return "", fmt.Errorf("reading mssql version: %w", err)
	}
	return version, nil
}

// SizeBytes returns the database's physical size from sys.database_files.
func (h *Handler) SizeBytes(ctx context.Context) (int64, error) {
	var size sql.NullInt64
	const query = "SELECT SUM(CAST(size AS BIGINT)) * 8 * 1024 FROM sys.database_files"
	if err := h.db.QueryRowContext(ctx, query).Scan(&size); err != nil {
		return 0, fmt.Errorf("reading database size: %w", err)
	}
	if !size.Valid {
		return 0, nil
	}
	return size.Int64, nil
}

// Metadata returns the user-object name sets used by the drift comparator.
func (h *Handler) Metadata(ctx context.Context) (adapter.Metadata, error) {
	queries := map[adapter.ObjectCategory]string{
		adapter.CategoryConstraints: `
			SELECT name
			FROM sys.objects
			WHERE type IN ('C', 'F', 'PK', 'UQ', 'D')
			  AND is_ms_shipped = 0`,
		adapter.CategoryIndexes: `
			SELECT name
			FROM sys.indexes
			WHERE name IS NOT NULL
			  AND is_hypothetical = 0`,
		adapter.CategoryProcedures: `
			SELECT name
			FROM sys.procedures
			WHERE is_ms_shipped = 0`,
		adapter.CategoryTriggers: `
			SELECT name
			FROM sys.triggers
			WHERE is_ms_shipped = 0`,
	}

	meta := make(adapter.Metadata, len(queries))
	for category, query := range queries {
		names, err := h.scanNameSet(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("reading mssql %s: %w", category, err)
		}
		meta[category] = names
	}
	return meta, nil
}

func (h *Handler) scanNameSet(ctx context.Context, query string) (map[string]bool, error) {
	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if name.Valid && name.String != "" {
			set[name.String] = true
		}
	}
	return set, rows.Err()
}
