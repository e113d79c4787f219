// Package firebird implements the source (and guardless destination) adapter
// for Firebird databases using github.com/nakagami/firebirdsql.
package firebird

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/nakagami/firebirdsql"

	"github.com/andresilva/fb-mssql-migrate/internal/adapter"
)

// Handler wraps a Firebird connection. It satisfies adapter.Source and, for
// Firebird destinations, adapter.Destination with every guard operation a
// no-op.
type Handler struct {
	db     *sql.DB
	sqlLog adapter.SQLLogger
}

// Open connects to a Firebird database and verifies the connection.
func Open(ctx context.Context, dsn string, sqlLog adapter.SQLLogger) (*Handler, error) {
	db, err := sql.Open("firebirdsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening firebird connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to firebird: %w", err)
	}
	return &Handler{db: db, sqlLog: sqlLog}, nil
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

// Capabilities reports no guard support: Firebird destinations receive plain
// inserts only.
func (h *Handler) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{}
}

// ListTables returns user tables, excluding views and system relations.
func (h *Handler) ListTables(ctx context.Context) ([]string, error) {
	const query = `
		SELECT TRIM(rdb$relation_name)
		FROM rdb$relations
		WHERE rdb$view_blr IS NULL
		  AND (rdb$system_flag IS NULL OR rdb$system_flag = 0)
		ORDER BY rdb$relation_name`

	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing firebird tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		tables = append(tables, strings.TrimSpace(name))
	}
	return tables, rows.Err()
}

// Columns returns the column names of a table in ordinal order.
func (h *Handler) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := h.db.QueryContext(ctx, fmt.Sprintf("SELECT FIRST 1 * FROM %s", table))
	if err != nil {
		return nil, fmt.Errorf("describing %s: %w", table, err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	for i, c := range cols {
		cols[i] = strings.TrimSpace(c)
	}
	return cols, rows.Err()
}

// CountRows returns the total row count of a table.
func (h *Handler) CountRows(ctx context.Context, table string) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if err := h.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting rows of %s: %w", table, err)
	}
	return count, nil
}

// FetchPage reads up to pageSize rows starting at offset using Firebird's
// FIRST/SKIP syntax.
func (h *Handler) FetchPage(ctx context.Context, table string, pageSize, offset int) ([]adapter.Row, error) {
	query := fmt.Sprintf("SELECT FIRST %d SKIP %d * FROM %s", pageSize, offset, table)
	h.logSQL(query)

	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetching page of %s at offset %d: %w", table, offset, err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// Query runs an arbitrary statement and returns any result rows. Statements
// without a result set return an empty slice.
func (h *Handler) Query(ctx context.Context, query string) ([]adapter.Row, error) {
	h.logSQL(query)
	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// Version returns the engine version string.
func (h *Handler) Version(ctx context.Context) (string, error) {
	const query = "SELECT rdb$get_context('SYSTEM', 'ENGINE_VERSION') FROM rdb$database"
	var version sql.NullString
	if err := h.db.QueryRowContext(ctx, query).Scan(&version); err != nil {
		return "", fmt.Errorf("reading firebird version: %w", err)
	}
	if !version.Valid {
		return "unknown", nil
	}
	return strings.TrimSpace(version.String), nil
}

// ClearTable removes every row from a table.
func (h *Handler) ClearTable(ctx context.Context, table string) error {
	stmt := fmt.Sprintf("DELETE FROM %s", table)
	h.logSQL(stmt)
	if _, err := h.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("clearing %s: %w", table, err)
	}
	return nil
}

// InsertBatch inserts rows inside a single transaction, one commit per batch.
func (h *Handler) InsertBatch(ctx context.Context, table string, columns []string, batch []adapter.Row) error {
	if len(batch) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), placeholders)
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

// BeginTable is a no-op: Firebird destinations have no identity toggling.
func (h *Handler) BeginTable(ctx context.Context, table string) error { return nil }

// EndTable is a no-op.
func (h *Handler) EndTable(ctx context.Context, table string) error { return nil }

// DisableConstraints is a no-op on Firebird destinations.
func (h *Handler) DisableConstraints(ctx context.Context) error { return nil }

// EnableConstraints is a no-op on Firebird destinations.
func (h *Handler) EnableConstraints(ctx context.Context) error { return nil }

// DisableAllObjects is a no-op on Firebird destinations.
func (h *Handler) DisableAllObjects(ctx context.Context) error { return nil }

// EnableAllObjects is a no-op on Firebird destinations.
func (h *Handler) EnableAllObjects(ctx context.Context) error { return nil }

// ListDisabledConstraints always reports none.
func (h *Handler) ListDisabledConstraints(ctx context.Context) ([]adapter.TableConstraint, error) {
	return nil, nil
}

// EnableConstraint is a no-op on Firebird destinations.
func (h *Handler) EnableConstraint(ctx context.Context, table, constraint string) error {
	return nil
}

// ExecuteRaw runs a statement, discarding any result set.
func (h *Handler) ExecuteRaw(ctx context.Context, stmt string) error {
	_, err := h.Query(ctx, stmt)
	return err
}

// PrimaryKeyColumns always reports none: duplicate diagnosis is not
// available for Firebird destinations.
func (h *Handler) PrimaryKeyColumns(ctx context.Context, table string) ([]string, error) {
	return nil, nil
}

// SuggestPrimaryKeyValue never has a suggestion.
func (h *Handler) SuggestPrimaryKeyValue(ctx context.Context, table, column string) (any, error) {
	return nil, nil
}

// Metadata returns the user-object name sets used by the drift comparator.
func (h *Handler) Metadata(ctx context.Context) (adapter.Metadata, error) {
	queries := map[adapter.ObjectCategory]string{
		adapter.CategoryConstraints: `
			SELECT TRIM(rdb$constraint_name)
			FROM rdb$relation_constraints
			WHERE rdb$system_flag = 0 OR rdb$system_flag IS NULL`,
		adapter.CategoryIndexes: `
			SELECT TRIM(rdb$index_name)
			FROM rdb$indices
			WHERE (rdb$system_flag = 0 OR rdb$system_flag IS NULL)
			  AND rdb$index_name IS NOT NULL`,
		adapter.CategoryProcedures: `
			SELECT TRIM(rdb$procedure_name)
			FROM rdb$procedures
			WHERE rdb$system_flag = 0 OR rdb$system_flag IS NULL`,
		adapter.CategoryTriggers: `
			SELECT TRIM(rdb$trigger_name)
			FROM rdb$triggers
			WHERE rdb$system_flag = 0 OR rdb$system_flag IS NULL`,
	}

	meta := make(adapter.Metadata, len(queries))
	for category, query := range queries {
		names, err := h.scanNameSet(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("reading firebird %s: %w", category, err)
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
		if trimmed := strings.TrimSpace(name.String); name.Valid && trimmed != "" {
			set[trimmed] = true
		}
	}
	return set, rows.Err()
}

func scanAll(rows *sql.Rows) ([]adapter.Row, error) {
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
