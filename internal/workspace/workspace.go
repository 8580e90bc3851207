// Package workspace owns the embedded SQLite database that holds the four
// pipeline tables between stages. The workspace is rebuilt per run and is
// mutated in place only by the cleaner and the constraint enforcer; after a
// run it stays on disk so external tooling can inspect the enforced schema.
package workspace

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Workspace wraps the SQLite connection for one pipeline run.
type Workspace struct {
	db   *sql.DB
	path string
}

// Open initializes the workspace database at the given path.
// Use ":memory:" for an ephemeral workspace in tests.
func Open(path string) (*Workspace, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single connection: the pipeline is sequential and ATTACH/PRAGMA state
	// must be visible to every statement.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return &Workspace{db: db, path: path}, nil
}

// DB returns the underlying SQL database connection.
func (w *Workspace) DB() *sql.DB {
	return w.db
}

// Path returns the database file path.
func (w *Workspace) Path() string {
	return w.path
}

// Close closes the database connection.
func (w *Workspace) Close() error {
	return w.db.Close()
}

// TableExists reports whether a table with the given name exists.
func (w *Workspace) TableExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := w.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return count > 0, nil
}

// ColumnInfo describes one column of a workspace table.
type ColumnInfo struct {
	Name string
	Type string
}

// TableColumns returns the columns of a table in declaration order.
func (w *Workspace) TableColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	rows, err := w.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to introspect table %s: %w", table, err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     sql.NullString
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan table_info for %s: %w", table, err)
		}
		cols = append(cols, ColumnInfo{Name: name, Type: typ.String})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s does not exist", table)
	}
	return cols, nil
}

// HasColumn reports whether the table has a column with the given name.
func (w *Workspace) HasColumn(ctx context.Context, table, column string) (bool, error) {
	cols, err := w.TableColumns(ctx, table)
	if err != nil {
		return false, err
	}
	for _, c := range cols {
		if strings.EqualFold(c.Name, column) {
			return true, nil
		}
	}
	return false, nil
}

// PrimaryKey returns the primary key column names of a table in key order.
// Empty result means the table has no declared primary key.
func (w *Workspace) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	rows, err := w.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to introspect table %s: %w", table, err)
	}
	defer rows.Close()

	// pk column of table_info is the 1-based position within the key.
	byPos := make(map[int]string)
	maxPos := 0
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     sql.NullString
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		if pk > 0 {
			byPos[pk] = name
			if pk > maxPos {
				maxPos = pk
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var key []string
	for i := 1; i <= maxPos; i++ {
		key = append(key, byPos[i])
	}
	return key, nil
}

// RowCount returns the number of rows in a table.
func (w *Workspace) RowCount(ctx context.Context, table string) (int64, error) {
	var count int64
	err := w.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(table)),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return count, nil
}

// DropTables removes the given tables if they exist, in the order given.
// Callers must order referencing tables before referenced ones.
func (w *Workspace) DropTables(ctx context.Context, names ...string) error {
	for _, name := range names {
		if _, err := w.db.ExecContext(ctx,
			fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(name)),
		); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", name, err)
		}
	}
	return nil
}

// quoteIdent quotes an SQL identifier. Table and column names flow in from
// schema descriptors and input headers, never from report consumers.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteIdent exposes identifier quoting to the other pipeline packages.
func QuoteIdent(name string) string {
	return quoteIdent(name)
}
