package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"registrar/internal/workspace"
)

// LoadSnapshot copies every user table from the SQLite snapshot into the
// workspace. Column names are uppercased and text values trimmed; declared
// column types are carried over so the constraint enforcer can rebuild the
// tables with matching definitions. Target table names are lowercased.
func (p *Provider) LoadSnapshot(ctx context.Context, path string) error {
	db := p.ws.DB()

	if _, err := db.ExecContext(ctx, "ATTACH DATABASE ? AS src", path); err != nil {
		return fmt.Errorf("failed to attach snapshot %s: %w", path, err)
	}
	defer db.ExecContext(context.WithoutCancel(ctx), "DETACH DATABASE src")

	tables, err := snapshotTables(ctx, db)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		return fmt.Errorf("snapshot %s contains no tables", path)
	}

	for _, table := range tables {
		rows, err := p.copySnapshotTable(ctx, db, table)
		if err != nil {
			return err
		}
		p.log.Info("loaded snapshot table",
			zap.String("table", strings.ToLower(table)),
			zap.Int64("rows", rows))
	}
	return nil
}

func snapshotTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM src.sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

type snapshotColumn struct {
	name string
	typ  string
}

func (p *Provider) copySnapshotTable(ctx context.Context, db *sql.DB, table string) (int64, error) {
	cols, err := snapshotColumns(ctx, db, table)
	if err != nil {
		return 0, err
	}

	target := strings.ToLower(table)

	defs := make([]string, len(cols))
	exprs := make([]string, len(cols))
	for i, col := range cols {
		typ := col.typ
		if typ == "" {
			typ = "TEXT"
		}
		defs[i] = fmt.Sprintf("%s %s", workspace.QuoteIdent(upperIdent(col.name)), typ)
		src := workspace.QuoteIdent(col.name)
		if hasTextAffinity(typ) {
			exprs[i] = fmt.Sprintf("TRIM(%s)", src)
		} else {
			exprs[i] = src
		}
	}

	create := fmt.Sprintf("CREATE TABLE %s (%s)",
		workspace.QuoteIdent(target), strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, create); err != nil {
		return 0, fmt.Errorf("failed to create table %s: %w", target, err)
	}

	copySQL := fmt.Sprintf("INSERT INTO %s SELECT %s FROM src.%s",
		workspace.QuoteIdent(target), strings.Join(exprs, ", "), workspace.QuoteIdent(table))
	res, err := db.ExecContext(ctx, copySQL)
	if err != nil {
		return 0, fmt.Errorf("failed to copy table %s: %w", target, err)
	}
	return res.RowsAffected()
}

func snapshotColumns(ctx context.Context, db *sql.DB, table string) ([]snapshotColumn, error) {
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf("PRAGMA src.table_info(%s)", workspace.QuoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to introspect snapshot table %s: %w", table, err)
	}
	defer rows.Close()

	var cols []snapshotColumn
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
		cols = append(cols, snapshotColumn{name: name, typ: typ.String})
	}
	return cols, rows.Err()
}

// hasTextAffinity follows the SQLite affinity rules for declared types.
func hasTextAffinity(declared string) bool {
	u := strings.ToUpper(declared)
	return strings.Contains(u, "CHAR") || strings.Contains(u, "CLOB") || strings.Contains(u, "TEXT")
}
