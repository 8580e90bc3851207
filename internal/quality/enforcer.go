package quality

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"registrar/internal/schema"
	"registrar/internal/workspace"
)

// Enforcer rebuilds each workspace table under its declared primary and
// foreign keys. SQLite only accepts key constraints at table creation, so
// each table is rebuilt: create the constrained table, copy all rows, drop
// the old table, rename. Tables are processed in dependency order so every
// foreign key target exists with its final name before it is referenced.
//
// Enforcement assumes validation has reported clean; running it on unclean
// data makes the copy step the first and most informative failure point.
type Enforcer struct {
	ws  *workspace.Workspace
	log *zap.Logger
}

// NewEnforcer creates an enforcer over the given workspace.
func NewEnforcer(ws *workspace.Workspace, log *zap.Logger) *Enforcer {
	return &Enforcer{ws: ws, log: log}
}

// Enforce rebuilds all four tables. On failure the workspace is left in
// whatever partial state the rebuild reached; callers must not assume keys
// are enforced afterwards.
func (e *Enforcer) Enforce(ctx context.Context) error {
	for _, desc := range schema.Tables() {
		if err := e.enforceTable(ctx, desc); err != nil {
			return fmt.Errorf("constraint enforcement failed for %s: %w", desc.Name, err)
		}
		e.log.Info("constraints applied", zap.String("table", desc.Name))
	}
	return nil
}

func (e *Enforcer) enforceTable(ctx context.Context, desc schema.Table) error {
	cols, err := e.ws.TableColumns(ctx, desc.Name)
	if err != nil {
		return err
	}

	names := make([]string, len(cols))
	defs := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
		typ := col.Type
		if typ == "" {
			typ = "TEXT"
		}
		defs[i] = fmt.Sprintf("%s %s", workspace.QuoteIdent(col.Name), typ)
	}

	key := desc.Key(names)
	if len(key) == 0 {
		return fmt.Errorf("no primary key columns present")
	}
	quotedKey := make([]string, len(key))
	for i, k := range key {
		quotedKey[i] = workspace.QuoteIdent(k)
	}
	defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(quotedKey, ", ")))

	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[strings.ToUpper(n)] = true
	}
	for _, fk := range desc.ForeignKeys {
		if !present[strings.ToUpper(fk.Column)] {
			continue
		}
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s)",
			workspace.QuoteIdent(fk.Column),
			workspace.QuoteIdent(fk.RefTable),
			workspace.QuoteIdent(fk.RefColumn)))
	}

	oldName := workspace.QuoteIdent(desc.Name)
	newName := workspace.QuoteIdent(desc.Name + "_new")
	quotedCols := make([]string, len(names))
	for i, n := range names {
		quotedCols[i] = workspace.QuoteIdent(n)
	}
	colList := strings.Join(quotedCols, ", ")

	tx, err := e.ws.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	steps := []struct {
		desc string
		sql  string
	}{
		{"create", fmt.Sprintf("CREATE TABLE %s (%s)", newName, strings.Join(defs, ", "))},
		{"copy", fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", newName, colList, colList, oldName)},
		{"drop", fmt.Sprintf("DROP TABLE %s", oldName)},
		{"rename", fmt.Sprintf("ALTER TABLE %s RENAME TO %s", newName, oldName)},
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step.sql); err != nil {
			return fmt.Errorf("%s step: %w", step.desc, err)
		}
	}

	return tx.Commit()
}

// dropStaleRebuildTable removes a leftover *_new table from an interrupted
// earlier run so a retry does not trip over it.
func dropStaleRebuildTable(ctx context.Context, db *sql.DB, table string) error {
	_, err := db.ExecContext(ctx,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", workspace.QuoteIdent(table+"_new")))
	return err
}

// Reset drops derived state left by a previous run: the aggregation views
// and any *_new leftovers from an interrupted rebuild. The pipeline calls
// this before enforcement when reusing a workspace file.
func (e *Enforcer) Reset(ctx context.Context) error {
	if err := e.dropViews(ctx); err != nil {
		return err
	}
	for _, desc := range schema.Tables() {
		if err := dropStaleRebuildTable(ctx, e.ws.DB(), desc.Name); err != nil {
			return fmt.Errorf("failed to drop stale rebuild table for %s: %w", desc.Name, err)
		}
	}
	return nil
}

// dropViews removes every view in the workspace. Views persist across runs
// and still reference the old tables, so the rename step of the rebuild
// would fail while they exist. The aggregation stage recreates them.
func (e *Enforcer) dropViews(ctx context.Context) error {
	rows, err := e.ws.DB().QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'view'")
	if err != nil {
		return fmt.Errorf("failed to list views: %w", err)
	}
	var views []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		views = append(views, name)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, name := range views {
		if _, err := e.ws.DB().ExecContext(ctx,
			"DROP VIEW IF EXISTS "+workspace.QuoteIdent(name)); err != nil {
			return fmt.Errorf("failed to drop view %s: %w", name, err)
		}
	}
	return nil
}
