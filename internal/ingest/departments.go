package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"registrar/internal/schema"
	"registrar/internal/workspace"
)

// LoadDepartments reads the JSON department roster (an array of objects)
// into the departments table. Keys become uppercase column names; string
// values are trimmed. The column set is the union of keys across all
// records, ordered with the known department columns first so the table
// shape is stable regardless of per-record key order.
func (p *Provider) LoadDepartments(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read departments file: %w", err)
	}

	var records []map[string]interface{}
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse departments JSON: %w", err)
	}

	cols := departmentColumns(records)
	if len(cols) == 0 {
		return fmt.Errorf("departments file %s contains no records", path)
	}

	defs := make([]string, len(cols))
	for i, name := range cols {
		defs[i] = fmt.Sprintf("%s TEXT", workspace.QuoteIdent(name))
	}

	db := p.ws.DB()
	create := fmt.Sprintf("CREATE TABLE %s (%s)",
		workspace.QuoteIdent(schema.TableDepartments), strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create departments table: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)",
		workspace.QuoteIdent(schema.TableDepartments), placeholders)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin department load: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare department insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		args := make([]interface{}, len(cols))
		byKey := make(map[string]interface{}, len(rec))
		for k, v := range rec {
			byKey[upperIdent(k)] = v
		}
		for j, col := range cols {
			args[j] = departmentValue(byKey[col])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert department record %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit department load: %w", err)
	}

	p.log.Info("loaded departments", zap.Int("rows", len(records)))
	return nil
}

// departmentColumns returns the union of keys across all records,
// normalized to uppercase, known columns first and the rest alphabetical.
func departmentColumns(records []map[string]interface{}) []string {
	seen := make(map[string]bool)
	for _, rec := range records {
		for k := range rec {
			seen[upperIdent(k)] = true
		}
	}

	var cols []string
	for _, known := range []string{"DEPT_CODE", "DEPT_NAME", "CONTACT_PERSON"} {
		if seen[known] {
			cols = append(cols, known)
			delete(seen, known)
		}
	}

	var rest []string
	for k := range seen {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	return append(cols, rest...)
}

// departmentValue converts a decoded JSON value to its stored form.
// Absent keys and JSON nulls become SQL NULL.
func departmentValue(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return strings.TrimSpace(x)
	case float64:
		if x == math.Trunc(x) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
