package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"registrar/internal/schema"
	"registrar/internal/workspace"
)

// LoadEnrollments reads the pipe-delimited enrollment extract into the
// enrollments table. Every value is trimmed and empty fields are stored as
// NULL so the required-field checks see them; CREDIT_HOURS is coerced to an
// integer with unparsable values becoming 0, and EMPLID gets integer
// affinity so joins against the student table compare numerically.
func (p *Provider) LoadEnrollments(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open enrollments file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '|'
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("failed to read enrollments header: %w", err)
	}

	cols := make([]string, len(header))
	defs := make([]string, len(header))
	creditIdx := -1
	for i, raw := range header {
		name := upperIdent(raw)
		cols[i] = name
		typ := "TEXT"
		switch name {
		case "CREDIT_HOURS":
			typ = "INTEGER"
			creditIdx = i
		case "EMPLID", "CLASS_NBR":
			typ = "INTEGER"
		}
		defs[i] = fmt.Sprintf("%s %s", workspace.QuoteIdent(name), typ)
	}

	db := p.ws.DB()
	create := fmt.Sprintf("CREATE TABLE %s (%s)",
		workspace.QuoteIdent(schema.TableEnrollments), strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create enrollments table: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)",
		workspace.QuoteIdent(schema.TableEnrollments), placeholders)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin enrollment load: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare enrollment insert: %w", err)
	}
	defer stmt.Close()

	var total int64
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read enrollments record: %w", err)
		}

		args := make([]interface{}, len(cols))
		for i := range cols {
			var value string
			if i < len(record) {
				value = strings.TrimSpace(record[i])
			}
			if i == creditIdx {
				n, err := strconv.Atoi(value)
				if err != nil {
					n = 0
				}
				args[i] = n
				continue
			}
			if value == "" {
				args[i] = nil
				continue
			}
			args[i] = value
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert enrollment row %d: %w", total+1, err)
		}
		total++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit enrollment load: %w", err)
	}

	p.log.Info("loaded enrollments", zap.Int64("rows", total))
	return nil
}
