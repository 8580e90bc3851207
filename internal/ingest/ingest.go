// Package ingest is the raw table provider: it turns the three input files
// (a SQLite snapshot, a pipe-delimited enrollment extract, and a JSON
// department roster) into the four workspace tables with normalized uppercase
// column names and trimmed string values. Everything downstream assumes this
// normalization has already happened.
package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"registrar/internal/schema"
	"registrar/internal/workspace"
)

// Inputs names the three source files of one run.
type Inputs struct {
	Snapshot    string // SQLite snapshot with student and acad_prog tables
	Enrollments string // pipe-delimited enrollment extract
	Departments string // JSON department roster
}

// CheckInputs verifies that every input file exists. A missing input is a
// hard failure that terminates the run before the workspace is touched.
func CheckInputs(in Inputs) error {
	var missing []string
	for _, path := range []string{in.Snapshot, in.Enrollments, in.Departments} {
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, path)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required input files: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Provider loads raw tables into the workspace.
type Provider struct {
	ws  *workspace.Workspace
	log *zap.Logger
}

// NewProvider creates a provider writing into the given workspace.
func NewProvider(ws *workspace.Workspace, log *zap.Logger) *Provider {
	return &Provider{ws: ws, log: log}
}

// LoadAll drops any tables left from a previous run and loads all four
// tables fresh. Referencing tables are dropped before referenced ones so the
// enforced foreign keys of the previous run cannot block the rebuild.
func (p *Provider) LoadAll(ctx context.Context, in Inputs) error {
	if err := CheckInputs(in); err != nil {
		return err
	}

	if err := p.ws.DropTables(ctx,
		schema.TableEnrollments,
		schema.TableAcadProg,
		schema.TableDepartments,
		schema.TableStudent,
	); err != nil {
		return fmt.Errorf("failed to reset workspace: %w", err)
	}

	if err := p.LoadSnapshot(ctx, in.Snapshot); err != nil {
		return err
	}
	if err := p.LoadEnrollments(ctx, in.Enrollments); err != nil {
		return err
	}
	if err := p.LoadDepartments(ctx, in.Departments); err != nil {
		return err
	}
	return nil
}

// upperIdent normalizes a raw column name to the workspace convention.
func upperIdent(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
