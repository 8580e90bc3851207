package quality

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"registrar/internal/schema"
	"registrar/internal/workspace"
)

// Credit hour domain enforced on enrollments.
const (
	CreditHoursMin = 0
	CreditHoursMax = 30
)

// Cleaner applies one deterministic repair per issue kind, in a fixed order:
// duplicates, then orphans, then null required fields, then the credit-hour
// clamp, then empty names. Repairs mutate the workspace tables in place and
// are idempotent; warnings are logged but never repaired.
type Cleaner struct {
	ws  *workspace.Workspace
	log *zap.Logger
}

// NewCleaner creates a cleaner over the given workspace.
func NewCleaner(ws *workspace.Workspace, log *zap.Logger) *Cleaner {
	return &Cleaner{ws: ws, log: log}
}

// Clean repairs every error-severity issue present in the report.
func (c *Cleaner) Clean(ctx context.Context, report *Report) error {
	// Duplicates (checks 1-4).
	if report.Has(KindDuplicateStudents) {
		if err := c.dedupe(ctx, schema.TableStudent, []string{"EMPLID"}); err != nil {
			return err
		}
	}
	if report.Has(KindDuplicateAcadProg) {
		cols, err := c.ws.TableColumns(ctx, schema.TableAcadProg)
		if err != nil {
			return err
		}
		names := make([]string, len(cols))
		for i, col := range cols {
			names[i] = col.Name
		}
		if err := c.dedupe(ctx, schema.TableAcadProg, names); err != nil {
			return err
		}
	}
	if report.Has(KindDuplicateDepartments) {
		if err := c.dedupe(ctx, schema.TableDepartments, []string{"DEPT_CODE"}); err != nil {
			return err
		}
	}
	if report.Has(KindDuplicateEnrollments) {
		key, err := c.naturalKey(ctx, schema.TableEnrollments)
		if err != nil {
			return err
		}
		if err := c.dedupe(ctx, schema.TableEnrollments, key); err != nil {
			return err
		}
	}

	// Orphans (checks 5-7).
	if report.Has(KindOrphanedAcadProg) {
		if err := c.dropOrphans(ctx, schema.TableAcadProg, "EMPLID",
			schema.TableStudent, "EMPLID"); err != nil {
			return err
		}
	}
	if report.Has(KindOrphanedEnrStudent) {
		if err := c.dropOrphans(ctx, schema.TableEnrollments, "EMPLID",
			schema.TableStudent, "EMPLID"); err != nil {
			return err
		}
	}
	if report.Has(KindOrphanedEnrDept) {
		if err := c.dropOrphans(ctx, schema.TableEnrollments, "DEPARTMENT",
			schema.TableDepartments, "DEPT_CODE"); err != nil {
			return err
		}
	}

	// Null required fields (check 8), per flagged (table, column) pair.
	for _, issue := range report.NullFieldIssues() {
		if err := c.dropNulls(ctx, issue.Table, issue.Column); err != nil {
			return err
		}
	}

	// Domain clamp (check 9): fix the value, keep the row.
	if report.Has(KindInvalidCreditHours) {
		if err := c.clampCreditHours(ctx); err != nil {
			return err
		}
	}

	// Empty names (check 10).
	if report.Has(KindEmptyStudentNames) {
		if err := c.dropEmptyNames(ctx); err != nil {
			return err
		}
	}

	if issue := report.Get(KindStudentsNoEnrollment); issue != nil {
		c.log.Warn("students without enrollments left in place",
			zap.Int("count", issue.Count))
	}

	return nil
}

// CleanUntilValid runs validate-clean passes until the workspace is clean or
// the pass cap is hit. The returned report is the final validation result;
// if error-severity issues survive, the error is an *UncleanError wrapping
// that report and the pipeline must not proceed.
func (c *Cleaner) CleanUntilValid(ctx context.Context, v *Validator, maxPasses int) (*Report, error) {
	if maxPasses < 1 {
		maxPasses = 1
	}

	report, err := v.Validate(ctx)
	if err != nil {
		return nil, err
	}
	if report.Clean() {
		return report, nil
	}

	for pass := 1; pass <= maxPasses; pass++ {
		c.log.Info("cleaning data quality issues",
			zap.Int("pass", pass), zap.Int("issues", report.Len()))
		if err := c.Clean(ctx, report); err != nil {
			return nil, err
		}

		report, err = v.Validate(ctx)
		if err != nil {
			return nil, err
		}
		if report.Clean() {
			return report, nil
		}
	}

	return report, &UncleanError{Report: report, Passes: maxPasses}
}

// dedupe keeps exactly one row per key group: the survivor is the row with
// the lowest rowid, i.e. the first row in input order. NULL key values group
// together, matching the detection queries.
func (c *Cleaner) dedupe(ctx context.Context, table string, key []string) error {
	quoted := make([]string, len(key))
	for i, k := range key {
		quoted[i] = workspace.QuoteIdent(k)
	}
	qt := workspace.QuoteIdent(table)

	res, err := c.ws.DB().ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %[1]s WHERE rowid NOT IN (
			SELECT MIN(rowid) FROM %[1]s GROUP BY %[2]s
		)`, qt, strings.Join(quoted, ", ")))
	if err != nil {
		return fmt.Errorf("failed to deduplicate %s: %w", table, err)
	}
	removed, _ := res.RowsAffected()
	c.log.Info("removed duplicate rows",
		zap.String("table", table), zap.Int64("rows", removed))
	return nil
}

// dropOrphans removes child rows with no matching parent row.
func (c *Cleaner) dropOrphans(ctx context.Context, child, childCol, parent, parentCol string) error {
	res, err := c.ws.DB().ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %[1]s WHERE NOT EXISTS (
			SELECT 1 FROM %[3]s p WHERE p.%[4]s = %[1]s.%[2]s
		)`,
		workspace.QuoteIdent(child), workspace.QuoteIdent(childCol),
		workspace.QuoteIdent(parent), workspace.QuoteIdent(parentCol)))
	if err != nil {
		return fmt.Errorf("failed to drop orphans from %s: %w", child, err)
	}
	removed, _ := res.RowsAffected()
	c.log.Info("removed orphaned rows",
		zap.String("table", child), zap.String("column", childCol),
		zap.Int64("rows", removed))
	return nil
}

func (c *Cleaner) dropNulls(ctx context.Context, table, column string) error {
	res, err := c.ws.DB().ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE %s IS NULL",
		workspace.QuoteIdent(table), workspace.QuoteIdent(column)))
	if err != nil {
		return fmt.Errorf("failed to drop NULL %s.%s rows: %w", table, column, err)
	}
	removed, _ := res.RowsAffected()
	c.log.Info("removed rows with NULL required field",
		zap.String("table", table), zap.String("column", column),
		zap.Int64("rows", removed))
	return nil
}

func (c *Cleaner) clampCreditHours(ctx context.Context) error {
	res, err := c.ws.DB().ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET CREDIT_HOURS = MAX(%d, MIN(%d, CREDIT_HOURS))
		 WHERE CREDIT_HOURS < %d OR CREDIT_HOURS > %d`,
		workspace.QuoteIdent(schema.TableEnrollments),
		CreditHoursMin, CreditHoursMax, CreditHoursMin, CreditHoursMax))
	if err != nil {
		return fmt.Errorf("failed to clamp credit hours: %w", err)
	}
	fixed, _ := res.RowsAffected()
	c.log.Info("clamped out-of-range credit hours", zap.Int64("rows", fixed))
	return nil
}

func (c *Cleaner) dropEmptyNames(ctx context.Context) error {
	res, err := c.ws.DB().ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE LAST_NAME IS NULL OR TRIM(LAST_NAME) = ''",
		workspace.QuoteIdent(schema.TableStudent)))
	if err != nil {
		return fmt.Errorf("failed to drop students with empty names: %w", err)
	}
	removed, _ := res.RowsAffected()
	c.log.Info("removed students with empty names", zap.Int64("rows", removed))
	return nil
}

// naturalKey materializes a table's declared key against its actual columns.
func (c *Cleaner) naturalKey(ctx context.Context, table string) ([]string, error) {
	desc, ok := schema.Lookup(table)
	if !ok {
		return nil, fmt.Errorf("no schema descriptor for table %s", table)
	}
	cols, err := c.ws.TableColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	return desc.Key(names), nil
}
