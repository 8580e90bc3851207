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

// Validator runs the data quality checks against the workspace tables.
// It is a pure inspector: it never mutates data, and given identical input
// it produces an identical report.
type Validator struct {
	ws  *workspace.Workspace
	log *zap.Logger
}

// NewValidator creates a validator over the given workspace.
func NewValidator(ws *workspace.Workspace, log *zap.Logger) *Validator {
	return &Validator{ws: ws, log: log}
}

// Validate runs all checks and returns the issue report. A missing pipeline
// table is a hard failure; a missing optional column silently skips the
// checks that would need it.
func (v *Validator) Validate(ctx context.Context) (*Report, error) {
	for _, t := range schema.Tables() {
		exists, err := v.ws.TableExists(ctx, t.Name)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("required table %s is missing from the workspace", t.Name)
		}
	}

	report := NewReport()

	checks := []func(context.Context, *Report) error{
		v.checkDuplicateStudents,
		v.checkDuplicateAcadProg,
		v.checkDuplicateDepartments,
		v.checkDuplicateEnrollments,
		v.checkOrphanedAcadProg,
		v.checkOrphanedEnrollmentStudents,
		v.checkOrphanedEnrollmentDepts,
		v.checkNullRequiredFields,
		v.checkCreditHourDomain,
		v.checkEmptyStudentNames,
		v.checkStudentsWithoutEnrollments,
	}
	for _, check := range checks {
		if err := check(ctx, report); err != nil {
			return nil, err
		}
	}

	if report.Clean() {
		v.log.Info("data quality validation passed", zap.Int("warnings", report.Len()))
	} else {
		v.log.Warn("data quality issues found", zap.Int("issues", report.Len()))
		for _, issue := range report.Issues() {
			v.log.Warn("quality issue",
				zap.String("kind", string(issue.Kind)),
				zap.String("severity", string(issue.Severity)),
				zap.Int("count", issue.Count),
				zap.Strings("examples", issue.Examples))
		}
	}
	return report, nil
}

// ---- duplicate checks (1-4) ----

func (v *Validator) checkDuplicateStudents(ctx context.Context, report *Report) error {
	return v.checkDuplicateKey(ctx, report, KindDuplicateStudents,
		schema.TableStudent, []string{"EMPLID"})
}

// checkDuplicateAcadProg groups by every column: records that differ only by
// effective date are distinct program rows, not duplicates.
func (v *Validator) checkDuplicateAcadProg(ctx context.Context, report *Report) error {
	cols, err := v.ws.TableColumns(ctx, schema.TableAcadProg)
	if err != nil {
		return err
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return v.checkDuplicateKey(ctx, report, KindDuplicateAcadProg,
		schema.TableAcadProg, names)
}

func (v *Validator) checkDuplicateDepartments(ctx context.Context, report *Report) error {
	return v.checkDuplicateKey(ctx, report, KindDuplicateDepartments,
		schema.TableDepartments, []string{"DEPT_CODE"})
}

func (v *Validator) checkDuplicateEnrollments(ctx context.Context, report *Report) error {
	key, err := v.enrollmentKey(ctx)
	if err != nil {
		return err
	}
	return v.checkDuplicateKey(ctx, report, KindDuplicateEnrollments,
		schema.TableEnrollments, key)
}

// enrollmentKey materializes the enrollment natural key against the columns
// actually present (COURSE_ID and CLASS_NBR are optional).
func (v *Validator) enrollmentKey(ctx context.Context) ([]string, error) {
	desc, _ := schema.Lookup(schema.TableEnrollments)
	cols, err := v.ws.TableColumns(ctx, schema.TableEnrollments)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return desc.Key(names), nil
}

// checkDuplicateKey flags key groups with more than one row.
func (v *Validator) checkDuplicateKey(ctx context.Context, report *Report, kind Kind, table string, key []string) error {
	quoted := make([]string, len(key))
	for i, k := range key {
		quoted[i] = workspace.QuoteIdent(k)
	}
	keyList := strings.Join(quoted, ", ")
	qt := workspace.QuoteIdent(table)

	var groups int
	err := v.ws.DB().QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM (
			SELECT 1 FROM %s GROUP BY %s HAVING COUNT(*) > 1
		)`, qt, keyList)).Scan(&groups)
	if err != nil {
		return fmt.Errorf("duplicate check on %s failed: %w", table, err)
	}
	if groups == 0 {
		return nil
	}

	// Label examples with the leading key columns only; a full-row group
	// list is unreadable for wide tables.
	labels := key
	if len(labels) > 2 {
		labels = labels[:2]
	}
	examples, err := v.groupExamples(ctx, table, keyList, labels)
	if err != nil {
		return err
	}

	report.Add(&Issue{
		Kind:     kind,
		Severity: SeverityError,
		Count:    groups,
		Examples: examples,
		Message:  fmt.Sprintf("%d duplicate key group(s) in %s", groups, table),
	})
	return nil
}

// groupExamples renders up to five duplicate groups as "COL=value" pairs
// with the group size, ordered by the label columns for determinism.
func (v *Validator) groupExamples(ctx context.Context, table, keyList string, labels []string) ([]string, error) {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = workspace.QuoteIdent(l)
	}
	labelList := strings.Join(quoted, ", ")

	query := fmt.Sprintf(
		`SELECT %s, COUNT(*) AS cnt FROM %s GROUP BY %s HAVING cnt > 1
		 ORDER BY %s LIMIT %d`,
		labelList, workspace.QuoteIdent(table), keyList, labelList, maxExamples)

	rows, err := v.ws.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("duplicate example query on %s failed: %w", table, err)
	}
	defer rows.Close()

	var examples []string
	for rows.Next() {
		vals := make([]sql.NullString, len(labels))
		dest := make([]interface{}, len(labels)+1)
		for i := range vals {
			dest[i] = &vals[i]
		}
		var cnt int
		dest[len(labels)] = &cnt
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		parts := make([]string, len(labels))
		for i, l := range labels {
			parts[i] = fmt.Sprintf("%s=%s", l, nullStr(vals[i]))
		}
		examples = append(examples, fmt.Sprintf("%s (%d rows)", strings.Join(parts, ", "), cnt))
	}
	return examples, rows.Err()
}

// ---- referential checks (5-7) ----

func (v *Validator) checkOrphanedAcadProg(ctx context.Context, report *Report) error {
	return v.checkOrphans(ctx, report, KindOrphanedAcadProg,
		schema.TableAcadProg, "EMPLID", schema.TableStudent, "EMPLID",
		"academic programs referencing unknown students")
}

func (v *Validator) checkOrphanedEnrollmentStudents(ctx context.Context, report *Report) error {
	return v.checkOrphans(ctx, report, KindOrphanedEnrStudent,
		schema.TableEnrollments, "EMPLID", schema.TableStudent, "EMPLID",
		"enrollments referencing unknown students")
}

func (v *Validator) checkOrphanedEnrollmentDepts(ctx context.Context, report *Report) error {
	return v.checkOrphans(ctx, report, KindOrphanedEnrDept,
		schema.TableEnrollments, "DEPARTMENT", schema.TableDepartments, "DEPT_CODE",
		"enrollments referencing unknown departments")
}

// checkOrphans flags child rows whose reference value has no parent row.
func (v *Validator) checkOrphans(ctx context.Context, report *Report, kind Kind, child, childCol, parent, parentCol, message string) error {
	// The child column may be optional in some extracts; without it there is
	// nothing to check.
	has, err := v.ws.HasColumn(ctx, child, childCol)
	if err != nil {
		return err
	}
	if !has {
		return nil
	}

	qc, qcc := workspace.QuoteIdent(child), workspace.QuoteIdent(childCol)
	qp, qpc := workspace.QuoteIdent(parent), workspace.QuoteIdent(parentCol)

	query := fmt.Sprintf(
		`SELECT c.%[2]s, COUNT(*) AS cnt
		 FROM %[1]s c
		 WHERE NOT EXISTS (SELECT 1 FROM %[3]s p WHERE p.%[4]s = c.%[2]s)
		 GROUP BY c.%[2]s
		 ORDER BY c.%[2]s`, qc, qcc, qp, qpc)

	rows, err := v.ws.DB().QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("orphan check %s.%s failed: %w", child, childCol, err)
	}
	defer rows.Close()

	var (
		total    int
		examples []string
	)
	for rows.Next() {
		var (
			value sql.NullString
			cnt   int
		)
		if err := rows.Scan(&value, &cnt); err != nil {
			return err
		}
		total += cnt
		if len(examples) < maxExamples {
			examples = append(examples, fmt.Sprintf("%s=%s (%d rows)", childCol, nullStr(value), cnt))
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if total == 0 {
		return nil
	}

	report.Add(&Issue{
		Kind:     kind,
		Severity: SeverityError,
		Count:    total,
		Examples: examples,
		Message:  message,
	})
	return nil
}

// ---- field checks (8-10) ----

func (v *Validator) checkNullRequiredFields(ctx context.Context, report *Report) error {
	for _, t := range schema.Tables() {
		for _, column := range t.Required {
			has, err := v.ws.HasColumn(ctx, t.Name, column)
			if err != nil {
				return err
			}
			if !has {
				continue
			}

			var count int
			err = v.ws.DB().QueryRowContext(ctx, fmt.Sprintf(
				"SELECT COUNT(*) FROM %s WHERE %s IS NULL",
				workspace.QuoteIdent(t.Name), workspace.QuoteIdent(column))).Scan(&count)
			if err != nil {
				return fmt.Errorf("null check %s.%s failed: %w", t.Name, column, err)
			}
			if count == 0 {
				continue
			}

			report.Add(&Issue{
				Kind:     NullKind(t.Name, column),
				Severity: SeverityError,
				Count:    count,
				Message:  fmt.Sprintf("%s.%s cannot be NULL", t.Name, column),
				Table:    t.Name,
				Column:   column,
			})
		}
	}
	return nil
}

// Credit hours outside [0, 30] are flagged per distinct (student, term,
// value) combination, matching how the cleaner clamps them.
func (v *Validator) checkCreditHourDomain(ctx context.Context, report *Report) error {
	has, err := v.ws.HasColumn(ctx, schema.TableEnrollments, "CREDIT_HOURS")
	if err != nil {
		return err
	}
	if !has {
		return nil
	}

	query := fmt.Sprintf(
		`SELECT EMPLID, STRM, CREDIT_HOURS, COUNT(*) AS cnt
		 FROM %s
		 WHERE CREDIT_HOURS < %d OR CREDIT_HOURS > %d
		 GROUP BY EMPLID, STRM, CREDIT_HOURS
		 ORDER BY EMPLID, STRM, CREDIT_HOURS`,
		workspace.QuoteIdent(schema.TableEnrollments), CreditHoursMin, CreditHoursMax)

	rows, err := v.ws.DB().QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("credit hour check failed: %w", err)
	}
	defer rows.Close()

	var (
		groups   int
		examples []string
	)
	for rows.Next() {
		var (
			emplid, strm, credits sql.NullString
			cnt                   int
		)
		if err := rows.Scan(&emplid, &strm, &credits, &cnt); err != nil {
			return err
		}
		groups++
		if len(examples) < maxExamples {
			examples = append(examples, fmt.Sprintf("EMPLID=%s, STRM=%s, CREDIT_HOURS=%s (%d rows)",
				nullStr(emplid), nullStr(strm), nullStr(credits), cnt))
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if groups == 0 {
		return nil
	}

	report.Add(&Issue{
		Kind:     KindInvalidCreditHours,
		Severity: SeverityError,
		Count:    groups,
		Examples: examples,
		Message: fmt.Sprintf("credit hours should be between %d and %d",
			CreditHoursMin, CreditHoursMax),
	})
	return nil
}

func (v *Validator) checkEmptyStudentNames(ctx context.Context, report *Report) error {
	has, err := v.ws.HasColumn(ctx, schema.TableStudent, "LAST_NAME")
	if err != nil {
		return err
	}
	if !has {
		return nil
	}

	qt := workspace.QuoteIdent(schema.TableStudent)

	var count int
	err = v.ws.DB().QueryRowContext(ctx, fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE LAST_NAME IS NULL OR TRIM(LAST_NAME) = ''", qt)).Scan(&count)
	if err != nil {
		return fmt.Errorf("empty name check failed: %w", err)
	}
	if count == 0 {
		return nil
	}

	examples, err := v.scanIDExamples(ctx, fmt.Sprintf(
		`SELECT EMPLID FROM %s WHERE LAST_NAME IS NULL OR TRIM(LAST_NAME) = ''
		 ORDER BY EMPLID LIMIT %d`, qt, maxExamples))
	if err != nil {
		return err
	}

	report.Add(&Issue{
		Kind:     KindEmptyStudentNames,
		Severity: SeverityError,
		Count:    count,
		Examples: examples,
		Message:  "student last name cannot be empty",
	})
	return nil
}

// ---- coverage check (11, warning only) ----

func (v *Validator) checkStudentsWithoutEnrollments(ctx context.Context, report *Report) error {
	query := fmt.Sprintf(
		`SELECT COUNT(*) FROM %[1]s s
		 WHERE NOT EXISTS (SELECT 1 FROM %[2]s e WHERE e.EMPLID = s.EMPLID)`,
		workspace.QuoteIdent(schema.TableStudent), workspace.QuoteIdent(schema.TableEnrollments))

	var count int
	if err := v.ws.DB().QueryRowContext(ctx, query).Scan(&count); err != nil {
		return fmt.Errorf("enrollment coverage check failed: %w", err)
	}
	if count == 0 {
		return nil
	}

	examples, err := v.scanIDExamples(ctx, fmt.Sprintf(
		`SELECT s.EMPLID FROM %[1]s s
		 WHERE NOT EXISTS (SELECT 1 FROM %[2]s e WHERE e.EMPLID = s.EMPLID)
		 ORDER BY s.EMPLID LIMIT %[3]d`,
		workspace.QuoteIdent(schema.TableStudent),
		workspace.QuoteIdent(schema.TableEnrollments), maxExamples))
	if err != nil {
		return err
	}

	report.Add(&Issue{
		Kind:     KindStudentsNoEnrollment,
		Severity: SeverityWarning,
		Count:    count,
		Examples: examples,
		Message:  "students with no enrollment records (may be valid for new admits)",
	})
	return nil
}

func (v *Validator) scanIDExamples(ctx context.Context, query string) ([]string, error) {
	rows, err := v.ws.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id sql.NullString
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, fmt.Sprintf("EMPLID=%s", nullStr(id)))
	}
	return out, rows.Err()
}

func nullStr(v sql.NullString) string {
	if !v.Valid {
		return "NULL"
	}
	return v.String
}
