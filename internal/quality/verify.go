package quality

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"registrar/internal/schema"
	"registrar/internal/workspace"
)

// VerifyCheck is one assertion over the persisted workspace schema or data.
type VerifyCheck struct {
	Name   string
	OK     bool
	Detail string
}

// VerifyReport collects the constraint verification results.
type VerifyReport struct {
	Checks []VerifyCheck
}

// OK reports whether every check passed.
func (r *VerifyReport) OK() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

func (r *VerifyReport) add(name string, ok bool, format string, args ...interface{}) {
	r.Checks = append(r.Checks, VerifyCheck{
		Name:   name,
		OK:     ok,
		Detail: fmt.Sprintf(format, args...),
	})
}

// Verifier asserts key uniqueness and referential integrity directly against
// the stored workspace schema, independently of the pipeline that built it.
// It is the external inspection tool over the persisted tables.
type Verifier struct {
	ws  *workspace.Workspace
	log *zap.Logger
}

// NewVerifier creates a verifier over the given workspace.
func NewVerifier(ws *workspace.Workspace, log *zap.Logger) *Verifier {
	return &Verifier{ws: ws, log: log}
}

// Verify runs all constraint assertions and returns the report.
func (v *Verifier) Verify(ctx context.Context) (*VerifyReport, error) {
	report := &VerifyReport{}

	missing := make(map[string]bool)
	for _, desc := range schema.Tables() {
		exists, err := v.ws.TableExists(ctx, desc.Name)
		if err != nil {
			return nil, err
		}
		if !exists {
			missing[desc.Name] = true
			report.add("table:"+desc.Name, false, "table missing from workspace")
			continue
		}

		if err := v.verifyPrimaryKey(ctx, report, desc); err != nil {
			return nil, err
		}
		if err := v.verifyNoDuplicateKeys(ctx, report, desc); err != nil {
			return nil, err
		}
	}

	refs := []struct {
		child, childCol, parent, parentCol string
	}{
		{schema.TableAcadProg, "EMPLID", schema.TableStudent, "EMPLID"},
		{schema.TableEnrollments, "EMPLID", schema.TableStudent, "EMPLID"},
		{schema.TableEnrollments, "DEPARTMENT", schema.TableDepartments, "DEPT_CODE"},
	}
	for _, ref := range refs {
		if missing[ref.child] || missing[ref.parent] {
			continue
		}
		if err := v.verifyReference(ctx, report, ref.child, ref.childCol, ref.parent, ref.parentCol); err != nil {
			return nil, err
		}
	}

	if !missing[schema.TableEnrollments] {
		if err := v.verifyCreditDomain(ctx, report); err != nil {
			return nil, err
		}
	}

	for _, check := range report.Checks {
		if check.OK {
			v.log.Info("constraint verified", zap.String("check", check.Name))
		} else {
			v.log.Warn("constraint violated",
				zap.String("check", check.Name), zap.String("detail", check.Detail))
		}
	}
	return report, nil
}

// verifyPrimaryKey asserts the stored table declares the expected key.
func (v *Verifier) verifyPrimaryKey(ctx context.Context, report *VerifyReport, desc schema.Table) error {
	cols, err := v.ws.TableColumns(ctx, desc.Name)
	if err != nil {
		return err
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	want := desc.Key(names)

	got, err := v.ws.PrimaryKey(ctx, desc.Name)
	if err != nil {
		return err
	}

	name := "pk:" + desc.Name
	if len(got) == 0 {
		report.add(name, false, "no primary key declared (want %s)", strings.Join(want, ", "))
		return nil
	}
	if !equalFold(got, want) {
		report.add(name, false, "primary key is (%s), want (%s)",
			strings.Join(got, ", "), strings.Join(want, ", "))
		return nil
	}
	report.add(name, true, "PRIMARY KEY (%s)", strings.Join(got, ", "))
	return nil
}

// verifyNoDuplicateKeys asserts data-level uniqueness of the natural key.
func (v *Verifier) verifyNoDuplicateKeys(ctx context.Context, report *VerifyReport, desc schema.Table) error {
	cols, err := v.ws.TableColumns(ctx, desc.Name)
	if err != nil {
		return err
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	key := desc.Key(names)
	quoted := make([]string, len(key))
	for i, k := range key {
		quoted[i] = workspace.QuoteIdent(k)
	}

	var groups int
	err = v.ws.DB().QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM (
			SELECT 1 FROM %s GROUP BY %s HAVING COUNT(*) > 1
		)`, workspace.QuoteIdent(desc.Name), strings.Join(quoted, ", "))).Scan(&groups)
	if err != nil {
		return fmt.Errorf("duplicate key verification on %s failed: %w", desc.Name, err)
	}

	report.add("unique:"+desc.Name, groups == 0, "%d duplicate key group(s)", groups)
	return nil
}

// verifyReference asserts zero dangling references for one foreign key.
func (v *Verifier) verifyReference(ctx context.Context, report *VerifyReport, child, childCol, parent, parentCol string) error {
	has, err := v.ws.HasColumn(ctx, child, childCol)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("fk:%s.%s->%s.%s", child, childCol, parent, parentCol)
	if !has {
		report.add(name, true, "column absent, nothing to verify")
		return nil
	}

	var orphans int
	err = v.ws.DB().QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM %[1]s c
		 WHERE NOT EXISTS (SELECT 1 FROM %[3]s p WHERE p.%[4]s = c.%[2]s)`,
		workspace.QuoteIdent(child), workspace.QuoteIdent(childCol),
		workspace.QuoteIdent(parent), workspace.QuoteIdent(parentCol))).Scan(&orphans)
	if err != nil {
		return fmt.Errorf("reference verification %s failed: %w", name, err)
	}

	report.add(name, orphans == 0, "%d dangling reference(s)", orphans)
	return nil
}

// VerifyReportRows checks a written report against the workspace: the file
// must hold exactly one data row per distinct (student, term) with at least
// one enrollment. A missing report file is recorded as skipped, not failed.
func (v *Verifier) VerifyReportRows(ctx context.Context, report *VerifyReport, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			report.add("report:rows", true, "no report file at %s, nothing to verify", path)
			return nil
		}
		return fmt.Errorf("failed to open report %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	rows := len(records)
	if rows > 0 {
		rows-- // header
	}

	var want int
	err = v.ws.DB().QueryRowContext(ctx, fmt.Sprintf(
		"SELECT COUNT(*) FROM (SELECT DISTINCT EMPLID, STRM FROM %s)",
		workspace.QuoteIdent(schema.TableEnrollments))).Scan(&want)
	if err != nil {
		return fmt.Errorf("report coverage verification failed: %w", err)
	}

	report.add("report:rows", rows == want,
		"%d report row(s), %d distinct student-term pair(s)", rows, want)
	return nil
}

// verifyCreditDomain asserts every enrollment credit value is in range.
func (v *Verifier) verifyCreditDomain(ctx context.Context, report *VerifyReport) error {
	has, err := v.ws.HasColumn(ctx, schema.TableEnrollments, "CREDIT_HOURS")
	if err != nil {
		return err
	}
	if !has {
		report.add("domain:credit_hours", true, "column absent, nothing to verify")
		return nil
	}

	var bad int
	err = v.ws.DB().QueryRowContext(ctx, fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE CREDIT_HOURS < %d OR CREDIT_HOURS > %d",
		workspace.QuoteIdent(schema.TableEnrollments), CreditHoursMin, CreditHoursMax)).Scan(&bad)
	if err != nil {
		return fmt.Errorf("credit domain verification failed: %w", err)
	}

	report.add("domain:credit_hours", bad == 0, "%d row(s) outside [%d, %d]",
		bad, CreditHoursMin, CreditHoursMax)
	return nil
}

func equalFold(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
