// Package report computes the credit attribution report from the enforced
// workspace tables and serializes it. The computation is a pure function of
// the tables: three windowed aggregation stages expressed as SQL views, then
// a final join that attaches student names and the rank-1 department.
package report

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"registrar/internal/workspace"
)

// Row is one line of the attribution report: the credit total for a
// (student, term) pair and the department the student was most associated
// with that term. Department fields are empty when no department row
// matched.
type Row struct {
	StudentID    int64
	LastName     string
	Term         string
	TotalCredits int64
	DeptName     string
	DeptContact  string
}

// Aggregator builds the report views and materializes report rows.
type Aggregator struct {
	ws  *workspace.Workspace
	log *zap.Logger
}

// NewAggregator creates an aggregator over the given workspace.
func NewAggregator(ws *workspace.Workspace, log *zap.Logger) *Aggregator {
	return &Aggregator{ws: ws, log: log}
}

// viewDefs are the three aggregation stages, in dependency order:
//
//  1. total_credits: credit sum per (student, term)
//  2. credits_by_dept: credit sum per (student, term, department)
//  3. ranked_depts: departments ranked within each (student, term) by
//     credits descending, tie-broken by display name ascending; the final
//     dept_code key makes the ordering total even when two departments
//     share credits and display name.
//
// Display name is DEPT_NAME when present, else the department code.
var viewDefs = []struct {
	name string
	sql  string
}{
	{"total_credits", `
		CREATE VIEW total_credits AS
		SELECT EMPLID AS student_id, STRM AS term,
		       SUM(CAST(CREDIT_HOURS AS INTEGER)) AS total_credits
		FROM enrollments
		GROUP BY EMPLID, STRM`},
	{"credits_by_dept", `
		CREATE VIEW credits_by_dept AS
		SELECT EMPLID AS student_id, STRM AS term, DEPARTMENT AS dept_code,
		       SUM(CAST(CREDIT_HOURS AS INTEGER)) AS dept_credits
		FROM enrollments
		GROUP BY EMPLID, STRM, DEPARTMENT`},
	{"ranked_depts", `
		CREATE VIEW ranked_depts AS
		SELECT
		  c.student_id,
		  c.term,
		  c.dept_code,
		  COALESCE(d.DEPT_NAME, c.dept_code) AS dept_name,
		  d.CONTACT_PERSON AS dept_contact,
		  ROW_NUMBER() OVER (
		    PARTITION BY c.student_id, c.term
		    ORDER BY c.dept_credits DESC,
		             COALESCE(d.DEPT_NAME, c.dept_code) ASC,
		             c.dept_code ASC
		  ) AS rn
		FROM credits_by_dept c
		LEFT JOIN departments d ON c.dept_code = d.DEPT_CODE`},
}

const finalSelect = `
	SELECT
	  t.student_id,
	  s.LAST_NAME,
	  t.term,
	  t.total_credits,
	  rd.dept_name,
	  rd.dept_contact
	FROM total_credits t
	LEFT JOIN ranked_depts rd
	  ON t.student_id = rd.student_id AND t.term = rd.term AND rd.rn = 1
	LEFT JOIN student s ON t.student_id = s.EMPLID
	ORDER BY t.student_id, t.term`

// BuildViews (re)creates the three aggregation views.
func (a *Aggregator) BuildViews(ctx context.Context) error {
	db := a.ws.DB()
	for _, view := range viewDefs {
		if _, err := db.ExecContext(ctx, "DROP VIEW IF EXISTS "+view.name); err != nil {
			return fmt.Errorf("failed to drop view %s: %w", view.name, err)
		}
		if _, err := db.ExecContext(ctx, view.sql); err != nil {
			return fmt.Errorf("failed to create view %s: %w", view.name, err)
		}
	}
	return nil
}

// Rows computes the report, ordered by (student_id, term). Every
// (student, term) pair with at least one enrollment yields exactly one row.
func (a *Aggregator) Rows(ctx context.Context) ([]Row, error) {
	if err := a.BuildViews(ctx); err != nil {
		return nil, err
	}

	rows, err := a.ws.DB().QueryContext(ctx, finalSelect)
	if err != nil {
		return nil, fmt.Errorf("report query failed: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			row      Row
			lastName sql.NullString
			deptName sql.NullString
			contact  sql.NullString
		)
		if err := rows.Scan(&row.StudentID, &lastName, &row.Term,
			&row.TotalCredits, &deptName, &contact); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		row.LastName = lastName.String
		row.DeptName = deptName.String
		row.DeptContact = contact.String
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	a.log.Info("report computed", zap.Int("rows", len(out)))
	return out, nil
}
