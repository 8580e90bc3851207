// Package quality implements the validation, cleaning, and constraint
// enforcement stages of the pipeline. The validator inspects the four
// workspace tables and reports structured issues without mutating anything;
// the cleaner applies one deterministic repair per issue kind; the enforcer
// rebuilds the tables under explicit primary and foreign keys once the data
// is clean.
package quality

import (
	"fmt"
	"strings"
)

// Severity of a data quality issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Kind identifies one class of data quality issue.
type Kind string

const (
	KindDuplicateStudents    Kind = "duplicate_students"
	KindDuplicateAcadProg    Kind = "duplicate_acad_prog"
	KindDuplicateDepartments Kind = "duplicate_departments"
	KindDuplicateEnrollments Kind = "duplicate_enrollments"
	KindOrphanedAcadProg     Kind = "orphaned_acad_prog"
	KindOrphanedEnrStudent   Kind = "orphaned_enrollments_student"
	KindOrphanedEnrDept      Kind = "orphaned_enrollments_dept"
	KindInvalidCreditHours   Kind = "invalid_credit_hours"
	KindEmptyStudentNames    Kind = "empty_student_names"
	KindStudentsNoEnrollment Kind = "students_no_enrollments"
)

// NullKind returns the issue kind for a null required field in (table, column).
func NullKind(table, column string) Kind {
	return Kind(strings.ToLower(fmt.Sprintf("null_%s_%s", table, column)))
}

// maxExamples caps the illustrative examples carried per issue.
const maxExamples = 5

// Issue is one diagnostic record produced by the validator. Issues are never
// persisted; they are consumed by the cleaner and by operator reporting.
type Issue struct {
	Kind     Kind
	Severity Severity
	Count    int
	Examples []string
	Message  string

	// Set for null-required-field issues so the cleaner can target the
	// offending (table, column) pair.
	Table  string
	Column string
}

// Report is an ordered collection of issues keyed by kind. Iteration order
// is insertion order, which the validator keeps fixed across runs.
type Report struct {
	order  []Kind
	issues map[Kind]*Issue
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{issues: make(map[Kind]*Issue)}
}

// Add records an issue, replacing any prior issue of the same kind.
func (r *Report) Add(issue *Issue) {
	if issue.Severity == "" {
		issue.Severity = SeverityError
	}
	if len(issue.Examples) > maxExamples {
		issue.Examples = issue.Examples[:maxExamples]
	}
	if _, ok := r.issues[issue.Kind]; !ok {
		r.order = append(r.order, issue.Kind)
	}
	r.issues[issue.Kind] = issue
}

// Get returns the issue of the given kind, or nil.
func (r *Report) Get(kind Kind) *Issue {
	return r.issues[kind]
}

// Has reports whether an issue of the given kind was recorded.
func (r *Report) Has(kind Kind) bool {
	return r.issues[kind] != nil
}

// Issues returns all issues in insertion order.
func (r *Report) Issues() []*Issue {
	out := make([]*Issue, 0, len(r.order))
	for _, kind := range r.order {
		out = append(out, r.issues[kind])
	}
	return out
}

// NullFieldIssues returns the null-required-field issues in insertion order.
func (r *Report) NullFieldIssues() []*Issue {
	var out []*Issue
	for _, issue := range r.Issues() {
		if issue.Table != "" && issue.Column != "" {
			out = append(out, issue)
		}
	}
	return out
}

// Len returns the number of recorded issues.
func (r *Report) Len() int {
	return len(r.order)
}

// Clean reports whether the data passed validation: warnings do not count.
func (r *Report) Clean() bool {
	for _, issue := range r.issues {
		if issue.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Summary renders a one-line-per-issue description for operator output.
func (r *Report) Summary() string {
	if r.Len() == 0 {
		return "all data quality checks passed"
	}
	var b strings.Builder
	for _, issue := range r.Issues() {
		fmt.Fprintf(&b, "[%s] %s: %d", issue.Severity, issue.Kind, issue.Count)
		if issue.Message != "" {
			fmt.Fprintf(&b, " (%s)", issue.Message)
		}
		if len(issue.Examples) > 0 {
			fmt.Fprintf(&b, " e.g. %s", strings.Join(issue.Examples, "; "))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// UncleanError is returned when error-severity issues survive cleaning.
// The pipeline treats it as terminal: no report is produced.
type UncleanError struct {
	Report *Report
	Passes int
}

func (e *UncleanError) Error() string {
	return fmt.Sprintf("data quality issues remain after %d cleaning pass(es):\n%s",
		e.Passes, e.Report.Summary())
}
