// Package schema declares the logical schema of the four pipeline tables:
// which columns exist, which are required, what forms each natural key, and
// which columns reference other tables. The descriptors are declared once
// here; nothing re-derives key roles by inspecting data at run time. Columns
// marked optional may be absent from a given snapshot, so a descriptor is
// materialized against the columns actually present before use.
package schema

import "strings"

// Table names as they appear in the workspace.
const (
	TableStudent     = "student"
	TableAcadProg    = "acad_prog"
	TableDepartments = "departments"
	TableEnrollments = "enrollments"
)

// KeyColumn is one component of a primary key.
type KeyColumn struct {
	Name string
	// Optional key columns participate in the key only when the input
	// actually carries them (EFFDT, COURSE_ID, CLASS_NBR).
	Optional bool
}

// ForeignKey declares a reference to another table's column.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Table is the declared schema descriptor for one pipeline table.
type Table struct {
	Name string

	// PrimaryKey is the natural key, in key order.
	PrimaryKey []KeyColumn

	// Required columns must be non-null in every row.
	Required []string

	// ForeignKeys, in declaration order.
	ForeignKeys []ForeignKey
}

// Key returns the primary key restricted to the given present columns.
// Non-optional key columns are always included; optional ones only when
// present. Column name matching is case-insensitive.
func (t Table) Key(present []string) []string {
	set := make(map[string]bool, len(present))
	for _, c := range present {
		set[strings.ToUpper(c)] = true
	}

	var key []string
	for _, kc := range t.PrimaryKey {
		if kc.Optional && !set[strings.ToUpper(kc.Name)] {
			continue
		}
		key = append(key, kc.Name)
	}
	return key
}

// Tables returns the descriptors in constraint-enforcement order: referenced
// tables (student, departments) before the tables that reference them.
func Tables() []Table {
	return []Table{
		{
			Name:       TableStudent,
			PrimaryKey: []KeyColumn{{Name: "EMPLID"}},
			Required:   []string{"EMPLID", "LAST_NAME"},
		},
		{
			Name:       TableDepartments,
			PrimaryKey: []KeyColumn{{Name: "DEPT_CODE"}},
			Required:   []string{"DEPT_CODE"},
		},
		{
			Name: TableAcadProg,
			PrimaryKey: []KeyColumn{
				{Name: "EMPLID"},
				{Name: "ACAD_PROG"},
				{Name: "EFFDT", Optional: true},
			},
			ForeignKeys: []ForeignKey{
				{Column: "EMPLID", RefTable: TableStudent, RefColumn: "EMPLID"},
			},
		},
		{
			Name: TableEnrollments,
			PrimaryKey: []KeyColumn{
				{Name: "EMPLID"},
				{Name: "STRM"},
				{Name: "COURSE_ID", Optional: true},
				{Name: "CLASS_NBR", Optional: true},
			},
			Required: []string{"EMPLID", "STRM", "CREDIT_HOURS"},
			ForeignKeys: []ForeignKey{
				{Column: "EMPLID", RefTable: TableStudent, RefColumn: "EMPLID"},
				{Column: "DEPARTMENT", RefTable: TableDepartments, RefColumn: "DEPT_CODE"},
			},
		},
	}
}

// Lookup returns the descriptor for a table name, or false if unknown.
func Lookup(name string) (Table, bool) {
	for _, t := range Tables() {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}
