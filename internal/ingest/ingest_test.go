package ingest

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"registrar/internal/schema"
	"registrar/internal/workspace"
)

func newTestProvider(t *testing.T) (*Provider, *workspace.Workspace) {
	t.Helper()
	ws, err := workspace.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open workspace: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return NewProvider(ws, zap.NewNop()), ws
}

// writeSnapshot builds a SQLite snapshot file with student and acad_prog
// tables, mimicking the upstream extract.
func writeSnapshot(t *testing.T, dir string, stmts []string) string {
	t.Helper()
	path := filepath.Join(dir, "student_info.sqlite3")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("Failed to open snapshot db: %v", err)
	}
	defer db.Close()
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to execute %q: %v", stmt, err)
		}
	}
	return path
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func defaultSnapshotStmts() []string {
	return []string{
		"CREATE TABLE student (emplid INTEGER, last_name TEXT)",
		`INSERT INTO student VALUES (1, ' Anderson '), (2, 'Brown')`,
		"CREATE TABLE acad_prog (emplid INTEGER, acad_prog TEXT, effdt TEXT)",
		`INSERT INTO acad_prog VALUES (1, 'UGRD', '2024-01-01'), (2, 'GRAD', '2024-06-01')`,
	}
}

func TestCheckInputs(t *testing.T) {
	dir := t.TempDir()
	snap := writeFile(t, dir, "snap.sqlite3", "")
	enr := writeFile(t, dir, "enr.dat", "")
	dept := writeFile(t, dir, "dept.json", "[]")

	if err := CheckInputs(Inputs{Snapshot: snap, Enrollments: enr, Departments: dept}); err != nil {
		t.Errorf("All inputs present, got error: %v", err)
	}

	err := CheckInputs(Inputs{
		Snapshot:    snap,
		Enrollments: filepath.Join(dir, "missing.dat"),
		Departments: dept,
	})
	if err == nil {
		t.Error("Expected error for missing enrollment file")
	}
}

func TestLoadSnapshot(t *testing.T) {
	p, ws := newTestProvider(t)
	ctx := context.Background()
	path := writeSnapshot(t, t.TempDir(), defaultSnapshotStmts())

	if err := p.LoadSnapshot(ctx, path); err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}

	for _, table := range []string{schema.TableStudent, schema.TableAcadProg} {
		exists, err := ws.TableExists(ctx, table)
		if err != nil {
			t.Fatalf("TableExists failed: %v", err)
		}
		if !exists {
			t.Errorf("Table %s not loaded", table)
		}
	}

	cols, err := ws.TableColumns(ctx, schema.TableStudent)
	if err != nil {
		t.Fatalf("TableColumns failed: %v", err)
	}
	if cols[0].Name != "EMPLID" || cols[1].Name != "LAST_NAME" {
		t.Errorf("Column names not uppercased: %+v", cols)
	}

	// Text values arrive trimmed.
	var lastName string
	err = ws.DB().QueryRow("SELECT LAST_NAME FROM student WHERE EMPLID = 1").Scan(&lastName)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if lastName != "Anderson" {
		t.Errorf("LAST_NAME = %q, want trimmed %q", lastName, "Anderson")
	}
}

func TestLoadSnapshotEmpty(t *testing.T) {
	p, _ := newTestProvider(t)
	path := writeSnapshot(t, t.TempDir(), nil)

	if err := p.LoadSnapshot(context.Background(), path); err == nil {
		t.Error("Expected error for snapshot with no tables")
	}
}

func TestLoadEnrollments(t *testing.T) {
	p, ws := newTestProvider(t)
	ctx := context.Background()

	path := writeFile(t, t.TempDir(), "enrollments.dat",
		"emplid|strm|course_id|class_nbr|department|credit_hours\n"+
			"1|2244|PHYS101|1001|PHYS| 13 \n"+
			"2|2244|MATH200|1002|MATH|abc\n")

	if err := p.LoadEnrollments(ctx, path); err != nil {
		t.Fatalf("LoadEnrollments failed: %v", err)
	}

	n, err := ws.RowCount(ctx, schema.TableEnrollments)
	if err != nil {
		t.Fatalf("RowCount failed: %v", err)
	}
	if n != 2 {
		t.Errorf("RowCount = %d, want 2", n)
	}

	// CREDIT_HOURS is coerced: whitespace around a valid integer is
	// trimmed, an unparsable value becomes 0.
	var credits int
	if err := ws.DB().QueryRow(
		"SELECT CREDIT_HOURS FROM enrollments WHERE EMPLID = 1").Scan(&credits); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if credits != 13 {
		t.Errorf("CREDIT_HOURS = %d, want 13", credits)
	}
	if err := ws.DB().QueryRow(
		"SELECT CREDIT_HOURS FROM enrollments WHERE EMPLID = 2").Scan(&credits); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if credits != 0 {
		t.Errorf("Unparsable CREDIT_HOURS = %d, want 0", credits)
	}

	// EMPLID carries integer affinity so joins compare numerically.
	cols, err := ws.TableColumns(ctx, schema.TableEnrollments)
	if err != nil {
		t.Fatalf("TableColumns failed: %v", err)
	}
	for _, col := range cols {
		if col.Name == "EMPLID" && col.Type != "INTEGER" {
			t.Errorf("EMPLID type = %s, want INTEGER", col.Type)
		}
	}
}

func TestLoadEnrollmentsShortRecord(t *testing.T) {
	p, ws := newTestProvider(t)
	ctx := context.Background()

	// A record with fewer fields than the header pads with NULLs.
	path := writeFile(t, t.TempDir(), "enrollments.dat",
		"emplid|strm|department|credit_hours\n"+
			"1|2244\n")

	if err := p.LoadEnrollments(ctx, path); err != nil {
		t.Fatalf("LoadEnrollments failed: %v", err)
	}
	var dept sql.NullString
	if err := ws.DB().QueryRow(
		"SELECT DEPARTMENT FROM enrollments WHERE EMPLID = 1").Scan(&dept); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if dept.Valid {
		t.Errorf("DEPARTMENT = %q, want NULL", dept.String)
	}
}

func TestLoadEnrollmentsEmptyFieldsAreNull(t *testing.T) {
	p, ws := newTestProvider(t)
	ctx := context.Background()

	// Empty and whitespace-only fields must land as NULL, not '', so the
	// required-field checks can flag them.
	path := writeFile(t, t.TempDir(), "enrollments.dat",
		"emplid|strm|course_id|class_nbr|department|credit_hours\n"+
			"1||PHYS101|1001|PHYS|4\n"+
			"2|  |PHYS102|1002|PHYS|3\n")

	if err := p.LoadEnrollments(ctx, path); err != nil {
		t.Fatalf("LoadEnrollments failed: %v", err)
	}

	var nulls int
	if err := ws.DB().QueryRow(
		"SELECT COUNT(*) FROM enrollments WHERE STRM IS NULL").Scan(&nulls); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if nulls != 2 {
		t.Errorf("NULL STRM rows = %d, want 2", nulls)
	}
}

func TestLoadDepartments(t *testing.T) {
	p, ws := newTestProvider(t)
	ctx := context.Background()

	path := writeFile(t, t.TempDir(), "departments.json", `[
		{"dept_code": "PHYS", "dept_name": " Physics ", "contact_person": "Dr. James Wilson"},
		{"contact_person": null, "dept_code": "MATH", "dept_name": "Mathematics", "building": "North Hall"}
	]`)

	if err := p.LoadDepartments(ctx, path); err != nil {
		t.Fatalf("LoadDepartments failed: %v", err)
	}

	cols, err := ws.TableColumns(ctx, schema.TableDepartments)
	if err != nil {
		t.Fatalf("TableColumns failed: %v", err)
	}
	var names []string
	for _, c := range cols {
		names = append(names, c.Name)
	}
	// Known columns first, extras alphabetical after.
	want := []string{"DEPT_CODE", "DEPT_NAME", "CONTACT_PERSON", "BUILDING"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Columns = %v, want %v", names, want)
	}

	var deptName string
	if err := ws.DB().QueryRow(
		"SELECT DEPT_NAME FROM departments WHERE DEPT_CODE = 'PHYS'").Scan(&deptName); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if deptName != "Physics" {
		t.Errorf("DEPT_NAME = %q, want trimmed %q", deptName, "Physics")
	}

	// JSON null and absent keys land as SQL NULL.
	var contact sql.NullString
	if err := ws.DB().QueryRow(
		"SELECT CONTACT_PERSON FROM departments WHERE DEPT_CODE = 'MATH'").Scan(&contact); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if contact.Valid {
		t.Errorf("CONTACT_PERSON = %q, want NULL", contact.String)
	}
	var building sql.NullString
	if err := ws.DB().QueryRow(
		"SELECT BUILDING FROM departments WHERE DEPT_CODE = 'PHYS'").Scan(&building); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if building.Valid {
		t.Errorf("BUILDING = %q, want NULL for absent key", building.String)
	}
}

func TestLoadDepartmentsEmpty(t *testing.T) {
	p, _ := newTestProvider(t)
	path := writeFile(t, t.TempDir(), "departments.json", "[]")

	if err := p.LoadDepartments(context.Background(), path); err == nil {
		t.Error("Expected error for empty department roster")
	}
}

func TestDepartmentValue(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want interface{}
	}{
		{"nil", nil, nil},
		{"string trimmed", "  Physics ", "Physics"},
		{"integral float", float64(42), "42"},
		{"fractional float", 1.5, "1.5"},
		{"bool", true, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := departmentValue(tt.in); got != tt.want {
				t.Errorf("departmentValue(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoadAllReplacesPreviousRun(t *testing.T) {
	p, ws := newTestProvider(t)
	ctx := context.Background()
	dir := t.TempDir()

	inputs := Inputs{
		Snapshot: writeSnapshot(t, dir, defaultSnapshotStmts()),
		Enrollments: writeFile(t, dir, "enrollments.dat",
			"emplid|strm|department|credit_hours\n1|2244|PHYS|13\n"),
		Departments: writeFile(t, dir, "departments.json",
			`[{"dept_code": "PHYS", "dept_name": "Physics"}]`),
	}

	if err := p.LoadAll(ctx, inputs); err != nil {
		t.Fatalf("First LoadAll failed: %v", err)
	}
	// A second load must replace, not append.
	if err := p.LoadAll(ctx, inputs); err != nil {
		t.Fatalf("Second LoadAll failed: %v", err)
	}

	for table, want := range map[string]int64{
		schema.TableStudent:     2,
		schema.TableAcadProg:    2,
		schema.TableEnrollments: 1,
		schema.TableDepartments: 1,
	} {
		n, err := ws.RowCount(ctx, table)
		if err != nil {
			t.Fatalf("RowCount(%s) failed: %v", table, err)
		}
		if n != want {
			t.Errorf("RowCount(%s) = %d, want %d", table, n, want)
		}
	}
}
