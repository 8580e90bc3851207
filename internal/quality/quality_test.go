package quality

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"registrar/internal/workspace"
)

// newTestWorkspace opens an in-memory workspace with the four pipeline
// tables created the way ingest shapes them, but no rows.
func newTestWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open workspace: %v", err)
	}
	t.Cleanup(func() { ws.Close() })

	stmts := []string{
		"CREATE TABLE student (EMPLID INTEGER, LAST_NAME TEXT)",
		"CREATE TABLE departments (DEPT_CODE TEXT, DEPT_NAME TEXT, CONTACT_PERSON TEXT)",
		"CREATE TABLE acad_prog (EMPLID INTEGER, ACAD_PROG TEXT, EFFDT TEXT)",
		`CREATE TABLE enrollments (
			EMPLID INTEGER, STRM TEXT, COURSE_ID TEXT, CLASS_NBR INTEGER,
			DEPARTMENT TEXT, CREDIT_HOURS INTEGER)`,
	}
	for _, stmt := range stmts {
		if _, err := ws.DB().Exec(stmt); err != nil {
			t.Fatalf("Failed to execute %q: %v", stmt, err)
		}
	}
	return ws
}

func mustExec(t *testing.T, ws *workspace.Workspace, query string, args ...interface{}) {
	t.Helper()
	if _, err := ws.DB().Exec(query, args...); err != nil {
		t.Fatalf("Failed to execute %q: %v", query, err)
	}
}

// cleanDataset seeds a small dataset that passes every check.
func cleanDataset(t *testing.T, ws *workspace.Workspace) {
	t.Helper()
	mustExec(t, ws, "INSERT INTO student VALUES (1, 'Anderson'), (2, 'Brown')")
	mustExec(t, ws, "INSERT INTO departments VALUES ('PHYS', 'Physics', 'Dr. James Wilson')")
	mustExec(t, ws, "INSERT INTO acad_prog VALUES (1, 'UGRD', '2024-01-01')")
	mustExec(t, ws,
		"INSERT INTO enrollments VALUES (1, '2244', 'PHYS101', 1001, 'PHYS', 13), (2, '2244', 'PHYS102', 1002, 'PHYS', 3)")
}

func validate(t *testing.T, ws *workspace.Workspace) *Report {
	t.Helper()
	report, err := NewValidator(ws, zap.NewNop()).Validate(context.Background())
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	return report
}

func countRows(t *testing.T, ws *workspace.Workspace, table string) int64 {
	t.Helper()
	n, err := ws.RowCount(context.Background(), table)
	if err != nil {
		t.Fatalf("RowCount(%s) failed: %v", table, err)
	}
	return n
}
