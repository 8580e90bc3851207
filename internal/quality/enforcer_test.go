package quality

import (
	"context"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"registrar/internal/report"
)

func TestEnforceDeclaresKeys(t *testing.T) {
	ws := newTestWorkspace(t)
	cleanDataset(t, ws)
	ctx := context.Background()

	if err := NewEnforcer(ws, zap.NewNop()).Enforce(ctx); err != nil {
		t.Fatalf("Enforce failed: %v", err)
	}

	tests := []struct {
		table string
		want  []string
	}{
		{"student", []string{"EMPLID"}},
		{"departments", []string{"DEPT_CODE"}},
		{"acad_prog", []string{"EMPLID", "ACAD_PROG", "EFFDT"}},
		{"enrollments", []string{"EMPLID", "STRM", "COURSE_ID", "CLASS_NBR"}},
	}
	for _, tt := range tests {
		key, err := ws.PrimaryKey(ctx, tt.table)
		if err != nil {
			t.Fatalf("PrimaryKey(%s) failed: %v", tt.table, err)
		}
		if !reflect.DeepEqual(key, tt.want) {
			t.Errorf("%s primary key = %v, want %v", tt.table, key, tt.want)
		}
	}
}

func TestEnforcePreservesRows(t *testing.T) {
	ws := newTestWorkspace(t)
	cleanDataset(t, ws)
	ctx := context.Background()

	before := make(map[string]int64)
	for _, table := range []string{"student", "departments", "acad_prog", "enrollments"} {
		before[table] = countRows(t, ws, table)
	}

	if err := NewEnforcer(ws, zap.NewNop()).Enforce(ctx); err != nil {
		t.Fatalf("Enforce failed: %v", err)
	}

	for table, want := range before {
		if got := countRows(t, ws, table); got != want {
			t.Errorf("%s rows = %d, want %d after rebuild", table, got, want)
		}
	}

	var lastName string
	if err := ws.DB().QueryRow(
		"SELECT LAST_NAME FROM student WHERE EMPLID = 1").Scan(&lastName); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if lastName != "Anderson" {
		t.Errorf("LAST_NAME = %q, want Anderson", lastName)
	}
}

func TestEnforcedKeysRejectBadWrites(t *testing.T) {
	ws := newTestWorkspace(t)
	cleanDataset(t, ws)
	ctx := context.Background()

	if err := NewEnforcer(ws, zap.NewNop()).Enforce(ctx); err != nil {
		t.Fatalf("Enforce failed: %v", err)
	}

	// Primary key violation.
	if _, err := ws.DB().Exec("INSERT INTO student VALUES (1, 'Clone')"); err == nil {
		t.Error("Duplicate EMPLID insert should fail after enforcement")
	}
	// Foreign key violation.
	if _, err := ws.DB().Exec(
		"INSERT INTO enrollments VALUES (42, '2244', 'X1', 7, 'PHYS', 3)"); err == nil {
		t.Error("Enrollment for unknown student should fail after enforcement")
	}
	if _, err := ws.DB().Exec(
		"INSERT INTO enrollments VALUES (1, '2245', 'X1', 7, 'NOPE', 3)"); err == nil {
		t.Error("Enrollment for unknown department should fail after enforcement")
	}
	// A valid insert still works.
	if _, err := ws.DB().Exec(
		"INSERT INTO enrollments VALUES (1, '2245', 'X1', 7, 'PHYS', 3)"); err != nil {
		t.Errorf("Valid insert rejected: %v", err)
	}
}

func TestEnforceFailsOnDirtyData(t *testing.T) {
	ws := newTestWorkspace(t)
	cleanDataset(t, ws)
	mustExec(t, ws, "INSERT INTO student VALUES (1, 'Clone')")

	if err := NewEnforcer(ws, zap.NewNop()).Enforce(context.Background()); err == nil {
		t.Error("Enforce should fail when the natural key is not unique")
	}
}

func TestEnforceReusedWorkspaceWithViews(t *testing.T) {
	ws := newTestWorkspace(t)
	cleanDataset(t, ws)
	ctx := context.Background()
	enforcer := NewEnforcer(ws, zap.NewNop())

	// First run: enforce, then aggregate, which leaves the report views
	// behind in the workspace file.
	if err := enforcer.Reset(ctx); err != nil {
		t.Fatalf("First Reset failed: %v", err)
	}
	if err := enforcer.Enforce(ctx); err != nil {
		t.Fatalf("First Enforce failed: %v", err)
	}
	if _, err := report.NewAggregator(ws, zap.NewNop()).Rows(ctx); err != nil {
		t.Fatalf("Aggregation failed: %v", err)
	}

	// Second run over the same workspace: the stale views still reference
	// the tables about to be dropped, so Reset must clear them or the
	// rename step of the rebuild fails.
	if err := enforcer.Reset(ctx); err != nil {
		t.Fatalf("Second Reset failed: %v", err)
	}
	if err := enforcer.Enforce(ctx); err != nil {
		t.Fatalf("Rebuild over a reused workspace failed: %v", err)
	}

	var views int
	if err := ws.DB().QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'view'").Scan(&views); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if views != 0 {
		t.Errorf("Views remaining after Reset = %d, want 0", views)
	}

	// Aggregation recreates the views and still answers.
	rows, err := report.NewAggregator(ws, zap.NewNop()).Rows(ctx)
	if err != nil {
		t.Fatalf("Aggregation after rebuild failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("Got %d report rows, want 2", len(rows))
	}
}

func TestResetDropsStaleRebuildTables(t *testing.T) {
	ws := newTestWorkspace(t)
	cleanDataset(t, ws)
	ctx := context.Background()

	// Simulate an interrupted earlier rebuild.
	mustExec(t, ws, "CREATE TABLE student_new (X INTEGER)")

	enforcer := NewEnforcer(ws, zap.NewNop())
	if err := enforcer.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	exists, err := ws.TableExists(ctx, "student_new")
	if err != nil {
		t.Fatalf("TableExists failed: %v", err)
	}
	if exists {
		t.Error("Stale rebuild table should be gone after Reset")
	}

	if err := enforcer.Enforce(ctx); err != nil {
		t.Fatalf("Enforce after Reset failed: %v", err)
	}
}
