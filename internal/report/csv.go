package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// Header is the fixed column order of the report file.
var Header = []string{
	"student_id",
	"last_name",
	"term",
	"total_credits",
	"focused_department_name",
	"focused_department_contact",
}

// WriteCSV writes the report rows to path with the fixed header.
func WriteCSV(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			strconv.FormatInt(row.StudentID, 10),
			row.LastName,
			row.Term,
			strconv.FormatInt(row.TotalCredits, 10),
			row.DeptName,
			row.DeptContact,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write report row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush report: %w", err)
	}
	return f.Close()
}

// UncertifiedMarkerPath is the sidecar file written next to an uncertified
// report so the CSV itself stays parseable.
func UncertifiedMarkerPath(reportPath string) string {
	return reportPath + ".uncertified"
}

// MarkUncertified records that the report was produced without enforced
// constraints. ClearUncertified removes a stale marker from a prior run.
func MarkUncertified(reportPath, reason string) error {
	return os.WriteFile(UncertifiedMarkerPath(reportPath),
		[]byte("UNCERTIFIED: "+reason+"\n"), 0644)
}

// ClearUncertified removes the marker if present.
func ClearUncertified(reportPath string) error {
	err := os.Remove(UncertifiedMarkerPath(reportPath))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
