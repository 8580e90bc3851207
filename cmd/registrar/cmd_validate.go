package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"registrar/internal/ingest"
	"registrar/internal/quality"
	"registrar/internal/workspace"
)

// validateCmd loads the inputs and reports data quality issues without
// cleaning anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the inputs and report data quality issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ws, err := workspace.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer ws.Close()

		ctx := cmd.Context()
		provider := ingest.NewProvider(ws, logger)
		if err := provider.LoadAll(ctx, ingest.Inputs{
			Snapshot:    cfg.SnapshotPath(),
			Enrollments: cfg.EnrollmentsPath(),
			Departments: cfg.DepartmentsPath(),
		}); err != nil {
			return err
		}

		report, err := quality.NewValidator(ws, logger).Validate(ctx)
		if err != nil {
			return err
		}

		fmt.Println(report.Summary())
		if !report.Clean() {
			return fmt.Errorf("validation found error-severity issues")
		}
		return nil
	},
}
