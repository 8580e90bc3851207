package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"registrar/internal/pipeline"
)

// runCmd executes the full pipeline once.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full attribution pipeline",
	Long: `Loads the input files into the workspace, validates and repairs data
quality issues, enforces key constraints, and writes the attribution report.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		result, err := pipeline.Run(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}

		fmt.Printf("report written to %s (%d rows)\n", result.ReportPath, result.ReportRows)
		if !result.Certified {
			fmt.Println("WARNING: constraints not enforced; report marked uncertified")
		}
		for _, issue := range result.Issues.Issues() {
			fmt.Printf("warning: %s: %d (%s)\n", issue.Kind, issue.Count, issue.Message)
		}
		return nil
	},
}
