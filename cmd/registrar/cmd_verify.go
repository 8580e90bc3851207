package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"registrar/internal/quality"
	"registrar/internal/workspace"
)

// verifyCmd asserts key uniqueness and referential integrity against the
// workspace left by a previous run.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify constraints on the persisted workspace",
	Long: `Checks the workspace database left by a previous run: declared primary
keys, key uniqueness at the data level, referential integrity, and the
credit-hour domain. Run the pipeline first.`,
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

		verifier := quality.NewVerifier(ws, logger)
		result, err := verifier.Verify(cmd.Context())
		if err != nil {
			return err
		}
		if err := verifier.VerifyReportRows(cmd.Context(), result, cfg.OutputPath); err != nil {
			return err
		}

		for _, check := range result.Checks {
			status := "ok"
			if !check.OK {
				status = "FAIL"
			}
			fmt.Printf("%-4s %s: %s\n", status, check.Name, check.Detail)
		}
		if !result.OK() {
			return fmt.Errorf("constraint verification failed")
		}
		return nil
	},
}
