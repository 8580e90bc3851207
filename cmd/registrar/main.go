package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"registrar/internal/config"
)

var (
	// Global flags
	configPath string
	verbose    bool
	inputDir   string
	dbPath     string
	outPath    string
	mode       string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "registrar",
	Short: "registrar - student credit-hour attribution pipeline",
	Long: `registrar ingests a student snapshot, an enrollment extract, and a
department roster, repairs data quality issues, enforces key constraints,
and produces the per-student-per-term credit attribution report.

Pipeline stages: ingest -> validate -> clean -> revalidate -> enforce ->
aggregate -> write. Validation issues of error severity must be repairable
within the configured number of cleaning passes or the run aborts.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// loadConfig loads the config file and applies CLI flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if inputDir != "" {
		cfg.InputDir = inputDir
	}
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if outPath != "" {
		cfg.OutputPath = outPath
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "registrar.yaml", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&inputDir, "input-dir", "", "Directory with the three input files (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Workspace database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&outPath, "out", "", "Report output path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "", "Enforcement failure mode: strict or best-effort (overrides config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
