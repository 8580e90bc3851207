// Package pipeline orchestrates one run: ingest, validate, clean,
// revalidate, enforce constraints, aggregate, write. Stages run strictly in
// sequence; each consumes the complete output of the previous one.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"registrar/internal/config"
	"registrar/internal/ingest"
	"registrar/internal/quality"
	"registrar/internal/report"
	"registrar/internal/workspace"
)

// Result summarizes a completed run.
type Result struct {
	RunID      string
	ReportPath string
	ReportRows int

	// Certified is false when constraint enforcement failed and the run
	// continued in best-effort mode; the report carries a sidecar marker.
	Certified bool

	// Issues is the final validation report (warnings may remain).
	Issues *quality.Report

	Metrics *Metrics
}

// Run executes the full pipeline described by cfg. On failure the workspace
// tables are left in their last state for post-mortem inspection.
func Run(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	runID := uuid.NewString()
	log = log.With(zap.String("run_id", runID))
	metrics := NewMetrics()

	inputs := ingest.Inputs{
		Snapshot:    cfg.SnapshotPath(),
		Enrollments: cfg.EnrollmentsPath(),
		Departments: cfg.DepartmentsPath(),
	}
	if err := ingest.CheckInputs(inputs); err != nil {
		return nil, err
	}

	ws, err := workspace.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	log.Info("pipeline started",
		zap.String("workspace", cfg.DatabasePath),
		zap.String("mode", cfg.Mode))

	// Stage 1: raw tables.
	start := time.Now()
	provider := ingest.NewProvider(ws, log)
	if err := provider.LoadAll(ctx, inputs); err != nil {
		return nil, fmt.Errorf("ingest failed: %w", err)
	}
	loaded, err := tableRows(ctx, ws)
	if err != nil {
		return nil, err
	}
	metrics.RecordRows("ingest", time.Since(start), loaded)

	// Stages 2-3: validate, clean, revalidate until clean or the pass cap.
	start = time.Now()
	validator := quality.NewValidator(ws, log)
	cleaner := quality.NewCleaner(ws, log)
	issues, err := cleaner.CleanUntilValid(ctx, validator, cfg.Cleaning.MaxPasses)
	if err != nil {
		return nil, err
	}
	metrics.Record("quality", time.Since(start))

	result := &Result{
		RunID:      runID,
		ReportPath: cfg.OutputPath,
		Certified:  true,
		Issues:     issues,
		Metrics:    metrics,
	}

	// Stage 4: constraint enforcement, only ever reached on clean data.
	start = time.Now()
	enforcer := quality.NewEnforcer(ws, log)
	if err := enforcer.Reset(ctx); err != nil {
		return nil, err
	}
	if err := enforcer.Enforce(ctx); err != nil {
		if cfg.Mode == config.ModeStrict {
			return nil, err
		}
		log.Warn("constraint enforcement failed, continuing in best-effort mode",
			zap.Error(err))
		result.Certified = false
	}
	metrics.Record("enforce", time.Since(start))

	// Stage 5: aggregation.
	start = time.Now()
	aggregator := report.NewAggregator(ws, log)
	rows, err := aggregator.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregation failed: %w", err)
	}
	result.ReportRows = len(rows)
	metrics.RecordRows("aggregate", time.Since(start), int64(len(rows)))

	// Stage 6: report sink.
	start = time.Now()
	if err := report.WriteCSV(cfg.OutputPath, rows); err != nil {
		return nil, err
	}
	if result.Certified {
		if err := report.ClearUncertified(cfg.OutputPath); err != nil {
			return nil, err
		}
	} else {
		if err := report.MarkUncertified(cfg.OutputPath,
			"constraint enforcement failed for this run"); err != nil {
			return nil, err
		}
	}
	metrics.Record("write", time.Since(start))

	metrics.LogSummary(log)
	log.Info("pipeline finished",
		zap.Int("report_rows", result.ReportRows),
		zap.Bool("certified", result.Certified),
		zap.String("output", cfg.OutputPath))
	return result, nil
}

// tableRows sums the row counts of the four pipeline tables.
func tableRows(ctx context.Context, ws *workspace.Workspace) (int64, error) {
	var total int64
	for _, table := range []string{"student", "acad_prog", "departments", "enrollments"} {
		n, err := ws.RowCount(ctx, table)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
