package pipeline

import (
	"time"

	"go.uber.org/zap"
)

// StepMetric records one pipeline step's duration and, where meaningful,
// the number of rows it handled.
type StepMetric struct {
	Name     string
	Duration time.Duration
	Rows     int64
}

// Metrics accumulates per-step timings for one run.
type Metrics struct {
	start time.Time
	steps []StepMetric
}

// NewMetrics starts the run clock.
func NewMetrics() *Metrics {
	return &Metrics{start: time.Now()}
}

// Record adds a step timing without a row count.
func (m *Metrics) Record(name string, d time.Duration) {
	m.steps = append(m.steps, StepMetric{Name: name, Duration: d, Rows: -1})
}

// RecordRows adds a step timing with a row count.
func (m *Metrics) RecordRows(name string, d time.Duration, rows int64) {
	m.steps = append(m.steps, StepMetric{Name: name, Duration: d, Rows: rows})
}

// Total returns the elapsed time since the run started.
func (m *Metrics) Total() time.Duration {
	return time.Since(m.start)
}

// Steps returns the recorded steps in execution order.
func (m *Metrics) Steps() []StepMetric {
	return m.steps
}

// LogSummary emits the per-step breakdown and totals.
func (m *Metrics) LogSummary(log *zap.Logger) {
	total := m.Total()
	log.Info("pipeline summary", zap.Duration("total", total))

	var totalRows int64
	for _, step := range m.steps {
		fields := []zap.Field{
			zap.String("step", step.Name),
			zap.Duration("duration", step.Duration),
		}
		if total > 0 {
			fields = append(fields, zap.Float64("share_pct",
				float64(step.Duration)/float64(total)*100))
		}
		if step.Rows >= 0 {
			fields = append(fields, zap.Int64("rows", step.Rows))
			totalRows += step.Rows
		}
		log.Info("pipeline step", fields...)
	}
	log.Info("pipeline volume", zap.Int64("total_rows", totalRows))
}
