// Package metrics exposes reconciliation run metrics for the node-exporter
// textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tamara540/telecom-revenue-protection/pkg/api"
)

// Run holds the metrics of one batch invocation on a private registry.
type Run struct {
	registry *prometheus.Registry

	CustomerMonths   prometheus.Counter
	Findings         *prometheus.CounterVec
	Issues           *prometheus.CounterVec
	CustomerFailures prometheus.Counter
	StageDuration    *prometheus.HistogramVec
	LastRun          prometheus.Gauge
}

// NewRun creates and registers the run metrics.
func NewRun() *Run {
	r := &Run{
		registry: prometheus.NewRegistry(),

		CustomerMonths: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "revguard_customer_months_total",
				Help: "Customer-months reconciled",
			},
		),

		Findings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revguard_findings_total",
				Help: "Flagged customer-months by anomaly reason",
			},
			[]string{"reason"},
		),

		Issues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revguard_data_quality_issues_total",
				Help: "Rejected or suspicious source records by code and severity",
			},
			[]string{"code", "severity"},
		),

		CustomerFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "revguard_customer_failures_total",
				Help: "Customers skipped because their computation failed",
			},
		),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "revguard_stage_duration_seconds",
				Help:    "Duration of each pipeline stage in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"stage"},
		),

		LastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "revguard_last_run_timestamp_seconds",
				Help: "Unix time the last reconciliation finished",
			},
		),
	}

	r.registry.MustRegister(
		r.CustomerMonths,
		r.Findings,
		r.Issues,
		r.CustomerFailures,
		r.StageDuration,
		r.LastRun,
	)
	return r
}

// Registry returns the private registry.
func (r *Run) Registry() *prometheus.Registry {
	return r.registry
}

// Record adds a finished run to the metrics.
func (r *Run) Record(rep *api.Report, stages map[string]time.Duration) {
	r.CustomerMonths.Add(float64(rep.Summary.CustomerMonths))
	r.CustomerFailures.Add(float64(rep.Summary.Failed))

	for _, f := range rep.Findings {
		reason := f.Reason()
		if reason == "" {
			reason = "none"
		}
		r.Findings.WithLabelValues(reason).Inc()
	}

	for _, issue := range rep.Issues {
		r.Issues.WithLabelValues(issue.Code, issue.Severity.String()).Inc()
	}

	for stage, d := range stages {
		r.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}

	r.LastRun.Set(float64(rep.Summary.FinishedAt.Unix()))
}

// WriteTextfile writes the metrics atomically in the text exposition format.
func (r *Run) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
