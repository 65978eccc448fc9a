// Package observability holds the sync pipeline's Prometheus metrics.
//
// ridesync is a one-shot process, so nothing is served over HTTP. Metrics live on their own
// registry and are written out for the node-exporter textfile collector after a run.
package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ridesync"

// Upload outcomes used as the outcome label.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
	OutcomeDryRun   = "dry_run"
)

// Metrics records sync outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runs               *prometheus.CounterVec
	uploads            *prometheus.CounterVec
	extractionFailures prometheus.Counter
	lastRun            prometheus.Gauge
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Number of sync runs grouped by final status.",
		}, []string{"status"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Number of upload attempts grouped by outcome.",
		}, []string{"outcome"}),
		extractionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_failures_total",
			Help:      "Number of activities whose file could not be exported.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix timestamp of the most recent finished sync run.",
		}),
	}
	m.registry.MustRegister(m.runs, m.uploads, m.extractionFailures, m.lastRun)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRun counts a finished run and updates the last-run watermark.
func (m *Metrics) RecordRun(status string, finished time.Time) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	if !finished.IsZero() {
		m.lastRun.Set(float64(finished.Unix()))
	}
}

// RecordUpload counts one upload attempt.
func (m *Metrics) RecordUpload(outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
}

// RecordExtractionFailure counts one activity that produced no file.
func (m *Metrics) RecordExtractionFailure() {
	if m == nil {
		return
	}
	m.extractionFailures.Inc()
}

// WriteTextfile writes every metric to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
