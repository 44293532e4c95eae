// Package observability provides metrics and tracing for the ingest pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/otherjamesbrown/minutes-cli/pkg/buildinfo"
)

// Namespace prefixes every metric name.
const Namespace = "minutes"

// Document outcomes.
const (
	OutcomeImported = "imported"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// IngestMetrics holds all Prometheus metrics for the ingest pipeline.
type IngestMetrics struct {
	// Document metrics
	DocumentsTotal *prometheus.CounterVec
	ErrorsTotal    *prometheus.CounterVec
	StageSeconds   *prometheus.HistogramVec

	// Record metrics
	ItemsTotal       *prometheus.CounterVec
	AttendeesTotal   prometheus.Counter
	SkippedPrefix    prometheus.Histogram
	LastRunTimestamp prometheus.Gauge

	BuildInfo *prometheus.GaugeVec
}

// NewIngestMetrics creates the ingest metrics and registers them with reg.
func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	factory := promauto.With(reg)

	m := &IngestMetrics{
		DocumentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "documents_total",
				Help:      "Documents processed by outcome",
			},
			[]string{"outcome"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "errors_total",
				Help:      "Per-document failures by stage and error code",
			},
			[]string{"stage", "code"},
		),
		StageSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "stage_seconds",
				Help:      "Latency of each pipeline stage per document",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"stage"},
		),
		ItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "items_total",
				Help:      "Agenda items parsed by vote outcome",
			},
			[]string{"unanimity"},
		),
		AttendeesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "attendees_total",
				Help:      "Attendee entries parsed",
			},
		),
		SkippedPrefix: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "skipped_prefix_bytes",
				Help:      "Bytes of text preceding the meeting header",
				Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
			},
		),
		LastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last batch run completed",
			},
		),
		BuildInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "build_info",
				Help:      "Build information of the running binary",
			},
			[]string{"version", "commit", "go_version"},
		),
	}

	info := buildinfo.Get(Namespace)
	m.BuildInfo.WithLabelValues(info.Version, info.Commit, info.GoVersion).Set(1)
	return m
}

// RecordOutcome counts a processed document.
func (m *IngestMetrics) RecordOutcome(outcome string) {
	m.DocumentsTotal.WithLabelValues(outcome).Inc()
}

// RecordError counts a classified per-document failure.
func (m *IngestMetrics) RecordError(stage, code string) {
	m.ErrorsTotal.WithLabelValues(stage, code).Inc()
}

// RecordStageLatency records the latency of one stage for one document.
func (m *IngestMetrics) RecordStageLatency(stage string, seconds float64) {
	m.StageSeconds.WithLabelValues(stage).Observe(seconds)
}

// RecordItem counts a parsed agenda item.
func (m *IngestMetrics) RecordItem(unanimity string) {
	m.ItemsTotal.WithLabelValues(unanimity).Inc()
}

// RecordAttendees counts parsed attendee entries.
func (m *IngestMetrics) RecordAttendees(n int) {
	m.AttendeesTotal.Add(float64(n))
}

// RecordSkippedPrefix records how much text preceded the header.
func (m *IngestMetrics) RecordSkippedPrefix(bytes int) {
	m.SkippedPrefix.Observe(float64(bytes))
}

// MarkRunCompleted sets the last run timestamp to now.
func (m *IngestMetrics) MarkRunCompleted() {
	m.LastRunTimestamp.SetToCurrentTime()
}
