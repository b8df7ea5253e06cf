package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the scanner.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Scan metrics
	ScansTotal   *prometheus.CounterVec
	ScanDuration prometheus.Histogram
	ScanIdeas    prometheus.Histogram

	// Source metrics
	SourceFailures *prometheus.CounterVec
	ItemsFetched   *prometheus.CounterVec
	ItemsMatched   *prometheus.CounterVec

	// Scheduler metrics
	SchedulerRuns *prometheus.CounterVec
	SchedulerTick prometheus.Gauge
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_scans_total",
				Help: "Total number of scans by outcome",
			},
			[]string{"outcome"},
		),
		ScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "signalforge_scan_duration_seconds",
				Help:    "Wall time of a scan including persistence",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		ScanIdeas: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "signalforge_scan_ideas",
				Help:    "Number of distinct idea keys per persisted scan",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		SourceFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_source_failures_total",
				Help: "Source adapter failures by source and error kind",
			},
			[]string{"source", "kind"},
		),
		ItemsFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_items_fetched_total",
				Help: "Items fetched inside the lookback window, by source",
			},
			[]string{"source"},
		),
		ItemsMatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_items_matched_total",
				Help: "Items that matched at least one signal category, by source",
			},
			[]string{"source"},
		),
		SchedulerRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_scheduler_runs_total",
				Help: "Scheduled scans by outcome",
			},
			[]string{"outcome"},
		),
		SchedulerTick: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalforge_scheduler_last_tick_timestamp_seconds",
				Help: "Unix time of the last scheduler tick",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ScansTotal,
		m.ScanDuration,
		m.ScanIdeas,
		m.SourceFailures,
		m.ItemsFetched,
		m.ItemsMatched,
		m.SchedulerRuns,
		m.SchedulerTick,
	)

	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveScan records one finished scan. outcome is "success" or "failed".
func (m *Metrics) ObserveScan(outcome string, duration time.Duration, ideas int) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(outcome).Inc()
	m.ScanDuration.Observe(duration.Seconds())
	if outcome == "success" {
		m.ScanIdeas.Observe(float64(ideas))
	}
}

// ObserveSource records the counters of one successful adapter run.
func (m *Metrics) ObserveSource(source string, fetched, matched int) {
	if m == nil {
		return
	}
	m.ItemsFetched.WithLabelValues(source).Add(float64(fetched))
	m.ItemsMatched.WithLabelValues(source).Add(float64(matched))
}

// SourceFailed records one adapter failure.
func (m *Metrics) SourceFailed(source, kind string) {
	if m == nil {
		return
	}
	m.SourceFailures.WithLabelValues(source, kind).Inc()
}

// SchedulerRun records one scheduled scan. outcome is "success" or "failed".
func (m *Metrics) SchedulerRun(outcome string) {
	if m == nil {
		return
	}
	m.SchedulerRuns.WithLabelValues(outcome).Inc()
}

// Tick records a scheduler tick.
func (m *Metrics) Tick(at time.Time) {
	if m == nil {
		return
	}
	m.SchedulerTick.Set(float64(at.Unix()))
}
