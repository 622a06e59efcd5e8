// Package metrics exposes Prometheus collectors for pipeline runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shorts"

// Collector holds the pipeline metrics on its own registry. A nil *Collector
// is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	// Labels: stage, status ("ok"|"error")
	StageDuration *prometheus.HistogramVec
	// Labels: channel, outcome ("success"|"failure")
	Runs *prometheus.CounterVec
	// Labels: status
	Stitches *prometheus.CounterVec
	// Labels: platform, status
	Uploads *prometheus.CounterVec
	// Labels: provider, mocked ("true"|"false")
	TrendFetches *prometheus.CounterVec
}

// New creates and registers the collectors together with the Go runtime and
// process collectors.
func New(version string) *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"stage", "status"},
	)
	c.Runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome",
		},
		[]string{"channel", "outcome"},
	)
	c.Stitches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stitches_total",
			Help:      "Segment concatenations by status",
		},
		[]string{"status"},
	)
	c.Uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Upload attempts by platform and status",
		},
		[]string{"platform", "status"},
	)
	c.TrendFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trend_fetches_total",
			Help:      "Trend fetches by provider and whether mock data was used",
		},
		[]string{"provider", "mocked"},
	)
	info := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version"},
	)
	info.WithLabelValues(version).Set(1)

	c.registry.MustRegister(
		c.StageDuration, c.Runs, c.Stitches, c.Uploads, c.TrendFetches, info,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveStage records one stage execution.
func (c *Collector) ObserveStage(stage string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.StageDuration.WithLabelValues(stage, status(err)).Observe(d.Seconds())
}

// IncRun counts a finished run.
func (c *Collector) IncRun(channel string, success bool) {
	if c == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	c.Runs.WithLabelValues(channel, outcome).Inc()
}

// IncStitch counts a concatenation attempt.
func (c *Collector) IncStitch(err error) {
	if c == nil {
		return
	}
	c.Stitches.WithLabelValues(status(err)).Inc()
}

// IncUpload counts an upload attempt.
func (c *Collector) IncUpload(platform string, err error) {
	if c == nil {
		return
	}
	c.Uploads.WithLabelValues(platform, status(err)).Inc()
}

// IncTrendFetch counts a trend fetch.
func (c *Collector) IncTrendFetch(provider string, mocked bool) {
	if c == nil {
		return
	}
	m := "false"
	if mocked {
		m = "true"
	}
	c.TrendFetches.WithLabelValues(provider, m).Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
