// Package metrics exposes Prometheus collectors for capture runs.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	captureRunsTotal       *prometheus.CounterVec
	toolRetriesTotal       *prometheus.CounterVec
	recordsCapturedTotal   prometheus.Counter
	recordsKeptTotal       prometheus.Counter
	captureDurationSeconds prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		captureRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netcapture_runs_total",
				Help: "Total number of capture runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		toolRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netcapture_tool_retries_total",
				Help: "Total number of retried tool calls, labeled by stage.",
			},
			[]string{"stage"},
		)

		recordsCapturedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "netcapture_records_captured_total",
				Help: "Total number of network records fetched from the browser provider.",
			},
		)

		recordsKeptTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "netcapture_records_kept_total",
				Help: "Total number of network records surviving the client-side filter.",
			},
		)

		captureDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "netcapture_capture_duration_seconds",
				Help:    "Histogram of end-to-end capture run durations.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		)
	})
}

// RunCompleted records one finished run and its duration.
func RunCompleted(outcome string, duration time.Duration) {
	if captureRunsTotal == nil {
		return
	}
	captureRunsTotal.WithLabelValues(outcome).Inc()
	captureDurationSeconds.Observe(duration.Seconds())
}

// ToolRetry counts a retried tool call for the given stage.
func ToolRetry(stage string) {
	if toolRetriesTotal == nil {
		return
	}
	toolRetriesTotal.WithLabelValues(stage).Inc()
}

// RecordsCaptured counts records fetched from the provider.
func RecordsCaptured(n int) {
	if recordsCapturedTotal == nil {
		return
	}
	recordsCapturedTotal.Add(float64(n))
}

// RecordsKept counts records that survived filtering.
func RecordsKept(n int) {
	if recordsKeptTotal == nil {
		return
	}
	recordsKeptTotal.Add(float64(n))
}
