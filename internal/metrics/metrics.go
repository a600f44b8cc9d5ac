// Package metrics exposes Prometheus collectors for the polling engine.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal           *prometheus.CounterVec
	itemsTotal            *prometheus.CounterVec
	dispatchFailuresTotal *prometheus.CounterVec
	gateWaitSeconds       prometheus.Histogram
	sessionsConfigured    prometheus.Gauge

	once sync.Once
)

// Init registers the collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		cyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ptnotify_cycles_total",
				Help: "Polling cycles run, labeled by tracker and result.",
			},
			[]string{"tracker", "result"},
		)

		itemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ptnotify_items_total",
				Help: "New items discovered, labeled by tracker and kind.",
			},
			[]string{"tracker", "kind"},
		)

		dispatchFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ptnotify_dispatch_failures_total",
				Help: "Sink delivery failures, labeled by sink.",
			},
			[]string{"sink"},
		)

		gateWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ptnotify_gate_wait_seconds",
				Help:    "Time spent waiting on the shared request gate.",
				Buckets: []float64{0.05, 0.25, 1, 2.5, 5, 10, 30},
			},
		)

		sessionsConfigured = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ptnotify_sessions",
				Help: "Tracker sessions discovered at the last cycle.",
			},
		)
	})
}

func CycleCompleted(tracker, result string) {
	if cyclesTotal != nil {
		cyclesTotal.WithLabelValues(tracker, result).Inc()
	}
}

func ItemDiscovered(tracker, kind string) {
	if itemsTotal != nil {
		itemsTotal.WithLabelValues(tracker, kind).Inc()
	}
}

func DispatchFailed(sink string) {
	if dispatchFailuresTotal != nil {
		dispatchFailuresTotal.WithLabelValues(sink).Inc()
	}
}

func GateWaited(d time.Duration) {
	if gateWaitSeconds != nil {
		gateWaitSeconds.Observe(d.Seconds())
	}
}

func SetSessions(n int) {
	if sessionsConfigured != nil {
		sessionsConfigured.Set(float64(n))
	}
}
