// Package metrics exposes Prometheus collectors for the monitor service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	monitorCardsTotal            *prometheus.CounterVec
	monitorQuarantineTotal       *prometheus.CounterVec
	monitorAlertsTotal           *prometheus.CounterVec
	monitorCategoryFailuresTotal *prometheus.CounterVec
	monitorZipsTotal             *prometheus.CounterVec
	monitorCyclesTotal           *prometheus.CounterVec
	monitorCycleDurationSeconds  prometheus.Histogram
	monitorActiveWorkers         prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		monitorCardsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_cards_total",
				Help: "Total valid cards observed, labeled by category.",
			},
			[]string{"category"},
		)

		monitorQuarantineTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_quarantine_total",
				Help: "Total cards quarantined, labeled by rejection reason.",
			},
			[]string{"reason"},
		)

		monitorAlertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_alerts_total",
				Help: "Total alert events emitted, labeled by trigger kind.",
			},
			[]string{"trigger"},
		)

		monitorCategoryFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_category_failures_total",
				Help: "Total category-scope collection failures.",
			},
			[]string{"category"},
		)

		monitorZipsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_zips_total",
				Help: "Total per-ZIP passes, labeled by outcome.",
			},
			[]string{"status"},
		)

		monitorCyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_cycles_total",
				Help: "Total collection cycles, labeled by outcome.",
			},
			[]string{"status"},
		)

		monitorCycleDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "monitor_cycle_duration_seconds",
				Help:    "Histogram of full-cycle wall time.",
				Buckets: []float64{30, 60, 120, 300, 600, 1200, 3600},
			},
		)

		monitorActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "monitor_active_workers",
				Help: "Number of ZIP workers currently collecting.",
			},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCard counts one valid card for a category.
func ObserveCard(category string) {
	if monitorCardsTotal != nil {
		monitorCardsTotal.WithLabelValues(category).Inc()
	}
}

// ObserveQuarantine counts one quarantined card for a reason.
func ObserveQuarantine(reason string) {
	if monitorQuarantineTotal != nil {
		monitorQuarantineTotal.WithLabelValues(reason).Inc()
	}
}

// ObserveAlert counts one emitted alert for a trigger kind.
func ObserveAlert(trigger string) {
	if monitorAlertsTotal != nil {
		monitorAlertsTotal.WithLabelValues(trigger).Inc()
	}
}

// ObserveCategoryFailure counts one category-scope failure.
func ObserveCategoryFailure(category string) {
	if monitorCategoryFailuresTotal != nil {
		monitorCategoryFailuresTotal.WithLabelValues(category).Inc()
	}
}

// ObserveZip counts one ZIP pass with the given outcome.
func ObserveZip(status string) {
	if monitorZipsTotal != nil {
		monitorZipsTotal.WithLabelValues(status).Inc()
	}
}

// ObserveCycle records one finished cycle.
func ObserveCycle(ok bool, duration time.Duration) {
	if monitorCyclesTotal == nil {
		return
	}
	status := "fail"
	if ok {
		status = "ok"
	}
	monitorCyclesTotal.WithLabelValues(status).Inc()
	monitorCycleDurationSeconds.Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if monitorActiveWorkers != nil {
		monitorActiveWorkers.Inc()
	}
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if monitorActiveWorkers != nil {
		monitorActiveWorkers.Dec()
	}
}
