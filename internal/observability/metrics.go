// Package observability provides Prometheus metrics for the ranking pipeline.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "copyrank"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Cycle metrics
	CycleDuration  prometheus.Histogram
	CycleRuns      *prometheus.CounterVec
	TradersScored  prometheus.Gauge
	TradersCarried prometheus.Gauge
	TradersElig    prometheus.Gauge
	Allocations    prometheus.Gauge

	// Ingestion metrics
	SyncFailures  *prometheus.CounterVec
	TradesStored  prometheus.Counter
	PollsRecorded prometheus.Counter

	// Risk metrics
	BlacklistAdded       *prometheus.CounterVec
	LiquidationsDetected prometheus.Counter
	SizingRejections     *prometheus.CounterVec
	BufferActions        *prometheus.CounterVec

	// Event bus
	EventsPublished *prometheus.CounterVec
}

// NewMetrics creates all metrics on the given registerer.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Duration of a full recompute cycle",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		CycleRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "runs_total",
			Help:      "Total number of recompute cycles by status",
		}, []string{"status"}),
		TradersScored: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "traders_scored",
			Help:      "Traders scored from fresh data in the last cycle",
		}),
		TradersCarried: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "traders_carried",
			Help:      "Traders whose previous score was carried forward in the last cycle",
		}),
		TradersElig: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "traders_eligible",
			Help:      "Eligible traders in the last cycle",
		}),
		Allocations: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "allocations",
			Help:      "Traders with a nonzero weight after the last rebalance",
		}),
		SyncFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "sync_failures_total",
			Help:      "Trader sync failures by kind",
		}, []string{"kind"}),
		TradesStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "trades_stored_total",
			Help:      "New trade records written",
		}),
		PollsRecorded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "position_polls_total",
			Help:      "Position polls recorded",
		}),
		BlacklistAdded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "blacklist_added_total",
			Help:      "Blacklist entries created by source",
		}, []string{"source"}),
		LiquidationsDetected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "liquidations_detected_total",
			Help:      "Probable liquidations detected",
		}),
		SizingRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "sizing_rejections_total",
			Help:      "Sizing requests rejected by pipeline step",
		}, []string{"step"}),
		BufferActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "buffer_actions_total",
			Help:      "Liquidation buffer actions by kind",
		}, []string{"action"}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Events published on the in-process bus by type",
		}, []string{"type"}),
	}
}

// Handler returns the HTTP handler for the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
