// Package metrics exposes the pipeline's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EventsReceived    *prometheus.CounterVec
	TradesProcessed   prometheus.Counter
	CandleUpdates     prometheus.Counter
	SinkErrors        *prometheus.CounterVec
	Reconnects        prometheus.Counter
	LiveDrops         prometheus.Counter
	DuplicatesDropped prometheus.Counter
	DecodeFailures    prometheus.Counter
	ComponentUp       *prometheus.GaugeVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "curvewatch_events_received_total",
			Help: "Decoded chain events by type.",
		}, []string{"type"}),
		TradesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "curvewatch_trades_processed_total",
			Help: "Canonical trades folded into the aggregator.",
		}),
		CandleUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "curvewatch_candle_updates_total",
			Help: "Per-interval candle mutations.",
		}),
		SinkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "curvewatch_sink_errors_total",
			Help: "Fan-out failures by sink.",
		}, []string{"sink"}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "curvewatch_chain_reconnects_total",
			Help: "Successful chain WebSocket reconnects.",
		}),
		LiveDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "curvewatch_live_drops_total",
			Help: "Messages shed by the live sink's drop-oldest queue.",
		}),
		DuplicatesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "curvewatch_duplicate_trades_dropped_total",
			Help: "Companion trade events suppressed by tx-hash dedupe.",
		}),
		DecodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "curvewatch_decode_failures_total",
			Help: "Raw logs that failed to decode.",
		}),
		ComponentUp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "curvewatch_component_up",
			Help: "Last health sample per component (1 healthy, 0 not).",
		}, []string{"component"}),
	}
}
