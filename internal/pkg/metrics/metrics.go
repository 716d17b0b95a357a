package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EntryDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskgate_entry_decisions_total",
		Help: "Entry gating decisions by deciding gate",
	}, []string{"gate"})

	FillsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskgate_fills_recorded_total",
		Help: "Fills recorded into day state",
	}, []string{"side", "outcome"})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskgate_store_errors_total",
		Help: "Day state store failures by operation",
	}, []string{"op"})

	QuantityAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskgate_quantity_adjustments_total",
		Help: "Price/quantity values changed to satisfy exchange filters",
	}, []string{"kind"})

	FilterFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskgate_filter_fallbacks_total",
		Help: "Lookups of unknown symbols answered with the default filter",
	}, []string{"symbol"})

	StreamEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskgate_stream_events_total",
		Help: "Fill stream events by result",
	}, []string{"result"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "riskgate_http_latency_seconds",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
