package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the market ledger.
type Metrics struct {
	// Engine operations
	OpsApplied  *prometheus.CounterVec
	OpsRejected *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec

	// Market lifecycle
	MarketsCreated  prometheus.Counter
	MarketsResolved prometheus.Counter
	MarketsOpen     prometheus.Gauge

	// Value flow (6-decimal units)
	VolumeStaked   *prometheus.CounterVec
	VolumeRedeemed prometheus.Counter
	FeesAccrued    prometheus.Counter
	FeesWithdrawn  prometheus.Counter

	// Event pipeline
	EventsPublished prometheus.Counter
	EventsDropped   prometheus.Counter
	PersistWritten  prometheus.Counter
	PersistErrors   prometheus.Counter
	PersistBatchDur prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		OpsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "belief_ops_applied_total",
			Help: "Mutating operations committed, by operation.",
		}, []string{"op"}),
		OpsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "belief_ops_rejected_total",
			Help: "Mutating operations rejected, by operation and error kind.",
		}, []string{"op", "kind"}),
		OpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "belief_op_duration_seconds",
			Help:    "Operation latency from guard check to commit.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"op"}),

		MarketsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "belief_markets_created_total",
			Help: "Markets created.",
		}),
		MarketsResolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "belief_markets_resolved_total",
			Help: "Markets resolved.",
		}),
		MarketsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "belief_markets_open",
			Help: "Markets currently accepting trades.",
		}),

		VolumeStaked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "belief_volume_staked_total",
			Help: "Currency staked via buys, by direction (buy/sell).",
		}, []string{"side"}),
		VolumeRedeemed: factory.NewCounter(prometheus.CounterOpts{
			Name: "belief_volume_redeemed_total",
			Help: "Currency paid out to winners.",
		}),
		FeesAccrued: factory.NewCounter(prometheus.CounterOpts{
			Name: "belief_fees_accrued_total",
			Help: "Trading fees accrued into markets.",
		}),
		FeesWithdrawn: factory.NewCounter(prometheus.CounterOpts{
			Name: "belief_fees_withdrawn_total",
			Help: "Trading fees distributed on withdrawal.",
		}),

		EventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "belief_events_published_total",
			Help: "Telemetry events forwarded to NATS.",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "belief_events_dropped_total",
			Help: "Telemetry events dropped on full broadcast buffers.",
		}),
		PersistWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "belief_persist_events_written_total",
			Help: "Event rows written to the durable log.",
		}),
		PersistErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "belief_persist_errors_total",
			Help: "Failed event-log flushes.",
		}),
		PersistBatchDur: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "belief_persist_batch_duration_seconds",
			Help:    "Event-log batch flush latency.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
}
