package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// UpdatesApplied counts accepted orderbook updates per exchange.
var UpdatesApplied = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "obagg_updates_applied_total",
		Help: "Total number of orderbook updates accepted and applied",
	},
	[]string{"exchange"},
)

// MessagesDiscarded counts inbound messages dropped without touching book
// state, by reason (stale, malformed, non_text).
var MessagesDiscarded = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "obagg_messages_discarded_total",
		Help: "Total number of inbound feed messages discarded",
	},
	[]string{"exchange", "reason"},
)

// Resyncs counts snapshot re-fetches forced by sequence violations.
var Resyncs = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "obagg_resyncs_total",
		Help: "Total number of snapshot resyncs triggered by sequence gaps",
	},
	[]string{"exchange"},
)

// FeedRestarts counts supervisor restarts of terminated feed tasks.
var FeedRestarts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "obagg_feed_restarts_total",
		Help: "Total number of feed task restarts after transport failure",
	},
	[]string{"exchange"},
)

// Broadcasts counts summaries handed to the subscriber pool.
var Broadcasts = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "obagg_broadcasts_total",
		Help: "Total number of summaries broadcast to subscribers",
	},
)

// DeliveryFailures counts per-subscriber sends dropped on a full or closed
// channel.
var DeliveryFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "obagg_delivery_failures_total",
		Help: "Total number of summary deliveries dropped for slow subscribers",
	},
)

// Subscribers tracks the current subscriber pool size.
var Subscribers = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "obagg_subscribers",
		Help: "Number of currently registered summary subscribers",
	},
)

func init() {
	prometheus.MustRegister(UpdatesApplied, MessagesDiscarded, Resyncs, FeedRestarts)
	prometheus.MustRegister(Broadcasts, DeliveryFailures, Subscribers)
}
