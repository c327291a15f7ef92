// Package metrics registers the gateway's core Prometheus collectors. HTTP
// traffic metrics live in the middleware package; the collectors here cover
// the two stateful protocols themselves, where "how often did the guard
// actually trip" and "how many events arrived per type" are the questions
// an operator asks first.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// BootstrapOutcomes counts terminal bootstrap transitions by outcome:
	// "authenticated", "exchange_failed", "malformed_token",
	// "missing_credentials", "replayed".
	BootstrapOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootstrap_outcomes_total",
			Help: "Terminal session bootstrap outcomes.",
		},
		[]string{"outcome"},
	)

	// ChannelEvents counts events published on live channels by type.
	ChannelEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channel_events_total",
			Help: "Events delivered on live event channels.",
		},
		[]string{"type"},
	)

	// LedgerResyncs counts full order-list re-pulls, split by what forced
	// them: "initial", "payment", "manual".
	LedgerResyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_resyncs_total",
			Help: "Full ledger resyncs against the backend order list.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(BootstrapOutcomes, ChannelEvents, LedgerResyncs)
}
