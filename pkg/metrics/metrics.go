// Package metrics holds the relay's internal Prometheus instrumentation.
// Nothing here exposes an HTTP /metrics endpoint — metrics exposition format
// is an explicit non-goal. The counters exist to be incremented by the
// scanner, confirmation pipeline, and elections controller, and can be
// scraped by wiring a registry handler outside this repository's scope.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry groups the relay's metrics under one Prometheus registerer.
type Registry struct {
	EventsScanned       *prometheus.CounterVec
	ScannerHeight       *prometheus.GaugeVec
	PendingConfirmations prometheus.Gauge
	VotesSubmitted      *prometheus.CounterVec
	ElectionRound       prometheus.Gauge
}

// New creates and registers the relay's metrics on reg.
func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		EventsScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_evm_events_scanned_total",
			Help: "EVM log events emitted by the scanner, by chain id.",
		}, []string{"chain_id"}),
		ScannerHeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relay_evm_scanner_height",
			Help: "Last scanned EVM block height, by chain id.",
		}, []string{"chain_id"}),
		PendingConfirmations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_pending_confirmations",
			Help: "Number of PendingConfirmation entries awaiting a vote.",
		}),
		VotesSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_votes_submitted_total",
			Help: "Confirm/reject votes submitted to TON event contracts.",
		}, []string{"decision"}),
		ElectionRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_election_round_number",
			Help: "Current relay election round number.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.EventsScanned, m.ScannerHeight, m.PendingConfirmations, m.VotesSubmitted, m.ElectionRound)
	}
	return m
}
