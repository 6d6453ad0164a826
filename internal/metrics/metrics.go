// Package metrics declares the Prometheus collectors shared across the
// resolver, selector and proxy, grounded on the same init()+MustRegister
// shape the teacher uses in storage/prometheus.go.
package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	prometheus.MustRegister(
		ResolutionsTotal,
		ValidationsTotal,
		SelectionOverridesTotal,
		ProxyRequestsTotal,
		ActiveConnectionsGauge,
	)
}

var (
	// ResolutionsTotal counts UDI resolver outcomes by label "outcome"
	// (forward, redirect, bad_request, unknown_chain, server_error).
	ResolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "digproxy_udi_resolutions_total",
		Help: "The number of UDI resolutions, by outcome",
	}, []string{"outcome"})

	// ValidationsTotal counts Head Probe validations by label "result"
	// (accepted, rejected, timeout).
	ValidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "digproxy_peer_validations_total",
		Help: "The number of peer head-probe validations, by result",
	}, []string{"result"})

	// SelectionOverridesTotal counts how often each blended-policy override
	// actually changed the chosen peer, by label "policy" (least_conn,
	// latency, success_rate).
	SelectionOverridesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "digproxy_selection_overrides_total",
		Help: "The number of times a blended selection override changed the chosen peer",
	}, []string{"policy"})

	// ProxyRequestsTotal counts proxied requests by label "status"
	// (success, error).
	ProxyRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "digproxy_proxy_requests_total",
		Help: "The number of requests forwarded to a peer, by outcome",
	}, []string{"status"})

	// ActiveConnectionsGauge tracks the sum of in-flight requests across
	// all known peers.
	ActiveConnectionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "digproxy_active_connections",
		Help: "The current number of in-flight requests to peers",
	})
)
