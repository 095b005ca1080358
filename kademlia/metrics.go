package kademlia

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics collects the counters spec.md §4.4/§7 call out by name: a counter
// on every decode failure, one per drop reason, one for unsolicited
// replies, one for timeouts, and a gauge tracking in-flight requests.
//
// Each node gets its own registry so multiple nodes can run in one process
// (as the test suite and local multi-node demos do) without colliding on
// global metric names.
type metrics struct {
	registry *prometheus.Registry

	decodeErrors     prometheus.Counter
	droppedMessages  *prometheus.CounterVec
	unsolicitedReply prometheus.Counter
	rpcTimeouts      prometheus.Counter
	pendingRequests  prometheus.Gauge
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	m := &metrics{
		registry: reg,
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kademlia_decode_errors_total",
			Help: "Inbound datagrams dropped because they failed to parse as an envelope.",
		}),
		droppedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kademlia_dropped_messages_total",
			Help: "Inbound envelopes dropped after parsing, by reason.",
		}, []string{"reason"}),
		unsolicitedReply: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kademlia_unsolicited_replies_total",
			Help: "Reply envelopes whose token matched no pending request.",
		}),
		rpcTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kademlia_rpc_timeouts_total",
			Help: "Outbound requests that received no reply before T_timeout.",
		}),
		pendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kademlia_pending_requests",
			Help: "Outbound requests currently awaiting a reply.",
		}),
	}
	reg.MustRegister(m.decodeErrors, m.droppedMessages, m.unsolicitedReply, m.rpcTimeouts, m.pendingRequests)
	return m
}

// Registry exposes the per-node Prometheus registry so an embedder can
// serve /metrics.
func (m *metrics) Registry() *prometheus.Registry { return m.registry }
