// Package metrics exposes the multiplexer's operational counters and gauges
// as a prometheus.Collector set, registered into a caller-supplied
// *prometheus.Registry rather than the global default registry so that a
// process embedding more than one rmesh.Multiplexer can keep them apart.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set is the collection of metrics one Multiplexer instance registers.
// Labels are endpoint addresses ("host:port") so a dashboard can break
// queue depth and reconnects down per server. Only the bridge updates
// metrics (InFlightDepth, WriteReadyDepth, Reconnects, CommandsSent,
// HeartbeatRTT); BacklogDepth, Redirects, Errors and SlotTableGeneration
// are registered but never updated.
type Set struct {
	BacklogDepth   *prometheus.GaugeVec
	InFlightDepth  *prometheus.GaugeVec
	WriteReadyDepth *prometheus.GaugeVec

	Reconnects   *prometheus.CounterVec
	Redirects    *prometheus.CounterVec
	CommandsSent *prometheus.CounterVec
	Errors       *prometheus.CounterVec

	HeartbeatRTT *prometheus.HistogramVec

	SlotTableGeneration prometheus.Gauge
}

// New constructs a Set with the given metric name prefix. It does not
// register the metrics; call Set.MustRegister once the caller's Registry is
// available.
func New(prefix string) *Set {
	endpointLabels := []string{"endpoint"}
	return &Set{
		BacklogDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_backlog_depth",
			Help: "Number of messages queued ahead of the bridge's connection, per endpoint.",
		}, endpointLabels),
		InFlightDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_inflight_depth",
			Help: "Number of messages written and awaiting a reply, per endpoint.",
		}, endpointLabels),
		WriteReadyDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_write_ready_depth",
			Help: "Number of messages staged to be written to the socket, per endpoint.",
		}, endpointLabels),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_reconnects_total",
			Help: "Reconnection attempts made by a bridge, per endpoint.",
		}, endpointLabels),
		Redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_redirects_total",
			Help: "MOVED/ASK redirects observed, by kind and endpoint.",
		}, []string{"endpoint", "kind"}),
		CommandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_commands_sent_total",
			Help: "Commands written to a bridge's socket, per endpoint.",
		}, endpointLabels),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_errors_total",
			Help: "Errors surfaced to callers, by kind and endpoint.",
		}, []string{"endpoint", "kind"}),
		HeartbeatRTT: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_heartbeat_rtt_seconds",
			Help:    "Round-trip time of periodic PING heartbeats, per endpoint.",
			Buckets: prometheus.DefBuckets,
		}, endpointLabels),
		SlotTableGeneration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_slot_table_generation",
			Help: "Monotonically increasing generation counter of the cluster slot table.",
		}),
	}
}

// MustRegister registers every metric in the set into reg. Panics on
// duplicate registration, matching the prometheus client's own convention.
func (s *Set) MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		s.BacklogDepth,
		s.InFlightDepth,
		s.WriteReadyDepth,
		s.Reconnects,
		s.Redirects,
		s.CommandsSent,
		s.Errors,
		s.HeartbeatRTT,
		s.SlotTableGeneration,
	)
}
