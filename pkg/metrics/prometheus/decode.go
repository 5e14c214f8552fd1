// Package prometheus contains the Prometheus-backed implementations of the
// metrics interfaces in pkg/metrics.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nfstrace/nfstrace/pkg/metrics"
)

// decodeMetrics is the Prometheus implementation for pipeline metrics.
type decodeMetrics struct {
	frames             *prometheus.CounterVec
	malformed          *prometheus.CounterVec
	reassemblyFailures *prometheus.CounterVec
	rpcMessages        *prometheus.CounterVec
	unmatchedReplies   prometheus.Counter
	compoundOps        *prometheus.CounterVec
	activeFlows        prometheus.Gauge
	pendingFragments   prometheus.Gauge
	pendingCalls       prometheus.Gauge
}

// NewDecodeMetrics creates a new Prometheus-backed DecodeMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewDecodeMetrics() metrics.DecodeMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &decodeMetrics{
		frames: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfstrace_frames_total",
				Help: "Total capture records processed, by the layer decoding stopped at (empty for full decodes)",
			},
			[]string{"stop_layer"},
		),
		malformed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfstrace_malformed_total",
				Help: "Total records whose bytes violated a layer format, by layer",
			},
			[]string{"layer"},
		),
		reassemblyFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfstrace_reassembly_failures_total",
				Help: "Total discarded IP fragment sets and TCP flow buffers, by layer",
			},
			[]string{"layer"},
		),
		rpcMessages: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfstrace_rpc_messages_total",
				Help: "Total decoded RPC messages, by direction (call, reply)",
			},
			[]string{"direction"},
		),
		unmatchedReplies: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "nfstrace_unmatched_replies_total",
				Help: "Total replies whose transaction ID matched no outstanding call",
			},
		),
		compoundOps: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfstrace_compound_ops_total",
				Help: "Total decoded NFSv4 operations, by operation name",
			},
			[]string{"op"},
		),
		activeFlows: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "nfstrace_active_flows",
				Help: "TCP flows with live reassembly state",
			},
		),
		pendingFragments: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "nfstrace_pending_fragment_sets",
				Help: "IP datagrams with fragments still outstanding",
			},
		),
		pendingCalls: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "nfstrace_pending_calls",
				Help: "RPC calls awaiting a reply",
			},
		),
	}
}

func (m *decodeMetrics) RecordFrame(stopLayer string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(stopLayer).Inc()
}

func (m *decodeMetrics) RecordMalformed(layer string) {
	if m == nil {
		return
	}
	m.malformed.WithLabelValues(layer).Inc()
}

func (m *decodeMetrics) RecordReassemblyFailure(layer string) {
	if m == nil {
		return
	}
	m.reassemblyFailures.WithLabelValues(layer).Inc()
}

func (m *decodeMetrics) RecordRPCMessage(direction string) {
	if m == nil {
		return
	}
	m.rpcMessages.WithLabelValues(direction).Inc()
}

func (m *decodeMetrics) RecordUnmatchedReply() {
	if m == nil {
		return
	}
	m.unmatchedReplies.Inc()
}

func (m *decodeMetrics) RecordCompoundOp(op string) {
	if m == nil {
		return
	}
	m.compoundOps.WithLabelValues(op).Inc()
}

func (m *decodeMetrics) ObserveState(flows, fragments, pendingCalls int) {
	if m == nil {
		return
	}
	m.activeFlows.Set(float64(flows))
	m.pendingFragments.Set(float64(fragments))
	m.pendingCalls.Set(float64(pendingCalls))
}
