// File: internal/metrics/metrics.go
// Package metrics implements api.Counters on top of Prometheus
// collectors, grounded on the pack's Prometheus usage in
// Aidin1998-finalex's services/fiat/cmd/fiat-gateway/main.go
// (NewCounterVec/NewGaugeVec + MustRegister at construction, labelled
// WithLabelValues call sites).
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hioload/fixgw/api"
)

// Sink is the Prometheus-backed api.Counters implementation. One Sink
// is shared across every connection in the process; per-connection
// identity is carried as a label rather than a distinct collector, to
// keep cardinality bounded under churn.
type Sink struct {
	bytesInBuffer          *prometheus.GaugeVec
	invalidLibraryAttempts *prometheus.CounterVec
	slowStatusTransitions  *prometheus.CounterVec
	disconnects            *prometheus.CounterVec
}

// NewSink constructs and registers the gateway's counters against reg.
// Passing prometheus.NewRegistry() (rather than the global default
// registry) keeps repeated construction in tests collision-free.
func NewSink(reg prometheus.Registerer) *Sink {
	s := &Sink{
		bytesInBuffer: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fixgw",
			Subsystem: "sender",
			Name:      "bytes_in_buffer",
			Help:      "Bytes currently held in a connection's active reattempt buffer.",
		}, []string{"connection_id"}),
		invalidLibraryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixgw",
			Subsystem: "sender",
			Name:      "invalid_library_attempts_total",
			Help:      "Outbound submissions dropped for a mismatched library id.",
		}, []string{"connection_id"}),
		slowStatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixgw",
			Subsystem: "sender",
			Name:      "slow_status_transitions_total",
			Help:      "Slow/not-slow status transitions published by a connection.",
		}, []string{"connection_id", "slow"}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixgw",
			Subsystem: "sender",
			Name:      "disconnects_total",
			Help:      "Disconnects, labelled by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(s.bytesInBuffer, s.invalidLibraryAttempts, s.slowStatusTransitions, s.disconnects)
	return s
}

func connLabel(connectionID uint64) string {
	return strconv.FormatUint(connectionID, 10)
}

func (s *Sink) SetBytesInBuffer(connectionID uint64, n int64) {
	s.bytesInBuffer.WithLabelValues(connLabel(connectionID)).Set(float64(n))
}

func (s *Sink) IncInvalidLibraryAttempts(connectionID uint64) {
	s.invalidLibraryAttempts.WithLabelValues(connLabel(connectionID)).Inc()
}

func (s *Sink) OnSlowStatus(connectionID uint64, slow bool) {
	s.slowStatusTransitions.WithLabelValues(connLabel(connectionID), strconv.FormatBool(slow)).Inc()
}

func (s *Sink) OnDisconnect(connectionID uint64, reason api.DisconnectReason) {
	s.disconnects.WithLabelValues(reason.String()).Inc()
	s.bytesInBuffer.DeleteLabelValues(connLabel(connectionID))
	s.invalidLibraryAttempts.DeleteLabelValues(connLabel(connectionID))
}
