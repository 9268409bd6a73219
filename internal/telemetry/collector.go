// Package telemetry collects Prometheus metrics for the session, drag, and
// coordination subsystems of the cross-device interaction service.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

const namespace = "intentiond"

// Label names shared across subsystems.
const (
	labelProgram   = "program_name"
	labelTokenType = "token_type"
	labelFromState = "from_state"
	labelToState   = "to_state"
	labelNetworkID = "network_id"
	labelResult    = "result"
)

// Collector holds every Prometheus metric exported by the daemon.
//
//   - Session gauges/counters track the local IPC session server.
//   - Drag counters/histogram track drag lifecycle outcomes and duration.
//   - Coordination counters track negotiation outcomes and state flaps.
//   - SoftBus counters track peer transport health.
type Collector struct {
	// Sessions tracks the number of currently connected local IPC clients.
	Sessions *prometheus.GaugeVec

	// SessionPacketsReceived counts decoded NetPackets per local client.
	SessionPacketsReceived *prometheus.CounterVec

	// SessionPacketsDropped counts packets dropped due to a full receive
	// buffer or a corrupted stream that forced the session closed.
	SessionPacketsDropped *prometheus.CounterVec

	// DragsStarted counts start_drag calls that passed validation.
	DragsStarted prometheus.Counter

	// DragsCompleted counts stop_drag calls, labeled by outcome
	// (SUCCESS/FAIL/CANCEL/EXCEPTION).
	DragsCompleted *prometheus.CounterVec

	// DragDurationSeconds observes the wall-clock time between start_drag
	// and stop_drag.
	DragDurationSeconds prometheus.Histogram

	// CoordinationStateTransitions counts coordination FSM transitions,
	// labeled by old and new state (e.g. FREE->OUT triggering a peer
	// handoff, useful for alerting on flapping negotiations).
	CoordinationStateTransitions *prometheus.CounterVec

	// CoordinationNegotiations counts start_cooperate attempts, labeled by
	// peer networkId and outcome.
	CoordinationNegotiations *prometheus.CounterVec

	// SoftBusPacketsSent counts frames written to a peer session.
	SoftBusPacketsSent *prometheus.CounterVec

	// SoftBusPacketsDropped counts frames that failed to send or were
	// rejected as corrupted on receipt, labeled by peer networkId.
	SoftBusPacketsDropped *prometheus.CounterVec
}

// NewCollector creates a Collector with every metric registered against
// reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Sessions,
		c.SessionPacketsReceived,
		c.SessionPacketsDropped,
		c.DragsStarted,
		c.DragsCompleted,
		c.DragDurationSeconds,
		c.CoordinationStateTransitions,
		c.CoordinationNegotiations,
		c.SoftBusPacketsSent,
		c.SoftBusPacketsDropped,
	)

	return c
}

func newMetrics() *Collector {
	sessionLabels := []string{labelProgram, labelTokenType}

	return &Collector{
		Sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of currently connected local IPC clients.",
		}, sessionLabels),

		SessionPacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "packets_received_total",
			Help:      "Total NetPackets decoded from local IPC clients.",
		}, sessionLabels),

		SessionPacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "packets_dropped_total",
			Help:      "Total packets dropped due to a full receive buffer or corrupted stream.",
		}, sessionLabels),

		DragsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "drag",
			Name:      "started_total",
			Help:      "Total start_drag calls that passed validation.",
		}),

		DragsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "drag",
			Name:      "completed_total",
			Help:      "Total stop_drag calls, labeled by result.",
		}, []string{labelResult}),

		DragDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "drag",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration from start_drag to stop_drag.",
			Buckets:   prometheus.DefBuckets,
		}),

		CoordinationStateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordination",
			Name:      "state_transitions_total",
			Help:      "Total coordination FSM state transitions.",
		}, []string{labelFromState, labelToState}),

		CoordinationNegotiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordination",
			Name:      "negotiations_total",
			Help:      "Total start_cooperate attempts, labeled by peer and outcome.",
		}, []string{labelNetworkID, labelResult}),

		SoftBusPacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "softbus",
			Name:      "packets_sent_total",
			Help:      "Total frames written to a peer session.",
		}, []string{labelNetworkID}),

		SoftBusPacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "softbus",
			Name:      "packets_dropped_total",
			Help:      "Total frames that failed to send or were rejected as corrupted on receipt.",
		}, []string{labelNetworkID}),
	}
}

// RegisterSession increments the active session gauge.
func (c *Collector) RegisterSession(program, tokenType string) {
	c.Sessions.WithLabelValues(program, tokenType).Inc()
}

// UnregisterSession decrements the active session gauge.
func (c *Collector) UnregisterSession(program, tokenType string) {
	c.Sessions.WithLabelValues(program, tokenType).Dec()
}

// SessionPacketReceived counts one decoded NetPacket from a local client.
func (c *Collector) SessionPacketReceived(program, tokenType string) {
	c.SessionPacketsReceived.WithLabelValues(program, tokenType).Inc()
}

// SessionPacketDropped counts one dropped/rejected local client packet.
func (c *Collector) SessionPacketDropped(program, tokenType string) {
	c.SessionPacketsDropped.WithLabelValues(program, tokenType).Inc()
}

// DragStarted counts one start_drag call that passed validation.
func (c *Collector) DragStarted() {
	c.DragsStarted.Inc()
}

// DragCompleted counts one stop_drag outcome and observes the drag's
// wall-clock duration.
func (c *Collector) DragCompleted(result string, seconds float64) {
	c.DragsCompleted.WithLabelValues(result).Inc()
	c.DragDurationSeconds.Observe(seconds)
}

// CoordinationTransition increments the coordination state transition
// counter.
func (c *Collector) CoordinationTransition(from, to string) {
	c.CoordinationStateTransitions.WithLabelValues(from, to).Inc()
}

// CoordinationNegotiation counts one start_cooperate attempt and its
// outcome.
func (c *Collector) CoordinationNegotiation(networkID, result string) {
	c.CoordinationNegotiations.WithLabelValues(networkID, result).Inc()
}

// SoftBusPacketSent counts one frame written to a peer session.
func (c *Collector) SoftBusPacketSent(networkID string) {
	c.SoftBusPacketsSent.WithLabelValues(networkID).Inc()
}

// SoftBusPacketDropped counts one frame that failed to send or was
// rejected as corrupted on receipt.
func (c *Collector) SoftBusPacketDropped(networkID string) {
	c.SoftBusPacketsDropped.WithLabelValues(networkID).Inc()
}
