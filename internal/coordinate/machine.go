package coordinate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dantte-lp/intentiond/internal/dispatch"
	"github.com/dantte-lp/intentiond/internal/ierr"
	"github.com/dantte-lp/intentiond/internal/model"
	"github.com/dantte-lp/intentiond/internal/session"
	"github.com/dantte-lp/intentiond/internal/softbus"
	"github.com/dantte-lp/intentiond/internal/wire"
)

// SessionOpenTimeout bounds the synchronous session-open wait: if the
// soft-bus peer does not answer a start negotiation within this window, the
// call fails with ErrTimedOut and the state stays FREE.
const SessionOpenTimeout = 5 * time.Second

// PeerSender is the subset of *softbus.Adapter the Machine needs to reach a
// peer by networkId. Declared here, at the point of use, so tests can
// supply a lightweight fake instead of standing up real TCP connections
// for every negotiation scenario.
type PeerSender interface {
	SendPacket(networkID string, frame []byte) error
}

// MetricsReporter receives coordination FSM and negotiation accounting
// events. Implemented by telemetry.Collector; a no-op reporter is used
// when no collector is configured.
type MetricsReporter interface {
	CoordinationTransition(from, to string)
	CoordinationNegotiation(networkID, result string)
}

type noopMetrics struct{}

func (noopMetrics) CoordinationTransition(string, string) {}

func (noopMetrics) CoordinationNegotiation(string, string) {}

// MachineOption configures optional Machine parameters.
type MachineOption func(*Machine)

// WithMetrics attaches a MetricsReporter to the machine. If mr is nil, the
// no-op reporter stays in place.
func WithMetrics(mr MetricsReporter) MachineOption {
	return func(m *Machine) {
		if mr != nil {
			m.metrics = mr
		}
	}
}

// command is one unit of work posted to the Machine's single goroutine,
// the same delegate-task-queue shape as internal/drag.Machine.
type command struct {
	run  func()
	done chan struct{}
}

// pendingStart tracks the in-flight start_cooperate negotiation awaiting a
// START_RESPONSE from the remote peer, generalizing wait_session_opened's
// condition-variable wait to a buffered result channel.
type pendingStart struct {
	remoteNetworkID string
	result          chan StartResponse
}

// Machine is the coordination state machine: a single goroutine owns
// CoordinationState and the in-flight negotiation bookkeeping, mirroring
// internal/drag.Machine's design. It implements softbus.Observer to
// consume peer protocol messages on MsgStart*/MsgStop* ids.
type Machine struct {
	logger     *slog.Logger
	dispatcher *dispatch.Dispatcher
	bus        PeerSender
	metrics    MetricsReporter

	localNetworkID string

	cmdCh chan command
	state atomic.Int32

	// Fields below are owned exclusively by the goroutine running Run.
	pending       *pendingStart
	requestor     *session.Session
	requestorPid  int32
	requestorUser int32
}

// verify interface compliance at compile time.
var _ softbus.Observer = (*Machine)(nil)

// NewMachine constructs a Machine in state FREE for the given local
// networkId. Run must be called to drive its command loop.
func NewMachine(logger *slog.Logger, disp *dispatch.Dispatcher, bus PeerSender, localNetworkID string, opts ...MachineOption) *Machine {
	m := &Machine{
		logger:         logger,
		dispatcher:     disp,
		bus:            bus,
		metrics:        noopMetrics{},
		localNetworkID: localNetworkID,
		cmdCh:          make(chan command, 8),
	}
	m.state.Store(int32(StateFree))
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current coordination state (lock-free read).
func (m *Machine) State() State { return State(m.state.Load()) }

// Run drives the command loop until ctx is cancelled.
func (m *Machine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-m.cmdCh:
			cmd.run()
			close(cmd.done)
		}
	}
}

func (m *Machine) post(ctx context.Context, fn func()) error {
	cmd := command{run: fn, done: make(chan struct{})}
	select {
	case m.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartCooperate negotiates a coordination session with remoteNetworkID,
// starting from state FREE. requestor is the local
// client session that will receive the eventual START event; pid/userData
// identify it in the EventPayload.
func (m *Machine) StartCooperate(ctx context.Context, remoteNetworkID, startInputDeviceID string, requestor *session.Session, pid, userData int32) (model.CoordinationMessage, error) {
	if remoteNetworkID == "" || startInputDeviceID == "" || remoteNetworkID == m.localNetworkID {
		return model.CoopDeviceError, fmt.Errorf("start cooperate: %w: invalid remote or device id", ierr.ErrInvalidParam)
	}

	var (
		result chan StartResponse
		busErr error
	)
	err := m.post(ctx, func() {
		if m.State() != StateFree {
			busErr = fmt.Errorf("start cooperate: %w", ierr.ErrBusy)
			return
		}

		result = make(chan StartResponse, 1)
		m.pending = &pendingStart{remoteNetworkID: remoteNetworkID, result: result}
		m.requestor = requestor
		m.requestorPid = pid
		m.requestorUser = userData

		frame, encErr := encode(MsgStartRequest, StartRequest{
			LocalNetworkID: m.localNetworkID,
			StartInputDhid: startInputDeviceID,
		})
		if encErr != nil {
			busErr = encErr
			return
		}
		if sendErr := m.bus.SendPacket(remoteNetworkID, frame); sendErr != nil {
			m.pending = nil
			busErr = sendErr
		}
	})
	if err != nil {
		return model.CoopSessionFail, err
	}
	if busErr != nil {
		m.metrics.CoordinationNegotiation(remoteNetworkID, model.CoopSessionFail.String())
		m.emitCoordination(model.CoopFail, requestor, pid, userData, remoteNetworkID)
		return model.CoopSessionFail, busErr
	}

	select {
	case resp := <-result:
		msg, finishErr := m.finishStartCooperate(remoteNetworkID, resp)
		m.metrics.CoordinationNegotiation(remoteNetworkID, msg.String())
		return msg, finishErr
	case <-time.After(SessionOpenTimeout):
		_ = m.post(context.Background(), func() { m.pending = nil })
		m.metrics.CoordinationNegotiation(remoteNetworkID, model.CoopSessionFail.String())
		m.emitCoordination(model.CoopFail, requestor, pid, userData, remoteNetworkID)
		return model.CoopSessionFail, fmt.Errorf("start cooperate: %w", ierr.ErrTimedOut)
	case <-ctx.Done():
		return model.CoopSessionFail, ctx.Err()
	}
}

// finishStartCooperate applies the FSM transition once the peer's
// START_RESPONSE has arrived and notifies the requesting client.
func (m *Machine) finishStartCooperate(remoteNetworkID string, resp StartResponse) (model.CoordinationMessage, error) {
	var (
		msg    model.CoordinationMessage
		reqErr error
	)
	_ = m.post(context.Background(), func() {
		m.pending = nil
		var ev Event
		if resp.IsSuccess {
			ev = EventPrepareAndStartOK
			msg = model.CoopSuccess
		} else {
			ev = EventStartFail
			msg = model.CoopFail
			reqErr = fmt.Errorf("start cooperate with %s: %w", remoteNetworkID, ierr.ErrException)
		}
		m.applyResult(ApplyEvent(m.State(), ev), remoteNetworkID)
	})
	return msg, reqErr
}

// StopCooperate ends an active coordination session, local-initiated.
// Valid from IN or OUT; a no-op (FREE, no error) if already FREE.
func (m *Machine) StopCooperate(ctx context.Context, networkID string) error {
	var retErr error
	err := m.post(ctx, func() {
		if m.State() == StateFree {
			return
		}

		frame, encErr := encode(MsgStopRequest, StopRequest{IsUnchained: true})
		if encErr == nil {
			if sendErr := m.bus.SendPacket(networkID, frame); sendErr != nil {
				m.logger.Warn("stop cooperate: peer notify failed",
					slog.String("network_id", networkID),
					slog.String("error", sendErr.Error()),
				)
			}
		}

		m.applyResult(ApplyEvent(m.State(), EventStop), networkID)
	})
	if err != nil {
		return err
	}
	return retErr
}

// OnKeyboardOnline handles a keyboard coming online mid-session: while
// OUT, this may advertise devices via process_start without changing the
// coordination state.
func (m *Machine) OnKeyboardOnline(ctx context.Context, dhid string) error {
	return m.post(ctx, func() {
		if m.State() != StateOut {
			return
		}
		m.applyResult(ApplyEvent(m.State(), EventKeyboardOnline), "")
		m.logger.Debug("keyboard online while coordinating", slog.String("dhid", dhid))
	})
}

// OnPacket implements softbus.Observer: it decodes coordination peer
// protocol messages and drives the FSM. Non-coordination message ids are
// left unconsumed so other observers (e.g. the drag package, if it ever
// grows a peer-protocol surface) may handle them.
func (m *Machine) OnPacket(networkID string, pkt wire.NetPacket) bool {
	switch pkt.MsgID {
	case MsgStartRequest:
		m.handleStartRequest(networkID, pkt.Payload)
	case MsgStartResponse:
		m.handleStartResponse(pkt.Payload)
	case MsgStopRequest:
		m.handleStopRequest(networkID, pkt.Payload)
	case MsgStopResponse:
		// No local state to update: StopCooperate does not wait for this
		// response; only the start path waits synchronously for its
		// response.
	case MsgUnchainedNotification:
		m.handleUnchainedNotification(networkID, pkt.Payload)
	case MsgStartOtherResult:
		m.handleStartOtherResult(pkt.Payload)
	case MsgFilterAddedNotify:
		m.logger.Debug("coordinate: peer installed its input filter",
			slog.String("network_id", networkID))
	default:
		return false
	}
	return true
}

// handleUnchainedNotification collapses an active coordination with the
// announcing peer back to FREE. Unlike STOP_REQUEST there is no response
// frame; the peer has already torn its side down.
func (m *Machine) handleUnchainedNotification(networkID string, payload []byte) {
	var note UnchainedNotification
	if err := json.Unmarshal(payload, &note); err != nil {
		m.logger.Warn("coordinate: malformed UNCHAINED_NOTIFICATION", slog.String("error", err.Error()))
		return
	}

	_ = m.post(context.Background(), func() {
		if m.State() == StateFree {
			return
		}
		m.applyResult(ApplyEvent(m.State(), EventStop), networkID)
	})
}

// handleStartOtherResult records the outcome of a negotiation relayed
// through a third device. Only the origin is of interest here; the relay
// itself carries no local state.
func (m *Machine) handleStartOtherResult(payload []byte) {
	var res StartOtherResult
	if err := json.Unmarshal(payload, &res); err != nil {
		m.logger.Warn("coordinate: malformed START_OTHER_RESULT", slog.String("error", err.Error()))
		return
	}
	m.logger.Info("coordinate: start relayed via another device",
		slog.String("origin_network_id", res.OriginNetworkID))
}

func (m *Machine) handleStartRequest(networkID string, payload []byte) {
	var req StartRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		m.logger.Warn("coordinate: malformed START_REQUEST", slog.String("error", err.Error()))
		return
	}

	_ = m.post(context.Background(), func() {
		accept := m.State() == StateFree
		if accept {
			m.applyResult(ApplyEvent(m.State(), EventRemoteStartAccepted), networkID)
		}

		frame, err := encode(MsgStartResponse, StartResponse{IsSuccess: accept, StartDhid: req.StartInputDhid})
		if err != nil {
			return
		}
		if sendErr := m.bus.SendPacket(networkID, frame); sendErr != nil {
			m.logger.Warn("coordinate: START_RESPONSE delivery failed",
				slog.String("network_id", networkID), slog.String("error", sendErr.Error()))
		}
	})
}

func (m *Machine) handleStartResponse(payload []byte) {
	var resp StartResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		m.logger.Warn("coordinate: malformed START_RESPONSE", slog.String("error", err.Error()))
		return
	}

	_ = m.post(context.Background(), func() {
		if m.pending == nil {
			return
		}
		select {
		case m.pending.result <- resp:
		default:
		}
	})
}

func (m *Machine) handleStopRequest(networkID string, payload []byte) {
	var req StopRequest
	_ = json.Unmarshal(payload, &req)

	_ = m.post(context.Background(), func() {
		m.applyResult(ApplyEvent(m.State(), EventStop), networkID)

		frame, err := encode(MsgStopResponse, StopResponse{IsSuccess: true})
		if err != nil {
			return
		}
		if sendErr := m.bus.SendPacket(networkID, frame); sendErr != nil {
			m.logger.Warn("coordinate: STOP_RESPONSE delivery failed",
				slog.String("network_id", networkID), slog.String("error", sendErr.Error()))
		}
	})
}

// OnShutdown implements softbus.Observer: an active IN/OUT coordination
// with the now-disconnected peer collapses to FREE.
func (m *Machine) OnShutdown(networkID string) {
	_ = m.post(context.Background(), func() {
		if m.State() == StateFree {
			return
		}
		m.applyResult(ApplyEvent(m.State(), EventSoftBusShutdown), networkID)
	})
}

// applyResult stores the FSM's new state (if changed) and executes its
// actions, notifying the local requesting client via the dispatcher.
func (m *Machine) applyResult(result FSMResult, networkID string) {
	if result.Changed {
		m.state.Store(int32(result.NewState))
		m.metrics.CoordinationTransition(result.OldState.String(), result.NewState.String())
	}
	for _, action := range result.Actions {
		m.emitCoordination(messageForAction(action), m.requestor, m.requestorPid, m.requestorUser, networkID)
	}
}

// emitCoordination builds and emits a COORDINATION_STATE event payload. req
// may be nil (e.g. a peer-initiated transition with no local requestor);
// the dispatcher fan-out still reaches every registered listener.
func (m *Machine) emitCoordination(msg model.CoordinationMessage, req *session.Session, pid, userData int32, networkID string) {
	payload, err := json.Marshal(EventPayload{
		Pid:       pid,
		UserData:  userData,
		NetworkID: networkID,
		Message:   msg.String(),
		State:     m.State().String(),
	})
	if err != nil {
		return
	}
	m.dispatcher.Emit(wire.EventCoordinationState, wire.MsgStopCoordination, payload)

	if req != nil {
		if err := req.SendPacket(wire.MsgStartCoordination, payload); err != nil {
			m.logger.Warn("coordination result delivery failed", slog.String("error", err.Error()))
		}
	}
}
