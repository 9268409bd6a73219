// Package coordinate implements the coordination (keyboard-and-mouse
// sharing) state machine: a three-state {FREE, IN, OUT} negotiation with
// a single remote peer device, driven by local client calls and soft-bus
// peer protocol messages alike.
package coordinate

import "github.com/dantte-lp/intentiond/internal/model"

// State is one of the three coordination states.
type State uint8

const (
	StateFree State = iota
	StateIn
	StateOut
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "FREE"
	case StateIn:
		return "IN"
	case StateOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Event is one coordination transition trigger.
type Event uint8

const (
	// EventPrepareAndStartOK fires when a local start_cooperate negotiation
	// with the peer completes successfully: this device becomes the source
	// of the shared input.
	EventPrepareAndStartOK Event = iota
	// EventStartFail fires on a soft-bus NACK or local error during
	// start_cooperate; the state remains FREE.
	EventStartFail
	// EventRemoteStartAccepted fires when this device accepts an incoming
	// START_REQUEST from a peer.
	EventRemoteStartAccepted
	// EventStop fires on a local stop_input_device_cooperate call or an
	// inbound STOP_REQUEST.
	EventStop
	// EventSoftBusShutdown fires when the soft-bus adapter reports the peer
	// session closed out from under an active IN/OUT coordination.
	EventSoftBusShutdown
	// EventKeyboardOnline fires on on_keyboard_online while OUT; it does not
	// change state but may trigger ActionProcessStart.
	EventKeyboardOnline
)

// Action is a side effect to execute after a transition lands.
type Action uint8

const (
	ActionEmitCoopFail Action = iota
	ActionEmitCoopUnchained
	ActionProcessStart
	ActionEmitCoopSuccess
)

type stateEvent struct {
	state State
	event Event
}

type transition struct {
	newState State
	actions  []Action
}

// FSMResult is the outcome of applying one Event to the coordination state
// machine.
type FSMResult struct {
	OldState State
	NewState State
	Actions  []Action
	Changed  bool
}

//nolint:gochecknoglobals
var coordFSMTable = map[stateEvent]transition{
	{StateFree, EventPrepareAndStartOK}: {newState: StateOut, actions: []Action{ActionEmitCoopSuccess}},
	{StateFree, EventStartFail}:         {newState: StateFree, actions: []Action{ActionEmitCoopFail}},

	{StateFree, EventRemoteStartAccepted}: {newState: StateIn},

	{StateIn, EventStop}:             {newState: StateFree, actions: []Action{ActionEmitCoopUnchained}},
	{StateIn, EventSoftBusShutdown}:  {newState: StateFree, actions: []Action{ActionEmitCoopUnchained}},
	{StateOut, EventStop}:            {newState: StateFree, actions: []Action{ActionEmitCoopUnchained}},
	{StateOut, EventSoftBusShutdown}: {newState: StateFree, actions: []Action{ActionEmitCoopUnchained}},

	{StateOut, EventKeyboardOnline}: {newState: StateOut, actions: []Action{ActionProcessStart}},
}

// ApplyEvent is the pure transition function: given the current state and an
// incoming event, it returns the new state and the actions to execute. Pairs
// absent from the table leave the state unchanged with no actions, the
// same convention as internal/drag's ApplyDragEvent.
func ApplyEvent(current State, event Event) FSMResult {
	t, ok := coordFSMTable[stateEvent{current, event}]
	if !ok {
		return FSMResult{OldState: current, NewState: current}
	}
	return FSMResult{
		OldState: current,
		NewState: t.newState,
		Actions:  t.actions,
		Changed:  t.newState != current,
	}
}

// messageForAction maps an FSM action to the CoordinationMessage value
// reported to local listeners.
func messageForAction(a Action) model.CoordinationMessage {
	switch a {
	case ActionEmitCoopFail:
		return model.CoopFail
	case ActionEmitCoopUnchained:
		return model.CoopUnchained
	case ActionEmitCoopSuccess:
		return model.CoopSuccess
	default:
		return model.CoopSuccess
	}
}
