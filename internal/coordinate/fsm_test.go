package coordinate_test

import (
	"testing"

	"github.com/dantte-lp/intentiond/internal/coordinate"
)

func TestApplyEventFreeToOutOnPrepareAndStartOK(t *testing.T) {
	t.Parallel()

	result := coordinate.ApplyEvent(coordinate.StateFree, coordinate.EventPrepareAndStartOK)
	if !result.Changed || result.NewState != coordinate.StateOut {
		t.Fatalf("ApplyEvent(FREE, PrepareAndStartOK) = %+v, want change to OUT", result)
	}
	if len(result.Actions) != 1 || result.Actions[0] != coordinate.ActionEmitCoopSuccess {
		t.Fatalf("ApplyEvent(FREE, PrepareAndStartOK).Actions = %v, want [ActionEmitCoopSuccess]", result.Actions)
	}
}

func TestApplyEventStartFailStaysFree(t *testing.T) {
	t.Parallel()

	result := coordinate.ApplyEvent(coordinate.StateFree, coordinate.EventStartFail)
	if result.Changed || result.NewState != coordinate.StateFree {
		t.Fatalf("ApplyEvent(FREE, StartFail) = %+v, want unchanged FREE", result)
	}
	if len(result.Actions) != 1 || result.Actions[0] != coordinate.ActionEmitCoopFail {
		t.Fatalf("ApplyEvent(FREE, StartFail).Actions = %v, want [ActionEmitCoopFail]", result.Actions)
	}
}

func TestApplyEventRemoteStartAcceptedEntersIn(t *testing.T) {
	t.Parallel()

	result := coordinate.ApplyEvent(coordinate.StateFree, coordinate.EventRemoteStartAccepted)
	if !result.Changed || result.NewState != coordinate.StateIn {
		t.Fatalf("ApplyEvent(FREE, RemoteStartAccepted) = %+v, want change to IN", result)
	}
}

func TestApplyEventStopFromInAndOutReturnsFree(t *testing.T) {
	t.Parallel()

	for _, start := range []coordinate.State{coordinate.StateIn, coordinate.StateOut} {
		result := coordinate.ApplyEvent(start, coordinate.EventStop)
		if !result.Changed || result.NewState != coordinate.StateFree {
			t.Fatalf("ApplyEvent(%v, Stop) = %+v, want change to FREE", start, result)
		}
		if len(result.Actions) != 1 || result.Actions[0] != coordinate.ActionEmitCoopUnchained {
			t.Fatalf("ApplyEvent(%v, Stop).Actions = %v, want [ActionEmitCoopUnchained]", start, result.Actions)
		}
	}
}

func TestApplyEventSoftBusShutdownFromInAndOutReturnsFree(t *testing.T) {
	t.Parallel()

	for _, start := range []coordinate.State{coordinate.StateIn, coordinate.StateOut} {
		result := coordinate.ApplyEvent(start, coordinate.EventSoftBusShutdown)
		if !result.Changed || result.NewState != coordinate.StateFree {
			t.Fatalf("ApplyEvent(%v, SoftBusShutdown) = %+v, want change to FREE", start, result)
		}
	}
}

func TestApplyEventKeyboardOnlineStaysOutWithProcessStart(t *testing.T) {
	t.Parallel()

	result := coordinate.ApplyEvent(coordinate.StateOut, coordinate.EventKeyboardOnline)
	if result.Changed || result.NewState != coordinate.StateOut {
		t.Fatalf("ApplyEvent(OUT, KeyboardOnline) = %+v, want unchanged OUT", result)
	}
	if len(result.Actions) != 1 || result.Actions[0] != coordinate.ActionProcessStart {
		t.Fatalf("ApplyEvent(OUT, KeyboardOnline).Actions = %v, want [ActionProcessStart]", result.Actions)
	}
}

func TestApplyEventUnlistedPairIsNoop(t *testing.T) {
	t.Parallel()

	result := coordinate.ApplyEvent(coordinate.StateIn, coordinate.EventPrepareAndStartOK)
	if result.Changed || result.NewState != coordinate.StateIn {
		t.Fatalf("ApplyEvent(IN, PrepareAndStartOK) = %+v, want unchanged IN (unlisted pair)", result)
	}
	if len(result.Actions) != 0 {
		t.Fatalf("ApplyEvent(IN, PrepareAndStartOK).Actions = %v, want none", result.Actions)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	cases := map[coordinate.State]string{
		coordinate.StateFree: "FREE",
		coordinate.StateIn:   "IN",
		coordinate.StateOut:  "OUT",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
