package drag_test

import (
	"testing"

	"github.com/dantte-lp/intentiond/internal/drag"
)

func TestApplyDragEventTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		state     drag.State
		event     drag.Event
		wantState drag.State
		wantChg   bool
	}{
		{"stop starts", drag.StateStop, drag.EventStartDrag, drag.StateStart, true},
		{"start moves to dragging", drag.StateStart, drag.EventPointerPullMove, drag.StateMotionDragging, true},
		{"dragging self loop", drag.StateMotionDragging, drag.EventPointerPullMove, drag.StateMotionDragging, false},
		{"start success stops", drag.StateStart, drag.EventStopSuccess, drag.StateStop, true},
		{"dragging cancel lands cancel", drag.StateMotionDragging, drag.EventStopCancel, drag.StateCancel, true},
		{"start exception lands error", drag.StateStart, drag.EventStopException, drag.StateError, true},
		{"cancel resets to stop", drag.StateCancel, drag.EventReset, drag.StateStop, true},
		{"error resets to stop", drag.StateError, drag.EventReset, drag.StateStop, true},
		{"stop ignores pull move", drag.StateStop, drag.EventPointerPullMove, drag.StateStop, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := drag.ApplyDragEvent(tc.state, tc.event)
			if got.NewState != tc.wantState || got.Changed != tc.wantChg {
				t.Fatalf("ApplyDragEvent(%v,%v) = {%v,%v}, want {%v,%v}",
					tc.state, tc.event, got.NewState, got.Changed, tc.wantState, tc.wantChg)
			}
		})
	}
}

func TestApplyDragEventUnknownPairIgnored(t *testing.T) {
	t.Parallel()

	got := drag.ApplyDragEvent(drag.StateStop, drag.EventStopSuccess)
	if got.Changed || got.NewState != drag.StateStop || len(got.Actions) != 0 {
		t.Fatalf("unknown pair should be ignored, got %+v", got)
	}
}
