package drag

import "github.com/dantte-lp/intentiond/internal/model"

// PointerAction classifies a pointer event delivered to the Machine's
// pointer pipeline.
type PointerAction int

const (
	PointerActionMove PointerAction = iota
	PointerActionPullMove
	PointerActionPullUp
)

// PointerEvent is one event from the registered pointer interceptor or
// monitor, filtered upstream by source capabilities (POINTER for mouse,
// TOUCH union TABLET_TOOL for touchscreen).
type PointerEvent struct {
	Action       PointerAction
	SourceType   model.SourceType
	DisplayID    int32
	X, Y         int32
	ActionTimeNs int64
}

// KeyAction is press or release, carried by KeyEvent.
type KeyAction int

const (
	KeyPress KeyAction = iota
	KeyRelease
)

// Ctrl key codes recognized by the Ctrl-to-copy keyboard pipeline.
const (
	KeycodeCtrlLeft  int32 = 2072
	KeycodeCtrlRight int32 = 2076
)

// KeyEvent is one event from the registered key-event monitor.
type KeyEvent struct {
	Code   int32
	Action KeyAction
}

// StatePayload is the local-IPC notification payload for DRAG_STATE.
type StatePayload struct {
	State string `json:"state"`
}

// StylePayload is the local-IPC notification payload for DRAG_STYLE.
type StylePayload struct {
	Style string `json:"style"`
}

// ResultPayload is the local-IPC notification payload for
// DRAG_NOTIFY_RESULT, delivered directly to the session that called
// start_drag.
type ResultPayload struct {
	DisplayX  int32  `json:"display_x"`
	DisplayY  int32  `json:"display_y"`
	Result    string `json:"result"`
	TargetPid int32  `json:"target_pid"`
	Behavior  string `json:"behavior"`
}
