package ipc

import "github.com/dantte-lp/intentiond/internal/model"

// Request/response payloads exchanged over the local-IPC socket for the
// operations the Router handles, JSON-encoded the same way
// internal/drag.ResultPayload and internal/coordinate.EventPayload are.

// startCoordinationRequest is the payload for wire.MsgStartCoordination.
type startCoordinationRequest struct {
	RemoteNetworkID string `json:"remote_network_id"`
	StartDeviceID   string `json:"start_device_id"`
}

// startCoordinationResponse replies to a MsgStartCoordination request.
type startCoordinationResponse struct {
	Message string `json:"message"`
}

// stopCoordinationRequest is the payload for wire.MsgStopCoordination.
type stopCoordinationRequest struct {
	NetworkID string `json:"network_id"`
}

// coordinationStatePayload replies to wire.MsgGetCoordinationState.
type coordinationStatePayload struct {
	State string `json:"state"`
}

// startDragRequest is the payload for wire.MsgStartDrag.
type startDragRequest struct {
	ShadowPixmap []byte            `json:"shadow_pixmap"`
	ShadowOffset shadowOffsetFields `json:"shadow_offset"`
	Buffer       []byte            `json:"buffer"`
	UDKey        string            `json:"ud_key"`
	ExtraInfo    string            `json:"extra_info"`
	FilterInfo   string            `json:"filter_info"`
	Summaries    map[string]int64  `json:"summaries"`
	SourceType   string            `json:"source_type"`
	DragNum      int32             `json:"drag_num"`
	PointerID    int32             `json:"pointer_id"`
	DisplayID    int32             `json:"display_id"`
	DisplayX     int32             `json:"display_x"`
	DisplayY     int32             `json:"display_y"`
	MainWindow   int32             `json:"main_window"`
}

type shadowOffsetFields struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

// shadowOffsetPayload replies to wire.MsgGetShadowOffset.
type shadowOffsetPayload struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

// stopDragRequest is the payload for wire.MsgStopDrag sent client->daemon
// (the reverse direction of drag.ResultPayload, which the daemon sends
// back to the originating session once the drag settles).
type stopDragRequest struct {
	Result             string `json:"result"`
	HasCustomAnimation bool   `json:"has_custom_animation"`
	MainWindow         int32  `json:"main_window"`
	DragBehavior       string `json:"drag_behavior"`
}

// dragTargetPidPayload replies to wire.MsgGetDragTargetPid.
type dragTargetPidPayload struct {
	TargetPid int32 `json:"target_pid"`
}

// dragTargetUDKeyPayload replies to wire.MsgGetDragTargetUdKey.
type dragTargetUDKeyPayload struct {
	UDKey string `json:"ud_key"`
}

// updateDragStyleRequest is the payload for wire.MsgUpdatedDragStyle.
type updateDragStyleRequest struct {
	Style     string `json:"style"`
	TargetPid int32  `json:"target_pid"`
	TargetTid int32  `json:"target_tid"`
	EventID   int64  `json:"event_id"`
}

// setDragWindowVisibleRequest is the payload for wire.MsgSetDragWindowVisible.
type setDragWindowVisibleRequest struct {
	Visible bool `json:"visible"`
	Force   bool `json:"force"`
}

// updateShadowPicRequest is the payload for wire.MsgUpdateShadowPic.
type updateShadowPicRequest struct {
	Pixmap []byte             `json:"pixmap"`
	Offset shadowOffsetFields `json:"offset"`
}

// allocSocketFDPayload replies to wire.MsgAllocSocketFD for a client that
// already holds a live session.
type allocSocketFDPayload struct {
	Fd        int    `json:"fd"`
	TokenType string `json:"token_type"`
}

// errorPayload is returned in place of a success payload when a request
// fails, so clients can distinguish an acked failure from a dropped
// connection.
type errorPayload struct {
	Error string `json:"error"`
}

func parseSourceType(s string) model.SourceType {
	if s == "TOUCHSCREEN" {
		return model.SourceTouchscreen
	}
	return model.SourceMouse
}

func parseDragResult(s string) model.DragResult {
	switch s {
	case "SUCCESS":
		return model.DragResultSuccess
	case "FAIL":
		return model.DragResultFail
	case "CANCEL":
		return model.DragResultCancel
	default:
		return model.DragResultException
	}
}

func parseDragBehavior(s string) model.DragBehavior {
	if s == "COPY" {
		return model.DragBehaviorCopy
	}
	return model.DragBehaviorMove
}

func parseDragCursorStyle(s string) model.DragCursorStyle {
	switch s {
	case "FORBIDDEN":
		return model.StyleForbidden
	case "COPY":
		return model.StyleCopy
	case "MOVE":
		return model.StyleMove
	default:
		return model.StyleDefault
	}
}
