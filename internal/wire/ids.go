package wire

// MessageID identifies the payload carried by a NetPacket across the local
// IPC socket. Values are stable and allocated once; never renumber an
// existing id.
type MessageID uint16

// Allocated message ids, stable across releases.
const (
	MsgDeviceStatusSubscribe   MessageID = 0
	MsgDeviceStatusUnsubscribe MessageID = 1
	MsgDeviceStatusGetCache    MessageID = 2

	MsgRegisterCoordinationMonitor   MessageID = 10
	MsgUnregisterCoordinationMonitor MessageID = 11
	MsgPrepareCoordination           MessageID = 12
	MsgUnprepareCoordination         MessageID = 13
	MsgStartCoordination             MessageID = 14
	MsgStopCoordination              MessageID = 15
	MsgGetCoordinationState          MessageID = 16

	MsgUpdatedDragStyle      MessageID = 20
	MsgStartDrag             MessageID = 21
	MsgStopDrag              MessageID = 22
	MsgGetDragTargetPid      MessageID = 23
	MsgGetDragTargetUdKey    MessageID = 24
	MsgRegisterDragMonitor   MessageID = 25
	MsgUnregisterDragMonitor MessageID = 26
	MsgSetDragWindowVisible  MessageID = 27
	MsgGetShadowOffset       MessageID = 28
	MsgUpdateShadowPic       MessageID = 29

	MsgAllocSocketFD MessageID = 40
)

// Event types carried by the listener registry (internal/dispatch), not
// wire message ids -- these label outbound notification packets.
type EventType int

const (
	EventCoordinationState EventType = iota
	EventDragState
	EventDragStyle
	EventThumbnailDrawStart
	EventThumbnailDrawEnd
)

func (e EventType) String() string {
	switch e {
	case EventCoordinationState:
		return "COORDINATION_STATE"
	case EventDragState:
		return "DRAG_STATE"
	case EventDragStyle:
		return "DRAG_STYLE"
	case EventThumbnailDrawStart:
		return "THUMBNAIL_DRAW_START"
	case EventThumbnailDrawEnd:
		return "THUMBNAIL_DRAW_END"
	default:
		return "UNKNOWN"
	}
}
