package control

// Plain request/response structs for the operator control plane, JSON-
// marshaled via jsonCodec. These mirror (a thin operator-facing subset of)
// the local IPC surface in internal/wire/ids.go, exposed over ConnectRPC
// for intentionctl instead of the soft-bus/local-socket wire format.

// StartCooperateRequest asks the daemon to begin coordination with a peer.
type StartCooperateRequest struct {
	RemoteNetworkID string `json:"remote_network_id"`
	StartDeviceID   string `json:"start_device_id"`
}

// StartCooperateResponse reports the outcome of a StartCooperate call.
type StartCooperateResponse struct {
	Message string `json:"message"`
	State   string `json:"state"`
}

// StopCooperateRequest asks the daemon to end an active coordination.
type StopCooperateRequest struct {
	NetworkID string `json:"network_id"`
}

// StopCooperateResponse is StopCooperate's (empty) reply.
type StopCooperateResponse struct{}

// ForceCancelDragRequest asks the daemon to cancel the active drag on the
// client's behalf, e.g. when the owning application has wedged.
type ForceCancelDragRequest struct{}

// ForceCancelDragResponse reports the drag state after the cancel.
type ForceCancelDragResponse struct {
	State string `json:"state"`
}

// GetCoordinationStateRequest has no fields; it reads the singleton state.
type GetCoordinationStateRequest struct{}

// GetCoordinationStateResponse reports the current coordination state.
type GetCoordinationStateResponse struct {
	State string `json:"state"`
}

// GetDragStateRequest has no fields; it reads the singleton drag state.
type GetDragStateRequest struct{}

// GetDragStateResponse reports the current drag state and, if a drag is
// active, its target pid and udKey.
type GetDragStateResponse struct {
	State     string `json:"state"`
	TargetPid int32  `json:"target_pid"`
	UDKey     string `json:"ud_key"`
}

// ListSessionsRequest has no fields; it lists every connected local client.
type ListSessionsRequest struct{}

// SessionInfo describes one connected local IPC client.
type SessionInfo struct {
	Fd          int    `json:"fd"`
	Pid         int32  `json:"pid"`
	Uid         int32  `json:"uid"`
	ProgramName string `json:"program_name"`
	TokenType   string `json:"token_type"`
}

// ListSessionsResponse is ListSessions's reply.
type ListSessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}
