// Package ierr defines the error taxonomy shared by every subsystem of the
// cross-device interaction service, and the translation from internal
// sentinel errors to the wire-level codes exposed at the IPC/soft-bus
// boundary.
package ierr

import "errors"

// Code classifies an error for reporting across the local IPC and
// control-plane boundaries. Internal packages return wrapped sentinel
// errors; Code is resolved only at the edge via CodeOf.
type Code int

const (
	// CodeOK indicates success; CodeOf never returns this for a non-nil error.
	CodeOK Code = iota
	// CodeInvalidParam indicates an argument constraint violation (length,
	// enum range, empty required field).
	CodeInvalidParam
	// CodeNotConnected indicates no peer session entry for a networkId.
	CodeNotConnected
	// CodeTooLarge indicates a packet exceeds MaxPacketBufSize.
	CodeTooLarge
	// CodeBusy indicates the operation requires a state the machine is not in.
	CodeBusy
	// CodeTimedOut indicates a wait or timer expired.
	CodeTimedOut
	// CodeMsgSendFail indicates the underlying socket send failed.
	CodeMsgSendFail
	// CodeCorruptedStream indicates the packet decoder detected a negative
	// or oversized length.
	CodeCorruptedStream
	// CodeException is the catch-all, surfaced as DragResult EXCEPTION.
	CodeException
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeInvalidParam:
		return "INVALID_PARAM"
	case CodeNotConnected:
		return "NOT_CONNECTED"
	case CodeTooLarge:
		return "TOO_LARGE"
	case CodeBusy:
		return "BUSY"
	case CodeTimedOut:
		return "TIMED_OUT"
	case CodeMsgSendFail:
		return "MSG_SEND_FAIL"
	case CodeCorruptedStream:
		return "CORRUPTED_STREAM"
	case CodeException:
		return "EXCEPTION"
	default:
		return "UNKNOWN"
	}
}

// Sentinel errors. Packages wrap these with fmt.Errorf("...: %w", ...) at
// the point of failure; CodeOf unwraps to find the matching sentinel.
var (
	ErrInvalidParam    = errors.New("invalid parameter")
	ErrNotConnected    = errors.New("peer not connected")
	ErrTooLarge        = errors.New("payload exceeds maximum packet size")
	ErrBusy            = errors.New("operation not valid in current state")
	ErrTimedOut        = errors.New("operation timed out")
	ErrMsgSendFail     = errors.New("message send failed")
	ErrCorruptedStream = errors.New("corrupted packet stream")
	ErrException       = errors.New("unexpected internal error")
)

var sentinels = []struct {
	err  error
	code Code
}{
	{ErrInvalidParam, CodeInvalidParam},
	{ErrNotConnected, CodeNotConnected},
	{ErrTooLarge, CodeTooLarge},
	{ErrBusy, CodeBusy},
	{ErrTimedOut, CodeTimedOut},
	{ErrMsgSendFail, CodeMsgSendFail},
	{ErrCorruptedStream, CodeCorruptedStream},
	{ErrException, CodeException},
}

// CodeOf maps err to its taxonomy Code by unwrapping against the known
// sentinels. Unrecognized errors map to CodeException, matching the
// catch-all policy of the error handling design.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	return CodeException
}
