// Package model holds the data types shared across the session/transport,
// drag, and coordination subsystems: DragData, DropResult, PreviewStyle,
// and the small enums each packs uses for token trust tier, drag source,
// and drop outcome.
package model

import (
	"fmt"

	"github.com/dantte-lp/intentiond/internal/ierr"
)

var errInvalid = ierr.ErrInvalidParam

// TokenType is the trust tier of a local IPC client, affecting socket
// buffer sizing and eventual permission checks performed by the (out of
// scope) package/permission resolver.
type TokenType int

const (
	TokenNative TokenType = iota
	TokenHAP
	TokenShell
)

func (t TokenType) String() string {
	switch t {
	case TokenNative:
		return "NATIVE"
	case TokenHAP:
		return "HAP"
	case TokenShell:
		return "SHELL"
	default:
		return "UNKNOWN"
	}
}

// SourceType identifies the input device class that initiated a drag.
type SourceType int

const (
	SourceMouse SourceType = iota
	SourceTouchscreen
)

func (s SourceType) String() string {
	switch s {
	case SourceMouse:
		return "MOUSE"
	case SourceTouchscreen:
		return "TOUCHSCREEN"
	default:
		return "UNKNOWN"
	}
}

// DragResult is the terminal outcome of a drag reported by the client
// invoking stop_drag.
type DragResult int

const (
	DragResultSuccess DragResult = iota
	DragResultFail
	DragResultCancel
	DragResultException
)

func (r DragResult) String() string {
	switch r {
	case DragResultSuccess:
		return "SUCCESS"
	case DragResultFail:
		return "FAIL"
	case DragResultCancel:
		return "CANCEL"
	case DragResultException:
		return "EXCEPTION"
	default:
		return "UNKNOWN"
	}
}

// DragBehavior classifies a completed drop as a move or a copy.
type DragBehavior int

const (
	DragBehaviorMove DragBehavior = iota
	DragBehaviorCopy
)

func (b DragBehavior) String() string {
	if b == DragBehaviorCopy {
		return "COPY"
	}
	return "MOVE"
}

// DragCursorStyle is the cursor decoration shown during an active drag.
type DragCursorStyle int

const (
	StyleDefault DragCursorStyle = iota
	StyleForbidden
	StyleCopy
	StyleMove
)

// Valid reports whether s is one of the four defined cursor styles.
func (s DragCursorStyle) Valid() bool {
	return s >= StyleDefault && s <= StyleMove
}

func (s DragCursorStyle) String() string {
	switch s {
	case StyleDefault:
		return "DEFAULT"
	case StyleForbidden:
		return "FORBIDDEN"
	case StyleCopy:
		return "COPY"
	case StyleMove:
		return "MOVE"
	default:
		return "UNKNOWN"
	}
}

// Limits enforced on DragData per the data model invariants.
const (
	MaxDragBufferBytes = 512
	MaxUDKeyChars      = 100
	MaxSummaryEntries  = 200
)

// ShadowOffset is the pixel offset of the shadow pixmap from the touch
// point.
type ShadowOffset struct {
	X, Y int32
}

// DragData is the payload supplied to start_drag and held by the drag data
// store for the lifetime of the drag.
type DragData struct {
	ShadowPixmap         []byte // opaque handle to the renderer-owned pixmap
	ShadowOffset         ShadowOffset
	Buffer               []byte
	UDKey                string
	ExtraInfo            string
	FilterInfo           string
	Summaries            map[string]int64
	SourceType           SourceType
	DragNum              int32
	PointerID            int32
	DisplayID            int32
	DisplayX, DisplayY   int32
	MainWindow           int32
	HasCanceledAnimation bool
}

// Validate checks the DragData invariants from the data model: a non-nil
// pixmap, buffer within bounds, UDKey length, and summary entry count.
func (d *DragData) Validate() error {
	if d.ShadowPixmap == nil {
		return fmt.Errorf("drag data: %w: shadow pixmap is nil", errInvalid)
	}
	if len(d.Buffer) > MaxDragBufferBytes {
		return fmt.Errorf("drag data: %w: buffer %d bytes exceeds %d", errInvalid, len(d.Buffer), MaxDragBufferBytes)
	}
	if len(d.UDKey) > MaxUDKeyChars {
		return fmt.Errorf("drag data: %w: ud_key %d chars exceeds %d", errInvalid, len(d.UDKey), MaxUDKeyChars)
	}
	if len(d.Summaries) > MaxSummaryEntries {
		return fmt.Errorf("drag data: %w: %d summary entries exceeds %d", errInvalid, len(d.Summaries), MaxSummaryEntries)
	}
	return nil
}

// PreviewStyleField enumerates the adjustable fields of a PreviewStyle.
type PreviewStyleField int

const (
	PreviewForegroundColor PreviewStyleField = iota
	PreviewOpacity
	PreviewRadius
	PreviewScale
)

// PreviewStyle describes cosmetic adjustments to the drag shadow preview.
// Equality is field-wise, used by update_preview_style to detect no-op
// updates.
type PreviewStyle struct {
	Types           map[PreviewStyleField]struct{}
	ForegroundColor uint32
	Opacity         float32
	Radius          float32
	Scale           float32
}

// Equal reports whether s and other describe the same style.
func (s PreviewStyle) Equal(other PreviewStyle) bool {
	if len(s.Types) != len(other.Types) {
		return false
	}
	for f := range s.Types {
		if _, ok := other.Types[f]; !ok {
			return false
		}
	}
	return s.ForegroundColor == other.ForegroundColor &&
		s.Opacity == other.Opacity &&
		s.Radius == other.Radius &&
		s.Scale == other.Scale
}

// DropResult is the argument to stop_drag: the client-reported outcome of
// releasing the drag.
type DropResult struct {
	Result             DragResult
	HasCustomAnimation bool
	MainWindow         int32
	DragBehavior       DragBehavior
}

// CoordinationMessage reports the outcome of a coordination (keyboard/mouse
// sharing) request to the local client and/or peer device.
type CoordinationMessage int

const (
	CoopSuccess CoordinationMessage = iota
	CoopFail
	CoopDeviceError
	CoopSessionFail
	CoopUnchained
)

func (m CoordinationMessage) String() string {
	switch m {
	case CoopSuccess:
		return "COOPERATION_SUCCESS"
	case CoopFail:
		return "COOPERATION_FAIL"
	case CoopDeviceError:
		return "COOPERATION_DEVICE_ERROR"
	case CoopSessionFail:
		return "COOPERATION_SESSION_FAIL"
	case CoopUnchained:
		return "COOPERATION_UNCHAINED"
	default:
		return "UNKNOWN"
	}
}
