package drag

import "github.com/dantte-lp/intentiond/internal/model"

// ExtraData is the payload appended into the input subsystem for the
// duration of a drag, so pointer events carry the drag's identity until
// stop_drag removes it again (Appended=false).
type ExtraData struct {
	Buffer     []byte
	SourceType model.SourceType
	PointerID  int32
	Appended   bool
}

// InputAdapter is the input-subsystem collaborator the Machine drives: it
// installs the pointer interceptor/monitor and key-event monitor feeding
// HandlePointerEvent/HandleKeyEvent, and carries the drag's ExtraData.
// The concrete multimodal-input binding is external; this contract is what
// the Machine calls, symmetric with Renderer.
type InputAdapter interface {
	// RegisterPointerHandler installs the pointer interceptor or monitor,
	// filtered by the source's capabilities (POINTER for mouse, TOUCH and
	// TABLET_TOOL for touchscreen).
	RegisterPointerHandler(source model.SourceType) error
	// RegisterKeyHandler installs the key-event monitor used for Ctrl
	// detection.
	RegisterKeyHandler() error
	// UnregisterHandlers removes both handlers. Safe to call when none
	// are installed.
	UnregisterHandlers()
	// AppendExtraData installs (Appended=true) or clears (Appended=false)
	// the drag payload in the input subsystem.
	AppendExtraData(data ExtraData) error
}

// NoopInputAdapter satisfies InputAdapter for deployments and tests where
// the input subsystem binding is out of process.
type NoopInputAdapter struct{}

func (NoopInputAdapter) RegisterPointerHandler(model.SourceType) error { return nil }

func (NoopInputAdapter) RegisterKeyHandler() error { return nil }

func (NoopInputAdapter) UnregisterHandlers() {}

func (NoopInputAdapter) AppendExtraData(ExtraData) error { return nil }

var _ InputAdapter = NoopInputAdapter{}
