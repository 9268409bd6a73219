package drag

import "github.com/dantte-lp/intentiond/internal/model"

// Renderer is the shadow/cursor renderer the Machine drives. The visual
// shadow renderer itself is an external collaborator; Renderer specifies
// only the contract the Machine calls.
type Renderer interface {
	Init(data model.DragData) error
	Draw(displayID, x, y int32) error
	Move(displayID, x, y int32, actionTimeNs int64)
	UpdateStyle(style model.DragCursorStyle)
	Rotate(rotation int32)
	EnterTextEditorArea(entered bool)
	OnDragSuccess()
	OnDragFail()
	Destroy()
	HideSystemPointer()
	ShowSystemPointer()
}

// NoopRenderer is a Renderer that performs no visual work. It satisfies the
// Machine's contract for deployments where the shadow renderer collaborator
// is provided by an out-of-process component reached over the IPC gateway
// rather than in-process.
type NoopRenderer struct{}

func (NoopRenderer) Init(model.DragData) error { return nil }

func (NoopRenderer) Draw(int32, int32, int32) error { return nil }

func (NoopRenderer) Move(int32, int32, int32, int64) {}

func (NoopRenderer) UpdateStyle(model.DragCursorStyle) {}

func (NoopRenderer) Rotate(int32) {}

func (NoopRenderer) EnterTextEditorArea(bool) {}

func (NoopRenderer) OnDragSuccess() {}

func (NoopRenderer) OnDragFail() {}

func (NoopRenderer) Destroy() {}

func (NoopRenderer) HideSystemPointer() {}

func (NoopRenderer) ShowSystemPointer() {}

var _ Renderer = NoopRenderer{}
