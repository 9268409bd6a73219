// Package drag implements the drag data store and drag state machine: a
// single-owner drag lifecycle that correlates a pointer-event stream with
// a drag "shadow", resolves cursor style from keyboard modifiers, and
// notifies registered listeners on transitions.
package drag

import (
	"sync"

	"github.com/dantte-lp/intentiond/internal/model"
)

// DataStore is the single-owner container for the active drag. All
// operations are mutually exclusive, guarded by one mutex.
type DataStore struct {
	mu sync.Mutex

	data           model.DragData
	style          model.DragCursorStyle
	visible        bool
	targetPid      int32
	targetTid      int32
	previewStyle   model.PreviewStyle
	rotation       int32
	textEditorArea bool
}

// NewDataStore returns an empty, reset DataStore.
func NewDataStore() *DataStore {
	s := &DataStore{}
	s.resetLocked()
	return s
}

// Init validates data and installs it as the active drag payload, resetting
// style, visibility, and target identifiers to their initial values.
func (s *DataStore) Init(data model.DragData) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = data
	s.style = model.StyleDefault
	s.visible = true
	s.targetPid = -1
	s.targetTid = -1
	s.previewStyle = model.PreviewStyle{}
	s.rotation = 0
	s.textEditorArea = false
	return nil
}

// Reset clears the store back to its zero drag, used once a drag ends.
func (s *DataStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *DataStore) resetLocked() {
	s.data = model.DragData{}
	s.style = model.StyleDefault
	s.visible = false
	s.targetPid = -1
	s.targetTid = -1
	s.previewStyle = model.PreviewStyle{}
	s.rotation = 0
	s.textEditorArea = false
}

// SetStyle installs style as the current cursor style. Invalid styles are
// rejected.
func (s *DataStore) SetStyle(style model.DragCursorStyle) error {
	if !style.Valid() {
		return errInvalidStyle(style)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.style = style
	return nil
}

// Style returns the current cursor style.
func (s *DataStore) Style() model.DragCursorStyle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.style
}

// SetShadow installs a new shadow pixmap and offset on the active drag. A
// nil pixmap leaves the stored pixmap untouched (offset-only update).
func (s *DataStore) SetShadow(pixmap []byte, offset model.ShadowOffset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pixmap != nil {
		s.data.ShadowPixmap = pixmap
	}
	s.data.ShadowOffset = offset
}

// ShadowOffset returns the shadow's current pixel offset.
func (s *DataStore) ShadowOffset() model.ShadowOffset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ShadowOffset
}

// SetVisible sets the drag window visibility flag.
func (s *DataStore) SetVisible(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = v
}

// Visible reports the drag window visibility flag.
func (s *DataStore) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// SetTargetPid records the process id of the drop target.
func (s *DataStore) SetTargetPid(pid int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targetPid = pid
}

// TargetPid returns the process id of the drop target, or -1 if unset.
func (s *DataStore) TargetPid() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetPid
}

// SetTargetTid records the thread id of the drop target.
func (s *DataStore) SetTargetTid(tid int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targetTid = tid
}

// TargetTid returns the thread id of the drop target, or -1 if unset.
func (s *DataStore) TargetTid() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetTid
}

// SetRotation records the drag window's display rotation.
func (s *DataStore) SetRotation(rotation int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotation = rotation
}

// Rotation returns the drag window's current display rotation.
func (s *DataStore) Rotation() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotation
}

// SetTextEditorArea records whether the drop target is a text editor area.
func (s *DataStore) SetTextEditorArea(entered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.textEditorArea = entered
}

// TextEditorArea reports whether the drop target is a text editor area.
func (s *DataStore) TextEditorArea() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.textEditorArea
}

// SetPreviewStyle installs a new preview style.
func (s *DataStore) SetPreviewStyle(ps model.PreviewStyle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previewStyle = ps
}

// PreviewStyle returns the current preview style.
func (s *DataStore) PreviewStyle() model.PreviewStyle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previewStyle
}

// Data returns a copy of the active DragData.
func (s *DataStore) Data() model.DragData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}
