package drag

import (
	"context"
	"fmt"

	"github.com/dantte-lp/intentiond/internal/ierr"
	"github.com/dantte-lp/intentiond/internal/model"
)

// ShadowUpdate carries a new shadow pixmap and offset for update_shadow_pic.
type ShadowUpdate struct {
	Pixmap []byte
	Offset model.ShadowOffset
}

// requireActive returns ErrBusy unless a drag is in progress. Shadow,
// preview, rotation, and text-editor updates only make sense against an
// active drag.
func (m *Machine) requireActive() error {
	if s := m.State(); s != StateStart && s != StateMotionDragging {
		return fmt.Errorf("drag op: %w", ierr.ErrBusy)
	}
	return nil
}

// UpdateShadowPic installs a new shadow pixmap/offset on the active drag.
func (m *Machine) UpdateShadowPic(ctx context.Context, update ShadowUpdate) error {
	var retErr error
	err := m.post(ctx, func() {
		if retErr = m.requireActive(); retErr != nil {
			return
		}
		m.store.SetShadow(update.Pixmap, update.Offset)
	})
	if err != nil {
		return err
	}
	return retErr
}

// UpdatePreviewStyle installs a new preview style, idempotent when it
// equals the currently stored style.
func (m *Machine) UpdatePreviewStyle(ctx context.Context, style model.PreviewStyle) error {
	return m.updatePreviewStyle(ctx, style)
}

// UpdatePreviewStyleWithAnimation stores style exactly as
// UpdatePreviewStyle does. The animation argument is not used, and neither
// preview-style call reaches the renderer collaborator.
func (m *Machine) UpdatePreviewStyleWithAnimation(ctx context.Context, style model.PreviewStyle, _ any) error {
	return m.updatePreviewStyle(ctx, style)
}

func (m *Machine) updatePreviewStyle(ctx context.Context, style model.PreviewStyle) error {
	var retErr error
	err := m.post(ctx, func() {
		if retErr = m.requireActive(); retErr != nil {
			return
		}
		if m.store.PreviewStyle().Equal(style) {
			return
		}
		m.store.SetPreviewStyle(style)
	})
	if err != nil {
		return err
	}
	return retErr
}

// RotateDragWindow applies a display rotation to the drag window,
// idempotent when the rotation equals the stored value.
func (m *Machine) RotateDragWindow(ctx context.Context, rotation int32) error {
	var retErr error
	err := m.post(ctx, func() {
		if retErr = m.requireActive(); retErr != nil {
			return
		}
		if m.store.Rotation() == rotation {
			return
		}
		m.store.SetRotation(rotation)
		m.renderer.Rotate(rotation)
	})
	if err != nil {
		return err
	}
	return retErr
}

// EnterTextEditorArea toggles whether the drop target is a text editor
// area, idempotent when unchanged.
func (m *Machine) EnterTextEditorArea(ctx context.Context, entered bool) error {
	var retErr error
	err := m.post(ctx, func() {
		if retErr = m.requireActive(); retErr != nil {
			return
		}
		if m.store.TextEditorArea() == entered {
			return
		}
		m.store.SetTextEditorArea(entered)
		m.renderer.EnterTextEditorArea(entered)
	})
	if err != nil {
		return err
	}
	return retErr
}

// SetDragWindowVisible sets the drag window's visibility. Non-force calls
// are rejected while a multi-screen coordinator controls visibility.
func (m *Machine) SetDragWindowVisible(ctx context.Context, visible, force bool) error {
	var retErr error
	err := m.post(ctx, func() {
		if retErr = m.requireActive(); retErr != nil {
			return
		}
		if m.controlMultiScreenVisible && !force {
			retErr = fmt.Errorf("set drag window visible: %w", ierr.ErrBusy)
			return
		}
		m.store.SetVisible(visible)
	})
	if err != nil {
		return err
	}
	return retErr
}

// SetControlMultiScreenVisible toggles whether a multi-screen coordinator
// currently owns visibility changes to the drag window.
func (m *Machine) SetControlMultiScreenVisible(ctx context.Context, controlled bool) error {
	return m.post(ctx, func() { m.controlMultiScreenVisible = controlled })
}
