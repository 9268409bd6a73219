package drag_test

import (
	"context"
	"testing"
	"time"

	"github.com/dantte-lp/intentiond/internal/drag"
	"github.com/dantte-lp/intentiond/internal/model"
)

func TestOpsRequireActiveDrag(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	update := drag.ShadowUpdate{Offset: model.ShadowOffset{X: 1, Y: 1}}
	if err := h.machine.UpdateShadowPic(ctx, update); err == nil {
		t.Fatal("UpdateShadowPic before a drag starts should fail")
	}
}

func TestOpsShadowAndPreviewUpdateDuringDrag(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	if err := h.machine.StartDrag(ctx, sampleData(), h.sess); err != nil {
		t.Fatalf("StartDrag() = %v", err)
	}
	h.readPacket(2 * time.Second) // drain DRAG_STATE(START)

	offset := model.ShadowOffset{X: 5, Y: 6}
	if err := h.machine.UpdateShadowPic(ctx, drag.ShadowUpdate{Offset: offset}); err != nil {
		t.Fatalf("UpdateShadowPic() = %v", err)
	}
	if got := h.machine.Store().ShadowOffset(); got != offset {
		t.Fatalf("ShadowOffset() = %+v, want %+v", got, offset)
	}

	ps := model.PreviewStyle{Opacity: 0.25}
	if err := h.machine.UpdatePreviewStyle(ctx, ps); err != nil {
		t.Fatalf("UpdatePreviewStyle() = %v", err)
	}
	if got := h.machine.Store().PreviewStyle(); !got.Equal(ps) {
		t.Fatalf("PreviewStyle() = %+v, want %+v", got, ps)
	}

	if err := h.machine.StopDrag(ctx, model.DropResult{Result: model.DragResultCancel, MainWindow: 7}); err != nil {
		t.Fatalf("StopDrag() = %v", err)
	}
}

func TestOpsSetDragWindowVisibleRejectedUnderMultiScreenControl(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	if err := h.machine.StartDrag(ctx, sampleData(), h.sess); err != nil {
		t.Fatalf("StartDrag() = %v", err)
	}
	h.readPacket(2 * time.Second)

	if err := h.machine.SetControlMultiScreenVisible(ctx, true); err != nil {
		t.Fatalf("SetControlMultiScreenVisible() = %v", err)
	}

	if err := h.machine.SetDragWindowVisible(ctx, false, false); err == nil {
		t.Fatal("non-force SetDragWindowVisible under multi-screen control should fail")
	}

	if err := h.machine.SetDragWindowVisible(ctx, false, true); err != nil {
		t.Fatalf("force SetDragWindowVisible() = %v", err)
	}
	if h.machine.Store().Visible() {
		t.Fatal("Visible() should be false after forced hide")
	}
}

func TestOpsRotateDragWindowIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	if err := h.machine.StartDrag(ctx, sampleData(), h.sess); err != nil {
		t.Fatalf("StartDrag() = %v", err)
	}
	h.readPacket(2 * time.Second) // drain DRAG_STATE(START)

	if err := h.machine.RotateDragWindow(ctx, 90); err != nil {
		t.Fatalf("RotateDragWindow(90) = %v", err)
	}
	if err := h.machine.RotateDragWindow(ctx, 90); err != nil {
		t.Fatalf("repeat RotateDragWindow(90) = %v", err)
	}
	if err := h.machine.RotateDragWindow(ctx, 180); err != nil {
		t.Fatalf("RotateDragWindow(180) = %v", err)
	}

	if got := h.machine.Store().Rotation(); got != 180 {
		t.Fatalf("Rotation() = %d, want 180", got)
	}

	h.renderer.mu.Lock()
	rotations := append([]int32(nil), h.renderer.rotations...)
	h.renderer.mu.Unlock()
	if len(rotations) != 2 || rotations[0] != 90 || rotations[1] != 180 {
		t.Fatalf("renderer rotations = %v, want [90 180] (repeat suppressed)", rotations)
	}
}

func TestOpsEnterTextEditorAreaIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	if err := h.machine.EnterTextEditorArea(ctx, true); err == nil {
		t.Fatal("EnterTextEditorArea before a drag starts should fail")
	}

	if err := h.machine.StartDrag(ctx, sampleData(), h.sess); err != nil {
		t.Fatalf("StartDrag() = %v", err)
	}
	h.readPacket(2 * time.Second) // drain DRAG_STATE(START)

	if err := h.machine.EnterTextEditorArea(ctx, true); err != nil {
		t.Fatalf("EnterTextEditorArea(true) = %v", err)
	}
	if err := h.machine.EnterTextEditorArea(ctx, true); err != nil {
		t.Fatalf("repeat EnterTextEditorArea(true) = %v", err)
	}
	if !h.machine.Store().TextEditorArea() {
		t.Fatal("TextEditorArea() = false, want true")
	}

	if err := h.machine.EnterTextEditorArea(ctx, false); err != nil {
		t.Fatalf("EnterTextEditorArea(false) = %v", err)
	}

	h.renderer.mu.Lock()
	calls := append([]bool(nil), h.renderer.textEditor...)
	h.renderer.mu.Unlock()
	if len(calls) != 2 || !calls[0] || calls[1] {
		t.Fatalf("renderer text-editor calls = %v, want [true false] (repeat suppressed)", calls)
	}
}
