package drag

import (
	"fmt"

	"github.com/dantte-lp/intentiond/internal/ierr"
	"github.com/dantte-lp/intentiond/internal/model"
)

// errInvalidStyle wraps ierr.ErrInvalidParam with the offending style value.
func errInvalidStyle(style model.DragCursorStyle) error {
	return fmt.Errorf("drag style %d: %w", int(style), ierr.ErrInvalidParam)
}

// errStaleEvent indicates an UpdateDragStyle call arrived with an event id
// below the last processed one; stale updates are discarded rather than
// applied out of order.
var errStaleEvent = fmt.Errorf("stale drag style event: %w", ierr.ErrInvalidParam)
