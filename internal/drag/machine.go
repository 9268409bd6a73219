package drag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dantte-lp/intentiond/internal/dispatch"
	"github.com/dantte-lp/intentiond/internal/ierr"
	"github.com/dantte-lp/intentiond/internal/model"
	"github.com/dantte-lp/intentiond/internal/session"
	"github.com/dantte-lp/intentiond/internal/wire"
)

// Timeouts armed while a drag is in progress.
const (
	StopDragTimeout         = 3000 * time.Millisecond
	MouseDragMonitorTimeout = 3000 * time.Millisecond
)

// command is one unit of work posted to the Machine's single goroutine: a
// request/response delegate-task queue fed by callbacks and public
// methods.
type command struct {
	run  func()
	done chan struct{}
}

// MetricsReporter receives drag lifecycle accounting events. Implemented
// by telemetry.Collector; a no-op reporter is used when no collector is
// configured.
type MetricsReporter interface {
	DragStarted()
	DragCompleted(result string, seconds float64)
}

type noopMetrics struct{}

func (noopMetrics) DragStarted() {}

func (noopMetrics) DragCompleted(string, float64) {}

// MachineOption configures optional Machine parameters.
type MachineOption func(*Machine)

// WithMetrics attaches a MetricsReporter to the machine. If mr is nil, the
// no-op reporter stays in place.
func WithMetrics(mr MetricsReporter) MachineOption {
	return func(m *Machine) {
		if mr != nil {
			m.metrics = mr
		}
	}
}

// WithInputAdapter attaches the input-subsystem binding the machine
// registers its pointer/key handlers with. If in is nil, the no-op
// adapter stays in place.
func WithInputAdapter(in InputAdapter) MachineOption {
	return func(m *Machine) {
		if in != nil {
			m.input = in
		}
	}
}

// Machine is the drag state machine: a single goroutine owns the drag
// state, the pointer/keyboard pipeline bookkeeping, and the armed timers,
// so no mutex guards them. Only State is exposed for lock-free external
// reads, via atomic.Int32.
type Machine struct {
	logger     *slog.Logger
	store      *DataStore
	dispatcher *dispatch.Dispatcher
	renderer   Renderer
	input      InputAdapter
	metrics    MetricsReporter

	cmdCh chan command
	state atomic.Int32

	// Fields below are owned exclusively by the goroutine running Run.
	outSession  *session.Session
	sourceType  model.SourceType
	lastEventID int64
	dragAction  model.DragBehavior
	startedAt   time.Time

	mouseMonitorArmed bool
	existingMove      bool
	lastMoveX         int32
	lastMoveY         int32
	filterTime        int64

	pullUpTimer  *time.Timer
	monitorTimer *time.Timer

	controlMultiScreenVisible bool
}

// NewMachine constructs a Machine in state STOP. Run must be called to
// drive its command loop and timers.
func NewMachine(logger *slog.Logger, disp *dispatch.Dispatcher, renderer Renderer, opts ...MachineOption) *Machine {
	if renderer == nil {
		renderer = NoopRenderer{}
	}
	m := &Machine{
		logger:     logger,
		store:      NewDataStore(),
		dispatcher: disp,
		renderer:   renderer,
		input:      NoopInputAdapter{},
		metrics:    noopMetrics{},
		cmdCh:      make(chan command, 8),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state.Store(int32(StateStop))
	m.dragAction = model.DragBehaviorMove

	m.pullUpTimer = time.NewTimer(time.Hour)
	stopAndDrain(m.pullUpTimer)
	m.monitorTimer = time.NewTimer(time.Hour)
	stopAndDrain(m.monitorTimer)

	return m
}

func stopAndDrain(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// State returns the current drag state (lock-free read).
func (m *Machine) State() State { return State(m.state.Load()) }

// Store exposes the underlying DataStore for read-only status queries
// (GET_SHADOW_OFFSET, GET_DRAG_TARGET_PID, GET_DRAG_TARGET_UDKEY).
func (m *Machine) Store() *DataStore { return m.store }

// Run drives the command loop and timers until ctx is cancelled.
func (m *Machine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-m.cmdCh:
			cmd.run()
			close(cmd.done)
		case <-m.pullUpTimer.C:
			m.stopDrag(model.DropResult{Result: model.DragResultException})
		case <-m.monitorTimer.C:
			m.mouseMonitorArmed = false
		}
	}
}

// post enqueues fn to run on the Machine's goroutine and blocks until it
// has executed or ctx is cancelled.
func (m *Machine) post(ctx context.Context, fn func()) error {
	cmd := command{run: fn, done: make(chan struct{})}
	select {
	case m.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartDrag begins a new drag. out is the session DRAG_NOTIFY_RESULT is
// eventually delivered to.
func (m *Machine) StartDrag(ctx context.Context, data model.DragData, out *session.Session) error {
	var retErr error
	if err := m.post(ctx, func() { retErr = m.startDrag(data, out) }); err != nil {
		return err
	}
	return retErr
}

func (m *Machine) startDrag(data model.DragData, out *session.Session) error {
	if m.State() != StateStop {
		return fmt.Errorf("start drag: %w", ierr.ErrBusy)
	}
	if err := data.Validate(); err != nil {
		return err
	}

	// Each setup step pushes its rollback; an early return unwinds them in
	// reverse, leaving no handler, extra data, or shadow window behind.
	var rollbacks []func()
	unwind := func() {
		for i := len(rollbacks) - 1; i >= 0; i-- {
			rollbacks[i]()
		}
	}

	if err := m.store.Init(data); err != nil {
		return err
	}
	rollbacks = append(rollbacks, m.store.Reset)

	if err := m.input.RegisterPointerHandler(data.SourceType); err != nil {
		unwind()
		return fmt.Errorf("start drag: register pointer handler: %w", ierr.ErrException)
	}
	rollbacks = append(rollbacks, m.input.UnregisterHandlers)

	if err := m.input.RegisterKeyHandler(); err != nil {
		unwind()
		return fmt.Errorf("start drag: register key handler: %w", ierr.ErrException)
	}

	if err := m.input.AppendExtraData(ExtraData{
		Buffer:     data.Buffer,
		SourceType: data.SourceType,
		PointerID:  data.PointerID,
		Appended:   true,
	}); err != nil {
		unwind()
		return fmt.Errorf("start drag: append extra data: %w", ierr.ErrException)
	}
	rollbacks = append(rollbacks, func() {
		_ = m.input.AppendExtraData(ExtraData{Appended: false})
	})

	if err := m.renderer.Init(data); err != nil {
		unwind()
		return fmt.Errorf("start drag: renderer init failed: %w", ierr.ErrException)
	}
	if err := m.renderer.Draw(data.DisplayID, data.DisplayX, data.DisplayY); err != nil {
		m.renderer.Destroy()
		unwind()
		return fmt.Errorf("start drag: renderer draw failed: %w", ierr.ErrException)
	}
	if data.SourceType == model.SourceMouse {
		m.renderer.HideSystemPointer()
	}

	m.outSession = out
	m.sourceType = data.SourceType
	m.dragAction = model.DragBehaviorMove
	m.lastEventID = 0
	m.filterTime = 0
	m.existingMove = false
	m.startedAt = time.Now()

	m.metrics.DragStarted()
	m.applyResult(ApplyDragEvent(m.State(), EventStartDrag))
	return nil
}

// StopDrag ends the active drag. Precondition: state != STOP.
func (m *Machine) StopDrag(ctx context.Context, drop model.DropResult) error {
	var retErr error
	if err := m.post(ctx, func() { retErr = m.stopDrag(drop) }); err != nil {
		return err
	}
	return retErr
}

func (m *Machine) stopDrag(drop model.DropResult) error {
	if m.State() == StateStop {
		return fmt.Errorf("stop drag: %w", ierr.ErrBusy)
	}

	stopAndDrain(m.pullUpTimer)

	var ev Event
	switch drop.Result {
	case model.DragResultSuccess:
		ev = EventStopSuccess
	case model.DragResultFail:
		ev = EventStopFail
	case model.DragResultCancel:
		ev = EventStopCancel
	default:
		ev = EventStopException
	}

	behavior := m.computeDragBehavior(drop)
	data := m.store.Data()
	targetPid := m.store.TargetPid()
	out := m.outSession

	m.input.UnregisterHandlers()
	if err := m.input.AppendExtraData(ExtraData{Appended: false}); err != nil {
		m.logger.Warn("stop drag: clearing input extra data failed", slog.String("error", err.Error()))
	}

	m.runResultHandler(drop)
	if m.sourceType == model.SourceMouse {
		m.renderer.ShowSystemPointer()
	}

	m.applyResult(ApplyDragEvent(m.State(), ev))
	if s := m.State(); s == StateCancel || s == StateError {
		m.applyResult(ApplyDragEvent(s, EventReset))
	}

	if out != nil {
		payload, err := json.Marshal(ResultPayload{
			DisplayX:  data.DisplayX,
			DisplayY:  data.DisplayY,
			Result:    drop.Result.String(),
			TargetPid: targetPid,
			Behavior:  behavior.String(),
		})
		if err == nil {
			if sendErr := out.SendPacket(wire.MsgStopDrag, payload); sendErr != nil {
				m.logger.Warn("drag notify result delivery failed", slog.String("error", sendErr.Error()))
			}
		}
	}

	m.metrics.DragCompleted(drop.Result.String(), time.Since(m.startedAt).Seconds())

	m.store.Reset()
	m.outSession = nil
	return nil
}

// runResultHandler executes the renderer-facing side of stop_drag's result
// handler.
func (m *Machine) runResultHandler(drop model.DropResult) {
	switch drop.Result {
	case model.DragResultSuccess:
		if !drop.HasCustomAnimation {
			m.renderer.OnDragSuccess()
		} else {
			m.renderer.Destroy()
		}
	case model.DragResultFail, model.DragResultCancel:
		m.renderer.OnDragFail()
	default:
		m.renderer.Destroy()
	}
}

// computeDragBehavior classifies a completed drop: COPY wins when the
// style or the Ctrl-derived action says copy, or when the drop landed in
// a different main window than the drag started from.
func (m *Machine) computeDragBehavior(drop model.DropResult) model.DragBehavior {
	if m.store.Style() == model.StyleCopy {
		return model.DragBehaviorCopy
	}
	if m.dragAction == model.DragBehaviorCopy {
		return model.DragBehaviorCopy
	}
	if drop.MainWindow == m.store.Data().MainWindow {
		return model.DragBehaviorMove
	}
	return model.DragBehaviorCopy
}

// UpdateDragStyle applies a style update, subject to stale event-id
// suppression.
func (m *Machine) UpdateDragStyle(ctx context.Context, style model.DragCursorStyle, targetPid, targetTid int32, eventID int64) error {
	var retErr error
	if err := m.post(ctx, func() { retErr = m.updateDragStyle(style, targetPid, targetTid, eventID) }); err != nil {
		return err
	}
	return retErr
}

func (m *Machine) updateDragStyle(style model.DragCursorStyle, targetPid, targetTid int32, eventID int64) error {
	if m.State() == StateStop {
		return fmt.Errorf("update drag style: %w", ierr.ErrBusy)
	}
	if eventID < m.lastEventID {
		return errStaleEvent
	}
	if !style.Valid() {
		return errInvalidStyle(style)
	}
	m.lastEventID = eventID

	targetChanged := targetPid != m.store.TargetPid()
	m.store.SetTargetPid(targetPid)
	m.store.SetTargetTid(targetTid)

	styleChanged := style != m.store.Style()
	if styleChanged {
		_ = m.store.SetStyle(style)
	}

	if styleChanged || targetChanged {
		m.notifyStyle(style)
	}
	return nil
}

// notifyStyle emits the effective style (COPY when Ctrl is overriding a
// requested MOVE) to DRAG_STYLE subscribers and the renderer.
func (m *Machine) notifyStyle(requested model.DragCursorStyle) {
	effective := requested
	if m.dragAction == model.DragBehaviorCopy && requested == model.StyleMove {
		effective = model.StyleCopy
	}
	m.emitDragStyle(effective)
	m.renderer.UpdateStyle(effective)
}

// HandlePointerEvent feeds one pointer-interceptor/monitor callback event
// through the pointer pipeline.
func (m *Machine) HandlePointerEvent(ctx context.Context, ev PointerEvent) error {
	return m.post(ctx, func() { m.handlePointerEvent(ev) })
}

func (m *Machine) handlePointerEvent(ev PointerEvent) {
	if ev.Action == PointerActionMove {
		if m.mouseMonitorArmed && ev.SourceType == model.SourceMouse {
			m.lastMoveX, m.lastMoveY = ev.X, ev.Y
			m.existingMove = true
		}
		return
	}

	if m.State() != StateStart && m.State() != StateMotionDragging {
		return
	}

	switch ev.Action {
	case PointerActionPullMove:
		if ev.ActionTimeNs <= m.filterTime {
			return
		}
		m.applyResult(ApplyDragEvent(m.State(), EventPointerPullMove))
		m.renderer.Move(ev.DisplayID, ev.X, ev.Y, ev.ActionTimeNs)

	case PointerActionPullUp:
		m.renderer.ShowSystemPointer()
		stopAndDrain(m.pullUpTimer)
		m.pullUpTimer.Reset(StopDragTimeout)
	}
}

// SetPointerEventFilterTime drops any subsequent PULL_MOVE with an
// action_time at or before t, used to discard stale moves after a rotation
// or cross-device handoff.
func (m *Machine) SetPointerEventFilterTime(ctx context.Context, t int64) error {
	return m.post(ctx, func() { m.filterTime = t })
}

// SetMouseDragMonitorState arms or disarms the pre-drag mouse-move monitor
// window and its companion timeout.
func (m *Machine) SetMouseDragMonitorState(ctx context.Context, armed bool) error {
	return m.post(ctx, func() {
		m.mouseMonitorArmed = armed
		stopAndDrain(m.monitorTimer)
		if armed {
			m.existingMove = false
			m.monitorTimer.Reset(MouseDragMonitorTimeout)
		}
	})
}

// HandleKeyEvent feeds one key-event-monitor callback event through the
// Ctrl-to-copy pipeline.
func (m *Machine) HandleKeyEvent(ctx context.Context, ev KeyEvent) error {
	return m.post(ctx, func() { m.handleKeyEvent(ev) })
}

func (m *Machine) handleKeyEvent(ev KeyEvent) {
	if ev.Code != KeycodeCtrlLeft && ev.Code != KeycodeCtrlRight {
		return
	}
	if m.State() != StateStart && m.State() != StateMotionDragging {
		return
	}

	base := m.store.Style()
	if base == model.StyleDefault || base == model.StyleForbidden {
		return
	}

	switch ev.Action {
	case KeyPress:
		if m.dragAction == model.DragBehaviorCopy {
			return
		}
		m.dragAction = model.DragBehaviorCopy
		m.emitDragStyle(model.StyleCopy)
		m.renderer.UpdateStyle(model.StyleCopy)
	case KeyRelease:
		if m.dragAction == model.DragBehaviorMove {
			return
		}
		m.dragAction = model.DragBehaviorMove
		m.emitDragStyle(base)
		m.renderer.UpdateStyle(base)
	}
}

// applyResult stores the FSM's new state (if changed) and executes its
// actions.
func (m *Machine) applyResult(result FSMResult) {
	if result.Changed {
		m.state.Store(int32(result.NewState))
	}
	for _, action := range result.Actions {
		switch action {
		case ActionEmitStart:
			m.emitDragState(StateStart)
		case ActionEmitStop:
			m.emitDragState(StateStop)
		default:
			m.logger.Warn("unknown drag FSM action", slog.Int("action", int(action)))
		}
	}
}

// emitDragState emits a DRAG_STATE notification. label is always STOP for
// every StopDrag outcome (SUCCESS, FAIL, CANCEL, EXCEPTION alike), even
// though the FSM itself may land momentarily in CANCEL or ERROR before
// resetting.
func (m *Machine) emitDragState(label State) {
	msgID := wire.MsgStopDrag
	if label == StateStart {
		msgID = wire.MsgStartDrag
	}
	payload, err := json.Marshal(StatePayload{State: label.String()})
	if err != nil {
		return
	}
	m.dispatcher.Emit(wire.EventDragState, msgID, payload)
}

// emitDragStyle emits a DRAG_STYLE notification.
func (m *Machine) emitDragStyle(style model.DragCursorStyle) {
	payload, err := json.Marshal(StylePayload{Style: style.String()})
	if err != nil {
		return
	}
	m.dispatcher.Emit(wire.EventDragStyle, wire.MsgUpdatedDragStyle, payload)
}
