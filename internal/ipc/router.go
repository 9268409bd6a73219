// Package ipc routes decoded local-IPC packets to the drag and
// coordination state machines and the event dispatcher, and replies to
// the originating session. It is the local-IPC analogue of
// internal/control's operator-facing Connect-RPC handlers: same
// request-in/response-out shape, but addressed by wire.MessageID over the
// raw socket instead of an HTTP path.
package ipc

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/dantte-lp/intentiond/internal/coordinate"
	"github.com/dantte-lp/intentiond/internal/dispatch"
	"github.com/dantte-lp/intentiond/internal/drag"
	"github.com/dantte-lp/intentiond/internal/model"
	"github.com/dantte-lp/intentiond/internal/session"
	"github.com/dantte-lp/intentiond/internal/wire"
)

// Router holds references to the subsystems a local client request may
// touch. Constructed once in main and wired as session.Callbacks.RecvFunc.
type Router struct {
	logger *slog.Logger
	disp   *dispatch.Dispatcher
	drag   *drag.Machine
	coord  *coordinate.Machine
}

// NewRouter constructs a Router over the daemon's shared subsystems.
func NewRouter(logger *slog.Logger, disp *dispatch.Dispatcher, dragMgr *drag.Machine, coord *coordinate.Machine) *Router {
	return &Router{logger: logger, disp: disp, drag: dragMgr, coord: coord}
}

// HandlePacket decodes pkt and dispatches it to the matching subsystem,
// replying to sess with the outcome. Unknown message ids are logged and
// dropped; this mirrors dispatch.Dispatcher.Emit's "never throw out of
// the callback" requirement at the inbound edge.
func (r *Router) HandlePacket(sess *session.Session, pkt wire.NetPacket) {
	ctx := context.Background()

	switch pkt.MsgID {
	case wire.MsgRegisterCoordinationMonitor:
		r.disp.Add(wire.EventCoordinationState, sess, dispatch.HandleID(0))
		r.ack(sess, pkt.MsgID)

	case wire.MsgUnregisterCoordinationMonitor:
		r.disp.Remove(wire.EventCoordinationState, sess, dispatch.WildcardHandle)
		r.ack(sess, pkt.MsgID)

	case wire.MsgPrepareCoordination, wire.MsgUnprepareCoordination:
		// Device-discovery/reservation bookkeeping ahead of a start_cooperate
		// call; the soft-bus session itself is opened lazily by the machine's
		// peer-protocol exchange, so there is nothing further to reserve here.
		r.ack(sess, pkt.MsgID)

	case wire.MsgStartCoordination:
		r.handleStartCoordination(ctx, sess, pkt)

	case wire.MsgStopCoordination:
		r.handleStopCoordination(ctx, sess, pkt)

	case wire.MsgGetCoordinationState:
		r.replyJSON(sess, pkt.MsgID, coordinationStatePayload{State: r.coord.State().String()})

	case wire.MsgRegisterDragMonitor:
		r.disp.Add(wire.EventDragState, sess, dispatch.HandleID(0))
		r.ack(sess, pkt.MsgID)

	case wire.MsgUnregisterDragMonitor:
		r.disp.Remove(wire.EventDragState, sess, dispatch.WildcardHandle)
		r.ack(sess, pkt.MsgID)

	case wire.MsgStartDrag:
		r.handleStartDrag(ctx, sess, pkt)

	case wire.MsgStopDrag:
		r.handleStopDrag(ctx, sess, pkt)

	case wire.MsgGetDragTargetPid:
		r.replyJSON(sess, pkt.MsgID, dragTargetPidPayload{TargetPid: r.drag.Store().TargetPid()})

	case wire.MsgGetDragTargetUdKey:
		r.replyJSON(sess, pkt.MsgID, dragTargetUDKeyPayload{UDKey: r.drag.Store().Data().UDKey})

	case wire.MsgGetShadowOffset:
		off := r.drag.Store().Data().ShadowOffset
		r.replyJSON(sess, pkt.MsgID, shadowOffsetPayload{X: off.X, Y: off.Y})

	case wire.MsgUpdatedDragStyle:
		r.handleUpdateDragStyle(ctx, sess, pkt)

	case wire.MsgSetDragWindowVisible:
		r.handleSetDragWindowVisible(ctx, sess, pkt)

	case wire.MsgUpdateShadowPic:
		r.handleUpdateShadowPic(ctx, sess, pkt)

	case wire.MsgDeviceStatusSubscribe, wire.MsgDeviceStatusUnsubscribe, wire.MsgDeviceStatusGetCache:
		// Device status subscription/cache belongs to the device-status
		// service proper, not the interaction engine.
		r.ack(sess, pkt.MsgID)

	case wire.MsgAllocSocketFD:
		// Socket allocation happens in the marshalling gateway before a
		// session exists (Server.AddSocketPairInfo); a client that already
		// holds a session asking again just gets its current identity back.
		r.replyJSON(sess, pkt.MsgID, allocSocketFDPayload{Fd: sess.Fd(), TokenType: sess.TokenType().String()})

	default:
		r.logger.Warn("unhandled local ipc message", slog.Int("msg_id", int(pkt.MsgID)))
	}
}

func (r *Router) handleStartCoordination(ctx context.Context, sess *session.Session, pkt wire.NetPacket) {
	var req startCoordinationRequest
	if err := json.Unmarshal(pkt.Payload, &req); err != nil {
		r.replyError(sess, pkt.MsgID, err)
		return
	}

	// The negotiation blocks on the peer's START_RESPONSE (up to the
	// session-open timeout), so it runs off the epoll goroutine; the reply
	// is delivered to the session whenever the round trip settles.
	go func() {
		msg, err := r.coord.StartCooperate(ctx, req.RemoteNetworkID, req.StartDeviceID, sess, sess.Pid(), 0)
		if err != nil {
			r.logger.Warn("start coordination failed",
				slog.String("remote_network_id", req.RemoteNetworkID),
				slog.String("error", err.Error()),
			)
		}
		r.replyJSON(sess, pkt.MsgID, startCoordinationResponse{Message: msg.String()})
	}()
}

func (r *Router) handleStopCoordination(ctx context.Context, sess *session.Session, pkt wire.NetPacket) {
	var req stopCoordinationRequest
	if err := json.Unmarshal(pkt.Payload, &req); err != nil {
		r.replyError(sess, pkt.MsgID, err)
		return
	}

	if err := r.coord.StopCooperate(ctx, req.NetworkID); err != nil {
		r.replyError(sess, pkt.MsgID, err)
		return
	}
	r.ack(sess, pkt.MsgID)
}

func (r *Router) handleStartDrag(ctx context.Context, sess *session.Session, pkt wire.NetPacket) {
	var req startDragRequest
	if err := json.Unmarshal(pkt.Payload, &req); err != nil {
		r.replyError(sess, pkt.MsgID, err)
		return
	}

	data := model.DragData{
		ShadowPixmap: req.ShadowPixmap,
		ShadowOffset: model.ShadowOffset{X: req.ShadowOffset.X, Y: req.ShadowOffset.Y},
		Buffer:       req.Buffer,
		UDKey:        req.UDKey,
		ExtraInfo:    req.ExtraInfo,
		FilterInfo:   req.FilterInfo,
		Summaries:    req.Summaries,
		SourceType:   parseSourceType(req.SourceType),
		DragNum:      req.DragNum,
		PointerID:    req.PointerID,
		DisplayID:    req.DisplayID,
		DisplayX:     req.DisplayX,
		DisplayY:     req.DisplayY,
		MainWindow:   req.MainWindow,
	}

	if err := r.drag.StartDrag(ctx, data, sess); err != nil {
		r.replyError(sess, pkt.MsgID, err)
		return
	}
	r.ack(sess, pkt.MsgID)
}

func (r *Router) handleStopDrag(ctx context.Context, sess *session.Session, pkt wire.NetPacket) {
	var req stopDragRequest
	if err := json.Unmarshal(pkt.Payload, &req); err != nil {
		r.replyError(sess, pkt.MsgID, err)
		return
	}

	drop := model.DropResult{
		Result:             parseDragResult(req.Result),
		HasCustomAnimation: req.HasCustomAnimation,
		MainWindow:         req.MainWindow,
		DragBehavior:       parseDragBehavior(req.DragBehavior),
	}

	if err := r.drag.StopDrag(ctx, drop); err != nil {
		r.replyError(sess, pkt.MsgID, err)
		return
	}
	// drag.Machine.stopDrag already delivers ResultPayload to the session
	// that originally called start_drag; no separate ack needed here.
}

func (r *Router) handleSetDragWindowVisible(ctx context.Context, sess *session.Session, pkt wire.NetPacket) {
	var req setDragWindowVisibleRequest
	if err := json.Unmarshal(pkt.Payload, &req); err != nil {
		r.replyError(sess, pkt.MsgID, err)
		return
	}

	if err := r.drag.SetDragWindowVisible(ctx, req.Visible, req.Force); err != nil {
		r.replyError(sess, pkt.MsgID, err)
		return
	}
	r.ack(sess, pkt.MsgID)
}

func (r *Router) handleUpdateShadowPic(ctx context.Context, sess *session.Session, pkt wire.NetPacket) {
	var req updateShadowPicRequest
	if err := json.Unmarshal(pkt.Payload, &req); err != nil {
		r.replyError(sess, pkt.MsgID, err)
		return
	}

	update := drag.ShadowUpdate{
		Pixmap: req.Pixmap,
		Offset: model.ShadowOffset{X: req.Offset.X, Y: req.Offset.Y},
	}
	if err := r.drag.UpdateShadowPic(ctx, update); err != nil {
		r.replyError(sess, pkt.MsgID, err)
		return
	}
	r.ack(sess, pkt.MsgID)
}

func (r *Router) handleUpdateDragStyle(ctx context.Context, sess *session.Session, pkt wire.NetPacket) {
	var req updateDragStyleRequest
	if err := json.Unmarshal(pkt.Payload, &req); err != nil {
		r.replyError(sess, pkt.MsgID, err)
		return
	}

	style := parseDragCursorStyle(req.Style)
	if err := r.drag.UpdateDragStyle(ctx, style, req.TargetPid, req.TargetTid, req.EventID); err != nil {
		r.replyError(sess, pkt.MsgID, err)
		return
	}
	r.ack(sess, pkt.MsgID)
}

// ack sends an empty success reply under msgID.
func (r *Router) ack(sess *session.Session, msgID wire.MessageID) {
	if err := sess.SendPacket(msgID, []byte("{}")); err != nil {
		r.logger.Warn("ack delivery failed",
			slog.Int("msg_id", int(msgID)),
			slog.String("error", err.Error()),
		)
	}
}

// replyJSON marshals v and sends it back under msgID.
func (r *Router) replyJSON(sess *session.Session, msgID wire.MessageID, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("marshal reply failed",
			slog.Int("msg_id", int(msgID)),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := sess.SendPacket(msgID, payload); err != nil {
		r.logger.Warn("reply delivery failed",
			slog.Int("msg_id", int(msgID)),
			slog.String("error", err.Error()),
		)
	}
}

// replyError sends an errorPayload back under msgID, logging the failure.
func (r *Router) replyError(sess *session.Session, msgID wire.MessageID, err error) {
	r.logger.Warn("local ipc request failed",
		slog.Int("msg_id", int(msgID)),
		slog.String("error", err.Error()),
	)
	payload, marshalErr := json.Marshal(errorPayload{Error: err.Error()})
	if marshalErr != nil {
		return
	}
	if sendErr := sess.SendPacket(msgID, payload); sendErr != nil {
		r.logger.Warn("error reply delivery failed",
			slog.Int("msg_id", int(msgID)),
			slog.String("error", sendErr.Error()),
		)
	}
}
