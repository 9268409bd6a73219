// Package control implements the operator-facing ConnectRPC control plane
// for intentiond: session listing and coordination/drag status and
// commands, consumed by intentionctl. There is no generated .proto stub
// for this service (see DESIGN.md); every RPC is registered by hand with
// connect.NewUnaryHandler over plain Go structs marshaled by jsonCodec.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/dantte-lp/intentiond/internal/coordinate"
	"github.com/dantte-lp/intentiond/internal/drag"
	"github.com/dantte-lp/intentiond/internal/ierr"
	"github.com/dantte-lp/intentiond/internal/model"
	"github.com/dantte-lp/intentiond/internal/session"
)

// servicePath is the base path every control-plane procedure is mounted
// under, mirroring the "/<package>.<Service>/<Method>" shape ConnectRPC
// generates from a .proto service definition.
const servicePath = "/intentiond.control.v1.ControlService/"

// Server implements the control plane's RPC handlers. Each method delegates
// to one of the three core subsystems; the server itself holds no state of
// its own.
type Server struct {
	coord    *coordinate.Machine
	dragMgr  *drag.Machine
	sessions *session.Server
	logger   *slog.Logger
}

// New constructs a Server and returns the mux path prefix and HTTP handler
// to mount on the daemon's control-plane listener.
func New(coord *coordinate.Machine, dragMgr *drag.Machine, sessions *session.Server, logger *slog.Logger, opts ...connect.HandlerOption) (string, http.Handler) {
	s := &Server{
		coord:    coord,
		dragMgr:  dragMgr,
		sessions: sessions,
		logger:   logger.With(slog.String("component", "control")),
	}

	opts = append([]connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(RecoveryInterceptor(s.logger), LoggingInterceptor(s.logger)),
	}, opts...)

	mux := http.NewServeMux()
	mux.Handle(servicePath+"StartCooperate", connect.NewUnaryHandler(
		servicePath+"StartCooperate", s.startCooperate, opts...))
	mux.Handle(servicePath+"StopCooperate", connect.NewUnaryHandler(
		servicePath+"StopCooperate", s.stopCooperate, opts...))
	mux.Handle(servicePath+"ForceCancelDrag", connect.NewUnaryHandler(
		servicePath+"ForceCancelDrag", s.forceCancelDrag, opts...))
	mux.Handle(servicePath+"GetCoordinationState", connect.NewUnaryHandler(
		servicePath+"GetCoordinationState", s.getCoordinationState, opts...))
	mux.Handle(servicePath+"GetDragState", connect.NewUnaryHandler(
		servicePath+"GetDragState", s.getDragState, opts...))
	mux.Handle(servicePath+"ListSessions", connect.NewUnaryHandler(
		servicePath+"ListSessions", s.listSessions, opts...))

	return servicePath, mux
}

func (s *Server) startCooperate(ctx context.Context, req *connect.Request[StartCooperateRequest]) (*connect.Response[StartCooperateResponse], error) {
	msg := req.Msg
	s.logger.InfoContext(ctx, "StartCooperate called",
		slog.String("remote_network_id", msg.RemoteNetworkID),
	)

	result, err := s.coord.StartCooperate(ctx, msg.RemoteNetworkID, msg.StartDeviceID, nil, 0, 0)
	if err != nil {
		// A CoopFail/CoopSessionFail outcome is a normal negotiation
		// result, not an RPC fault: only invalid-argument and busy-state
		// errors are rejected at the transport boundary.
		switch ierr.CodeOf(err) {
		case ierr.CodeInvalidParam, ierr.CodeBusy:
			return nil, mapError(err, "start cooperate")
		}
	}

	return connect.NewResponse(&StartCooperateResponse{
		Message: result.String(),
		State:   s.coord.State().String(),
	}), nil
}

func (s *Server) stopCooperate(ctx context.Context, req *connect.Request[StopCooperateRequest]) (*connect.Response[StopCooperateResponse], error) {
	if err := s.coord.StopCooperate(ctx, req.Msg.NetworkID); err != nil {
		return nil, mapError(err, "stop cooperate")
	}
	return connect.NewResponse(&StopCooperateResponse{}), nil
}

func (s *Server) forceCancelDrag(ctx context.Context, _ *connect.Request[ForceCancelDragRequest]) (*connect.Response[ForceCancelDragResponse], error) {
	s.logger.InfoContext(ctx, "ForceCancelDrag called")

	if err := s.dragMgr.StopDrag(ctx, model.DropResult{Result: model.DragResultCancel}); err != nil {
		return nil, mapError(err, "force cancel drag")
	}

	return connect.NewResponse(&ForceCancelDragResponse{
		State: s.dragMgr.State().String(),
	}), nil
}

func (s *Server) getCoordinationState(_ context.Context, _ *connect.Request[GetCoordinationStateRequest]) (*connect.Response[GetCoordinationStateResponse], error) {
	return connect.NewResponse(&GetCoordinationStateResponse{
		State: s.coord.State().String(),
	}), nil
}

func (s *Server) getDragState(_ context.Context, _ *connect.Request[GetDragStateRequest]) (*connect.Response[GetDragStateResponse], error) {
	store := s.dragMgr.Store()
	return connect.NewResponse(&GetDragStateResponse{
		State:     s.dragMgr.State().String(),
		TargetPid: store.TargetPid(),
		UDKey:     store.Data().UDKey,
	}), nil
}

func (s *Server) listSessions(_ context.Context, _ *connect.Request[ListSessionsRequest]) (*connect.Response[ListSessionsResponse], error) {
	sessions := s.sessions.Sessions()
	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, SessionInfo{
			Fd:          sess.Fd(),
			Pid:         sess.Pid(),
			Uid:         sess.Uid(),
			ProgramName: sess.ProgramName(),
			TokenType:   sess.TokenType().String(),
		})
	}
	return connect.NewResponse(&ListSessionsResponse{Sessions: out}), nil
}

// mapError translates internal sentinel errors (internal/ierr) into
// ConnectRPC error codes at the transport boundary.
func mapError(err error, operation string) *connect.Error {
	switch ierr.CodeOf(err) {
	case ierr.CodeInvalidParam:
		return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%s: %w", operation, err))
	case ierr.CodeNotConnected, ierr.CodeTimedOut:
		return connect.NewError(connect.CodeUnavailable, fmt.Errorf("%s: %w", operation, err))
	case ierr.CodeBusy:
		return connect.NewError(connect.CodeFailedPrecondition, fmt.Errorf("%s: %w", operation, err))
	case ierr.CodeTooLarge:
		return connect.NewError(connect.CodeResourceExhausted, fmt.Errorf("%s: %w", operation, err))
	default:
		return connect.NewError(connect.CodeInternal, fmt.Errorf("%s: %w", operation, err))
	}
}
