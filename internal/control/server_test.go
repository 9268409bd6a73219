package control_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"

	"github.com/dantte-lp/intentiond/internal/control"
	"github.com/dantte-lp/intentiond/internal/coordinate"
	"github.com/dantte-lp/intentiond/internal/dispatch"
	"github.com/dantte-lp/intentiond/internal/drag"
	"github.com/dantte-lp/intentiond/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type noopBus struct{}

func (noopBus) SendPacket(string, []byte) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	disp := dispatch.New(dispatch.WithLogger(discardLogger()))
	coord := coordinate.NewMachine(discardLogger(), disp, noopBus{}, "device-a")
	dragMgr := drag.NewMachine(discardLogger(), disp, nil)
	srv, err := session.NewServer(discardLogger(), session.Callbacks{})
	if err != nil {
		t.Fatalf("NewServer() = %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go coord.Run(ctx)
	go dragMgr.Run(ctx)

	path, handler := control.New(coord, dragMgr, srv, discardLogger())

	mux := http.NewServeMux()
	mux.Handle(path, handler)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return ts, path
}

func TestGetCoordinationStateRPC(t *testing.T) {
	t.Parallel()

	ts, path := newTestServer(t)
	client := connect.NewClient[control.GetCoordinationStateRequest, control.GetCoordinationStateResponse](
		ts.Client(), ts.URL+path+"GetCoordinationState", connect.WithCodec(control.Codec()),
	)

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&control.GetCoordinationStateRequest{}))
	if err != nil {
		t.Fatalf("GetCoordinationState() = %v", err)
	}
	if resp.Msg.State != "FREE" {
		t.Fatalf("state = %q, want FREE", resp.Msg.State)
	}
}

func TestListSessionsRPCEmpty(t *testing.T) {
	t.Parallel()

	ts, path := newTestServer(t)
	client := connect.NewClient[control.ListSessionsRequest, control.ListSessionsResponse](
		ts.Client(), ts.URL+path+"ListSessions", connect.WithCodec(control.Codec()),
	)

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&control.ListSessionsRequest{}))
	if err != nil {
		t.Fatalf("ListSessions() = %v", err)
	}
	if len(resp.Msg.Sessions) != 0 {
		t.Fatalf("Sessions = %v, want empty", resp.Msg.Sessions)
	}
}

func TestStartCooperateInvalidParamRPC(t *testing.T) {
	t.Parallel()

	ts, path := newTestServer(t)
	client := connect.NewClient[control.StartCooperateRequest, control.StartCooperateResponse](
		ts.Client(), ts.URL+path+"StartCooperate", connect.WithCodec(control.Codec()),
	)

	_, err := client.CallUnary(context.Background(), connect.NewRequest(&control.StartCooperateRequest{}))
	if err == nil {
		t.Fatal("StartCooperate(empty) = nil error, want invalid argument")
	}
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Fatalf("CodeOf(err) = %v, want CodeInvalidArgument", connect.CodeOf(err))
	}
}

func TestForceCancelDragWithoutActiveDragRPC(t *testing.T) {
	t.Parallel()

	ts, path := newTestServer(t)
	client := connect.NewClient[control.ForceCancelDragRequest, control.ForceCancelDragResponse](
		ts.Client(), ts.URL+path+"ForceCancelDrag", connect.WithCodec(control.Codec()),
	)

	_, err := client.CallUnary(context.Background(), connect.NewRequest(&control.ForceCancelDragRequest{}))
	if err == nil {
		t.Fatal("ForceCancelDrag with no active drag = nil error, want failed precondition")
	}
	if connect.CodeOf(err) != connect.CodeFailedPrecondition {
		t.Fatalf("CodeOf(err) = %v, want CodeFailedPrecondition", connect.CodeOf(err))
	}
}
