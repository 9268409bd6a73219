package control

import (
	"context"
	"net"
	"net/http"

	"connectrpc.com/connect"
)

// Client is intentionctl's handle to a running intentiond's control plane.
// It wraps one connect.Client per RPC rather than a generated service
// client, mirroring this package's hand-registered server handlers (see
// codec.go and DESIGN.md's Open Question decision).
type Client struct {
	startCooperate       *connect.Client[StartCooperateRequest, StartCooperateResponse]
	stopCooperate        *connect.Client[StopCooperateRequest, StopCooperateResponse]
	forceCancelDrag      *connect.Client[ForceCancelDragRequest, ForceCancelDragResponse]
	getCoordinationState *connect.Client[GetCoordinationStateRequest, GetCoordinationStateResponse]
	getDragState         *connect.Client[GetDragStateRequest, GetDragStateResponse]
	listSessions         *connect.Client[ListSessionsRequest, ListSessionsResponse]
}

// DialUnix builds an *http.Client whose transport dials a Unix-domain
// socket at socketPath for every request, regardless of the URL's host --
// the control plane is always addressed as "http://intentiond/<method>"
// over that socket.
func DialUnix(socketPath string) *http.Client {
	dialer := net.Dialer{}
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return dialer.DialContext(ctx, "unix", socketPath)
			},
		},
	}
}

// NewClient constructs a Client issuing RPCs over httpClient against
// baseURL (typically "http://intentiond" when httpClient dials a Unix
// socket via DialUnix).
func NewClient(httpClient *http.Client, baseURL string) *Client {
	opts := []connect.ClientOption{connect.WithCodec(jsonCodec{})}
	return &Client{
		startCooperate:       connect.NewClient[StartCooperateRequest, StartCooperateResponse](httpClient, baseURL+servicePath+"StartCooperate", opts...),
		stopCooperate:        connect.NewClient[StopCooperateRequest, StopCooperateResponse](httpClient, baseURL+servicePath+"StopCooperate", opts...),
		forceCancelDrag:      connect.NewClient[ForceCancelDragRequest, ForceCancelDragResponse](httpClient, baseURL+servicePath+"ForceCancelDrag", opts...),
		getCoordinationState: connect.NewClient[GetCoordinationStateRequest, GetCoordinationStateResponse](httpClient, baseURL+servicePath+"GetCoordinationState", opts...),
		getDragState:         connect.NewClient[GetDragStateRequest, GetDragStateResponse](httpClient, baseURL+servicePath+"GetDragState", opts...),
		listSessions:         connect.NewClient[ListSessionsRequest, ListSessionsResponse](httpClient, baseURL+servicePath+"ListSessions", opts...),
	}
}

func (c *Client) StartCooperate(ctx context.Context, req *StartCooperateRequest) (*StartCooperateResponse, error) {
	resp, err := c.startCooperate.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) StopCooperate(ctx context.Context, req *StopCooperateRequest) (*StopCooperateResponse, error) {
	resp, err := c.stopCooperate.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) ForceCancelDrag(ctx context.Context, req *ForceCancelDragRequest) (*ForceCancelDragResponse, error) {
	resp, err := c.forceCancelDrag.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) GetCoordinationState(ctx context.Context, req *GetCoordinationStateRequest) (*GetCoordinationStateResponse, error) {
	resp, err := c.getCoordinationState.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) GetDragState(ctx context.Context, req *GetDragStateRequest) (*GetDragStateResponse, error) {
	resp, err := c.getDragState.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) ListSessions(ctx context.Context, req *ListSessionsRequest) (*ListSessionsResponse, error) {
	resp, err := c.listSessions.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
