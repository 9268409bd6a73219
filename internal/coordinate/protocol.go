package coordinate

import (
	"encoding/json"
	"fmt"

	"github.com/dantte-lp/intentiond/internal/wire"
)

// Peer protocol message ids, carried as soft-bus bytes with a JSON-encoded
// payload. Distinct numbering from internal/wire/ids.go's
// local-IPC message ids: these travel over the soft-bus peer connection, a
// separate address space entirely.
const (
	MsgStartRequest          wire.MessageID = 100
	MsgStartResponse         wire.MessageID = 101
	MsgStopRequest           wire.MessageID = 102
	MsgStopResponse          wire.MessageID = 103
	MsgStartOtherResult      wire.MessageID = 104
	MsgUnchainedNotification wire.MessageID = 105
	MsgFilterAddedNotify     wire.MessageID = 106
)

// StartRequest asks the peer to accept this device as the input source.
type StartRequest struct {
	LocalNetworkID string `json:"local_network_id"`
	StartInputDhid string `json:"start_input_device_id"`
}

// StartResponse is the peer's reply to a StartRequest.
type StartResponse struct {
	IsSuccess bool    `json:"is_success"`
	StartDhid string  `json:"start_dhid"`
	XPercent  float64 `json:"x_percent"`
	YPercent  float64 `json:"y_percent"`
}

// StopRequest asks the peer to end the active coordination session.
type StopRequest struct {
	IsUnchained bool `json:"is_unchained"`
}

// StopResponse is the peer's reply to a StopRequest.
type StopResponse struct {
	IsSuccess bool `json:"is_success"`
}

// StartOtherResult reports the outcome of a start negotiation that was
// relayed through a third device.
type StartOtherResult struct {
	OriginNetworkID string `json:"origin_network_id"`
}

// UnchainedNotification announces that a coordination session has ended.
type UnchainedNotification struct {
	Local     string `json:"local"`
	Remote    string `json:"remote"`
	IsSuccess bool   `json:"is_success"`
}

// FilterAddedNotification announces a new input filter was installed on the
// peer; it carries no fields beyond its message id.
type FilterAddedNotification struct{}

// encode marshals v to JSON and frames it with msgID per the local wire
// codec, reusing the same header format over the soft-bus transport.
func encode(msgID wire.MessageID, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("coordinate: marshal msg %d: %w", msgID, err)
	}
	return wire.Encode(msgID, payload)
}
