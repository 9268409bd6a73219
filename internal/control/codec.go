package control

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// Codec returns the connect.Codec used by this package's handlers, exported
// so intentionctl (and tests) can register the matching codec on the
// client side.
func Codec() connect.Codec { return jsonCodec{} }

// jsonCodec implements connect.Codec over plain Go structs, used in place
// of the protobuf codec connect-go defaults to. The control plane here has
// no .proto source to generate message types or client/server stubs from
// (see DESIGN.md's Open Question decision), so every request/response is a
// plain struct and every RPC is registered by hand with this codec.
type jsonCodec struct{}

// Name satisfies connect.Codec; it becomes the wire "Content-Type" subtype
// and the "Accept-Encoding"-style codec name Connect negotiates on.
func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
