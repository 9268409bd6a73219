// Package wire implements the local-IPC and soft-bus framing protocol: a
// fixed PackHead{msg_id, size} header followed by a variable-length
// payload, plus a per-connection circular receive buffer used to carry
// partial frames across read wakeups.
package wire

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/dantte-lp/intentiond/internal/ierr"
)

// HeaderSize is the encoded size of PackHead: msg_id (int32) + size (int32).
const HeaderSize = 8

// MaxPacketBufSize is the largest payload a NetPacket may carry.
const MaxPacketBufSize = 64 * 1024

// PacketPool recycles scratch read buffers across receive-loop wakeups,
// avoiding an allocation per EPOLLIN/Read iteration on the hot path.
var PacketPool = sync.Pool{
	New: func() any {
		b := make([]byte, MaxPacketBufSize)
		return &b
	},
}

// NetPacket is a single decoded frame: a message id plus its payload.
type NetPacket struct {
	MsgID   MessageID
	Payload []byte
}

// Encode writes PackHead{msgId, size} followed by payload into a new byte
// slice, little-endian per the local IPC wire format.
func Encode(msgID MessageID, payload []byte) ([]byte, error) {
	if len(payload) > MaxPacketBufSize {
		return nil, fmt.Errorf("encode msg %d: payload %d bytes: %w", msgID, len(payload), ierr.ErrTooLarge)
	}

	buf := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(msgID))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)

	return buf, nil
}

// Decoder pulls NetPackets out of a RingBuffer, one pass at a time,
// following decode_stream's corrupted/underflow rules: a negative or
// oversized declared length stops the stream as corrupted; an incomplete
// frame leaves the ring untouched so the caller can wait for more bytes.
type Decoder struct {
	rb *RingBuffer
}

// NewDecoder returns a Decoder reading frames from rb.
func NewDecoder(rb *RingBuffer) *Decoder {
	return &Decoder{rb: rb}
}

// Next attempts to decode one NetPacket from the ring buffer. It returns
// (packet, true, nil) when a full frame was available, (NetPacket{}, false,
// nil) when there are not yet enough bytes buffered (underflow -- the
// caller should wait for more data), and a non-nil error wrapping
// ierr.ErrCorruptedStream when the declared size is invalid.
func (d *Decoder) Next() (NetPacket, bool, error) {
	if d.rb.Residual() < HeaderSize {
		return NetPacket{}, false, nil
	}

	head := d.rb.Peek(HeaderSize)
	msgID := MessageID(binary.LittleEndian.Uint32(head[0:4]))
	size := int32(binary.LittleEndian.Uint32(head[4:8]))

	if size < 0 || size > MaxPacketBufSize {
		return NetPacket{}, false, fmt.Errorf("decode msg %d: declared size %d: %w", msgID, size, ierr.ErrCorruptedStream)
	}

	total := HeaderSize + int(size)
	if d.rb.Residual() < total {
		return NetPacket{}, false, nil
	}

	frame := d.rb.Peek(total)
	payload := make([]byte, size)
	copy(payload, frame[HeaderSize:total])
	d.rb.SeekRead(total)

	return NetPacket{MsgID: msgID, Payload: payload}, true, nil
}

// DecodeAll drains every complete frame currently buffered in rb, invoking
// fn for each in arrival order. It stops and returns the first corruption
// error encountered, leaving any undecoded trailing bytes in rb.
func DecodeAll(rb *RingBuffer, fn func(NetPacket) error) error {
	dec := NewDecoder(rb)
	for {
		pkt, ok, err := dec.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(pkt); err != nil {
			return err
		}
	}
}
