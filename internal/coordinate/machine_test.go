package coordinate_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dantte-lp/intentiond/internal/coordinate"
	"github.com/dantte-lp/intentiond/internal/dispatch"
	"github.com/dantte-lp/intentiond/internal/model"
	"github.com/dantte-lp/intentiond/internal/session"
	"github.com/dantte-lp/intentiond/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pairedBus wires two Machines' SendPacket/OnPacket surfaces together
// in-process, standing in for softbus.Adapter's real TCP transport plus
// its observer dispatch -- a fake at the PeerSender seam, per
// coordinate.PeerSender's doc comment. Each Machine sends through its own
// port so deliveries carry the sender's networkId, the same identity the
// real adapter learns from the connection a frame arrived on.
type pairedBus struct {
	mu   sync.Mutex
	peer map[string]*coordinate.Machine // networkID -> the Machine representing that device
}

func newPairedBus() *pairedBus {
	return &pairedBus{peer: make(map[string]*coordinate.Machine)}
}

func (b *pairedBus) register(networkID string, m *coordinate.Machine) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peer[networkID] = m
}

// port returns the PeerSender the device named self sends through.
func (b *pairedBus) port(self string) *busPort {
	return &busPort{bus: b, self: self}
}

// deliver hands frame to the Machine registered under to, attributed to
// the sending device from. Dispatch happens on its own goroutine, the way
// the real adapter's read loop delivers inbound frames; a synchronous
// callback here would let one machine's command goroutine block inside
// the other's post().
func (b *pairedBus) deliver(from, to string, frame []byte) error {
	b.mu.Lock()
	m := b.peer[to]
	b.mu.Unlock()
	if m == nil {
		return nil
	}

	rb := wire.NewRingBuffer(4096)
	rb.Write(frame)

	var pkts []wire.NetPacket
	if err := wire.DecodeAll(rb, func(pkt wire.NetPacket) error {
		pkts = append(pkts, pkt)
		return nil
	}); err != nil {
		return err
	}

	go func() {
		for _, pkt := range pkts {
			m.OnPacket(from, pkt)
		}
	}()
	return nil
}

// busPort is one device's view of the pairedBus.
type busPort struct {
	bus  *pairedBus
	self string
}

func (p *busPort) SendPacket(networkID string, frame []byte) error {
	return p.bus.deliver(p.self, networkID, frame)
}

// fakeSession wraps a real socketpair-backed session so SendPacket
// notifications to the requesting client can be read back off the wire.
type fakeSession struct {
	srv      *session.Server
	sess     *session.Session
	clientFd int
}

func newFakeSession(t *testing.T, disp *dispatch.Dispatcher) *fakeSession {
	t.Helper()

	srv, err := session.NewServer(discardLogger(), session.Callbacks{})
	if err != nil {
		t.Fatalf("NewServer() = %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })

	clientFd, err := srv.AddSocketPairInfo("test-client", model.TokenNative, 0, 1)
	if err != nil {
		t.Fatalf("AddSocketPairInfo() = %v", err)
	}
	t.Cleanup(func() { _ = unix.Close(clientFd) })

	fd, ok := srv.GetClientFd(1)
	if !ok {
		t.Fatal("session not registered")
	}
	sess, ok := srv.GetSession(fd)
	if !ok {
		t.Fatal("GetSession failed")
	}

	disp.Add(wire.EventCoordinationState, sess, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)
	t.Cleanup(cancel)

	return &fakeSession{srv: srv, sess: sess, clientFd: clientFd}
}

func (f *fakeSession) readPacket(t *testing.T, timeout time.Duration) wire.NetPacket {
	t.Helper()

	deadline := time.Now().Add(timeout)
	if err := unix.SetNonblock(f.clientFd, false); err != nil {
		t.Fatalf("set blocking: %v", err)
	}

	rb := wire.NewRingBuffer(4096)
	buf := make([]byte, 256)
	for {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for packet")
		}
		n, err := unix.Read(f.clientFd, buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if n > 0 {
			rb.Write(buf[:n])
			pkt, ok, derr := wire.NewDecoder(rb).Next()
			if derr != nil {
				t.Fatalf("decode: %v", derr)
			}
			if ok {
				return pkt
			}
		}
	}
}

// In state FREE, StartCooperate with an empty remote id fails immediately
// with COOPERATION_DEVICE_ERROR; the state stays FREE and no peer message
// is emitted.
func TestStartCooperateEmptyRemoteIDFails(t *testing.T) {
	t.Parallel()

	disp := dispatch.New(dispatch.WithLogger(discardLogger()))
	bus := newPairedBus()
	m := coordinate.NewMachine(discardLogger(), disp, bus.port("device-a"), "device-a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	msg, err := m.StartCooperate(context.Background(), "", "input-0", nil, 100, 1)
	if err == nil {
		t.Fatal("StartCooperate(\"\") = nil error, want invalid param error")
	}
	if msg != model.CoopDeviceError {
		t.Fatalf("StartCooperate(\"\") message = %v, want CoopDeviceError", msg)
	}
	if m.State() != coordinate.StateFree {
		t.Fatalf("state after failed StartCooperate = %v, want FREE", m.State())
	}
}

// Full negotiation: device A calls StartCooperate against device B; B
// accepts (state FREE on its side) and A lands in OUT while B lands in IN.
func TestStartCooperateFullNegotiation(t *testing.T) {
	t.Parallel()

	bus := newPairedBus()

	dispA := dispatch.New(dispatch.WithLogger(discardLogger()))
	mA := coordinate.NewMachine(discardLogger(), dispA, bus.port("device-a"), "device-a")
	bus.register("device-a", mA)

	dispB := dispatch.New(dispatch.WithLogger(discardLogger()))
	mB := coordinate.NewMachine(discardLogger(), dispB, bus.port("device-b"), "device-b")
	bus.register("device-b", mB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mA.Run(ctx)
	go mB.Run(ctx)

	fs := newFakeSession(t, dispA)

	msg, err := mA.StartCooperate(context.Background(), "device-b", "input-0", fs.sess, 200, 2)
	if err != nil {
		t.Fatalf("StartCooperate() = %v", err)
	}
	if msg != model.CoopSuccess {
		t.Fatalf("StartCooperate() message = %v, want CoopSuccess", msg)
	}

	deadline := time.Now().Add(2 * time.Second)
	for mA.State() != coordinate.StateOut {
		if time.Now().After(deadline) {
			t.Fatalf("device A state = %v after negotiation, want OUT", mA.State())
		}
		time.Sleep(time.Millisecond)
	}
	deadline = time.Now().Add(2 * time.Second)
	for mB.State() != coordinate.StateIn {
		if time.Now().After(deadline) {
			t.Fatalf("device B state = %v after negotiation, want IN", mB.State())
		}
		time.Sleep(time.Millisecond)
	}

	pkt := fs.readPacket(t, 2*time.Second)
	var payload coordinate.EventPayload
	if err := json.Unmarshal(pkt.Payload, &payload); err != nil {
		t.Fatalf("unmarshal event payload: %v", err)
	}
	if payload.Message != model.CoopSuccess.String() || payload.NetworkID != "device-b" {
		t.Fatalf("notification payload = %+v, want message=%s network_id=device-b", payload, model.CoopSuccess)
	}

	if err := mA.StopCooperate(context.Background(), "device-b"); err != nil {
		t.Fatalf("StopCooperate() = %v", err)
	}
	deadline = time.Now().Add(2 * time.Second)
	for mA.State() != coordinate.StateFree {
		if time.Now().After(deadline) {
			t.Fatalf("device A state after StopCooperate = %v, want FREE", mA.State())
		}
		time.Sleep(time.Millisecond)
	}
	deadline = time.Now().Add(2 * time.Second)
	for mB.State() != coordinate.StateFree {
		if time.Now().After(deadline) {
			t.Fatalf("device B state after peer STOP_REQUEST = %v, want FREE", mB.State())
		}
		time.Sleep(time.Millisecond)
	}
}

// A StartCooperate call while already OUT is rejected with ErrBusy rather
// than silently absorbed or re-negotiated.
func TestStartCooperateBusyWhileNotFree(t *testing.T) {
	t.Parallel()

	bus := newPairedBus()

	dispA := dispatch.New(dispatch.WithLogger(discardLogger()))
	mA := coordinate.NewMachine(discardLogger(), dispA, bus.port("device-a"), "device-a")
	bus.register("device-a", mA)

	dispB := dispatch.New(dispatch.WithLogger(discardLogger()))
	mB := coordinate.NewMachine(discardLogger(), dispB, bus.port("device-b"), "device-b")
	bus.register("device-b", mB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mA.Run(ctx)
	go mB.Run(ctx)

	if _, err := mA.StartCooperate(context.Background(), "device-b", "input-0", nil, 1, 1); err != nil {
		t.Fatalf("StartCooperate() = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for mA.State() != coordinate.StateOut {
		if time.Now().After(deadline) {
			t.Fatalf("device A state = %v after negotiation, want OUT", mA.State())
		}
		time.Sleep(time.Millisecond)
	}

	_, err := mA.StartCooperate(context.Background(), "device-b", "input-0", nil, 1, 1)
	if err == nil {
		t.Fatal("second StartCooperate() while OUT = nil error, want ErrBusy")
	}
}
