package softbus_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dantte-lp/intentiond/internal/ierr"
	"github.com/dantte-lp/intentiond/internal/softbus"
	"github.com/dantte-lp/intentiond/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// listenOnce starts a one-shot TCP listener and returns its address plus a
// channel delivering the first accepted connection.
func listenOnce(t *testing.T) (addr string, accepted <-chan net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	ch := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		ch <- conn
	}()

	return ln.Addr().String(), ch
}

func TestOpenSessionAndSendPacket(t *testing.T) {
	t.Parallel()

	addr, accepted := listenOnce(t)

	a := softbus.NewAdapter(discardLogger())
	if err := a.Enable(); err != nil {
		t.Fatalf("Enable() = %v", err)
	}
	defer a.Disable()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.OpenSession(ctx, "device-b", addr); err != nil {
		t.Fatalf("OpenSession() = %v", err)
	}
	if !a.HasSession("device-b") {
		t.Fatal("HasSession(device-b) = false after OpenSession")
	}

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept")
	}
	defer conn.Close()

	frame, err := wire.Encode(wire.MsgStartCoordination, []byte("remote-a"))
	if err != nil {
		t.Fatalf("Encode() = %v", err)
	}
	if err := a.SendPacket("device-b", frame); err != nil {
		t.Fatalf("SendPacket() = %v", err)
	}

	buf := make([]byte, 64)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read at peer: %v", err)
	}

	rb := wire.NewRingBuffer(128)
	rb.Write(buf[:n])
	pkt, ok, err := wire.NewDecoder(rb).Next()
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if pkt.MsgID != wire.MsgStartCoordination || string(pkt.Payload) != "remote-a" {
		t.Fatalf("received = %+v", pkt)
	}
}

func TestSendPacketUnknownNetworkID(t *testing.T) {
	t.Parallel()

	a := softbus.NewAdapter(discardLogger())
	_ = a.Enable()
	defer a.Disable()

	err := a.SendPacket("nope", []byte("x"))
	if !errors.Is(err, ierr.ErrNotConnected) {
		t.Fatalf("SendPacket() = %v, want ErrNotConnected", err)
	}
}

func TestOpenSessionWhileDisabledFails(t *testing.T) {
	t.Parallel()

	a := softbus.NewAdapter(discardLogger())

	err := a.OpenSession(context.Background(), "device-b", "127.0.0.1:0")
	if !errors.Is(err, ierr.ErrNotConnected) {
		t.Fatalf("OpenSession() on disabled adapter = %v, want ErrNotConnected", err)
	}
}

func TestObserverShortCircuit(t *testing.T) {
	t.Parallel()

	addr, accepted := listenOnce(t)

	a := softbus.NewAdapter(discardLogger())
	_ = a.Enable()
	defer a.Disable()

	var mu sync.Mutex
	var firstCalls, secondCalls int
	first := softbus.ObserverFunc(func(_ string, _ wire.NetPacket) bool {
		mu.Lock()
		firstCalls++
		mu.Unlock()
		return true
	})
	second := softbus.ObserverFunc(func(_ string, _ wire.NetPacket) bool {
		mu.Lock()
		secondCalls++
		mu.Unlock()
		return true
	})
	a.AddObserver(first)
	a.AddObserver(second)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.OpenSession(ctx, "device-c", addr); err != nil {
		t.Fatalf("OpenSession() = %v", err)
	}

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept")
	}
	defer conn.Close()

	frame, err := wire.Encode(wire.MsgGetCoordinationState, nil)
	if err != nil {
		t.Fatalf("Encode() = %v", err)
	}
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("write from peer: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		fc := firstCalls
		mu.Unlock()
		if fc > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for observer dispatch")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if firstCalls != 1 {
		t.Fatalf("firstCalls = %d, want 1", firstCalls)
	}
	if secondCalls != 0 {
		t.Fatalf("secondCalls = %d, want 0 (short-circuited)", secondCalls)
	}
}

// TestCloseSessionUnknown verifies that closing an already-down (or
// never-opened) networkId succeeds rather than erroring.
func TestCloseSessionUnknown(t *testing.T) {
	t.Parallel()

	a := softbus.NewAdapter(discardLogger())
	_ = a.Enable()
	defer a.Disable()

	err := a.CloseSession("nope")
	if err != nil {
		t.Fatalf("CloseSession() on unknown networkId = %v, want nil", err)
	}
}

// shutdownRecorder implements softbus.Observer, recording every OnShutdown
// call it receives.
type shutdownRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *shutdownRecorder) OnPacket(string, wire.NetPacket) bool { return false }

func (r *shutdownRecorder) OnShutdown(networkID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, networkID)
}

func (r *shutdownRecorder) shutdowns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

func TestCloseSessionNotifiesObservers(t *testing.T) {
	t.Parallel()

	addr, accepted := listenOnce(t)

	a := softbus.NewAdapter(discardLogger())
	_ = a.Enable()
	defer a.Disable()

	rec := &shutdownRecorder{}
	a.AddObserver(rec)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.OpenSession(ctx, "device-b", addr); err != nil {
		t.Fatalf("OpenSession() = %v", err)
	}
	select {
	case conn := <-accepted:
		defer conn.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept")
	}

	if err := a.CloseSession("device-b"); err != nil {
		t.Fatalf("CloseSession() = %v", err)
	}

	if got := rec.shutdowns(); len(got) != 1 || got[0] != "device-b" {
		t.Fatalf("OnShutdown calls = %v, want [device-b]", got)
	}
}

// TestPeerPacketDemuxSplitFrames feeds two concatenated frames to the
// receive path split mid-header and expects exactly two packets, in
// order, regardless of the chunk boundary.
func TestPeerPacketDemuxSplitFrames(t *testing.T) {
	t.Parallel()

	addr, accepted := listenOnce(t)

	a := softbus.NewAdapter(discardLogger())
	_ = a.Enable()
	defer a.Disable()

	var mu sync.Mutex
	var got []wire.NetPacket
	a.AddObserver(softbus.ObserverFunc(func(_ string, pkt wire.NetPacket) bool {
		mu.Lock()
		got = append(got, pkt)
		mu.Unlock()
		return true
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.OpenSession(ctx, "device-d", addr); err != nil {
		t.Fatalf("OpenSession() = %v", err)
	}

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept")
	}
	defer conn.Close()

	first, err := wire.Encode(7, []byte("hello"))
	if err != nil {
		t.Fatalf("Encode(7) = %v", err)
	}
	second, err := wire.Encode(9, nil)
	if err != nil {
		t.Fatalf("Encode(9) = %v", err)
	}
	stream := append(first, second...)

	// Split at offset 3, mid-header of the first frame.
	if _, err := conn.Write(stream[:3]); err != nil {
		t.Fatalf("write first chunk: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, err := conn.Write(stream[3:]); err != nil {
		t.Fatalf("write second chunk: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for both packets, got %d", n)
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("got %d packets, want 2", len(got))
	}
	if got[0].MsgID != 7 || string(got[0].Payload) != "hello" {
		t.Fatalf("got[0] = %+v, want msgID=7 payload=hello", got[0])
	}
	if got[1].MsgID != 9 || len(got[1].Payload) != 0 {
		t.Fatalf("got[1] = %+v, want msgID=9 empty payload", got[1])
	}
}
