package session_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dantte-lp/intentiond/internal/model"
	"github.com/dantte-lp/intentiond/internal/session"
	"github.com/dantte-lp/intentiond/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestServerAddSocketPairInfoSizesBuffers(t *testing.T) {
	t.Parallel()

	srv, err := session.NewServer(discardLogger(), session.Callbacks{})
	if err != nil {
		t.Fatalf("NewServer() = %v", err)
	}
	defer srv.Close()

	clientFd, err := srv.AddSocketPairInfo("test-native", model.TokenNative, 0, 1234)
	if err != nil {
		t.Fatalf("AddSocketPairInfo() = %v", err)
	}
	defer unix.Close(clientFd)

	got, err := unix.GetsockoptInt(clientFd, unix.SOL_SOCKET, unix.SO_SNDBUF)
	if err != nil {
		t.Fatalf("getsockopt SO_SNDBUF: %v", err)
	}
	if got < session.NativeSockBuf {
		t.Fatalf("client SO_SNDBUF = %d, want at least %d", got, session.NativeSockBuf)
	}

	if _, ok := srv.GetClientFd(1234); !ok {
		t.Fatal("GetClientFd(1234) not found after registration")
	}
}

func TestServerRunDeliversPackets(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		received []wire.NetPacket
	)
	connected := make(chan *session.Session, 1)
	disconnected := make(chan *session.Session, 1)

	srv, err := session.NewServer(discardLogger(), session.Callbacks{
		RecvFunc: func(_ *session.Session, pkt wire.NetPacket) {
			mu.Lock()
			received = append(received, pkt)
			mu.Unlock()
		},
		OnConnected:    func(s *session.Session) { connected <- s },
		OnDisconnected: func(s *session.Session) { disconnected <- s },
	})
	if err != nil {
		t.Fatalf("NewServer() = %v", err)
	}

	clientFd, err := srv.AddSocketPairInfo("test-client", model.TokenHAP, 0, 42)
	if err != nil {
		t.Fatalf("AddSocketPairInfo() = %v", err)
	}

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnConnected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- srv.Run(ctx) }()

	frame, err := wire.Encode(wire.MsgStartDrag, []byte("payload"))
	if err != nil {
		t.Fatalf("Encode() = %v", err)
	}
	if _, err := unix.Write(clientFd, frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for RecvFunc to fire")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	pkt := received[0]
	mu.Unlock()
	if pkt.MsgID != wire.MsgStartDrag || string(pkt.Payload) != "payload" {
		t.Fatalf("received packet = %+v, want MsgStartDrag/payload", pkt)
	}

	unix.Close(clientFd)

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnDisconnected after client close")
	}

	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	if err := srv.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
}

func TestServerCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	srv, err := session.NewServer(discardLogger(), session.Callbacks{})
	if err != nil {
		t.Fatalf("NewServer() = %v", err)
	}

	clientFd, err := srv.AddSocketPairInfo("test", model.TokenShell, 0, 1)
	if err != nil {
		t.Fatalf("AddSocketPairInfo() = %v", err)
	}
	defer unix.Close(clientFd)

	if err := srv.Close(); err != nil {
		t.Fatalf("first Close() = %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("second Close() = %v", err)
	}
}
