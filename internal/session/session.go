// Package session implements the local session server: pairs of connected
// AF_UNIX SOCK_STREAM sockets to local clients, demultiplexed by a single
// epoll loop, each fd backed by a circular receive buffer and a framed
// packet decoder.
package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/dantte-lp/intentiond/internal/ierr"
	"github.com/dantte-lp/intentiond/internal/model"
	"github.com/dantte-lp/intentiond/internal/wire"
)

// Default and native-token socket buffer sizes.
const (
	DefaultSockBuf = 32 * 1024
	NativeSockBuf  = 64 * 1024
)

// recvBufCapacity is the RingBuffer capacity backing each session. It must
// comfortably exceed MaxPacketBufSize so a single maximum-size frame never
// needs more than one compaction cycle to land contiguously.
const recvBufCapacity = wire.MaxPacketBufSize + wire.HeaderSize + 4096

// Session is one local client connection: the server-side half of a
// socketpair, its receive ring buffer, and its identity.
type Session struct {
	fd          int
	pid         int32
	uid         int32
	programName string
	tokenType   model.TokenType

	rb *wire.RingBuffer

	sendMu sync.Mutex
	closed atomic.Bool
}

// Fd returns the server-side file descriptor, used as the map key in
// Server and as the "unique file-descriptor-id" of the data model.
func (s *Session) Fd() int { return s.fd }

// Pid returns the client's process id.
func (s *Session) Pid() int32 { return s.pid }

// Uid returns the client's user id.
func (s *Session) Uid() int32 { return s.uid }

// ProgramName returns the client's registered program name.
func (s *Session) ProgramName() string { return s.programName }

// TokenType returns the client's trust tier.
func (s *Session) TokenType() model.TokenType { return s.tokenType }

// Closed reports whether the session has already been torn down.
func (s *Session) Closed() bool { return s.closed.Load() }

// SendPacket encodes msgID/payload and writes the frame to the client.
// Writes are serialized per session (a single send queue, FIFO per the
// concurrency model) via sendMu; SendPacket may be called concurrently
// from multiple goroutines emitting notifications.
func (s *Session) SendPacket(msgID wire.MessageID, payload []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("send to session fd=%d: %w", s.fd, ierr.ErrNotConnected)
	}

	frame, err := wire.Encode(msgID, payload)
	if err != nil {
		return fmt.Errorf("encode msg %d for fd=%d: %w", msgID, s.fd, err)
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	for len(frame) > 0 {
		n, err := unix.Write(s.fd, frame)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return fmt.Errorf("write to session fd=%d: %w: %w", s.fd, ierr.ErrMsgSendFail, err)
		}
		frame = frame[n:]
	}

	return nil
}

// close releases OS resources. Idempotent: a session may be closed once
// from the epoll loop (EPOLLHUP) and once from explicit shutdown without
// double-closing the fd.
func (s *Session) close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	_ = unix.Close(s.fd)
}
