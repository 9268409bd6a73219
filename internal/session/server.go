package session

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/dantte-lp/intentiond/internal/model"
	"github.com/dantte-lp/intentiond/internal/wire"
)

// maxRecvLimit bounds the number of nonblocking recv iterations performed
// per EPOLLIN wakeup, preventing one busy client from starving the epoll
// loop's other fds.
const maxRecvLimit = 64

// epollWaitTimeoutMillis bounds each EpollWait call so Run can observe
// context cancellation promptly without a dedicated wakeup fd.
const epollWaitTimeoutMillis = 200

// MetricsReporter receives session lifecycle and packet accounting events.
// Implemented by telemetry.Collector; a no-op reporter is used when no
// collector is configured.
type MetricsReporter interface {
	RegisterSession(program, tokenType string)
	UnregisterSession(program, tokenType string)
	SessionPacketReceived(program, tokenType string)
	SessionPacketDropped(program, tokenType string)
}

type noopMetrics struct{}

func (noopMetrics) RegisterSession(string, string) {}

func (noopMetrics) UnregisterSession(string, string) {}

func (noopMetrics) SessionPacketReceived(string, string) {}

func (noopMetrics) SessionPacketDropped(string, string) {}

// Callbacks are invoked by the server's epoll loop as sessions connect,
// deliver frames, and disconnect. All three fields are optional.
type Callbacks struct {
	// RecvFunc is invoked once per decoded NetPacket, in arrival order.
	RecvFunc func(*Session, wire.NetPacket)
	// OnConnected fires after a session is registered and added to epoll.
	OnConnected func(*Session)
	// OnDisconnected fires after a session's resources have been released
	// (EPOLLHUP/EPOLLERR, peer EOF, or a corrupted stream on that fd only).
	OnDisconnected func(*Session)
}

// Server is the local session server: one epoll instance multiplexing all
// connected AF_UNIX SOCK_STREAM sockets handed out via AddSocketPairInfo.
type Server struct {
	epfd    int
	logger  *slog.Logger
	cb      Callbacks
	metrics MetricsReporter

	mu       sync.RWMutex
	sessions map[int]*Session
	byPid    map[int32]int

	closed atomic.Bool
}

// ServerOption configures optional Server parameters.
type ServerOption func(*Server)

// WithMetrics attaches a MetricsReporter to the server. If mr is nil, the
// no-op reporter stays in place.
func WithMetrics(mr MetricsReporter) ServerOption {
	return func(s *Server) {
		if mr != nil {
			s.metrics = mr
		}
	}
}

// NewServer creates an epoll instance and returns a Server ready to accept
// socketpair registrations and to run its event loop.
func NewServer(logger *slog.Logger, cb Callbacks, opts ...ServerOption) (*Server, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("create epoll instance: %w", err)
	}

	s := &Server{
		epfd:     epfd,
		logger:   logger,
		cb:       cb,
		metrics:  noopMetrics{},
		sessions: make(map[int]*Session),
		byPid:    make(map[int32]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AddSocketPairInfo creates a socketpair, sizes its send/receive buffers
// (DefaultSockBuf, or NativeSockBuf for NATIVE-token clients), registers
// the server-side fd with the epoll loop, and returns the peer-side fd the
// caller hands to the connecting client.
func (s *Server) AddSocketPairInfo(programName string, tokenType model.TokenType, uid, pid int32) (clientFd int, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socketpair for pid=%d: %w", pid, err)
	}
	serverFd, peerFd := fds[0], fds[1]

	if err := s.configureSocketPair(serverFd, peerFd, tokenType); err != nil {
		_ = unix.Close(serverFd)
		_ = unix.Close(peerFd)
		return -1, err
	}

	if err := unix.SetNonblock(serverFd, true); err != nil {
		_ = unix.Close(serverFd)
		_ = unix.Close(peerFd)
		return -1, fmt.Errorf("set nonblocking fd=%d: %w", serverFd, err)
	}

	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, serverFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(serverFd),
	}); err != nil {
		_ = unix.Close(serverFd)
		_ = unix.Close(peerFd)
		return -1, fmt.Errorf("epoll_ctl add fd=%d: %w", serverFd, err)
	}

	sess := &Session{
		fd:          serverFd,
		pid:         pid,
		uid:         uid,
		programName: programName,
		tokenType:   tokenType,
		rb:          wire.NewRingBuffer(recvBufCapacity),
	}

	s.mu.Lock()
	s.sessions[serverFd] = sess
	s.byPid[pid] = serverFd
	s.mu.Unlock()

	s.metrics.RegisterSession(programName, tokenType.String())

	if s.cb.OnConnected != nil {
		s.cb.OnConnected(sess)
	}

	return peerFd, nil
}

// configureSocketPair sizes both ends of the pair: the server-side fd
// always gets DefaultSockBuf; the client-side fd gets NativeSockBuf for
// NATIVE-token clients, DefaultSockBuf otherwise.
func (s *Server) configureSocketPair(serverFd, peerFd int, tokenType model.TokenType) error {
	if err := setSockBuf(serverFd, DefaultSockBuf); err != nil {
		return err
	}

	clientBuf := DefaultSockBuf
	if tokenType == model.TokenNative {
		clientBuf = NativeSockBuf
	}
	return setSockBuf(peerFd, clientBuf)
}

func setSockBuf(fd, size int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, size); err != nil {
		return fmt.Errorf("setsockopt SO_SNDBUF fd=%d: %w", fd, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, size); err != nil {
		return fmt.Errorf("setsockopt SO_RCVBUF fd=%d: %w", fd, err)
	}
	return nil
}

// GetSession returns the session registered under fd, if any.
func (s *Server) GetSession(fd int) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[fd]
	return sess, ok
}

// GetClientFd returns the server-side fd registered for pid, if any.
func (s *Server) GetClientFd(pid int32) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fd, ok := s.byPid[pid]
	return fd, ok
}

// Sessions returns every currently connected Session, in no particular
// order. Used by the control-plane ListSessions RPC and diagnostics.
func (s *Server) Sessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// Run drives the epoll loop on the calling goroutine until ctx is
// cancelled. It locks the OS thread for the duration of the loop so that
// epoll_wait's blocking syscall does not migrate across Go's scheduler,
// matching the session-server-owns-one-dedicated-thread design.
func (s *Server) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	events := make([]unix.EpollEvent, 64)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := unix.EpollWait(s.epfd, events, epollWaitTimeoutMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			s.handleEvent(events[i])
		}
	}
}

func (s *Server) handleEvent(ev unix.EpollEvent) {
	fd := int(ev.Fd)

	s.mu.RLock()
	sess := s.sessions[fd]
	s.mu.RUnlock()
	if sess == nil {
		return
	}

	if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		s.releaseSession(fd)
		return
	}

	if ev.Events&unix.EPOLLIN != 0 {
		s.handleReadable(sess)
	}
}

// handleReadable performs up to maxRecvLimit nonblocking recv iterations
// into the session's ring buffer, decoding and dispatching every complete
// frame after each successful read.
func (s *Server) handleReadable(sess *Session) {
	bufp := wire.PacketPool.Get().(*[]byte)
	defer wire.PacketPool.Put(bufp)
	scratch := *bufp

	for i := 0; i < maxRecvLimit; i++ {
		n, err := unix.Read(sess.fd, scratch)
		if n == 0 && err == nil {
			s.releaseSession(sess.fd)
			return
		}
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			if err == unix.EINTR {
				continue
			}
			s.releaseSession(sess.fd)
			return
		}

		if !sess.rb.Write(scratch[:n]) {
			s.logger.Warn("session receive buffer full, dropping until drained",
				slog.Int("fd", sess.fd),
			)
			s.metrics.SessionPacketDropped(sess.programName, sess.tokenType.String())
			return
		}

		decodeErr := wire.DecodeAll(sess.rb, func(pkt wire.NetPacket) error {
			s.metrics.SessionPacketReceived(sess.programName, sess.tokenType.String())
			if s.cb.RecvFunc != nil {
				s.cb.RecvFunc(sess, pkt)
			}
			return nil
		})
		if decodeErr != nil {
			// CORRUPTED_STREAM on one peer closes only that peer's
			// session; other sessions are unaffected.
			s.logger.Warn("corrupted packet stream, closing session",
				slog.Int("fd", sess.fd),
				slog.String("error", decodeErr.Error()),
			)
			s.metrics.SessionPacketDropped(sess.programName, sess.tokenType.String())
			s.releaseSession(sess.fd)
			return
		}

		if n < len(scratch) {
			return
		}
	}
}

// releaseSession removes fd from the epoll set and the session maps, runs
// session-deleted callbacks, and closes the fd. Idempotent: calling it
// twice for the same fd after the first call has already removed the
// entry is a no-op.
func (s *Server) releaseSession(fd int) {
	s.mu.Lock()
	sess, ok := s.sessions[fd]
	if ok {
		delete(s.sessions, fd)
		delete(s.byPid, sess.pid)
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	_ = unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	sess.close()

	s.metrics.UnregisterSession(sess.programName, sess.tokenType.String())

	if s.cb.OnDisconnected != nil {
		s.cb.OnDisconnected(sess)
	}
}

// Close closes every session and then the listen epoll fd. Safe to call
// once; a second call is a no-op.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	fds := make([]int, 0, len(s.sessions))
	for fd := range s.sessions {
		fds = append(fds, fd)
	}
	s.mu.Unlock()

	for _, fd := range fds {
		s.releaseSession(fd)
	}

	if err := unix.Close(s.epfd); err != nil {
		return fmt.Errorf("close epoll fd: %w", err)
	}
	return nil
}
