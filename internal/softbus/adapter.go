// Package softbus adapts the cross-device transport ("soft bus") used to
// exchange coordination and drag protocol messages with a single remote
// peer device. It presents a small Enable/Disable/OpenSession/CloseSession/
// SendPacket surface over a TCP connection, keyed by networkId.
package softbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dantte-lp/intentiond/internal/ierr"
	"github.com/dantte-lp/intentiond/internal/wire"
)

// helloMsgID is internal/coordinate.MsgStartRequest's wire id. Duplicated
// here (rather than imported) because internal/coordinate already imports
// this package as its PeerSender transport -- importing back would cycle.
// A StartRequest is always the first frame of any negotiation, so it
// doubles as the soft-bus handshake that tells an inbound listener which
// networkId just dialed in.
const helloMsgID wire.MessageID = 100

// helloPayload mirrors coordinate.StartRequest's wire shape just enough to
// read the sender's networkId back out of an inbound hello frame.
type helloPayload struct {
	LocalNetworkID string `json:"local_network_id"`
}

// Keepalive tunables applied to every peer connection.
const (
	keepIdle     = 10 * time.Second
	keepCount    = 5
	keepInterval = 1 * time.Second
)

// Soft-bus service names. The server side registers under ServerSessionName;
// client-side sessions are named by ClientSessionPrefix plus the first 15
// characters of the peer networkId.
const (
	ServerSessionName   = "ohos.msdp.device_status.intention.serversession"
	ClientSessionPrefix = "ohos.msdp.device_status.intention.clientsession."
)

// clientSessionName builds the named-socket identity for a dialed peer.
func clientSessionName(networkID string) string {
	if len(networkID) > 15 {
		networkID = networkID[:15]
	}
	return ClientSessionPrefix + networkID
}

var errAdapterDisabled = fmt.Errorf("soft bus: %w", ierr.ErrNotConnected)

// MetricsReporter receives peer transport accounting events. Implemented
// by telemetry.Collector; a no-op reporter is used when no collector is
// configured.
type MetricsReporter interface {
	SoftBusPacketSent(networkID string)
	SoftBusPacketDropped(networkID string)
}

type noopMetrics struct{}

func (noopMetrics) SoftBusPacketSent(string) {}

func (noopMetrics) SoftBusPacketDropped(string) {}

// AdapterOption configures optional Adapter parameters.
type AdapterOption func(*Adapter)

// WithMetrics attaches a MetricsReporter to the adapter. If mr is nil, the
// no-op reporter stays in place.
func WithMetrics(mr MetricsReporter) AdapterOption {
	return func(a *Adapter) {
		if mr != nil {
			a.metrics = mr
		}
	}
}

// peerSession is the single open connection to one remote device.
type peerSession struct {
	networkID string
	conn      net.Conn

	sendMu sync.Mutex
}

// Adapter is the soft-bus singleton: at most one open session per
// networkId, dual-purpose as both the session registry and the dispatch
// point for inbound packets to registered Observers.
type Adapter struct {
	logger  *slog.Logger
	metrics MetricsReporter

	mu       sync.RWMutex
	enabled  bool
	sessions map[string]*peerSession

	obsMu     sync.RWMutex
	observers []Observer

	dialer net.Dialer
}

// NewAdapter constructs a disabled Adapter. Call Enable before OpenSession.
func NewAdapter(logger *slog.Logger, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		logger:   logger,
		metrics:  noopMetrics{},
		sessions: make(map[string]*peerSession),
	}
	a.dialer = net.Dialer{
		Control: a.controlKeepalive,
		Timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Enable registers the adapter with the soft-bus runtime. Idempotent.
func (a *Adapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = true
	a.logger.Info("soft bus adapter enabled", slog.String("service", ServerSessionName))
	return nil
}

// Disable closes every open session and marks the adapter unavailable for
// new OpenSession calls. Idempotent.
func (a *Adapter) Disable() error {
	a.mu.Lock()
	if !a.enabled {
		a.mu.Unlock()
		return nil
	}
	a.enabled = false
	sessions := a.sessions
	a.sessions = make(map[string]*peerSession)
	a.mu.Unlock()

	for _, s := range sessions {
		_ = s.conn.Close()
	}
	return nil
}

// OpenSession dials the remote device identified by networkID and address,
// replacing any existing session for that networkId; at most one session
// exists per peer.
func (a *Adapter) OpenSession(ctx context.Context, networkID, addr string) error {
	a.mu.RLock()
	enabled := a.enabled
	a.mu.RUnlock()
	if !enabled {
		return errAdapterDisabled
	}
	if networkID == "" {
		return fmt.Errorf("open session: %w: empty networkId", ierr.ErrInvalidParam)
	}

	conn, err := a.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("open session to %s: %w", networkID, err)
	}

	sess := &peerSession{networkID: networkID, conn: conn}

	a.mu.Lock()
	if old, ok := a.sessions[networkID]; ok {
		_ = old.conn.Close()
	}
	a.sessions[networkID] = sess
	a.mu.Unlock()

	go a.readLoop(sess)

	a.logger.Info("soft bus session opened",
		slog.String("network_id", networkID),
		slog.String("session", clientSessionName(networkID)),
		slog.String("addr", addr),
	)
	return nil
}

// readLoop pulls bytes off sess's connection into a ring buffer and
// dispatches each complete frame to the observer list, until the
// connection is closed or a corrupted stream forces it shut.
func (a *Adapter) readLoop(sess *peerSession) {
	rb := wire.NewRingBuffer(wire.MaxPacketBufSize + wire.HeaderSize + 4096)
	bufp := wire.PacketPool.Get().(*[]byte)
	defer wire.PacketPool.Put(bufp)
	scratch := *bufp

	for {
		n, err := sess.conn.Read(scratch)
		if n > 0 {
			if !rb.Write(scratch[:n]) {
				a.logger.Warn("soft bus receive buffer full, dropping until drained",
					slog.String("network_id", sess.networkID),
				)
				a.metrics.SoftBusPacketDropped(sess.networkID)
			} else {
				decodeErr := wire.DecodeAll(rb, func(pkt wire.NetPacket) error {
					a.dispatchInbound(sess.networkID, pkt)
					return nil
				})
				if decodeErr != nil {
					a.logger.Warn("corrupted soft bus stream, closing session",
						slog.String("network_id", sess.networkID),
						slog.String("error", decodeErr.Error()),
					)
					a.metrics.SoftBusPacketDropped(sess.networkID)
					_ = a.CloseSession(sess.networkID)
					return
				}
			}
		}
		if err != nil {
			a.mu.Lock()
			removed := a.sessions[sess.networkID] == sess
			if removed {
				delete(a.sessions, sess.networkID)
			}
			a.mu.Unlock()
			if removed {
				a.dispatchShutdown(sess.networkID)
			}
			return
		}
	}
}

// CloseSession tears down the session for networkID, if any, and notifies
// observers of the shutdown. Closing an already-down (or never-opened)
// networkId succeeds.
func (a *Adapter) CloseSession(networkID string) error {
	a.mu.Lock()
	sess, ok := a.sessions[networkID]
	if ok {
		delete(a.sessions, networkID)
	}
	a.mu.Unlock()

	if !ok {
		return nil
	}
	closeErr := sess.conn.Close()
	a.dispatchShutdown(networkID)
	return closeErr
}

// SendPacket writes a pre-framed wire payload to the open session for
// networkID. Writes on a single session are serialized.
func (a *Adapter) SendPacket(networkID string, frame []byte) error {
	a.mu.RLock()
	sess, ok := a.sessions[networkID]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("send to %s: %w", networkID, ierr.ErrNotConnected)
	}

	sess.sendMu.Lock()
	defer sess.sendMu.Unlock()

	for len(frame) > 0 {
		n, err := sess.conn.Write(frame)
		if err != nil {
			a.metrics.SoftBusPacketDropped(networkID)
			return fmt.Errorf("send to %s: %w: %w", networkID, ierr.ErrMsgSendFail, err)
		}
		frame = frame[n:]
	}
	a.metrics.SoftBusPacketSent(networkID)
	return nil
}

// HasSession reports whether a session for networkID is currently open.
func (a *Adapter) HasSession(networkID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.sessions[networkID]
	return ok
}

// ListenAndServe accepts inbound soft-bus connections on addr until ctx is
// cancelled, registering each one as a peer session once its networkId is
// learned from the first hello (StartRequest) frame it sends. This is the
// accept-side counterpart to OpenSession's dial-side path; each accepted
// connection is served on its own goroutine.
func (a *Adapter) ListenAndServe(ctx context.Context, addr string) error {
	a.mu.RLock()
	enabled := a.enabled
	a.mu.RUnlock()
	if !enabled {
		return errAdapterDisabled
	}

	lc := net.ListenConfig{Control: a.controlKeepalive}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("soft bus listen on %s: %w", addr, err)
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	a.logger.Info("soft bus adapter listening", slog.String("addr", addr))

	for {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("soft bus accept: %w", acceptErr)
		}
		go a.serveInbound(conn)
	}
}

// serveInbound reads frames from a freshly accepted connection whose
// networkId is not yet known, registering the session as soon as its
// first hello frame identifies the remote peer, then falling through to
// the same decode/dispatch loop as readLoop for the rest of its lifetime.
func (a *Adapter) serveInbound(conn net.Conn) {
	if err := a.configKeepalive(conn); err != nil {
		a.logger.Warn("soft bus inbound keepalive tuning failed", slog.String("error", err.Error()))
	}

	sess := &peerSession{conn: conn}
	rb := wire.NewRingBuffer(wire.MaxPacketBufSize + wire.HeaderSize + 4096)
	bufp := wire.PacketPool.Get().(*[]byte)
	defer wire.PacketPool.Put(bufp)
	scratch := *bufp

	for {
		n, err := conn.Read(scratch)
		if n > 0 {
			if !rb.Write(scratch[:n]) {
				a.logger.Warn("soft bus receive buffer full, dropping until drained")
			} else {
				decodeErr := wire.DecodeAll(rb, func(pkt wire.NetPacket) error {
					if sess.networkID == "" {
						if id, ok := helloNetworkID(pkt); ok {
							sess.networkID = id
							a.registerInbound(sess)
						} else {
							return nil
						}
					}
					a.dispatchInbound(sess.networkID, pkt)
					return nil
				})
				if decodeErr != nil {
					a.logger.Warn("corrupted soft bus stream, closing inbound session",
						slog.String("error", decodeErr.Error()),
					)
					if sess.networkID != "" {
						_ = a.CloseSession(sess.networkID)
					} else {
						_ = conn.Close()
					}
					return
				}
			}
		}
		if err != nil {
			if sess.networkID != "" {
				a.mu.Lock()
				removed := a.sessions[sess.networkID] == sess
				if removed {
					delete(a.sessions, sess.networkID)
				}
				a.mu.Unlock()
				if removed {
					a.dispatchShutdown(sess.networkID)
				}
			}
			return
		}
	}
}

// registerInbound installs sess in the session map under its now-known
// networkId, replacing (and closing) any prior session for the same peer.
func (a *Adapter) registerInbound(sess *peerSession) {
	a.mu.Lock()
	if old, ok := a.sessions[sess.networkID]; ok && old != sess {
		_ = old.conn.Close()
	}
	a.sessions[sess.networkID] = sess
	a.mu.Unlock()

	a.logger.Info("soft bus inbound session registered",
		slog.String("network_id", sess.networkID),
	)
}

// helloNetworkID extracts the sender's networkId from a hello frame, if
// pkt is one.
func helloNetworkID(pkt wire.NetPacket) (string, bool) {
	if pkt.MsgID != helloMsgID {
		return "", false
	}
	var hello helloPayload
	if err := json.Unmarshal(pkt.Payload, &hello); err != nil || hello.LocalNetworkID == "" {
		return "", false
	}
	return hello.LocalNetworkID, true
}

// configKeepalive applies the TCP keepalive tunables to an accepted peer
// connection, so the accept side of a bind tunes its socket exactly like
// the dial side's Control hook does.
func (a *Adapter) configKeepalive(conn net.Conn) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return fmt.Errorf("syscall conn: %w", err)
	}
	return a.controlKeepalive("", "", raw)
}

// controlKeepalive applies the TCP keepalive tunables to every dialed
// connection, mirroring the raw-socket-option convention of setting
// transport tunables directly via golang.org/x/sys/unix.
func (a *Adapter) controlKeepalive(_, _ string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); e != nil {
			ctrlErr = fmt.Errorf("setsockopt SO_KEEPALIVE: %w", e)
			return
		}
		if e := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, int(keepIdle.Seconds())); e != nil {
			ctrlErr = fmt.Errorf("setsockopt TCP_KEEPIDLE: %w", e)
			return
		}
		if e := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, keepCount); e != nil {
			ctrlErr = fmt.Errorf("setsockopt TCP_KEEPCNT: %w", e)
			return
		}
		if e := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, int(keepInterval.Seconds())); e != nil {
			ctrlErr = fmt.Errorf("setsockopt TCP_KEEPINTVL: %w", e)
		}
	})
	if err != nil {
		return err
	}
	return ctrlErr
}
