// Package dispatch implements the event dispatcher: a per-event-type
// ordered registry of (session, handle) subscriptions used to fan out
// coordination-state, drag-state, drag-style, and thumbnail notifications
// to local clients.
package dispatch

import (
	"log/slog"
	"sync"

	"github.com/dantte-lp/intentiond/internal/session"
	"github.com/dantte-lp/intentiond/internal/wire"
)

// HandleID distinguishes multiple registrations from the same session for
// the same event type.
type HandleID int32

type entry struct {
	sess   *session.Session
	handle HandleID
}

type key struct {
	event wire.EventType
}

// Dispatcher holds, for each EventType, an ordered list of (session,
// handle) entries, appended to on Add and walked in order on Emit.
type Dispatcher struct {
	logger *slog.Logger

	mu        sync.Mutex
	listeners map[key][]entry
}

// DispatcherOption configures optional Dispatcher parameters.
type DispatcherOption func(*Dispatcher)

// WithLogger overrides the dispatcher's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates an empty Dispatcher.
func New(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		logger:    slog.Default(),
		listeners: make(map[key][]entry),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Add registers (sess, handle) as a listener for event, appending it
// unless an identical (session, handle) pair is already registered.
func (d *Dispatcher) Add(event wire.EventType, sess *session.Session, handle HandleID) {
	k := key{event: event}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, e := range d.listeners[k] {
		if e.sess == sess && e.handle == handle {
			return
		}
	}
	d.listeners[k] = append(d.listeners[k], entry{sess: sess, handle: handle})
}

// Remove unregisters handle for sess under event. If handle is the
// WildcardHandle, every entry registered by sess under event is dropped.
func (d *Dispatcher) Remove(event wire.EventType, sess *session.Session, handle HandleID) {
	k := key{event: event}

	d.mu.Lock()
	defer d.mu.Unlock()

	entries := d.listeners[k]
	filtered := entries[:0]
	for _, e := range entries {
		if e.sess == sess && (handle == WildcardHandle || e.handle == handle) {
			continue
		}
		filtered = append(filtered, e)
	}
	d.listeners[k] = filtered
}

// WildcardHandle, passed to Remove, drops every registration by the given
// session for the given event type.
const WildcardHandle HandleID = -1

// Emit builds a packet from msgID/payload and sends it, in FIFO
// registration order, to every listener registered for event. A send
// failure on one session is logged and does not stop delivery to the
// remaining listeners, and Emit itself never returns an error.
func (d *Dispatcher) Emit(event wire.EventType, msgID wire.MessageID, payload []byte) {
	d.mu.Lock()
	entries := make([]entry, len(d.listeners[key{event: event}]))
	copy(entries, d.listeners[key{event: event}])
	d.mu.Unlock()

	for _, e := range entries {
		if err := e.sess.SendPacket(msgID, payload); err != nil {
			d.logger.Warn("event delivery failed",
				slog.String("event", event.String()),
				slog.Int("fd", e.sess.Fd()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// RemoveSession drops every registration for sess across all event types,
// used when a session disconnects.
func (d *Dispatcher) RemoveSession(sess *session.Session) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for k, entries := range d.listeners {
		filtered := entries[:0]
		for _, e := range entries {
			if e.sess == sess {
				continue
			}
			filtered = append(filtered, e)
		}
		d.listeners[k] = filtered
	}
}

// ListenerCount reports how many listeners are registered for event,
// primarily for tests.
func (d *Dispatcher) ListenerCount(event wire.EventType) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners[key{event: event}])
}
