package softbus

import "github.com/dantte-lp/intentiond/internal/wire"

// Observer consumes inbound packets and lifecycle notifications for a peer
// session. OnPacket returns true once it has handled the packet,
// short-circuiting the remaining observers: delivery is in-order to the
// first consumer that claims a packet, not fan-out to every registered
// observer. OnShutdown is called once per peer teardown by local
// CloseSession or remote disconnect, whichever comes first; Disable closes
// its sessions without calling it.
type Observer interface {
	OnPacket(networkID string, pkt wire.NetPacket) (handled bool)
	OnShutdown(networkID string)
}

// ObserverFunc adapts a plain packet-handling function to the Observer
// interface for tests that don't care about shutdown notifications.
type ObserverFunc func(networkID string, pkt wire.NetPacket) bool

func (f ObserverFunc) OnPacket(networkID string, pkt wire.NetPacket) bool {
	return f(networkID, pkt)
}

func (f ObserverFunc) OnShutdown(string) {}

// AddObserver appends obs to the end of the observer list. Observers are
// tried in registration order.
func (a *Adapter) AddObserver(obs Observer) {
	a.obsMu.Lock()
	defer a.obsMu.Unlock()
	a.observers = append(a.observers, obs)
}

// RemoveObserver removes the first registered instance of obs, if present.
func (a *Adapter) RemoveObserver(obs Observer) {
	a.obsMu.Lock()
	defer a.obsMu.Unlock()
	for i, o := range a.observers {
		if o == obs {
			a.observers = append(a.observers[:i], a.observers[i+1:]...)
			return
		}
	}
}

// dispatchInbound walks the observer list in order, stopping at the first
// observer that reports it handled the packet.
func (a *Adapter) dispatchInbound(networkID string, pkt wire.NetPacket) {
	a.obsMu.RLock()
	observers := make([]Observer, len(a.observers))
	copy(observers, a.observers)
	a.obsMu.RUnlock()

	for _, obs := range observers {
		if obs.OnPacket(networkID, pkt) {
			return
		}
	}
}

// dispatchShutdown notifies every registered observer that the peer session
// for networkID has torn down.
func (a *Adapter) dispatchShutdown(networkID string) {
	a.obsMu.RLock()
	observers := make([]Observer, len(a.observers))
	copy(observers, a.observers)
	a.obsMu.RUnlock()

	for _, obs := range observers {
		obs.OnShutdown(networkID)
	}
}
