package discovery

import (
	"errors"
	"net"
	"sort"
	"sync"
	"time"
)

// ErrDuplicatePeer is returned by Registry.Insert when a Connection
// already exists for the given peer address; callers observing this
// should call Refresh instead.
var ErrDuplicatePeer = errors.New("discovery: duplicate peer")

// Registry holds the set of currently and formerly observed consoles,
// keyed by peer IPv4 address. It is the concurrent-safe map collector.go
// wraps around a single mutex, generalized from a metric-name keyspace
// to a console-address keyspace.
type Registry struct {
	mu    sync.RWMutex
	peers map[PeerKey]*Connection
	bus   *EventBus
}

// NewRegistry constructs an empty Registry. bus may be nil, in which
// case registry mutations raise no events (useful in tests that only
// care about final state).
func NewRegistry(bus *EventBus) *Registry {
	return &Registry{
		peers: make(map[PeerKey]*Connection),
		bus:   bus,
	}
}

// Insert records a newly discovered console and raises an Add event. It
// returns ErrDuplicatePeer if the peer is already tracked.
func (r *Registry) Insert(addr net.IP, endpoint Endpoint, iface, name string, now time.Time) (*Connection, error) {
	key := peerKeyOf(addr)

	r.mu.Lock()
	if _, exists := r.peers[key]; exists {
		r.mu.Unlock()
		return nil, ErrDuplicatePeer
	}
	conn := newConnection(key, endpoint, iface, name, now)
	r.peers[key] = conn
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.emitAdd(conn.snapshot())
	}
	return conn, nil
}

// SetBridged updates the bridged classification of the tracked
// connection for addr, if any. Bridged is informational metadata set by
// the scanner from its subnet snapshot and raises no event; it reports
// whether a connection was present to update.
func (r *Registry) SetBridged(addr net.IP, bridged bool) bool {
	r.mu.RLock()
	conn, ok := r.peers[peerKeyOf(addr)]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	conn.setBridged(bridged)
	return true
}

// Refresh updates an existing console's endpoint/name/lastAck, raising
// an Add event if the peer is unknown (first-seen-via-refresh, which the
// scanner treats identically to an explicit Insert) or an Update event
// if it already existed and the refresh changed its state (Offline/Unknown
// -> Online). A refresh of an already-Online peer is silent, per spec.
func (r *Registry) Refresh(addr net.IP, endpoint Endpoint, iface, name string, now time.Time) *Connection {
	key := peerKeyOf(addr)

	r.mu.Lock()
	conn, exists := r.peers[key]
	if !exists {
		conn = newConnection(key, endpoint, iface, name, now)
		r.peers[key] = conn
		r.mu.Unlock()

		if r.bus != nil {
			r.bus.emitAdd(conn.snapshot())
		}
		return conn
	}
	r.mu.Unlock()

	before := conn.snapshot()
	transitioned := conn.refresh(endpoint, iface, name, now)

	if transitioned && r.bus != nil {
		r.bus.emitUpdate(before, conn.snapshot())
	}
	return conn
}

// DemoteStale walks every tracked connection and transitions Online ->
// Offline for any whose LastAck is older than timeout relative to now,
// raising an Update event for each transition. It returns the number of
// connections demoted.
func (r *Registry) DemoteStale(now time.Time, timeout time.Duration) int {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.peers))
	for _, c := range r.peers {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	demoted := 0
	for _, c := range conns {
		before := c.snapshot()
		if !c.demote(now, timeout) {
			continue
		}
		demoted++
		if r.bus != nil {
			r.bus.emitUpdate(before, c.snapshot())
		}
	}
	return demoted
}

// PurgeOffline removes every connection currently in the Offline state,
// raising a Remove event for each, and returns the number removed. This
// implements the RemoveOnDisconnect / manual Purge behavior.
func (r *Registry) PurgeOffline() int {
	r.mu.Lock()
	var removed []*Connection
	for key, c := range r.peers {
		if c.isOffline() {
			removed = append(removed, c)
			delete(r.peers, key)
		}
	}
	r.mu.Unlock()

	for _, c := range removed {
		if r.bus != nil {
			r.bus.emitRemove(c.snapshot())
		}
	}
	return len(removed)
}

// Remove unconditionally evicts a single connection by peer address,
// raising a Remove event. It reports whether a connection was present.
func (r *Registry) Remove(addr net.IP) bool {
	key := peerKeyOf(addr)

	r.mu.Lock()
	c, exists := r.peers[key]
	if exists {
		delete(r.peers, key)
	}
	r.mu.Unlock()

	if !exists {
		return false
	}
	if r.bus != nil {
		r.bus.emitRemove(c.snapshot())
	}
	return true
}

// Get returns the connection for a peer address, if tracked.
func (r *Registry) Get(addr net.IP) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.peers[peerKeyOf(addr)]
	return c, ok
}

// Len returns the number of tracked connections, regardless of state.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Snapshot returns a stable copy of every tracked connection's current
// state, sorted by the peer address's dotted-decimal string (so
// 192.168.1.20 sorts before 192.168.1.5).
func (r *Registry) Snapshot() []ConnectionView {
	r.mu.RLock()
	views := make([]ConnectionView, 0, len(r.peers))
	for _, c := range r.peers {
		views = append(views, c.snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool {
		return views[i].Peer.String() < views[j].Peer.String()
	})
	return views
}
