// Package discovery implements passive discovery and liveness tracking of
// Xbox 360 debug/JTAG consoles on local IPv4 broadcast domains: a
// per-host connection record, a registry of observed consoles, a
// three-event observer bus, and the scanner engine that ties them
// together over UDP.
package discovery

import (
	"net"
	"sync"
	"time"

	"github.com/jihwankim/xblive/pkg/cpukey"
)

// PeerKey identifies a Connection by its peer IPv4 address; the UDP
// source port is not part of identity (it is retained on Endpoint for
// inspection only).
type PeerKey [4]byte

// peerKeyOf extracts the identity key from an IPv4 address. A non-IPv4
// ip yields the zero key (0.0.0.0) — callers are expected to have already
// validated the address (e.g. from a UDP source address).
func peerKeyOf(ip net.IP) PeerKey {
	ip4 := ip.To4()
	var k PeerKey
	copy(k[:], ip4)
	return k
}

// IP renders the peer key back to a net.IP.
func (k PeerKey) IP() net.IP {
	return net.IPv4(k[0], k[1], k[2], k[3])
}

func (k PeerKey) String() string {
	return k.IP().String()
}

// State is a Connection's liveness state.
type State int

const (
	// StateUnknown is the state of a Connection before its first
	// response is observed; no Connection is ever stored in this state —
	// it exists only as the "before insert" starting point in the
	// documented state machine.
	StateUnknown State = iota
	// StateOnline indicates a response was observed within
	// DisconnectTimeout of now.
	StateOnline
	// StateOffline indicates no response has been observed within
	// DisconnectTimeout of now.
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Endpoint is the full <address, port> of a console's last response.
type Endpoint struct {
	Address net.IP
	Port    int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Address.String(), itoa(e.Port))
}

func itoa(i int) string {
	// Avoid importing strconv solely for this: net.JoinHostPort wants a
	// string port, and Sprintf-free conversion keeps this file's import
	// list minimal. Kept simple since ports are always 0..65535.
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [6]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// Connection is the observable, mutable per-host record of a discovered
// console. It holds no reference back to the Registry; the Interface
// field is a value snapshot, not an owning back-reference.
type Connection struct {
	mu sync.RWMutex

	peer        PeerKey
	endpoint    Endpoint
	iface       string
	bridged     bool
	name        string
	discovered  time.Time
	lastAck     time.Time
	state       State
	cpuKey      cpukey.CPUKey
}

// newConnection constructs a freshly-discovered Connection in the Online
// state. Bridged classification is not known at construction time; it is
// set separately via setBridged once the caller has consulted the current
// subnet snapshot.
func newConnection(peer PeerKey, endpoint Endpoint, iface string, name string, now time.Time) *Connection {
	return &Connection{
		peer:       peer,
		endpoint:   endpoint,
		iface:      iface,
		name:       name,
		discovered: now,
		lastAck:    now,
		state:      StateOnline,
	}
}

// Peer returns the connection's identity key.
func (c *Connection) Peer() PeerKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peer
}

// Endpoint returns the full address/port of the last response.
func (c *Connection) Endpoint() Endpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoint
}

// Interface returns the local interface whose directed broadcast address
// matched the peer's /24 prefix at discovery/refresh time, or "" if none
// matched.
func (c *Connection) Interface() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.iface
}

// Bridged reports whether the peer was classified as living on the
// legacy ICS-bridged subnet (192.168.137.0/24), per the currently
// enumerated subnet snapshot rather than by inspecting the peer
// address's third octet — see netutil.IsBridged and DESIGN.md's Open
// Question resolution.
func (c *Connection) Bridged() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bridged
}

// setBridged updates the record's bridged classification. It is
// informational metadata set by the scanner from the subnet snapshot at
// ingest time and does not participate in the liveness state machine, so
// it raises no event of its own.
func (c *Connection) setBridged(bridged bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bridged = bridged
}

// Name returns the ASCII response payload (e.g. "jtag" or "XeDevkit").
func (c *Connection) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// Discovered returns the timestamp of first insertion.
func (c *Connection) Discovered() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.discovered
}

// LastAck returns the timestamp of the most recent response.
func (c *Connection) LastAck() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastAck
}

// State returns the current liveness state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// CPUKey returns the externally-set CPUKey (default cpukey.Empty). The
// discovery engine never computes this value itself — it is an opaque
// settable field populated by an external XDK/xbdm transport.
func (c *Connection) CPUKey() cpukey.CPUKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cpuKey
}

// SetCPUKey sets the externally-determined CPUKey for this connection.
func (c *Connection) SetCPUKey(k cpukey.CPUKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cpuKey = k
}

// snapshot returns a value copy of the record's fields for safe use
// outside the connection's own lock (e.g. in event payloads or registry
// snapshots).
func (c *Connection) snapshot() ConnectionView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ConnectionView{
		Peer:       c.peer,
		Endpoint:   c.endpoint,
		Interface:  c.iface,
		Bridged:    c.bridged,
		Name:       c.name,
		Discovered: c.discovered,
		LastAck:    c.lastAck,
		State:      c.state,
		CPUKey:     c.cpuKey,
	}
}

// refresh updates endpoint/name/lastAck and returns whether the state
// transitioned as part of the refresh (Offline/Unknown -> Online).
func (c *Connection) refresh(endpoint Endpoint, iface string, name string, now time.Time) (transitioned bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.endpoint = endpoint
	if iface != "" {
		c.iface = iface
	}
	c.name = name
	c.lastAck = now

	if c.state != StateOnline {
		c.state = StateOnline
		return true
	}
	return false
}

// demote transitions Online -> Offline if lastAck is older than timeout
// relative to now, returning whether a transition occurred.
func (c *Connection) demote(now time.Time, timeout time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOnline {
		return false
	}
	if now.Sub(c.lastAck) <= timeout {
		return false
	}
	c.state = StateOffline
	return true
}

// isOffline reports whether the record is currently in the Offline
// state.
func (c *Connection) isOffline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateOffline
}

// ConnectionView is an immutable value snapshot of a Connection, safe to
// read without holding any lock; it is what Registry.Snapshot and event
// payloads hand out.
type ConnectionView struct {
	Peer       PeerKey
	Endpoint   Endpoint
	Interface  string
	Bridged    bool
	Name       string
	Discovered time.Time
	LastAck    time.Time
	State      State
	CPUKey     cpukey.CPUKey
}
