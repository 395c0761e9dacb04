package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jihwankim/xblive/pkg/netutil"
	"github.com/jihwankim/xblive/pkg/xlog"
)

// DiscoveryPort is the fixed UDP port Xbox 360 debug consoles answer
// discovery broadcasts on.
const DiscoveryPort = 730

// Payload selects which fixed probe bytes the broadcaster emits.
type Payload int

const (
	// PayloadJtag is the default probe, answered by JTAG-style consoles.
	PayloadJtag Payload = iota
	// PayloadDevkit is reserved for XeDevkit-style consoles; it is never
	// selected automatically, only by explicit configuration.
	PayloadDevkit
)

// jtagPayload is the fixed 6-byte discovery probe: framing bytes 0x03 0x04
// followed by ASCII "jtag".
var jtagPayload = []byte{0x03, 0x04, 'j', 't', 'a', 'g'}

// devkitPayload is the reserved 10-byte probe: framing bytes followed by
// ASCII "XeDevkit". Not emitted unless explicitly configured.
var devkitPayload = []byte{0x03, 0x04, 'X', 'e', 'D', 'e', 'v', 'k', 'i', 't'}

func (p Payload) bytes() []byte {
	if p == PayloadDevkit {
		return devkitPayload
	}
	return jtagPayload
}

func (p Payload) String() string {
	if p == PayloadDevkit {
		return "devkit"
	}
	return "jtag"
}

// Config controls Scanner behavior. The zero value is not directly
// usable; call DefaultConfig or have it populated via pkg/config.
type Config struct {
	// ScanFrequency is the broadcast and monitor-sweep cadence.
	ScanFrequency time.Duration
	// DisconnectTimeout is the last-ack age past which an Online record
	// demotes to Offline. If zero, it is derived as
	// ScanFrequency * TimeoutAttempts.
	DisconnectTimeout time.Duration
	// TimeoutAttempts is the multiplier used to derive DisconnectTimeout
	// when it is not set explicitly.
	TimeoutAttempts int
	// RemoveOnDisconnect evicts Offline records on the sweep after
	// demotion, rather than requiring an explicit Purge.
	RemoveOnDisconnect bool
	// AutoStart makes NewScanner call Start (with a background context)
	// before returning; a failed auto-start is logged, not returned.
	AutoStart bool
	// Payload selects which probe bytes the broadcaster emits.
	Payload Payload
	// IncludeICSBridge is forwarded to netutil.Enumerate.
	IncludeICSBridge bool
}

// DefaultConfig returns the documented defaults: 3s scan frequency, a
// disconnect timeout of two scan periods, eviction disabled.
func DefaultConfig() Config {
	return Config{
		ScanFrequency:      3 * time.Second,
		TimeoutAttempts:    2,
		RemoveOnDisconnect: false,
		Payload:            PayloadJtag,
	}
}

// effectiveDisconnectTimeout resolves DisconnectTimeout, falling back to
// ScanFrequency * TimeoutAttempts.
func (c Config) effectiveDisconnectTimeout() time.Duration {
	if c.DisconnectTimeout > 0 {
		return c.DisconnectTimeout
	}
	attempts := c.TimeoutAttempts
	if attempts <= 0 {
		attempts = 2
	}
	return c.ScanFrequency * time.Duration(attempts)
}

// Scanner is the discovery engine: it owns a single broadcast-enabled
// UDP socket shared by a listener and a broadcaster task, plus a monitor
// task that sweeps the registry for stale records. All three observe a
// single stop channel; Stop closes the socket to unblock the listener,
// matching the socket-close-to-cancel pattern a blocking UDP read
// otherwise has no way to observe.
type Scanner struct {
	config   Config
	registry *Registry
	bus      *EventBus
	log      *xlog.Logger

	mu      sync.Mutex // guards conn and start/stop sequencing
	conn    *net.UDPConn
	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	subnets atomic.Pointer[[]netutil.Subnet]
}

// NewScanner constructs a Scanner. bus may be nil (events go nowhere).
// If config.AutoStart is set, the scanner is started before returning.
func NewScanner(config Config, bus *EventBus, log *xlog.Logger) *Scanner {
	s := &Scanner{
		config:   config,
		registry: NewRegistry(bus),
		bus:      bus,
		log:      log,
	}
	if config.AutoStart {
		if err := s.Start(context.Background()); err != nil {
			log.Warn("discovery: auto-start failed", "error", err)
		}
	}
	return s
}

// Registry exposes the underlying registry, mostly for tests and for
// wiring additional observers after construction.
func (s *Scanner) Registry() *Registry {
	return s.registry
}

// Connections returns a snapshot of every tracked connection.
func (s *Scanner) Connections() []ConnectionView {
	return s.registry.Snapshot()
}

// Purge evicts every currently-Offline connection, emitting a Remove
// event for each, and returns the number removed.
func (s *Scanner) Purge() int {
	return s.registry.PurgeOffline()
}

// IsRunning reports whether the scanner's tasks are active.
func (s *Scanner) IsRunning() bool {
	return s.running.Load()
}

// LocalAddr returns the scanner's bound UDP address, or nil if not
// running.
func (s *Scanner) LocalAddr() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	addr, _ := s.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// Start is idempotent: binding an ephemeral broadcast-enabled UDP
// socket, taking an initial subnet snapshot, and spawning the listener,
// broadcaster, and monitor tasks. If any step fails, it rolls back to
// fully stopped rather than leaving a partially-started scanner.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return nil
	}

	subnets, err := netutil.Enumerate(netutil.Options{IncludeICSBridge: s.config.IncludeICSBridge})
	if err != nil {
		// Enumeration failure on start is logged and the (empty) snapshot
		// retained rather than failing Start outright; the topology
		// refresher will pick up interfaces as they appear.
		s.log.Warn("discovery: initial subnet enumeration failed", "error", err)
	}
	s.subnets.Store(&subnets)

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return fmt.Errorf("discovery: bind socket: %w", err)
	}
	if err := enableBroadcast(conn); err != nil {
		conn.Close()
		return fmt.Errorf("discovery: enable broadcast: %w", err)
	}

	s.conn = conn
	s.stopCh = make(chan struct{})
	s.running.Store(true)

	s.wg.Add(3)
	go s.runListener(conn)
	go s.runBroadcaster(ctx, conn)
	go s.runMonitor(ctx)
	go s.watchContext(ctx)

	return nil
}

// watchContext stops the scanner if ctx is cancelled before an explicit
// Stop call, so a caller's context remains the single source of truth
// for scanner lifetime when one is supplied.
func (s *Scanner) watchContext(ctx context.Context) {
	select {
	case <-ctx.Done():
		s.Stop()
	case <-s.stopCh:
	}
}

// Stop is idempotent: it clears the running flag, closes the socket
// (unblocking the listener's pending read), and waits for all three
// tasks to exit before returning.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		return
	}
	s.running.Store(false)
	close(s.stopCh)
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.wg.Wait()
}

// RescanSubnets re-enumerates local interfaces and atomically replaces
// the subnet snapshot the broadcaster reads from. This is the
// topology-change handler: callers wire it to whatever network-change
// signal their platform provides, and Scanner also invokes it on its own
// periodic cadence as a portable fallback.
func (s *Scanner) RescanSubnets() {
	subnets, err := netutil.Enumerate(netutil.Options{IncludeICSBridge: s.config.IncludeICSBridge})
	if err != nil {
		s.log.Warn("discovery: subnet re-enumeration failed, retaining prior snapshot", "error", err)
		return
	}
	s.subnets.Store(&subnets)
}

func (s *Scanner) currentSubnets() []netutil.Subnet {
	p := s.subnets.Load()
	if p == nil {
		return nil
	}
	return *p
}

// runListener awaits datagrams until the socket is closed by Stop.
func (s *Scanner) runListener(conn *net.UDPConn) {
	defer s.wg.Done()

	buf := make([]byte, 256)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				s.log.Warn("discovery: udp receive error", "error", err)
				continue
			}
		}
		s.handleDatagram(addr, buf[:n])
	}
}

// handleDatagram implements the listener's ingest rule: datagrams from a
// non-discovery source port or shorter than 3 bytes are silently
// dropped; otherwise the first two framing bytes are discarded and the
// remainder becomes the connection's name.
func (s *Scanner) handleDatagram(addr *net.UDPAddr, data []byte) {
	if addr.Port != DiscoveryPort {
		return
	}
	if len(data) < 3 {
		return
	}

	name := string(data[2:])
	endpoint := Endpoint{Address: addr.IP, Port: addr.Port}
	iface := s.matchInterface(addr.IP)

	s.registry.Refresh(addr.IP, endpoint, iface, name, time.Now())
	s.registry.SetBridged(addr.IP, netutil.IsBridged(s.currentSubnets(), addr.IP))
}

// matchInterface returns the interface name whose directed broadcast
// address shares a /24 with ip, or "" if none does.
func (s *Scanner) matchInterface(ip net.IP) string {
	ip4 := ip.To4()
	if ip4 == nil {
		return ""
	}
	for _, subnet := range s.currentSubnets() {
		b := subnet.Broadcast.To4()
		if b == nil {
			continue
		}
		if b[0] == ip4[0] && b[1] == ip4[1] && b[2] == ip4[2] {
			return subnet.Interface
		}
	}
	return ""
}

// runBroadcaster sends the configured probe to every directed broadcast
// address in the current subnet snapshot, once per ScanFrequency.
func (s *Scanner) runBroadcaster(ctx context.Context, conn *net.UDPConn) {
	defer s.wg.Done()

	payload := s.config.Payload.bytes()
	ticker := time.NewTicker(s.config.ScanFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.broadcastOnce(conn, payload)
		}
	}
}

func (s *Scanner) broadcastOnce(conn *net.UDPConn, payload []byte) {
	for _, subnet := range s.currentSubnets() {
		dst := &net.UDPAddr{IP: subnet.Broadcast, Port: DiscoveryPort}
		if _, err := conn.WriteToUDP(payload, dst); err != nil {
			s.log.Debug("discovery: broadcast send failed", "interface", subnet.Interface, "error", err)
		}
	}
}

// runMonitor sweeps the registry once per ScanFrequency, demoting stale
// Online records and, if configured, evicting already-Offline ones. It
// also drives the periodic topology re-enumeration fallback.
func (s *Scanner) runMonitor(ctx context.Context) {
	defer s.wg.Done()

	timeout := s.config.effectiveDisconnectTimeout()
	ticker := time.NewTicker(s.config.ScanFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			// Evict records that were already Offline as of the previous
			// sweep before demoting this sweep's stragglers, so a record
			// demoted just now survives until the next sweep —
			// eviction always lags demotion by one full sweep.
			if s.config.RemoveOnDisconnect {
				s.registry.PurgeOffline()
			}
			s.registry.DemoteStale(time.Now(), timeout)
			s.RescanSubnets()
		}
	}
}

// enableBroadcast sets SO_BROADCAST on conn's underlying file descriptor
// so writes to directed broadcast addresses are permitted. net.UDPConn
// does not expose this as a portable option, so it is reached via
// SyscallConn rather than a third-party sockets library, since none of
// the example repositories' dependency sets touch raw socket options.
func enableBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sockErr
}
