// Package netutil enumerates local IPv4 interfaces and derives the
// directed /24 broadcast address for each one, the way Xbox 360 debug
// tooling expects to find consoles on the same broadcast domain.
package netutil

import (
	"fmt"
	"net"
)

// ICSBridgeInterface is the synthetic interface name used for the legacy
// Internet Connection Sharing bridge fallback entry.
const ICSBridgeInterface = "ics-bridge"

// icsBridgeBroadcast is the conventional broadcast address of the
// ICS-created 192.168.137.0/24 subnet.
var icsBridgeBroadcast = net.IPv4(192, 168, 137, 255).To4()

// Subnet pairs a local interface with the directed broadcast address of
// the /24 it carries.
type Subnet struct {
	Interface string
	Broadcast net.IP
}

// String renders the subnet as "iface -> broadcast".
func (s Subnet) String() string {
	return fmt.Sprintf("%s -> %s", s.Interface, s.Broadcast)
}

// Options controls Enumerate's behavior.
type Options struct {
	// IncludeICSBridge unconditionally appends the legacy ICS bridge
	// broadcast address (192.168.137.255), matching observed Xbox debug
	// tooling behavior on hosts where interface enumeration is
	// unreliable.
	IncludeICSBridge bool
}

// Enumerate walks the local non-loopback, operationally-up network
// interfaces, returning the directed /24 broadcast address for every IPv4
// unicast address found. A deliberate simplification: non-/24 and IPv6
// addresses are out of scope.
func Enumerate(opts Options) ([]Subnet, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("netutil: enumerate interfaces: %w", err)
	}

	var subnets []Subnet
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			// Enumeration failures are logged by the caller and the
			// prior snapshot retained; here we simply skip the
			// uncooperative interface rather than fail the whole
			// enumeration.
			continue
		}

		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil || ip4.IsLoopback() {
				continue
			}

			subnets = append(subnets, Subnet{
				Interface: iface.Name,
				Broadcast: directedBroadcast(ip4),
			})
		}
	}

	if opts.IncludeICSBridge {
		subnets = append(subnets, Subnet{
			Interface: ICSBridgeInterface,
			Broadcast: append(net.IP(nil), icsBridgeBroadcast...),
		})
	}

	return subnets, nil
}

// directedBroadcast computes the /24 directed broadcast address for ip by
// setting its last octet to 255 (A | 0x000000FF).
func directedBroadcast(ip net.IP) net.IP {
	b := append(net.IP(nil), ip...)
	b[len(b)-1] = 0xFF
	return b
}

// IsBridged reports whether ip falls within any subnet in snapshot whose
// interface is the ICS bridge. Membership is decided by the currently
// enumerated ICS-bridged subnet rather than inspecting ip's third octet, which
// would misclassify any ordinary /24 that happens to share that octet
// value.
func IsBridged(snapshot []Subnet, ip net.IP) bool {
	ip4 := ip.To4()
	if ip4 == nil {
		return false
	}
	for _, s := range snapshot {
		if s.Interface != ICSBridgeInterface {
			continue
		}
		if sameDirectedBroadcastDomain(s.Broadcast, ip4) {
			return true
		}
	}
	return false
}

func sameDirectedBroadcastDomain(broadcast, ip net.IP) bool {
	b := broadcast.To4()
	if b == nil {
		return false
	}
	return b[0] == ip[0] && b[1] == ip[1] && b[2] == ip[2]
}
