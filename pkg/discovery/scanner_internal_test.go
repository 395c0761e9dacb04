package discovery

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/xblive/pkg/netutil"
)

// These tests exercise handleDatagram directly with synthetic addresses
// so the discovery-port and minimum-length rules can be checked without
// binding a real socket to the privileged port 730.

func TestHandleDatagramIngestsValidResponse(t *testing.T) {
	bus := NewEventBus(nil)
	var added ConnectionView
	bus.OnAdd(func(v ConnectionView) { added = v })

	s := NewScanner(DefaultConfig(), bus, nil)
	addr := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 10), Port: DiscoveryPort}

	s.handleDatagram(addr, []byte{0x03, 0x04, 'j', 't', 'a', 'g'})

	assert.Equal(t, "jtag", added.Name)
	assert.Equal(t, StateOnline, added.State)
	assert.Equal(t, "192.168.1.10", added.Endpoint.Address.String())
}

func TestHandleDatagramIgnoresWrongSourcePort(t *testing.T) {
	s := NewScanner(DefaultConfig(), nil, nil)
	addr := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 10), Port: 12345}

	s.handleDatagram(addr, []byte{0x03, 0x04, 'j', 't', 'a', 'g'})

	assert.Equal(t, 0, s.Registry().Len())
}

func TestHandleDatagramIgnoresShortPayload(t *testing.T) {
	s := NewScanner(DefaultConfig(), nil, nil)
	addr := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 10), Port: DiscoveryPort}

	s.handleDatagram(addr, []byte{0x03, 0x04})

	assert.Equal(t, 0, s.Registry().Len())
}

func TestHandleDatagramRefreshDoesNotReAdd(t *testing.T) {
	bus := NewEventBus(nil)
	var addCount int
	bus.OnAdd(func(ConnectionView) { addCount++ })

	s := NewScanner(DefaultConfig(), bus, nil)
	addr := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 10), Port: DiscoveryPort}

	s.handleDatagram(addr, []byte{0x03, 0x04, 'j', 't', 'a', 'g'})
	s.handleDatagram(addr, []byte{0x03, 0x04, 'j', 't', 'a', 'g'})

	assert.Equal(t, 1, addCount)
}

func TestHandleDatagramClassifiesBridgedPeer(t *testing.T) {
	s := NewScanner(DefaultConfig(), nil, nil)
	subnets := []netutil.Subnet{
		{Interface: "eth0", Broadcast: net.IPv4(192, 168, 1, 255)},
		{Interface: netutil.ICSBridgeInterface, Broadcast: net.IPv4(192, 168, 137, 255)},
	}
	s.subnets.Store(&subnets)

	bridgedAddr := &net.UDPAddr{IP: net.IPv4(192, 168, 137, 50), Port: DiscoveryPort}
	s.handleDatagram(bridgedAddr, []byte{0x03, 0x04, 'j', 't', 'a', 'g'})
	lanAddr := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 10), Port: DiscoveryPort}
	s.handleDatagram(lanAddr, []byte{0x03, 0x04, 'j', 't', 'a', 'g'})

	bridged, ok := s.Registry().Get(net.IPv4(192, 168, 137, 50))
	require.True(t, ok)
	assert.True(t, bridged.Bridged())

	lan, ok := s.Registry().Get(net.IPv4(192, 168, 1, 10))
	require.True(t, ok)
	assert.False(t, lan.Bridged())
}

func TestMatchInterfaceFindsContainingSubnet(t *testing.T) {
	s := NewScanner(DefaultConfig(), nil, nil)
	subnets := []netutil.Subnet{
		{Interface: "eth0", Broadcast: net.IPv4(192, 168, 1, 255)},
	}
	s.subnets.Store(&subnets)

	assert.Equal(t, "eth0", s.matchInterface(net.IPv4(192, 168, 1, 42)))
	assert.Equal(t, "", s.matchInterface(net.IPv4(10, 0, 0, 42)))
}

func TestBroadcastOnceSurvivesPerSubnetSendFailure(t *testing.T) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, enableBroadcast(conn))

	s := NewScanner(DefaultConfig(), nil, nil)
	subnets := []netutil.Subnet{
		{Interface: "eth0", Broadcast: net.IPv4(255, 255, 255, 255)},
		{Interface: "bogus0", Broadcast: nil},
	}
	s.subnets.Store(&subnets)

	assert.NotPanics(t, func() {
		s.broadcastOnce(conn, PayloadJtag.bytes())
	})
}
