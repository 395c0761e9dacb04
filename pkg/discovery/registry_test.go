package discovery_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/xblive/pkg/discovery"
)

func newTestBus() (*discovery.EventBus, *eventRecorder) {
	bus := discovery.NewEventBus(nil)
	rec := &eventRecorder{}
	bus.OnAdd(func(v discovery.ConnectionView) { rec.adds = append(rec.adds, v) })
	bus.OnUpdate(func(before, after discovery.ConnectionView) {
		rec.updates = append(rec.updates, after)
	})
	bus.OnRemove(func(v discovery.ConnectionView) { rec.removes = append(rec.removes, v) })
	return bus, rec
}

type eventRecorder struct {
	adds    []discovery.ConnectionView
	updates []discovery.ConnectionView
	removes []discovery.ConnectionView
}

func TestRegistryIngest(t *testing.T) {
	bus, rec := newTestBus()
	reg := discovery.NewRegistry(bus)

	now := time.Now()
	conn := reg.Refresh(net.IPv4(192, 168, 1, 10), discovery.Endpoint{Address: net.IPv4(192, 168, 1, 10), Port: 730}, "eth0", "jtag", now)

	require.NotNil(t, conn)
	assert.Equal(t, discovery.StateOnline, conn.State())
	assert.Equal(t, "jtag", conn.Name())
	require.Len(t, rec.adds, 1)
	assert.Equal(t, "jtag", rec.adds[0].Name)
	assert.Empty(t, rec.updates)
}

func TestRegistryRefreshOnlineIsSilent(t *testing.T) {
	bus, rec := newTestBus()
	reg := discovery.NewRegistry(bus)

	ip := net.IPv4(192, 168, 1, 10)
	endpoint := discovery.Endpoint{Address: ip, Port: 730}
	first := time.Now()
	reg.Refresh(ip, endpoint, "eth0", "jtag", first)

	second := first.Add(time.Second)
	reg.Refresh(ip, endpoint, "eth0", "jtag", second)

	assert.Len(t, rec.adds, 1)
	assert.Empty(t, rec.updates)

	conn, ok := reg.Get(ip)
	require.True(t, ok)
	assert.True(t, conn.LastAck().After(first))
}

func TestRegistryDuplicateInsert(t *testing.T) {
	reg := discovery.NewRegistry(nil)
	ip := net.IPv4(192, 168, 1, 10)
	endpoint := discovery.Endpoint{Address: ip, Port: 730}

	_, err := reg.Insert(ip, endpoint, "eth0", "jtag", time.Now())
	require.NoError(t, err)

	_, err = reg.Insert(ip, endpoint, "eth0", "jtag", time.Now())
	assert.ErrorIs(t, err, discovery.ErrDuplicatePeer)
}

func TestRegistryDemotion(t *testing.T) {
	bus, rec := newTestBus()
	reg := discovery.NewRegistry(bus)

	ip := net.IPv4(192, 168, 1, 10)
	start := time.Now()
	reg.Refresh(ip, discovery.Endpoint{Address: ip, Port: 730}, "eth0", "jtag", start)

	demoted := reg.DemoteStale(start.Add(10*time.Second), 4*time.Second)
	assert.Equal(t, 1, demoted)
	require.Len(t, rec.updates, 1)
	assert.Equal(t, discovery.StateOffline, rec.updates[0].State)

	conn, _ := reg.Get(ip)
	assert.Equal(t, discovery.StateOffline, conn.State())
}

func TestRegistryDemotionIsIdempotentPerSweep(t *testing.T) {
	reg := discovery.NewRegistry(nil)
	ip := net.IPv4(192, 168, 1, 10)
	start := time.Now()
	reg.Refresh(ip, discovery.Endpoint{Address: ip, Port: 730}, "eth0", "jtag", start)

	later := start.Add(10 * time.Second)
	assert.Equal(t, 1, reg.DemoteStale(later, 4*time.Second))
	assert.Equal(t, 0, reg.DemoteStale(later.Add(time.Second), 4*time.Second))
}

func TestRegistryPurgeRemovesOnlyOffline(t *testing.T) {
	bus, rec := newTestBus()
	reg := discovery.NewRegistry(bus)

	start := time.Now()
	online := net.IPv4(192, 168, 1, 10)
	offlineA := net.IPv4(192, 168, 1, 11)
	offlineB := net.IPv4(192, 168, 1, 12)

	reg.Refresh(online, discovery.Endpoint{Address: online, Port: 730}, "eth0", "jtag", start)
	reg.Refresh(offlineA, discovery.Endpoint{Address: offlineA, Port: 730}, "eth0", "jtag", start)
	reg.Refresh(offlineB, discovery.Endpoint{Address: offlineB, Port: 730}, "eth0", "jtag", start)

	later := start.Add(10 * time.Second)
	reg.DemoteStale(later, 4*time.Second)

	reg.Refresh(online, discovery.Endpoint{Address: online, Port: 730}, "eth0", "jtag", later)

	removed := reg.PurgeOffline()
	assert.Equal(t, 2, removed)
	assert.Len(t, rec.removes, 2)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistrySnapshotIsSortedAndIndependent(t *testing.T) {
	reg := discovery.NewRegistry(nil)
	now := time.Now()
	reg.Refresh(net.IPv4(192, 168, 1, 20), discovery.Endpoint{}, "", "jtag", now)
	reg.Refresh(net.IPv4(192, 168, 1, 5), discovery.Endpoint{}, "", "jtag", now)

	snap := reg.Snapshot()
	require.Len(t, snap, 2)
	assert.True(t, snap[0].Peer.String() < snap[1].Peer.String())

	snap[0].Name = "changed"
	conn, ok := reg.Get(snap[0].Peer.IP())
	require.True(t, ok)
	assert.Equal(t, "jtag", conn.Name())
}
