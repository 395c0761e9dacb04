package discovery_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jihwankim/xblive/pkg/discovery"
)

func TestEventBusPanicIsolation(t *testing.T) {
	bus := discovery.NewEventBus(nil)

	var secondCalled bool
	bus.OnAdd(func(discovery.ConnectionView) { panic("boom") })
	bus.OnAdd(func(discovery.ConnectionView) { secondCalled = true })

	ip := net.IPv4(10, 0, 0, 1)
	assert.NotPanics(t, func() {
		reg := discovery.NewRegistry(bus)
		reg.Refresh(ip, discovery.Endpoint{Address: ip, Port: 730}, "", "jtag", time.Now())
	})
	assert.True(t, secondCalled, "a panicking handler must not prevent later handlers from running")
}

func TestEventBusDeliversInRegistrationOrder(t *testing.T) {
	bus := discovery.NewEventBus(nil)

	var order []int
	bus.OnAdd(func(discovery.ConnectionView) { order = append(order, 1) })
	bus.OnAdd(func(discovery.ConnectionView) { order = append(order, 2) })
	bus.OnAdd(func(discovery.ConnectionView) { order = append(order, 3) })

	ip := net.IPv4(10, 0, 0, 2)
	reg := discovery.NewRegistry(bus)
	reg.Refresh(ip, discovery.Endpoint{Address: ip, Port: 730}, "", "jtag", time.Now())

	assert.Equal(t, []int{1, 2, 3}, order)
}
