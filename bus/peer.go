package bus

import (
	"context"

	"github.com/godbus/dbus/v5"
)

// DialPeer connects directly to another peer at address without a bus
// daemon (spec.md §9 "peer-to-peer", end-to-end scenario 5): no Hello
// call is made and the resulting Connection never gets a unique name.
// The returned Connection is always private — peer connections are
// never shared through the bus-type singleton table.
func DialPeer(ctx context.Context, address string, opts Options) (*Connection, error) {
	c := newConnection(Session, true, opts)
	c.peer = true
	c.address = address
	c.customDialer = func(context.Context) (*dbus.Conn, error) {
		return dbus.Dial(address)
	}
	if err := c.Open(ctx); err != nil {
		return nil, err
	}
	return c, nil
}
