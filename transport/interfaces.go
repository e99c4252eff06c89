// Package transport provides transport interfaces and implementations for
// carrying routing packets over a single link. Unlike a shared mesh channel,
// each Transport here carries traffic for exactly one port of one router;
// device/router.Node owns one Transport per configured link.
package transport

import (
	"context"

	"github.com/lattice-net/routesim/core/packet"
)

// Transport is the base interface for all link transport implementations.
type Transport interface {
	// Start begins the transport's connection and message handling. The
	// provided context controls the transport's lifetime.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the transport.
	Stop() error
	// IsConnected returns true if the transport is currently connected.
	IsConnected() bool
	// SetPacketHandler sets the callback for incoming packets.
	SetPacketHandler(fn PacketHandler)
	// SetStateHandler sets the callback for transport state changes.
	SetStateHandler(fn StateHandler)
	// SendPacket encodes and transmits a packet over the transport.
	SendPacket(pkt *packet.Packet) error
}

// PacketHandler is called when a packet is received on this link.
type PacketHandler func(pkt *packet.Packet)

// StateHandler is called when the transport state changes.
type StateHandler func(t Transport, event Event)

// Event represents transport state change events.
type Event int

const (
	// EventConnected is fired when the transport connects.
	EventConnected Event = iota
	// EventDisconnected is fired when the transport disconnects.
	EventDisconnected
	// EventReconnecting is fired when the transport is attempting to reconnect.
	EventReconnecting
	// EventError is fired when an error occurs.
	EventError
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventReconnecting:
		return "reconnecting"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}
