package router

import "sync/atomic"

// Counters tracks per-node packet routing statistics using atomic counters.
// All fields are safe for concurrent access.
type Counters struct {
	PacketsRecv atomic.Uint32 // Total packets received on any port
	PacketsSent atomic.Uint32 // Total packets sent on any port
	DataRecv    atomic.Uint32 // Data packets received
	DataSent    atomic.Uint32 // Data packets sent
	RoutingRecv atomic.Uint32 // Routing packets received
	RoutingSent atomic.Uint32 // Routing packets sent
	SendDropped atomic.Uint32 // Sends that failed at the transport
}

// CountersSnapshot is a plain-value copy of Counters for reading.
type CountersSnapshot struct {
	PacketsRecv uint32
	PacketsSent uint32
	DataRecv    uint32
	DataSent    uint32
	RoutingRecv uint32
	RoutingSent uint32
	SendDropped uint32
}

// Snapshot returns a copy of all counters. Each counter is loaded separately,
// so the copy is not atomic across counters.
func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		PacketsRecv: c.PacketsRecv.Load(),
		PacketsSent: c.PacketsSent.Load(),
		DataRecv:    c.DataRecv.Load(),
		DataSent:    c.DataSent.Load(),
		RoutingRecv: c.RoutingRecv.Load(),
		RoutingSent: c.RoutingSent.Load(),
		SendDropped: c.SendDropped.Load(),
	}
}

// Reset zeroes all counters.
func (c *Counters) Reset() {
	c.PacketsRecv.Store(0)
	c.PacketsSent.Store(0)
	c.DataRecv.Store(0)
	c.DataSent.Store(0)
	c.RoutingRecv.Store(0)
	c.RoutingSent.Store(0)
	c.SendDropped.Store(0)
}
