// Package router binds a routing core (core/dv or core/ls) to a set of
// named link transports, dispatching inbound transport callbacks into the
// core's OnPacket/OnNewLink/OnRemoveLink and draining the core's outbound
// sends through a priority send queue.
//
// This corresponds to the teacher's device/router.Router, generalized from
// a single shared mesh channel with MeshCore-specific forwarding gates to a
// set of independent per-port links driven by a pluggable routing core.
package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lattice-net/routesim/core"
	"github.com/lattice-net/routesim/core/packet"
	"github.com/lattice-net/routesim/device/liveness"
	"github.com/lattice-net/routesim/transport"
)

const (
	// DefaultDrainInterval is the default interval for the send queue drain loop.
	DefaultDrainInterval = 10 * time.Millisecond

	// Send priorities: routing-protocol traffic is kept flowing ahead of data
	// traffic, since a delayed advertisement or LSP stalls convergence for
	// every destination behind it.
	PriorityRouting = 0
	PriorityData    = 1
)

// RoutingCore is the subset of core/dv.Router and core/ls.Router that a Node
// drives. Both satisfy it with identical method sets.
type RoutingCore interface {
	OnNewLink(port core.Port, endpoint core.Address, cost core.Cost)
	OnRemoveLink(port core.Port)
	OnTick(timeMs int64)
	OnPacket(port core.Port, pkt *packet.Packet)
}

// Config configures a Node.
type Config struct {
	// Core is the routing core this node drives. Required.
	Core RoutingCore

	// DrainInterval is how often the queue drain goroutine checks for ready
	// packets. Default: 10ms. Only used when Start() is called.
	DrainInterval time.Duration

	// Liveness, if set, is told about every registered port and every
	// inbound packet; when a port falls silent past its timeout, the
	// Node removes the link itself (core.Router.OnRemoveLink is always
	// environment-driven per spec.md §5, never called from inside the
	// core). Optional: a Node with no Liveness never expires links on
	// its own.
	Liveness *liveness.Manager

	// Logger for routing events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Node owns one transport per link port and feeds a RoutingCore from them.
type Node struct {
	cfg   Config
	log   *slog.Logger
	queue *SendQueue

	Counters Counters

	mu    sync.RWMutex
	links map[core.Port]transport.Transport

	cancel    context.CancelFunc
	drainDone chan struct{}
	started   bool
}

// New creates a Node around the given routing core. The core's outbound
// sends are routed to AddLink'd transports by port.
func New(cfg Config) *Node {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{
		cfg:   cfg,
		log:   logger.WithGroup("node"),
		queue: NewSendQueue(),
		links: make(map[core.Port]transport.Transport),
	}
	if cfg.Liveness != nil {
		cfg.Liveness.SetOnTimeout(n.RemoveLink)
	}
	return n
}

// Start begins the queue drain goroutine, and the liveness check loop if
// Config.Liveness was set. Packets pushed to the queue will be sent when
// ready. If Start is never called, Send falls back to synchronous sending.
func (n *Node) Start(ctx context.Context) {
	interval := n.cfg.DrainInterval
	if interval <= 0 {
		interval = DefaultDrainInterval
	}
	ctx, n.cancel = context.WithCancel(ctx)
	n.drainDone = make(chan struct{})
	n.started = true
	go n.drainLoop(ctx, interval)

	if n.cfg.Liveness != nil {
		go n.cfg.Liveness.Start(ctx)
	}
}

// Stop cancels the drain goroutine and waits for it to finish.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
		<-n.drainDone
		n.cancel = nil
		n.started = false
	}
}

func (n *Node) drainLoop(ctx context.Context, interval time.Duration) {
	defer close(n.drainDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				entry := n.queue.Pop()
				if entry == nil {
					break
				}
				n.transmit(entry.Port, entry.Packet)
			}
		}
	}
}

// AddLink registers a transport for port and wires OnNewLink into the core.
// The transport's inbound packets are dispatched to the core's OnPacket.
func (n *Node) AddLink(port core.Port, endpoint core.Address, cost core.Cost, t transport.Transport) {
	n.mu.Lock()
	n.links[port] = t
	n.mu.Unlock()

	t.SetPacketHandler(func(pkt *packet.Packet) {
		n.handleInbound(port, pkt)
	})

	if n.cfg.Liveness != nil {
		n.cfg.Liveness.Register(port)
	}

	n.cfg.Core.OnNewLink(port, endpoint, cost)
}

// RemoveLink tears down the transport for port and notifies the core. This
// is the only path that reaches core.Router.OnRemoveLink: the environment
// decides when a link is gone, whether that decision comes from an
// explicit RemoveLink call or from Config.Liveness reporting the port idle.
func (n *Node) RemoveLink(port core.Port) {
	n.mu.Lock()
	delete(n.links, port)
	n.mu.Unlock()

	if n.cfg.Liveness != nil {
		n.cfg.Liveness.Remove(port)
	}

	n.cfg.Core.OnRemoveLink(port)
}

func (n *Node) handleInbound(port core.Port, pkt *packet.Packet) {
	if n.cfg.Liveness != nil {
		n.cfg.Liveness.Touch(port)
	}

	n.Counters.PacketsRecv.Add(1)
	switch pkt.Kind {
	case packet.Data:
		n.Counters.DataRecv.Add(1)
	case packet.Routing:
		n.Counters.RoutingRecv.Add(1)
	}
	n.cfg.Core.OnPacket(port, pkt)
}

// OnTick drives the core's periodic heartbeat/advertisement logic.
func (n *Node) OnTick(timeMs int64) {
	n.cfg.Core.OnTick(timeMs)
}

// Send queues pkt for transmission on port. This is the Sender the routing
// core is configured with (core/dv.Config.Send, core/ls.Config.Send).
func (n *Node) Send(port core.Port, pkt *packet.Packet) {
	priority := uint8(PriorityData)
	if pkt.Kind == packet.Routing {
		priority = PriorityRouting
	}

	if !n.started {
		n.transmit(port, pkt)
		return
	}
	n.queue.Push(port, pkt, priority, 0)
}

func (n *Node) transmit(port core.Port, pkt *packet.Packet) {
	n.mu.RLock()
	t, ok := n.links[port]
	n.mu.RUnlock()

	if !ok || !t.IsConnected() {
		n.Counters.SendDropped.Add(1)
		return
	}

	if err := t.SendPacket(pkt); err != nil {
		n.Counters.SendDropped.Add(1)
		n.log.Warn("failed to send packet", "port", port, "error", err)
		return
	}

	n.Counters.PacketsSent.Add(1)
	switch pkt.Kind {
	case packet.Data:
		n.Counters.DataSent.Add(1)
	case packet.Routing:
		n.Counters.RoutingSent.Add(1)
	}
}
