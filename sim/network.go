package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lattice-net/routesim/core"
	"github.com/lattice-net/routesim/core/dv"
	"github.com/lattice-net/routesim/core/ls"
	"github.com/lattice-net/routesim/core/packet"
	"github.com/lattice-net/routesim/device/liveness"
	"github.com/lattice-net/routesim/device/router"
)

// Kind selects which routing protocol a simulated node runs.
type Kind int

const (
	// KindDV runs a core/dv.Router.
	KindDV Kind = iota
	// KindLS runs a core/ls.Router.
	KindLS
)

func (k Kind) String() string {
	switch k {
	case KindDV:
		return "dv"
	case KindLS:
		return "ls"
	default:
		return "unknown"
	}
}

// routingCore is the subset of core/dv.Router and core/ls.Router that the
// simulator drives directly, beyond what router.RoutingCore already covers:
// both expose a destination-to-port forwarding snapshot under the same
// signature, which is all a topology-level test or CLI needs to assert
// convergence.
type routingCore interface {
	router.RoutingCore
	Forwarding() map[core.Address]core.Port
}

// nodeEntry is everything the Network tracks for one simulated router.
type nodeEntry struct {
	kind     Kind
	core     routingCore
	node     *router.Node
	nextPort core.Port
}

// Network is an in-memory topology of DV and/or LS routers connected by
// sim.NewLink in-process transports, driven by an explicit tick clock. It
// exists purely as a test and CLI harness; none of spec.md's DV/LS
// semantics live here.
type Network struct {
	log *slog.Logger

	mu     sync.Mutex
	nodes  map[core.Address]*nodeEntry
	timeMs int64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewNetwork creates an empty topology. logger may be nil (falls back to
// slog.Default()).
func NewNetwork(logger *slog.Logger) *Network {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Network{
		log:    logger.WithGroup("sim"),
		nodes:  make(map[core.Address]*nodeEntry),
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddNode creates a new router of the given kind at addr with the given
// heartbeat period, and starts its device/router.Node.
func (net *Network) AddNode(addr core.Address, kind Kind, heartbeatMs int64) error {
	net.mu.Lock()
	defer net.mu.Unlock()

	if _, exists := net.nodes[addr]; exists {
		return fmt.Errorf("sim: node %q already exists", addr)
	}

	var n *router.Node
	send := func(port core.Port, pkt *packet.Packet) { n.Send(port, pkt) }

	nodeLogger := net.log.With("addr", addr)

	var rc routingCore
	switch kind {
	case KindDV:
		rc = dv.New(dv.Config{Addr: addr, HeartbeatPeriodMs: heartbeatMs, Send: send, Logger: nodeLogger})
	case KindLS:
		rc = ls.New(ls.Config{Addr: addr, HeartbeatPeriodMs: heartbeatMs, Send: send, Logger: nodeLogger})
	default:
		return fmt.Errorf("sim: unknown kind %v", kind)
	}

	lm := liveness.NewManager(liveness.Config{Logger: nodeLogger})
	n = router.New(router.Config{Core: rc, Logger: nodeLogger, Liveness: lm})
	n.Start(net.ctx)

	net.nodes[addr] = &nodeEntry{kind: kind, core: rc, node: n}
	return nil
}

// Link connects two existing nodes with a point-to-point in-memory
// transport of the given cost (symmetric in both directions), allocating a
// fresh local port on each side.
func (net *Network) Link(a, b core.Address, cost core.Cost) (portA, portB core.Port, err error) {
	net.mu.Lock()
	ea, ok := net.nodes[a]
	if !ok {
		net.mu.Unlock()
		return 0, 0, fmt.Errorf("sim: unknown node %q", a)
	}
	eb, ok := net.nodes[b]
	if !ok {
		net.mu.Unlock()
		return 0, 0, fmt.Errorf("sim: unknown node %q", b)
	}
	portA = ea.nextPort
	ea.nextPort++
	portB = eb.nextPort
	eb.nextPort++
	net.mu.Unlock()

	ta, tb := NewLink(fmt.Sprintf("%s<->%s", a, b), net.log)
	if err := ta.Start(net.ctx); err != nil {
		return 0, 0, err
	}
	if err := tb.Start(net.ctx); err != nil {
		return 0, 0, err
	}

	ea.node.AddLink(portA, b, cost, ta)
	eb.node.AddLink(portB, a, cost, tb)
	return portA, portB, nil
}

// Unlink removes the link at portA on node a and portB on node b.
func (net *Network) Unlink(a core.Address, portA core.Port, b core.Address, portB core.Port) {
	net.mu.Lock()
	ea, okA := net.nodes[a]
	eb, okB := net.nodes[b]
	net.mu.Unlock()

	if okA {
		ea.node.RemoveLink(portA)
	}
	if okB {
		eb.node.RemoveLink(portB)
	}
}

// Tick advances the simulator clock by deltaMs and drives OnTick on every
// node at the new time. Nodes whose individual heartbeat period has not
// yet elapsed do no work (core/dv.Router.OnTick, core/ls.Router.OnTick).
func (net *Network) Tick(deltaMs int64) {
	net.mu.Lock()
	net.timeMs += deltaMs
	t := net.timeMs
	entries := make([]*nodeEntry, 0, len(net.nodes))
	for _, e := range net.nodes {
		entries = append(entries, e)
	}
	net.mu.Unlock()

	for _, e := range entries {
		e.node.OnTick(t)
	}
}

// SendData injects a Data packet for src->dst at src, as if submitted by a
// local application on any port; it is forwarded according to src's current
// forwarding table (or dropped, per spec.md §4.1/§8 S6, if none exists).
func (net *Network) SendData(src, dst core.Address, payload []byte) error {
	net.mu.Lock()
	e, ok := net.nodes[src]
	net.mu.Unlock()
	if !ok {
		return fmt.Errorf("sim: unknown node %q", src)
	}
	e.core.OnPacket(0, packet.New(packet.Data, src, dst, payload))
	return nil
}

// Forwarding returns a snapshot of addr's current forwarding table.
func (net *Network) Forwarding(addr core.Address) (map[core.Address]core.Port, error) {
	net.mu.Lock()
	e, ok := net.nodes[addr]
	net.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("sim: unknown node %q", addr)
	}
	return e.core.Forwarding(), nil
}

// Node returns the device/router.Node backing addr, for counters/transport
// introspection in tests.
func (net *Network) Node(addr core.Address) (*router.Node, error) {
	net.mu.Lock()
	defer net.mu.Unlock()
	e, ok := net.nodes[addr]
	if !ok {
		return nil, fmt.Errorf("sim: unknown node %q", addr)
	}
	return e.node, nil
}

// Addresses returns every node address currently in the topology.
func (net *Network) Addresses() []core.Address {
	net.mu.Lock()
	defer net.mu.Unlock()
	out := make([]core.Address, 0, len(net.nodes))
	for a := range net.nodes {
		out = append(out, a)
	}
	return out
}

// Stop tears down every node's drain loop and link goroutine.
func (net *Network) Stop() {
	net.cancel()
	net.mu.Lock()
	defer net.mu.Unlock()
	for _, e := range net.nodes {
		e.node.Stop()
	}
}
