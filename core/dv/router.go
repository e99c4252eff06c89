// Package dv implements the distance-vector router: a Bellman-Ford style
// state machine that maintains a distance vector and forwarding table from
// neighbor-exchanged vectors and periodic re-advertisement.
//
// This is a direct port of the reference DVrouter's handle_new_link,
// handle_remove_link, handle_time, handle_packet, update_forwarding_table,
// and send_dv_to_neighbors, restructured around the same Config/Logger
// shape the rest of this module uses.
package dv

import (
	"log/slog"
	"sync"

	"github.com/lattice-net/routesim/core"
	"github.com/lattice-net/routesim/core/packet"
)

// Sender transmits pkt on the local port. It must not block and must not call
// back into the Router that invoked it. It takes ownership of pkt: Routing
// packets are built fresh for each call, Data packets are passed on as received.
type Sender func(port core.Port, pkt *packet.Packet)

// Config configures a Router.
type Config struct {
	// Addr is this router's own address.
	Addr core.Address

	// HeartbeatPeriodMs is the minimum interval, in the same time base as
	// OnTick's time_ms, between periodic re-advertisements. Must be positive.
	HeartbeatPeriodMs int64

	// Send transmits outbound packets. Required.
	Send Sender

	// Logger is used for internal, non-propagating diagnostics (dropped
	// packets, parse failures). Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

type neighbor struct {
	addr core.Address
	cost core.Cost
}

// Router is a distance-vector node. All exported methods are safe for
// concurrent use: the internal mutex lets one event handler run at a time,
// which device/router.Node relies on when its links deliver packets from
// separate goroutines. A handler must not be re-entered from its own Sender.
type Router struct {
	cfg Config
	log *slog.Logger

	mu            sync.Mutex
	neighbors     map[core.Port]neighbor
	dv            map[core.Address]core.Cost
	neighborDV    map[core.Address]map[core.Address]core.Cost
	forwarding    map[core.Address]core.Port
	lastHeartbeat int64
}

// New creates a distance-vector Router.
func New(cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:        cfg,
		log:        logger.WithGroup("dv").With("addr", cfg.Addr),
		neighbors:  make(map[core.Port]neighbor),
		dv:         map[core.Address]core.Cost{cfg.Addr: 0},
		neighborDV: make(map[core.Address]map[core.Address]core.Cost),
		forwarding: make(map[core.Address]core.Port),
	}
}

// DV returns a defensive copy of the current distance vector.
func (r *Router) DV() map[core.Address]core.Cost {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneVector(r.dv)
}

// Forwarding returns a defensive copy of the current forwarding table.
func (r *Router) Forwarding() map[core.Address]core.Port {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[core.Address]core.Port, len(r.forwarding))
	for k, v := range r.forwarding {
		out[k] = v
	}
	return out
}

// OnNewLink adds a direct neighbor. A duplicate port overwrites the previous
// (endpoint, cost) per spec §7.
func (r *Router) OnNewLink(port core.Port, endpoint core.Address, cost core.Cost) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, replaced := r.neighbors[port]
	r.neighbors[port] = neighbor{addr: endpoint, cost: cost}
	if replaced && old.addr != endpoint {
		delete(r.neighborDV, old.addr)
	}
	if _, ok := r.neighborDV[endpoint]; !ok {
		r.neighborDV[endpoint] = make(map[core.Address]core.Cost)
	}

	if replaced {
		// Routes learned through the old (endpoint, cost) on this port are stale.
		r.updateLocked()
	} else if existing, ok := r.dv[endpoint]; !ok || cost.Less(existing) {
		r.dv[endpoint] = cost
		r.forwarding[endpoint] = port
	}

	r.advertiseLocked()
	r.log.Debug("new link", "port", port, "endpoint", endpoint, "cost", cost)
}

// OnRemoveLink removes a direct neighbor. Unknown ports are a silent no-op.
func (r *Router) OnRemoveLink(port core.Port) {
	r.mu.Lock()
	defer r.mu.Unlock()

	nb, ok := r.neighbors[port]
	if !ok {
		return
	}
	delete(r.neighbors, port)
	delete(r.neighborDV, nb.addr)

	r.updateLocked()
	r.advertiseLocked()
	r.log.Debug("link removed", "port", port, "endpoint", nb.addr)
}

// OnTick performs the periodic heartbeat re-advertisement if the heartbeat
// period has elapsed. time_ms must be monotonic non-decreasing.
func (r *Router) OnTick(timeMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if timeMs-r.lastHeartbeat < r.cfg.HeartbeatPeriodMs {
		return
	}
	r.lastHeartbeat = timeMs
	r.advertiseLocked()
}

// OnPacket processes a packet arriving on port.
func (r *Router) OnPacket(port core.Port, pkt *packet.Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch pkt.Kind {
	case packet.Data:
		r.forwardDataLocked(pkt)
	case packet.Routing:
		r.handleRoutingLocked(pkt)
	}
}

func (r *Router) forwardDataLocked(pkt *packet.Packet) {
	outPort, ok := r.forwarding[pkt.Dst]
	if !ok {
		r.log.Debug("data packet dropped: no route", "dst", pkt.Dst)
		return
	}
	r.cfg.Send(outPort, pkt)
}

func (r *Router) handleRoutingLocked(pkt *packet.Packet) {
	neighborAddr := pkt.Src

	vector, err := Decode(pkt.Content)
	if err != nil {
		r.log.Debug("dropping unparseable DV content", "from", neighborAddr, "error", err)
		return
	}

	stored, ok := r.neighborDV[neighborAddr]
	if ok && vectorsEqual(stored, vector) {
		return
	}

	r.neighborDV[neighborAddr] = vector
	r.updateLocked()
	r.advertiseLocked()
}

// updateLocked recomputes dv and forwarding from scratch: direct neighbors
// first, then relaxation through each neighbor's last-known vector. This
// mirrors update_forwarding_table exactly, including its deterministic
// iteration requirement (spec §5) via sorted traversal.
func (r *Router) updateLocked() {
	newDV := map[core.Address]core.Cost{r.cfg.Addr: 0}
	newFT := make(map[core.Address]core.Port)

	for _, port := range core.SortedPorts(r.neighbors) {
		nb := r.neighbors[port]
		if existing, ok := newDV[nb.addr]; !ok || nb.cost.Less(existing) {
			newDV[nb.addr] = nb.cost
			newFT[nb.addr] = port
		}
	}

	for _, nbAddr := range core.SortedAddresses(r.neighborDV) {
		outPort, ok := r.portTo(nbAddr)
		if !ok {
			continue
		}
		costToNb := r.neighbors[outPort].cost
		theirDV := r.neighborDV[nbAddr]

		for _, dest := range core.SortedAddresses(theirDV) {
			if dest == r.cfg.Addr {
				continue
			}
			total := costToNb.Add(theirDV[dest])
			if existing, ok := newDV[dest]; !ok || total.Less(existing) {
				newDV[dest] = total
				newFT[dest] = outPort
			}
		}
	}

	r.dv = newDV
	r.forwarding = newFT
}

func (r *Router) portTo(addr core.Address) (core.Port, bool) {
	for _, port := range core.SortedPorts(r.neighbors) {
		if r.neighbors[port].addr == addr {
			return port, true
		}
	}
	return 0, false
}

// advertiseLocked broadcasts the current dv to every direct neighbor. The
// serialized content is independent of r.dv once sent (Encode copies into a
// fresh byte slice), satisfying the snapshot discipline in spec §5/§9.
func (r *Router) advertiseLocked() {
	content := Encode(r.dv)
	for _, port := range core.SortedPorts(r.neighbors) {
		nb := r.neighbors[port]
		r.cfg.Send(port, packet.New(packet.Routing, r.cfg.Addr, nb.addr, append([]byte(nil), content...)))
	}
}

func cloneVector(v map[core.Address]core.Cost) map[core.Address]core.Cost {
	out := make(map[core.Address]core.Cost, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

func vectorsEqual(a, b map[core.Address]core.Cost) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
