// Package ls implements the link-state router: each node floods a
// sequence-numbered description of its direct links, builds a full link-state
// database from everything it has received, and recomputes shortest paths
// with Dijkstra whenever that database changes.
//
// This is a direct port of the reference LSrouter's handle_new_link,
// handle_remove_link, handle_time, handle_packet, and run_dijkstra,
// restructured around the same Config/Logger shape core/dv uses.
package ls

import (
	"log/slog"
	"sync"

	"github.com/lattice-net/routesim/core"
	"github.com/lattice-net/routesim/core/dedupe"
	"github.com/lattice-net/routesim/core/packet"
)

// Sender transmits pkt on the local port. It must not block and must not call
// back into the Router that invoked it. It takes ownership of pkt.
type Sender func(port core.Port, pkt *packet.Packet)

// Config configures a Router.
type Config struct {
	// Addr is this router's own address.
	Addr core.Address

	// HeartbeatPeriodMs is the minimum interval, in the same time base as
	// OnTick's time_ms, between periodic re-floods of this router's own LSP.
	// Must be positive.
	HeartbeatPeriodMs int64

	// Send transmits outbound packets. Required.
	Send Sender

	// Logger is used for internal, non-propagating diagnostics. Falls back
	// to slog.Default() if nil.
	Logger *slog.Logger
}

type neighbor struct {
	addr core.Address
	cost core.Cost
}

type lspEntry struct {
	seq   uint64
	links map[core.Address]core.Cost
}

// Router is a link-state node. See core/dv.Router for the concurrency
// contract this mirrors.
type Router struct {
	cfg Config
	log *slog.Logger

	mu            sync.Mutex
	neighbors     map[core.Port]neighbor
	lsdb          map[core.Address]lspEntry
	forwarding    map[core.Address]routeEntry
	seq           uint64
	lastHeartbeat int64
	seen          *dedupe.Cache
}

// New creates a link-state Router.
func New(cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:        cfg,
		log:        logger.WithGroup("ls").With("addr", cfg.Addr),
		neighbors:  make(map[core.Port]neighbor),
		lsdb:       make(map[core.Address]lspEntry),
		forwarding: make(map[core.Address]routeEntry),
		seen:       dedupe.New(),
	}
}

// LSDB returns a defensive copy of the current link-state database, keyed by
// advertising origin.
func (r *Router) LSDB() map[core.Address]map[core.Address]core.Cost {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[core.Address]map[core.Address]core.Cost, len(r.lsdb))
	for origin, entry := range r.lsdb {
		out[origin] = cloneLinks(entry.links)
	}
	return out
}

// Forwarding returns a defensive copy of the current forwarding table,
// destination address to outgoing port.
func (r *Router) Forwarding() map[core.Address]core.Port {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[core.Address]core.Port, len(r.forwarding))
	for addr, route := range r.forwarding {
		out[addr] = route.port
	}
	return out
}

// Costs returns a defensive copy of the current best-known cost to every
// reachable destination.
func (r *Router) Costs() map[core.Address]core.Cost {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[core.Address]core.Cost, len(r.forwarding))
	for addr, route := range r.forwarding {
		out[addr] = route.cost
	}
	return out
}

// OnNewLink adds a direct neighbor. A duplicate port overwrites the previous
// (endpoint, cost) per spec §7. Bumps this router's own sequence number and
// floods a fresh LSP.
func (r *Router) OnNewLink(port core.Port, endpoint core.Address, cost core.Cost) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.neighbors[port] = neighbor{addr: endpoint, cost: cost}
	r.advertiseLocked()
	r.log.Debug("new link", "port", port, "endpoint", endpoint, "cost", cost)
}

// OnRemoveLink removes a direct neighbor. Unknown ports are a silent no-op.
// Bumps this router's own sequence number and floods a fresh LSP.
func (r *Router) OnRemoveLink(port core.Port) {
	r.mu.Lock()
	defer r.mu.Unlock()

	nb, ok := r.neighbors[port]
	if !ok {
		return
	}
	delete(r.neighbors, port)

	r.advertiseLocked()
	r.log.Debug("link removed", "port", port, "endpoint", nb.addr)
}

// OnTick performs the periodic heartbeat re-flood of this router's own LSP,
// at a bumped sequence number, if the heartbeat period has elapsed. time_ms
// must be monotonic non-decreasing.
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
		r.handleRoutingLocked(port, pkt)
	}
}

func (r *Router) forwardDataLocked(pkt *packet.Packet) {
	route, ok := r.forwarding[pkt.Dst]
	if !ok {
		r.log.Debug("data packet dropped: no route", "dst", pkt.Dst)
		return
	}
	r.cfg.Send(route.port, pkt)
}

// handleRoutingLocked implements the LSP flood contract (spec §4.3, §7): a
// content-identical re-flood is discarded by the dedupe cache before it ever
// touches sequence-number bookkeeping; otherwise an LSP is installed and
// re-flooded only if its sequence number strictly exceeds what is already
// known for that origin, which is what makes the flood terminate.
func (r *Router) handleRoutingLocked(arrivalPort core.Port, pkt *packet.Packet) {
	if r.seen.HasSeen(pkt.Content) {
		return
	}

	parsed, err := Decode(pkt.Content)
	if err != nil {
		r.log.Debug("dropping unparseable LSP content", "from", pkt.Src, "error", err)
		return
	}

	existing, ok := r.lsdb[parsed.origin]
	if ok && parsed.seq <= existing.seq {
		return
	}

	r.lsdb[parsed.origin] = lspEntry{seq: parsed.seq, links: parsed.links}
	r.recomputeLocked()
	r.floodLocked(pkt, arrivalPort)
}

// advertiseLocked bumps this router's own sequence number, installs its own
// LSP in the database, recomputes routes, and floods it to every neighbor.
func (r *Router) advertiseLocked() {
	r.seq++

	links := make(map[core.Address]core.Cost, len(r.neighbors))
	for _, port := range core.SortedPorts(r.neighbors) {
		nb := r.neighbors[port]
		links[nb.addr] = nb.cost
	}
	r.lsdb[r.cfg.Addr] = lspEntry{seq: r.seq, links: links}
	r.recomputeLocked()

	content := Encode(r.cfg.Addr, r.seq, links)
	r.floodContentLocked(content, core.Port(0), true)
}

// floodLocked re-broadcasts pkt's content to every neighbor except the one it
// arrived on, addressing each copy to that neighbor directly. The dedupe
// cache already recorded pkt.Content in handleRoutingLocked, so this never
// loops back to us.
func (r *Router) floodLocked(pkt *packet.Packet, arrivalPort core.Port) {
	r.floodContentLocked(pkt.Content, arrivalPort, false)
}

func (r *Router) floodContentLocked(content []byte, excludePort core.Port, includeExcluded bool) {
	for _, port := range core.SortedPorts(r.neighbors) {
		if port == excludePort && !includeExcluded {
			continue
		}
		nb := r.neighbors[port]
		r.cfg.Send(port, packet.New(packet.Routing, r.cfg.Addr, nb.addr, append([]byte(nil), content...)))
	}
}

func (r *Router) recomputeLocked() {
	r.forwarding = r.computeRoutesLocked()
}
