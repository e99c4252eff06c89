package ls

import (
	"github.com/RyanCarrier/dijkstra"

	"github.com/lattice-net/routesim/core"
)

// routeEntry is one forwarding table entry: the outgoing port and total
// path cost to reach a destination.
type routeEntry struct {
	port core.Port
	cost core.Cost
}

// computeRoutes runs Dijkstra from self over the graph implied by lsdb
// (vertices = lsdb keys, edge u->v of weight w iff lsdb[u].links[v] = w),
// then derives a next hop and installs a forwarding entry for every
// destination reachable from self.
//
// Grounded on the reference run_dijkstra/next-hop walk for the contract
// (strict-< relax, walk prev back to self, skip on broken chain or missing
// port), but delegates the actual shortest-path search to
// github.com/RyanCarrier/dijkstra — a non-integer-keyed graph library isn't
// offered by that package, so vertices are mapped to dense integer indices
// the way dtn7-dtn7-gold's DTLSR does for its own non-integer endpoint IDs.
func (r *Router) computeRoutesLocked() map[core.Address]routeEntry {
	addrs := core.SortedAddresses(r.lsdb)

	index := make(map[core.Address]int, len(addrs))
	for i, a := range addrs {
		index[a] = i
	}

	selfIdx, ok := index[r.cfg.Addr]
	if !ok {
		// self has no lsdb entry yet (no links advertised); nothing reachable.
		return map[core.Address]routeEntry{}
	}

	graph := dijkstra.NewGraph()
	for i := range addrs {
		graph.AddVertex(i)
	}
	for _, origin := range addrs {
		entry := r.lsdb[origin]
		from, ok := index[origin]
		if !ok {
			continue
		}
		for _, dest := range core.SortedAddresses(entry.links) {
			to, ok := index[dest]
			if !ok {
				continue
			}
			cost := entry.links[dest]
			if cost >= core.CostInfinity {
				continue
			}
			// AddArc errors (e.g. duplicate arc) are not actionable here;
			// lsdb entries are already deduplicated per-origin by map keys.
			_ = graph.AddArc(from, to, int64(cost))
		}
	}

	routes := make(map[core.Address]routeEntry)
	for _, dest := range addrs {
		if dest == r.cfg.Addr {
			continue
		}
		destIdx := index[dest]

		best, err := graph.Shortest(selfIdx, destIdx)
		if err != nil || len(best.Path) < 2 {
			// Unreachable, or a topology inconsistency the next LSP will
			// resolve (spec §7): skip silently.
			continue
		}

		nextHopAddr := addrs[best.Path[1]]
		port, ok := r.portTo(nextHopAddr)
		if !ok {
			continue
		}

		routes[dest] = routeEntry{port: port, cost: core.Cost(best.Distance)}
	}

	return routes
}

func (r *Router) portTo(addr core.Address) (core.Port, bool) {
	for _, port := range core.SortedPorts(r.neighbors) {
		if r.neighbors[port].addr == addr {
			return port, true
		}
	}
	return 0, false
}
