// Command netsim loads a small JSON topology description, builds an
// in-memory network of distance-vector or link-state routers with
// sim.Network, drives it forward in heartbeat-sized ticks until every
// node's forwarding table stops changing (or a tick budget is exhausted),
// and prints the resulting forwarding tables.
//
// This is the harness around the DV/LS core, not part of it — see
// spec.md §1: "the simulator harness... is out of scope."
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/lattice-net/routesim/core"
	"github.com/lattice-net/routesim/sim"
)

// topology is the on-disk JSON shape: a list of node addresses and a list
// of undirected links between them with an associated cost.
type topology struct {
	Nodes []string `json:"nodes"`
	Links []struct {
		A    string `json:"a"`
		B    string `json:"b"`
		Cost uint32 `json:"cost"`
	} `json:"links"`
}

func main() {
	protocol := flag.String("protocol", "dv", `routing protocol: "dv" or "ls"`)
	topoPath := flag.String("topology", "", "path to a JSON topology file")
	heartbeatMs := flag.Int64("heartbeat", 1000, "heartbeat period in milliseconds")
	tickMs := flag.Int64("tick", 100, "simulator tick size in milliseconds")
	maxTicks := flag.Int("max-ticks", 500, "maximum number of ticks before giving up on convergence")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *topoPath == "" {
		fmt.Fprintln(os.Stderr, "netsim: -topology is required")
		flag.Usage()
		os.Exit(2)
	}

	topo, err := loadTopology(*topoPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "netsim: %v\n", err)
		os.Exit(1)
	}

	kind := sim.KindDV
	switch *protocol {
	case "dv":
		kind = sim.KindDV
	case "ls":
		kind = sim.KindLS
	default:
		fmt.Fprintf(os.Stderr, "netsim: unknown protocol %q (want dv or ls)\n", *protocol)
		os.Exit(2)
	}

	net := sim.NewNetwork(logger)
	defer net.Stop()

	for _, addr := range topo.Nodes {
		if err := net.AddNode(core.Address(addr), kind, *heartbeatMs); err != nil {
			fmt.Fprintf(os.Stderr, "netsim: %v\n", err)
			os.Exit(1)
		}
	}
	for _, link := range topo.Links {
		if _, _, err := net.Link(core.Address(link.A), core.Address(link.B), core.Cost(link.Cost)); err != nil {
			fmt.Fprintf(os.Stderr, "netsim: %v\n", err)
			os.Exit(1)
		}
	}

	ticksRun, converged := runUntilStable(net, topo.Nodes, *tickMs, *maxTicks)
	if converged {
		logger.Info("converged", "ticks", ticksRun)
	} else {
		logger.Warn("did not converge within tick budget", "ticks", ticksRun)
	}

	printForwardingTables(net, topo.Nodes)
}

func loadTopology(path string) (*topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology: %w", err)
	}
	var t topology
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing topology: %w", err)
	}
	return &t, nil
}

// runUntilStable ticks the network forward until no node's forwarding table
// changes between two consecutive ticks, or maxTicks is reached.
func runUntilStable(net *sim.Network, nodes []string, tickMs int64, maxTicks int) (int, bool) {
	prev := snapshotAll(net, nodes)
	for i := 0; i < maxTicks; i++ {
		net.Tick(tickMs)
		cur := snapshotAll(net, nodes)
		if i > 0 && tablesEqual(prev, cur) {
			return i + 1, true
		}
		prev = cur
	}
	return maxTicks, false
}

func snapshotAll(net *sim.Network, nodes []string) map[string]map[core.Address]core.Port {
	out := make(map[string]map[core.Address]core.Port, len(nodes))
	for _, addr := range nodes {
		fw, err := net.Forwarding(core.Address(addr))
		if err != nil {
			continue
		}
		out[addr] = fw
	}
	return out
}

func tablesEqual(a, b map[string]map[core.Address]core.Port) bool {
	if len(a) != len(b) {
		return false
	}
	for addr, fa := range a {
		fb, ok := b[addr]
		if !ok || len(fa) != len(fb) {
			return false
		}
		for dst, port := range fa {
			if fb[dst] != port {
				return false
			}
		}
	}
	return true
}

func printForwardingTables(net *sim.Network, nodes []string) {
	for _, addr := range nodes {
		fw, err := net.Forwarding(core.Address(addr))
		if err != nil {
			continue
		}
		fmt.Printf("%s:\n", addr)
		for _, dst := range core.SortedAddresses(fw) {
			fmt.Printf("  %s -> port %d\n", dst, fw[dst])
		}
	}
}
