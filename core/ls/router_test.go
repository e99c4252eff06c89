package ls

import (
	"testing"

	"github.com/lattice-net/routesim/core"
	"github.com/lattice-net/routesim/core/packet"
)

type sentPacket struct {
	port core.Port
	pkt  *packet.Packet
}

func newTestRouter(addr core.Address, heartbeatMs int64) (*Router, *[]sentPacket) {
	sent := &[]sentPacket{}
	r := New(Config{
		Addr:              addr,
		HeartbeatPeriodMs: heartbeatMs,
		Send: func(port core.Port, pkt *packet.Packet) {
			*sent = append(*sent, sentPacket{port: port, pkt: pkt})
		},
	})
	return r, sent
}

func TestOnNewLinkInstallsOwnLSPAndFloods(t *testing.T) {
	r, sent := newTestRouter("A", 1000)
	r.OnNewLink(1, "B", 5)

	lsdb := r.LSDB()
	if lsdb["A"]["B"] != 5 {
		t.Fatalf("lsdb[A][B] = %v, want 5", lsdb["A"]["B"])
	}
	if len(*sent) != 1 {
		t.Fatalf("expected one flood on new link, got %d", len(*sent))
	}

	// B becomes a graph vertex once its own LSP is in the database.
	r.OnPacket(1, packet.New(packet.Routing, "B", "A", Encode("B", 1, map[core.Address]core.Cost{"A": 5})))
	if r.Forwarding()["B"] != 1 {
		t.Fatalf("forwarding[B] = %v, want port 1", r.Forwarding()["B"])
	}
}

func TestOnRemoveLinkUnknownPortIsNoop(t *testing.T) {
	r, sent := newTestRouter("A", 1000)
	r.OnRemoveLink(99)
	if len(*sent) != 0 {
		t.Fatalf("expected no sends for unknown port removal, got %d", len(*sent))
	}
}

func TestOnRemoveLinkDropsRoute(t *testing.T) {
	r, _ := newTestRouter("A", 1000)
	r.OnNewLink(1, "B", 5)
	r.OnPacket(1, packet.New(packet.Routing, "B", "A", Encode("B", 1, map[core.Address]core.Cost{"A": 5})))
	if _, ok := r.Forwarding()["B"]; !ok {
		t.Fatal("expected route to B before removal")
	}

	r.OnRemoveLink(1)
	if _, ok := r.Forwarding()["B"]; ok {
		t.Fatal("expected route to B gone after link removal")
	}
}

func TestOnTickRespectsHeartbeatPeriod(t *testing.T) {
	r, sent := newTestRouter("A", 1000)
	r.OnNewLink(1, "B", 1)
	*sent = nil

	r.OnTick(500)
	if len(*sent) != 0 {
		t.Fatalf("expected no heartbeat before period elapsed, got %d sends", len(*sent))
	}

	r.OnTick(1000)
	if len(*sent) != 1 {
		t.Fatalf("expected one heartbeat at period boundary, got %d", len(*sent))
	}
}

func TestDataPacketForwarding(t *testing.T) {
	r, sent := newTestRouter("A", 1000)
	r.OnNewLink(1, "B", 5)
	r.OnPacket(1, packet.New(packet.Routing, "B", "A", Encode("B", 1, map[core.Address]core.Cost{"A": 5})))
	*sent = nil

	r.OnPacket(9, packet.New(packet.Data, "A", "B", []byte("hi")))
	if len(*sent) != 1 || (*sent)[0].port != 1 {
		t.Fatalf("expected forward on port 1, got %+v", *sent)
	}
}

func TestDataPacketMissDropsSilently(t *testing.T) {
	r, sent := newTestRouter("A", 1000)
	r.OnPacket(1, packet.New(packet.Data, "A", "Z", []byte("hi")))
	if len(*sent) != 0 {
		t.Fatalf("expected silent drop, got %d sends", len(*sent))
	}
}

func TestUnparseableRoutingPacketDroppedSilently(t *testing.T) {
	r, sent := newTestRouter("A", 1000)
	r.OnNewLink(1, "B", 1)
	*sent = nil

	r.OnPacket(1, packet.New(packet.Routing, "B", "A", []byte{0xFF}))
	if len(*sent) != 0 {
		t.Fatalf("unparseable content must not trigger install/flood, got %d sends", len(*sent))
	}
}

func TestStaleSequenceIsDroppedSilently(t *testing.T) {
	r, sent := newTestRouter("A", 1000)
	r.OnNewLink(1, "B", 1)
	*sent = nil

	content := Encode("B", 5, map[core.Address]core.Cost{"C": 1})
	r.OnPacket(1, packet.New(packet.Routing, "B", "A", content))
	if len(*sent) == 0 {
		t.Fatal("expected flood on first install of seq 5")
	}

	*sent = nil
	stale := Encode("B", 5, map[core.Address]core.Cost{"C": 99})
	r.OnPacket(1, packet.New(packet.Routing, "B", "A", stale))
	if len(*sent) != 0 {
		t.Fatalf("same-or-lower sequence must not reinstall or reflood, got %d sends", len(*sent))
	}
	if r.LSDB()["B"]["C"] != 1 {
		t.Fatal("stale LSP must not overwrite the installed links")
	}
}

func TestHigherSequenceReplacesAndFloods(t *testing.T) {
	r, sent := newTestRouter("A", 1000)
	r.OnNewLink(1, "B", 1)
	*sent = nil

	r.OnPacket(1, packet.New(packet.Routing, "B", "A", Encode("B", 5, map[core.Address]core.Cost{"C": 1})))
	*sent = nil
	r.OnPacket(1, packet.New(packet.Routing, "B", "A", Encode("B", 6, map[core.Address]core.Cost{"C": 2})))

	if r.LSDB()["B"]["C"] != 2 {
		t.Fatalf("lsdb[B][C] = %v, want 2 after higher-seq replacement", r.LSDB()["B"]["C"])
	}
	if len(*sent) == 0 {
		t.Fatal("expected reflood on strictly higher sequence")
	}
}

func TestContentIdenticalRefloodIsSuppressedByDedupe(t *testing.T) {
	r, sent := newTestRouter("A", 1000)
	r.OnNewLink(1, "B", 1)
	*sent = nil

	content := Encode("B", 5, map[core.Address]core.Cost{"C": 1})
	r.OnPacket(1, packet.New(packet.Routing, "B", "A", content))
	*sent = nil

	// Same content re-arriving on a different port must be swallowed by the
	// dedupe cache before the sequence check ever runs.
	r.OnPacket(2, packet.New(packet.Routing, "B", "A", content))
	if len(*sent) != 0 {
		t.Fatalf("expected dedupe cache to suppress identical re-flood, got %d sends", len(*sent))
	}
}

// TestTriangleShortestPath is scenario S1/S2 for link-state: A-B cost 10,
// B-C cost 1, A-C cost 5. A should route to B via C (cost 6) once every
// router's LSP has propagated.
func TestTriangleShortestPath(t *testing.T) {
	a, _ := newTestRouter("A", 1000)
	b, _ := newTestRouter("B", 1000)
	c, _ := newTestRouter("C", 1000)

	routers := map[core.Address]*Router{"A": a, "B": b, "C": c}
	var queue []func()
	a.cfg.Send = deliverTo(routers, "A", &queue)
	b.cfg.Send = deliverTo(routers, "B", &queue)
	c.cfg.Send = deliverTo(routers, "C", &queue)

	a.OnNewLink(1, "B", 10)
	b.OnNewLink(1, "A", 10)

	b.OnNewLink(2, "C", 1)
	c.OnNewLink(1, "B", 1)

	a.OnNewLink(2, "C", 5)
	c.OnNewLink(2, "A", 5)
	drain(&queue)

	if cost := a.Costs()["C"]; cost != 5 {
		t.Fatalf("A cost to C = %v, want 5", cost)
	}
	if cost := a.Costs()["B"]; cost != 6 {
		t.Fatalf("A cost to B = %v, want 6 (via C)", cost)
	}
	if port := a.Forwarding()["B"]; port != 2 {
		t.Fatalf("A.forwarding[B] = port %v, want port 2 (to C)", port)
	}
}

// deliverTo returns a Sender for `from` that queues each packet for the
// router named by its Dst; drain hands it to that router's OnPacket on the
// port facing `from`. Queuing keeps a flood from calling back into a router
// whose handler is still running.
func deliverTo(routers map[core.Address]*Router, from core.Address, queue *[]func()) Sender {
	return func(port core.Port, pkt *packet.Packet) {
		dst, ok := routers[pkt.Dst]
		if !ok {
			return
		}
		*queue = append(*queue, func() { dst.OnPacket(portFor(dst, from), pkt) })
	}
}

// drain delivers queued packets, including any sent while draining, until
// the queue is empty.
func drain(queue *[]func()) {
	for len(*queue) > 0 {
		next := (*queue)[0]
		*queue = (*queue)[1:]
		next()
	}
}

func portFor(r *Router, from core.Address) core.Port {
	for p, nb := range r.neighbors {
		if nb.addr == from {
			return p
		}
	}
	return 0
}
