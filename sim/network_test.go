package sim

import (
	"testing"
	"time"

	"github.com/lattice-net/routesim/core"
)

// pollUntil repeatedly calls check, ticking the network forward each time,
// until check reports true or the deadline passes. This mirrors the
// drain-loop polling style in device/router/router_test.go, needed here
// because link delivery happens on its own goroutine.
func pollUntil(t *testing.T, net *Network, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		net.Tick(50)
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func forwardingPort(t *testing.T, net *Network, addr, dst core.Address) (core.Port, bool) {
	t.Helper()
	fw, err := net.Forwarding(addr)
	if err != nil {
		t.Fatalf("Forwarding(%q): %v", addr, err)
	}
	port, ok := fw[dst]
	return port, ok
}

// S1 — two-router line, DV flavor.
func TestS1TwoRouterLineDV(t *testing.T) {
	net := NewNetwork(nil)
	defer net.Stop()

	mustAddNode(t, net, "A", KindDV)
	mustAddNode(t, net, "B", KindDV)
	portA, portB, err := net.Link("A", "B", 5)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}

	pollUntil(t, net, 2*time.Second, func() bool {
		pa, okA := forwardingPort(t, net, "A", "B")
		pb, okB := forwardingPort(t, net, "B", "A")
		return okA && okB && pa == portA && pb == portB
	})
}

// S1 — two-router line, LS flavor.
func TestS1TwoRouterLineLS(t *testing.T) {
	net := NewNetwork(nil)
	defer net.Stop()

	mustAddNode(t, net, "A", KindLS)
	mustAddNode(t, net, "B", KindLS)
	portA, portB, err := net.Link("A", "B", 5)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}

	pollUntil(t, net, 2*time.Second, func() bool {
		pa, okA := forwardingPort(t, net, "A", "B")
		pb, okB := forwardingPort(t, net, "B", "A")
		return okA && okB && pa == portA && pb == portB
	})
}

// S2 — triangle with a cheaper indirect path, DV flavor: A-B=10, B-C=1,
// A-C=5. A should route to B via C (5+1=6 < 10 direct).
func TestS2TriangleCheaperIndirectPathDV(t *testing.T) {
	net := NewNetwork(nil)
	defer net.Stop()

	mustAddNode(t, net, "A", KindDV)
	mustAddNode(t, net, "B", KindDV)
	mustAddNode(t, net, "C", KindDV)

	_, _, err := net.Link("A", "B", 10)
	if err != nil {
		t.Fatalf("Link A-B: %v", err)
	}
	_, _, err = net.Link("B", "C", 1)
	if err != nil {
		t.Fatalf("Link B-C: %v", err)
	}
	portAC, _, err := net.Link("A", "C", 5)
	if err != nil {
		t.Fatalf("Link A-C: %v", err)
	}

	pollUntil(t, net, 3*time.Second, func() bool {
		pb, ok := forwardingPort(t, net, "A", "B")
		return ok && pb == portAC
	})
}

// S4 — line A-B-C, all costs 1; after convergence, removing A's link to B
// drops both B and C from A's forwarding table.
func TestS4LinkRemovalDV(t *testing.T) {
	net := NewNetwork(nil)
	defer net.Stop()

	mustAddNode(t, net, "A", KindDV)
	mustAddNode(t, net, "B", KindDV)
	mustAddNode(t, net, "C", KindDV)

	portAB, portBA, err := net.Link("A", "B", 1)
	if err != nil {
		t.Fatalf("Link A-B: %v", err)
	}
	if _, _, err := net.Link("B", "C", 1); err != nil {
		t.Fatalf("Link B-C: %v", err)
	}

	pollUntil(t, net, 3*time.Second, func() bool {
		_, ok := forwardingPort(t, net, "A", "C")
		return ok
	})

	net.Unlink("A", portAB, "B", portBA)

	if _, ok := forwardingPort(t, net, "A", "B"); ok {
		t.Fatal("expected A to drop B from forwarding table after link removal")
	}
	if _, ok := forwardingPort(t, net, "A", "C"); ok {
		t.Fatal("expected A to drop C from forwarding table after link removal")
	}
}

// S5 — triangle A,B,C with A-B=1, B-C=1, A-C=10 (LS). After A's link to C
// drops to 1, A should route directly to C.
func TestS5LSLinkCostChange(t *testing.T) {
	net := NewNetwork(nil)
	defer net.Stop()

	mustAddNode(t, net, "A", KindLS)
	mustAddNode(t, net, "B", KindLS)
	mustAddNode(t, net, "C", KindLS)

	if _, _, err := net.Link("A", "B", 1); err != nil {
		t.Fatalf("Link A-B: %v", err)
	}
	if _, _, err := net.Link("B", "C", 1); err != nil {
		t.Fatalf("Link B-C: %v", err)
	}
	portAC, portCA, err := net.Link("A", "C", 10)
	if err != nil {
		t.Fatalf("Link A-C: %v", err)
	}

	pollUntil(t, net, 3*time.Second, func() bool {
		pc, ok := forwardingPort(t, net, "A", "C")
		return ok && pc == portAC
	})

	net.Unlink("A", portAC, "C", portCA)
	newPortAC, _, err := net.Link("A", "C", 1)
	if err != nil {
		t.Fatalf("re-Link A-C: %v", err)
	}

	pollUntil(t, net, 3*time.Second, func() bool {
		pc, ok := forwardingPort(t, net, "A", "C")
		return ok && pc == newPortAC
	})
}

// S6 — a router with no route to a destination drops a data packet rather
// than erroring; SendData itself must not fail.
func TestS6DataForwardingMiss(t *testing.T) {
	net := NewNetwork(nil)
	defer net.Stop()

	mustAddNode(t, net, "A", KindDV)

	if err := net.SendData("A", "nowhere", []byte("hi")); err != nil {
		t.Fatalf("SendData: %v", err)
	}
}

func mustAddNode(t *testing.T, net *Network, addr core.Address, kind Kind) {
	t.Helper()
	if err := net.AddNode(addr, kind, 100); err != nil {
		t.Fatalf("AddNode(%q): %v", addr, err)
	}
}
