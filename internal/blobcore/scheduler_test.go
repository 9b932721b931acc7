package blobcore

import (
	"testing"

	"github.com/sheerbytes/blocksend/internal/config"
)

func TestIsAdmissibleLocked(t *testing.T) {
	c, _, dir, _ := newTestCore(t, config.Options{})
	peer := PeerID("peer")

	c.mu.Lock()
	admissible := c.isAdmissibleLocked(peer)
	c.mu.Unlock()
	if admissible {
		t.Fatalf("an unreachable peer must not be admissible")
	}

	dir.set(peer, true)
	c.mu.Lock()
	admissible = c.isAdmissibleLocked(peer)
	c.mu.Unlock()
	if !admissible {
		t.Fatalf("a reachable, idle peer must be admissible")
	}

	c.mu.Lock()
	c.outgoing[peer] = &Transfer{Peer: peer, ID: "x"}
	admissible = c.isAdmissibleLocked(peer)
	c.mu.Unlock()
	if admissible {
		t.Fatalf("a peer with an active outgoing transfer must not be admissible")
	}
}

func TestFinishedTracking(t *testing.T) {
	c, _, _, _ := newTestCore(t, config.Options{})
	peer := PeerID("peer")

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isFinishedOutgoingLocked(peer, "a") {
		t.Fatalf("nothing finished yet")
	}
	c.markFinishedOutgoingLocked(peer, "a")
	if !c.isFinishedOutgoingLocked(peer, "a") {
		t.Fatalf("expected 'a' to be tracked as finished-outgoing")
	}
	if c.isFinishedOutgoingLocked(peer, "b") {
		t.Fatalf("'b' was never finished")
	}

	if c.isFinishedIncomingLocked(peer, "a") {
		t.Fatalf("finished-outgoing and finished-incoming must be tracked independently")
	}
	c.markFinishedIncomingLocked(peer, "a")
	if !c.isFinishedIncomingLocked(peer, "a") {
		t.Fatalf("expected 'a' to be tracked as finished-incoming")
	}
}

func TestEnqueueAndIsScheduledLocked(t *testing.T) {
	c, _, _, _ := newTestCore(t, config.Options{})
	peer := PeerID("peer")

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isScheduledLocked(peer, "x") {
		t.Fatalf("nothing scheduled yet")
	}
	c.enqueueScheduledLocked(peer, ScheduledTransfer{ID: "x"})
	if !c.isScheduledLocked(peer, "x") {
		t.Fatalf("expected 'x' to be scheduled")
	}
	if len(c.scheduled[peer]) != 1 {
		t.Fatalf("expected exactly one queued entry, got %d", len(c.scheduled[peer]))
	}
}

func TestTerminateLocked_IsIdempotentAndRemovesFromOwningMap(t *testing.T) {
	c, _, _, _ := newTestCore(t, config.Options{})
	peer := PeerID("peer")
	out := &Transfer{Direction: DirectionOutgoing, Peer: peer, ID: "out"}
	in := &Transfer{Direction: DirectionIncoming, Peer: peer, ID: "in"}

	c.mu.Lock()
	c.outgoing[peer] = out
	c.incoming[peer] = in
	c.terminateLocked(out)
	c.mu.Unlock()

	if _, ok := c.outgoing[peer]; ok {
		t.Fatalf("terminated outgoing transfer must be removed")
	}
	if _, ok := c.incoming[peer]; !ok {
		t.Fatalf("terminating the outgoing transfer must not touch the incoming one")
	}
	if !out.Released {
		t.Fatalf("terminate must mark the transfer released")
	}

	c.mu.Lock()
	c.terminateLocked(out) // idempotent: no panic, no effect on incoming
	c.mu.Unlock()
	if _, ok := c.incoming[peer]; !ok {
		t.Fatalf("repeat terminate must not disturb unrelated state")
	}
}

func TestPumpScheduled_SkipsBusyAndUnreachablePeers(t *testing.T) {
	c, ep, dir, _ := newTestCore(t, config.Options{})
	busy := PeerID("busy")
	unreachable := PeerID("unreachable")
	ready := PeerID("ready")
	dir.set(busy, true)
	dir.set(unreachable, false)
	dir.set(ready, true)

	c.mu.Lock()
	c.outgoing[busy] = &Transfer{Peer: busy, ID: "active"}
	c.enqueueScheduledLocked(busy, ScheduledTransfer{ID: "queued-busy", Info: []byte("i"), Data: []byte("d")})
	c.enqueueScheduledLocked(unreachable, ScheduledTransfer{ID: "queued-unreachable", Info: []byte("i"), Data: []byte("d")})
	c.enqueueScheduledLocked(ready, ScheduledTransfer{ID: "queued-ready", Info: []byte("i"), Data: []byte("d")})
	c.mu.Unlock()

	c.PumpScheduled()

	if len(ep.packets()) != 1 {
		t.Fatalf("expected exactly one write-request for the ready peer, got %d", len(ep.packets()))
	}
	snap := c.Snapshot()
	if snap.ScheduledByPeer[busy] != 1 {
		t.Fatalf("busy peer's queue must be untouched")
	}
	if snap.ScheduledByPeer[unreachable] != 1 {
		t.Fatalf("unreachable peer's queue must be untouched")
	}
	if snap.ScheduledByPeer[ready] != 0 {
		t.Fatalf("ready peer's queue must be drained")
	}
}
