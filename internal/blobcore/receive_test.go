package blobcore

import (
	"testing"

	"github.com/sheerbytes/blocksend/internal/config"
	"github.com/sheerbytes/blocksend/pkg/wire"
)

func TestOnWriteRequest_AdmitsAndSendsInitialAck(t *testing.T) {
	c, ep, _, rec := newTestCore(t, config.Options{})
	peer := PeerID("sender")

	c.HandleWriteRequest(peer, wire.WriteRequest{
		DataSize:   15,
		BlockCount: 2,
		Nonce:      42,
		ID:         "xfer-1",
		Info:       []byte("file.txt"),
	})

	pkts := ep.packets()
	if len(pkts) != 1 {
		t.Fatalf("expected one acknowledgement, got %d", len(pkts))
	}
	kind, payload := decodeEnvelope(t, pkts[0].raw)
	if kind != wire.KindAcknowledgement {
		t.Fatalf("expected acknowledgement, got %s", kind)
	}
	var ack wire.Acknowledgement
	if err := decodeJSON(payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack.Number != 0 {
		t.Fatalf("expected initial ack number=0, got %d", ack.Number)
	}
	if ack.Nonce != 42 {
		t.Fatalf("ack must echo the write-request nonce")
	}
	if rec.errorCount() != 0 {
		t.Fatalf("admitted write-request must not raise an error")
	}
}

func TestOnWriteRequest_NonPositiveSizeRejected(t *testing.T) {
	c, ep, _, rec := newTestCore(t, config.Options{})
	peer := PeerID("sender")

	c.HandleWriteRequest(peer, wire.WriteRequest{DataSize: 0, BlockCount: 1, ID: "xfer-1"})

	pkts := ep.packets()
	if len(pkts) != 1 {
		t.Fatalf("expected one error packet, got %d", len(pkts))
	}
	kind, _ := decodeEnvelope(t, pkts[0].raw)
	if kind != wire.KindError {
		t.Fatalf("expected error packet, got %s", kind)
	}
	if rec.errorCount() != 1 {
		t.Fatalf("expected local error callback, got %d", rec.errorCount())
	}
	if got := rec.lastError().Kind; got != KindValue {
		t.Fatalf("expected value_error, got %s", got)
	}
}

func TestOnWriteRequest_OversizedRejected(t *testing.T) {
	c, _, _, rec := newTestCore(t, config.Options{BinarySizeLimit: 10})
	peer := PeerID("sender")

	c.HandleWriteRequest(peer, wire.WriteRequest{DataSize: 100, BlockCount: 10, ID: "xfer-1"})

	if rec.errorCount() != 1 || rec.lastError().Kind != KindSize {
		t.Fatalf("expected size_error, got %+v", rec.lastError())
	}
}

func TestOnWriteRequest_PeerBusyRejected(t *testing.T) {
	c, _, _, rec := newTestCore(t, config.Options{})
	peer := PeerID("sender")

	c.HandleWriteRequest(peer, wire.WriteRequest{DataSize: 10, BlockCount: 1, Nonce: 1, ID: "xfer-1"})
	c.HandleWriteRequest(peer, wire.WriteRequest{DataSize: 10, BlockCount: 1, Nonce: 2, ID: "xfer-2"})

	if rec.errorCount() != 1 || rec.lastError().Kind != KindPeerBusy {
		t.Fatalf("second concurrent write-request must be rejected peer_busy, got %+v", rec.lastError())
	}
}

func TestOnWriteRequest_CollidingNonceReportedDistinctlyFromBusy(t *testing.T) {
	c, _, _, rec := newTestCore(t, config.Options{})
	peer := PeerID("sender")

	c.HandleWriteRequest(peer, wire.WriteRequest{DataSize: 10, BlockCount: 1, Nonce: 99, ID: "xfer-1"})
	c.HandleWriteRequest(peer, wire.WriteRequest{DataSize: 10, BlockCount: 1, Nonce: 99, ID: "xfer-2"})

	if rec.errorCount() != 1 || rec.lastError().Kind != KindNonceCollision {
		t.Fatalf("a second write-request whose nonce collides with the active transfer must report nonce_collision_error, got %+v", rec.lastError())
	}
}

func TestOnWriteRequest_DuplicateActiveIDIgnored(t *testing.T) {
	c, ep, _, rec := newTestCore(t, config.Options{})
	peer := PeerID("sender")

	c.HandleWriteRequest(peer, wire.WriteRequest{DataSize: 10, BlockCount: 1, ID: "xfer-1"})
	ep.reset()
	c.HandleWriteRequest(peer, wire.WriteRequest{DataSize: 10, BlockCount: 1, ID: "xfer-1"})

	if len(ep.packets()) != 0 {
		t.Fatalf("a repeat of the already-active id must be silently ignored, not re-acked")
	}
	if rec.errorCount() != 0 {
		t.Fatalf("repeat of active id must not error")
	}
}

func TestOnData_HappyPathFiresProgressAndComplete(t *testing.T) {
	opts := config.Options{BlockSize: 10, WindowSizeInBlocks: 64}
	c, ep, _, rec := newTestCore(t, opts)
	peer := PeerID("sender")

	c.HandleWriteRequest(peer, wire.WriteRequest{
		DataSize: 15, BlockCount: 2, Nonce: 7, ID: "xfer-1", Info: []byte("file.txt"),
	})
	ep.reset()

	c.HandleData(peer, wire.Data{BlockNumber: 0, Nonce: 7, Data: []byte("ABCDEFGHIJ")})
	if rec.completeCount() != 0 {
		t.Fatalf("receive-complete must not fire before the final block")
	}

	c.HandleData(peer, wire.Data{BlockNumber: 1, Nonce: 7, Data: []byte("KLMNO")})
	if rec.completeCount() != 1 {
		t.Fatalf("expected receive-complete after final block, got %d", rec.completeCount())
	}

	pkts := ep.packets()
	if len(pkts) == 0 {
		t.Fatalf("expected a final acknowledgement")
	}
	kind, payload := decodeEnvelope(t, pkts[len(pkts)-1].raw)
	if kind != wire.KindAcknowledgement {
		t.Fatalf("expected final packet to be an acknowledgement, got %s", kind)
	}
	var ack wire.Acknowledgement
	if err := decodeJSON(payload, &ack); err != nil {
		t.Fatalf("unmarshal final ack: %v", err)
	}
	if ack.Number != 2 {
		t.Fatalf("expected final ack number=2, got %d", ack.Number)
	}
}

func TestOnData_OutOfOrderIgnored(t *testing.T) {
	opts := config.Options{BlockSize: 10, WindowSizeInBlocks: 64}
	c, ep, _, rec := newTestCore(t, opts)
	peer := PeerID("sender")

	c.HandleWriteRequest(peer, wire.WriteRequest{DataSize: 15, BlockCount: 2, Nonce: 7, ID: "xfer-1"})
	ep.reset()

	// Block 1 arrives before block 0: must be dropped, no state change.
	c.HandleData(peer, wire.Data{BlockNumber: 1, Nonce: 7, Data: []byte("KLMNO")})
	if rec.completeCount() != 0 || len(ep.packets()) != 0 {
		t.Fatalf("out-of-order block must be silently dropped")
	}

	c.HandleData(peer, wire.Data{BlockNumber: 0, Nonce: 7, Data: []byte("ABCDEFGHIJ")})
	c.HandleData(peer, wire.Data{BlockNumber: 1, Nonce: 7, Data: []byte("KLMNO")})
	if rec.completeCount() != 1 {
		t.Fatalf("in-order replay after the drop should still complete the transfer")
	}
}

func TestOnData_NonceMismatchIgnored(t *testing.T) {
	opts := config.Options{BlockSize: 10}
	c, ep, _, rec := newTestCore(t, opts)
	peer := PeerID("sender")

	c.HandleWriteRequest(peer, wire.WriteRequest{DataSize: 15, BlockCount: 2, Nonce: 7, ID: "xfer-1"})
	ep.reset()

	c.HandleData(peer, wire.Data{BlockNumber: 0, Nonce: 999, Data: []byte("ABCDEFGHIJ")})
	if rec.completeCount() != 0 || len(ep.packets()) != 0 {
		t.Fatalf("data for the wrong nonce must be ignored")
	}
}

func TestOnData_AccumulatedSizeOverLimitTerminates(t *testing.T) {
	opts := config.Options{BlockSize: 10, BinarySizeLimit: 12}
	c, ep, _, rec := newTestCore(t, opts)
	peer := PeerID("sender")

	// The write-request advertises a size within the limit, so it is
	// admitted; the blocks that follow carry more bytes than advertised.
	c.HandleWriteRequest(peer, wire.WriteRequest{DataSize: 12, BlockCount: 2, Nonce: 7, ID: "xfer-1"})
	ep.reset()

	c.HandleData(peer, wire.Data{BlockNumber: 0, Nonce: 7, Data: []byte("ABCDEFGHIJ")})
	c.HandleData(peer, wire.Data{BlockNumber: 1, Nonce: 7, Data: []byte("KLMNO")})

	if rec.errorCount() != 1 || rec.lastError().Kind != KindSize {
		t.Fatalf("expected size_error once accumulated data exceeds the limit, got %+v", rec.lastError())
	}
	if rec.completeCount() != 0 {
		t.Fatalf("a terminated transfer must not also report receive-complete")
	}
}

func TestOnData_InitializingMarkerFiresOnFirstBlock(t *testing.T) {
	opts := config.Options{BlockSize: 10}
	c, _, _, rec := newTestCore(t, opts)
	peer := PeerID("sender")

	c.HandleWriteRequest(peer, wire.WriteRequest{DataSize: 30, BlockCount: 3, Nonce: 1, ID: "xfer-1"})
	c.HandleData(peer, wire.Data{BlockNumber: 0, Nonce: 1, Data: []byte("0123456789")})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.progress) == 0 {
		t.Fatalf("expected at least one progress report")
	}
	first := rec.progress[0]
	if first.State != StateInitializing {
		t.Fatalf("expected INITIALIZING on block 0, got %s", first.State)
	}
}
