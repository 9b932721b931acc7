package blobcore

import (
	"time"

	"github.com/sheerbytes/blocksend/internal/progress"
)

// Direction is a tagged field rather than a subclass split (spec §9).
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// Transfer is the mutable per-flow state record (spec §3). It is owned
// exclusively by the Core that created it; no reference to it escapes
// outside callback invocations.
type Transfer struct {
	Direction Direction
	Peer      PeerID
	ID        string
	Info      []byte
	Nonce     uint64

	BlockCount  int32
	BlockNumber int32 // outgoing: last acked; incoming: last received
	AckNumber   int32 // receive side: next expected block index

	WindowSize uint32
	DataSize   int64
	Data       []byte

	Attempt int
	Updated time.Time
	Released bool

	progressFloor int // last reported floor(100*blockNumber/blockCount)
	meter         *progress.Meter
}

// isProgressMarker reports whether advancing to the transfer's current
// BlockNumber raises floor(100*BlockNumber/BlockCount), i.e. crosses a new
// whole-percent increment. Block 0
// always fires so the initial INITIALIZING marker is reported.
func (t *Transfer) isProgressMarker() bool {
	if t.BlockNumber == 0 {
		return true
	}
	if t.BlockCount <= 0 {
		return false
	}
	floor := int(100 * int64(t.BlockNumber) / int64(t.BlockCount))
	if floor > t.progressFloor {
		t.progressFloor = floor
		return true
	}
	return false
}

// progressMarker returns the percentage complete as a float in [0, 100].
func (t *Transfer) progressMarker() float64 {
	if t.BlockCount <= 0 {
		return 0
	}
	return 100 * float64(t.BlockNumber) / float64(t.BlockCount)
}

// release clears the buffer and marks the transfer terminal. Idempotent.
func (t *Transfer) release() {
	if t.Released {
		return
	}
	t.Data = nil
	t.Released = true
}
