package blobcore

import (
	"time"

	"github.com/sheerbytes/blocksend/pkg/wire"
)

// PeerID is the opaque identity of a remote peer, as handed out by the
// overlay (spec §1: cryptographic identity of peers is out of scope — the
// core only consumes opaque identifiers).
type PeerID string

// Endpoint is the overlay's fire-and-forget datagram sink (spec §6:
// endpoint.send). Send must be non-blocking or cheaply blocking; the core
// provides no flow control toward the transport.
type Endpoint interface {
	Send(peer PeerID, kind wire.Kind, payload []byte) error
}

// Directory reports which peers are currently reachable (spec §6:
// community.get_peers). Admission checks consult it before starting a
// transfer; absence from the set enqueues the request instead.
type Directory interface {
	IsReachable(peer PeerID) bool
}

// State is the value reported alongside progress callbacks.
type State string

const (
	StateScheduled    State = "SCHEDULED"
	StateInitializing State = "INITIALIZING"
	StateDownloading  State = "DOWNLOADING"
	StateFinished     State = "FINISHED"
)

// Progress is delivered to OnReceiveProgress (spec §6 TransferProgress).
// RateBps and ETA are a Supplemented Feature tracked by a smoothed byte
// meter alongside the block-count progress the core itself computes; both
// are zero until enough data has arrived to estimate a rate.
type Progress struct {
	ID       string
	State    State
	Progress float64
	RateBps  float64
	ETA      time.Duration
}

// Callbacks are registered by the embedder before the core is used (spec
// §6). Any nil field is treated as a no-op.
type Callbacks struct {
	OnReceiveProgress func(peer PeerID, info []byte, progress Progress)
	OnReceiveComplete func(peer PeerID, info []byte, id string, data []byte)
	OnSendComplete    func(peer PeerID, info []byte, data []byte, nonce uint64)
	OnError           func(peer PeerID, err *TransferException)
}

func (c Callbacks) receiveProgress(peer PeerID, info []byte, p Progress) {
	if c.OnReceiveProgress != nil {
		c.OnReceiveProgress(peer, info, p)
	}
}

func (c Callbacks) receiveComplete(peer PeerID, info []byte, id string, data []byte) {
	if c.OnReceiveComplete != nil {
		c.OnReceiveComplete(peer, info, id, data)
	}
}

func (c Callbacks) sendComplete(peer PeerID, info []byte, data []byte, nonce uint64) {
	if c.OnSendComplete != nil {
		c.OnSendComplete(peer, info, data, nonce)
	}
}

func (c Callbacks) error(peer PeerID, err *TransferException) {
	if c.OnError != nil {
		c.OnError(peer, err)
	}
}
