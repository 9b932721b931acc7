package blobcore

import (
	"sync"
	"time"

	"github.com/sheerbytes/blocksend/pkg/wire"
)

// sentPacket is one call recorded by recordingEndpoint, decoded just enough
// to assert on in tests.
type sentPacket struct {
	peer PeerID
	kind wire.Kind
	raw  []byte
}

type recordingEndpoint struct {
	mu   sync.Mutex
	sent []sentPacket
}

func (e *recordingEndpoint) Send(peer PeerID, kind wire.Kind, payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, sentPacket{peer: peer, kind: kind, raw: payload})
	return nil
}

func (e *recordingEndpoint) packets() []sentPacket {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]sentPacket(nil), e.sent...)
}

func (e *recordingEndpoint) last() (sentPacket, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sent) == 0 {
		return sentPacket{}, false
	}
	return e.sent[len(e.sent)-1], true
}

func (e *recordingEndpoint) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = nil
}

type staticDirectory struct {
	mu        sync.Mutex
	reachable map[PeerID]bool
}

func newStaticDirectory() *staticDirectory {
	return &staticDirectory{reachable: make(map[PeerID]bool)}
}

func (d *staticDirectory) IsReachable(peer PeerID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reachable[peer]
}

func (d *staticDirectory) set(peer PeerID, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reachable[peer] = ok
}

// recordingCallbacks captures every callback invocation for assertion.
type recordingCallbacks struct {
	mu        sync.Mutex
	progress  []Progress
	completes []struct {
		peer PeerID
		id   string
		data []byte
	}
	sendCompletes []struct {
		peer  PeerID
		nonce uint64
	}
	errors []*TransferException
}

func newRecordingCallbacks() (*recordingCallbacks, Callbacks) {
	r := &recordingCallbacks{}
	cb := Callbacks{
		OnReceiveProgress: func(peer PeerID, info []byte, p Progress) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.progress = append(r.progress, p)
		},
		OnReceiveComplete: func(peer PeerID, info []byte, id string, data []byte) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.completes = append(r.completes, struct {
				peer PeerID
				id   string
				data []byte
			}{peer, id, data})
		},
		OnSendComplete: func(peer PeerID, info []byte, data []byte, nonce uint64) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.sendCompletes = append(r.sendCompletes, struct {
				peer  PeerID
				nonce uint64
			}{peer, nonce})
		},
		OnError: func(peer PeerID, err *TransferException) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errors = append(r.errors, err)
		},
	}
	return r, cb
}

func (r *recordingCallbacks) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

func (r *recordingCallbacks) lastError() *TransferException {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errors) == 0 {
		return nil
	}
	return r.errors[len(r.errors)-1]
}

func (r *recordingCallbacks) completeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completes)
}

func (r *recordingCallbacks) sendCompleteCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sendCompletes)
}

// manualClock is a test-controlled time source installed via Core.SetClock.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
