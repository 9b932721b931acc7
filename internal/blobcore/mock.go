package blobcore

import (
	"sync"

	"github.com/sheerbytes/blocksend/pkg/wire"
)

// MockOverlay is an in-memory stand-in for the overlay's endpoint.send /
// community.get_peers contract, used by tests and the demo CLI. It wires
// any number of Cores together, delivering packets asynchronously but
// preserving per-sender order to each recipient — grounded on the
// teacher's NewMockPair in-memory transport (internal/transfer/mock.go),
// adapted from a stream pair to an ordered datagram queue per peer.
type MockOverlay struct {
	mu         sync.Mutex
	cores      map[PeerID]*Core
	reachable  map[PeerID]bool
	queues     map[PeerID]chan mockPacket
	stopCh     chan struct{}
	stopOnce   sync.Once
}

type mockPacket struct {
	from PeerID
	raw  []byte
}

// NewMockOverlay creates an empty overlay. Register each participating
// Core with Register before starting any transfers.
func NewMockOverlay() *MockOverlay {
	return &MockOverlay{
		cores:     make(map[PeerID]*Core),
		reachable: make(map[PeerID]bool),
		queues:    make(map[PeerID]chan mockPacket),
		stopCh:    make(chan struct{}),
	}
}

// Register adds a Core under the given peer identity and starts its
// inbound delivery goroutine. The peer starts out reachable.
func (o *MockOverlay) Register(id PeerID, core *Core) {
	o.mu.Lock()
	o.cores[id] = core
	o.reachable[id] = true
	queue := make(chan mockPacket, 1024)
	o.queues[id] = queue
	o.mu.Unlock()

	go func() {
		for {
			select {
			case pkt := <-queue:
				core.HandleEnvelope(pkt.from, pkt.raw)
			case <-o.stopCh:
				return
			}
		}
	}()
}

// SetReachable marks a peer reachable or unreachable in the shared
// directory view (community.get_peers semantics, spec §6).
func (o *MockOverlay) SetReachable(id PeerID, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reachable[id] = ok
}

// Stop halts all delivery goroutines.
func (o *MockOverlay) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
}

// EndpointFor returns the Endpoint a Core registered as `self` should use
// to emit packets: Send(peer, ...) enqueues onto peer's inbound queue,
// tagging the packet with `self` as sender.
func (o *MockOverlay) EndpointFor(self PeerID) Endpoint {
	return &mockEndpoint{overlay: o, self: self}
}

type mockEndpoint struct {
	overlay *MockOverlay
	self    PeerID
}

func (e *mockEndpoint) Send(peer PeerID, kind wire.Kind, payload []byte) error {
	e.overlay.mu.Lock()
	queue, ok := e.overlay.queues[peer]
	e.overlay.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case queue <- mockPacket{from: e.self, raw: payload}:
	default:
		// Best-effort, fire-and-forget per spec §5: drop on a full queue
		// rather than block the sender.
	}
	return nil
}

// DirectoryFor returns the Directory view shared by the overlay: every
// registered, not-explicitly-unreachable peer is reachable.
func (o *MockOverlay) DirectoryFor(self PeerID) Directory {
	return &mockDirectory{overlay: o}
}

type mockDirectory struct {
	overlay *MockOverlay
}

func (d *mockDirectory) IsReachable(peer PeerID) bool {
	d.overlay.mu.Lock()
	defer d.overlay.mu.Unlock()
	return d.overlay.reachable[peer]
}
