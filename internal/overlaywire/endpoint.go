package overlaywire

import (
	"log/slog"
	"net"
	"sync"

	"golang.org/x/time/rate"

	"github.com/sheerbytes/blocksend/internal/blobcore"
	"github.com/sheerbytes/blocksend/internal/bufpool"
	"github.com/sheerbytes/blocksend/pkg/wire"
)

// defaultMaxEnvelopeSize bounds one read from a peer connection. Block
// payloads are JSON + base64, so the buffer must comfortably exceed the
// configured block_size; every connection's receive pool uses this fixed
// size, independent of the core's Options.
const defaultMaxEnvelopeSize = 1 << 16

// connHandle is one established peer connection: the net.Conn an icePeer
// produced, a per-peer send-rate limiter (the core has no congestion
// control of its own, per spec.md §1 Non-goals — rate limiting belongs
// here), and the buffer pool its read loop drains into.
type connHandle struct {
	peer    blobcore.PeerID
	conn    net.Conn
	limiter *rate.Limiter
	bufs    *bufpool.Pool
	writeMu sync.Mutex
}

// Endpoint implements blobcore.Endpoint over a set of established ICE
// peer connections, and also drives each connection's read loop into a
// Core's HandleEnvelope.
type Endpoint struct {
	mu     sync.RWMutex
	conns  map[blobcore.PeerID]*connHandle
	logger *slog.Logger

	// ratePerSecond and burst configure every connection's limiter; see
	// WithRateLimit.
	ratePerSecond rate.Limit
	burst         int
	maxEnvelope   int
}

// NewEndpoint returns an Endpoint with no connections registered yet;
// AddConnection wires each one up after ICE connectivity completes.
func NewEndpoint(logger *slog.Logger) *Endpoint {
	if logger == nil {
		logger = slog.Default()
	}
	return &Endpoint{
		conns:         make(map[blobcore.PeerID]*connHandle),
		logger:        logger,
		ratePerSecond: rate.Inf,
		maxEnvelope:   defaultMaxEnvelopeSize,
	}
}

// WithRateLimit caps outbound envelopes per peer to ratePerSecond with the
// given burst, mirroring the overlay-level throttle SPEC_FULL.md assigns
// to golang.org/x/time/rate rather than the core.
func (e *Endpoint) WithRateLimit(ratePerSecond float64, burst int) *Endpoint {
	e.ratePerSecond = rate.Limit(ratePerSecond)
	e.burst = burst
	return e
}

// AddConnection registers an established net.Conn for peer and starts its
// read loop, delivering decoded envelopes to core. The read loop exits
// when conn is closed or RemoveConnection is called.
func (e *Endpoint) AddConnection(peer blobcore.PeerID, conn net.Conn, core *blobcore.Core, dir *Directory) {
	h := &connHandle{
		peer:    peer,
		conn:    conn,
		limiter: rate.NewLimiter(e.ratePerSecond, maxInt(e.burst, 1)),
		bufs:    bufpool.New(e.maxEnvelope),
	}
	e.mu.Lock()
	e.conns[peer] = h
	e.mu.Unlock()
	if dir != nil {
		dir.MarkReachable(peer, true)
	}

	go e.readLoop(h, core, dir)
}

// RemoveConnection tears down and forgets peer's connection.
func (e *Endpoint) RemoveConnection(peer blobcore.PeerID, dir *Directory) {
	e.mu.Lock()
	h, ok := e.conns[peer]
	delete(e.conns, peer)
	e.mu.Unlock()
	if ok {
		h.conn.Close()
	}
	if dir != nil {
		dir.MarkReachable(peer, false)
	}
}

func (e *Endpoint) readLoop(h *connHandle, core *blobcore.Core, dir *Directory) {
	defer func() {
		e.mu.Lock()
		if cur, ok := e.conns[h.peer]; ok && cur == h {
			delete(e.conns, h.peer)
		}
		e.mu.Unlock()
		if dir != nil {
			dir.MarkReachable(h.peer, false)
		}
	}()
	for {
		buf := h.bufs.Get()
		n, err := h.conn.Read(buf)
		if err != nil {
			e.logger.Debug("peer connection closed", "peer", h.peer, "error", err)
			h.bufs.Put(buf)
			return
		}
		msg := append([]byte(nil), buf[:n]...)
		h.bufs.Put(buf)
		if err := core.HandleEnvelope(h.peer, msg); err != nil {
			e.logger.Warn("discarding malformed envelope", "peer", h.peer, "error", err)
		}
	}
}

// Send implements blobcore.Endpoint. It is non-blocking beyond the rate
// limiter's own cheap token check (spec.md §5 endpoint.send contract).
func (e *Endpoint) Send(peer blobcore.PeerID, kind wire.Kind, payload []byte) error {
	e.mu.RLock()
	h, ok := e.conns[peer]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	if !h.limiter.Allow() {
		e.logger.Debug("dropping outbound envelope: rate limit exceeded", "peer", peer, "kind", kind)
		return nil
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	_, err := h.conn.Write(payload)
	return err
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
