// Package blobcore implements the per-peer transfer state machine and
// scheduler described in spec.md §4: the windowed, block-oriented
// send/receive protocol; the per-peer scheduling queue; and the timer
// subsystem driving retransmission and timeout-based termination.
//
// Mutation is serialized the way spec §5 describes: a single logical
// dispatcher. Here that dispatcher is modeled as a mutex guarding the
// four per-peer maps and the task heap (spec §9's "single-threaded task
// executor" option), with callback and endpoint invocations deferred to
// an outbox drained after the mutex is released — so a callback that
// re-enters the core (e.g. calling SendBinary from inside OnReceiveComplete)
// never deadlocks against its own caller.
package blobcore

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"github.com/sheerbytes/blocksend/internal/bufpool"
	"github.com/sheerbytes/blocksend/internal/config"
)

// MaxNonce is the full 64-bit nonce space (spec §9: "the 64-bit range
// should be used for collision safety", superseding the source's
// 2*INT_MAX constant).
const MaxNonce = ^uint64(0)

// outbox accumulates side-effecting actions (packet emission, callback
// invocation, scheduler pumps) produced while the core's mutex is held, to
// be run once it is released.
type outbox struct {
	actions []func()
}

func (o *outbox) add(f func()) {
	o.actions = append(o.actions, f)
}

func (o *outbox) run() {
	for _, f := range o.actions {
		f()
	}
}

// Core owns all transfer records and the task heap for one local peer's
// view of the overlay (spec §3 Ownership). No transfer reference escapes
// outside callback invocations.
type Core struct {
	mu sync.Mutex

	self      PeerID
	opts      config.Options
	endpoint  Endpoint
	directory Directory
	callbacks Callbacks
	logger    *slog.Logger
	now       func() time.Time
	blockBufs *bufpool.Pool

	scheduled        map[PeerID][]ScheduledTransfer
	outgoing         map[PeerID]*Transfer
	incoming         map[PeerID]*Transfer
	finishedOutgoing map[PeerID]map[string]bool
	finishedIncoming map[PeerID]map[string]bool

	tasks   taskHeap
	taskSeq uint64

	stop    chan struct{}
	stopped bool
}

// New constructs a Core identifying itself to the overlay as self. The
// returned Core does not start its background loops until Start is called.
func New(self PeerID, endpoint Endpoint, directory Directory, callbacks Callbacks, opts config.Options, logger *slog.Logger) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	normalized := opts.Normalize()
	c := &Core{
		self:             self,
		opts:             normalized,
		endpoint:         endpoint,
		directory:        directory,
		callbacks:        callbacks,
		logger:           logger,
		now:              time.Now,
		blockBufs:        bufpool.New(int(normalized.BlockSize)),
		scheduled:        make(map[PeerID][]ScheduledTransfer),
		outgoing:         make(map[PeerID]*Transfer),
		incoming:         make(map[PeerID]*Transfer),
		finishedOutgoing: make(map[PeerID]map[string]bool),
		finishedIncoming: make(map[PeerID]map[string]bool),
		stop:             make(chan struct{}),
	}
	return c
}

// Start begins the periodic scheduler tick and the 1 Hz timer poll (spec
// §4.5, §5). Safe to call once.
func (c *Core) Start() {
	c.mu.Lock()
	c.scheduleSchedulerTickLocked(c.now())
	c.mu.Unlock()
	go c.runTimerLoop(c.stop)
}

// Stop halts the background loops. In-flight transfers are abandoned in
// memory, per spec §5's cancellation policy.
func (c *Core) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()
	close(c.stop)
}

func (c *Core) clockNow() time.Time {
	return c.now()
}

// SetClock overrides the core's time source. Intended for tests that need
// to drive timeout and retransmit timers deterministically by calling
// pollTimers with synthetic timestamps rather than sleeping. Must be
// called before Start.
func (c *Core) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// randomNonce returns a uniform random value in [0, MaxNonce], using the
// full 64-bit field per spec §9's decided Open Question.
func randomNonce() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint64(buf[:])
}

// CoreSnapshot reports queue depths and active transfers per peer, for
// operational visibility (SPEC_FULL.md Supplemented Features).
type CoreSnapshot struct {
	ScheduledByPeer map[PeerID]int
	OutgoingPeers   []PeerID
	IncomingPeers   []PeerID
}

// Snapshot returns a point-in-time view of scheduler and transfer state.
func (c *Core) Snapshot() CoreSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := CoreSnapshot{ScheduledByPeer: make(map[PeerID]int, len(c.scheduled))}
	for peer, q := range c.scheduled {
		snap.ScheduledByPeer[peer] = len(q)
	}
	for peer := range c.outgoing {
		snap.OutgoingPeers = append(snap.OutgoingPeers, peer)
	}
	for peer := range c.incoming {
		snap.IncomingPeers = append(snap.IncomingPeers, peer)
	}
	return snap
}
